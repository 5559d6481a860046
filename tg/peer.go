// Package tg contains telegram api objects used by client core:
// peers, messages, updates and methods to fetch difference.
package tg

import "github.com/xssnick/tgutils-go/tl"

// Layer - api layer of schema
const Layer = 185

func init() {
	tl.Register(PeerUser{}, "peerUser#59511722 user_id:long = Peer")
	tl.Register(PeerChat{}, "peerChat#36c6019a chat_id:long = Peer")
	tl.Register(PeerChannel{}, "peerChannel#a2a5371e channel_id:long = Peer")

	tl.Register(InputPeerEmpty{}, "inputPeerEmpty#7f3b18ea = InputPeer")
	tl.Register(InputPeerSelf{}, "inputPeerSelf#7da07ec9 = InputPeer")
	tl.Register(InputPeerChat{}, "inputPeerChat#35a95cb9 chat_id:long = InputPeer")
	tl.Register(InputPeerUser{}, "inputPeerUser#dde8a54c user_id:long access_hash:long = InputPeer")
	tl.Register(InputPeerChannel{}, "inputPeerChannel#27bcbbfc channel_id:long access_hash:long = InputPeer")

	tl.Register(InputChannel{}, "inputChannel#f35aec28 channel_id:long access_hash:long = InputChannel")
}

type Peer interface {
	isPeer()
}

type PeerUser struct {
	UserID int64 `tl:"long"`
}

type PeerChat struct {
	ChatID int64 `tl:"long"`
}

type PeerChannel struct {
	ChannelID int64 `tl:"long"`
}

func (PeerUser) isPeer()    {}
func (PeerChat) isPeer()    {}
func (PeerChannel) isPeer() {}

type InputPeer interface {
	isInputPeer()
}

type InputPeerEmpty struct{}

type InputPeerSelf struct{}

type InputPeerChat struct {
	ChatID int64 `tl:"long"`
}

type InputPeerUser struct {
	UserID     int64 `tl:"long"`
	AccessHash int64 `tl:"long"`
}

type InputPeerChannel struct {
	ChannelID  int64 `tl:"long"`
	AccessHash int64 `tl:"long"`
}

func (InputPeerEmpty) isInputPeer()   {}
func (InputPeerSelf) isInputPeer()    {}
func (InputPeerChat) isInputPeer()    {}
func (InputPeerUser) isInputPeer()    {}
func (InputPeerChannel) isInputPeer() {}

type InputChannel struct {
	ChannelID  int64 `tl:"long"`
	AccessHash int64 `tl:"long"`
}

// zeroChannelID - channel ids are marked by subtracting them from this value
const zeroChannelID = -1000000000000

// MarkedID - single id space for all peer types, users are positive,
// chats are negative and channels are below -10^12
func MarkedID(p Peer) int64 {
	switch v := p.(type) {
	case PeerUser:
		return v.UserID
	case PeerChat:
		return -v.ChatID
	case PeerChannel:
		return zeroChannelID - v.ChannelID
	}
	return 0
}

// PeerFromMarked - reverse of MarkedID
func PeerFromMarked(id int64) Peer {
	switch {
	case id > 0:
		return PeerUser{UserID: id}
	case id < zeroChannelID:
		return PeerChannel{ChannelID: zeroChannelID - id}
	default:
		return PeerChat{ChatID: -id}
	}
}

// ChannelOf - channel id if input peer is a channel
func ChannelOf(p InputPeer) (int64, bool) {
	if ch, ok := p.(InputPeerChannel); ok {
		return ch.ChannelID, true
	}
	return 0, false
}
