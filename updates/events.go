package updates

import "github.com/xssnick/tgutils-go/tg"

// Event - ordered update delivered to subscribers, peers which came with it are attached
type Event interface {
	Peers() *tg.PeersIndex
}

type NewMessage struct {
	Message tg.MessageClass
	// ChannelID - zero for private chats and basic groups
	ChannelID  int64
	PeersIndex *tg.PeersIndex
}

type EditMessage struct {
	Message    tg.MessageClass
	ChannelID  int64
	PeersIndex *tg.PeersIndex
}

type DeleteMessages struct {
	ChannelID  int64
	IDs        []int32
	PeersIndex *tg.PeersIndex
}

type PinnedMessages struct {
	Peer       tg.Peer
	IDs        []int32
	Pinned     bool
	PeersIndex *tg.PeersIndex
}

// MessageReactions - new reactions state of message, it is also returned by SendPaidReaction
type MessageReactions struct {
	Peer       tg.Peer
	MsgID      int32
	Reactions  tg.MessageReactions
	PeersIndex *tg.PeersIndex
}

type UserStatus struct {
	UserID     int64
	Status     tg.UserStatus
	PeersIndex *tg.PeersIndex
}

type NewEncryptedMessage struct {
	Message    tg.EncryptedMessage
	PeersIndex *tg.PeersIndex
}

// RawUpdate - update without dedicated event type
type RawUpdate struct {
	Update     tg.Update
	PeersIndex *tg.PeersIndex
}

func (e NewMessage) Peers() *tg.PeersIndex          { return e.PeersIndex }
func (e EditMessage) Peers() *tg.PeersIndex         { return e.PeersIndex }
func (e DeleteMessages) Peers() *tg.PeersIndex      { return e.PeersIndex }
func (e PinnedMessages) Peers() *tg.PeersIndex      { return e.PeersIndex }
func (e MessageReactions) Peers() *tg.PeersIndex    { return e.PeersIndex }
func (e UserStatus) Peers() *tg.PeersIndex          { return e.PeersIndex }
func (e NewEncryptedMessage) Peers() *tg.PeersIndex { return e.PeersIndex }
func (e RawUpdate) Peers() *tg.PeersIndex           { return e.PeersIndex }

// EventOf - converts update to event, nil for updates which carry no data for subscribers
func EventOf(u tg.Update, peers *tg.PeersIndex) Event {
	if peers == nil {
		peers = tg.NewPeersIndex(nil, nil)
	}

	switch v := u.(type) {
	case tg.UpdateNewMessage:
		return NewMessage{Message: v.Message, PeersIndex: peers}
	case tg.UpdateNewChannelMessage:
		return NewMessage{Message: v.Message, ChannelID: v.GetChannelID(), PeersIndex: peers}
	case tg.UpdateEditMessage:
		return EditMessage{Message: v.Message, PeersIndex: peers}
	case tg.UpdateEditChannelMessage:
		return EditMessage{Message: v.Message, ChannelID: v.GetChannelID(), PeersIndex: peers}
	case tg.UpdateDeleteMessages:
		return DeleteMessages{IDs: v.Messages, PeersIndex: peers}
	case tg.UpdateDeleteChannelMessages:
		return DeleteMessages{ChannelID: v.ChannelID, IDs: v.Messages, PeersIndex: peers}
	case tg.UpdatePinnedMessages:
		return PinnedMessages{Peer: v.Peer, IDs: v.Messages, Pinned: v.Pinned, PeersIndex: peers}
	case tg.UpdatePinnedChannelMessages:
		return PinnedMessages{Peer: tg.PeerChannel{ChannelID: v.ChannelID}, IDs: v.Messages, Pinned: v.Pinned, PeersIndex: peers}
	case tg.UpdateMessageReactions:
		return MessageReactions{Peer: v.Peer, MsgID: v.MsgID, Reactions: v.Reactions, PeersIndex: peers}
	case tg.UpdateUserStatus:
		return UserStatus{UserID: v.UserID, Status: v.Status, PeersIndex: peers}
	case tg.UpdateNewEncryptedMessage:
		return NewEncryptedMessage{Message: v.Message, PeersIndex: peers}
	case tg.UpdateChannelTooLong, nil:
		return nil
	}
	return RawUpdate{Update: u, PeersIndex: peers}
}
