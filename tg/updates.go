package tg

import "github.com/xssnick/tgutils-go/tl"

func init() {
	tl.Register(UpdatesTooLong{}, "updatesTooLong#e317af7e = Updates")
	tl.Register(UpdateShort{}, "updateShort#78d4dec1 update:Update date:int = Updates")
	tl.Register(UpdateShortMessage{}, "updateShortMessage flags:# out:flags.1?true id:int user_id:long message:string "+
		"pts:int pts_count:int date:int = Updates")
	tl.Register(UpdateShortChatMessage{}, "updateShortChatMessage flags:# out:flags.1?true id:int from_id:long chat_id:long "+
		"message:string pts:int pts_count:int date:int = Updates")
	tl.Register(UpdateShortSentMessage{}, "updateShortSentMessage flags:# out:flags.1?true id:int pts:int pts_count:int date:int = Updates")
	tl.Register(UpdatesCombined{}, "updatesCombined#725b04c3 updates:Vector<Update> users:Vector<User> chats:Vector<Chat> "+
		"date:int seq_start:int seq:int = Updates")
	tl.Register(Updates{}, "updates#74ae4240 updates:Vector<Update> users:Vector<User> chats:Vector<Chat> date:int seq:int = Updates")

	tl.Register(UpdateNewMessage{}, "updateNewMessage#1f2b0afd message:Message pts:int pts_count:int = Update")
	tl.Register(UpdateEditMessage{}, "updateEditMessage#e40370a3 message:Message pts:int pts_count:int = Update")
	tl.Register(UpdateDeleteMessages{}, "updateDeleteMessages#a20db0e5 messages:Vector<int> pts:int pts_count:int = Update")
	tl.Register(UpdateNewChannelMessage{}, "updateNewChannelMessage#62ba04d9 message:Message pts:int pts_count:int = Update")
	tl.Register(UpdateEditChannelMessage{}, "updateEditChannelMessage#1b3f4df7 message:Message pts:int pts_count:int = Update")
	tl.Register(UpdateDeleteChannelMessages{}, "updateDeleteChannelMessages#c32d5b12 channel_id:long messages:Vector<int> "+
		"pts:int pts_count:int = Update")
	tl.Register(UpdateChannelTooLong{}, "updateChannelTooLong#108d941f flags:# channel_id:long pts:flags.0?int = Update")
	tl.Register(UpdatePinnedMessages{}, "updatePinnedMessages#e40a5f96 flags:# pinned:flags.0?true peer:Peer messages:Vector<int> "+
		"pts:int pts_count:int = Update")
	tl.Register(UpdatePinnedChannelMessages{}, "updatePinnedChannelMessages#5bb98608 flags:# pinned:flags.0?true channel_id:long "+
		"messages:Vector<int> pts:int pts_count:int = Update")
	tl.Register(UpdateMessageReactions{}, "updateMessageReactions flags:# peer:Peer msg_id:int top_msg_id:flags.0?int "+
		"reactions:MessageReactions = Update")
	tl.Register(UpdateUserStatus{}, "updateUserStatus#e5bdf8de user_id:long status:UserStatus = Update")
	tl.Register(UpdateNewEncryptedMessage{}, "updateNewEncryptedMessage#12bcbd9a message:EncryptedMessage qts:int = Update")
}

// UpdatesClass - push from server, it is also returned by methods which change something
type UpdatesClass interface {
	isUpdates()
}

// UpdatesTooLong - too many updates, client should fetch difference
type UpdatesTooLong struct{}

type UpdateShort struct {
	Update Update `tl:"struct boxed"`
	Date   int32  `tl:"int"`
}

type UpdateShortMessage struct {
	Flags    uint32 `tl:"flags"`
	Out      bool   `tl:"?1 true"`
	ID       int32  `tl:"int"`
	UserID   int64  `tl:"long"`
	Message  string `tl:"string"`
	Pts      int32  `tl:"int"`
	PtsCount int32  `tl:"int"`
	Date     int32  `tl:"int"`
}

type UpdateShortChatMessage struct {
	Flags    uint32 `tl:"flags"`
	Out      bool   `tl:"?1 true"`
	ID       int32  `tl:"int"`
	FromID   int64  `tl:"long"`
	ChatID   int64  `tl:"long"`
	Message  string `tl:"string"`
	Pts      int32  `tl:"int"`
	PtsCount int32  `tl:"int"`
	Date     int32  `tl:"int"`
}

type UpdateShortSentMessage struct {
	Flags    uint32 `tl:"flags"`
	Out      bool   `tl:"?1 true"`
	ID       int32  `tl:"int"`
	Pts      int32  `tl:"int"`
	PtsCount int32  `tl:"int"`
	Date     int32  `tl:"int"`
}

type UpdatesCombined struct {
	Updates  []Update    `tl:"vector struct boxed"`
	Users    []UserClass `tl:"vector struct boxed"`
	Chats    []ChatClass `tl:"vector struct boxed"`
	Date     int32       `tl:"int"`
	SeqStart int32       `tl:"int"`
	Seq      int32       `tl:"int"`
}

type Updates struct {
	Updates []Update    `tl:"vector struct boxed"`
	Users   []UserClass `tl:"vector struct boxed"`
	Chats   []ChatClass `tl:"vector struct boxed"`
	Date    int32       `tl:"int"`
	Seq     int32       `tl:"int"`
}

func (UpdatesTooLong) isUpdates()         {}
func (UpdateShort) isUpdates()            {}
func (UpdateShortMessage) isUpdates()     {}
func (UpdateShortChatMessage) isUpdates() {}
func (UpdateShortSentMessage) isUpdates() {}
func (UpdatesCombined) isUpdates()        {}
func (Updates) isUpdates()                {}

type Update interface {
	isUpdate()
}

// PtsUpdate - update which changes pts of global or channel scope
type PtsUpdate interface {
	Update
	GetPts() (pts, count int32)
}

// ChannelUpdate - update of channel scope
type ChannelUpdate interface {
	PtsUpdate
	GetChannelID() int64
}

type UpdateNewMessage struct {
	Message  MessageClass `tl:"struct boxed"`
	Pts      int32        `tl:"int"`
	PtsCount int32        `tl:"int"`
}

type UpdateEditMessage struct {
	Message  MessageClass `tl:"struct boxed"`
	Pts      int32        `tl:"int"`
	PtsCount int32        `tl:"int"`
}

type UpdateDeleteMessages struct {
	Messages []int32 `tl:"vector int"`
	Pts      int32   `tl:"int"`
	PtsCount int32   `tl:"int"`
}

type UpdateNewChannelMessage struct {
	Message  MessageClass `tl:"struct boxed"`
	Pts      int32        `tl:"int"`
	PtsCount int32        `tl:"int"`
}

type UpdateEditChannelMessage struct {
	Message  MessageClass `tl:"struct boxed"`
	Pts      int32        `tl:"int"`
	PtsCount int32        `tl:"int"`
}

type UpdateDeleteChannelMessages struct {
	ChannelID int64   `tl:"long"`
	Messages  []int32 `tl:"vector int"`
	Pts       int32   `tl:"int"`
	PtsCount  int32   `tl:"int"`
}

// UpdateChannelTooLong - gap in channel is too big, difference should be fetched
type UpdateChannelTooLong struct {
	Flags     uint32 `tl:"flags"`
	ChannelID int64  `tl:"long"`
	Pts       int32  `tl:"?0 int"`
}

type UpdatePinnedMessages struct {
	Flags    uint32  `tl:"flags"`
	Pinned   bool    `tl:"?0 true"`
	Peer     Peer    `tl:"struct boxed"`
	Messages []int32 `tl:"vector int"`
	Pts      int32   `tl:"int"`
	PtsCount int32   `tl:"int"`
}

type UpdatePinnedChannelMessages struct {
	Flags     uint32  `tl:"flags"`
	Pinned    bool    `tl:"?0 true"`
	ChannelID int64   `tl:"long"`
	Messages  []int32 `tl:"vector int"`
	Pts       int32   `tl:"int"`
	PtsCount  int32   `tl:"int"`
}

type UpdateMessageReactions struct {
	Flags     uint32           `tl:"flags"`
	Peer      Peer             `tl:"struct boxed"`
	MsgID     int32            `tl:"int"`
	TopMsgID  int32            `tl:"?0 int"`
	Reactions MessageReactions `tl:"struct boxed"`
}

type UpdateUserStatus struct {
	UserID int64      `tl:"long"`
	Status UserStatus `tl:"struct boxed"`
}

// UpdateNewEncryptedMessage - secret chat message, ordered by qts
type UpdateNewEncryptedMessage struct {
	Message EncryptedMessage `tl:"struct boxed"`
	Qts     int32            `tl:"int"`
}

func (UpdateNewMessage) isUpdate()            {}
func (UpdateEditMessage) isUpdate()           {}
func (UpdateDeleteMessages) isUpdate()        {}
func (UpdateNewChannelMessage) isUpdate()     {}
func (UpdateEditChannelMessage) isUpdate()    {}
func (UpdateDeleteChannelMessages) isUpdate() {}
func (UpdateChannelTooLong) isUpdate()        {}
func (UpdatePinnedMessages) isUpdate()        {}
func (UpdatePinnedChannelMessages) isUpdate() {}
func (UpdateMessageReactions) isUpdate()      {}
func (UpdateUserStatus) isUpdate()            {}
func (UpdateNewEncryptedMessage) isUpdate()   {}

func (u UpdateNewMessage) GetPts() (int32, int32)            { return u.Pts, u.PtsCount }
func (u UpdateEditMessage) GetPts() (int32, int32)           { return u.Pts, u.PtsCount }
func (u UpdateDeleteMessages) GetPts() (int32, int32)        { return u.Pts, u.PtsCount }
func (u UpdatePinnedMessages) GetPts() (int32, int32)        { return u.Pts, u.PtsCount }
func (u UpdateNewChannelMessage) GetPts() (int32, int32)     { return u.Pts, u.PtsCount }
func (u UpdateEditChannelMessage) GetPts() (int32, int32)    { return u.Pts, u.PtsCount }
func (u UpdateDeleteChannelMessages) GetPts() (int32, int32) { return u.Pts, u.PtsCount }
func (u UpdatePinnedChannelMessages) GetPts() (int32, int32) { return u.Pts, u.PtsCount }

func (u UpdateNewChannelMessage) GetChannelID() int64     { return channelOfMessage(u.Message) }
func (u UpdateEditChannelMessage) GetChannelID() int64    { return channelOfMessage(u.Message) }
func (u UpdateDeleteChannelMessages) GetChannelID() int64 { return u.ChannelID }
func (u UpdatePinnedChannelMessages) GetChannelID() int64 { return u.ChannelID }

func channelOfMessage(m MessageClass) int64 {
	var peer Peer
	switch v := m.(type) {
	case Message:
		peer = v.PeerID
	case MessageEmpty:
		peer = v.PeerID
	}
	if ch, ok := peer.(PeerChannel); ok {
		return ch.ChannelID
	}
	return 0
}
