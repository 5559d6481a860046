package tg

import "github.com/xssnick/tgutils-go/tl"

func init() {
	tl.Register(UserEmpty{}, "userEmpty#d3bc4b7a id:long = User")
	tl.Register(User{}, "user flags:# self:flags.10?true bot:flags.14?true id:long access_hash:flags.0?long "+
		"first_name:flags.1?string last_name:flags.2?string username:flags.3?string phone:flags.4?string = User")

	tl.Register(ChatEmpty{}, "chatEmpty#29562865 id:long = Chat")
	tl.Register(Chat{}, "chat flags:# id:long title:string participants_count:int date:int = Chat")
	tl.Register(ChatForbidden{}, "chatForbidden#6592a1a7 id:long title:string = Chat")
	tl.Register(Channel{}, "channel flags:# broadcast:flags.5?true megagroup:flags.8?true id:long "+
		"access_hash:flags.13?long title:string username:flags.6?string date:int = Chat")
	tl.Register(ChannelForbidden{}, "channelForbidden flags:# broadcast:flags.5?true id:long access_hash:long title:string = Chat")

	tl.Register(MessageEmpty{}, "messageEmpty flags:# id:int peer_id:flags.0?Peer = Message")
	tl.Register(Message{}, "message flags:# out:flags.1?true pinned:flags.24?true id:int from_id:flags.8?Peer "+
		"peer_id:Peer date:int message:string edit_date:flags.15?int = Message")

	tl.Register(EncryptedMessage{}, "encryptedMessage#ed18c118 random_id:long chat_id:int date:int bytes:bytes = EncryptedMessage")

	tl.Register(UserStatusEmpty{}, "userStatusEmpty#9d05049 = UserStatus")
	tl.Register(UserStatusOnline{}, "userStatusOnline#edb93949 expires:int = UserStatus")
	tl.Register(UserStatusOffline{}, "userStatusOffline#8c703f was_online:int = UserStatus")

	tl.Register(ReactionEmoji{}, "reactionEmoji#1b2286b8 emoticon:string = Reaction")
	tl.Register(ReactionPaid{}, "reactionPaid#523da4eb = Reaction")
	tl.Register(ReactionCount{}, "reactionCount#a3d1cb80 flags:# chosen_order:flags.0?int reaction:Reaction count:int = ReactionCount")
	tl.Register(MessageReactions{}, "messageReactions flags:# min:flags.0?true results:Vector<ReactionCount> = MessageReactions")

	tl.Register(Dialog{}, "dialog flags:# pinned:flags.2?true peer:Peer top_message:int unread_count:int pts:flags.0?int = Dialog")
}

type UserClass interface {
	isUser()
	GetID() int64
}

type UserEmpty struct {
	ID int64 `tl:"long"`
}

type User struct {
	Flags      uint32 `tl:"flags"`
	Self       bool   `tl:"?10 true"`
	Bot        bool   `tl:"?14 true"`
	ID         int64  `tl:"long"`
	AccessHash int64  `tl:"?0 long"`
	FirstName  string `tl:"?1 string"`
	LastName   string `tl:"?2 string"`
	Username   string `tl:"?3 string"`
	Phone      string `tl:"?4 string"`
}

func (UserEmpty) isUser()        {}
func (u UserEmpty) GetID() int64 { return u.ID }
func (User) isUser()             {}
func (u User) GetID() int64      { return u.ID }

// ChatClass - basic groups and channels
type ChatClass interface {
	isChat()
	// MarkedID - id in common peer id space
	MarkedID() int64
}

type ChatEmpty struct {
	ID int64 `tl:"long"`
}

type Chat struct {
	Flags             uint32 `tl:"flags"`
	ID                int64  `tl:"long"`
	Title             string `tl:"string"`
	ParticipantsCount int32  `tl:"int"`
	Date              int32  `tl:"int"`
}

type ChatForbidden struct {
	ID    int64  `tl:"long"`
	Title string `tl:"string"`
}

type Channel struct {
	Flags      uint32 `tl:"flags"`
	Broadcast  bool   `tl:"?5 true"`
	Megagroup  bool   `tl:"?8 true"`
	ID         int64  `tl:"long"`
	AccessHash int64  `tl:"?13 long"`
	Title      string `tl:"string"`
	Username   string `tl:"?6 string"`
	Date       int32  `tl:"int"`
}

type ChannelForbidden struct {
	Flags      uint32 `tl:"flags"`
	Broadcast  bool   `tl:"?5 true"`
	ID         int64  `tl:"long"`
	AccessHash int64  `tl:"long"`
	Title      string `tl:"string"`
}

func (ChatEmpty) isChat()        {}
func (ChatForbidden) isChat()    {}
func (Chat) isChat()             {}
func (Channel) isChat()          {}
func (ChannelForbidden) isChat() {}

func (c ChatEmpty) MarkedID() int64        { return -c.ID }
func (c Chat) MarkedID() int64             { return -c.ID }
func (c ChatForbidden) MarkedID() int64    { return -c.ID }
func (c Channel) MarkedID() int64          { return zeroChannelID - c.ID }
func (c ChannelForbidden) MarkedID() int64 { return zeroChannelID - c.ID }

type MessageClass interface {
	isMessage()
	GetID() int32
}

type MessageEmpty struct {
	Flags  uint32 `tl:"flags"`
	ID     int32  `tl:"int"`
	PeerID Peer   `tl:"?0 struct boxed"`
}

type Message struct {
	Flags    uint32 `tl:"flags"`
	Out      bool   `tl:"?1 true"`
	Pinned   bool   `tl:"?24 true"`
	ID       int32  `tl:"int"`
	FromID   Peer   `tl:"?8 struct boxed"`
	PeerID   Peer   `tl:"struct boxed"`
	Date     int32  `tl:"int"`
	Message  string `tl:"string"`
	EditDate int32  `tl:"?15 int"`
}

func (MessageEmpty) isMessage()     {}
func (m MessageEmpty) GetID() int32 { return m.ID }
func (Message) isMessage()          {}
func (m Message) GetID() int32      { return m.ID }

type EncryptedMessage struct {
	RandomID int64  `tl:"long"`
	ChatID   int32  `tl:"int"`
	Date     int32  `tl:"int"`
	Bytes    []byte `tl:"bytes"`
}

type UserStatus interface {
	isUserStatus()
}

type UserStatusEmpty struct{}

type UserStatusOnline struct {
	Expires int32 `tl:"int"`
}

type UserStatusOffline struct {
	WasOnline int32 `tl:"int"`
}

func (UserStatusEmpty) isUserStatus()   {}
func (UserStatusOnline) isUserStatus()  {}
func (UserStatusOffline) isUserStatus() {}

type Reaction interface {
	isReaction()
}

type ReactionEmoji struct {
	Emoticon string `tl:"string"`
}

// ReactionPaid - reaction paid with stars
type ReactionPaid struct{}

func (ReactionEmoji) isReaction() {}
func (ReactionPaid) isReaction()  {}

type ReactionCount struct {
	Flags       uint32   `tl:"flags"`
	ChosenOrder int32    `tl:"?0 int"`
	Reaction    Reaction `tl:"struct boxed"`
	Count       int32    `tl:"int"`
}

type MessageReactions struct {
	Flags   uint32          `tl:"flags"`
	Min     bool            `tl:"?0 true"`
	Results []ReactionCount `tl:"vector struct boxed"`
}

type Dialog struct {
	Flags       uint32 `tl:"flags"`
	Pinned      bool   `tl:"?2 true"`
	Peer        Peer   `tl:"struct boxed"`
	TopMessage  int32  `tl:"int"`
	UnreadCount int32  `tl:"int"`
	Pts         int32  `tl:"?0 int"`
}
