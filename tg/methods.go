package tg

import "github.com/xssnick/tgutils-go/tl"

func init() {
	tl.Register(UpdatesGetState{}, "updates.getState#edd4882a = updates.State")
	tl.Register(UpdatesState{}, "updates.state#a56c2a3e pts:int qts:int date:int seq:int unread_count:int = updates.State")

	tl.Register(UpdatesGetDifference{}, "updates.getDifference#19c2f763 flags:# pts:int pts_limit:flags.1?int "+
		"pts_total_limit:flags.0?int date:int qts:int qts_limit:flags.2?int = updates.Difference")
	tl.Register(DifferenceEmpty{}, "updates.differenceEmpty#5d75a138 date:int seq:int = updates.Difference")
	tl.Register(Difference{}, "updates.difference#f49ca0 new_messages:Vector<Message> new_encrypted_messages:Vector<EncryptedMessage> "+
		"other_updates:Vector<Update> chats:Vector<Chat> users:Vector<User> state:updates.State = updates.Difference")
	tl.Register(DifferenceSlice{}, "updates.differenceSlice#a8fb1981 new_messages:Vector<Message> new_encrypted_messages:Vector<EncryptedMessage> "+
		"other_updates:Vector<Update> chats:Vector<Chat> users:Vector<User> intermediate_state:updates.State = updates.Difference")
	tl.Register(DifferenceTooLong{}, "updates.differenceTooLong#4afe8f6d pts:int = updates.Difference")

	tl.Register(ChannelMessagesFilterEmpty{}, "channelMessagesFilterEmpty#94d42ee7 = ChannelMessagesFilter")
	tl.Register(UpdatesGetChannelDifference{}, "updates.getChannelDifference#3173d78 flags:# force:flags.0?true channel:InputChannel "+
		"filter:ChannelMessagesFilter pts:int limit:int = updates.ChannelDifference")
	tl.Register(ChannelDifferenceEmpty{}, "updates.channelDifferenceEmpty#3e11affb flags:# final:flags.0?true pts:int "+
		"timeout:flags.1?int = updates.ChannelDifference")
	tl.Register(ChannelDifferenceTooLong{}, "updates.channelDifferenceTooLong#a4bcc6fe flags:# final:flags.0?true timeout:flags.1?int "+
		"dialog:Dialog messages:Vector<Message> chats:Vector<Chat> users:Vector<User> = updates.ChannelDifference")
	tl.Register(ChannelDifference{}, "updates.channelDifference#2064674e flags:# final:flags.0?true pts:int timeout:flags.1?int "+
		"new_messages:Vector<Message> other_updates:Vector<Update> chats:Vector<Chat> users:Vector<User> = updates.ChannelDifference")

	tl.Register(MessagesSendPaidReaction{}, "messages.sendPaidReaction flags:# peer:InputPeer msg_id:int count:int random_id:long "+
		"private:flags.0?Bool = Updates")
	tl.Register(MessagesUnpinAllMessages{}, "messages.unpinAllMessages flags:# peer:InputPeer top_msg_id:flags.0?int = messages.AffectedHistory")
	tl.Register(MessagesAffectedHistory{}, "messages.affectedHistory#b45c69d1 pts:int pts_count:int offset:int = messages.AffectedHistory")

	tl.Register(AuthExportAuthorization{}, "auth.exportAuthorization#e5bfffcd dc_id:int = auth.ExportedAuthorization")
	tl.Register(AuthExportedAuthorization{}, "auth.exportedAuthorization#b434e2b8 id:long bytes:bytes = auth.ExportedAuthorization")
	tl.Register(AuthImportAuthorization{}, "auth.importAuthorization#a57a7dad id:long bytes:bytes = auth.Authorization")
	tl.Register(AuthAuthorization{}, "auth.authorization flags:# user:User = auth.Authorization")

	tl.Register(HelpGetNearestDC{}, "help.getNearestDc#1fb33026 = NearestDc")
	tl.Register(NearestDC{}, "nearestDc#8e1a1775 country:string this_dc:int nearest_dc:int = NearestDc")

	tl.Register(InvokeWithLayer{}, "invokeWithLayer#da9b0d0d {X:Type} layer:int query:!X = X")
	tl.Register(InitConnection{}, "initConnection#c1cd5ea9 {X:Type} flags:# api_id:int device_model:string system_version:string "+
		"app_version:string system_lang_code:string lang_pack:string lang_code:string query:!X = X")
}

type UpdatesGetState struct{}

type UpdatesState struct {
	Pts         int32 `tl:"int"`
	Qts         int32 `tl:"int"`
	Date        int32 `tl:"int"`
	Seq         int32 `tl:"int"`
	UnreadCount int32 `tl:"int"`
}

type UpdatesGetDifference struct {
	Flags         uint32 `tl:"flags"`
	Pts           int32  `tl:"int"`
	PtsLimit      int32  `tl:"?1 int"`
	PtsTotalLimit int32  `tl:"?0 int"`
	Date          int32  `tl:"int"`
	Qts           int32  `tl:"int"`
	QtsLimit      int32  `tl:"?2 int"`
}

type DifferenceClass interface {
	isDifference()
}

type DifferenceEmpty struct {
	Date int32 `tl:"int"`
	Seq  int32 `tl:"int"`
}

type Difference struct {
	NewMessages          []MessageClass     `tl:"vector struct boxed"`
	NewEncryptedMessages []EncryptedMessage `tl:"vector struct boxed"`
	OtherUpdates         []Update           `tl:"vector struct boxed"`
	Chats                []ChatClass        `tl:"vector struct boxed"`
	Users                []UserClass        `tl:"vector struct boxed"`
	State                UpdatesState       `tl:"struct boxed"`
}

// DifferenceSlice - part of difference, next part should be requested from IntermediateState
type DifferenceSlice struct {
	NewMessages          []MessageClass     `tl:"vector struct boxed"`
	NewEncryptedMessages []EncryptedMessage `tl:"vector struct boxed"`
	OtherUpdates         []Update           `tl:"vector struct boxed"`
	Chats                []ChatClass        `tl:"vector struct boxed"`
	Users                []UserClass        `tl:"vector struct boxed"`
	IntermediateState    UpdatesState       `tl:"struct boxed"`
}

// DifferenceTooLong - difference is too big, state should be reset to Pts
type DifferenceTooLong struct {
	Pts int32 `tl:"int"`
}

func (DifferenceEmpty) isDifference()   {}
func (Difference) isDifference()        {}
func (DifferenceSlice) isDifference()   {}
func (DifferenceTooLong) isDifference() {}

type ChannelMessagesFilterEmpty struct{}

type UpdatesGetChannelDifference struct {
	Flags   uint32                     `tl:"flags"`
	Force   bool                       `tl:"?0 true"`
	Channel InputChannel               `tl:"struct boxed"`
	Filter  ChannelMessagesFilterEmpty `tl:"struct boxed"`
	Pts     int32                      `tl:"int"`
	Limit   int32                      `tl:"int"`
}

type ChannelDifferenceClass interface {
	isChannelDifference()
	IsFinal() bool
}

type ChannelDifferenceEmpty struct {
	Flags   uint32 `tl:"flags"`
	Final   bool   `tl:"?0 true"`
	Pts     int32  `tl:"int"`
	Timeout int32  `tl:"?1 int"`
}

type ChannelDifferenceTooLong struct {
	Flags    uint32         `tl:"flags"`
	Final    bool           `tl:"?0 true"`
	Timeout  int32          `tl:"?1 int"`
	Dialog   Dialog         `tl:"struct boxed"`
	Messages []MessageClass `tl:"vector struct boxed"`
	Chats    []ChatClass    `tl:"vector struct boxed"`
	Users    []UserClass    `tl:"vector struct boxed"`
}

type ChannelDifference struct {
	Flags        uint32         `tl:"flags"`
	Final        bool           `tl:"?0 true"`
	Pts          int32          `tl:"int"`
	Timeout      int32          `tl:"?1 int"`
	NewMessages  []MessageClass `tl:"vector struct boxed"`
	OtherUpdates []Update       `tl:"vector struct boxed"`
	Chats        []ChatClass    `tl:"vector struct boxed"`
	Users        []UserClass    `tl:"vector struct boxed"`
}

func (ChannelDifferenceEmpty) isChannelDifference()   {}
func (ChannelDifferenceTooLong) isChannelDifference() {}
func (ChannelDifference) isChannelDifference()        {}

func (d ChannelDifferenceEmpty) IsFinal() bool   { return d.Final }
func (d ChannelDifferenceTooLong) IsFinal() bool { return d.Final }
func (d ChannelDifference) IsFinal() bool        { return d.Final }

type MessagesSendPaidReaction struct {
	Flags    uint32    `tl:"flags"`
	Peer     InputPeer `tl:"struct boxed"`
	MsgID    int32     `tl:"int"`
	Count    int32     `tl:"int"`
	RandomID int64     `tl:"long"`
	// Private - it is Bool, so flag is set only when it is true
	Private bool `tl:"?0 bool"`
}

type MessagesUnpinAllMessages struct {
	Flags    uint32    `tl:"flags"`
	Peer     InputPeer `tl:"struct boxed"`
	TopMsgID int32     `tl:"?0 int"`
}

type MessagesAffectedHistory struct {
	Pts      int32 `tl:"int"`
	PtsCount int32 `tl:"int"`
	Offset   int32 `tl:"int"`
}

type AuthExportAuthorization struct {
	DCID int32 `tl:"int"`
}

type AuthExportedAuthorization struct {
	ID    int64  `tl:"long"`
	Bytes []byte `tl:"bytes"`
}

type AuthImportAuthorization struct {
	ID    int64  `tl:"long"`
	Bytes []byte `tl:"bytes"`
}

type AuthAuthorization struct {
	Flags uint32    `tl:"flags"`
	User  UserClass `tl:"struct boxed"`
}

type HelpGetNearestDC struct{}

type NearestDC struct {
	Country   string `tl:"string"`
	ThisDC    int32  `tl:"int"`
	NearestDC int32  `tl:"int"`
}

type InvokeWithLayer struct {
	Layer int32           `tl:"int"`
	Query tl.Serializable `tl:"struct boxed"`
}

// InitConnection - should wrap first request of connection, so server knows client parameters
type InitConnection struct {
	Flags          uint32          `tl:"flags"`
	APIID          int32           `tl:"int"`
	DeviceModel    string          `tl:"string"`
	SystemVersion  string          `tl:"string"`
	AppVersion     string          `tl:"string"`
	SystemLangCode string          `tl:"string"`
	LangPack       string          `tl:"string"`
	LangCode       string          `tl:"string"`
	Query          tl.Serializable `tl:"struct boxed"`
}
