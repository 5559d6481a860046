package proto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/xssnick/tgutils-go/tl"
)

var (
	RPCResultID           = tl.Register(RPCResult{}, "rpc_result#f35c6d01 req_msg_id:long result:Object = RpcResult")
	RPCErrorID            = tl.Register(RPCError{}, "rpc_error#2144ca19 error_code:int error_message:string = RpcError")
	MsgContainerID        = tl.Register(MsgContainer{}, "msg_container#73f1f8dc messages:vector<%Message> = MessageContainer")
	GzipPackedID          = tl.Register(GzipPacked{}, "gzip_packed#3072cfa1 packed_data:bytes = Object")
	MsgsAckID             = tl.Register(MsgsAck{}, "msgs_ack#62d6b459 msg_ids:Vector<long> = MsgsAck")
	BadMsgNotificationID  = tl.Register(BadMsgNotification{}, "bad_msg_notification#a7eff811 bad_msg_id:long bad_msg_seqno:int error_code:int = BadMsgNotification")
	BadServerSaltID       = tl.Register(BadServerSalt{}, "bad_server_salt#edab447b bad_msg_id:long bad_msg_seqno:int error_code:int new_server_salt:long = BadMsgNotification")
	NewSessionCreatedID   = tl.Register(NewSessionCreated{}, "new_session_created#9ec20908 first_msg_id:long unique_id:long server_salt:long = NewSession")
	PongID                = tl.Register(Pong{}, "pong#347773c5 msg_id:long ping_id:long = Pong")
	FutureSaltsID         = tl.Register(FutureSalts{}, "future_salts#ae500895 req_msg_id:long now:int salts:vector<future_salt> = FutureSalts")
	MsgDetailedInfoID     = tl.Register(MsgDetailedInfo{}, "msg_detailed_info#276d3ec6 msg_id:long answer_msg_id:long bytes:int status:int = MsgDetailedInfo")
	MsgNewDetailedInfoID  = tl.Register(MsgNewDetailedInfo{}, "msg_new_detailed_info#809db6df answer_msg_id:long bytes:int status:int = MsgDetailedInfo")
	PingID                = tl.Register(Ping{}, "ping#7abe77ec ping_id:long = Pong")
	PingDelayDisconnectID = tl.Register(PingDelayDisconnect{}, "ping_delay_disconnect#f3427b8c ping_id:long disconnect_delay:int = Pong")
	GetFutureSaltsID      = tl.Register(GetFutureSalts{}, "get_future_salts#b921bd04 num:int = FutureSalts")
)

func init() {
	tl.Register(Message{}, "message msg_id:long seqno:int bytes:int body:Object = Message")
	tl.Register(MsgResendReq{}, "msg_resend_req#7d861a08 msg_ids:Vector<long> = MsgResendReq")
	tl.Register(FutureSalt{}, "future_salt#0949d9dc valid_since:int valid_until:int salt:long = FutureSalt")
}

// RPCResult - answer to request, Result is still serialized and may be gzip_packed or rpc_error
type RPCResult struct {
	ReqMsgID int64  `tl:"long"`
	Result   tl.Raw `tl:"struct"`
}

type RPCError struct {
	Code    int32  `tl:"int"`
	Message string `tl:"string"`
}

type MsgContainer struct {
	Messages []Message `tl:"bare_vector struct"`
}

// Message - element of container, body length is known only from bytes field
type Message struct {
	MsgID int64
	SeqNo int32
	Body  []byte
}

func (m *Message) Serialize(buf *bytes.Buffer) error {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:], uint64(m.MsgID))
	binary.LittleEndian.PutUint32(b[8:], uint32(m.SeqNo))
	binary.LittleEndian.PutUint32(b[12:], uint32(len(m.Body)))
	buf.Write(b[:])
	buf.Write(m.Body)
	return nil
}

func (m *Message) Parse(data []byte) ([]byte, error) {
	if len(data) < 16 {
		return nil, errors.New("not enough bytes for message header")
	}

	m.MsgID = int64(binary.LittleEndian.Uint64(data))
	m.SeqNo = int32(binary.LittleEndian.Uint32(data[8:]))
	ln := int(binary.LittleEndian.Uint32(data[12:]))
	data = data[16:]

	if ln > len(data) || ln%4 != 0 {
		return nil, fmt.Errorf("invalid message length %d", ln)
	}
	m.Body = data[:ln]
	return data[ln:], nil
}

type GzipPacked struct {
	Data []byte `tl:"bytes"`
}

type MsgsAck struct {
	MsgIDs []int64 `tl:"vector long"`
}

type MsgResendReq struct {
	MsgIDs []int64 `tl:"vector long"`
}

type BadMsgNotification struct {
	BadMsgID    int64 `tl:"long"`
	BadMsgSeqNo int32 `tl:"int"`
	ErrorCode   int32 `tl:"int"`
}

// codes of bad_msg_notification
const (
	BadMsgIDTooLow       = 16
	BadMsgIDTooHigh      = 17
	BadMsgIDNotDivisible = 18
	BadMsgIDDuplicate    = 19
	BadMsgTooOld         = 20
	BadMsgSeqNoTooLow    = 32
	BadMsgSeqNoTooHigh   = 33
	BadMsgSeqNoEven      = 34
	BadMsgSeqNoOdd       = 35
	BadMsgServerSalt     = 48
	BadMsgContainer      = 64
)

type BadServerSalt struct {
	BadMsgID      int64 `tl:"long"`
	BadMsgSeqNo   int32 `tl:"int"`
	ErrorCode     int32 `tl:"int"`
	NewServerSalt int64 `tl:"long"`
}

type NewSessionCreated struct {
	FirstMsgID int64 `tl:"long"`
	UniqueID   int64 `tl:"long"`
	ServerSalt int64 `tl:"long"`
}

type Ping struct {
	PingID int64 `tl:"long"`
}

type PingDelayDisconnect struct {
	PingID          int64 `tl:"long"`
	DisconnectDelay int32 `tl:"int"`
}

type Pong struct {
	MsgID  int64 `tl:"long"`
	PingID int64 `tl:"long"`
}

type GetFutureSalts struct {
	Num int32 `tl:"int"`
}

type FutureSalt struct {
	ValidSince int32 `tl:"int"`
	ValidUntil int32 `tl:"int"`
	Salt       int64 `tl:"long"`
}

type FutureSalts struct {
	ReqMsgID int64        `tl:"long"`
	Now      int32        `tl:"int"`
	Salts    []FutureSalt `tl:"bare_vector struct"`
}

type MsgDetailedInfo struct {
	MsgID       int64 `tl:"long"`
	AnswerMsgID int64 `tl:"long"`
	Bytes       int32 `tl:"int"`
	Status      int32 `tl:"int"`
}

type MsgNewDetailedInfo struct {
	AnswerMsgID int64 `tl:"long"`
	Bytes       int32 `tl:"int"`
	Status      int32 `tl:"int"`
}

// IsContentRelated - acks and containers are sent with even seqno and are not acknowledged
func IsContentRelated(id uint32) bool {
	return id != MsgsAckID && id != MsgContainerID
}
