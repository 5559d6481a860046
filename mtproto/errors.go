package mtproto

import (
	"errors"
	"fmt"

	"github.com/xssnick/tgutils-go/proto"
	"github.com/xssnick/tgutils-go/transport"
)

var ErrClosed = errors.New("connection closed")
var ErrNotConnected = errors.New("connection is not authenticated")
var ErrTooManyResends = errors.New("message was resent too many times")
var ErrAlreadyUsed = errors.New("connection is already used")

type IntegrityError = proto.IntegrityError

// TransportError - socket or framing failure, Code is set when server sent error frame
type TransportError struct {
	Code int32
	Err  error
}

func (e *TransportError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("transport error, code %d", e.Code)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func transportErr(err error) error {
	var pe *transport.ProtocolError
	if errors.As(err, &pe) {
		return &TransportError{Code: pe.Code, Err: err}
	}
	return &TransportError{Err: err}
}

// NeedsRekey - auth key is not valid anymore, new key exchange is required
func NeedsRekey(err error) bool {
	var te *TransportError
	if errors.As(err, &te) && te.Code == -404 {
		return true
	}
	return proto.IsIntegrity(err)
}

// BadMsgError - server rejected message with bad_msg_notification which cannot be fixed by resend
type BadMsgError struct {
	Code int32
}

func (e *BadMsgError) Error() string {
	return fmt.Sprintf("bad msg notification, code %d", e.Code)
}
