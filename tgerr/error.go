// Package tgerr classifies errors returned by server in rpc_error.
package tgerr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Error - rpc_error returned by server, Type is a message without numeric argument,
// for example FLOOD_WAIT_30 has Type FLOOD_WAIT and Argument 30
type Error struct {
	Code     int
	Message  string
	Type     string
	Argument int
}

const (
	CodeSeeOther     = 303
	CodeBadRequest   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeFlood        = 420
	CodeInternal     = 500
)

const (
	TypeFloodWait        = "FLOOD_WAIT"
	TypeFloodPremiumWait = "FLOOD_PREMIUM_WAIT"
	TypeSlowModeWait     = "SLOWMODE_WAIT"
	TypePhoneMigrate     = "PHONE_MIGRATE"
	TypeNetworkMigrate   = "NETWORK_MIGRATE"
	TypeUserMigrate      = "USER_MIGRATE"
	TypeFileMigrate      = "FILE_MIGRATE"
	TypeStatsMigrate     = "STATS_MIGRATE"
	TypeRandomIDExpired  = "RANDOM_ID_EXPIRED"
	TypeRandomIDDup      = "RANDOM_ID_DUPLICATE"
	TypeMsgIDInvalid     = "MSG_ID_INVALID"
	TypeAuthKeyUnreg     = "AUTH_KEY_UNREGISTERED"
)

var migrateTypes = []string{TypePhoneMigrate, TypeNetworkMigrate, TypeUserMigrate, TypeFileMigrate, TypeStatsMigrate}

var floodTypes = []string{TypeFloodWait, TypeFloodPremiumWait, TypeSlowModeWait}

// staleTypes - errors which are gone after request is rebuilt with a fresh random id
var staleTypes = []string{TypeRandomIDExpired, TypeMsgIDInvalid}

// New - parses message into type and argument
func New(code int, msg string) *Error {
	e := &Error{
		Code:    code,
		Message: msg,
		Type:    msg,
	}

	if i := strings.LastIndexByte(msg, '_'); i > 0 && i < len(msg)-1 {
		if arg, err := strconv.Atoi(msg[i+1:]); err == nil {
			e.Type = msg[:i]
			e.Argument = arg
		}
	}
	return e
}

func (e *Error) Error() string {
	if e.Argument != 0 {
		return fmt.Sprintf("rpc error code %d: %s (%d)", e.Code, e.Type, e.Argument)
	}
	return fmt.Sprintf("rpc error code %d: %s", e.Code, e.Type)
}

// Is - matches errors with same type, so errors.Is(err, &Error{Type: "FLOOD_WAIT"}) works
func (e *Error) Is(err error) bool {
	var t *Error
	if !errors.As(err, &t) {
		return false
	}
	if t.Type != "" && t.Type != e.Type {
		return false
	}
	if t.Code != 0 && t.Code != e.Code {
		return false
	}
	return true
}

// IsOneOf - checks that error type is one of given
func (e *Error) IsOneOf(types ...string) bool {
	for _, t := range types {
		if e.Type == t {
			return true
		}
	}
	return false
}

// As - extracts *Error from chain
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is - checks that err is rpc error with one of types
func Is(err error, types ...string) bool {
	e, ok := As(err)
	if !ok {
		return false
	}
	return e.IsOneOf(types...)
}

// FloodWait - returns duration to wait if error is flood wait
func FloodWait(err error) (time.Duration, bool) {
	e, ok := As(err)
	if !ok || !e.IsOneOf(floodTypes...) {
		return 0, false
	}
	return time.Duration(e.Argument) * time.Second, true
}

// Migrate - returns target dc if error is one of *_MIGRATE_X
func Migrate(err error) (int, bool) {
	e, ok := As(err)
	if !ok || !e.IsOneOf(migrateTypes...) {
		return 0, false
	}
	return e.Argument, true
}

// IsStaleID - request should be rebuilt with a new id and sent again
func IsStaleID(err error) bool {
	return Is(err, staleTypes...)
}
