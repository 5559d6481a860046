// Package rpc turns method invocations into calls over mtproto connection
// and applies retry policy to server errors.
package rpc

import (
	"errors"
	"time"

	"github.com/xssnick/tgutils-go/mtproto"
	"github.com/xssnick/tgutils-go/tgerr"
)

type Action int

const (
	// ActionReturn - error is returned to caller as is
	ActionReturn Action = iota
	// ActionRetry - request is rebuilt and sent again right now
	ActionRetry
	// ActionWait - retry after Decision.Wait
	ActionWait
	// ActionMigrate - switch to Decision.DC and retry
	ActionMigrate
	// ActionExhausted - error is retryable, but attempts are over
	ActionExhausted
)

func (a Action) String() string {
	switch a {
	case ActionReturn:
		return "return"
	case ActionRetry:
		return "retry"
	case ActionWait:
		return "wait"
	case ActionMigrate:
		return "migrate"
	case ActionExhausted:
		return "exhausted"
	}
	return "unknown"
}

type Decision struct {
	Action Action
	Wait   time.Duration
	DC     int
}

// Attempts - failures of each class, including the one being decided
type Attempts struct {
	Stale     int
	Flood     int
	Migrate   int
	Transport int
}

// RetryPolicy - what to do with failed call, zero value never retries
type RetryPolicy struct {
	// StaleIDAttempts - total attempts for a call which fails with stale random or message id
	StaleIDAttempts int
	// FloodWaitRetries - retries after sleeping for flood wait
	FloodWaitRetries int
	// MaxFloodWait - longer flood waits are returned to caller, 0 is no limit
	MaxFloodWait time.Duration
	// MigrateRetries - how many times call could follow dc redirect
	MigrateRetries int
	// TransportRetries - how many times call is sent again after connection was lost
	TransportRetries int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		StaleIDAttempts:  3,
		FloodWaitRetries: 1,
		MaxFloodWait:     time.Minute,
		MigrateRetries:   2,
		TransportRetries: 3,
	}
}

// Class - retry class of error, counters of Attempts are incremented for it
type Class int

const (
	ClassOther Class = iota
	ClassStale
	ClassFlood
	ClassMigrate
	ClassTransport
)

func Classify(err error) Class {
	if tgerr.IsStaleID(err) {
		return ClassStale
	}
	if _, ok := tgerr.FloodWait(err); ok {
		return ClassFlood
	}
	if _, ok := tgerr.Migrate(err); ok {
		return ClassMigrate
	}

	var te *mtproto.TransportError
	if errors.As(err, &te) || mtproto.NeedsRekey(err) {
		return ClassTransport
	}
	return ClassOther
}

func (a *Attempts) inc(c Class) {
	switch c {
	case ClassStale:
		a.Stale++
	case ClassFlood:
		a.Flood++
	case ClassMigrate:
		a.Migrate++
	case ClassTransport:
		a.Transport++
	}
}

// Decide - classifies error and decides what to do with failed call
func (p RetryPolicy) Decide(err error, attempts Attempts) Decision {
	switch Classify(err) {
	case ClassStale:
		if attempts.Stale < p.StaleIDAttempts {
			return Decision{Action: ActionRetry}
		}
		return Decision{Action: ActionExhausted}
	case ClassFlood:
		wait, _ := tgerr.FloodWait(err)
		if p.MaxFloodWait > 0 && wait > p.MaxFloodWait {
			return Decision{Action: ActionReturn}
		}
		if attempts.Flood > p.FloodWaitRetries {
			return Decision{Action: ActionReturn}
		}
		return Decision{Action: ActionWait, Wait: wait}
	case ClassMigrate:
		dc, _ := tgerr.Migrate(err)
		if attempts.Migrate > p.MigrateRetries || dc <= 0 {
			return Decision{Action: ActionReturn}
		}
		return Decision{Action: ActionMigrate, DC: dc}
	case ClassTransport:
		if attempts.Transport > p.TransportRetries {
			return Decision{Action: ActionExhausted}
		}
		return Decision{Action: ActionRetry}
	}
	return Decision{Action: ActionReturn}
}
