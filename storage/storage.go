// Package storage persists auth keys, salts and update state,
// so session survives restarts and updates are not lost.
package storage

import (
	"context"
	"errors"

	"github.com/xssnick/tgutils-go/crypto"
	"github.com/xssnick/tgutils-go/updates"
)

var ErrInvalidSession = errors.New("invalid stored session")

// Session - auth key of one datacenter
type Session struct {
	DC   int
	Key  crypto.AuthKey
	Salt int64
}

type SessionStorage interface {
	GetSession(ctx context.Context, dc int) (Session, bool, error)
	SetSession(ctx context.Context, s Session) error
	DeleteSession(ctx context.Context, dc int) error
	// GetPrimaryDC - dc where account lives, it changes on migration
	GetPrimaryDC(ctx context.Context) (int, bool, error)
	SetPrimaryDC(ctx context.Context, dc int) error
}

// Storage - everything client needs to persist
type Storage interface {
	SessionStorage
	updates.StateStorage
}
