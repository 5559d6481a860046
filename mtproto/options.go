package mtproto

import (
	"context"
	"crypto/rsa"
	"time"

	"github.com/xssnick/tgutils-go/crypto"
	"github.com/xssnick/tgutils-go/transport"
	"go.uber.org/zap"
)

// Handler - receives objects which are not service messages, called from read loop,
// so it should not block for long
type Handler interface {
	OnUpdates(data []byte)
	// OnSessionCreated - server created new session, updates sent before could be lost
	OnSessionCreated()
}

type nopHandler struct{}

func (nopHandler) OnUpdates([]byte)  {}
func (nopHandler) OnSessionCreated() {}

type DialFunc func(ctx context.Context, addr string, opts transport.Options) (*transport.Conn, error)

type Options struct {
	DC   int
	Addr string

	// Key - existing auth key, new one is generated when it is zero
	Key  crypto.AuthKey
	Salt int64
	// PublicKeys - server rsa keys for key exchange
	PublicKeys []*rsa.PublicKey
	// OnKey - called when new key is generated, to persist it
	OnKey func(key crypto.AuthKey, salt int64)

	Transport transport.Options
	Dial      DialFunc
	Crypto    crypto.Provider
	Logger    *zap.Logger
	Handler   Handler

	PingInterval        time.Duration
	PingDisconnectDelay time.Duration
	AckInterval         time.Duration
	AckBatch            int
	SaltRefresh         time.Duration
	SaltGrace           time.Duration
	ExchangeTimeout     time.Duration
	// RequestTimeout - used when context of call has no deadline
	RequestTimeout time.Duration
	MaxResend      int

	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.Dial == nil {
		o.Dial = transport.Dial
	}
	if o.Crypto == nil {
		o.Crypto = crypto.Default
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Handler == nil {
		o.Handler = nopHandler{}
	}
	if o.PingInterval == 0 {
		o.PingInterval = 60 * time.Second
	}
	if o.PingDisconnectDelay == 0 {
		o.PingDisconnectDelay = o.PingInterval + 15*time.Second
	}
	if o.AckInterval == 0 {
		o.AckInterval = time.Second
	}
	if o.AckBatch == 0 {
		o.AckBatch = 64
	}
	if o.SaltRefresh == 0 {
		o.SaltRefresh = 10 * time.Minute
	}
	if o.SaltGrace == 0 {
		o.SaltGrace = 2 * time.Minute
	}
	if o.ExchangeTimeout == 0 {
		o.ExchangeTimeout = 30 * time.Second
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 60 * time.Second
	}
	if o.MaxResend == 0 {
		o.MaxResend = 5
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Transport.DC = o.DC
	if o.Transport.Crypto == nil {
		o.Transport.Crypto = o.Crypto
	}
}
