// Package mtproto implements one encrypted MTProto session with a data center:
// key exchange, salts, acks, pings and routing of responses to pending calls.
package mtproto

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xssnick/tgutils-go/crypto"
	"github.com/xssnick/tgutils-go/exchange"
	"github.com/xssnick/tgutils-go/proto"
	"github.com/xssnick/tgutils-go/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Conn - single use connection, after it is dead new one should be created,
// auth key could be passed to it in options
type Conn struct {
	opts   Options
	log    *zap.Logger
	crypto crypto.Provider

	state     atomic.Int32
	used      atomic.Bool
	sessionID atomic.Int64

	tr     *transport.Conn
	cipher *proto.Cipher
	salts  *Salts
	msgID  *proto.MsgIDGen
	seq    proto.SeqNo

	sendMx sync.Mutex

	reqMx   sync.Mutex
	pending map[int64]*pendingCall

	ackCh       chan int64
	saltRefresh chan struct{}

	// staleMx - calls pending when frame with expired salt was rejected,
	// they are resent after salts refresh
	staleMx sync.Mutex
	stale   []int64

	cancel  context.CancelFunc
	closing atomic.Bool
	done    chan struct{}
	err     error
}

type callResult struct {
	data []byte
	err  error
}

type pendingCall struct {
	msgID   int64
	body    []byte
	resends int
	result  chan callResult
}

// deliver - first result wins, call could be failed concurrently by shutdown and resend
func (p *pendingCall) deliver(r callResult) {
	select {
	case p.result <- r:
	default:
	}
}

func New(opts Options) *Conn {
	opts.setDefaults()

	c := &Conn{
		opts:        opts,
		log:         opts.Logger.Named("conn").With(zap.Int("dc", opts.DC)),
		crypto:      opts.Crypto,
		salts:       NewSalts(opts.SaltGrace, opts.Now),
		msgID:       proto.NewMsgIDGen(proto.SideClient, opts.Now),
		pending:     map[int64]*pendingCall{},
		ackCh:       make(chan int64, 256),
		saltRefresh: make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	return c
}

func (c *Conn) DC() int {
	return c.opts.DC
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

// MarkMigrating - connection is going to be replaced by connection to another dc
func (c *Conn) MarkMigrating() {
	c.state.CompareAndSwap(int32(StateAuthenticated), int32(StateMigrating))
}

// AuthKey - key of connection, valid after Connect
func (c *Conn) AuthKey() crypto.AuthKey {
	if c.cipher == nil {
		return c.opts.Key
	}
	return c.cipher.Key()
}

func (c *Conn) Salt() int64 {
	return c.salts.Current()
}

func (c *Conn) SessionID() int64 {
	return c.sessionID.Load()
}

// Done - closed when connection is dead
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err - reason of disconnection, valid after Done is closed
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Connect - dials dc, makes key exchange if there is no key and starts connection loops
func (c *Conn) Connect(ctx context.Context) error {
	if !c.used.CompareAndSwap(false, true) {
		return ErrAlreadyUsed
	}
	c.state.Store(int32(StateKeyExchanging))

	if err := c.connect(ctx); err != nil {
		c.state.Store(int32(StateDisconnected))
		c.err = err
		close(c.done)
		return err
	}
	return nil
}

func (c *Conn) connect(ctx context.Context) error {
	tr, err := c.opts.Dial(ctx, c.opts.Addr, c.opts.Transport)
	if err != nil {
		return transportErr(err)
	}
	c.tr = tr

	key, salt := c.opts.Key, c.opts.Salt
	if key.IsZero() {
		exCtx, cancel := context.WithTimeout(ctx, c.opts.ExchangeTimeout)
		res, err := exchange.NewClient(tr, exchange.ClientOptions{
			Keys:   c.opts.PublicKeys,
			DC:     c.opts.DC,
			Crypto: c.crypto,
			Logger: c.log,
			Now:    c.opts.Now,
		}).Run(exCtx)
		cancel()
		if err != nil {
			_ = tr.Close()
			return fmt.Errorf("key exchange failed: %w", err)
		}

		key, salt = res.Key, res.Salt
		c.msgID.SetOffset(res.TimeOffset)
		c.log.Info("new auth key generated", zap.Binary("key_id", key.ID[:]))

		if c.opts.OnKey != nil {
			c.opts.OnKey(key, salt)
		}
	}

	if salt != 0 {
		c.salts.Set(salt)
	}
	c.cipher = proto.NewCipher(c.crypto, key, proto.SideClient)
	if err = c.newSession(); err != nil {
		_ = tr.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state.Store(int32(StateAuthenticated))

	go c.run(runCtx)

	c.log.Debug("connected", zap.String("addr", c.opts.Addr))
	return nil
}

func (c *Conn) newSession() error {
	var b [8]byte
	if err := c.crypto.RandomFill(b[:]); err != nil {
		return err
	}
	c.sessionID.Store(int64(binary.LittleEndian.Uint64(b[:])))
	c.seq.Reset()
	return nil
}

func (c *Conn) run(ctx context.Context) {
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(c.readLoop)
	g.Go(func() error {
		return c.pingLoop(gCtx)
	})
	g.Go(func() error {
		return c.ackLoop(gCtx)
	})
	g.Go(func() error {
		return c.saltLoop(gCtx)
	})
	g.Go(func() error {
		// unblock read loop
		<-gCtx.Done()
		_ = c.tr.Close()
		return nil
	})

	err := g.Wait()
	if c.closing.Load() || err == nil {
		err = ErrClosed
	}
	c.shutdown(err)
}

func (c *Conn) shutdown(err error) {
	c.state.Store(int32(StateDisconnected))
	c.err = err

	c.reqMx.Lock()
	pending := c.pending
	c.pending = map[int64]*pendingCall{}
	c.reqMx.Unlock()

	for _, p := range pending {
		p.deliver(callResult{err: err})
	}

	if !errors.Is(err, ErrClosed) {
		c.log.Warn("connection is dead", zap.Error(err))
	}
	close(c.done)
}

// Close - stops connection and waits for its loops
func (c *Conn) Close() error {
	if c.cancel == nil {
		return nil
	}

	c.closing.Store(true)
	c.cancel()
	<-c.done
	return nil
}

func (c *Conn) requestSaltRefresh() {
	select {
	case c.saltRefresh <- struct{}{}:
	default:
	}
}

// NewMsgID - next message id of connection, time ordered and strictly increasing
func (c *Conn) NewMsgID() int64 {
	return c.msgID.New()
}

// markStale - remembers calls which could be answered by rejected frame
func (c *Conn) markStale() {
	c.reqMx.Lock()
	ids := make([]int64, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.reqMx.Unlock()

	c.staleMx.Lock()
	c.stale = append(c.stale, ids...)
	c.staleMx.Unlock()
}

// resendStale - resends calls marked before salts refresh, answered ones are already gone from pending
func (c *Conn) resendStale() {
	c.staleMx.Lock()
	ids := c.stale
	c.stale = nil
	c.staleMx.Unlock()

	for _, id := range ids {
		c.resend(id)
	}
}

func (c *Conn) ack(msgID int64) {
	select {
	case c.ackCh <- msgID:
	default:
		c.log.Debug("ack queue is full, skipping", zap.Int64("msg_id", msgID))
	}
}
