// Package telegram is a client facade over connections to data centers:
// it keeps primary connection alive, migrates between dcs, retries calls
// and feeds updates into the update pipeline.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xssnick/tgutils-go/mtproto"
	"github.com/xssnick/tgutils-go/rpc"
	"github.com/xssnick/tgutils-go/tg"
	"github.com/xssnick/tgutils-go/tgerr"
	"github.com/xssnick/tgutils-go/tl"
	"github.com/xssnick/tgutils-go/updates"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var ErrFatal = errors.New("client is dead")
var ErrClosed = errors.New("client is closed")
var ErrUnexpectedResult = errors.New("unexpected result")

type Client struct {
	opts Options
	log  *zap.Logger

	mx      sync.RWMutex
	primary int
	conns   map[int]*dcConn
	dialing singleflight.Group
	// switched - signals supervisor that primary connection was replaced
	switched chan struct{}

	// migrateMx - one migration at a time, concurrent callers see already switched primary
	migrateMx sync.Mutex

	dispatcher *rpc.Dispatcher
	updates    *updates.Manager

	fatalOnce sync.Once
	fatalErr  error
	fatal     chan struct{}

	closed atomic.Bool
}

// dcConn - connection with flag of sent initConnection
type dcConn struct {
	conn   *mtproto.Conn
	inited atomic.Bool
}

func New(opts Options) (*Client, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	c := &Client{
		opts:     opts,
		log:      opts.Logger.Named("client"),
		primary:  opts.PrimaryDC,
		conns:    map[int]*dcConn{},
		switched: make(chan struct{}, 1),
		fatal:    make(chan struct{}),
	}

	c.dispatcher = rpc.NewDispatcher(c, rpc.Options{
		Policy:   opts.Policy,
		Migrator: c,
		Logger:   opts.Logger,
		Timeout:  opts.CallTimeout,
	})

	uo := opts.Updates
	uo.Invoker = dispatcherInvoker{c.dispatcher}
	uo.Storage = opts.Storage
	if uo.Logger == nil {
		uo.Logger = opts.Logger
	}
	c.updates = updates.NewManager(uo)

	return c, nil
}

// dispatcherInvoker - difference requests of update pipeline go through retry policy too
type dispatcherInvoker struct {
	d *rpc.Dispatcher
}

func (i dispatcherInvoker) Invoke(ctx context.Context, req, res tl.Serializable) error {
	return i.d.Call(ctx, req, res)
}

func (c *Client) Updates() *updates.Manager {
	return c.updates
}

func (c *Client) Primary() int {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.primary
}

// Fatal - closed when client cannot recover, Err returns reason then
func (c *Client) Fatal() <-chan struct{} {
	return c.fatal
}

func (c *Client) Err() error {
	select {
	case <-c.fatal:
		return c.fatalErr
	default:
		return nil
	}
}

func (c *Client) reportFatal(err error) error {
	c.fatalOnce.Do(func() {
		c.fatalErr = fmt.Errorf("%w: %v", ErrFatal, err)
		c.log.Error("client is dead", zap.Error(err))
		close(c.fatal)
		if c.opts.OnFatal != nil {
			c.opts.OnFatal(c.fatalErr)
		}
	})
	return c.fatalErr
}

// Connect - connects primary dc, stored primary dc is used if exists
func (c *Client) Connect(ctx context.Context) error {
	dc, ok, err := c.opts.Storage.GetPrimaryDC(ctx)
	if err != nil {
		return fmt.Errorf("failed to load primary dc: %w", err)
	}
	if ok {
		if _, known := c.opts.DCs[dc]; known {
			c.mx.Lock()
			c.primary = dc
			c.mx.Unlock()
		}
	}

	_, err = c.conn(ctx, c.Primary())
	return err
}

// Run - connects and keeps client alive until ctx is done or client is dead,
// update pipeline runs inside
func (c *Client) Run(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.updates.Run(gCtx)
	})
	g.Go(func() error {
		return c.supervise(gCtx)
	})
	return g.Wait()
}

// supervise - reconnects primary dc when its connection dies
func (c *Client) supervise(ctx context.Context) error {
	for {
		c.mx.RLock()
		dc := c.primary
		cur := c.conns[dc]
		c.mx.RUnlock()

		if cur == nil {
			if _, err := c.conn(ctx, dc); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.fatal:
			return c.fatalErr
		case <-c.switched:
		case <-cur.conn.Done():
			if c.closed.Load() {
				return nil
			}
			c.log.Info("primary connection is lost, reconnecting", zap.Int("dc", dc), zap.Error(cur.conn.Err()))
			c.drop(dc, cur)
		}
	}
}

// Invoke - one attempt of call on primary dc, implements rpc.Invoker,
// first request of connection is wrapped into initConnection
func (c *Client) Invoke(ctx context.Context, req, res tl.Serializable) error {
	return c.invokeDC(ctx, c.Primary(), req, res)
}

func (c *Client) invokeDC(ctx context.Context, dc int, req, res tl.Serializable) error {
	if c.closed.Load() {
		return ErrClosed
	}

	cur, err := c.conn(ctx, dc)
	if err != nil {
		return err
	}

	q := req
	wrapped := cur.inited.CompareAndSwap(false, true)
	if wrapped {
		q = c.wrap(req)
	}

	err = cur.conn.Invoke(ctx, q, res)
	if err == nil {
		return nil
	}

	if _, isRPC := tgerr.As(err); wrapped && !isRPC {
		// server has not processed initConnection
		cur.inited.Store(false)
	}

	switch {
	case mtproto.NeedsRekey(err):
		c.log.Warn("auth key is invalid, it will be regenerated", zap.Int("dc", dc), zap.Error(err))
		if dErr := c.opts.Storage.DeleteSession(ctx, dc); dErr != nil {
			c.log.Warn("failed to delete session", zap.Int("dc", dc), zap.Error(dErr))
		}
		c.drop(dc, cur)
	case errors.Is(err, mtproto.ErrClosed), errors.Is(err, mtproto.ErrNotConnected):
		c.drop(dc, cur)
		// connection died under the call, policy retries it on new one
		err = &mtproto.TransportError{Err: err}
	default:
		var te *mtproto.TransportError
		if errors.As(err, &te) {
			c.drop(dc, cur)
		}
	}
	return err
}

func (c *Client) wrap(req tl.Serializable) tl.Serializable {
	d := c.opts.Device
	return tg.InvokeWithLayer{
		Layer: tg.Layer,
		Query: tg.InitConnection{
			APIID:          c.opts.APIID,
			DeviceModel:    d.Model,
			SystemVersion:  d.SystemVersion,
			AppVersion:     d.AppVersion,
			SystemLangCode: d.SystemLangCode,
			LangPack:       d.LangPack,
			LangCode:       d.LangCode,
			Query:          req,
		},
	}
}

// Call - invokes request with retry policy, updates from result are fed into pipeline
func (c *Client) Call(ctx context.Context, req, res tl.Serializable, opts ...rpc.CallOption) error {
	if err := c.dispatcher.Call(ctx, req, res, opts...); err != nil {
		return err
	}
	c.feed(res)
	return nil
}

// CallFunc - same as Call, request is built for every attempt
func (c *Client) CallFunc(ctx context.Context, build rpc.BuildFunc, res tl.Serializable, opts ...rpc.CallOption) error {
	if err := c.dispatcher.CallFunc(ctx, build, res, opts...); err != nil {
		return err
	}
	c.feed(res)
	return nil
}

func (c *Client) feed(res tl.Serializable) {
	if u, ok := res.(*tg.UpdatesClass); ok && *u != nil {
		c.updates.Handle(*u)
	}
}

// Close - stops all connections, session salts are persisted
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mx.Lock()
	conns := c.conns
	c.conns = map[int]*dcConn{}
	c.mx.Unlock()

	var err error
	for dc, cur := range conns {
		err = multierr.Append(err, c.saveSession(context.Background(), dc, cur.conn))
		err = multierr.Append(err, cur.conn.Close())
	}
	return err
}
