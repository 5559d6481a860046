package telegram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sethvargo/go-retry"
	"github.com/xssnick/tgutils-go/crypto"
	"github.com/xssnick/tgutils-go/mtproto"
	"github.com/xssnick/tgutils-go/storage"
	"go.uber.org/zap"
)

// connHandler - routes updates of primary connection into pipeline,
// other dcs send nothing useful for account state
type connHandler struct {
	c  *Client
	dc int
}

func (h connHandler) OnUpdates(data []byte) {
	if h.c.Primary() == h.dc {
		h.c.updates.OnUpdates(data)
	}
}

func (h connHandler) OnSessionCreated() {
	if h.c.Primary() == h.dc {
		h.c.updates.OnSessionCreated()
	}
}

// conn - returns alive connection to dc, dials it if there is none,
// concurrent callers wait for the same dial
func (c *Client) conn(ctx context.Context, dc int) (*dcConn, error) {
	c.mx.RLock()
	cur := c.conns[dc]
	c.mx.RUnlock()

	if cur != nil && cur.conn.State() != mtproto.StateDisconnected {
		return cur, nil
	}

	select {
	case <-c.fatal:
		return nil, c.fatalErr
	default:
	}

	v, err, _ := c.dialing.Do(strconv.Itoa(dc), func() (any, error) {
		c.mx.RLock()
		cur := c.conns[dc]
		c.mx.RUnlock()
		if cur != nil && cur.conn.State() != mtproto.StateDisconnected {
			return cur, nil
		}

		conn, err := c.dial(ctx, dc)
		if err != nil {
			return nil, err
		}

		cur = &dcConn{conn: conn}
		c.mx.Lock()
		if c.closed.Load() {
			c.mx.Unlock()
			_ = conn.Close()
			return nil, ErrClosed
		}
		c.conns[dc] = cur
		c.mx.Unlock()
		return cur, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*dcConn), nil
}

// dial - connects dc with backoff, key is regenerated when server does not know it,
// exhausted backoff makes client dead
func (c *Client) dial(ctx context.Context, dc int) (*mtproto.Conn, error) {
	addr, ok := c.opts.DCs[dc]
	if !ok {
		return nil, fmt.Errorf("unknown dc %d", dc)
	}
	if c.opts.ProxyAddr != "" {
		addr = c.opts.ProxyAddr
	}

	var conn *mtproto.Conn
	attempt := 0
	err := retry.Do(ctx, c.opts.Reconnect(), func(ctx context.Context) error {
		attempt++

		sess, ok, err := c.opts.Storage.GetSession(ctx, dc)
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}

		o := c.opts.Conn
		o.DC, o.Addr = dc, addr
		o.PublicKeys = c.opts.PublicKeys
		o.Transport = c.opts.Transport
		o.Dial = c.opts.Dial
		o.Logger = c.opts.Logger
		o.Handler = connHandler{c: c, dc: dc}
		o.OnKey = func(key crypto.AuthKey, salt int64) {
			if err := c.opts.Storage.SetSession(context.Background(), storage.Session{DC: dc, Key: key, Salt: salt}); err != nil {
				c.log.Warn("failed to store session", zap.Int("dc", dc), zap.Error(err))
			}
		}
		if ok {
			o.Key, o.Salt = sess.Key, sess.Salt
		}

		cn := mtproto.New(o)
		dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
		err = cn.Connect(dialCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if mtproto.NeedsRekey(err) {
				if dErr := c.opts.Storage.DeleteSession(ctx, dc); dErr != nil {
					return fmt.Errorf("failed to delete session: %w", dErr)
				}
			}
			c.log.Warn("failed to connect", zap.Int("dc", dc), zap.Int("attempt", attempt), zap.Error(err))
			return retry.RetryableError(err)
		}

		conn = cn
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, c.reportFatal(fmt.Errorf("failed to connect dc %d: %w", dc, err))
	}

	c.log.Debug("dc connected", zap.Int("dc", dc), zap.Int("attempts", attempt))
	return conn, nil
}

// drop - forgets connection if it is still registered for dc and closes it
func (c *Client) drop(dc int, cur *dcConn) {
	c.mx.Lock()
	if c.conns[dc] == cur {
		delete(c.conns, dc)
	}
	c.mx.Unlock()

	_ = cur.conn.Close()
}

func (c *Client) saveSession(ctx context.Context, dc int, conn *mtproto.Conn) error {
	key := conn.AuthKey()
	if key.IsZero() {
		return nil
	}
	return c.opts.Storage.SetSession(ctx, storage.Session{DC: dc, Key: key, Salt: conn.Salt()})
}
