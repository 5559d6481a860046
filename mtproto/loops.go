package mtproto

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/xssnick/tgutils-go/proto"
	"github.com/xssnick/tgutils-go/tl"
	"go.uber.org/zap"
)

// pingLoop - keeps connection alive, server closes it if there is no ping for disconnect delay
func (c *Conn) pingLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.opts.PingInterval):
		}

		if err := c.Ping(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ping failed: %w", err)
		}
	}
}

// Ping - sends ping_delay_disconnect and waits for pong
func (c *Conn) Ping(ctx context.Context) error {
	var b [8]byte
	if err := c.crypto.RandomFill(b[:]); err != nil {
		return err
	}

	body, err := tl.Serialize(proto.PingDelayDisconnect{
		PingID:          int64(binary.LittleEndian.Uint64(b[:])),
		DisconnectDelay: int32(c.opts.PingDisconnectDelay / time.Second),
	}, true)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.PingInterval)
	defer cancel()

	tm := time.Now()
	if _, err = c.InvokeRaw(ctx, body); err != nil {
		return err
	}
	c.log.Debug("pong", zap.Duration("took", time.Since(tm)))
	return nil
}

// ackLoop - acknowledges received content messages in batches
func (c *Conn) ackLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.AckInterval)
	defer ticker.Stop()

	ids := make([]int64, 0, c.opts.AckBatch)
	flush := func() error {
		if len(ids) == 0 {
			return nil
		}

		body, err := tl.Serialize(proto.MsgsAck{MsgIDs: ids}, true)
		if err != nil {
			return err
		}
		if _, err = c.write(body, false, nil); err != nil {
			return fmt.Errorf("failed to send acks: %w", err)
		}
		ids = ids[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-c.ackCh:
			ids = append(ids, id)
			if len(ids) < c.opts.AckBatch {
				continue
			}
		case <-ticker.C:
		}

		if err := flush(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// saltLoop - requests future salts before the known ones are over
func (c *Conn) saltLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.SaltRefresh)
	defer ticker.Stop()

	// first check is immediate, new key has only one salt
	if c.salts.NeedRefresh(c.opts.SaltRefresh * 2) {
		c.requestSaltRefresh()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !c.salts.NeedRefresh(c.opts.SaltRefresh * 2) {
				continue
			}
		case <-c.saltRefresh:
		}

		err := c.RefreshSalts(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("failed to refresh salts: %w", err)
			}
			// not fatal, ping loop will detect dead connection
			c.log.Warn("salts refresh timeout")
		}
		c.resendStale()
	}
}

// RefreshSalts - fetches future salts from server and stores them
func (c *Conn) RefreshSalts(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	var res proto.FutureSalts
	if err := c.Invoke(ctx, proto.GetFutureSalts{Num: 32}, &res); err != nil {
		return err
	}
	// already stored by read loop
	c.log.Debug("future salts received", zap.Int("num", len(res.Salts)))
	return nil
}
