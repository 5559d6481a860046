package mtproto

import (
	"context"
	"fmt"

	"github.com/xssnick/tgutils-go/proto"
	"github.com/xssnick/tgutils-go/tl"
	"go.uber.org/zap"
)

// Invoke - sends request and parses result into res, res can be nil when result is not needed.
// Server errors are returned as *tgerr.Error.
func (c *Conn) Invoke(ctx context.Context, req tl.Serializable, res tl.Serializable) error {
	body, err := tl.Serialize(req, true)
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}

	data, err := c.InvokeRaw(ctx, body)
	if err != nil {
		return err
	}

	if res == nil {
		return nil
	}
	if _, err = tl.Parse(res, data, true); err != nil {
		return fmt.Errorf("failed to parse result of %s: %w", tl.NameOf(req), err)
	}
	return nil
}

// InvokeRaw - sends serialized boxed request and waits for serialized result
func (c *Conn) InvokeRaw(ctx context.Context, body []byte) ([]byte, error) {
	switch c.State() {
	case StateAuthenticated, StateMigrating:
	default:
		if err := c.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotConnected
	}

	// fallback timeout if there is no deadline
	if _, ok := ctx.Deadline(); !ok {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	call := &pendingCall{
		body:   body,
		result: make(chan callResult, 1),
	}

	if err := c.sendCall(call); err != nil {
		return nil, err
	}

	select {
	case res := <-call.result:
		return res.data, res.err
	case <-ctx.Done():
		c.forget(call)
		return nil, ctx.Err()
	case <-c.done:
		// result could be delivered right before close
		select {
		case res := <-call.result:
			return res.data, res.err
		default:
		}
		return nil, c.err
	}
}

func (c *Conn) sendCall(call *pendingCall) error {
	_, err := c.write(call.body, true, func(msgID int64) {
		c.reqMx.Lock()
		call.msgID = msgID
		c.pending[msgID] = call
		c.reqMx.Unlock()
	})
	if err != nil {
		c.forget(call)
		return err
	}
	return nil
}

// forget - removes call from pending without affecting others
func (c *Conn) forget(call *pendingCall) {
	c.reqMx.Lock()
	if c.pending[call.msgID] == call {
		delete(c.pending, call.msgID)
	}
	c.reqMx.Unlock()
}

func (c *Conn) take(msgID int64) *pendingCall {
	c.reqMx.Lock()
	defer c.reqMx.Unlock()

	call := c.pending[msgID]
	if call != nil {
		delete(c.pending, msgID)
	}
	return call
}

func (c *Conn) resolve(msgID int64, data []byte, err error) {
	call := c.take(msgID)
	if call == nil {
		c.log.Debug("result for unknown message", zap.Int64("msg_id", msgID))
		return
	}
	call.deliver(callResult{data: data, err: err})
}

// resend - sends pending message again with a new id,
// it is called when server rejected message for fixable reason
func (c *Conn) resend(msgID int64) {
	call := c.take(msgID)
	if call == nil {
		return
	}

	call.resends++
	if call.resends > c.opts.MaxResend {
		call.deliver(callResult{err: ErrTooManyResends})
		return
	}

	// read loop should not write, so server is never blocked on us
	go func() {
		if err := c.sendCall(call); err != nil {
			call.deliver(callResult{err: err})
		}
	}()
}

// write - encrypts and sends message, id and seqno are generated under lock,
// so messages are written in the same order as ids
func (c *Conn) write(body []byte, content bool, register func(msgID int64)) (int64, error) {
	c.sendMx.Lock()
	defer c.sendMx.Unlock()

	msgID := c.msgID.New()
	if register != nil {
		register(msgID)
	}

	frame, err := c.cipher.Encrypt(&proto.EncryptedMessage{
		Salt:      c.salts.Current(),
		SessionID: c.sessionID.Load(),
		MsgID:     msgID,
		SeqNo:     c.seq.Next(content),
		Body:      body,
	})
	if err != nil {
		return 0, err
	}

	if err = c.tr.Send(frame); err != nil {
		return 0, transportErr(err)
	}
	return msgID, nil
}
