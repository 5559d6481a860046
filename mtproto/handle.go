package mtproto

import (
	"fmt"

	"github.com/xssnick/tgutils-go/proto"
	"github.com/xssnick/tgutils-go/tgerr"
	"github.com/xssnick/tgutils-go/tl"
	"go.uber.org/zap"
)

func (c *Conn) readLoop() error {
	for {
		frame, err := c.tr.Recv()
		if err != nil {
			return transportErr(err)
		}

		msg, err := c.cipher.Decrypt(frame)
		if err != nil {
			// tampered or not our frame, key should be regenerated
			return err
		}

		if msg.SessionID != c.sessionID.Load() {
			c.log.Debug("message from another session, skipping", zap.Int64("session_id", msg.SessionID))
			continue
		}

		switch status := c.salts.Check(msg.Salt); status {
		case SaltExpired:
			if id, _ := tl.PeekID(msg.Body); id != proto.FutureSaltsID {
				c.log.Warn("message with expired salt rejected", zap.Int64("msg_id", msg.MsgID))
				c.markStale()
				c.requestSaltRefresh()
				continue
			}
			// future salts are needed to recover, so they are accepted with any salt
		case SaltUnknown:
			c.requestSaltRefresh()
		}

		if err = c.handleMessage(msg.MsgID, msg.SeqNo, msg.Body); err != nil {
			c.log.Warn("failed to handle message", zap.Int64("msg_id", msg.MsgID), zap.Error(err))
		}
	}
}

func (c *Conn) handleMessage(msgID int64, seqNo int32, body []byte) error {
	if seqNo&1 == 1 {
		c.ack(msgID)
	}
	return c.handleObject(msgID, body)
}

func (c *Conn) handleObject(msgID int64, body []byte) error {
	id, err := tl.PeekID(body)
	if err != nil {
		return err
	}

	switch id {
	case proto.MsgContainerID:
		var cont proto.MsgContainer
		if _, err = tl.Parse(&cont, body, true); err != nil {
			return fmt.Errorf("failed to parse container: %w", err)
		}
		for _, m := range cont.Messages {
			if err = c.handleMessage(m.MsgID, m.SeqNo, m.Body); err != nil {
				c.log.Warn("failed to handle message from container", zap.Int64("msg_id", m.MsgID), zap.Error(err))
			}
		}
		return nil
	case proto.GzipPackedID:
		data, err := c.unpack(body)
		if err != nil {
			return err
		}
		return c.handleObject(msgID, data)
	case proto.RPCResultID:
		return c.handleResult(body)
	case proto.PongID:
		var pong proto.Pong
		if _, err = tl.Parse(&pong, body, true); err != nil {
			return err
		}
		c.resolve(pong.MsgID, body, nil)
		return nil
	case proto.BadServerSaltID:
		var bad proto.BadServerSalt
		if _, err = tl.Parse(&bad, body, true); err != nil {
			return err
		}
		c.log.Debug("bad server salt, resending", zap.Int64("msg_id", bad.BadMsgID))
		c.salts.Set(bad.NewServerSalt)
		c.resend(bad.BadMsgID)
		return nil
	case proto.BadMsgNotificationID:
		var bad proto.BadMsgNotification
		if _, err = tl.Parse(&bad, body, true); err != nil {
			return err
		}
		return c.handleBadMsg(msgID, bad)
	case proto.NewSessionCreatedID:
		var ns proto.NewSessionCreated
		if _, err = tl.Parse(&ns, body, true); err != nil {
			return err
		}
		c.log.Debug("new session created", zap.Int64("first_msg_id", ns.FirstMsgID))
		c.salts.Set(ns.ServerSalt)
		c.opts.Handler.OnSessionCreated()
		return nil
	case proto.FutureSaltsID:
		var fs proto.FutureSalts
		if _, err = tl.Parse(&fs, body, true); err != nil {
			return err
		}
		c.salts.Store(fs.Salts)
		c.resolve(fs.ReqMsgID, body, nil)
		return nil
	case proto.MsgsAckID:
		return nil
	case proto.MsgDetailedInfoID, proto.MsgNewDetailedInfoID:
		var info proto.MsgNewDetailedInfo
		if id == proto.MsgDetailedInfoID {
			var full proto.MsgDetailedInfo
			if _, err = tl.Parse(&full, body, true); err != nil {
				return err
			}
			info.AnswerMsgID = full.AnswerMsgID
		} else if _, err = tl.Parse(&info, body, true); err != nil {
			return err
		}
		c.ack(info.AnswerMsgID)
		return nil
	}

	c.opts.Handler.OnUpdates(body)
	return nil
}

func (c *Conn) unpack(body []byte) ([]byte, error) {
	var gz proto.GzipPacked
	if _, err := tl.Parse(&gz, body, true); err != nil {
		return nil, err
	}

	data, err := c.crypto.Gunzip(gz.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack gzip: %w", err)
	}
	return data, nil
}

func (c *Conn) handleResult(body []byte) error {
	var res proto.RPCResult
	if _, err := tl.Parse(&res, body, true); err != nil {
		return fmt.Errorf("failed to parse rpc result: %w", err)
	}

	data := []byte(res.Result)
	id, err := tl.PeekID(data)
	if err != nil {
		c.resolve(res.ReqMsgID, nil, err)
		return nil
	}

	if id == proto.GzipPackedID {
		if data, err = c.unpack(data); err != nil {
			c.resolve(res.ReqMsgID, nil, err)
			return nil
		}
		id, _ = tl.PeekID(data)
	}

	if id == proto.RPCErrorID {
		var e proto.RPCError
		if _, err = tl.Parse(&e, data, true); err != nil {
			c.resolve(res.ReqMsgID, nil, err)
			return nil
		}
		c.resolve(res.ReqMsgID, nil, tgerr.New(int(e.Code), e.Message))
		return nil
	}

	c.resolve(res.ReqMsgID, data, nil)
	return nil
}

func (c *Conn) handleBadMsg(msgID int64, bad proto.BadMsgNotification) error {
	c.log.Debug("bad msg notification", zap.Int64("bad_msg_id", bad.BadMsgID), zap.Int32("code", bad.ErrorCode))

	switch bad.ErrorCode {
	case proto.BadMsgIDTooLow, proto.BadMsgIDTooHigh, proto.BadMsgTooOld:
		// our clock is out of sync, server msg id contains its time
		c.msgID.SyncWith(msgID)
		c.resend(bad.BadMsgID)
	case proto.BadMsgSeqNoTooLow, proto.BadMsgSeqNoTooHigh:
		if err := c.newSession(); err != nil {
			return err
		}
		c.log.Info("session reset after seqno mismatch")
		c.resend(bad.BadMsgID)
	default:
		c.take(bad.BadMsgID).fail(&BadMsgError{Code: bad.ErrorCode})
	}
	return nil
}

func (p *pendingCall) fail(err error) {
	if p != nil {
		p.deliver(callResult{err: err})
	}
}
