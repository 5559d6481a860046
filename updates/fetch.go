package updates

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-retry"
	"github.com/xssnick/tgutils-go/tg"
	"go.uber.org/zap"
)

// GapRecoveryError - difference request failed, it will be retried with backoff
type GapRecoveryError struct {
	Scope   int64
	Attempt int
	Err     error
}

func (e *GapRecoveryError) Error() string {
	if e.Scope == 0 {
		return fmt.Sprintf("failed to recover gap, attempt %d: %s", e.Attempt, e.Err.Error())
	}
	return fmt.Sprintf("failed to recover gap of channel %d, attempt %d: %s", e.Scope, e.Attempt, e.Err.Error())
}

func (e *GapRecoveryError) Unwrap() error {
	return e.Err
}

type globalDiff struct {
	messages  []tg.MessageClass
	encrypted []tg.EncryptedMessage
	updates   []tg.Update
	peers     *tg.PeersIndex
	state     State
	tooLong   bool
}

type channelDiff struct {
	messages []tg.MessageClass
	updates  []tg.Update
	peers    *tg.PeersIndex
	pts      int32
	tooLong  bool
}

type fetchResult struct {
	scope   int64
	global  *globalDiff
	channel *channelDiff
	failed  bool
}

// startFetch - starts difference request of scope, only one per scope can be in flight,
// updates of scope are buffered until result is applied
func (m *Manager) startFetch(s *scope) {
	if s.fetching {
		return
	}
	s.fetching = true

	var fetch func(ctx context.Context) (fetchResult, error)
	if s.id == 0 {
		st := m.arena.global
		fetch = func(ctx context.Context) (fetchResult, error) {
			d, err := m.getDifference(ctx, st)
			return fetchResult{scope: 0, global: d}, err
		}
	} else {
		id, pts, hash := s.id, s.pts, m.hashes[s.id]
		fetch = func(ctx context.Context) (fetchResult, error) {
			d, err := m.getChannelDifference(ctx, id, hash, pts)
			return fetchResult{scope: id, channel: d}, err
		}
	}

	scopeID := s.id
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		var res fetchResult
		attempt := 0
		err := retry.Do(m.ctx, m.opts.Backoff(), func(ctx context.Context) error {
			attempt++
			r, err := fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				gerr := &GapRecoveryError{Scope: scopeID, Attempt: attempt, Err: err}
				m.log.Warn("difference request failed", zap.Error(gerr))
				return retry.RetryableError(gerr)
			}
			res = r
			return nil
		})
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.log.Error("gap recovery stopped", zap.Int64("scope", scopeID), zap.Error(err))
			res = fetchResult{scope: scopeID, failed: true}
		}

		select {
		case m.in <- res:
		case <-m.ctx.Done():
		}
	}()
}

func (m *Manager) getDifference(ctx context.Context, st State) (*globalDiff, error) {
	d := &globalDiff{peers: tg.NewPeersIndex(nil, nil)}

	for {
		var res tg.DifferenceClass
		err := m.opts.Invoker.Invoke(ctx, tg.UpdatesGetDifference{
			Pts:           st.Pts,
			PtsTotalLimit: m.opts.PtsTotalLimit,
			Date:          st.Date,
			Qts:           st.Qts,
		}, &res)
		if err != nil {
			return nil, err
		}

		switch v := res.(type) {
		case tg.DifferenceEmpty:
			st.Date, st.Seq = v.Date, v.Seq
			d.state = st
			return d, nil
		case tg.Difference:
			d.add(v.NewMessages, v.NewEncryptedMessages, v.OtherUpdates)
			d.peers.Add(v.Users, v.Chats)
			d.state = stateOf(v.State)
			return d, nil
		case tg.DifferenceSlice:
			d.add(v.NewMessages, v.NewEncryptedMessages, v.OtherUpdates)
			d.peers.Add(v.Users, v.Chats)
			st = stateOf(v.IntermediateState)
		case tg.DifferenceTooLong:
			st.Pts = v.Pts
			d.state = st
			d.tooLong = true
			return d, nil
		default:
			return nil, fmt.Errorf("unexpected difference type %T", res)
		}
	}
}

func (d *globalDiff) add(msgs []tg.MessageClass, enc []tg.EncryptedMessage, ups []tg.Update) {
	d.messages = append(d.messages, msgs...)
	d.encrypted = append(d.encrypted, enc...)
	d.updates = append(d.updates, ups...)
}

func (m *Manager) getChannelDifference(ctx context.Context, id, hash int64, pts int32) (*channelDiff, error) {
	d := &channelDiff{peers: tg.NewPeersIndex(nil, nil)}

	for {
		var res tg.ChannelDifferenceClass
		err := m.opts.Invoker.Invoke(ctx, tg.UpdatesGetChannelDifference{
			Channel: tg.InputChannel{ChannelID: id, AccessHash: hash},
			Pts:     pts,
			Limit:   m.opts.ChannelDiffLimit,
		}, &res)
		if err != nil {
			return nil, err
		}

		switch v := res.(type) {
		case tg.ChannelDifferenceEmpty:
			pts = v.Pts
		case tg.ChannelDifferenceTooLong:
			if v.Dialog.Pts != 0 {
				pts = v.Dialog.Pts
			}
			d.messages = append(d.messages, v.Messages...)
			d.peers.Add(v.Users, v.Chats)
			d.tooLong = true
		case tg.ChannelDifference:
			pts = v.Pts
			d.messages = append(d.messages, v.NewMessages...)
			d.updates = append(d.updates, v.OtherUpdates...)
			d.peers.Add(v.Users, v.Chats)
		default:
			return nil, fmt.Errorf("unexpected channel difference type %T", res)
		}

		if res.IsFinal() {
			d.pts = pts
			return d, nil
		}
	}
}

func (m *Manager) applyFetch(res fetchResult) {
	s := m.scopeOf(res.scope)
	s.fetching = false

	if res.failed {
		// pending updates stay buffered, next update of scope starts new attempt
		return
	}

	if res.global != nil {
		m.applyGlobal(res.global)
		return
	}
	m.applyChannel(s, res.channel)
}

func (m *Manager) applyGlobal(d *globalDiff) {
	m.learn(d.peers)
	if d.tooLong {
		m.log.Warn("difference is too long, some updates are lost", zap.Int32("pts", d.state.Pts))
	}

	for _, msg := range d.messages {
		m.emit(EventOf(tg.UpdateNewMessage{Message: msg}, d.peers))
	}
	for _, msg := range d.encrypted {
		m.emit(EventOf(tg.UpdateNewEncryptedMessage{Message: msg}, d.peers))
	}

	for _, u := range d.updates {
		switch u.(type) {
		case tg.ChannelUpdate, tg.UpdateChannelTooLong:
			// channels have own pts, they are checked as usual
			m.handleUpdate(u, d.peers)
		default:
			m.emit(EventOf(u, d.peers))
		}
	}

	m.arena.setGlobal(d.state)
	m.saveState()
	m.log.Debug("difference applied", zap.Int32("pts", d.state.Pts), zap.Int("messages", len(d.messages)))

	m.replayGlobal()
}

func (m *Manager) applyChannel(s *scope, d *channelDiff) {
	m.learn(d.peers)
	if d.tooLong {
		m.log.Warn("channel difference is too long, some updates are lost", zap.Int64("channel", s.id))
	}

	for _, msg := range d.messages {
		m.emit(EventOf(tg.UpdateNewChannelMessage{Message: msg}, d.peers))
	}
	for _, u := range d.updates {
		m.emit(EventOf(u, d.peers))
	}

	m.setPts(s, d.pts)
	m.log.Debug("channel difference applied", zap.Int64("channel", s.id), zap.Int32("pts", d.pts))

	m.replay(s)
}
