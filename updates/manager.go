// Package updates keeps pts, qts and seq of account and channels, detects gaps,
// recovers them by fetching difference and delivers ordered events to subscribers.
package updates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sethvargo/go-retry"
	"github.com/xssnick/tgutils-go/rpc"
	"github.com/xssnick/tgutils-go/tg"
	"github.com/xssnick/tgutils-go/tl"
	"go.uber.org/zap"
)

var ErrAlreadyRunning = errors.New("updates manager is already running")

type Options struct {
	// Invoker - used to fetch state and difference, usually rpc dispatcher of client
	Invoker rpc.Invoker
	Storage StateStorage
	Logger  *zap.Logger

	// SubscriberBuffer - default queue size of subscription
	SubscriberBuffer int
	// ChannelDiffLimit - max messages in one channel difference page
	ChannelDiffLimit int32
	// PtsTotalLimit - limit of global difference, zero means server default
	PtsTotalLimit int32
	// Backoff - creates backoff for retries of state and difference requests
	Backoff func() retry.Backoff
}

func (o *Options) setDefaults() {
	if o.Storage == nil {
		o.Storage = newMemoryStorage()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = 100
	}
	if o.ChannelDiffLimit <= 0 {
		o.ChannelDiffLimit = 100
	}
	if o.Backoff == nil {
		o.Backoff = DefaultBackoff
	}
}

// DefaultBackoff - exponential from 100ms with jitter, capped by 10s, unlimited retries
func DefaultBackoff() retry.Backoff {
	b := retry.NewExponential(100 * time.Millisecond)
	b = retry.WithJitter(50*time.Millisecond, b)
	return retry.WithCappedDuration(10*time.Second, b)
}

type dummyInput struct {
	channelID int64
	item      ptsItem
}

type catchUp struct{}

// Manager - single writer of update state, all mutations happen in Run loop
type Manager struct {
	opts Options
	log  *zap.Logger

	in    chan any
	done  chan struct{}
	ctx   context.Context
	wg    sync.WaitGroup
	arena *arena
	// hashes - access hashes of channels, needed to fetch channel difference
	hashes map[int64]int64

	subMx sync.RWMutex
	subs  map[uuid.UUID]*Subscription

	stateMx    sync.RWMutex
	snapshot   State
	channelPts map[int64]int32

	started atomic.Bool
	// lost - input was dropped because queue was full, state is recovered by difference
	lost atomic.Bool
}

func NewManager(opts Options) *Manager {
	opts.setDefaults()

	return &Manager{
		opts:       opts,
		log:        opts.Logger.Named("updates"),
		in:         make(chan any, 256),
		done:       make(chan struct{}),
		arena:      newArena(),
		hashes:     map[int64]int64{},
		subs:       map[uuid.UUID]*Subscription{},
		channelPts: map[int64]int32{},
	}
}

// Run - loads or fetches initial state and processes updates until ctx is done
func (m *Manager) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(m.done)
	m.ctx = ctx

	st, ok, err := m.opts.Storage.GetState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load update state: %w", err)
	}

	if ok {
		m.arena.setGlobal(st)
		m.publish()
		// catch up what was missed while we were offline
		m.startFetch(m.arena.scopes[0])
	} else {
		if st, err = m.fetchState(ctx); err != nil {
			return fmt.Errorf("failed to get update state: %w", err)
		}
		m.arena.setGlobal(st)
		m.saveState()
	}

	m.log.Debug("updates manager started",
		zap.Int32("pts", st.Pts), zap.Int32("qts", st.Qts), zap.Int32("seq", st.Seq))

	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return nil
		case in := <-m.in:
			m.process(in)
		}

		if m.lost.CompareAndSwap(true, false) {
			m.log.Warn("updates were dropped, fetching difference")
			m.startFetch(m.arena.scopes[0])
		}
	}
}

func (m *Manager) fetchState(ctx context.Context) (State, error) {
	var st State
	err := retry.Do(ctx, m.opts.Backoff(), func(ctx context.Context) error {
		var res tg.UpdatesState
		if err := m.opts.Invoker.Invoke(ctx, tg.UpdatesGetState{}, &res); err != nil {
			if ctx.Err() != nil {
				return err
			}
			m.log.Warn("failed to get update state, retrying", zap.Error(err))
			return retry.RetryableError(err)
		}
		st = stateOf(res)
		return nil
	})
	return st, err
}

// Handle - queues updates object, never blocks. When queue is full update is dropped
// and gap is recovered by difference after queue is drained.
func (m *Manager) Handle(u tg.UpdatesClass) {
	if u == nil {
		return
	}
	m.offer(u)
}

// OnUpdates - implements mtproto.Handler
func (m *Manager) OnUpdates(data []byte) {
	var u tg.UpdatesClass
	if _, err := tl.Parse(&u, data, true); err != nil {
		id, _ := tl.PeekID(data)
		name, _ := tl.NameByID(id)
		m.log.Debug("skipping unsupported object", zap.Uint32("id", id), zap.String("name", name), zap.Error(err))
		return
	}
	m.Handle(u)
}

// OnSessionCreated - implements mtproto.Handler, updates sent before the new session could be lost
func (m *Manager) OnSessionCreated() {
	m.offer(catchUp{})
}

// DummyUpdate - moves pts like a real update but emits nothing,
// used for results of methods which return only pts, like affected history
func (m *Manager) DummyUpdate(pts, ptsCount int32, channelID int64) {
	m.offer(dummyInput{channelID: channelID, item: ptsItem{pts: pts, count: ptsCount}})
}

// offer - called from connection read loop, so it must not wait for Run
func (m *Manager) offer(v any) {
	select {
	case <-m.done:
		return
	default:
	}

	select {
	case m.in <- v:
	default:
		if !m.lost.Swap(true) {
			m.log.Warn("updates queue is full, dropping")
		}
	}
}

// State - snapshot of global counters
func (m *Manager) State() State {
	m.stateMx.RLock()
	defer m.stateMx.RUnlock()
	return m.snapshot
}

func (m *Manager) ChannelPts(channelID int64) (int32, bool) {
	m.stateMx.RLock()
	defer m.stateMx.RUnlock()
	pts, ok := m.channelPts[channelID]
	return pts, ok
}

func (m *Manager) process(in any) {
	switch v := in.(type) {
	case fetchResult:
		m.applyFetch(v)
	case dummyInput:
		m.handlePts(v.channelID, v.item)
	case catchUp:
		m.startFetch(m.arena.scopes[0])
	case tg.UpdatesClass:
		m.handleUpdates(v)
	}
}

func (m *Manager) handleUpdates(u tg.UpdatesClass) {
	empty := tg.NewPeersIndex(nil, nil)

	switch v := u.(type) {
	case tg.UpdatesTooLong:
		m.startFetch(m.arena.scopes[0])
	case tg.UpdateShort:
		m.handleUpdate(v.Update, empty)
	case tg.UpdateShortMessage:
		msg := tg.Message{Out: v.Out, ID: v.ID, PeerID: tg.PeerUser{UserID: v.UserID}, Date: v.Date, Message: v.Message}
		if !v.Out {
			msg.FromID = tg.PeerUser{UserID: v.UserID}
		}
		m.handleUpdate(tg.UpdateNewMessage{Message: msg, Pts: v.Pts, PtsCount: v.PtsCount}, empty)
	case tg.UpdateShortChatMessage:
		msg := tg.Message{Out: v.Out, ID: v.ID, FromID: tg.PeerUser{UserID: v.FromID},
			PeerID: tg.PeerChat{ChatID: v.ChatID}, Date: v.Date, Message: v.Message}
		m.handleUpdate(tg.UpdateNewMessage{Message: msg, Pts: v.Pts, PtsCount: v.PtsCount}, empty)
	case tg.UpdateShortSentMessage:
		m.handlePts(0, ptsItem{pts: v.Pts, count: v.PtsCount})
	case tg.Updates:
		m.handleSeq(seqItem{start: v.Seq, seq: v.Seq, date: v.Date, list: v.Updates, peers: tg.PeersOf(v)})
	case tg.UpdatesCombined:
		m.handleSeq(seqItem{start: v.SeqStart, seq: v.Seq, date: v.Date, list: v.Updates, peers: tg.PeersOf(v)})
	default:
		m.log.Debug("unknown updates type", zap.String("type", fmt.Sprintf("%T", u)))
	}
}

func (m *Manager) handleSeq(it seqItem) {
	m.learn(it.peers)

	if it.seq == 0 {
		// no ordering by seq, only pts of each update matters
		m.applyList(it.list, it.peers)
		return
	}

	global := m.arena.scopes[0]
	if global.fetching {
		m.arena.pendingSeq = append(m.arena.pendingSeq, it)
		return
	}

	local := m.arena.global.Seq
	switch {
	case local == 0 || it.start == local+1:
		m.applyList(it.list, it.peers)
		m.arena.global.Seq = it.seq
		if it.date > 0 {
			m.arena.global.Date = it.date
		}
		m.saveState()
	case it.start <= local:
		m.log.Debug("skipping already applied updates", zap.Int32("seq_start", it.start), zap.Int32("local_seq", local))
	default:
		m.log.Debug("seq gap detected", zap.Int32("seq_start", it.start), zap.Int32("local_seq", local))
		m.arena.pendingSeq = append(m.arena.pendingSeq, it)
		m.startFetch(global)
	}
}

func (m *Manager) applyList(list []tg.Update, peers *tg.PeersIndex) {
	for _, u := range list {
		m.handleUpdate(u, peers)
	}
}

func (m *Manager) handleUpdate(u tg.Update, peers *tg.PeersIndex) {
	switch v := u.(type) {
	case tg.UpdateChannelTooLong:
		s := m.scopeOf(v.ChannelID)
		if !s.known && v.Pts != 0 {
			s.pts, s.known = v.Pts, true
		}
		if !s.known {
			m.log.Warn("channel is too long but its pts is unknown", zap.Int64("channel", v.ChannelID))
			return
		}
		m.startFetch(s)
	case tg.UpdateNewEncryptedMessage:
		m.handleQts(qtsItem{qts: v.Qts, update: v, peers: peers})
	case tg.ChannelUpdate:
		pts, count := v.GetPts()
		m.handlePts(v.GetChannelID(), ptsItem{pts: pts, count: count, update: u, peers: peers})
	case tg.PtsUpdate:
		pts, count := v.GetPts()
		m.handlePts(0, ptsItem{pts: pts, count: count, update: u, peers: peers})
	default:
		m.emit(EventOf(u, peers))
	}
}

func (m *Manager) handlePts(scopeID int64, it ptsItem) {
	s := m.scopeOf(scopeID)
	if s.fetching {
		s.pending = append(s.pending, it)
		return
	}
	m.applyPts(s, it)
}

func (m *Manager) applyPts(s *scope, it ptsItem) {
	switch start := it.start(); {
	case !s.known:
		// first update of channel we never saw, nothing to compare with
		m.setPts(s, it.pts)
		m.emitItem(it)
	case start == s.pts:
		m.setPts(s, it.pts)
		m.emitItem(it)
	case start > s.pts:
		m.log.Debug("pts gap detected", zap.Int64("scope", s.id),
			zap.Int32("local_pts", s.pts), zap.Int32("pts", it.pts), zap.Int32("count", it.count))
		s.pending = append(s.pending, it)
		m.startFetch(s)
	default:
		m.log.Debug("skipping duplicate update", zap.Int64("scope", s.id),
			zap.Int32("local_pts", s.pts), zap.Int32("pts", it.pts))
	}
}

func (m *Manager) handleQts(it qtsItem) {
	global := m.arena.scopes[0]
	if global.fetching {
		m.arena.pendingQts = append(m.arena.pendingQts, it)
		return
	}

	local := m.arena.global.Qts
	switch {
	case it.qts-1 == local:
		m.arena.global.Qts = it.qts
		m.saveState()
		m.emit(EventOf(it.update, it.peers))
	case it.qts-1 > local:
		m.log.Debug("qts gap detected", zap.Int32("local_qts", local), zap.Int32("qts", it.qts))
		m.arena.pendingQts = append(m.arena.pendingQts, it)
		m.startFetch(global)
	default:
		m.log.Debug("skipping duplicate encrypted message", zap.Int32("qts", it.qts))
	}
}

func (m *Manager) emitItem(it ptsItem) {
	if it.update == nil {
		return
	}
	m.emit(EventOf(it.update, it.peers))
}

func (m *Manager) scopeOf(id int64) *scope {
	if s, ok := m.arena.scopes[id]; ok {
		return s
	}

	s := m.arena.get(id)
	pts, ok, err := m.opts.Storage.GetChannelPts(m.ctx, id)
	if err != nil {
		m.log.Warn("failed to load channel pts", zap.Int64("channel", id), zap.Error(err))
	} else if ok {
		s.pts, s.known = pts, true
	}
	return s
}

func (m *Manager) setPts(s *scope, pts int32) {
	s.pts = pts
	s.known = true
	if s.id == 0 {
		m.arena.global.Pts = pts
		m.saveState()
		return
	}
	m.saveChannel(s)
}

func (m *Manager) learn(peers *tg.PeersIndex) {
	if peers == nil {
		return
	}
	for _, c := range peers.Chats {
		switch ch := c.(type) {
		case tg.Channel:
			if ch.AccessHash != 0 {
				m.hashes[ch.ID] = ch.AccessHash
			}
		case tg.ChannelForbidden:
			m.hashes[ch.ID] = ch.AccessHash
		}
	}
}

// replay - applies buffered updates of scope in pts order, stops when next gap is found
func (m *Manager) replay(s *scope) {
	list := s.pending
	s.pending = nil

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].start() < list[j].start()
	})

	for i, it := range list {
		if s.fetching {
			s.pending = append(s.pending, list[i:]...)
			return
		}
		m.applyPts(s, it)
	}
}

func (m *Manager) replayGlobal() {
	m.replay(m.arena.scopes[0])

	qts := m.arena.pendingQts
	m.arena.pendingQts = nil
	sort.SliceStable(qts, func(i, j int) bool {
		return qts[i].qts < qts[j].qts
	})
	for _, it := range qts {
		m.handleQts(it)
	}

	seq := m.arena.pendingSeq
	m.arena.pendingSeq = nil
	sort.SliceStable(seq, func(i, j int) bool {
		return seq[i].start < seq[j].start
	})
	for _, it := range seq {
		m.handleSeq(it)
	}
}

func (m *Manager) saveState() {
	st := m.arena.global
	if err := m.opts.Storage.SetState(m.ctx, st); err != nil {
		m.log.Warn("failed to save update state", zap.Error(err))
	}
	m.publish()
}

func (m *Manager) saveChannel(s *scope) {
	if err := m.opts.Storage.SetChannelPts(m.ctx, s.id, s.pts); err != nil {
		m.log.Warn("failed to save channel pts", zap.Int64("channel", s.id), zap.Error(err))
	}

	m.stateMx.Lock()
	m.channelPts[s.id] = s.pts
	m.stateMx.Unlock()
}

func (m *Manager) publish() {
	m.stateMx.Lock()
	m.snapshot = m.arena.global
	m.stateMx.Unlock()
}

func stateOf(s tg.UpdatesState) State {
	return State{Pts: s.Pts, Qts: s.Qts, Date: s.Date, Seq: s.Seq}
}
