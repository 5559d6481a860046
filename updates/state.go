package updates

import (
	"context"
	"sync"

	"github.com/xssnick/tgutils-go/tg"
)

// State - counters of global scope
type State struct {
	Pts  int32
	Qts  int32
	Date int32
	Seq  int32
}

// StateStorage - persists update state between sessions
type StateStorage interface {
	GetState(ctx context.Context) (State, bool, error)
	SetState(ctx context.Context, st State) error
	GetChannelPts(ctx context.Context, channelID int64) (int32, bool, error)
	SetChannelPts(ctx context.Context, channelID int64, pts int32) error
}

// memoryStorage - used when no storage is configured, state lives until process exit
type memoryStorage struct {
	mx       sync.Mutex
	state    *State
	channels map[int64]int32
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{channels: map[int64]int32{}}
}

func (m *memoryStorage) GetState(context.Context) (State, bool, error) {
	m.mx.Lock()
	defer m.mx.Unlock()

	if m.state == nil {
		return State{}, false, nil
	}
	return *m.state, true, nil
}

func (m *memoryStorage) SetState(_ context.Context, st State) error {
	m.mx.Lock()
	defer m.mx.Unlock()

	m.state = &st
	return nil
}

func (m *memoryStorage) GetChannelPts(_ context.Context, channelID int64) (int32, bool, error) {
	m.mx.Lock()
	defer m.mx.Unlock()

	pts, ok := m.channels[channelID]
	return pts, ok, nil
}

func (m *memoryStorage) SetChannelPts(_ context.Context, channelID int64, pts int32) error {
	m.mx.Lock()
	defer m.mx.Unlock()

	m.channels[channelID] = pts
	return nil
}

// ptsItem - one pts change, update is nil for dummy changes
type ptsItem struct {
	pts    int32
	count  int32
	update tg.Update
	peers  *tg.PeersIndex
}

func (p ptsItem) start() int32 {
	return p.pts - p.count
}

type seqItem struct {
	start int32
	seq   int32
	date  int32
	list  []tg.Update
	peers *tg.PeersIndex
}

type qtsItem struct {
	qts    int32
	update tg.Update
	peers  *tg.PeersIndex
}

// scope - pts state of global scope (id 0) or channel
type scope struct {
	id       int64
	pts      int32
	known    bool
	fetching bool
	pending  []ptsItem
}

// arena - all scopes, mutated only by manager loop
type arena struct {
	global     State
	scopes     map[int64]*scope
	pendingSeq []seqItem
	pendingQts []qtsItem
}

func newArena() *arena {
	return &arena{
		scopes: map[int64]*scope{0: {id: 0, known: true}},
	}
}

func (a *arena) get(id int64) *scope {
	s := a.scopes[id]
	if s == nil {
		s = &scope{id: id}
		a.scopes[id] = s
	}
	return s
}

func (a *arena) setGlobal(st State) {
	a.global = st
	a.scopes[0].pts = st.Pts
}
