package storage

import (
	"context"
	"sync"

	"github.com/xssnick/tgutils-go/updates"
)

type Memory struct {
	mx       sync.RWMutex
	sessions map[int]Session
	primary  int
	state    *updates.State
	channels map[int64]int32
}

func NewMemory() *Memory {
	return &Memory{
		sessions: map[int]Session{},
		channels: map[int64]int32{},
	}
}

func (m *Memory) GetSession(_ context.Context, dc int) (Session, bool, error) {
	m.mx.RLock()
	defer m.mx.RUnlock()

	s, ok := m.sessions[dc]
	return s, ok, nil
}

func (m *Memory) SetSession(_ context.Context, s Session) error {
	m.mx.Lock()
	defer m.mx.Unlock()

	m.sessions[s.DC] = s
	return nil
}

func (m *Memory) DeleteSession(_ context.Context, dc int) error {
	m.mx.Lock()
	defer m.mx.Unlock()

	delete(m.sessions, dc)
	return nil
}

func (m *Memory) GetPrimaryDC(context.Context) (int, bool, error) {
	m.mx.RLock()
	defer m.mx.RUnlock()

	return m.primary, m.primary != 0, nil
}

func (m *Memory) SetPrimaryDC(_ context.Context, dc int) error {
	m.mx.Lock()
	defer m.mx.Unlock()

	m.primary = dc
	return nil
}

func (m *Memory) GetState(context.Context) (updates.State, bool, error) {
	m.mx.RLock()
	defer m.mx.RUnlock()

	if m.state == nil {
		return updates.State{}, false, nil
	}
	return *m.state, true, nil
}

func (m *Memory) SetState(_ context.Context, st updates.State) error {
	m.mx.Lock()
	defer m.mx.Unlock()

	m.state = &st
	return nil
}

func (m *Memory) GetChannelPts(_ context.Context, channelID int64) (int32, bool, error) {
	m.mx.RLock()
	defer m.mx.RUnlock()

	pts, ok := m.channels[channelID]
	return pts, ok, nil
}

func (m *Memory) SetChannelPts(_ context.Context, channelID int64, pts int32) error {
	m.mx.Lock()
	defer m.mx.Unlock()

	m.channels[channelID] = pts
	return nil
}
