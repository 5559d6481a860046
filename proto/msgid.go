package proto

import (
	"sync"
	"time"
)

// MsgIDGen - generates message ids, approximately equal to unixtime*2^32,
// divisible by 4 for client messages and strictly increasing,
// even when server time offset is changed
type MsgIDGen struct {
	mx     sync.Mutex
	last   int64
	offset time.Duration
	side   Side

	now func() time.Time
}

func NewMsgIDGen(side Side, now func() time.Time) *MsgIDGen {
	if now == nil {
		now = time.Now
	}
	return &MsgIDGen{side: side, now: now}
}

func msgIDFromTime(t time.Time) int64 {
	sec := t.Unix()
	frac := int64(t.Nanosecond()) << 32 / int64(time.Second)
	return sec<<32 | frac
}

// TimeOf - time encoded in message id
func TimeOf(msgID int64) time.Time {
	sec := msgID >> 32
	nano := (msgID & 0xFFFFFFFF) * int64(time.Second) >> 32
	return time.Unix(sec, nano)
}

// New - returns next message id
func (g *MsgIDGen) New() int64 {
	g.mx.Lock()
	defer g.mx.Unlock()

	id := msgIDFromTime(g.now().Add(g.offset))
	id &^= 3
	if g.side == SideServer {
		// server responses, 3 is for messages not related to client requests
		id |= 1
	}

	if id <= g.last {
		id = g.last + 4
	}
	g.last = id
	return id
}

// SetOffset - sets difference between server and local clock
func (g *MsgIDGen) SetOffset(offset time.Duration) {
	g.mx.Lock()
	g.offset = offset
	g.mx.Unlock()
}

// SyncWith - adjusts offset using message id received from server
func (g *MsgIDGen) SyncWith(serverMsgID int64) {
	g.SetOffset(TimeOf(serverMsgID).Sub(g.now()))
}

func (g *MsgIDGen) Offset() time.Duration {
	g.mx.Lock()
	defer g.mx.Unlock()
	return g.offset
}

// SeqNo - content related messages has odd seqno and increase counter
type SeqNo struct {
	mx      sync.Mutex
	content int32
}

func (s *SeqNo) Next(contentRelated bool) int32 {
	s.mx.Lock()
	defer s.mx.Unlock()

	seq := s.content * 2
	if contentRelated {
		seq++
		s.content++
	}
	return seq
}

func (s *SeqNo) Reset() {
	s.mx.Lock()
	s.content = 0
	s.mx.Unlock()
}
