package mtproto

import (
	"sort"
	"sync"
	"time"

	"github.com/xssnick/tgutils-go/proto"
)

// SaltStatus - result of incoming frame salt check
type SaltStatus int

const (
	SaltCurrent SaltStatus = iota
	// SaltGrace - superseded salt which is still accepted for a short window
	SaltGrace
	SaltExpired
	// SaltUnknown - accepted, but salts should be refreshed
	SaltUnknown
)

func (s SaltStatus) String() string {
	switch s {
	case SaltCurrent:
		return "current"
	case SaltGrace:
		return "grace"
	case SaltExpired:
		return "expired"
	}
	return "unknown"
}

type Salt struct {
	Value      int64
	ValidSince time.Time
	ValidUntil time.Time

	// supersededAt - set when server told us to use another salt
	supersededAt time.Time
}

// defaultSaltValidity - salt from bad_server_salt has no window, server rotates salts every hour
const defaultSaltValidity = 30 * time.Minute

// Salts - known server salts with overlapping validity windows
type Salts struct {
	mx    sync.Mutex
	list  []Salt
	grace time.Duration
	now   func() time.Time
}

func NewSalts(grace time.Duration, now func() time.Time) *Salts {
	if now == nil {
		now = time.Now
	}
	return &Salts{grace: grace, now: now}
}

// Set - stores salt which server told us to use right now
func (s *Salts) Set(value int64) {
	now := s.now()

	s.mx.Lock()
	defer s.mx.Unlock()

	for i := range s.list {
		if s.list[i].Value != value && s.list[i].supersededAt.IsZero() {
			s.list[i].supersededAt = now
		}
	}
	s.add(Salt{Value: value, ValidSince: now, ValidUntil: now.Add(defaultSaltValidity)}, false)
}

// Store - adds future salts returned by get_future_salts
func (s *Salts) Store(salts []proto.FutureSalt) {
	s.mx.Lock()
	defer s.mx.Unlock()

	for _, fs := range salts {
		s.add(Salt{
			Value:      fs.Salt,
			ValidSince: time.Unix(int64(fs.ValidSince), 0),
			ValidUntil: time.Unix(int64(fs.ValidUntil), 0),
		}, true)
	}
}

func (s *Salts) add(salt Salt, keepSuperseded bool) {
	for i := range s.list {
		if s.list[i].Value == salt.Value {
			if keepSuperseded {
				salt.supersededAt = s.list[i].supersededAt
			}
			s.list[i] = salt
			s.sort()
			return
		}
	}
	s.list = append(s.list, salt)
	s.sort()
}

func (s *Salts) sort() {
	sort.SliceStable(s.list, func(i, j int) bool {
		return s.list[i].ValidSince.Before(s.list[j].ValidSince)
	})
}

// current - index of the newest salt already valid
func (s *Salts) current(now time.Time) int {
	idx := -1
	for i, salt := range s.list {
		if salt.supersededAt.IsZero() && !salt.ValidSince.After(now) && now.Before(salt.ValidUntil) {
			idx = i
		}
	}
	return idx
}

// Current - salt to send with outgoing messages, 0 if there is no known salt
func (s *Salts) Current() int64 {
	now := s.now()

	s.mx.Lock()
	defer s.mx.Unlock()

	s.cleanup(now)
	if i := s.current(now); i >= 0 {
		return s.list[i].Value
	}
	if len(s.list) > 0 {
		// all salts are from future or expired, use the latest and let server correct us
		return s.list[len(s.list)-1].Value
	}
	return 0
}

// Check - classifies salt of incoming frame
func (s *Salts) Check(value int64) SaltStatus {
	now := s.now()

	s.mx.Lock()
	defer s.mx.Unlock()

	cur := s.current(now)
	for i, salt := range s.list {
		if salt.Value != value {
			continue
		}

		if !now.Before(salt.ValidUntil) {
			return SaltExpired
		}

		at := salt.supersededAt
		if at.IsZero() && cur >= 0 && i < cur {
			// overlapping window, newer salt is already valid
			at = s.list[i+1].ValidSince
		}
		if at.IsZero() {
			return SaltCurrent
		}

		if now.Before(at.Add(s.grace)) {
			return SaltGrace
		}
		return SaltExpired
	}
	return SaltUnknown
}

// NeedRefresh - true when there are no valid salts for the next period
func (s *Salts) NeedRefresh(ahead time.Duration) bool {
	now := s.now()

	s.mx.Lock()
	defer s.mx.Unlock()

	till := now.Add(ahead)
	for _, salt := range s.list {
		if !salt.ValidUntil.Before(till) {
			return false
		}
	}
	return true
}

// expiredRetention - expired salts are remembered for a while to reject late frames signed by them
const expiredRetention = time.Hour

func (s *Salts) cleanup(now time.Time) {
	keep := s.list[:0]
	for _, salt := range s.list {
		if now.Before(salt.ValidUntil.Add(expiredRetention)) {
			keep = append(keep, salt)
		}
	}
	s.list = keep
}

func (s *Salts) Len() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.list)
}
