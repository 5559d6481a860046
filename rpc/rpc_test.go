package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xssnick/tgutils-go/mtproto"
	"github.com/xssnick/tgutils-go/tgerr"
	"github.com/xssnick/tgutils-go/tl"
)

type testReq struct {
	RandomID int64 `tl:"long"`
}

func init() {
	tl.Register(testReq{}, "test.req random_id:long = test.Req")
}

// scriptInvoker - returns errors from list, then succeeds
type scriptInvoker struct {
	errs  []error
	calls []testReq
	wait  bool
}

func (s *scriptInvoker) Invoke(ctx context.Context, req tl.Serializable, res tl.Serializable) error {
	s.calls = append(s.calls, req.(testReq))
	if s.wait {
		<-ctx.Done()
		return ctx.Err()
	}
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

type testMigrator struct {
	dcs []int
}

func (m *testMigrator) Migrate(ctx context.Context, dc int) error {
	m.dcs = append(m.dcs, dc)
	return nil
}

func staleErr() error {
	return tgerr.New(400, "RANDOM_ID_EXPIRED")
}

func TestRetryPolicy_Decide(t *testing.T) {
	p := DefaultRetryPolicy()

	tests := []struct {
		name     string
		err      error
		attempts Attempts
		want     Decision
	}{
		{"stale first", staleErr(), Attempts{Stale: 1}, Decision{Action: ActionRetry}},
		{"stale second", staleErr(), Attempts{Stale: 2}, Decision{Action: ActionRetry}},
		{"stale third", staleErr(), Attempts{Stale: 3}, Decision{Action: ActionExhausted}},
		{"msg id invalid", tgerr.New(400, "MSG_ID_INVALID"), Attempts{Stale: 1}, Decision{Action: ActionRetry}},
		{"flood", tgerr.New(420, "FLOOD_WAIT_5"), Attempts{Flood: 1}, Decision{Action: ActionWait, Wait: 5 * time.Second}},
		{"flood twice", tgerr.New(420, "FLOOD_WAIT_5"), Attempts{Flood: 2}, Decision{Action: ActionReturn}},
		{"flood too long", tgerr.New(420, "FLOOD_WAIT_3600"), Attempts{Flood: 1}, Decision{Action: ActionReturn}},
		{"migrate", tgerr.New(303, "PHONE_MIGRATE_4"), Attempts{Migrate: 1}, Decision{Action: ActionMigrate, DC: 4}},
		{"migrate loop", tgerr.New(303, "NETWORK_MIGRATE_2"), Attempts{Migrate: 3}, Decision{Action: ActionReturn}},
		{"transport", &mtproto.TransportError{Err: errors.New("eof")}, Attempts{Transport: 1}, Decision{Action: ActionRetry}},
		{"transport exhausted", &mtproto.TransportError{Err: errors.New("eof")}, Attempts{Transport: 4}, Decision{Action: ActionExhausted}},
		{"generic", tgerr.New(400, "PEER_ID_INVALID"), Attempts{}, Decision{Action: ActionReturn}},
		{"not rpc", errors.New("some"), Attempts{}, Decision{Action: ActionReturn}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := p.Decide(test.err, test.attempts)
			if got != test.want {
				t.Fatalf("want %+v, got %+v", test.want, got)
			}
		})
	}
}

func TestRetryPolicy_Zero(t *testing.T) {
	var p RetryPolicy
	if d := p.Decide(staleErr(), Attempts{Stale: 1}); d.Action != ActionExhausted {
		t.Fatal("zero policy should not retry", d.Action)
	}
}

func TestDispatcher_StaleIDThreeAttempts(t *testing.T) {
	inv := &scriptInvoker{errs: []error{staleErr(), staleErr(), staleErr(), staleErr()}}
	d := NewDispatcher(inv, Options{})

	var n int64
	err := d.CallFunc(context.Background(), func() (tl.Serializable, error) {
		n++
		return testReq{RandomID: n}, nil
	}, nil)

	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.True(t, tgerr.Is(err, tgerr.TypeRandomIDExpired))
	require.Len(t, inv.calls, 3)

	// every attempt has fresh id
	require.Equal(t, []testReq{{1}, {2}, {3}}, inv.calls)
}

func TestDispatcher_StaleIDRecovers(t *testing.T) {
	inv := &scriptInvoker{errs: []error{staleErr(), staleErr()}}
	d := NewDispatcher(inv, Options{})

	require.NoError(t, d.Call(context.Background(), testReq{RandomID: 1}, nil))
	require.Len(t, inv.calls, 3)
}

func TestDispatcher_FloodWait(t *testing.T) {
	inv := &scriptInvoker{errs: []error{tgerr.New(420, "FLOOD_WAIT_7"), tgerr.New(420, "FLOOD_WAIT_7")}}

	var slept []time.Duration
	d := NewDispatcher(inv, Options{
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	})

	err := d.Call(context.Background(), testReq{}, nil)
	wait, ok := tgerr.FloodWait(err)
	require.True(t, ok)
	require.Equal(t, 7*time.Second, wait)
	require.Equal(t, []time.Duration{7 * time.Second}, slept)
	require.Len(t, inv.calls, 2)
}

func TestDispatcher_Migrate(t *testing.T) {
	inv := &scriptInvoker{errs: []error{tgerr.New(303, "USER_MIGRATE_5")}}
	mig := &testMigrator{}
	d := NewDispatcher(inv, Options{Migrator: mig})

	require.NoError(t, d.Call(context.Background(), testReq{}, nil))
	require.Equal(t, []int{5}, mig.dcs)
	require.Len(t, inv.calls, 2)
}

func TestDispatcher_MigrateWithoutMigrator(t *testing.T) {
	inv := &scriptInvoker{errs: []error{tgerr.New(303, "USER_MIGRATE_5")}}
	d := NewDispatcher(inv, Options{})

	dc, ok := tgerr.Migrate(d.Call(context.Background(), testReq{}, nil))
	require.True(t, ok)
	require.Equal(t, 5, dc)
}

func TestDispatcher_GenericError(t *testing.T) {
	inv := &scriptInvoker{errs: []error{tgerr.New(400, "PEER_ID_INVALID")}}
	d := NewDispatcher(inv, Options{})

	err := d.Call(context.Background(), testReq{}, nil)
	te, ok := tgerr.As(err)
	require.True(t, ok)
	require.Equal(t, "PEER_ID_INVALID", te.Type)
	require.Len(t, inv.calls, 1)
}

func TestDispatcher_Timeout(t *testing.T) {
	inv := &scriptInvoker{wait: true}
	d := NewDispatcher(inv, Options{})

	err := d.Call(context.Background(), testReq{}, nil, WithTimeout(50*time.Millisecond))
	require.ErrorIs(t, err, ErrTimeout)

	// cancellation by caller is not a timeout
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = d.Call(ctx, testReq{}, nil, WithTimeout(time.Second))
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrTimeout)
}

func TestDispatcher_BuildError(t *testing.T) {
	d := NewDispatcher(&scriptInvoker{}, Options{})

	err := d.CallFunc(context.Background(), func() (tl.Serializable, error) {
		return nil, errors.New("no peer")
	}, nil)
	require.Error(t, err)
}
