package updates

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tgutils-go/tg"
	"github.com/xssnick/tgutils-go/tl"
)

type fakeServer struct {
	mx       sync.Mutex
	state    tg.UpdatesState
	diffs    []tg.DifferenceClass
	channels []tg.ChannelDifferenceClass
	failures int
	calls    []tl.Serializable
}

func (f *fakeServer) Invoke(_ context.Context, req, res tl.Serializable) error {
	f.mx.Lock()
	defer f.mx.Unlock()

	f.calls = append(f.calls, req)

	switch req.(type) {
	case tg.UpdatesGetState:
		*res.(*tg.UpdatesState) = f.state
	case tg.UpdatesGetDifference:
		if f.failures > 0 {
			f.failures--
			return errors.New("connection lost")
		}
		if len(f.diffs) == 0 {
			return errors.New("no difference")
		}
		*res.(*tg.DifferenceClass) = f.diffs[0]
		f.diffs = f.diffs[1:]
	case tg.UpdatesGetChannelDifference:
		if len(f.channels) == 0 {
			return errors.New("no channel difference")
		}
		*res.(*tg.ChannelDifferenceClass) = f.channels[0]
		f.channels = f.channels[1:]
	default:
		return errors.New("unexpected request")
	}
	return nil
}

func (f *fakeServer) requests(name string) []tl.Serializable {
	f.mx.Lock()
	defer f.mx.Unlock()

	var list []tl.Serializable
	for _, c := range f.calls {
		if tl.NameOf(c) == name {
			list = append(list, c)
		}
	}
	return list
}

func fastBackoff() retry.Backoff {
	return retry.NewConstant(time.Millisecond)
}

func startManager(t *testing.T, srv *fakeServer, storage StateStorage, buffer int) (*Manager, *Subscription) {
	m := NewManager(Options{Invoker: srv, Storage: storage, Backoff: fastBackoff})
	sub := m.Subscribe(buffer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return m, sub
}

func message(id int32) tg.Message {
	return tg.Message{ID: id, PeerID: tg.PeerUser{UserID: 1}, Message: "text"}
}

func channelMessage(id int32) tg.Message {
	return tg.Message{ID: id, PeerID: tg.PeerChannel{ChannelID: 55}, Message: "post"}
}

// batch - updates with pts in (from, to], message id equals pts
func batch(from, to int32) tg.Updates {
	var list []tg.Update
	for p := from + 1; p <= to; p++ {
		list = append(list, tg.UpdateNewMessage{Message: message(p), Pts: p, PtsCount: 1})
	}
	return tg.Updates{Updates: list}
}

func waitIDs(t *testing.T, sub *Subscription, n int) []int32 {
	var ids []int32
	for len(ids) < n {
		select {
		case e := <-sub.Events():
			msg, ok := e.(NewMessage)
			require.True(t, ok, "unexpected event %T", e)
			ids = append(ids, msg.Message.(tg.Message).ID)
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout waiting events, got %v", ids)
		}
	}
	return ids
}

func requireNoEvents(t *testing.T, sub *Subscription) {
	select {
	case e := <-sub.Events():
		t.Fatalf("unexpected event %#v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func seqIDs(from, to int32) []int32 {
	var ids []int32
	for i := from; i <= to; i++ {
		ids = append(ids, i)
	}
	return ids
}

func TestManager_GapRecoveredOnce(t *testing.T) {
	var missed []tg.MessageClass
	for i := int32(6); i <= 10; i++ {
		missed = append(missed, message(i))
	}
	srv := &fakeServer{
		diffs: []tg.DifferenceClass{
			tg.Difference{NewMessages: missed, State: tg.UpdatesState{Pts: 10}},
		},
	}

	m, sub := startManager(t, srv, nil, 100)
	m.Handle(batch(0, 5))
	m.Handle(batch(10, 15))
	m.Handle(batch(5, 10))

	require.Equal(t, seqIDs(1, 15), waitIDs(t, sub, 15))
	requireNoEvents(t, sub)

	diffs := srv.requests("updates.getDifference")
	require.Len(t, diffs, 1)
	require.Equal(t, int32(5), diffs[0].(tg.UpdatesGetDifference).Pts)
	require.Equal(t, int32(15), m.State().Pts)
}

func TestManager_Duplicates(t *testing.T) {
	srv := &fakeServer{}
	m, sub := startManager(t, srv, nil, 100)

	m.Handle(batch(0, 3))
	m.Handle(batch(0, 3))
	m.Handle(batch(1, 3))

	data, err := tl.Serialize(batch(3, 4), true)
	require.NoError(t, err)
	m.OnUpdates(data)

	require.Equal(t, seqIDs(1, 4), waitIDs(t, sub, 4))
	requireNoEvents(t, sub)
	require.Empty(t, srv.requests("updates.getDifference"))
}

func TestManager_ChannelScope(t *testing.T) {
	srv := &fakeServer{
		channels: []tg.ChannelDifferenceClass{
			tg.ChannelDifference{Pts: 101, NewMessages: []tg.MessageClass{channelMessage(101)}},
			tg.ChannelDifference{Final: true, Pts: 102, NewMessages: []tg.MessageClass{channelMessage(102)}},
		},
	}
	m, sub := startManager(t, srv, nil, 100)

	m.Handle(tg.Updates{
		Updates: []tg.Update{tg.UpdateNewChannelMessage{Message: channelMessage(100), Pts: 100, PtsCount: 1}},
		Chats:   []tg.ChatClass{tg.Channel{ID: 55, AccessHash: 9, Title: "news"}},
	})
	m.Handle(tg.Updates{
		Updates: []tg.Update{tg.UpdateNewChannelMessage{Message: channelMessage(103), Pts: 103, PtsCount: 1}},
	})

	var ids []int32
	for len(ids) < 4 {
		select {
		case e := <-sub.Events():
			msg := e.(NewMessage)
			require.Equal(t, int64(55), msg.ChannelID)
			ids = append(ids, msg.Message.(tg.Message).ID)
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout waiting events, got %v", ids)
		}
	}
	require.Equal(t, []int32{100, 101, 102, 103}, ids)

	reqs := srv.requests("updates.getChannelDifference")
	require.Len(t, reqs, 2)
	first := reqs[0].(tg.UpdatesGetChannelDifference)
	require.Equal(t, tg.InputChannel{ChannelID: 55, AccessHash: 9}, first.Channel)
	require.Equal(t, int32(100), first.Pts)
	require.Equal(t, int32(101), reqs[1].(tg.UpdatesGetChannelDifference).Pts)

	pts, ok := m.ChannelPts(55)
	require.True(t, ok)
	require.Equal(t, int32(103), pts)
	require.Equal(t, int32(0), m.State().Pts)
	require.Empty(t, srv.requests("updates.getDifference"))
}

func TestManager_DummyUpdate(t *testing.T) {
	srv := &fakeServer{}
	m, sub := startManager(t, srv, nil, 100)

	m.Handle(batch(0, 2))
	m.DummyUpdate(5, 3, 0)
	m.Handle(batch(5, 6))

	require.Equal(t, []int32{1, 2, 6}, waitIDs(t, sub, 3))
	require.Equal(t, int32(6), m.State().Pts)
	require.Empty(t, srv.requests("updates.getDifference"))
}

func TestManager_DropOldest(t *testing.T) {
	srv := &fakeServer{}
	m, sub := startManager(t, srv, nil, 2)

	m.Handle(batch(0, 5))

	require.Eventually(t, func() bool {
		return sub.Dropped() == 3
	}, 3*time.Second, 5*time.Millisecond)
	require.Equal(t, []int32{4, 5}, waitIDs(t, sub, 2))

	sub.Close()
	_, ok := <-sub.Events()
	require.False(t, ok)
}

func TestManager_QueueOverflow(t *testing.T) {
	var missed []tg.MessageClass
	for p := int32(2); p <= 300; p++ {
		missed = append(missed, message(p))
	}
	srv := &fakeServer{
		diffs: []tg.DifferenceClass{tg.Difference{NewMessages: missed, State: tg.UpdatesState{Pts: 300, Date: 1}}},
	}

	m := NewManager(Options{Invoker: srv, Backoff: fastBackoff})
	sub := m.Subscribe(400)

	// nobody reads queue yet, producer should not wait
	pushed := make(chan struct{})
	go func() {
		defer close(pushed)
		for p := int32(1); p <= 300; p++ {
			m.Handle(batch(p-1, p))
		}
	}()
	select {
	case <-pushed:
	case <-time.After(3 * time.Second):
		t.Fatal("handle is blocked by full queue")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	require.Equal(t, seqIDs(1, 300), waitIDs(t, sub, 300))
	require.Eventually(t, func() bool {
		return m.State().Pts == 300
	}, 3*time.Second, 5*time.Millisecond)
	require.Len(t, srv.requests("updates.getDifference"), 1)
}

func TestManager_ResumeFromStorage(t *testing.T) {
	storage := newMemoryStorage()
	require.NoError(t, storage.SetState(context.Background(), State{Pts: 5, Date: 10, Seq: 2}))

	srv := &fakeServer{
		diffs: []tg.DifferenceClass{tg.DifferenceEmpty{Date: 20, Seq: 2}},
	}
	m, sub := startManager(t, srv, storage, 100)
	m.Handle(batch(5, 6))

	require.Equal(t, []int32{6}, waitIDs(t, sub, 1))
	require.Empty(t, srv.requests("updates.getState"))

	diffs := srv.requests("updates.getDifference")
	require.Len(t, diffs, 1)
	require.Equal(t, int32(5), diffs[0].(tg.UpdatesGetDifference).Pts)

	st, ok, err := storage.GetState(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, State{Pts: 6, Date: 20, Seq: 2}, st)
}

func TestManager_RetryDifference(t *testing.T) {
	srv := &fakeServer{
		failures: 2,
		diffs: []tg.DifferenceClass{
			tg.DifferenceSlice{NewMessages: []tg.MessageClass{message(2)}, IntermediateState: tg.UpdatesState{Pts: 2}},
			tg.Difference{NewMessages: []tg.MessageClass{message(3)}, State: tg.UpdatesState{Pts: 3}},
		},
	}
	m, sub := startManager(t, srv, nil, 100)

	m.Handle(batch(0, 1))
	m.Handle(batch(3, 4))

	require.Equal(t, seqIDs(1, 4), waitIDs(t, sub, 4))

	// two failed attempts, then two pages
	diffs := srv.requests("updates.getDifference")
	require.Len(t, diffs, 4)
	require.Equal(t, int32(2), diffs[3].(tg.UpdatesGetDifference).Pts)
}

func TestManager_SeqGap(t *testing.T) {
	srv := &fakeServer{
		state: tg.UpdatesState{Seq: 1},
		diffs: []tg.DifferenceClass{tg.DifferenceEmpty{Date: 5, Seq: 3}},
	}
	m, sub := startManager(t, srv, nil, 100)

	first := batch(0, 1)
	first.Seq = 2
	m.Handle(first)
	m.Handle(first)

	next := batch(1, 2)
	next.Seq = 4
	m.Handle(next)

	require.Equal(t, []int32{1, 2}, waitIDs(t, sub, 2))
	requireNoEvents(t, sub)
	require.Len(t, srv.requests("updates.getDifference"), 1)
	require.Eventually(t, func() bool {
		return m.State().Seq == 4
	}, time.Second, 5*time.Millisecond)
}

func TestManager_Events(t *testing.T) {
	srv := &fakeServer{}
	m, sub := startManager(t, srv, nil, 100)

	m.Handle(tg.UpdateShort{Update: tg.UpdateUserStatus{UserID: 7, Status: tg.UserStatusOnline{Expires: 100}}})
	m.Handle(tg.UpdateShortMessage{ID: 1, UserID: 7, Message: "hey", Pts: 1, PtsCount: 1})
	m.Handle(tg.Updates{Updates: []tg.Update{
		tg.UpdateMessageReactions{Peer: tg.PeerUser{UserID: 7}, MsgID: 1},
		tg.UpdatePinnedChannelMessages{ChannelID: 55, Messages: []int32{1}, Pinned: true, Pts: 10, PtsCount: 1},
	}})

	var events []Event
	for len(events) < 4 {
		select {
		case e := <-sub.Events():
			events = append(events, e)
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout, got %d events", len(events))
		}
	}

	require.Equal(t, int64(7), events[0].(UserStatus).UserID)
	msg := events[1].(NewMessage).Message.(tg.Message)
	require.Equal(t, "hey", msg.Message)
	require.Equal(t, tg.PeerUser{UserID: 7}, msg.FromID)
	require.Equal(t, int32(1), events[2].(MessageReactions).MsgID)
	require.Equal(t, tg.PeerChannel{ChannelID: 55}, events[3].(PinnedMessages).Peer)
	for _, e := range events {
		require.NotNil(t, e.Peers())
	}
}

func TestGapRecoveryError(t *testing.T) {
	base := errors.New("timeout")
	err := &GapRecoveryError{Scope: 55, Attempt: 2, Err: base}
	require.ErrorIs(t, err, base)
	require.Equal(t, "failed to recover gap of channel 55, attempt 2: timeout", err.Error())
}
