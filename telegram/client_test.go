package telegram

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tgutils-go/mtproto"
	"github.com/xssnick/tgutils-go/proto"
	"github.com/xssnick/tgutils-go/rpc"
	"github.com/xssnick/tgutils-go/storage"
	"github.com/xssnick/tgutils-go/tg"
	"github.com/xssnick/tgutils-go/tgerr"
	"github.com/xssnick/tgutils-go/tl"
	"github.com/xssnick/tgutils-go/transport"
	"github.com/xssnick/tgutils-go/updates"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func serverKey(t *testing.T) *rsa.PrivateKey {
	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
	})
	return testKey
}

type call struct {
	req     tl.Serializable
	wrapped bool
}

// testDC - local data center, requests are unwrapped from initConnection before handler
type testDC struct {
	srv *mtproto.Server

	mx    sync.Mutex
	calls []call
}

func newDC(t *testing.T, handle func(req tl.Serializable) (tl.Serializable, error)) *testDC {
	d := &testDC{srv: mtproto.NewServer(serverKey(t), nil)}
	d.srv.SetRequestHandler(func(ctx context.Context, _ *mtproto.ServerClient, data []byte) (tl.Serializable, error) {
		var req tl.Serializable
		if _, err := tl.Parse(&req, data, true); err != nil {
			return nil, err
		}

		wrapped := false
		if l, ok := req.(tg.InvokeWithLayer); ok {
			wrapped = true
			req = l.Query
		}
		if i, ok := req.(tg.InitConnection); ok {
			req = i.Query
		}

		d.mx.Lock()
		d.calls = append(d.calls, call{req: req, wrapped: wrapped})
		d.mx.Unlock()

		switch req.(type) {
		case tg.UpdatesGetState:
			return tg.UpdatesState{Pts: 10, Date: 1}, nil
		case tg.UpdatesGetDifference:
			return tg.DifferenceEmpty{Date: 1}, nil
		}
		return handle(req)
	})
	t.Cleanup(func() {
		_ = d.srv.Close()
	})
	return d
}

func (d *testDC) requests(name string) []call {
	d.mx.Lock()
	defer d.mx.Unlock()

	var res []call
	for _, c := range d.calls {
		if tl.NameOf(c.req) == name {
			res = append(res, c)
		}
	}
	return res
}

func fastReconnect() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
}

func newClient(t *testing.T, dcs map[int]*testDC, modify func(o *Options)) *Client {
	addrs := map[int]string{}
	byAddr := map[string]*testDC{}
	for id, d := range dcs {
		addr := "dc" + string(rune('0'+id))
		addrs[id] = addr
		byAddr[addr] = d
	}

	opts := Options{
		APIID:      1,
		APIHash:    "hash",
		DCs:        addrs,
		PrimaryDC:  2,
		PublicKeys: []*rsa.PublicKey{&serverKey(t).PublicKey},
		Dial: func(ctx context.Context, addr string, to transport.Options) (*transport.Conn, error) {
			d, ok := byAddr[addr]
			if !ok {
				return nil, errors.New("no route")
			}
			return d.srv.Dial(ctx, addr, to)
		},
		Reconnect: fastReconnect,
	}
	if modify != nil {
		modify(&opts)
	}

	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

func runClient(t *testing.T, c *Client) {
	ctx, cancel := context.WithCancel(context.Background())
	res := make(chan error, 1)
	go func() {
		res <- c.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-res:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("client is not stopped")
		}
	})

	require.Eventually(t, func() bool {
		return c.Updates().State().Pts == 10
	}, 10*time.Second, 10*time.Millisecond, "state should be fetched")
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func reactionsResult(msgID int32) tg.Updates {
	return tg.Updates{Updates: []tg.Update{
		tg.UpdateMessageReactions{
			Peer:  tg.PeerUser{UserID: 7},
			MsgID: msgID,
			Reactions: tg.MessageReactions{Results: []tg.ReactionCount{
				{Reaction: tg.ReactionPaid{}, Count: 5},
			}},
		},
	}}
}

func TestNew_Validate(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{APIID: 1, DCs: map[int]string{1: "a:1"}, PrimaryDC: 2})
	require.Error(t, err)
}

func TestClient_SendPaidReactionStaleID(t *testing.T) {
	var fails atomic.Int32
	d := newDC(t, func(req tl.Serializable) (tl.Serializable, error) {
		if _, ok := req.(tg.MessagesSendPaidReaction); !ok {
			return nil, errors.New("unexpected")
		}
		if fails.Add(1) <= 2 {
			return nil, tgerr.New(400, tgerr.TypeRandomIDExpired)
		}
		return reactionsResult(3), nil
	})
	c := newClient(t, map[int]*testDC{2: d}, nil)

	res, err := c.SendPaidReaction(testCtx(t), tg.InputPeerUser{UserID: 7}, 3, 5, false)
	require.NoError(t, err)
	require.Equal(t, int32(3), res.MsgID)
	require.Equal(t, tg.PeerUser{UserID: 7}, res.Peer)
	require.Len(t, res.Reactions.Results, 1)
	require.NotNil(t, res.Peers())

	calls := d.requests("messages.sendPaidReaction")
	require.Len(t, calls, 3)
	require.True(t, calls[0].wrapped, "first request of connection should carry initConnection")
	require.False(t, calls[1].wrapped)

	// random ids are message ids, server rejects too old ones
	var last int64
	for _, cl := range calls {
		id := cl.req.(tg.MessagesSendPaidReaction).RandomID
		require.Greater(t, id, last, "every attempt should have fresh random id")
		require.WithinDuration(t, time.Now(), proto.TimeOf(id), time.Minute)
		last = id
	}
}

func TestClient_SendPaidReactionExhausted(t *testing.T) {
	d := newDC(t, func(req tl.Serializable) (tl.Serializable, error) {
		return nil, tgerr.New(400, tgerr.TypeRandomIDExpired)
	})
	c := newClient(t, map[int]*testDC{2: d}, nil)

	_, err := c.SendPaidReaction(testCtx(t), tg.InputPeerSelf{}, 1, 1, true)
	require.ErrorIs(t, err, rpc.ErrRetriesExhausted)
	require.True(t, tgerr.Is(err, tgerr.TypeRandomIDExpired))
	require.Len(t, d.requests("messages.sendPaidReaction"), 3)
}

func TestClient_SendPaidReactionUnexpected(t *testing.T) {
	d := newDC(t, func(req tl.Serializable) (tl.Serializable, error) {
		return tg.UpdatesTooLong{}, nil
	})
	c := newClient(t, map[int]*testDC{2: d}, nil)

	_, err := c.SendPaidReaction(testCtx(t), tg.InputPeerSelf{}, 1, 1, false)
	require.ErrorIs(t, err, ErrUnexpectedResult)
}

func TestClient_UnpinAllMessages(t *testing.T) {
	var page atomic.Int32
	d := newDC(t, func(req tl.Serializable) (tl.Serializable, error) {
		if _, ok := req.(tg.MessagesUnpinAllMessages); !ok {
			return nil, errors.New("unexpected")
		}
		if page.Add(1) == 1 {
			return tg.MessagesAffectedHistory{Pts: 11, PtsCount: 1, Offset: 20}, nil
		}
		return tg.MessagesAffectedHistory{Pts: 13, PtsCount: 2}, nil
	})
	c := newClient(t, map[int]*testDC{2: d}, nil)
	runClient(t, c)

	require.NoError(t, c.UnpinAllMessages(testCtx(t), tg.InputPeerUser{UserID: 1}, 0))
	require.Len(t, d.requests("messages.unpinAllMessages"), 2)

	require.Eventually(t, func() bool {
		return c.Updates().State().Pts == 13
	}, 5*time.Second, 10*time.Millisecond)
	// only catch up of new session could ask for difference, pts moved without gaps
	require.LessOrEqual(t, len(d.requests("updates.getDifference")), 1)
}

func TestClient_UpdatesFromPrimary(t *testing.T) {
	d := newDC(t, func(req tl.Serializable) (tl.Serializable, error) {
		return nil, errors.New("unexpected")
	})
	c := newClient(t, map[int]*testDC{2: d}, nil)
	runClient(t, c)

	sub := c.Updates().Subscribe(10)
	defer sub.Close()

	require.NoError(t, d.srv.Push(tg.Updates{Updates: []tg.Update{
		tg.UpdateNewMessage{Message: tg.Message{ID: 5, PeerID: tg.PeerUser{UserID: 1}}, Pts: 11, PtsCount: 1},
	}}))

	select {
	case e := <-sub.Events():
		nm, ok := e.(updates.NewMessage)
		require.True(t, ok)
		require.Equal(t, int32(5), nm.Message.GetID())
	case <-time.After(5 * time.Second):
		t.Fatal("update is not delivered")
	}
}

func TestClient_UpdatesWithoutRun(t *testing.T) {
	d := newDC(t, func(req tl.Serializable) (tl.Serializable, error) {
		return tg.NearestDC{NearestDC: 2}, nil
	})
	c := newClient(t, map[int]*testDC{2: d}, nil)
	require.NoError(t, c.Connect(testCtx(t)))

	_, err := c.NearestDC(testCtx(t))
	require.NoError(t, err)

	// pipeline is not running, its queue overflows but responses are still routed
	for i := 0; i < 300; i++ {
		require.NoError(t, d.srv.Push(tg.UpdateShort{Update: tg.UpdateUserStatus{UserID: 1, Status: tg.UserStatusOnline{Expires: 1}}}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dc, err := c.NearestDC(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, dc)
}

func TestClient_Migrate(t *testing.T) {
	d2 := newDC(t, func(req tl.Serializable) (tl.Serializable, error) {
		switch v := req.(type) {
		case tg.HelpGetNearestDC:
			return nil, tgerr.New(303, "USER_MIGRATE_4")
		case tg.AuthExportAuthorization:
			if v.DCID != 4 {
				return nil, errors.New("bad dc")
			}
			return tg.AuthExportedAuthorization{ID: 77, Bytes: []byte("auth")}, nil
		}
		return nil, errors.New("unexpected")
	})

	var imported atomic.Int64
	d4 := newDC(t, func(req tl.Serializable) (tl.Serializable, error) {
		switch v := req.(type) {
		case tg.HelpGetNearestDC:
			return tg.NearestDC{Country: "NL", ThisDC: 4, NearestDC: 4}, nil
		case tg.AuthImportAuthorization:
			imported.Store(v.ID)
			return tg.AuthAuthorization{User: tg.UserEmpty{ID: 1}}, nil
		}
		return nil, errors.New("unexpected")
	})

	st := storage.NewMemory()
	c := newClient(t, map[int]*testDC{2: d2, 4: d4}, func(o *Options) {
		o.Storage = st
	})
	require.NoError(t, c.Connect(testCtx(t)))

	dc, err := c.NearestDC(testCtx(t))
	require.NoError(t, err)
	require.Equal(t, 4, dc)
	require.Equal(t, 4, c.Primary())
	require.Equal(t, int64(77), imported.Load())

	calls := d4.requests("auth.importAuthorization")
	require.Len(t, calls, 1)
	require.True(t, calls[0].wrapped)

	stored, ok, err := st.GetPrimaryDC(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 4, stored)

	c.mx.RLock()
	_, oldAlive := c.conns[2]
	c.mx.RUnlock()
	require.False(t, oldAlive, "connection to old dc should be closed")

	// next client starts from stored dc
	c2 := newClient(t, map[int]*testDC{2: d2, 4: d4}, func(o *Options) {
		o.Storage = st
	})
	require.NoError(t, c2.Connect(testCtx(t)))
	require.Equal(t, 4, c2.Primary())
}

func TestClient_MigrateConcurrent(t *testing.T) {
	d2 := newDC(t, func(req tl.Serializable) (tl.Serializable, error) {
		if _, ok := req.(tg.AuthExportAuthorization); ok {
			return tg.AuthExportedAuthorization{ID: 1, Bytes: []byte("auth")}, nil
		}
		return nil, errors.New("unexpected")
	})
	d4 := newDC(t, func(req tl.Serializable) (tl.Serializable, error) {
		if _, ok := req.(tg.AuthImportAuthorization); ok {
			return tg.AuthAuthorization{User: tg.UserEmpty{ID: 1}}, nil
		}
		return nil, errors.New("unexpected")
	})
	c := newClient(t, map[int]*testDC{2: d2, 4: d4}, nil)
	require.NoError(t, c.Connect(testCtx(t)))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Migrate(testCtx(t), 4)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 4, c.Primary())
	require.Len(t, d2.requests("auth.exportAuthorization"), 1)
	require.Len(t, d4.requests("auth.importAuthorization"), 1)

	c.mx.RLock()
	_, oldAlive := c.conns[2]
	c.mx.RUnlock()
	require.False(t, oldAlive, "old dc should not be redialed")
}

func TestClient_MigrateNotAuthorized(t *testing.T) {
	d2 := newDC(t, func(req tl.Serializable) (tl.Serializable, error) {
		switch req.(type) {
		case tg.HelpGetNearestDC:
			return nil, tgerr.New(303, "PHONE_MIGRATE_4")
		case tg.AuthExportAuthorization:
			return nil, tgerr.New(401, tgerr.TypeAuthKeyUnreg)
		}
		return nil, errors.New("unexpected")
	})
	d4 := newDC(t, func(req tl.Serializable) (tl.Serializable, error) {
		if _, ok := req.(tg.HelpGetNearestDC); ok {
			return tg.NearestDC{NearestDC: 4}, nil
		}
		return nil, errors.New("unexpected")
	})
	c := newClient(t, map[int]*testDC{2: d2, 4: d4}, nil)

	_, err := c.NearestDC(testCtx(t))
	require.NoError(t, err)
	require.Equal(t, 4, c.Primary())
	require.Empty(t, d4.requests("auth.importAuthorization"))
}

func TestClient_Fatal(t *testing.T) {
	var dials atomic.Int32
	var reported atomic.Int32
	c := newClient(t, map[int]*testDC{}, func(o *Options) {
		o.DCs = map[int]string{2: "dc2"}
		o.Dial = func(ctx context.Context, addr string, _ transport.Options) (*transport.Conn, error) {
			dials.Add(1)
			return nil, errors.New("connection refused")
		}
		o.OnFatal = func(err error) {
			reported.Add(1)
		}
	})

	err := c.Connect(testCtx(t))
	require.ErrorIs(t, err, ErrFatal)
	require.Equal(t, int32(3), dials.Load())

	select {
	case <-c.Fatal():
	default:
		t.Fatal("fatal should be signalled")
	}
	require.ErrorIs(t, c.Err(), ErrFatal)

	err = c.Call(testCtx(t), tg.HelpGetNearestDC{}, &tg.NearestDC{})
	require.ErrorIs(t, err, ErrFatal)
	require.Equal(t, int32(3), dials.Load(), "dead client should not dial")
	require.Equal(t, int32(1), reported.Load())

	require.ErrorIs(t, c.Run(testCtx(t)), ErrFatal)
}

func TestClient_SessionPersisted(t *testing.T) {
	d := newDC(t, func(req tl.Serializable) (tl.Serializable, error) {
		return tg.NearestDC{NearestDC: 2}, nil
	})
	st := storage.NewMemory()

	c := newClient(t, map[int]*testDC{2: d}, func(o *Options) {
		o.Storage = st
	})
	require.NoError(t, c.Connect(testCtx(t)))

	sess, ok, err := st.GetSession(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, sess.Key.IsZero())
	require.NoError(t, c.Close())

	c2 := newClient(t, map[int]*testDC{2: d}, func(o *Options) {
		o.Storage = st
	})
	require.NoError(t, c2.Connect(testCtx(t)))

	c2.mx.RLock()
	key := c2.conns[2].conn.AuthKey()
	c2.mx.RUnlock()
	require.Equal(t, sess.Key, key, "stored key should be reused")
}

func TestClient_Rekey(t *testing.T) {
	d := newDC(t, func(req tl.Serializable) (tl.Serializable, error) {
		return tg.NearestDC{NearestDC: 2}, nil
	})
	st := storage.NewMemory()
	c := newClient(t, map[int]*testDC{2: d}, func(o *Options) {
		o.Storage = st
	})
	require.NoError(t, c.Connect(testCtx(t)))

	old, _, err := st.GetSession(context.Background(), 2)
	require.NoError(t, err)

	// server forgets key while client is offline
	c.mx.RLock()
	cur := c.conns[2]
	c.mx.RUnlock()
	c.drop(2, cur)
	d.srv.ForgetKeys()

	_, err = c.NearestDC(testCtx(t))
	require.NoError(t, err)

	sess, ok, err := st.GetSession(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, old.Key, sess.Key, "key should be regenerated")
	require.True(t, d.srv.HasKey(sess.Key))
}
