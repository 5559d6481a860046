package mtproto

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xssnick/tgutils-go/crypto"
	"github.com/xssnick/tgutils-go/proto"
	"github.com/xssnick/tgutils-go/tgerr"
	"github.com/xssnick/tgutils-go/tl"
	"github.com/xssnick/tgutils-go/transport"
)

type testEcho struct {
	Value int64  `tl:"long"`
	Text  string `tl:"string"`
}

var testEchoID = tl.Register(testEcho{}, "test.echo value:long text:string = test.Echo")

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func testServerKey(t *testing.T) *rsa.PrivateKey {
	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
	})
	return testKey
}

func echoHandler(block <-chan struct{}) RequestHandler {
	return func(ctx context.Context, client *ServerClient, req []byte) (tl.Serializable, error) {
		var e testEcho
		if _, err := tl.Parse(&e, req, true); err != nil {
			return nil, err
		}

		switch e.Text {
		case "fail":
			return nil, &tgerr.Error{Code: 400, Message: "FAIL_REQUEST"}
		case "block":
			select {
			case <-block:
			case <-ctx.Done():
			}
		}
		return e, nil
	}
}

func newServer(t *testing.T) *Server {
	srv := NewServer(testServerKey(t), nil)
	srv.SetRequestHandler(echoHandler(nil))
	t.Cleanup(func() {
		_ = srv.Close()
	})
	return srv
}

func connect(t *testing.T, srv *Server, opts Options) *Conn {
	opts.Dial = srv.Dial
	opts.PublicKeys = []*rsa.PublicKey{&testServerKey(t).PublicKey}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := New(opts)
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

func echo(t *testing.T, c *Conn, value int64, text string) (testEcho, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var res testEcho
	err := c.Invoke(ctx, testEcho{Value: value, Text: text}, &res)
	return res, err
}

func TestConn_Invoke(t *testing.T) {
	srv := newServer(t)

	var gotKey crypto.AuthKey
	c := connect(t, srv, Options{
		OnKey: func(key crypto.AuthKey, salt int64) {
			gotKey = key
		},
	})

	require.Equal(t, StateAuthenticated, c.State())
	require.False(t, gotKey.IsZero())
	require.Equal(t, gotKey, c.AuthKey())
	require.True(t, srv.HasKey(c.AuthKey()))

	res, err := echo(t, c, 7, "hello")
	require.NoError(t, err)
	require.Equal(t, testEcho{Value: 7, Text: "hello"}, res)

	// big result is packed by server
	long := strings.Repeat("abcd", 1000)
	res, err = echo(t, c, 8, long)
	require.NoError(t, err)
	require.Equal(t, long, res.Text)
}

func TestConn_RPCError(t *testing.T) {
	c := connect(t, newServer(t), Options{})

	_, err := echo(t, c, 1, "fail")
	require.Error(t, err)

	te, ok := tgerr.As(err)
	require.True(t, ok)
	require.Equal(t, 400, te.Code)
	require.Equal(t, "FAIL_REQUEST", te.Type)

	// connection is still usable
	_, err = echo(t, c, 2, "ok")
	require.NoError(t, err)
}

func TestConn_BadServerSalt(t *testing.T) {
	srv := newServer(t)
	c := connect(t, srv, Options{})

	_, err := echo(t, c, 1, "first")
	require.NoError(t, err)

	srv.RotateSalt(777)

	res, err := echo(t, c, 2, "second")
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Value)
	require.Equal(t, int64(777), c.Salt())
}

func TestConn_Concurrent(t *testing.T) {
	c := connect(t, newServer(t), Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int64) {
			defer wg.Done()

			res, err := echo(t, c, i, "concurrent")
			if err != nil {
				errs <- err
				return
			}
			if res.Value != i {
				errs <- errors.New("result of another call")
			}
		}(int64(i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatal(err)
	}
}

func TestConn_TimeoutFreesPending(t *testing.T) {
	srv := newServer(t)
	release := make(chan struct{})
	srv.SetRequestHandler(echoHandler(release))

	c := connect(t, srv, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.Invoke(ctx, testEcho{Value: 1, Text: "block"}, &testEcho{})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	c.reqMx.Lock()
	left := len(c.pending)
	c.reqMx.Unlock()
	require.Equal(t, 0, left)

	// late answer is ignored
	close(release)

	res, err := echo(t, c, 2, "after")
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Value)
}

func TestConn_BadMsgTimeResync(t *testing.T) {
	srv := newServer(t)

	var rejected atomic.Bool
	srv.SetMessageHook(func(client *ServerClient, msgID int64, seqNo int32, body []byte) bool {
		id, _ := tl.PeekID(body)
		if id != testEchoID || !rejected.CompareAndSwap(false, true) {
			return false
		}

		_ = client.Send(proto.BadMsgNotification{
			BadMsgID:    msgID,
			BadMsgSeqNo: seqNo,
			ErrorCode:   proto.BadMsgIDTooLow,
		}, false)
		return true
	})

	c := connect(t, srv, Options{})

	res, err := echo(t, c, 5, "resent")
	require.NoError(t, err)
	require.Equal(t, int64(5), res.Value)
	require.True(t, rejected.Load())
}

func TestConn_BadMsgFatal(t *testing.T) {
	srv := newServer(t)
	srv.SetMessageHook(func(client *ServerClient, msgID int64, seqNo int32, body []byte) bool {
		id, _ := tl.PeekID(body)
		if id != testEchoID {
			return false
		}

		_ = client.Send(proto.BadMsgNotification{
			BadMsgID:    msgID,
			BadMsgSeqNo: seqNo,
			ErrorCode:   proto.BadMsgContainer,
		}, false)
		return true
	})

	c := connect(t, srv, Options{})

	_, err := echo(t, c, 5, "rejected")
	var bad *BadMsgError
	require.ErrorAs(t, err, &bad)
	require.Equal(t, int32(proto.BadMsgContainer), bad.Code)
}

func TestConn_UnknownKey(t *testing.T) {
	srv := newServer(t)

	c := connect(t, srv, Options{})
	key, salt := c.AuthKey(), c.Salt()
	require.NoError(t, c.Close())

	srv.ForgetKeys()

	c2 := connect(t, srv, Options{Key: key, Salt: salt})
	_, err := echo(t, c2, 1, "x")
	require.Error(t, err)
	require.True(t, NeedsRekey(err), err.Error())

	select {
	case <-c2.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection should be dead")
	}
	require.Equal(t, StateDisconnected, c2.State())
}

func TestConn_ReuseKey(t *testing.T) {
	srv := newServer(t)

	c := connect(t, srv, Options{})
	key, salt := c.AuthKey(), c.Salt()
	require.NoError(t, c.Close())

	exchanged := false
	c2 := connect(t, srv, Options{Key: key, Salt: salt, OnKey: func(crypto.AuthKey, int64) {
		exchanged = true
	}})
	require.False(t, exchanged)
	require.Equal(t, key, c2.AuthKey())

	_, err := echo(t, c2, 1, "x")
	require.NoError(t, err)
}

type testHandler struct {
	updates  chan []byte
	sessions atomic.Int32
}

func (h *testHandler) OnUpdates(data []byte) {
	h.updates <- data
}

func (h *testHandler) OnSessionCreated() {
	h.sessions.Add(1)
}

func TestConn_ServiceMessages(t *testing.T) {
	srv := newServer(t)
	h := &testHandler{updates: make(chan []byte, 1)}
	c := connect(t, srv, Options{Handler: h})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.RefreshSalts(ctx))
	require.Equal(t, int32(1), h.sessions.Load())

	require.NoError(t, srv.Push(testEcho{Value: 99, Text: "update"}))

	select {
	case data := <-h.updates:
		var upd testEcho
		_, err := tl.Parse(&upd, data, true)
		require.NoError(t, err)
		require.Equal(t, int64(99), upd.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("update was not delivered")
	}
}

func TestConn_Close(t *testing.T) {
	c := connect(t, newServer(t), Options{})

	require.NoError(t, c.Close())
	require.Equal(t, StateDisconnected, c.State())
	require.ErrorIs(t, c.Err(), ErrClosed)

	_, err := echo(t, c, 1, "x")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyUsed)
}

func TestConn_ConnectFailedTwice(t *testing.T) {
	c := New(Options{
		Dial: func(ctx context.Context, addr string, opts transport.Options) (*transport.Conn, error) {
			return nil, errors.New("refused")
		},
	})

	var te *TransportError
	require.ErrorAs(t, c.Connect(context.Background()), &te)
	require.Equal(t, StateDisconnected, c.State())

	select {
	case <-c.Done():
	default:
		t.Fatal("failed connection should be done")
	}

	require.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyUsed)
	require.NoError(t, c.Close())
}

func TestConn_ExpiredSaltResend(t *testing.T) {
	srv := newServer(t)
	c := connect(t, srv, Options{SaltGrace: time.Millisecond})

	oldSalt := c.Salt()
	srv.RotateSalt(777)

	_, err := echo(t, c, 1, "rotate")
	require.NoError(t, err)
	require.Equal(t, int64(777), c.Salt())

	// old salt is out of grace window now
	time.Sleep(20 * time.Millisecond)

	var hits atomic.Int32
	srv.SetMessageHook(func(client *ServerClient, msgID int64, seqNo int32, body []byte) bool {
		var e testEcho
		if _, err := tl.Parse(&e, body, true); err != nil || e.Text != "stale" {
			return false
		}
		if hits.Add(1) > 1 {
			return false
		}

		data, _ := tl.Serialize(e, true)
		_ = client.SendSalted(proto.RPCResult{ReqMsgID: msgID, Result: data}, true, oldSalt)
		return true
	})

	res, err := echo(t, c, 2, "stale")
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Value)
	require.Equal(t, int32(2), hits.Load(), "call should be resent after salts refresh")
}
