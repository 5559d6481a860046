package exchange

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xssnick/tgutils-go/crypto"
)

type chanConn struct {
	in  chan []byte
	out chan []byte
}

func (c *chanConn) Send(b []byte) error {
	c.out <- append([]byte{}, b...)
	return nil
}

func (c *chanConn) Recv() ([]byte, error) {
	b, ok := <-c.in
	if !ok {
		return nil, errors.New("closed")
	}
	return b, nil
}

func connPair() (*chanConn, *chanConn) {
	a, b := make(chan []byte, 4), make(chan []byte, 4)
	return &chanConn{in: a, out: b}, &chanConn{in: b, out: a}
}

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

func TestExchange(t *testing.T) {
	key := serverKey(t)
	cl, sv := connPair()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv := &Server{Key: key, Now: func() time.Time { return time.Now().Add(time.Minute) }}

	type res struct {
		r   Result
		err error
	}
	ch := make(chan res, 1)
	go func() {
		r, err := srv.Run(ctx, sv)
		ch <- res{r, err}
	}()

	client := NewClient(cl, ClientOptions{Keys: []*rsa.PublicKey{&key.PublicKey}, DC: 2})
	cr, err := client.Run(ctx)
	require.NoError(t, err)

	sr := <-ch
	require.NoError(t, sr.err)

	require.Equal(t, sr.r.Key, cr.Key)
	require.Equal(t, sr.r.Salt, cr.Salt)
	require.False(t, cr.Key.IsZero())
	require.InDelta(t, time.Minute.Seconds(), cr.TimeOffset.Seconds(), 2)
}

func TestExchange_UnknownKey(t *testing.T) {
	key := serverKey(t)
	cl, sv := connPair()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go func() {
		_, _ = (&Server{Key: key}).Run(ctx, sv)
	}()

	other := &rsa.PublicKey{N: new(big.Int).Add(key.N, big.NewInt(2)), E: key.E}
	_, err := NewClient(cl, ClientOptions{Keys: []*rsa.PublicKey{other}}).Run(ctx)
	require.ErrorIs(t, err, ErrNoKey)
}

func TestExchange_ContextCancel(t *testing.T) {
	cl, _ := connPair()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(cl, ClientOptions{}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRSAPad(t *testing.T) {
	key := serverKey(t)
	c := crypto.Default

	data := []byte("some inner data which is less than 144 bytes")
	enc, err := rsaPad(c, data, &key.PublicKey)
	require.NoError(t, err)
	require.Len(t, enc, 256)

	dec, err := rsaUnpad(c, enc, key)
	require.NoError(t, err)
	require.Equal(t, data, dec[:len(data)])

	enc[100] ^= 1
	_, err = rsaUnpad(c, enc, key)
	require.Error(t, err)

	_, err = rsaPad(c, make([]byte, 145), &key.PublicKey)
	require.Error(t, err)
}

func TestCheckDHParams(t *testing.T) {
	require.NoError(t, checkDHParams(KnownPrime, 3))
	require.NoError(t, checkDHParams(KnownPrime, 4))
	require.NoError(t, checkDHParams(KnownPrime, 7))
	require.ErrorIs(t, checkDHParams(KnownPrime, 2), ErrBadDHParams)
	require.ErrorIs(t, checkDHParams(KnownPrime, 5), ErrBadDHParams)
	require.ErrorIs(t, checkDHParams(big.NewInt(23), 4), ErrBadDHParams)

	notPrime := new(big.Int).Add(KnownPrime, big.NewInt(2))
	require.ErrorIs(t, checkDHParams(notPrime, 4), ErrBadDHParams)

	require.ErrorIs(t, checkGA(big.NewInt(1), KnownPrime), ErrBadDHParams)
	require.ErrorIs(t, checkGA(big.NewInt(1000), KnownPrime), ErrBadDHParams)
	require.ErrorIs(t, checkGA(new(big.Int).Sub(KnownPrime, big.NewInt(2)), KnownPrime), ErrBadDHParams)
	require.NoError(t, checkGA(new(big.Int).Rsh(KnownPrime, 1), KnownPrime))
}

func TestPublicKeyPEM(t *testing.T) {
	key := serverKey(t)
	pemData := EncodePublicKey(&key.PublicKey)

	parsed, err := ParsePublicKey(pemData)
	require.NoError(t, err)
	require.Equal(t, 0, parsed.N.Cmp(key.N))
	require.Equal(t, Fingerprint(crypto.Default, parsed), Fingerprint(crypto.Default, &key.PublicKey))

	_, err = ParsePublicKey([]byte("garbage"))
	require.Error(t, err)
}
