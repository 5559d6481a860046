// Package exchange implements mtproto diffie-hellman key exchange,
// client side and server side.
package exchange

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/xssnick/tgutils-go/crypto"
	"github.com/xssnick/tgutils-go/proto"
	"github.com/xssnick/tgutils-go/tl"
	"go.uber.org/zap"
)

// Conn - framed connection, exchange uses only unencrypted messages
type Conn interface {
	Send(b []byte) error
	Recv() ([]byte, error)
}

type Result struct {
	Key        crypto.AuthKey
	Salt       int64
	TimeOffset time.Duration
}

var ErrNonceMismatch = errors.New("nonce mismatch")
var ErrNoKey = errors.New("no public key with fingerprint from server")
var ErrDHFailed = errors.New("server failed diffie-hellman exchange")

const maxRetries = 5

type ClientOptions struct {
	Keys   []*rsa.PublicKey
	DC     int
	Crypto crypto.Provider
	Logger *zap.Logger
	Now    func() time.Time
}

type Client struct {
	conn   Conn
	keys   []*rsa.PublicKey
	dc     int
	crypto crypto.Provider
	log    *zap.Logger
	now    func() time.Time
	msgID  *proto.MsgIDGen
}

func NewClient(conn Conn, opts ClientOptions) *Client {
	if opts.Crypto == nil {
		opts.Crypto = crypto.Default
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Client{
		conn:   conn,
		keys:   opts.Keys,
		dc:     opts.DC,
		crypto: opts.Crypto,
		log:    opts.Logger.Named("exchange"),
		now:    opts.Now,
		msgID:  proto.NewMsgIDGen(proto.SideClient, opts.Now),
	}
}

// Run - performs key exchange. Blocking reads are not interrupted by ctx,
// so connection must be closed by caller when error is returned.
func (c *Client) Run(ctx context.Context) (Result, error) {
	type res struct {
		r   Result
		err error
	}

	ch := make(chan res, 1)
	go func() {
		r, err := c.run()
		ch <- res{r, err}
	}()

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		return r.r, r.err
	}
}

func (c *Client) send(v tl.Serializable) error {
	data, err := tl.Serialize(v, true)
	if err != nil {
		return err
	}
	return c.conn.Send(proto.EncodePlain(c.msgID.New(), data))
}

func (c *Client) recv(v tl.Serializable) error {
	frame, err := c.conn.Recv()
	if err != nil {
		return err
	}

	_, body, err := proto.DecodePlain(frame)
	if err != nil {
		return err
	}

	if _, err = tl.Parse(v, body, true); err != nil {
		return fmt.Errorf("failed to parse %s: %w", tl.NameOf(v), err)
	}
	return nil
}

func (c *Client) run() (Result, error) {
	var nonce [16]byte
	if err := c.crypto.RandomFill(nonce[:]); err != nil {
		return Result{}, err
	}

	if err := c.send(ReqPQMulti{Nonce: nonce}); err != nil {
		return Result{}, fmt.Errorf("failed to send req_pq_multi: %w", err)
	}

	var pq ResPQ
	if err := c.recv(&pq); err != nil {
		return Result{}, err
	}
	if pq.Nonce != nonce {
		return Result{}, ErrNonceMismatch
	}

	key, fp := c.selectKey(pq.Fingerprints)
	if key == nil {
		return Result{}, ErrNoKey
	}

	p, q, err := c.crypto.FactorizePQ(pq.PQ)
	if err != nil {
		return Result{}, err
	}

	var newNonce [32]byte
	if err = c.crypto.RandomFill(newNonce[:]); err != nil {
		return Result{}, err
	}

	inner, err := tl.Serialize(PQInnerDataDC{
		PQ:          pq.PQ,
		P:           p,
		Q:           q,
		Nonce:       nonce,
		ServerNonce: pq.ServerNonce,
		NewNonce:    newNonce,
		DC:          int32(c.dc),
	}, true)
	if err != nil {
		return Result{}, err
	}

	encrypted, err := rsaPad(c.crypto, inner, key)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encrypt inner data: %w", err)
	}

	err = c.send(ReqDHParams{
		Nonce:         nonce,
		ServerNonce:   pq.ServerNonce,
		P:             p,
		Q:             q,
		Fingerprint:   fp,
		EncryptedData: encrypted,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to send req_DH_params: %w", err)
	}

	var params any
	if err = c.recv(&params); err != nil {
		return Result{}, err
	}

	var dhOK ServerDHParamsOK
	switch t := params.(type) {
	case ServerDHParamsOK:
		dhOK = t
	case ServerDHParamsFail:
		return Result{}, fmt.Errorf("%w: server_DH_params_fail", ErrDHFailed)
	default:
		return Result{}, fmt.Errorf("unexpected answer %s", tl.NameOf(params))
	}
	if dhOK.Nonce != nonce || dhOK.ServerNonce != pq.ServerNonce {
		return Result{}, ErrNonceMismatch
	}

	ige, err := tmpAES(c.crypto, newNonce, pq.ServerNonce)
	if err != nil {
		return Result{}, err
	}

	var dh ServerDHInnerData
	if err = decryptWithHash(c.crypto, ige, dhOK.EncryptedAnswer, &dh); err != nil {
		return Result{}, err
	}
	if dh.Nonce != nonce || dh.ServerNonce != pq.ServerNonce {
		return Result{}, ErrNonceMismatch
	}

	prime := new(big.Int).SetBytes(dh.DHPrime)
	if err = checkDHParams(prime, dh.G); err != nil {
		return Result{}, err
	}
	ga := new(big.Int).SetBytes(dh.GA)
	if err = checkGA(ga, prime); err != nil {
		return Result{}, err
	}

	offset := time.Unix(int64(dh.ServerTime), 0).Sub(c.now())
	c.msgID.SetOffset(offset)

	g := big.NewInt(int64(dh.G))
	var retryID int64
	for i := 0; i < maxRetries; i++ {
		bRaw, err := c.crypto.RandomBytes(256)
		if err != nil {
			return Result{}, err
		}
		b := new(big.Int).SetBytes(bRaw)

		gb := new(big.Int).Exp(g, b, prime)
		if err = checkGA(gb, prime); err != nil {
			c.log.Debug("generated g_b is unsafe, regenerating")
			continue
		}

		authKey, err := crypto.NewAuthKey(new(big.Int).Exp(ga, b, prime).FillBytes(make([]byte, 256)))
		if err != nil {
			return Result{}, err
		}

		clientInner, err := tl.Serialize(ClientDHInnerData{
			Nonce:       nonce,
			ServerNonce: pq.ServerNonce,
			RetryID:     retryID,
			GB:          gb.Bytes(),
		}, true)
		if err != nil {
			return Result{}, err
		}

		encData, err := encryptWithHash(c.crypto, ige, clientInner)
		if err != nil {
			return Result{}, err
		}

		err = c.send(SetClientDHParams{Nonce: nonce, ServerNonce: pq.ServerNonce, EncryptedData: encData})
		if err != nil {
			return Result{}, fmt.Errorf("failed to send set_client_DH_params: %w", err)
		}

		var answer any
		if err = c.recv(&answer); err != nil {
			return Result{}, err
		}

		switch t := answer.(type) {
		case DHGenOK:
			if t.Nonce != nonce || t.ServerNonce != pq.ServerNonce {
				return Result{}, ErrNonceMismatch
			}
			if t.NewNonceHash1 != newNonceHash(c.crypto, newNonce, 1, authKey) {
				return Result{}, fmt.Errorf("%w: new_nonce_hash1", ErrNonceMismatch)
			}

			c.log.Debug("auth key generated", zap.Int("dc", c.dc), zap.Duration("time_offset", offset))
			return Result{
				Key:        authKey,
				Salt:       serverSalt(newNonce, pq.ServerNonce),
				TimeOffset: offset,
			}, nil
		case DHGenRetry:
			if t.NewNonceHash2 != newNonceHash(c.crypto, newNonce, 2, authKey) {
				return Result{}, fmt.Errorf("%w: new_nonce_hash2", ErrNonceMismatch)
			}
			retryID = int64(binary.LittleEndian.Uint64(authKey.AuxHash[:]))
			c.log.Debug("dh gen retry requested")
		case DHGenFail:
			return Result{}, fmt.Errorf("%w: dh_gen_fail", ErrDHFailed)
		default:
			return Result{}, fmt.Errorf("unexpected answer %s", tl.NameOf(answer))
		}
	}
	return Result{}, fmt.Errorf("%w: retries exceeded", ErrDHFailed)
}

func (c *Client) selectKey(fps []int64) (*rsa.PublicKey, int64) {
	for _, fp := range fps {
		for _, k := range c.keys {
			if Fingerprint(c.crypto, k) == fp {
				return k, fp
			}
		}
	}
	return nil, 0
}

// ParsePublicKey - reads rsa public key from PEM, "RSA PUBLIC KEY" and "PUBLIC KEY" blocks are supported
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	return parsePEM(bytes.TrimSpace(data))
}
