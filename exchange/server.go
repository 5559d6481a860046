package exchange

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/xssnick/tgutils-go/crypto"
	"github.com/xssnick/tgutils-go/proto"
	"github.com/xssnick/tgutils-go/tl"
)

// Server - server side of key exchange, it is used by in-process servers
type Server struct {
	Key    *rsa.PrivateKey
	Crypto crypto.Provider
	// Prime - dh prime, KnownPrime if nil
	Prime *big.Int
	// G - generator, 3 if zero
	G   int32
	Now func() time.Time
}

func (s *Server) defaults() {
	if s.Crypto == nil {
		s.Crypto = crypto.Default
	}
	if s.Prime == nil {
		s.Prime = KnownPrime
	}
	if s.G == 0 {
		s.G = 3
	}
	if s.Now == nil {
		s.Now = time.Now
	}
}

type serverSession struct {
	*Server
	conn  Conn
	msgID *proto.MsgIDGen
}

// Run - waits for client exchange and returns generated key
func (s *Server) Run(ctx context.Context, conn Conn) (Result, error) {
	s.defaults()
	ss := &serverSession{Server: s, conn: conn, msgID: proto.NewMsgIDGen(proto.SideServer, s.Now)}

	type res struct {
		r   Result
		err error
	}

	ch := make(chan res, 1)
	go func() {
		r, err := ss.run()
		ch <- res{r, err}
	}()

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		return r.r, r.err
	}
}

func (s *serverSession) send(v tl.Serializable) error {
	data, err := tl.Serialize(v, true)
	if err != nil {
		return err
	}
	return s.conn.Send(proto.EncodePlain(s.msgID.New(), data))
}

func (s *serverSession) recv(v tl.Serializable) error {
	frame, err := s.conn.Recv()
	if err != nil {
		return err
	}
	_, body, err := proto.DecodePlain(frame)
	if err != nil {
		return err
	}
	_, err = tl.Parse(v, body, true)
	return err
}

func (s *serverSession) genPQ() (p, q *big.Int, err error) {
	for {
		if p, err = rand.Prime(rand.Reader, 31); err != nil {
			return nil, nil, err
		}
		if q, err = rand.Prime(rand.Reader, 31); err != nil {
			return nil, nil, err
		}
		switch p.Cmp(q) {
		case 0:
			continue
		case 1:
			p, q = q, p
		}
		return p, q, nil
	}
}

func (s *serverSession) run() (Result, error) {
	var req ReqPQMulti
	if err := s.recv(&req); err != nil {
		return Result{}, fmt.Errorf("failed to read req_pq_multi: %w", err)
	}

	var serverNonce [16]byte
	if err := s.Crypto.RandomFill(serverNonce[:]); err != nil {
		return Result{}, err
	}

	p, q, err := s.genPQ()
	if err != nil {
		return Result{}, err
	}
	pq := new(big.Int).Mul(p, q)

	fp := Fingerprint(s.Crypto, &s.Key.PublicKey)
	err = s.send(ResPQ{
		Nonce:        req.Nonce,
		ServerNonce:  serverNonce,
		PQ:           pq.Bytes(),
		Fingerprints: []int64{fp},
	})
	if err != nil {
		return Result{}, err
	}

	var dhReq ReqDHParams
	if err = s.recv(&dhReq); err != nil {
		return Result{}, fmt.Errorf("failed to read req_DH_params: %w", err)
	}
	if dhReq.Nonce != req.Nonce || dhReq.ServerNonce != serverNonce {
		return Result{}, ErrNonceMismatch
	}
	if dhReq.Fingerprint != fp {
		return Result{}, ErrNoKey
	}

	data, err := rsaUnpad(s.Crypto, dhReq.EncryptedData, s.Key)
	if err != nil {
		return Result{}, err
	}

	var inner PQInnerDataDC
	if _, err = tl.Parse(&inner, data, true); err != nil {
		return Result{}, fmt.Errorf("failed to parse p_q_inner_data: %w", err)
	}
	if inner.Nonce != req.Nonce || inner.ServerNonce != serverNonce {
		return Result{}, ErrNonceMismatch
	}
	if !bytes.Equal(inner.P, p.Bytes()) || !bytes.Equal(inner.Q, q.Bytes()) {
		return Result{}, errors.New("client factorized pq incorrectly")
	}

	ige, err := tmpAES(s.Crypto, inner.NewNonce, serverNonce)
	if err != nil {
		return Result{}, err
	}

	g := big.NewInt(int64(s.G))
	var a, ga *big.Int
	for {
		aRaw, err := s.Crypto.RandomBytes(256)
		if err != nil {
			return Result{}, err
		}
		a = new(big.Int).SetBytes(aRaw)
		ga = new(big.Int).Exp(g, a, s.Prime)
		if checkGA(ga, s.Prime) == nil {
			break
		}
	}

	answer, err := tl.Serialize(ServerDHInnerData{
		Nonce:       req.Nonce,
		ServerNonce: serverNonce,
		G:           s.G,
		DHPrime:     s.Prime.Bytes(),
		GA:          ga.Bytes(),
		ServerTime:  int32(s.Now().Unix()),
	}, true)
	if err != nil {
		return Result{}, err
	}

	encAnswer, err := encryptWithHash(s.Crypto, ige, answer)
	if err != nil {
		return Result{}, err
	}

	err = s.send(ServerDHParamsOK{Nonce: req.Nonce, ServerNonce: serverNonce, EncryptedAnswer: encAnswer})
	if err != nil {
		return Result{}, err
	}

	var set SetClientDHParams
	if err = s.recv(&set); err != nil {
		return Result{}, fmt.Errorf("failed to read set_client_DH_params: %w", err)
	}

	var clientInner ClientDHInnerData
	if err = decryptWithHash(s.Crypto, ige, set.EncryptedData, &clientInner); err != nil {
		return Result{}, err
	}
	if clientInner.Nonce != req.Nonce || clientInner.ServerNonce != serverNonce {
		return Result{}, ErrNonceMismatch
	}

	gb := new(big.Int).SetBytes(clientInner.GB)
	if err = checkGA(gb, s.Prime); err != nil {
		_ = s.send(DHGenFail{Nonce: req.Nonce, ServerNonce: serverNonce})
		return Result{}, err
	}

	key, err := crypto.NewAuthKey(new(big.Int).Exp(gb, a, s.Prime).FillBytes(make([]byte, 256)))
	if err != nil {
		return Result{}, err
	}

	err = s.send(DHGenOK{
		Nonce:         req.Nonce,
		ServerNonce:   serverNonce,
		NewNonceHash1: newNonceHash(s.Crypto, inner.NewNonce, 1, key),
	})
	if err != nil {
		return Result{}, err
	}

	return Result{Key: key, Salt: serverSalt(inner.NewNonce, serverNonce)}, nil
}
