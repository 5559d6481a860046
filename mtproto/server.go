package mtproto

import (
	"context"
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/xssnick/tgutils-go/crypto"
	"github.com/xssnick/tgutils-go/exchange"
	"github.com/xssnick/tgutils-go/proto"
	"github.com/xssnick/tgutils-go/tgerr"
	"github.com/xssnick/tgutils-go/tl"
	"github.com/xssnick/tgutils-go/transport"
	"go.uber.org/zap"
)

// RequestHandler - processes rpc call, returned *tgerr.Error is sent as rpc_error
type RequestHandler func(ctx context.Context, client *ServerClient, req []byte) (tl.Serializable, error)

// MessageHook - called before default processing of every message, returns true if message is consumed
type MessageHook func(client *ServerClient, msgID int64, seqNo int32, body []byte) bool

// Server - minimal mtproto server, handles key exchange and service messages,
// rpc calls are passed to handler. Used to run clients against local data center.
type Server struct {
	rsaKey *rsa.PrivateKey
	crypto crypto.Provider
	log    *zap.Logger
	secret []byte
	now    func() time.Time

	mx       sync.RWMutex
	keys     map[int64]*serverKey
	clients  map[*ServerClient]struct{}
	listener net.Listener

	handler        RequestHandler
	hook           MessageHook
	connectHook    func(client *ServerClient) error
	disconnectHook func(client *ServerClient)

	msgID *proto.MsgIDGen
}

type serverKey struct {
	key  crypto.AuthKey
	salt int64
}

// ServerClient - one connection to server
type ServerClient struct {
	server *Server
	tr     *transport.Conn
	key    *serverKey
	cipher *proto.Cipher

	mx        sync.Mutex
	sessionID int64
	announced bool
	seq       proto.SeqNo

	ctx    context.Context
	cancel context.CancelFunc
}

var ErrServerClosed = errors.New("server closed")

func NewServer(key *rsa.PrivateKey, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		rsaKey:  key,
		crypto:  crypto.Default,
		log:     logger.Named("server"),
		now:     time.Now,
		keys:    map[int64]*serverKey{},
		clients: map[*ServerClient]struct{}{},
		msgID:   proto.NewMsgIDGen(proto.SideServer, time.Now),
	}
}

func (s *Server) SetRequestHandler(handler RequestHandler) {
	s.handler = handler
}

func (s *Server) SetMessageHook(hook MessageHook) {
	s.hook = hook
}

func (s *Server) SetConnectionHook(hook func(client *ServerClient) error) {
	s.connectHook = hook
}

func (s *Server) SetDisconnectHook(hook func(client *ServerClient)) {
	s.disconnectHook = hook
}

// SetSecret - requires obfuscated transport with this mtproxy secret
func (s *Server) SetSecret(secret []byte) {
	s.secret = secret
}

// AddKey - registers existing auth key, as if exchange was done before
func (s *Server) AddKey(key crypto.AuthKey, salt int64) {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.keys[key.IntID()] = &serverKey{key: key, salt: salt}
}

// ForgetKeys - drops all auth keys, clients will get -404 on next message
func (s *Server) ForgetKeys() {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.keys = map[int64]*serverKey{}
}

func (s *Server) HasKey(key crypto.AuthKey) bool {
	s.mx.RLock()
	defer s.mx.RUnlock()

	_, ok := s.keys[key.IntID()]
	return ok
}

// RotateSalt - changes salt of all keys, clients will receive bad_server_salt
func (s *Server) RotateSalt(salt int64) {
	s.mx.Lock()
	defer s.mx.Unlock()

	for _, k := range s.keys {
		k.salt = salt
	}
}

// Push - sends object to all authorized clients, as server does with updates
func (s *Server) Push(v tl.Serializable) error {
	s.mx.RLock()
	list := make([]*ServerClient, 0, len(s.clients))
	for c := range s.clients {
		list = append(list, c)
	}
	s.mx.RUnlock()

	var lastErr error
	for _, c := range list {
		if c.SessionID() == 0 {
			continue
		}
		if err := c.Send(v, true); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (s *Server) Close() error {
	s.mx.Lock()
	lis := s.listener
	s.listener = nil
	list := make([]*ServerClient, 0, len(s.clients))
	for c := range s.clients {
		list = append(list, c)
	}
	s.mx.Unlock()

	for _, c := range list {
		c.Close()
	}
	if lis != nil {
		return lis.Close()
	}
	return nil
}

func (s *Server) Listen(addr string) error {
	s.mx.Lock()
	if s.listener != nil {
		s.mx.Unlock()
		return fmt.Errorf("already started")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.mx.Unlock()
		return err
	}
	s.listener = listener
	s.mx.Unlock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mx.RLock()
			closed := s.listener != listener
			s.mx.RUnlock()
			if closed {
				return ErrServerClosed
			}

			s.log.Warn("failed to accept connection", zap.Error(err))
			continue
		}

		go s.ServeConn(conn)
	}
}

// Dial - connects to server through in-memory pipe, it has signature of DialFunc
func (s *Server) Dial(ctx context.Context, _ string, opts transport.Options) (*transport.Conn, error) {
	cli, srv := net.Pipe()
	go s.ServeConn(srv)

	conn, err := transport.NewClientConn(cli, opts)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}
	return conn, nil
}

// ServeConn - handles single connection until it is closed
func (s *Server) ServeConn(conn net.Conn) {
	tr, err := transport.Accept(conn, s.crypto, s.secret)
	if err != nil {
		s.log.Debug("transport handshake failed", zap.Error(err))
		_ = conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &ServerClient{server: s, tr: tr, ctx: ctx, cancel: cancel}

	if s.connectHook != nil {
		if err = s.connectHook(client); err != nil {
			client.Close()
			return
		}
	}

	s.mx.Lock()
	s.clients[client] = struct{}{}
	s.mx.Unlock()

	defer func() {
		client.Close()

		s.mx.Lock()
		delete(s.clients, client)
		s.mx.Unlock()

		if s.disconnectHook != nil {
			s.disconnectHook(client)
		}
	}()

	if err = s.serve(client); err != nil {
		s.log.Debug("client disconnected", zap.Error(err))
	}
}

// replayConn - returns already read frame first
type replayConn struct {
	first []byte
	*transport.Conn
}

func (r *replayConn) Recv() ([]byte, error) {
	if r.first != nil {
		f := r.first
		r.first = nil
		return f, nil
	}
	return r.Conn.Recv()
}

func (s *Server) serve(client *ServerClient) error {
	for {
		frame, err := client.tr.Recv()
		if err != nil {
			return err
		}

		if len(frame) < 8 {
			return fmt.Errorf("too short frame")
		}

		keyID := int64(binary.LittleEndian.Uint64(frame))
		if keyID == 0 {
			ex := &exchange.Server{Key: s.rsaKey, Crypto: s.crypto, Now: s.now}
			res, err := ex.Run(client.ctx, &replayConn{first: frame, Conn: client.tr})
			if err != nil {
				return fmt.Errorf("key exchange failed: %w", err)
			}
			s.AddKey(res.Key, res.Salt)
			s.log.Debug("new auth key", zap.Binary("key_id", res.Key.ID[:]))
			continue
		}

		if client.key == nil || client.key.key.IntID() != keyID {
			s.mx.RLock()
			k := s.keys[keyID]
			s.mx.RUnlock()

			if k == nil {
				_ = client.tr.Send(errorFrame(-404))
				return fmt.Errorf("unknown auth key")
			}
			client.mx.Lock()
			client.key = k
			client.cipher = proto.NewCipher(s.crypto, k.key, proto.SideServer)
			client.mx.Unlock()
		}

		msg, err := client.cipher.Decrypt(frame)
		if err != nil {
			return err
		}

		if err = client.handleEncrypted(msg); err != nil {
			return err
		}
	}
}

// errorFrame - transport level error, sent instead of encrypted message
func errorFrame(code int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(code))
	return b[:]
}

func (c *ServerClient) salt() int64 {
	c.server.mx.RLock()
	defer c.server.mx.RUnlock()
	return c.key.salt
}

func (c *ServerClient) handleEncrypted(msg *proto.EncryptedMessage) error {
	c.mx.Lock()
	if c.sessionID != msg.SessionID {
		c.sessionID = msg.SessionID
		c.announced = false
		c.seq.Reset()
	}
	c.mx.Unlock()

	salt := c.salt()
	if msg.Salt != salt {
		return c.Send(proto.BadServerSalt{
			BadMsgID:      msg.MsgID,
			BadMsgSeqNo:   msg.SeqNo,
			ErrorCode:     proto.BadMsgServerSalt,
			NewServerSalt: salt,
		}, false)
	}

	c.mx.Lock()
	announce := !c.announced
	c.announced = true
	c.mx.Unlock()

	if announce {
		if err := c.Send(proto.NewSessionCreated{
			FirstMsgID: msg.MsgID,
			UniqueID:   msg.SessionID,
			ServerSalt: salt,
		}, true); err != nil {
			return err
		}
	}

	return c.handleMessage(msg.MsgID, msg.SeqNo, msg.Body)
}

func (c *ServerClient) handleMessage(msgID int64, seqNo int32, body []byte) error {
	if h := c.server.hook; h != nil && h(c, msgID, seqNo, body) {
		return nil
	}

	id, err := tl.PeekID(body)
	if err != nil {
		return err
	}

	switch id {
	case proto.MsgContainerID:
		var cont proto.MsgContainer
		if _, err = tl.Parse(&cont, body, true); err != nil {
			return err
		}
		for _, m := range cont.Messages {
			if err = c.handleMessage(m.MsgID, m.SeqNo, m.Body); err != nil {
				return err
			}
		}
		return nil
	case proto.MsgsAckID:
		return nil
	case proto.PingID:
		var ping proto.Ping
		if _, err = tl.Parse(&ping, body, true); err != nil {
			return err
		}
		return c.Send(proto.Pong{MsgID: msgID, PingID: ping.PingID}, true)
	case proto.PingDelayDisconnectID:
		var ping proto.PingDelayDisconnect
		if _, err = tl.Parse(&ping, body, true); err != nil {
			return err
		}
		return c.Send(proto.Pong{MsgID: msgID, PingID: ping.PingID}, true)
	case proto.GetFutureSaltsID:
		now := c.server.now()
		return c.Send(proto.FutureSalts{
			ReqMsgID: msgID,
			Now:      int32(now.Unix()),
			Salts: []proto.FutureSalt{{
				ValidSince: int32(now.Add(-time.Minute).Unix()),
				ValidUntil: int32(now.Add(time.Hour).Unix()),
				Salt:       c.salt(),
			}},
		}, true)
	}

	go c.answer(msgID, body)
	return nil
}

// minGzipSize - results bigger than this are sent packed
const minGzipSize = 512

func (c *ServerClient) answer(msgID int64, body []byte) {
	var res tl.Serializable
	err := errors.New("no handler")
	if h := c.server.handler; h != nil {
		res, err = h(c.ctx, c, body)
	}

	var data []byte
	if err == nil {
		if data, err = tl.Serialize(res, true); err != nil {
			c.server.log.Warn("failed to serialize result", zap.Error(err))
		}
	}

	if err != nil {
		var te *tgerr.Error
		if !errors.As(err, &te) {
			te = &tgerr.Error{Code: tgerr.CodeInternal, Message: "INTERNAL_SERVER_ERROR"}
		}
		data, _ = tl.Serialize(proto.RPCError{Code: int32(te.Code), Message: te.Message}, true)
	} else if len(data) > minGzipSize {
		if packed := c.server.crypto.Gzip(data, len(data)); packed != nil {
			data, _ = tl.Serialize(proto.GzipPacked{Data: packed}, true)
		}
	}

	if err = c.Send(proto.RPCResult{ReqMsgID: msgID, Result: data}, true); err != nil {
		c.server.log.Debug("failed to send result", zap.Error(err))
	}
}

// Send - encrypts and writes object to client
func (c *ServerClient) Send(v tl.Serializable, content bool) error {
	return c.SendSalted(v, content, c.salt())
}

// SendSalted - same as Send but frame is signed with given salt
func (c *ServerClient) SendSalted(v tl.Serializable, content bool, salt int64) error {
	body, err := tl.Serialize(v, true)
	if err != nil {
		return err
	}

	c.mx.Lock()
	defer c.mx.Unlock()

	frame, err := c.cipher.Encrypt(&proto.EncryptedMessage{
		Salt:      salt,
		SessionID: c.sessionID,
		MsgID:     c.server.msgID.New(),
		SeqNo:     c.seq.Next(content),
		Body:      body,
	})
	if err != nil {
		return err
	}
	return c.tr.Send(frame)
}

func (c *ServerClient) SessionID() int64 {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.sessionID
}

func (c *ServerClient) AuthKey() crypto.AuthKey {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.key == nil {
		return crypto.AuthKey{}
	}
	return c.key.key
}

func (c *ServerClient) Close() {
	c.cancel()
	_ = c.tr.Close()
}
