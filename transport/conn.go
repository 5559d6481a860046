package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/xssnick/tgutils-go/crypto"
	"golang.org/x/net/proxy"
)

// Options of client connection
type Options struct {
	// Codec - framing, intermediate if nil
	Codec Codec
	// Obfuscated - wraps framing into obfuscated2, forced when Secret is set
	Obfuscated bool
	// Secret - mtproxy secret, see ParseSecret
	Secret []byte
	// DC - dc id written into obfuscated header, needed for proxies
	DC int

	// Dialer - used to open tcp connection, for example socks5 one
	Dialer proxy.ContextDialer
	Crypto crypto.Provider
}

// Conn - framed mtproto stream, Send is safe for concurrent use,
// Recv should be called from single reader goroutine
type Conn struct {
	conn  net.Conn
	rw    io.ReadWriter
	codec Codec

	wLock sync.Mutex
	rLock sync.Mutex
}

var defaultDialer proxy.ContextDialer = &net.Dialer{KeepAlive: 30 * time.Second}

// Dial - connects to addr and performs transport handshake
func Dial(ctx context.Context, addr string, opts Options) (*Conn, error) {
	d := opts.Dialer
	if d == nil {
		d = defaultDialer
	}

	// get timeout if exists
	if _, ok := ctx.Deadline(); !ok {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	tcp, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	c, err := NewClientConn(tcp, opts)
	if err != nil {
		_ = tcp.Close()
		return nil, err
	}
	return c, nil
}

// NewClientConn - wraps already opened connection and sends transport header
func NewClientConn(conn net.Conn, opts Options) (*Conn, error) {
	codec := opts.Codec
	if codec == nil {
		codec = Intermediate{}
	}
	cr := opts.Crypto
	if cr == nil {
		cr = crypto.Default
	}

	c := &Conn{
		conn:  conn,
		rw:    conn,
		codec: codec,
	}

	if opts.Obfuscated || len(opts.Secret) > 0 {
		o, err := clientObfuscation(cr, conn, codec.Tag(), int16(opts.DC), opts.Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to init obfuscation: %w", err)
		}
		c.rw = o
		return c, nil
	}

	if err := codec.WriteHeader(conn); err != nil {
		return nil, fmt.Errorf("failed to write transport header: %w", err)
	}
	return c, nil
}

// Accept - server side of transport handshake, detects framing by first bytes
func Accept(conn net.Conn, cr crypto.Provider, secret []byte) (*Conn, error) {
	if cr == nil {
		cr = crypto.Default
	}

	c := &Conn{conn: conn, rw: conn}

	header := make([]byte, obfuscatedHeaderSize)
	if _, err := io.ReadFull(conn, header[:1]); err != nil {
		return nil, err
	}
	if header[0] == AbridgedTag[0] {
		c.codec = Abridged{}
		return c, nil
	}

	if _, err := io.ReadFull(conn, header[1:4]); err != nil {
		return nil, err
	}
	if [4]byte(header[:4]) == IntermediateTag {
		c.codec = Intermediate{}
		return c, nil
	}

	if _, err := io.ReadFull(conn, header[4:]); err != nil {
		return nil, err
	}

	o, tag, _, err := serverObfuscation(cr, conn, header, secret)
	if err != nil {
		return nil, err
	}
	c.codec, _ = codecByTag(tag)
	c.rw = o
	return c, nil
}

func (c *Conn) Send(b []byte) error {
	c.wLock.Lock()
	defer c.wLock.Unlock()

	return c.codec.WritePacket(c.rw, b)
}

func (c *Conn) Recv() ([]byte, error) {
	c.rLock.Lock()
	defer c.rLock.Unlock()

	return c.codec.ReadPacket(c.rw)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
