package transport

import (
	"bytes"
	"crypto/cipher"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/xssnick/tgutils-go/crypto"
)

const obfuscatedHeaderSize = 64

var ErrFakeTLSNotSupported = errors.New("fake tls proxy secrets are not supported")

// ParseSecret - decodes mtproxy secret, dd prefix (random padding mode) is accepted
// and stripped, ee prefix (fake tls) is not supported
func ParseSecret(secret string) ([]byte, error) {
	if secret == "" {
		return nil, nil
	}

	raw, err := hex.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid secret hex: %w", err)
	}

	switch {
	case len(raw) == 16:
		return raw, nil
	case len(raw) == 17 && raw[0] == 0xdd:
		return raw[1:], nil
	case len(raw) > 17 && raw[0] == 0xee:
		return nil, ErrFakeTLSNotSupported
	}
	return nil, fmt.Errorf("invalid secret length %d", len(raw))
}

// obfuscated - stream wrapped into aes-ctr, both directions have own keys
type obfuscated struct {
	rw io.ReadWriter

	enc cipher.Stream
	dec cipher.Stream
}

func (o *obfuscated) Read(p []byte) (int, error) {
	n, err := o.rw.Read(p)
	if n > 0 {
		o.dec.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

func (o *obfuscated) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	o.enc.XORKeyStream(buf, p)
	return o.rw.Write(buf)
}

var forbiddenStarts = [][]byte{
	[]byte("HEAD"), []byte("POST"), []byte("GET "), []byte("OPTI"),
	{0xdd, 0xdd, 0xdd, 0xdd}, {0xee, 0xee, 0xee, 0xee}, {0x16, 0x03, 0x01, 0x02},
}

func validHeader(h []byte) bool {
	if h[0] == 0xef {
		return false
	}
	for _, s := range forbiddenStarts {
		if bytes.Equal(h[:4], s) {
			return false
		}
	}
	return binary.LittleEndian.Uint32(h[4:8]) != 0
}

func reversed(b []byte) []byte {
	r := make([]byte, len(b))
	for i := range b {
		r[len(b)-1-i] = b[i]
	}
	return r
}

func streamFor(c crypto.Provider, keyIV, secret []byte) (cipher.Stream, error) {
	key := keyIV[:32]
	if len(secret) > 0 {
		key = c.SHA256(key, secret)
	}
	return c.CreateAesCtr(key, keyIV[32:48])
}

// clientObfuscation - generates header, sends it and wraps stream
func clientObfuscation(c crypto.Provider, rw io.ReadWriter, tag [4]byte, dc int16, secret []byte) (*obfuscated, error) {
	header := make([]byte, obfuscatedHeaderSize)
	for {
		if err := c.RandomFill(header); err != nil {
			return nil, err
		}
		if validHeader(header) {
			break
		}
	}
	copy(header[56:60], tag[:])
	binary.LittleEndian.PutUint16(header[60:62], uint16(dc))

	enc, err := streamFor(c, header[8:56], secret)
	if err != nil {
		return nil, err
	}
	dec, err := streamFor(c, reversed(header[8:56]), secret)
	if err != nil {
		return nil, err
	}

	encrypted := make([]byte, obfuscatedHeaderSize)
	enc.XORKeyStream(encrypted, header)
	// only tail is encrypted, key material stays as is
	copy(header[56:], encrypted[56:])

	if _, err = rw.Write(header); err != nil {
		return nil, err
	}

	return &obfuscated{rw: rw, enc: enc, dec: dec}, nil
}

// serverObfuscation - reads client header, returns wrapped stream, protocol tag and dc
func serverObfuscation(c crypto.Provider, rw io.ReadWriter, header []byte, secret []byte) (*obfuscated, [4]byte, int16, error) {
	var tag [4]byte
	dec, err := streamFor(c, header[8:56], secret)
	if err != nil {
		return nil, tag, 0, err
	}
	enc, err := streamFor(c, reversed(header[8:56]), secret)
	if err != nil {
		return nil, tag, 0, err
	}

	plain := make([]byte, obfuscatedHeaderSize)
	dec.XORKeyStream(plain, header)
	copy(tag[:], plain[56:60])

	if _, err = codecByTag(tag); err != nil {
		return nil, tag, 0, fmt.Errorf("bad obfuscated header: %w", err)
	}

	dc := int16(binary.LittleEndian.Uint16(plain[60:62]))
	return &obfuscated{rw: rw, enc: enc, dec: dec}, tag, dc, nil
}
