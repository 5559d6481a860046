// Package proto contains MTProto 2.0 message framing: encrypted and plain
// frames, message ids and service schema shared by key exchange and connection.
package proto

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/xssnick/tgutils-go/crypto"
)

const (
	MinPadding = 12
	MaxPadding = 1024

	headerSize    = 32
	frameOverhead = 8 + 16
)

// Side - direction of encryption, key derivation offset depends on it
type Side int

const (
	SideClient Side = iota
	SideServer
)

func (s Side) encryptX() int {
	if s == SideServer {
		return 8
	}
	return 0
}

func (s Side) decryptX() int {
	if s == SideServer {
		return 0
	}
	return 8
}

// IntegrityError - frame cannot be trusted, connection should be re-keyed
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return "integrity check failed: " + e.Reason
}

func integrity(reason string) error {
	return &IntegrityError{Reason: reason}
}

// IsIntegrity - checks that err is or wraps IntegrityError
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

type EncryptedMessage struct {
	Salt      int64
	SessionID int64
	MsgID     int64
	SeqNo     int32
	Body      []byte
}

// Cipher - encrypts and decrypts frames of one auth key
type Cipher struct {
	key    crypto.AuthKey
	side   Side
	crypto crypto.Provider
}

func NewCipher(c crypto.Provider, key crypto.AuthKey, side Side) *Cipher {
	if c == nil {
		c = crypto.Default
	}
	return &Cipher{key: key, side: side, crypto: c}
}

func (c *Cipher) Key() crypto.AuthKey {
	return c.key
}

func (c *Cipher) messageKey(plaintext []byte, x int) []byte {
	large := c.crypto.SHA256(c.key.Value[88+x:120+x], plaintext)
	return large[8:24]
}

func (c *Cipher) scheme(msgKey []byte, x int) (crypto.EncryptionScheme, error) {
	a := c.crypto.SHA256(msgKey, c.key.Value[x:x+36])
	b := c.crypto.SHA256(c.key.Value[40+x:76+x], msgKey)

	key := make([]byte, 0, 32)
	key = append(key, a[0:8]...)
	key = append(key, b[8:24]...)
	key = append(key, a[24:32]...)

	iv := make([]byte, 0, 32)
	iv = append(iv, b[0:8]...)
	iv = append(iv, a[8:24]...)
	iv = append(iv, b[24:32]...)

	return c.crypto.CreateAesIge(key, iv)
}

func (c *Cipher) padding(bodyLen int) (int, error) {
	pad := MinPadding + (16-(headerSize+bodyLen+MinPadding)%16)%16

	// some random blocks on top to hide real size
	var rnd [1]byte
	if err := c.crypto.RandomFill(rnd[:]); err != nil {
		return 0, err
	}
	return pad + int(rnd[0]%16)*16, nil
}

func (c *Cipher) Encrypt(m *EncryptedMessage) ([]byte, error) {
	if len(m.Body)%4 != 0 {
		return nil, fmt.Errorf("body length %d is not aligned to 4", len(m.Body))
	}

	pad, err := c.padding(len(m.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to generate padding: %w", err)
	}

	plain := make([]byte, headerSize+len(m.Body)+pad)
	binary.LittleEndian.PutUint64(plain[0:], uint64(m.Salt))
	binary.LittleEndian.PutUint64(plain[8:], uint64(m.SessionID))
	binary.LittleEndian.PutUint64(plain[16:], uint64(m.MsgID))
	binary.LittleEndian.PutUint32(plain[24:], uint32(m.SeqNo))
	binary.LittleEndian.PutUint32(plain[28:], uint32(len(m.Body)))
	copy(plain[headerSize:], m.Body)
	if err = c.crypto.RandomFill(plain[headerSize+len(m.Body):]); err != nil {
		return nil, fmt.Errorf("failed to generate padding: %w", err)
	}

	x := c.side.encryptX()
	msgKey := c.messageKey(plain, x)

	ige, err := c.scheme(msgKey, x)
	if err != nil {
		return nil, err
	}

	enc, err := ige.Encrypt(plain)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, frameOverhead+len(enc))
	frame = append(frame, c.key.ID[:]...)
	frame = append(frame, msgKey...)
	frame = append(frame, enc...)
	return frame, nil
}

func (c *Cipher) Decrypt(frame []byte) (*EncryptedMessage, error) {
	if len(frame) < frameOverhead+headerSize+16 || (len(frame)-frameOverhead)%16 != 0 {
		return nil, integrity(fmt.Sprintf("invalid frame length %d", len(frame)))
	}

	if subtle.ConstantTimeCompare(frame[:8], c.key.ID[:]) != 1 {
		return nil, integrity("unknown auth key id")
	}
	msgKey := frame[8:24]

	x := c.side.decryptX()
	ige, err := c.scheme(msgKey, x)
	if err != nil {
		return nil, err
	}

	plain, err := ige.Decrypt(frame[frameOverhead:])
	if err != nil {
		return nil, integrity(err.Error())
	}

	if subtle.ConstantTimeCompare(c.messageKey(plain, x), msgKey) != 1 {
		return nil, integrity("msg key mismatch")
	}

	ln := int(int32(binary.LittleEndian.Uint32(plain[28:])))
	pad := len(plain) - headerSize - ln
	if ln < 0 || ln%4 != 0 || pad < MinPadding || pad > MaxPadding {
		return nil, integrity(fmt.Sprintf("invalid message length %d", ln))
	}

	return &EncryptedMessage{
		Salt:      int64(binary.LittleEndian.Uint64(plain[0:])),
		SessionID: int64(binary.LittleEndian.Uint64(plain[8:])),
		MsgID:     int64(binary.LittleEndian.Uint64(plain[16:])),
		SeqNo:     int32(binary.LittleEndian.Uint32(plain[24:])),
		Body:      plain[headerSize : headerSize+ln],
	}, nil
}

// EncodePlain - unencrypted frame, only used during key exchange
func EncodePlain(msgID int64, body []byte) []byte {
	frame := make([]byte, 20+len(body))
	// auth key id is zero
	binary.LittleEndian.PutUint64(frame[8:], uint64(msgID))
	binary.LittleEndian.PutUint32(frame[16:], uint32(len(body)))
	copy(frame[20:], body)
	return frame
}

var ErrNotPlain = errors.New("frame is not unencrypted")

func DecodePlain(frame []byte) (msgID int64, body []byte, err error) {
	if len(frame) < 20 {
		return 0, nil, fmt.Errorf("too short plain frame: %d", len(frame))
	}
	if binary.LittleEndian.Uint64(frame) != 0 {
		return 0, nil, ErrNotPlain
	}

	msgID = int64(binary.LittleEndian.Uint64(frame[8:]))
	ln := binary.LittleEndian.Uint32(frame[16:])
	if int(ln) != len(frame)-20 {
		return 0, nil, fmt.Errorf("invalid plain frame length %d, actual %d", ln, len(frame)-20)
	}
	return msgID, frame[20:], nil
}
