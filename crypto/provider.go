// Package crypto contains cryptographic primitives used by MTProto:
// aes ige/ctr, hashes, pbkdf2, pq factorization, random and gzip.
// Consumers depend on Provider, so implementation can be swapped.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// EncryptionScheme - block mode with fixed key and iv, like aes-ige
type EncryptionScheme interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}

type Provider interface {
	PBKDF2(password, salt []byte, iterations, keyLen int, algo string) ([]byte, error)
	CreateAesCtr(key, iv []byte) (cipher.Stream, error)
	CreateAesIge(key, iv []byte) (EncryptionScheme, error)
	FactorizePQ(pq []byte) (p, q []byte, err error)
	// Gzip returns nil when compressed data is bigger than maxSize
	Gzip(data []byte, maxSize int) []byte
	Gunzip(data []byte) ([]byte, error)
	RandomFill(buf []byte) error
	RandomBytes(size int) ([]byte, error)
	SHA1(data ...[]byte) []byte
	SHA256(data ...[]byte) []byte
	HMACSHA256(data, key []byte) []byte
}

// Default - portable implementation on top of go crypto
var Default Provider = &portable{rnd: rand.Reader}

type portable struct {
	rnd io.Reader
}

// NewProvider - creates portable provider with custom random source, useful for tests
func NewProvider(rnd io.Reader) Provider {
	if rnd == nil {
		rnd = rand.Reader
	}
	return &portable{rnd: rnd}
}

func (p *portable) PBKDF2(password, salt []byte, iterations, keyLen int, algo string) ([]byte, error) {
	var h func() hash.Hash
	switch algo {
	case "", "sha512":
		h = sha512.New
	case "sha256":
		h = sha256.New
	case "sha1":
		h = sha1.New
	default:
		return nil, fmt.Errorf("unsupported pbkdf2 algo %s", algo)
	}

	if keyLen <= 0 {
		keyLen = 64
	}
	return pbkdf2.Key(password, salt, iterations, keyLen, h), nil
}

func (p *portable) CreateAesCtr(key, iv []byte) (cipher.Stream, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return cipher.NewCTR(c, iv), nil
}

func (p *portable) CreateAesIge(key, iv []byte) (EncryptionScheme, error) {
	return NewIGE(key, iv)
}

func (p *portable) FactorizePQ(pq []byte) ([]byte, []byte, error) {
	return FactorizePQ(pq)
}

func (p *portable) Gzip(data []byte, maxSize int) []byte {
	return Gzip(data, maxSize)
}

func (p *portable) Gunzip(data []byte) ([]byte, error) {
	return Gunzip(data)
}

func (p *portable) RandomFill(buf []byte) error {
	_, err := io.ReadFull(p.rnd, buf)
	return err
}

func (p *portable) RandomBytes(size int) ([]byte, error) {
	buf := make([]byte, size)
	if err := p.RandomFill(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *portable) SHA1(data ...[]byte) []byte {
	h := sha1.New()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

func (p *portable) SHA256(data ...[]byte) []byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

func (p *portable) HMACSHA256(data, key []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}
