package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

var ErrNotAligned = errors.New("data is not aligned to aes block size")

type ige struct {
	block cipher.Block
	iv    []byte
}

// NewIGE - aes-256 in infinite garble extension mode, iv is 32 bytes:
// first half is previous ciphertext block, second - previous plaintext block
func NewIGE(key, iv []byte) (EncryptionScheme, error) {
	if len(key) != 32 {
		return nil, errors.New("ige key should be 32 bytes")
	}
	if len(iv) != 32 {
		return nil, errors.New("ige iv should be 32 bytes")
	}

	b, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return &ige{block: b, iv: append([]byte{}, iv...)}, nil
}

func (g *ige) Encrypt(data []byte) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, ErrNotAligned
	}

	out := make([]byte, len(data))
	prevC := g.iv[:aes.BlockSize]
	prevP := g.iv[aes.BlockSize:]

	var tmp [aes.BlockSize]byte
	for i := 0; i < len(data); i += aes.BlockSize {
		xorBlock(tmp[:], data[i:i+aes.BlockSize], prevC)
		g.block.Encrypt(out[i:i+aes.BlockSize], tmp[:])
		xorBlock(out[i:i+aes.BlockSize], out[i:i+aes.BlockSize], prevP)

		prevC = out[i : i+aes.BlockSize]
		prevP = data[i : i+aes.BlockSize]
	}
	return out, nil
}

func (g *ige) Decrypt(data []byte) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, ErrNotAligned
	}

	out := make([]byte, len(data))
	prevC := g.iv[:aes.BlockSize]
	prevP := g.iv[aes.BlockSize:]

	var tmp [aes.BlockSize]byte
	for i := 0; i < len(data); i += aes.BlockSize {
		xorBlock(tmp[:], data[i:i+aes.BlockSize], prevP)
		g.block.Decrypt(out[i:i+aes.BlockSize], tmp[:])
		xorBlock(out[i:i+aes.BlockSize], out[i:i+aes.BlockSize], prevC)

		prevC = data[i : i+aes.BlockSize]
		prevP = out[i : i+aes.BlockSize]
	}
	return out, nil
}

func xorBlock(dst, a, b []byte) {
	for i := 0; i < aes.BlockSize; i++ {
		dst[i] = a[i] ^ b[i]
	}
}
