package exchange

import (
	"bytes"
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/xssnick/tgutils-go/crypto"
	"github.com/xssnick/tgutils-go/tl"
)

const rsaDataSize = 192

// Fingerprint - lower 64 bits of sha1 over tl serialized modulus and exponent
func Fingerprint(c crypto.Provider, key *rsa.PublicKey) int64 {
	var buf bytes.Buffer
	_ = tl.ToBytesToBuffer(&buf, key.N.Bytes())
	_ = tl.ToBytesToBuffer(&buf, big.NewInt(int64(key.E)).Bytes())

	h := c.SHA1(buf.Bytes())
	return int64(binary.LittleEndian.Uint64(h[12:20]))
}

// rsaPad - RSA_PAD scheme of mtproto 2.0, data should be not bigger than 144 bytes
func rsaPad(c crypto.Provider, data []byte, key *rsa.PublicKey) ([]byte, error) {
	if len(data) > 144 {
		return nil, fmt.Errorf("too big data for rsa pad: %d", len(data))
	}
	if key.N.BitLen() != 2048 {
		return nil, errors.New("rsa key should be 2048 bits")
	}

	withPadding := make([]byte, rsaDataSize)
	copy(withPadding, data)
	if err := c.RandomFill(withPadding[len(data):]); err != nil {
		return nil, err
	}

	reversed := make([]byte, rsaDataSize)
	for i := range withPadding {
		reversed[rsaDataSize-1-i] = withPadding[i]
	}

	zeroIV := make([]byte, 32)
	for {
		tmpKey, err := c.RandomBytes(32)
		if err != nil {
			return nil, err
		}

		withHash := append(append([]byte{}, reversed...), c.SHA256(tmpKey, withPadding)...)

		ige, err := c.CreateAesIge(tmpKey, zeroIV)
		if err != nil {
			return nil, err
		}
		encrypted, err := ige.Encrypt(withHash)
		if err != nil {
			return nil, err
		}

		h := c.SHA256(encrypted)
		keyXor := make([]byte, 32)
		for i := range keyXor {
			keyXor[i] = tmpKey[i] ^ h[i]
		}

		m := new(big.Int).SetBytes(append(keyXor, encrypted...))
		if m.Cmp(key.N) >= 0 {
			// rare case, try another temp key
			continue
		}

		res := new(big.Int).Exp(m, big.NewInt(int64(key.E)), key.N)
		return res.FillBytes(make([]byte, 256)), nil
	}
}

// rsaUnpad - server side of rsaPad, returns 192 bytes data with random padding
func rsaUnpad(c crypto.Provider, data []byte, key *rsa.PrivateKey) ([]byte, error) {
	if len(data) != 256 {
		return nil, fmt.Errorf("invalid encrypted data length %d", len(data))
	}

	m := new(big.Int).Exp(new(big.Int).SetBytes(data), key.D, key.N)
	plain := m.FillBytes(make([]byte, 256))

	keyXor, encrypted := plain[:32], plain[32:]
	h := c.SHA256(encrypted)
	tmpKey := make([]byte, 32)
	for i := range tmpKey {
		tmpKey[i] = keyXor[i] ^ h[i]
	}

	ige, err := c.CreateAesIge(tmpKey, make([]byte, 32))
	if err != nil {
		return nil, err
	}
	withHash, err := ige.Decrypt(encrypted)
	if err != nil {
		return nil, err
	}

	withPadding := make([]byte, rsaDataSize)
	for i := 0; i < rsaDataSize; i++ {
		withPadding[rsaDataSize-1-i] = withHash[i]
	}

	if !bytes.Equal(c.SHA256(tmpKey, withPadding), withHash[rsaDataSize:]) {
		return nil, errors.New("rsa pad hash mismatch")
	}
	return withPadding, nil
}

// tmpAES - key and iv for server_DH_inner_data and client_DH_inner_data encryption
func tmpAES(c crypto.Provider, newNonce [32]byte, serverNonce [16]byte) (crypto.EncryptionScheme, error) {
	nnSn := c.SHA1(newNonce[:], serverNonce[:])
	snNn := c.SHA1(serverNonce[:], newNonce[:])
	nnNn := c.SHA1(newNonce[:], newNonce[:])

	key := append(append([]byte{}, nnSn...), snNn[:12]...)
	iv := append(append(append([]byte{}, snNn[12:20]...), nnNn...), newNonce[:4]...)
	return c.CreateAesIge(key, iv)
}

// encryptWithHash - sha1(data) + data + random padding to 16 bytes
func encryptWithHash(c crypto.Provider, ige crypto.EncryptionScheme, data []byte) ([]byte, error) {
	buf := append(c.SHA1(data), data...)
	if pad := (16 - len(buf)%16) % 16; pad > 0 {
		rnd, err := c.RandomBytes(pad)
		if err != nil {
			return nil, err
		}
		buf = append(buf, rnd...)
	}
	return ige.Encrypt(buf)
}

// decryptWithHash - decrypts and parses object, verifying sha1 of its serialized part
func decryptWithHash(c crypto.Provider, ige crypto.EncryptionScheme, data []byte, v tl.Serializable) error {
	plain, err := ige.Decrypt(data)
	if err != nil {
		return err
	}
	if len(plain) < 20 {
		return errors.New("too short encrypted answer")
	}

	hash, body := plain[:20], plain[20:]
	rest, err := tl.Parse(v, body, true)
	if err != nil {
		return fmt.Errorf("failed to parse inner data: %w", err)
	}

	if len(rest) > 15 {
		return errors.New("too big padding of inner data")
	}
	if !bytes.Equal(c.SHA1(body[:len(body)-len(rest)]), hash) {
		return errors.New("inner data hash mismatch")
	}
	return nil
}

// newNonceHash - last 128 bits of sha1(new_nonce + number + auth_key_aux_hash)
func newNonceHash(c crypto.Provider, newNonce [32]byte, num byte, key crypto.AuthKey) [16]byte {
	h := c.SHA1(newNonce[:], []byte{num}, key.AuxHash[:])

	var res [16]byte
	copy(res[:], h[4:20])
	return res
}

func serverSalt(newNonce [32]byte, serverNonce [16]byte) int64 {
	var salt [8]byte
	for i := range salt {
		salt[i] = newNonce[i] ^ serverNonce[i]
	}
	return int64(binary.LittleEndian.Uint64(salt[:]))
}

// KnownPrime - 2048 bit safe prime used by telegram servers, it is trusted without primality tests
var KnownPrime, _ = new(big.Int).SetString("c71caeb9c6b1c9048e6c522f70f13f73980d40238e3e21c14934d037563d930f"+
	"48198a0aa7c14058229493d22530f4dbfa336f6e0ac925139543aed44cce7c3720fd51f69458705ac68cd4fe6b6b13abdc"+
	"9746512969328454f18faf8c595f642477fe96bb2a941d5bcd1d4ac8cc49880708fa9b378e3c4f3a9060bee67cf9a4a4a6"+
	"95811051907e162753b56b0f6b410dba74d8a84b2a14b3144e0ef1284754fd17ed950d5965b4b9dd46582db1178d169c6b"+
	"c465b0d6ff9ca3928fef5b9ae4e418fc15e83ebea0f87fa9ff5eed70050ded2849f47bf959d956850ce929851f0d8115f6"+
	"35b105ee2e4e15d04b2454bf6f4fadf034b10403119cd8e3b92fcc5b", 16)

var ErrBadDHParams = errors.New("invalid diffie-hellman params")

// checkDHParams - p should be 2048 bit safe prime and g should generate subgroup of order (p-1)/2
func checkDHParams(p *big.Int, g int32) error {
	if p.BitLen() != 2048 {
		return fmt.Errorf("%w: prime is %d bits", ErrBadDHParams, p.BitLen())
	}

	if p.Cmp(KnownPrime) != 0 {
		if !p.ProbablyPrime(20) {
			return fmt.Errorf("%w: p is not prime", ErrBadDHParams)
		}
		half := new(big.Int).Rsh(p, 1)
		if !half.ProbablyPrime(20) {
			return fmt.Errorf("%w: (p-1)/2 is not prime", ErrBadDHParams)
		}
	}

	mod := func(m int64) int64 {
		return new(big.Int).Mod(p, big.NewInt(m)).Int64()
	}

	var ok bool
	switch g {
	case 2:
		ok = mod(8) == 7
	case 3:
		ok = mod(3) == 2
	case 4:
		ok = true
	case 5:
		r := mod(5)
		ok = r == 1 || r == 4
	case 6:
		r := mod(24)
		ok = r == 19 || r == 23
	case 7:
		r := mod(7)
		ok = r == 3 || r == 5 || r == 6
	}
	if !ok {
		return fmt.Errorf("%w: g %d is not suitable for p", ErrBadDHParams, g)
	}
	return nil
}

// checkGA - 1 < g_a < p-1 and 2^{2048-64} <= g_a <= p - 2^{2048-64}
func checkGA(ga, p *big.Int) error {
	one := big.NewInt(1)
	if ga.Cmp(one) <= 0 || ga.Cmp(new(big.Int).Sub(p, one)) >= 0 {
		return fmt.Errorf("%w: g_a is out of range", ErrBadDHParams)
	}

	low := new(big.Int).Lsh(one, 2048-64)
	high := new(big.Int).Sub(p, low)
	if ga.Cmp(low) < 0 || ga.Cmp(high) > 0 {
		return fmt.Errorf("%w: g_a is unsafe", ErrBadDHParams)
	}
	return nil
}
