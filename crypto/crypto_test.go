package crypto

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFactorizePQ(t *testing.T) {
	tests := []struct {
		name string
		pq   string
		p    string
		q    string
	}{
		{name: "docs sample", pq: "17ed48941a08f981", p: "494c553b", q: "53911073"},
		{name: "small", pq: "0f", p: "03", q: "05"},
		{name: "even", pq: "1a", p: "02", q: "0d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pq, _ := hex.DecodeString(tt.pq)
			p, q, err := Default.FactorizePQ(pq)
			require.NoError(t, err)
			require.Equal(t, tt.p, hex.EncodeToString(p))
			require.Equal(t, tt.q, hex.EncodeToString(q))
		})
	}
}

func TestFactorizePQ_Deterministic(t *testing.T) {
	pq, _ := hex.DecodeString("17ed48941a08f981")
	p1, q1, err := FactorizePQ(pq)
	require.NoError(t, err)
	p2, q2, err := FactorizePQ(pq)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
	require.Equal(t, q1, q2)
}

func TestFactorizePQ_Invalid(t *testing.T) {
	_, _, err := FactorizePQ(nil)
	require.ErrorIs(t, err, ErrFactorizationFailed)

	_, _, err = FactorizePQ(make([]byte, 9))
	require.ErrorIs(t, err, ErrFactorizationFailed)

	// prime cannot be split
	_, _, err = FactorizePQ(big.NewInt(1000003).Bytes())
	require.Error(t, err)
}

func TestIGE_RoundTrip(t *testing.T) {
	key, err := Default.RandomBytes(32)
	require.NoError(t, err)
	iv, err := Default.RandomBytes(32)
	require.NoError(t, err)

	ige, err := Default.CreateAesIge(key, iv)
	require.NoError(t, err)

	data := bytes.Repeat([]byte("0123456789abcdef"), 8)
	enc, err := ige.Encrypt(data)
	require.NoError(t, err)
	require.NotEqual(t, data, enc)

	dec, err := ige.Decrypt(enc)
	require.NoError(t, err)
	require.Equal(t, data, dec)

	// same plaintext blocks should not produce same ciphertext blocks
	require.NotEqual(t, enc[:16], enc[16:32])

	// error propagates to the following blocks only
	enc[20] ^= 1
	dec, err = ige.Decrypt(enc)
	require.NoError(t, err)
	require.Equal(t, data[:16], dec[:16])
	require.NotEqual(t, data[16:], dec[16:])

	_, err = ige.Encrypt(data[:15])
	require.ErrorIs(t, err, ErrNotAligned)

	_, err = NewIGE(key[:16], iv)
	require.Error(t, err)
}

func TestAesCtr_Symmetric(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 32)
	iv := bytes.Repeat([]byte{2}, 16)

	enc, err := Default.CreateAesCtr(key, iv)
	require.NoError(t, err)
	dec, err := Default.CreateAesCtr(key, iv)
	require.NoError(t, err)

	data := []byte("stream cipher data of any length")
	buf := append([]byte{}, data...)
	enc.XORKeyStream(buf, buf)
	require.NotEqual(t, data, buf)
	dec.XORKeyStream(buf, buf)
	require.Equal(t, data, buf)
}

func TestGzip(t *testing.T) {
	data := bytes.Repeat([]byte("compressible "), 1000)

	packed := Default.Gzip(data, 0)
	require.NotNil(t, packed)
	require.Less(t, len(packed), len(data))

	unpacked, err := Default.Gunzip(packed)
	require.NoError(t, err)
	require.Equal(t, data, unpacked)

	require.Nil(t, Default.Gzip(data, 10))

	_, err = Default.Gunzip([]byte("not gzip"))
	require.Error(t, err)
}

func TestHashes(t *testing.T) {
	p := Default
	require.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", hex.EncodeToString(p.SHA1([]byte("abc"))))
	require.Equal(t, p.SHA1([]byte("abc")), p.SHA1([]byte("a"), []byte("bc")))
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", hex.EncodeToString(p.SHA256([]byte("abc"))))

	// rfc 4231 test case 2
	mac := p.HMACSHA256([]byte("what do ya want for nothing?"), []byte("Jefe"))
	require.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", hex.EncodeToString(mac))
}

func TestPBKDF2(t *testing.T) {
	// rfc 6070 test case 2
	key, err := Default.PBKDF2([]byte("password"), []byte("salt"), 2, 20, "sha1")
	require.NoError(t, err)
	require.Equal(t, "ea6c014dc72d6f8ccd1ed92ace1d41f0d8de8957", hex.EncodeToString(key))

	key, err = Default.PBKDF2([]byte("password"), []byte("salt"), 1, 0, "")
	require.NoError(t, err)
	require.Len(t, key, 64)

	_, err = Default.PBKDF2(nil, nil, 1, 1, "md5")
	require.Error(t, err)
}

func TestRandom(t *testing.T) {
	p := NewProvider(bytes.NewReader(bytes.Repeat([]byte{7}, 8)))
	buf, err := p.RandomBytes(8)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{7}, 8), buf)

	require.Error(t, p.RandomFill(make([]byte, 1)))
}

func TestAuthKey(t *testing.T) {
	raw := bytes.Repeat([]byte{0xAB}, AuthKeySize)
	k, err := NewAuthKey(raw)
	require.NoError(t, err)
	require.False(t, k.IsZero())

	sum := Default.SHA1(raw)
	require.Equal(t, sum[12:20], k.ID[:])
	require.Equal(t, sum[0:8], k.AuxHash[:])

	short, err := NewAuthKey(raw[1:])
	require.NoError(t, err)
	require.Equal(t, byte(0), short.Value[0])

	_, err = NewAuthKey(nil)
	require.Error(t, err)
}
