package crypto

import (
	"encoding/binary"
	"errors"
	"math/big"
	"math/bits"
)

var ErrFactorizationFailed = errors.New("failed to factorize pq")

// FactorizePQ - splits big endian pq into two primes p < q using pollard-brent,
// seeds are fixed, so result is deterministic.
func FactorizePQ(pq []byte) ([]byte, []byte, error) {
	if len(pq) == 0 || len(pq) > 8 {
		return nil, nil, ErrFactorizationFailed
	}

	var buf [8]byte
	copy(buf[8-len(pq):], pq)
	n := binary.BigEndian.Uint64(buf[:])

	p := factorize(n)
	if p == 0 || p == 1 || p == n {
		return nil, nil, ErrFactorizationFailed
	}

	q := n / p
	if p > q {
		p, q = q, p
	}
	return trimmed(p), trimmed(q), nil
}

func factorize(n uint64) uint64 {
	if n%2 == 0 {
		return 2
	}

	for c := uint64(1); c < 64; c++ {
		if d := brent(n, 2, c); d != n && d > 1 {
			return d
		}
	}
	return 0
}

func brent(n, y, c uint64) uint64 {
	const m = 128

	var g, r, q uint64 = 1, 1, 1
	var x, ys uint64

	for g == 1 {
		x = y
		for i := uint64(0); i < r; i++ {
			y = f(y, c, n)
		}

		for k := uint64(0); k < r && g == 1; k += m {
			ys = y
			lim := min(m, r-k)
			for i := uint64(0); i < lim; i++ {
				y = f(y, c, n)
				q = mulMod(q, diff(x, y), n)
			}
			g = gcd(q, n)
		}
		r *= 2

		if r > 1<<30 {
			return n
		}
	}

	if g == n {
		for {
			ys = f(ys, c, n)
			g = gcd(diff(x, ys), n)
			if g > 1 {
				break
			}
		}
	}
	return g
}

func f(x, c, n uint64) uint64 {
	return addMod(mulMod(x, x, n), c, n)
}

func mulMod(a, b, n uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	_, rem := bits.Div64(hi%n, lo, n)
	return rem
}

func addMod(a, b, n uint64) uint64 {
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 || s >= n {
		s -= n
	}
	return s
}

func diff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func trimmed(v uint64) []byte {
	return new(big.Int).SetUint64(v).Bytes()
}
