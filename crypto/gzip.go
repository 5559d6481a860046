package crypto

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
)

// MaxGunzipSize - limit for decompressed payload to not be exploded by a gzip bomb
var MaxGunzipSize int64 = 64 << 20

var ErrGunzipTooBig = errors.New("decompressed data is too big")

// Gzip - compresses data, returns nil if result is bigger than maxSize
func Gzip(data []byte, maxSize int) []byte {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil
	}

	if _, err = w.Write(data); err != nil {
		return nil
	}
	if err = w.Close(); err != nil {
		return nil
	}

	if maxSize > 0 && buf.Len() > maxSize {
		return nil
	}
	return buf.Bytes()
}

func Gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	res, err := io.ReadAll(io.LimitReader(r, MaxGunzipSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(res)) > MaxGunzipSize {
		return nil, ErrGunzipTooBig
	}
	return res, nil
}
