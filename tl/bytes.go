package tl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrTooBigBytes = errors.New("too big bytes payload, max length is 16mb")

func ToBytes(buf []byte) []byte {
	var data = make([]byte, 0, ((len(buf)+4)/4+1)*4)

	// store buf length
	if len(buf) >= 0xFE {
		ln := make([]byte, 4)
		binary.LittleEndian.PutUint32(ln, uint32(len(buf)<<8)|0xFE)
		data = append(data, ln...)
	} else {
		data = append(data, byte(len(buf)))
	}

	data = append(data, buf...)

	// adjust actual length to fit % 4 = 0
	if round := len(data) % 4; round != 0 {
		data = append(data, make([]byte, 4-round)...)
	}

	return data
}

func ToBytesToBuffer(buf *bytes.Buffer, data []byte) error {
	if len(data) >= 1<<24 {
		return ErrTooBigBytes
	}

	if len(data) == 0 {
		// fast path for empty slice
		buf.Write(make([]byte, 4))
		return nil
	}

	prevLen := buf.Len()

	// store buf length
	if len(data) >= 0xFE {
		ln := make([]byte, 4)
		binary.LittleEndian.PutUint32(ln, uint32(len(data)<<8)|0xFE)
		buf.Write(ln)
	} else {
		buf.WriteByte(byte(len(data)))
	}

	buf.Write(data)

	// adjust actual length to fit % 4 = 0
	if round := (buf.Len() - prevLen) % 4; round != 0 {
		for i := 0; i < 4-round; i++ {
			buf.WriteByte(0)
		}
	}
	return nil
}

func FromBytes(data []byte) (loaded []byte, buffer []byte, err error) {
	if len(data) == 0 {
		return nil, nil, errors.New("failed to load length, too short data")
	}

	offset := 1
	ln := int(data[0])
	if ln == 0xFE {
		if len(data) < 4 {
			return nil, nil, errors.New("failed to load length, too short data")
		}
		ln = int(binary.LittleEndian.Uint32(data)) >> 8
		offset = 4
	} else if ln == 0xFF {
		return nil, nil, errors.New("invalid bytes prefix")
	}

	// bytes length should be dividable by 4, add additional offset to buffer if it is not
	bufSz := ln + offset
	if add := bufSz % 4; add != 0 {
		bufSz += 4 - add
	}

	if len(data) < offset+ln {
		return nil, nil, fmt.Errorf("failed to get payload with len %d, too short data", ln)
	}

	res := make([]byte, ln)
	copy(res, data[offset:])

	// if its end, we don't need to align by 4
	if bufSz >= len(data) {
		return res, nil, nil
	}
	return res, data[bufSz:], nil
}
