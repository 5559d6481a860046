// Package transport implements MTProto tcp framings: abridged, intermediate
// and obfuscated2 wrapping of any of them.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const MaxFrameSize = 16 << 20

var ErrFrameTooBig = errors.New("frame is too big")
var ErrUnknownProtocol = errors.New("unknown transport protocol")

// ProtocolError - 4 bytes frame with negative code sent by server instead of payload,
// for example -404 when auth key is not found
type ProtocolError struct {
	Code int32
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("transport error code %d", e.Code)
}

// Codec - framing of mtproto payloads over stream
type Codec interface {
	// Tag - 4 bytes protocol identifier, used also inside obfuscated header
	Tag() [4]byte
	// WriteHeader - writes tag which client sends once at connection start
	WriteHeader(w io.Writer) error
	WritePacket(w io.Writer, b []byte) error
	ReadPacket(r io.Reader) ([]byte, error)
}

var (
	IntermediateTag = [4]byte{0xee, 0xee, 0xee, 0xee}
	AbridgedTag     = [4]byte{0xef, 0xef, 0xef, 0xef}
)

// CodecByName - returns codec for config name
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "intermediate":
		return Intermediate{}, nil
	case "abridged":
		return Abridged{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProtocol, name)
}

func codecByTag(tag [4]byte) (Codec, error) {
	switch tag {
	case IntermediateTag:
		return Intermediate{}, nil
	case AbridgedTag:
		return Abridged{}, nil
	}
	return nil, ErrUnknownProtocol
}

// Intermediate - every packet is prefixed with 4 bytes little endian length
type Intermediate struct{}

func (Intermediate) Tag() [4]byte {
	return IntermediateTag
}

func (i Intermediate) WriteHeader(w io.Writer) error {
	_, err := w.Write(IntermediateTag[:])
	return err
}

func (Intermediate) WritePacket(w io.Writer, b []byte) error {
	if len(b) > MaxFrameSize {
		return ErrFrameTooBig
	}

	buf := make([]byte, 4+len(b))
	binary.LittleEndian.PutUint32(buf, uint32(len(b)))
	copy(buf[4:], b)

	_, err := w.Write(buf)
	return err
}

func (Intermediate) ReadPacket(r io.Reader) ([]byte, error) {
	var sz [4]byte
	if _, err := io.ReadFull(r, sz[:]); err != nil {
		return nil, err
	}

	// highest bit is a quick ack flag
	ln := binary.LittleEndian.Uint32(sz[:]) &^ (1 << 31)
	if ln > MaxFrameSize {
		return nil, ErrFrameTooBig
	}

	return readPayload(r, int(ln))
}

// Abridged - length divided by 4 in 1 byte, or 0x7f and 3 bytes for big packets
type Abridged struct{}

func (Abridged) Tag() [4]byte {
	return AbridgedTag
}

func (Abridged) WriteHeader(w io.Writer) error {
	_, err := w.Write(AbridgedTag[:1])
	return err
}

func (Abridged) WritePacket(w io.Writer, b []byte) error {
	if len(b)%4 != 0 {
		return errors.New("abridged packet should be aligned to 4 bytes")
	}
	if len(b) > MaxFrameSize {
		return ErrFrameTooBig
	}

	var buf []byte
	if l := len(b) / 4; l < 0x7f {
		buf = make([]byte, 1, 1+len(b))
		buf[0] = byte(l)
	} else {
		buf = make([]byte, 4, 4+len(b))
		binary.LittleEndian.PutUint32(buf, uint32(l)<<8|0x7f)
	}
	buf = append(buf, b...)

	_, err := w.Write(buf)
	return err
}

func (Abridged) ReadPacket(r io.Reader) ([]byte, error) {
	var sz [4]byte
	if _, err := io.ReadFull(r, sz[:1]); err != nil {
		return nil, err
	}

	ln := int(sz[0] &^ 0x80)
	if ln == 0x7f {
		if _, err := io.ReadFull(r, sz[1:]); err != nil {
			return nil, err
		}
		ln = int(binary.LittleEndian.Uint32(sz[:]) >> 8)
	}
	ln *= 4

	if ln > MaxFrameSize {
		return nil, ErrFrameTooBig
	}
	return readPayload(r, ln)
}

func readPayload(r io.Reader, ln int) ([]byte, error) {
	data := make([]byte, ln)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	if ln == 4 {
		return nil, &ProtocolError{Code: int32(binary.LittleEndian.Uint32(data))}
	}
	return data, nil
}
