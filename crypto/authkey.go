package crypto

import (
	"crypto/sha1"
	"encoding/binary"
	"errors"
)

const AuthKeySize = 256

// AuthKey - shared secret of mtproto connection with its derived ids
type AuthKey struct {
	Value   [AuthKeySize]byte
	ID      [8]byte
	AuxHash [8]byte
}

func NewAuthKey(value []byte) (AuthKey, error) {
	if len(value) > AuthKeySize || len(value) == 0 {
		return AuthKey{}, errors.New("invalid auth key size")
	}

	var k AuthKey
	// key is a big number, so leading zeroes can be trimmed
	copy(k.Value[AuthKeySize-len(value):], value)

	hash := sha1.Sum(k.Value[:])
	copy(k.AuxHash[:], hash[0:8])
	copy(k.ID[:], hash[12:20])
	return k, nil
}

func (k AuthKey) IsZero() bool {
	return k.ID == [8]byte{}
}

// IntID - auth key id as it is written in unencrypted header
func (k AuthKey) IntID() int64 {
	return int64(binary.LittleEndian.Uint64(k.ID[:]))
}
