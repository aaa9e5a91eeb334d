package logindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

// Index is the position of an entry in the consensus log. The Applier embeds it into the header of every
// transaction it commits, which is how the transaction log is correlated with the consensus log on restart.
type Index int64

// None means that no consensus log entry has been applied to the transaction log yet
const None Index = -1

// HeaderSize is the width in bytes of an encoded Index
const HeaderSize = 8

var (
	// ErrInvalidHeader is returned when a transaction header cannot be decoded into an Index
	ErrInvalidHeader = errors.New("invalid log index header")
	// ErrMissingHeader is returned when the transaction carries no header at all. It matches ErrInvalidHeader
	// through errors.Is.
	ErrMissingHeader = fmt.Errorf("%w: header is missing", ErrInvalidHeader)
)

// String returns "none" for None and the decimal value otherwise
func (i Index) String() string {
	if i == None {
		return "none"
	}
	return strconv.FormatInt(int64(i), 10)
}

// Encode returns the fixed-width big-endian, two's-complement encoding of the index
func Encode(index Index) []byte {
	b := make([]byte, HeaderSize)
	binary.BigEndian.PutUint64(b, uint64(index))
	return b
}

// Decode is the exact inverse of Encode. An absent (nil or zero-length) header is never read as index 0.
func Decode(header []byte) (Index, error) {
	if len(header) == 0 {
		return None, ErrMissingHeader
	}
	if len(header) != HeaderSize {
		return None, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidHeader, HeaderSize, len(header))
	}
	return Index(binary.BigEndian.Uint64(header)), nil
}
