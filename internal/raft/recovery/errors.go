package recovery

import (
	"errors"
	"fmt"

	"raftstore/internal/txlog"
)

// A Kind classifies why the last applied index could not be determined. Every Kind is fatal for startup: a
// deterministic read of an already recovered log does not change on retry.
type Kind uint8

const (
	// KindIOFailure means the id source or the log could not be read
	KindIOFailure Kind = iota + 1
	// KindCorruptLog means the log claims committed transactions but does not deliver them in order
	KindCorruptLog
	// KindMissingOrInvalidHeader means the last committed transaction has no decodable log index header
	KindMissingOrInvalidHeader
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindIOFailure:
		return "IOFailure"
	case KindCorruptLog:
		return "CorruptLog"
	case KindMissingOrInvalidHeader:
		return "MissingOrInvalidHeader"
	default:
		return "Unknown"
	}
}

var (
	// ErrIOFailure matches every *Error of KindIOFailure
	ErrIOFailure = errors.New("transaction log read failed")
	// ErrCorruptLog matches every *Error of KindCorruptLog
	ErrCorruptLog = errors.New("transaction log is corrupt")
	// ErrMissingOrInvalidHeader matches every *Error of KindMissingOrInvalidHeader
	ErrMissingOrInvalidHeader = errors.New("missing or invalid log index header")
)

// Error is returned by Finder when the last applied index cannot be trusted
type Error struct {
	Kind Kind
	// TxID is the offending transaction, or txlog.BaseTxID when the failure happened before one was known
	TxID txlog.TxID
	Err  error
}

func (e *Error) Error() string {
	if e.TxID == txlog.BaseTxID {
		return fmt.Sprintf("recovery failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("recovery failed (%s) at transaction %d: %v", e.Kind, e.TxID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match an *Error against the sentinel of its Kind
func (e *Error) Is(target error) bool {
	switch target {
	case ErrIOFailure:
		return e.Kind == KindIOFailure
	case ErrCorruptLog:
		return e.Kind == KindCorruptLog
	case ErrMissingOrInvalidHeader:
		return e.Kind == KindMissingOrInvalidHeader
	}
	return false
}

// KindOf returns the Kind of a recovery error, or 0 if err is not one
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return 0
}
