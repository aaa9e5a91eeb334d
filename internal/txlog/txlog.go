package txlog

import "errors"

// TxID identifies a committed transaction. Ids are assigned in commit order and increase by exactly one per
// commit, starting at 1.
type TxID uint64

// BaseTxID is reserved and means that the transaction log is empty
const BaseTxID TxID = 0

var (
	// ErrNotFound is returned when a transaction with the requested id is not in the log
	ErrNotFound = errors.New("transaction not found")
	// ErrOutOfOrder is returned when a record would break the contiguous id sequence of the log
	ErrOutOfOrder = errors.New("transaction id out of order")
	// ErrCorruptRecord is returned when a stored record cannot be decoded
	ErrCorruptRecord = errors.New("corrupt transaction record")
	// ErrReadOnly is returned when writing to a store opened with ReadOnly
	ErrReadOnly = errors.New("transaction log is read-only")
)

// Record is a committed transaction as seen by readers of the log. It is immutable once appended.
type Record struct {
	ID TxID
	// Header is opaque to the log. A nil or zero-length Header means the transaction carries no header.
	Header []byte
	// Payload holds the storage mutation of the transaction
	Payload []byte
	// CommittedAt is the commit time in Unix nanoseconds
	CommittedAt int64
}

// HasHeader reports whether the record carries a header
func (r Record) HasHeader() bool {
	return len(r.Header) > 0
}

// IDSource exposes the id of the last committed transaction
type IDSource interface {
	// LastCommittedTxID returns the id of the last committed transaction, or BaseTxID if the log is empty
	LastCommittedTxID() (TxID, error)
}

// Reader opens forward cursors over committed transactions
type Reader interface {
	// Transactions returns a cursor over committed transactions with id >= from, in commit order. The cursor
	// must be closed by the caller.
	Transactions(from TxID) (Cursor, error)
}

// Cursor is a single, non-restartable forward pass over committed transactions. Usage follows the
// bufio.Scanner pattern:
//
//	for c.Next() {
//		rec := c.Record()
//	}
//	if err := c.Err(); err != nil { ... }
type Cursor interface {
	// Next advances to the next record and reports whether there is one
	Next() bool
	// Record returns the record the cursor is positioned at
	Record() Record
	// Err returns the error that stopped iteration, if any
	Err() error
	// Close releases the resources held by the cursor. It is safe to call more than once.
	Close() error
}
