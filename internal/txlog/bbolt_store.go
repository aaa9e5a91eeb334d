package txlog

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	// Bucket names
	transactionsBucket = []byte("transactions")
)

// BboltStore is a durable, append-only transaction log backed by a single bbolt file. Records are keyed by
// the 8-byte big-endian TxID so that bbolt's byte ordering is commit order.
type BboltStore struct {
	conn     *bbolt.DB
	readOnly bool
	now      func() time.Time
}

// StoreOption configures a BboltStore
type StoreOption func(*storeOptions)

type storeOptions struct {
	readOnly    bool
	openTimeout time.Duration
	now         func() time.Time
}

// ReadOnly opens the file with a shared lock. Commit and Append fail on a read-only store.
func ReadOnly() StoreOption {
	return func(o *storeOptions) {
		o.readOnly = true
	}
}

// WithOpenTimeout bounds how long opening waits for the file lock held by another process
func WithOpenTimeout(d time.Duration) StoreOption {
	return func(o *storeOptions) {
		o.openTimeout = d
	}
}

// WithClock overrides the source of CommittedAt timestamps
func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) {
		o.now = now
	}
}

// NewBboltStore opens (or creates) the transaction log at path
func NewBboltStore(path string, opts ...StoreOption) (*BboltStore, error) {
	o := storeOptions{
		openTimeout: time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout:  o.openTimeout,
		ReadOnly: o.readOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	if !o.readOnly {
		// Initialize buckets
		err = db.Update(func(tx *bbolt.Tx) error {
			if _, err := tx.CreateBucketIfNotExists(transactionsBucket); err != nil {
				return fmt.Errorf("failed to create transactions bucket: %w", err)
			}
			return nil
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return &BboltStore{conn: db, readOnly: o.readOnly, now: o.now}, nil
}

// Commit appends a new transaction with the next id and returns the stored record
func (b *BboltStore) Commit(header, payload []byte) (Record, error) {
	if b.readOnly {
		return Record{}, fmt.Errorf("failed to commit transaction: %w", ErrReadOnly)
	}

	var rec Record
	err := b.conn.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(transactionsBucket)

		rec = Record{
			ID:          lastID(bucket) + 1,
			Header:      header,
			Payload:     payload,
			CommittedAt: b.now().UnixNano(),
		}
		return bucket.Put(txIDToBytes(rec.ID), marshalRecord(rec))
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rec, nil
}

// Append stores a record with an explicit id. The id must directly follow the last committed one.
func (b *BboltStore) Append(rec Record) error {
	if b.readOnly {
		return fmt.Errorf("failed to append transaction %d: %w", rec.ID, ErrReadOnly)
	}

	return b.conn.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(transactionsBucket)

		if last := lastID(bucket); rec.ID != last+1 {
			return fmt.Errorf("%w: got %d, last committed is %d", ErrOutOfOrder, rec.ID, last)
		}
		return bucket.Put(txIDToBytes(rec.ID), marshalRecord(rec))
	})
}

// Get retrieves the transaction with the given id
func (b *BboltStore) Get(id TxID) (Record, error) {
	var rec Record
	err := b.conn.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(transactionsBucket)
		if bucket == nil {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}

		data := bucket.Get(txIDToBytes(id))
		if data == nil {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}

		var err error
		rec, err = unmarshalRecord(data)
		return err
	})
	return rec, err
}

// LastCommittedTxID returns the id of the last committed transaction (BaseTxID if the log is empty)
func (b *BboltStore) LastCommittedTxID() (TxID, error) {
	var id TxID
	err := b.conn.View(func(tx *bbolt.Tx) error {
		id = lastID(tx.Bucket(transactionsBucket))
		return nil
	})
	if err != nil {
		return BaseTxID, fmt.Errorf("failed to read last committed transaction id: %w", err)
	}
	return id, nil
}

// Transactions opens a cursor over all transactions with id >= from. The cursor pins a read-only bbolt
// transaction until it is closed, and the same goroutine must not commit while holding it.
func (b *BboltStore) Transactions(from TxID) (Cursor, error) {
	tx, err := b.conn.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}

	c := &bboltCursor{tx: tx, from: from}
	if bucket := tx.Bucket(transactionsBucket); bucket != nil {
		c.cursor = bucket.Cursor()
	}
	return c, nil
}

// Close closes the storage connection
func (b *BboltStore) Close() error {
	return b.conn.Close()
}

type bboltCursor struct {
	tx     *bbolt.Tx
	cursor *bbolt.Cursor
	from   TxID

	started bool
	closed  bool
	rec     Record
	err     error
}

func (c *bboltCursor) Next() bool {
	if c.closed || c.err != nil || c.cursor == nil {
		return false
	}

	var k, v []byte
	if !c.started {
		k, v = c.cursor.Seek(txIDToBytes(c.from))
		c.started = true
	} else {
		k, v = c.cursor.Next()
	}
	if k == nil {
		return false
	}

	rec, err := unmarshalRecord(v)
	if err != nil {
		c.err = fmt.Errorf("transaction %d: %w", bytesToTxID(k), err)
		return false
	}
	if rec.ID != bytesToTxID(k) {
		c.err = fmt.Errorf("%w: key %d holds transaction %d", ErrCorruptRecord, bytesToTxID(k), rec.ID)
		return false
	}

	c.rec = rec
	return true
}

func (c *bboltCursor) Record() Record {
	return c.rec
}

func (c *bboltCursor) Err() error {
	return c.err
}

func (c *bboltCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.tx.Rollback()
}

func lastID(bucket *bbolt.Bucket) TxID {
	if bucket == nil {
		return BaseTxID
	}
	k, _ := bucket.Cursor().Last()
	if k == nil {
		return BaseTxID
	}
	return bytesToTxID(k)
}

// Helper functions for TxID <-> []byte conversion
func txIDToBytes(id TxID) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func bytesToTxID(b []byte) TxID {
	return TxID(binary.BigEndian.Uint64(b))
}
