package txlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func createTempStore(t *testing.T) (*BboltStore, string, func()) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "txlog.db")

	store, err := NewBboltStore(dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, dbPath, cleanup
}

// collect drains the cursor and closes it
func collect(t *testing.T, c Cursor) []Record {
	t.Helper()
	defer func() {
		require.NoError(t, c.Close())
	}()

	var records []Record
	for c.Next() {
		records = append(records, c.Record())
	}
	require.NoError(t, c.Err())
	return records
}

func TestNewBboltStore(t *testing.T) {
	t.Run("creates new database successfully", func(t *testing.T) {
		store, dbPath, cleanup := createTempStore(t)
		defer cleanup()

		assert.NotNil(t, store.conn)

		_, err := os.Stat(dbPath)
		assert.NoError(t, err)
	})

	t.Run("fails with invalid path", func(t *testing.T) {
		store, err := NewBboltStore("/invalid/path/that/does/not/exist/txlog.db")
		assert.Error(t, err)
		assert.Nil(t, store)
	})
}

func TestBboltStore_Commit(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	store, err := NewBboltStore(filepath.Join(t.TempDir(), "txlog.db"), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	defer store.Close()

	t.Run("assigns ids in commit order", func(t *testing.T) {
		first, err := store.Commit([]byte{1}, []byte("first"))
		require.NoError(t, err)
		second, err := store.Commit(nil, []byte("second"))
		require.NoError(t, err)

		assert.Equal(t, TxID(1), first.ID)
		assert.Equal(t, TxID(2), second.ID)
		assert.Equal(t, fixed.UnixNano(), first.CommittedAt)
	})

	t.Run("stores header and payload", func(t *testing.T) {
		rec, err := store.Get(1)
		require.NoError(t, err)
		assert.Equal(t, []byte{1}, rec.Header)
		assert.Equal(t, []byte("first"), rec.Payload)
		assert.True(t, rec.HasHeader())
	})

	t.Run("absent header stays absent", func(t *testing.T) {
		rec, err := store.Get(2)
		require.NoError(t, err)
		assert.Nil(t, rec.Header)
		assert.False(t, rec.HasHeader())
	})
}

func TestBboltStore_Append(t *testing.T) {
	store, _, cleanup := createTempStore(t)
	defer cleanup()

	t.Run("accepts the next id", func(t *testing.T) {
		require.NoError(t, store.Append(Record{ID: 1, Payload: []byte("a")}))
		require.NoError(t, store.Append(Record{ID: 2, Payload: []byte("b")}))

		last, err := store.LastCommittedTxID()
		require.NoError(t, err)
		assert.Equal(t, TxID(2), last)
	})

	t.Run("rejects a gap", func(t *testing.T) {
		err := store.Append(Record{ID: 4})
		assert.ErrorIs(t, err, ErrOutOfOrder)
	})

	t.Run("rejects an existing id", func(t *testing.T) {
		err := store.Append(Record{ID: 2})
		assert.ErrorIs(t, err, ErrOutOfOrder)
	})

	t.Run("rejects the base id", func(t *testing.T) {
		err := store.Append(Record{ID: BaseTxID})
		assert.ErrorIs(t, err, ErrOutOfOrder)
	})
}

func TestBboltStore_Get(t *testing.T) {
	store, _, cleanup := createTempStore(t)
	defer cleanup()

	_, err := store.Get(1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBboltStore_LastCommittedTxID(t *testing.T) {
	store, _, cleanup := createTempStore(t)
	defer cleanup()

	t.Run("empty log returns base id", func(t *testing.T) {
		last, err := store.LastCommittedTxID()
		require.NoError(t, err)
		assert.Equal(t, BaseTxID, last)
	})

	t.Run("returns the last commit", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			_, err := store.Commit(nil, []byte("tx"))
			require.NoError(t, err)
		}

		last, err := store.LastCommittedTxID()
		require.NoError(t, err)
		assert.Equal(t, TxID(5), last)
	})
}

func TestBboltStore_Transactions(t *testing.T) {
	store, _, cleanup := createTempStore(t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		_, err := store.Commit([]byte{byte(i + 1)}, nil)
		require.NoError(t, err)
	}

	t.Run("iterates from the given id in commit order", func(t *testing.T) {
		c, err := store.Transactions(3)
		require.NoError(t, err)

		records := collect(t, c)
		require.Len(t, records, 3)
		assert.Equal(t, TxID(3), records[0].ID)
		assert.Equal(t, TxID(4), records[1].ID)
		assert.Equal(t, TxID(5), records[2].ID)
	})

	t.Run("from the last id yields the tail", func(t *testing.T) {
		c, err := store.Transactions(5)
		require.NoError(t, err)

		records := collect(t, c)
		require.Len(t, records, 1)
		assert.Equal(t, []byte{5}, records[0].Header)
	})

	t.Run("past the end yields nothing", func(t *testing.T) {
		c, err := store.Transactions(6)
		require.NoError(t, err)
		assert.Empty(t, collect(t, c))
	})

	t.Run("close is idempotent", func(t *testing.T) {
		c, err := store.Transactions(1)
		require.NoError(t, err)

		assert.NoError(t, c.Close())
		assert.NoError(t, c.Close())
		assert.False(t, c.Next())
	})

	t.Run("closed cursor releases its read transaction", func(t *testing.T) {
		c, err := store.Transactions(1)
		require.NoError(t, err)
		require.True(t, c.Next())
		require.NoError(t, c.Close())

		assert.Equal(t, 0, store.conn.Stats().OpenTxN)
	})
}

func TestBboltStore_CorruptRecord(t *testing.T) {
	store, _, cleanup := createTempStore(t)
	defer cleanup()

	_, err := store.Commit(nil, []byte("ok"))
	require.NoError(t, err)

	t.Run("undecodable value surfaces through Err", func(t *testing.T) {
		err := store.conn.Update(func(tx *bbolt.Tx) error {
			// Truncated length-delimited field
			return tx.Bucket(transactionsBucket).Put(txIDToBytes(2), []byte{0x08, 0x02, 0x12, 0x09, 0x01})
		})
		require.NoError(t, err)

		c, err := store.Transactions(1)
		require.NoError(t, err)
		defer c.Close()

		require.True(t, c.Next())
		assert.False(t, c.Next())
		assert.ErrorIs(t, c.Err(), ErrCorruptRecord)
	})

	t.Run("id mismatch between key and value", func(t *testing.T) {
		err := store.conn.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(transactionsBucket).Put(txIDToBytes(2), marshalRecord(Record{ID: 7}))
		})
		require.NoError(t, err)

		c, err := store.Transactions(2)
		require.NoError(t, err)
		defer c.Close()

		assert.False(t, c.Next())
		assert.ErrorIs(t, c.Err(), ErrCorruptRecord)
	})
}

func TestBboltStore_ReadOnly(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "txlog.db")

	store, err := NewBboltStore(dbPath)
	require.NoError(t, err)
	_, err = store.Commit([]byte{9}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	ro, err := NewBboltStore(dbPath, ReadOnly())
	require.NoError(t, err)
	defer ro.Close()

	last, err := ro.LastCommittedTxID()
	require.NoError(t, err)
	assert.Equal(t, TxID(1), last)

	_, err = ro.Commit(nil, nil)
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, ro.Append(Record{ID: 2}), ErrReadOnly)
}

func TestBboltStore_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "txlog.db")

	store, err := NewBboltStore(dbPath)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := store.Commit([]byte{byte(i)}, []byte("payload"))
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	// reopen
	store, err = NewBboltStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	last, err := store.LastCommittedTxID()
	require.NoError(t, err)
	assert.Equal(t, TxID(3), last)

	c, err := store.Transactions(1)
	require.NoError(t, err)
	records := collect(t, c)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, TxID(i+1), rec.ID)
		assert.Equal(t, []byte{byte(i)}, rec.Header)
	}
}
