package mocks

import (
	"sync"

	"raftstore/internal/txlog"
)

// MockTransactionLog is a mock implementation of txlog.IDSource and txlog.Reader for testing
type MockTransactionLog struct {
	mu      sync.RWMutex
	records []txlog.Record

	// LastID overrides the id reported by LastCommittedTxID. When nil the id of the last record is reported.
	LastID *txlog.TxID

	// Error injection for testing
	LastCommittedTxIDError error
	TransactionsError      error
	// ScanError is reported by the cursor once ScanErrorAfter records have been delivered
	ScanError      error
	ScanErrorAfter int
	CloseError     error

	cursors []*MockCursor
}

// NewMockTransactionLog creates a new mock transaction log holding the given records
func NewMockTransactionLog(records ...txlog.Record) *MockTransactionLog {
	return &MockTransactionLog{
		records: append([]txlog.Record(nil), records...),
	}
}

// NewMockTransactionLogWithHeaders creates a log with one transaction per header, with ids starting at 1
func NewMockTransactionLogWithHeaders(headers ...[]byte) *MockTransactionLog {
	records := make([]txlog.Record, 0, len(headers))
	for i, header := range headers {
		records = append(records, txlog.Record{ID: txlog.TxID(i + 1), Header: header})
	}
	return NewMockTransactionLog(records...)
}

// SetLastID makes LastCommittedTxID report id regardless of the stored records
func (m *MockTransactionLog) SetLastID(id txlog.TxID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastID = &id
}

func (m *MockTransactionLog) LastCommittedTxID() (txlog.TxID, error) {
	if m.LastCommittedTxIDError != nil {
		return txlog.BaseTxID, m.LastCommittedTxIDError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.LastID != nil {
		return *m.LastID, nil
	}
	if len(m.records) == 0 {
		return txlog.BaseTxID, nil
	}
	return m.records[len(m.records)-1].ID, nil
}

func (m *MockTransactionLog) Transactions(from txlog.TxID) (txlog.Cursor, error) {
	if m.TransactionsError != nil {
		return nil, m.TransactionsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []txlog.Record
	for _, rec := range m.records {
		if rec.ID >= from {
			records = append(records, rec)
		}
	}

	c := &MockCursor{
		records:    records,
		scanError:  m.ScanError,
		errorAfter: m.ScanErrorAfter,
		closeError: m.CloseError,
	}
	m.cursors = append(m.cursors, c)
	return c, nil
}

// Cursors returns every cursor handed out so far
func (m *MockTransactionLog) Cursors() []*MockCursor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*MockCursor, len(m.cursors))
	copy(result, m.cursors)
	return result
}

// MockCursor is a mock implementation of txlog.Cursor for testing
type MockCursor struct {
	mu         sync.Mutex
	records    []txlog.Record
	pos        int
	current    txlog.Record
	err        error
	scanError  error
	errorAfter int
	closeError error

	// CloseCount is the number of times Close was called
	CloseCount int
}

// NewMockCursor creates a cursor that yields exactly the given records
func NewMockCursor(records ...txlog.Record) *MockCursor {
	return &MockCursor{records: records}
}

func (c *MockCursor) Next() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.CloseCount > 0 || c.err != nil {
		return false
	}
	if c.scanError != nil && c.pos == c.errorAfter {
		c.err = c.scanError
		return false
	}
	if c.pos >= len(c.records) {
		return false
	}
	c.current = c.records[c.pos]
	c.pos++
	return true
}

func (c *MockCursor) Record() txlog.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *MockCursor) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *MockCursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCount++
	return c.closeError
}

// Closes returns how many times the cursor was closed
func (c *MockCursor) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CloseCount
}

// MockReader hands out a fixed cursor, for tests that need full control over what the cursor yields
type MockReader struct {
	Cursor *MockCursor
	From   []txlog.TxID
}

func (r *MockReader) Transactions(from txlog.TxID) (txlog.Cursor, error) {
	r.From = append(r.From, from)
	return r.Cursor, nil
}

// MockIDSource reports a fixed last committed transaction id
type MockIDSource struct {
	ID  txlog.TxID
	Err error
}

func (s MockIDSource) LastCommittedTxID() (txlog.TxID, error) {
	return s.ID, s.Err
}
