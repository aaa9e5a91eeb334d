package mocks

import (
	"sync"

	"raftstore/internal/txlog"
)

// MockCommitter is a mock implementation of applier.Committer for testing
type MockCommitter struct {
	mu        sync.RWMutex
	committed []txlog.Record

	// Error injection for testing
	CommitError error
	// FailAfter makes Commit fail with CommitError only once this many commits succeeded
	FailAfter int
}

// NewMockCommitter creates a new mock committer
func NewMockCommitter() *MockCommitter {
	return &MockCommitter{
		committed: make([]txlog.Record, 0),
	}
}

func (m *MockCommitter) Commit(header, payload []byte) (txlog.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CommitError != nil && len(m.committed) >= m.FailAfter {
		return txlog.Record{}, m.CommitError
	}

	rec := txlog.Record{
		ID:      txlog.TxID(len(m.committed) + 1),
		Header:  header,
		Payload: payload,
	}
	m.committed = append(m.committed, rec)
	return rec, nil
}

// GetCommitted returns a copy of all committed records
func (m *MockCommitter) GetCommitted() []txlog.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]txlog.Record, len(m.committed))
	copy(result, m.committed)
	return result
}
