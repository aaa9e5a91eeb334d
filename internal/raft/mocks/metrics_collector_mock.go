package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"raftstore/internal/raft/recovery"
)

// MockMetricsCollector is a mock implementation of recovery.MetricsCollector and applier.MetricsCollector
// for testing
type MockMetricsCollector struct {
	mock.Mock
}

// NewMockMetricsCollector creates a new mock metrics collector
func NewMockMetricsCollector() *MockMetricsCollector {
	return &MockMetricsCollector{}
}

func (m *MockMetricsCollector) RecordRecoveryScan(recordsScanned int, duration time.Duration) {
	m.Called(recordsScanned, duration)
}

func (m *MockMetricsCollector) RecordRecoveryFailure(kind recovery.Kind) {
	m.Called(kind)
}

func (m *MockMetricsCollector) RecordTransactionApplied() {
	m.Called()
}

func (m *MockMetricsCollector) RecordEntrySkipped() {
	m.Called()
}
