package applier

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"raftstore/internal/raft"
	"raftstore/internal/raft/logindex"
	"raftstore/internal/txlog"
)

var (
	// ErrIndexRegression is returned when entries are not in strictly increasing index order
	ErrIndexRegression = errors.New("consensus index regression")
	// ErrIndexGap is returned when an entry would skip over entries that were never applied
	ErrIndexGap = errors.New("consensus index gap")
)

// Committer appends one transaction to the transaction log
type Committer interface {
	Commit(header, payload []byte) (txlog.Record, error)
}

// MetricsCollector is an optional interface for collecting applier metrics
type MetricsCollector interface {
	RecordTransactionApplied()
	RecordEntrySkipped()
}

// Applier turns committed consensus log entries into transactions. Each command is committed with its
// consensus index encoded in the transaction header, which is what recovery.Finder reads back on restart.
type Applier struct {
	mu          sync.Mutex
	committer   Committer
	lastApplied logindex.Index
	logger      *log.Logger
	metrics     MetricsCollector
}

// Option configures an Applier
type Option func(*Applier)

// WithLogger sets the logger used for reporting skipped entries
func WithLogger(logger *log.Logger) Option {
	return func(a *Applier) {
		a.logger = logger
	}
}

// WithMetrics sets the collector applied and skipped entries are reported to
func WithMetrics(metrics MetricsCollector) Option {
	return func(a *Applier) {
		a.metrics = metrics
	}
}

// New creates an Applier. lastApplied must be the index recovered from the transaction log (logindex.None for
// an empty log) so that entries replayed from the consensus log are not applied twice.
func New(committer Committer, lastApplied logindex.Index, opts ...Option) *Applier {
	a := &Applier{
		committer:   committer,
		lastApplied: lastApplied,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LastApplied returns the index of the last entry applied
func (a *Applier) LastApplied() logindex.Index {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastApplied
}

// Apply applies entries in log order. Entries at or below the last applied index are skipped, the rest must be
// contiguous. A batch that is not strictly increasing is rejected before anything is committed. On a commit
// error the entries before the failing one stay applied.
func (a *Applier) Apply(entries []raft.LogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 1; i < len(entries); i++ {
		if entries[i].Index <= entries[i-1].Index {
			return fmt.Errorf("%w: entry %d follows entry %d", ErrIndexRegression, entries[i].Index, entries[i-1].Index)
		}
	}

	for _, entry := range entries {
		if entry.Index <= a.lastApplied {
			// Replay overlap: the transaction for this entry is already in the log
			a.logger.Printf("[APPLIER] Skipping entry %d (last applied %s)", entry.Index, a.lastApplied)
			if a.metrics != nil {
				a.metrics.RecordEntrySkipped()
			}
			continue
		}
		if a.lastApplied != logindex.None && entry.Index != a.lastApplied+1 {
			return fmt.Errorf("%w: expected entry %d, got %d", ErrIndexGap, a.lastApplied+1, entry.Index)
		}

		if entry.Type != raft.LogCommand {
			// Non-command entries (e.g., no-op, configuration changes) carry no state
			a.lastApplied = entry.Index
			continue
		}

		if _, err := a.committer.Commit(logindex.Encode(entry.Index), entry.Command); err != nil {
			return fmt.Errorf("failed to commit entry %d: %w", entry.Index, err)
		}
		a.lastApplied = entry.Index
		if a.metrics != nil {
			a.metrics.RecordTransactionApplied()
		}
	}
	return nil
}
