package recovery

import (
	"errors"
	"fmt"
	"log"
	"time"

	"raftstore/internal/raft/logindex"
	"raftstore/internal/txlog"
)

// MetricsCollector is an optional interface for collecting recovery metrics
type MetricsCollector interface {
	RecordRecoveryScan(recordsScanned int, duration time.Duration)
	RecordRecoveryFailure(kind Kind)
}

// Result is the outcome of a successful recovery scan
type Result struct {
	// Index is the last consensus index applied to the transaction log, or logindex.None
	Index logindex.Index
	// LastTxID is the last committed transaction id reported by the id source
	LastTxID txlog.TxID
	// TerminalTxID is the transaction whose header Index was decoded from
	TerminalTxID txlog.TxID
	// RecordsScanned is the number of records the cursor delivered
	RecordsScanned int
}

// Empty reports whether the transaction log held no transactions
func (r Result) Empty() bool {
	return r.LastTxID == txlog.BaseTxID
}

// ResumeFrom returns the first consensus index replay has to deliver
func (r Result) ResumeFrom() logindex.Index {
	return r.Index + 1
}

// Finder correlates the transaction log with the consensus log on startup. It reads the last committed
// transaction and decodes the consensus index the Applier embedded in its header.
//
// A Finder must run once, before consensus replay starts, on a transaction log that has already completed its
// own recovery. It takes no locks and assumes it is the only reader at that point.
type Finder struct {
	ids     txlog.IDSource
	reader  txlog.Reader
	logger  *log.Logger
	metrics MetricsCollector
}

// Option configures a Finder
type Option func(*Finder)

// WithLogger sets the logger the resolved index is reported to
func WithLogger(logger *log.Logger) Option {
	return func(f *Finder) {
		f.logger = logger
	}
}

// WithMetrics sets the collector scan outcomes are reported to
func WithMetrics(metrics MetricsCollector) Option {
	return func(f *Finder) {
		f.metrics = metrics
	}
}

// NewFinder creates a Finder over the given id source and log reader
func NewFinder(ids txlog.IDSource, reader txlog.Reader, opts ...Option) *Finder {
	f := &Finder{
		ids:    ids,
		reader: reader,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FindLastAppliedIndex returns the last consensus index applied to the transaction log, or logindex.None if
// the log is empty
func (f *Finder) FindLastAppliedIndex() (logindex.Index, error) {
	res, err := f.Find()
	if err != nil {
		return logindex.None, err
	}
	return res.Index, nil
}

// Find scans the tail of the transaction log. Any returned error is an *Error and must halt startup.
func (f *Finder) Find() (Result, error) {
	start := time.Now()

	res, err := f.scan()
	if err != nil {
		if f.metrics != nil {
			f.metrics.RecordRecoveryFailure(KindOf(err))
		}
		return Result{Index: logindex.None}, err
	}

	if f.metrics != nil {
		f.metrics.RecordRecoveryScan(res.RecordsScanned, time.Since(start))
	}

	if res.Empty() {
		f.logger.Printf("[RECOVERY] Last committed index %s (transaction log is empty)", res.Index)
	} else {
		f.logger.Printf("[RECOVERY] Last committed index %s (transaction %d, %d record(s) scanned)",
			res.Index, res.TerminalTxID, res.RecordsScanned)
	}
	return res, nil
}

func (f *Finder) scan() (res Result, err error) {
	lastID, err := f.ids.LastCommittedTxID()
	if err != nil {
		return Result{}, &Error{Kind: KindIOFailure, Err: fmt.Errorf("failed to read last committed transaction id: %w", err)}
	}

	res = Result{Index: logindex.None, LastTxID: lastID}
	if lastID == txlog.BaseTxID {
		return res, nil
	}

	cursor, err := f.reader.Transactions(lastID)
	if err != nil {
		return Result{}, &Error{Kind: KindIOFailure, TxID: lastID, Err: fmt.Errorf("failed to open cursor: %w", err)}
	}
	defer func() {
		if cerr := cursor.Close(); cerr != nil && err == nil {
			err = &Error{Kind: KindIOFailure, TxID: lastID, Err: fmt.Errorf("failed to close cursor: %w", cerr)}
		}
	}()

	// More than one record is legitimate when a transaction committed after the id was read, so the last
	// record seen wins
	var terminal txlog.Record
	for cursor.Next() {
		rec := cursor.Record()
		if rec.ID < lastID || (res.RecordsScanned > 0 && rec.ID <= terminal.ID) {
			return Result{}, &Error{
				Kind: KindCorruptLog,
				TxID: rec.ID,
				Err:  fmt.Errorf("cursor from %d delivered transaction %d after %d", lastID, rec.ID, terminal.ID),
			}
		}
		terminal = rec
		res.RecordsScanned++
	}
	if err := cursor.Err(); err != nil {
		return Result{}, &Error{Kind: KindIOFailure, TxID: lastID, Err: err}
	}

	if res.RecordsScanned == 0 {
		return Result{}, &Error{
			Kind: KindCorruptLog,
			TxID: lastID,
			Err:  errors.New("last committed transaction is not readable from the log"),
		}
	}

	index, err := logindex.Decode(terminal.Header)
	if err != nil {
		return Result{}, &Error{Kind: KindMissingOrInvalidHeader, TxID: terminal.ID, Err: err}
	}

	res.Index = index
	res.TerminalTxID = terminal.ID
	return res, nil
}
