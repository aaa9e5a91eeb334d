package applier_test

import (
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raftstore/internal/raft"
	"raftstore/internal/raft/applier"
	"raftstore/internal/raft/logindex"
	"raftstore/internal/raft/mocks"
)

func command(index logindex.Index, cmd string) raft.LogEntry {
	return raft.LogEntry{Index: index, Term: 1, Type: raft.LogCommand, Command: []byte(cmd)}
}

func newTestApplier(c applier.Committer, lastApplied logindex.Index, opts ...applier.Option) *applier.Applier {
	opts = append([]applier.Option{applier.WithLogger(log.New(io.Discard, "", 0))}, opts...)
	return applier.New(c, lastApplied, opts...)
}

func TestApplier_Apply(t *testing.T) {
	committer := mocks.NewMockCommitter()
	a := newTestApplier(committer, logindex.None)

	t.Run("embeds the consensus index in each header", func(t *testing.T) {
		err := a.Apply([]raft.LogEntry{
			command(1, "SET key1=value1"),
			command(2, "SET key2=value2"),
		})
		require.NoError(t, err)

		committed := committer.GetCommitted()
		require.Len(t, committed, 2)
		for i, rec := range committed {
			index, err := logindex.Decode(rec.Header)
			require.NoError(t, err)
			assert.Equal(t, logindex.Index(i+1), index)
		}
		assert.Equal(t, []byte("SET key2=value2"), committed[1].Payload)
		assert.Equal(t, logindex.Index(2), a.LastApplied())
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		require.NoError(t, a.Apply(nil))
		assert.Len(t, committer.GetCommitted(), 2)
	})

	t.Run("non-command entries advance without a transaction", func(t *testing.T) {
		err := a.Apply([]raft.LogEntry{
			{Index: 3, Term: 2, Type: raft.LogNoOp},
			{Index: 4, Term: 2, Type: raft.LogConfiguration},
			command(5, "DEL key1"),
		})
		require.NoError(t, err)

		committed := committer.GetCommitted()
		require.Len(t, committed, 3)
		index, err := logindex.Decode(committed[2].Header)
		require.NoError(t, err)
		assert.Equal(t, logindex.Index(5), index)
		assert.Equal(t, logindex.Index(5), a.LastApplied())
	})
}

func TestApplier_ReplayOverlap(t *testing.T) {
	committer := mocks.NewMockCommitter()
	a := newTestApplier(committer, 3)

	err := a.Apply([]raft.LogEntry{
		command(2, "old"),
		command(3, "old"),
		command(4, "new"),
	})
	require.NoError(t, err)

	committed := committer.GetCommitted()
	require.Len(t, committed, 1)
	assert.Equal(t, []byte("new"), committed[0].Payload)
	assert.Equal(t, logindex.Index(4), a.LastApplied())
}

func TestApplier_Ordering(t *testing.T) {
	t.Run("regression within a batch", func(t *testing.T) {
		committer := mocks.NewMockCommitter()
		a := newTestApplier(committer, logindex.None)

		err := a.Apply([]raft.LogEntry{command(1, "a"), command(3, "b"), command(2, "c")})
		assert.ErrorIs(t, err, applier.ErrIndexRegression)
		assert.Empty(t, committer.GetCommitted())
		assert.Equal(t, logindex.None, a.LastApplied())
	})

	t.Run("duplicate index within a batch", func(t *testing.T) {
		committer := mocks.NewMockCommitter()
		a := newTestApplier(committer, 3)

		err := a.Apply([]raft.LogEntry{command(4, "a"), command(4, "b")})
		assert.ErrorIs(t, err, applier.ErrIndexRegression)
		assert.Empty(t, committer.GetCommitted())
		assert.Equal(t, logindex.Index(3), a.LastApplied())
	})

	t.Run("gap after the last applied entry", func(t *testing.T) {
		committer := mocks.NewMockCommitter()
		a := newTestApplier(committer, 3)

		err := a.Apply([]raft.LogEntry{command(5, "a")})
		assert.ErrorIs(t, err, applier.ErrIndexGap)
		assert.Empty(t, committer.GetCommitted())
		assert.Equal(t, logindex.Index(3), a.LastApplied())
	})

	t.Run("first entry of an empty log may start anywhere", func(t *testing.T) {
		committer := mocks.NewMockCommitter()
		a := newTestApplier(committer, logindex.None)

		require.NoError(t, a.Apply([]raft.LogEntry{command(10, "a")}))
		assert.Equal(t, logindex.Index(10), a.LastApplied())
	})
}

func TestApplier_CommitFailure(t *testing.T) {
	committer := mocks.NewMockCommitter()
	committer.CommitError = errors.New("disk full")
	committer.FailAfter = 1
	a := newTestApplier(committer, logindex.None)

	err := a.Apply([]raft.LogEntry{command(1, "a"), command(2, "b"), command(3, "c")})
	assert.ErrorIs(t, err, committer.CommitError)

	// Entries before the failing one stay applied
	assert.Len(t, committer.GetCommitted(), 1)
	assert.Equal(t, logindex.Index(1), a.LastApplied())
}

func TestApplier_Metrics(t *testing.T) {
	metrics := mocks.NewMockMetricsCollector()
	metrics.On("RecordEntrySkipped").Once()
	metrics.On("RecordTransactionApplied").Twice()

	a := newTestApplier(mocks.NewMockCommitter(), 1, applier.WithMetrics(metrics))
	require.NoError(t, a.Apply([]raft.LogEntry{command(1, "a"), command(2, "b"), command(3, "c")}))

	metrics.AssertExpectations(t)
}
