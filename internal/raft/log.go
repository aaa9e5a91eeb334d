package raft

import "raftstore/internal/raft/logindex"

/*
Once a follower learns that a log entry is committed, it applies the entry to its local state machine in log order
(Section 5.3 of the [Raft paper](https://raft.github.io/raft.pdf)). Here the state machine is the local transaction
log: every applied command becomes one storage transaction whose header carries the index of the entry it came
from. On restart that header is the only record of how far the consensus log was applied, see package recovery.
*/

// LogEntryType distinguishes commands from entries that only the consensus layer cares about
type LogEntryType uint8

const (
	// LogCommand carries a state machine command
	LogCommand LogEntryType = iota
	// LogNoOp is appended by a new leader to commit entries from previous terms
	LogNoOp
	// LogConfiguration carries a cluster membership change
	LogConfiguration
)

// String returns the string representation of the LogEntryType
func (t LogEntryType) String() string {
	switch t {
	case LogCommand:
		return "Command"
	case LogNoOp:
		return "NoOp"
	case LogConfiguration:
		return "Configuration"
	default:
		return "Unknown"
	}
}

// LogEntry is a committed entry of the consensus log, as delivered for application
type LogEntry struct {
	Index   logindex.Index
	Term    uint64
	Type    LogEntryType
	Command []byte
}
