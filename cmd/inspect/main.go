// Command inspect prints the last consensus index applied to a transaction log without modifying it.
// The node owning the log must be stopped first, it holds an exclusive lock on the file while running.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"raftstore/internal/raft/recovery"
	"raftstore/internal/txlog"
)

type output struct {
	Path           string `json:"path"`
	LastTxID       uint64 `json:"last_tx_id"`
	TerminalTxID   uint64 `json:"terminal_tx_id,omitempty"`
	RecordsScanned int    `json:"records_scanned"`

	// Left out when recovery failed, the log has no usable index then
	LastApplied *int64 `json:"last_applied_index,omitempty"`
	ResumeFrom  *int64 `json:"resume_from_index,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func main() {
	path := flag.String("path", "./data/txlog.db", "Path to the transaction log file")
	asJSON := flag.Bool("json", false, "Print the result as JSON")
	flag.Parse()

	store, err := txlog.NewBboltStore(*path, txlog.ReadOnly())
	if err != nil {
		log.Fatalf("Failed to open transaction log: %v", err)
	}
	defer store.Close()

	finder := recovery.NewFinder(store, store, recovery.WithLogger(log.New(io.Discard, "", 0)))
	res, findErr := finder.Find()

	out := newOutput(*path, res, findErr)
	if findErr != nil {
		if id, err := store.LastCommittedTxID(); err == nil {
			out.LastTxID = uint64(id)
		}
	}

	if *asJSON {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal result: %v", err)
		}
		fmt.Println(string(data))
	} else {
		printText(os.Stdout, out)
	}

	if findErr != nil {
		store.Close()
		os.Exit(1)
	}
}

func newOutput(path string, res recovery.Result, findErr error) output {
	out := output{
		Path:           path,
		LastTxID:       uint64(res.LastTxID),
		TerminalTxID:   uint64(res.TerminalTxID),
		RecordsScanned: res.RecordsScanned,
	}
	if findErr != nil {
		out.Error = findErr.Error()
		out.ErrorKind = recovery.KindOf(findErr).String()
		return out
	}

	lastApplied := int64(res.Index)
	resumeFrom := int64(res.ResumeFrom())
	out.LastApplied = &lastApplied
	out.ResumeFrom = &resumeFrom
	return out
}

func printText(w io.Writer, out output) {
	fmt.Fprintf(w, "Transaction log: %s\n", out.Path)
	fmt.Fprintf(w, "  Last transaction: %d\n", out.LastTxID)
	if out.Error != "" {
		fmt.Fprintf(w, "  Recovery failed (%s): %s\n", out.ErrorKind, out.Error)
		return
	}
	if out.LastTxID == uint64(txlog.BaseTxID) {
		fmt.Fprintln(w, "  Log is empty, replay starts from the first consensus entry")
		return
	}
	fmt.Fprintf(w, "  Terminal transaction: %d (%d record(s) scanned)\n", out.TerminalTxID, out.RecordsScanned)
	fmt.Fprintf(w, "  Last applied index: %d\n", *out.LastApplied)
	fmt.Fprintf(w, "  Replay resumes from: %d\n", *out.ResumeFrom)
}
