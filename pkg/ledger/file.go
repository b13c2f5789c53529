package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// FileLedger is a hash chain persisted as one JSON record per line.
//
// Appends take an exclusive advisory lock on the file so that two writers
// can never compute an identical prev_hash. The head is re-derived from the
// last line of the file under the lock, not from in-process state, so the
// ledger stays correct even if another process appended since our last
// write.
type FileLedger struct {
	mu   sync.Mutex
	path string
}

// OpenFile opens (creating if absent) a file-backed ledger at path. The
// existing chain is verified eagerly: a corrupt ledger is a load-time error,
// never a silently degraded one.
func OpenFile(path string) (*FileLedger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	defer f.Close()

	l := &FileLedger{path: path}
	entries, badIndex, parseErr := readEntries(f)
	if parseErr != nil {
		return nil, fmt.Errorf("ledger: %s line %d unparsable: %w", path, badIndex+1, parseErr)
	}
	if res := VerifyEntries(entries); !res.OK {
		return nil, fmt.Errorf("ledger: %s failed verification: %s", path, res.Reason)
	}
	return l, nil
}

// FileAt returns a handle on a ledger file without eagerly verifying it.
// Verification tooling uses this to report the first bad entry of a corrupt
// ledger instead of refusing to open it.
func FileAt(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Append writes one entry to the ledger file and returns it.
func (l *FileLedger) Append(entryType string, payload map[string]interface{}) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s for append: %w", l.path, err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return nil, fmt.Errorf("ledger: lock %s: %w", l.path, err)
	}
	defer func() { _ = unlockFile(f) }()

	head, seq, err := readHead(l.path)
	if err != nil {
		return nil, err
	}

	entry := Entry{
		Sequence:  seq + 1,
		EntryType: entryType,
		Payload:   normalizePayload(payload),
		PrevHash:  head,
	}
	stepHash, err := ComputeStepHash(entry)
	if err != nil {
		return nil, err
	}
	entry.StepHash = stepHash

	line, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal entry %d: %w", entry.Sequence, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("ledger: write %s: %w", l.path, err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("ledger: sync %s: %w", l.path, err)
	}
	return &entry, nil
}

// ReadAll parses every record in the ledger file. An unparsable line is an
// error identifying the offending line, never skipped.
func (l *FileLedger) ReadAll() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", l.path, err)
	}
	defer f.Close()

	entries, badIndex, parseErr := readEntries(f)
	if parseErr != nil {
		return nil, fmt.Errorf("ledger: %s line %d unparsable: %w", l.path, badIndex+1, parseErr)
	}
	return entries, nil
}

// VerifyChain re-walks the file. A corrupt line is reported as a chain
// failure at its index.
func (l *FileLedger) VerifyChain() VerifyResult {
	f, err := os.Open(l.path)
	if err != nil {
		return VerifyResult{FirstBadIndex: 0, Reason: fmt.Sprintf("open %s: %v", l.path, err)}
	}
	defer f.Close()

	entries, badIndex, parseErr := readEntries(f)
	if parseErr != nil {
		return VerifyResult{
			FirstBadIndex: badIndex,
			Reason:        fmt.Sprintf("line %d unparsable: %v", badIndex+1, parseErr),
		}
	}
	return VerifyEntries(entries)
}

// Path returns the backing file path.
func (l *FileLedger) Path() string {
	return l.path
}

func readEntries(f *os.File) (entries []Entry, badIndex int, err error) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	idx := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			idx++
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, idx, err
		}
		entries = append(entries, e)
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, idx, err
	}
	return entries, -1, nil
}

// readHead returns the step hash and sequence of the last entry, or the
// genesis sentinel for an empty ledger.
func readHead(path string) (string, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	defer f.Close()

	entries, badIndex, parseErr := readEntries(f)
	if parseErr != nil {
		return "", 0, fmt.Errorf("ledger: %s line %d unparsable: %w", path, badIndex+1, parseErr)
	}
	if len(entries) == 0 {
		return GenesisHash, 0, nil
	}
	last := entries[len(entries)-1]
	return last.StepHash, last.Sequence, nil
}
