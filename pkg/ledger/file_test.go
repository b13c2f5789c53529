package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func tempLedger(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "ledger.jsonl")
}

func TestFileLedgerAppendAndReadAll(t *testing.T) {
	path := tempLedger(t)
	l, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := l.Append("event", map[string]interface{}{"n": i}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries, err := l.ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[0].PrevHash != GenesisHash {
		t.Errorf("first prev_hash = %q, want genesis", entries[0].PrevHash)
	}
	if entries[2].Sequence != 3 {
		t.Errorf("last sequence = %d, want 3", entries[2].Sequence)
	}

	res := l.VerifyChain()
	if !res.OK {
		t.Fatalf("verify failed: %s", res.Reason)
	}
}

func TestFileLedgerResumesAcrossOpens(t *testing.T) {
	path := tempLedger(t)

	l1, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	first, err := l1.Append("event", map[string]interface{}{"n": 1})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	// A second handle must chain onto the existing head, not restart.
	l2, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	second, err := l2.Append("event", map[string]interface{}{"n": 2})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second.PrevHash != first.StepHash {
		t.Errorf("prev_hash = %q, want %q", second.PrevHash, first.StepHash)
	}
	if second.Sequence != 2 {
		t.Errorf("sequence = %d, want 2", second.Sequence)
	}
}

func TestOpenFileRejectsTamperedLedger(t *testing.T) {
	path := tempLedger(t)
	l, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := l.Append("event", map[string]interface{}{"n": i}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	tampered := strings.Replace(string(data), `"n":1`, `"n":9`, 1)
	if tampered == string(data) {
		t.Fatal("tamper replacement did not apply")
	}
	if err := os.WriteFile(path, []byte(tampered), 0o644); err != nil {
		t.Fatalf("write tampered: %v", err)
	}

	if _, err := OpenFile(path); err == nil {
		t.Fatal("OpenFile accepted a tampered ledger")
	}

	res := FileAt(path).VerifyChain()
	if res.OK {
		t.Fatal("VerifyChain accepted a tampered ledger")
	}
	if res.FirstBadIndex != 1 {
		t.Errorf("first_bad_index = %d, want 1", res.FirstBadIndex)
	}
}

func TestVerifyChainReportsCorruptLine(t *testing.T) {
	path := tempLedger(t)
	l, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := l.Append("event", map[string]interface{}{"n": 0}); err != nil {
		t.Fatalf("append: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("this is not json\n"); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	_ = f.Close()

	res := FileAt(path).VerifyChain()
	if res.OK {
		t.Fatal("verify accepted a corrupt line")
	}
	if res.FirstBadIndex != 1 {
		t.Errorf("first_bad_index = %d, want 1", res.FirstBadIndex)
	}
}

func TestFileLedgerConcurrentAppends(t *testing.T) {
	path := tempLedger(t)
	l, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	const n = 20
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := l.Append("event", map[string]interface{}{"n": i})
			done <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent append: %v", err)
		}
	}

	entries, err := l.ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("len = %d, want %d", len(entries), n)
	}
	if res := l.VerifyChain(); !res.OK {
		t.Fatalf("verify failed after concurrent appends: %s", res.Reason)
	}
}
