// Package ledger implements the append-only, tamper-evident hash chain at
// the root of the trust core.
//
// Every entry commits to its predecessor via prev_hash, so the chain defines
// a total order over entries. Entries are never edited or deleted. The same
// chain abstraction backs the run ledger, the sandbox ledger, and the
// promotion ledger rather than each subsystem reimplementing the pattern.
package ledger

import (
	"fmt"
	"sync"

	"github.com/adjudex/adjudex/pkg/canonicalize"
)

// GenesisHash is the prev_hash sentinel of the first entry in a chain.
const GenesisHash = "genesis"

// Entry is one immutable, hash-chained record.
//
// StepHash is the SHA-256 digest of the canonical (key-sorted,
// whitespace-free) JSON serialization of the entry with step_hash itself
// excluded. Non-primitive payload values are stringified to their canonical
// JSON form before hashing so the digest never depends on map iteration
// order.
type Entry struct {
	Sequence  uint64                 `json:"sequence"`
	EntryType string                 `json:"entry_type"`
	Payload   map[string]interface{} `json:"payload"`
	PrevHash  string                 `json:"prev_hash"`
	StepHash  string                 `json:"step_hash"`
}

// hashInput is the entry shape that gets hashed: everything except step_hash.
type hashInput struct {
	Sequence  uint64                 `json:"sequence"`
	EntryType string                 `json:"entry_type"`
	Payload   map[string]interface{} `json:"payload"`
	PrevHash  string                 `json:"prev_hash"`
}

// ComputeStepHash returns the step hash for an entry, ignoring any StepHash
// already set on it.
func ComputeStepHash(e Entry) (string, error) {
	in := hashInput{
		Sequence:  e.Sequence,
		EntryType: e.EntryType,
		Payload:   normalizePayload(e.Payload),
		PrevHash:  e.PrevHash,
	}
	hash, err := canonicalize.CanonicalHash(in)
	if err != nil {
		return "", fmt.Errorf("ledger: hash entry %d: %w", e.Sequence, err)
	}
	return "sha256:" + hash, nil
}

// normalizePayload stringifies non-primitive values so hashing is
// deterministic regardless of how the payload was constructed.
func normalizePayload(payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch v.(type) {
		case nil, bool, string,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			out[k] = v
		default:
			s, err := canonicalize.JCSString(v)
			if err != nil {
				s = fmt.Sprintf("%v", v)
			}
			out[k] = s
		}
	}
	return out
}

// VerifyResult reports the outcome of a chain verification walk.
type VerifyResult struct {
	OK bool `json:"ok"`
	// FirstBadIndex is the zero-based index of the first offending entry,
	// or -1 when the chain is intact.
	FirstBadIndex int    `json:"first_bad_index"`
	Reason        string `json:"reason,omitempty"`
}

// VerifyEntries re-walks entries, recomputing each step hash and checking it
// against the stored value and against the next entry's prev_hash. The first
// offending index is reported; everything from that point is untrusted.
func VerifyEntries(entries []Entry) VerifyResult {
	prevHash := GenesisHash
	for i, e := range entries {
		if e.PrevHash != prevHash {
			return VerifyResult{
				FirstBadIndex: i,
				Reason:        fmt.Sprintf("chain broken at index %d: expected prev_hash %s, got %s", i, prevHash, e.PrevHash),
			}
		}
		computed, err := ComputeStepHash(e)
		if err != nil {
			return VerifyResult{
				FirstBadIndex: i,
				Reason:        fmt.Sprintf("entry %d not hashable: %v", i, err),
			}
		}
		if computed != e.StepHash {
			return VerifyResult{
				FirstBadIndex: i,
				Reason:        fmt.Sprintf("step_hash mismatch at index %d", i),
			}
		}
		prevHash = e.StepHash
	}
	return VerifyResult{OK: true, FirstBadIndex: -1}
}

// Chain is an in-memory append-only hash chain. Appends are serialized; the
// chain assumes a single writer.
type Chain struct {
	mu      sync.Mutex
	entries []Entry
	head    string
}

// NewChain creates an empty chain with a genesis head.
func NewChain() *Chain {
	return &Chain{head: GenesisHash}
}

// Append adds a payload to the chain and returns the appended entry.
func (c *Chain) Append(entryType string, payload map[string]interface{}) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry{
		Sequence:  uint64(len(c.entries)) + 1,
		EntryType: entryType,
		Payload:   normalizePayload(payload),
		PrevHash:  c.head,
	}
	stepHash, err := ComputeStepHash(entry)
	if err != nil {
		return nil, err
	}
	entry.StepHash = stepHash

	c.entries = append(c.entries, entry)
	c.head = stepHash
	return &entry, nil
}

// ReadAll returns a copy of all entries in append order.
func (c *Chain) ReadAll() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Head returns the current head hash.
func (c *Chain) Head() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

// Length returns the number of entries.
func (c *Chain) Length() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// VerifyChain re-walks the whole chain.
func (c *Chain) VerifyChain() VerifyResult {
	return VerifyEntries(c.ReadAll())
}
