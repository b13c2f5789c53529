// Package stabilize tracks consecutive sandbox pass/fail outcomes per
// candidate change. A candidate is stable once it has accumulated the
// required number of consecutive passes; any fail resets the count.
//
// Updates must be applied in sandbox-run chronological order: consecutive
// counting is order-sensitive.
package stabilize

import (
	"fmt"
	"sync"
)

// DefaultWindowSize is the number of consecutive passes required before a
// candidate is considered stable.
const DefaultWindowSize = 3

// Window is the per-candidate stabilization state.
type Window struct {
	CandidateID     string   `json:"candidate_id"`
	Size            int      `json:"size"`
	ConsecutivePass int      `json:"consecutive_pass"`
	ConsecutiveFail int      `json:"consecutive_fail"`
	RunIDs          []string `json:"run_ids"`
}

// Stable reports whether the window has reached its required pass streak.
func (w Window) Stable() bool {
	return w.ConsecutivePass >= w.Size
}

// Tracker folds sandbox outcomes into per-candidate windows.
type Tracker struct {
	mu         sync.Mutex
	windowSize int
	windows    map[string]*Window
}

// NewTracker creates a tracker. windowSize <= 0 selects the default.
func NewTracker(windowSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Tracker{
		windowSize: windowSize,
		windows:    make(map[string]*Window),
	}
}

// RecordRun folds one sandbox outcome into the candidate's window and
// returns the updated state. A pass increments consecutive-pass; a fail
// resets consecutive-pass to zero and increments consecutive-fail.
func (t *Tracker) RecordRun(candidateID, runID string, pass bool) (Window, error) {
	if candidateID == "" {
		return Window{}, fmt.Errorf("stabilize: candidate id is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.windows[candidateID]
	if !ok {
		w = &Window{CandidateID: candidateID, Size: t.windowSize}
		t.windows[candidateID] = w
	}

	if pass {
		w.ConsecutivePass++
	} else {
		w.ConsecutivePass = 0
		w.ConsecutiveFail++
	}
	w.RunIDs = append(w.RunIDs, runID)
	return *w, nil
}

// IsStable reports whether the candidate's consecutive-pass count has
// reached the window size. An untracked candidate is never stable.
func (t *Tracker) IsStable(candidateID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.windows[candidateID]
	return ok && w.Stable()
}

// State returns a copy of the candidate's window. The second return is
// false when no runs have been recorded for the candidate.
func (t *Tracker) State(candidateID string) (Window, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.windows[candidateID]
	if !ok {
		return Window{}, false
	}
	out := *w
	out.RunIDs = append([]string(nil), w.RunIDs...)
	return out, true
}
