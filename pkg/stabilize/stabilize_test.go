package stabilize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailResetsPassStreak(t *testing.T) {
	tr := NewTracker(3)
	outcomes := []bool{true, true, false, true, true, true}

	var stableAt []int
	for i, pass := range outcomes {
		w, err := tr.RecordRun("cand-1", "run", pass)
		require.NoError(t, err)
		if w.Stable() {
			stableAt = append(stableAt, i)
		}
	}

	// pass, pass, fail, pass, pass, pass with window 3: only the sixth run
	// completes a streak.
	assert.Equal(t, []int{5}, stableAt)
	assert.True(t, tr.IsStable("cand-1"))
}

func TestIsStableRequiresFullWindow(t *testing.T) {
	tr := NewTracker(3)
	for i := 0; i < 2; i++ {
		_, err := tr.RecordRun("cand-1", "run", true)
		require.NoError(t, err)
	}
	assert.False(t, tr.IsStable("cand-1"))

	_, err := tr.RecordRun("cand-1", "run", true)
	require.NoError(t, err)
	assert.True(t, tr.IsStable("cand-1"))
}

func TestUntrackedCandidateNeverStable(t *testing.T) {
	tr := NewTracker(3)
	assert.False(t, tr.IsStable("ghost"))
	_, ok := tr.State("ghost")
	assert.False(t, ok)
}

func TestWindowStateCopies(t *testing.T) {
	tr := NewTracker(2)
	_, err := tr.RecordRun("cand-1", "run-a", true)
	require.NoError(t, err)

	w, ok := tr.State("cand-1")
	require.True(t, ok)
	assert.Equal(t, 1, w.ConsecutivePass)
	assert.Equal(t, []string{"run-a"}, w.RunIDs)

	// Mutating the returned copy must not leak into the tracker.
	w.RunIDs[0] = "mutated"
	again, _ := tr.State("cand-1")
	assert.Equal(t, "run-a", again.RunIDs[0])
}

func TestCandidatesTrackedIndependently(t *testing.T) {
	tr := NewTracker(2)
	for i := 0; i < 2; i++ {
		_, err := tr.RecordRun("cand-a", "run", true)
		require.NoError(t, err)
	}
	_, err := tr.RecordRun("cand-b", "run", false)
	require.NoError(t, err)

	assert.True(t, tr.IsStable("cand-a"))
	assert.False(t, tr.IsStable("cand-b"))
}

func TestRecordRunRejectsEmptyCandidate(t *testing.T) {
	tr := NewTracker(3)
	_, err := tr.RecordRun("", "run", true)
	assert.Error(t, err)
}

func TestZeroWindowSizeDefaults(t *testing.T) {
	tr := NewTracker(0)
	for i := 0; i < DefaultWindowSize; i++ {
		_, err := tr.RecordRun("cand-1", "run", true)
		require.NoError(t, err)
	}
	assert.True(t, tr.IsStable("cand-1"))
}
