package playback

import "math"

// stallTracker accumulates once-per-second position samples and decides
// when a live-edge correction is due. It guards against silent
// micro-stalls the player's own catch-up logic misses: catch-up adjusts
// the playback rate, which does nothing when the position is not moving
// at all.
type stallTracker struct {
	threshold float64 // minimum per-sample movement counted as progress
	required  int     // consecutive stalled samples before firing

	sample StallSample
	primed bool
}

func newStallTracker(threshold float64, required int) *stallTracker {
	return &stallTracker{threshold: threshold, required: required}
}

// observe records one position sample and reports whether a correction
// should fire. The first sample after a reset only establishes the
// baseline. After firing, the counter is 0 and the caller is expected to
// rebase at the post-seek position.
func (t *stallTracker) observe(position float64) bool {
	if !t.primed {
		t.primed = true
		t.sample = StallSample{LastPosition: position}
		return false
	}

	if math.Abs(position-t.sample.LastPosition) < t.threshold {
		t.sample.ConsecutiveStalledSamples++
	} else {
		t.sample.ConsecutiveStalledSamples = 0
	}
	t.sample.LastPosition = position

	if t.sample.ConsecutiveStalledSamples >= t.required {
		t.sample.ConsecutiveStalledSamples = 0
		return true
	}
	return false
}

// rebase points the tracker at the post-seek position so subsequent
// samples measure from there.
func (t *stallTracker) rebase(position float64) {
	t.primed = true
	t.sample = StallSample{LastPosition: position}
}

// reset discards all accrued state. Used whenever the handle or sink is
// absent: no stall accrual while detached.
func (t *stallTracker) reset() {
	t.primed = false
	t.sample = StallSample{}
}

// stalled returns the current consecutive stalled-sample count.
func (t *stallTracker) stalled() int {
	return t.sample.ConsecutiveStalledSamples
}
