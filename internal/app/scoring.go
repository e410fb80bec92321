package app

// Scorer turns an answer outcome into points.
// Implementations must be monotonic: a faster correct answer never earns less
// than a slower one, and an incorrect answer always earns zero.
type Scorer interface {
	Score(correct bool, latencyMillis int64, timeSeconds int) int
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(correct bool, latencyMillis int64, timeSeconds int) int

func (f ScorerFunc) Score(correct bool, latencyMillis int64, timeSeconds int) int {
	return f(correct, latencyMillis, timeSeconds)
}

// LinearDecayScorer awards Max points for an instant correct answer, decaying
// linearly to Floor at the end of the answer window.
type LinearDecayScorer struct {
	Max   int
	Floor int
}

// DefaultScorer is the 1000 → 500 speed decay.
func DefaultScorer() LinearDecayScorer {
	return LinearDecayScorer{Max: 1000, Floor: 500}
}

func (s LinearDecayScorer) Score(correct bool, latencyMillis int64, timeSeconds int) int {
	if !correct {
		return 0
	}
	floor, max := s.Floor, s.Max
	if floor > max {
		floor = max
	}
	if floor < 0 {
		floor = 0
	}
	if timeSeconds <= 0 {
		return max
	}
	window := int64(timeSeconds) * 1000
	elapsed := latencyMillis
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > window {
		elapsed = window
	}
	// Integer division floors the decayed share.
	return floor + int(int64(max-floor)*(window-elapsed)/window)
}
