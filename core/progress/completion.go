package progress

const completedRate = 100

// CompletionTransition classifies one progress-rate change.
type CompletionTransition struct {
	BecameCompleted  bool
	BecameIncomplete bool
}

// ClassifyCompletion reports the completion-state transition caused by moving
// from prevRate (nil when no record existed) to newRate. It is a pure function.
func ClassifyCompletion(prevRate *float64, newRate float64) CompletionTransition {
	var t CompletionTransition
	switch {
	case prevRate == nil || *prevRate < completedRate:
		t.BecameCompleted = newRate >= completedRate
	case newRate < completedRate: // prevRate >= 100
		t.BecameIncomplete = true
	}
	return t
}
