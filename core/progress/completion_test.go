package progress

import "testing"

func fPtr(f float64) *float64 { return &f }

func TestClassifyCompletion(t *testing.T) {
	tests := []struct {
		name     string
		prevRate *float64
		newRate  float64
		want     CompletionTransition
	}{
		{name: "first record below threshold", prevRate: nil, newRate: 40},
		{name: "first record at threshold", prevRate: nil, newRate: 100, want: CompletionTransition{BecameCompleted: true}},
		{name: "crossing up", prevRate: fPtr(99.99), newRate: 100, want: CompletionTransition{BecameCompleted: true}},
		{name: "crossing down", prevRate: fPtr(100), newRate: 99.99, want: CompletionTransition{BecameIncomplete: true}},
		{name: "staying below", prevRate: fPtr(40), newRate: 60},
		{name: "staying at 100", prevRate: fPtr(100), newRate: 100},
		{name: "down to zero", prevRate: fPtr(100), newRate: 0, want: CompletionTransition{BecameIncomplete: true}},
		{name: "zero to zero", prevRate: fPtr(0), newRate: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyCompletion(tt.prevRate, tt.newRate); got != tt.want {
				t.Errorf("ClassifyCompletion() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
