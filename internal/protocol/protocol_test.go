package protocol

import (
	"testing"
	"time"
)

func TestFetchPhaseDuration(t *testing.T) {
	p := &Protocol{ID: "p", Phases: []Phase{{Duration: 500 * time.Millisecond}, {Duration: time.Second}}}
	if p.PhaseCount() != 2 {
		t.Fatalf("PhaseCount() = %d, want 2", p.PhaseCount())
	}
	d, err := p.FetchPhaseDuration(1)
	if err != nil || d != time.Second {
		t.Fatalf("FetchPhaseDuration(1) = %v, %v; want 1s, nil", d, err)
	}
	if _, err := p.FetchPhaseDuration(2); err == nil {
		t.Fatalf("expected error for out-of-range phase index")
	}
}
