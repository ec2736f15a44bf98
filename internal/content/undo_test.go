package content

import (
	"testing"
	"time"
)

func TestPopRecentGroupChainsBackwardThroughTime(t *testing.T) {
	base := time.Now()
	vec := []Undo{
		{When: base},
		{When: base.Add(100 * time.Millisecond)},
		{When: base.Add(180 * time.Millisecond)}, // within 300ms of previous, chains
		{When: base.Add(600 * time.Millisecond)}, // far from the chain: stays behind
	}

	group := PopRecentGroup(&vec, CoalesceThreshold)
	if len(group) != 1 {
		t.Fatalf("expected only the last (isolated) entry popped, got %d", len(group))
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3 entries remaining, got %d", len(vec))
	}

	group2 := PopRecentGroup(&vec, CoalesceThreshold)
	if len(group2) != 3 {
		t.Fatalf("expected the chained group of 3 to pop together, got %d", len(group2))
	}
	if len(vec) != 0 {
		t.Fatalf("expected vec empty, got %d", len(vec))
	}
}
