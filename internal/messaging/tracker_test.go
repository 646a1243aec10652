package messaging

import (
	"sync"
	"testing"

	"github.com/Agafia/bot-fire-water-sources/internal/models"
)

func TestMessageTrackerTrackAndDrain(t *testing.T) {
	tr := NewMessageTracker()

	tr.Track(1, models.MessageRef{ChatID: 1, MessageID: 10})
	tr.Track(1, models.MessageRef{ChatID: 1, MessageID: 11})
	tr.Track(2, models.MessageRef{ChatID: 2, MessageID: 20})

	got := tr.Drain(1)
	if len(got) != 2 {
		t.Fatalf("Drain(1) = %v, want 2 refs", got)
	}
	if got[0].MessageID != 10 || got[1].MessageID != 11 {
		t.Errorf("Drain(1) out of order: %v", got)
	}

	// Draining forgets; other conversations are untouched.
	if again := tr.Drain(1); len(again) != 0 {
		t.Errorf("second Drain(1) = %v, want empty", again)
	}
	if other := tr.Drain(2); len(other) != 1 {
		t.Errorf("Drain(2) = %v, want 1 ref", other)
	}
}

func TestMessageTrackerIgnoresZeroRefs(t *testing.T) {
	tr := NewMessageTracker()
	tr.Track(1, models.MessageRef{})
	if got := tr.Drain(1); len(got) != 0 {
		t.Errorf("zero ref was tracked: %v", got)
	}
}

func TestMessageTrackerConcurrent(t *testing.T) {
	tr := NewMessageTracker()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for m := 1; m <= 10; m++ {
				tr.Track(id, models.MessageRef{ChatID: id, MessageID: m})
			}
		}(int64(i))
	}
	wg.Wait()

	for id := int64(0); id < 20; id++ {
		if got := tr.Drain(id); len(got) != 10 {
			t.Errorf("Drain(%d) = %d refs, want 10", id, len(got))
		}
	}
}
