package downloader

import (
	"testing"
	"time"
)

func TestFullJitterBackOffRespectsCap(t *testing.T) {
	b := newFullJitterBackOff(time.Second, 4*time.Second)

	for i := 0; i < 10; i++ {
		d := b.NextBackOff()
		if d < 0 || d > 4*time.Second {
			t.Fatalf("NextBackOff() round %d = %v, outside [0, cap]", i, d)
		}
	}
}

func TestFullJitterBackOffGrowsThenCaps(t *testing.T) {
	b := newFullJitterBackOff(time.Second, 8*time.Second)

	ceilings := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, want := range ceilings {
		d := b.NextBackOff()
		if d > want {
			t.Errorf("round %d: NextBackOff() = %v, want <= %v", i, d, want)
		}
	}
}
