package reference

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNextFormat(t *testing.T) {
	g := NewGenerator()
	ref := g.Next(PrefixTransfer)
	if !strings.HasPrefix(ref, "TRF_") {
		t.Fatalf("unexpected prefix %q", ref)
	}
	if len(ref) != len("TRF_")+26 {
		t.Fatalf("unexpected length %d for %q", len(ref), ref)
	}
	ts, ok := Time(ref)
	if !ok {
		t.Fatalf("reference %q did not parse", ref)
	}
	if time.Since(ts) > time.Minute {
		t.Fatalf("embedded time %v too old", ts)
	}
}

func TestNextIsMonotonicWithinMillisecond(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	g := NewGenerator()
	g.now = func() time.Time { return fixed }

	prev := g.Next(PrefixPayment)
	for i := 0; i < 1000; i++ {
		next := g.Next(PrefixPayment)
		if next <= prev {
			t.Fatalf("references not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestNextConcurrentUnique(t *testing.T) {
	g := NewGenerator()
	const workers, per = 16, 500

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*per)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, per)
			for i := 0; i < per; i++ {
				local = append(local, g.Next(PrefixTopUp))
			}
			mu.Lock()
			for _, ref := range local {
				seen[ref] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers*per {
		t.Fatalf("expected %d unique references, got %d", workers*per, len(seen))
	}
}

func TestTimeRejectsGarbage(t *testing.T) {
	if _, ok := Time("TRF_short"); ok {
		t.Fatal("expected parse failure")
	}
}
