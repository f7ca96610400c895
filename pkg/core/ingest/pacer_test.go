package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDelayPacerWaitsAfter(t *testing.T) {
	p := NewDelayPacer(map[CallClass]time.Duration{ClassFeed: 30 * time.Millisecond})

	start := time.Now()
	if err := p.After(context.Background(), ClassFeed); err != nil {
		t.Fatalf("After: %v", err)
	}
	if d := time.Since(start); d < 30*time.Millisecond {
		t.Errorf("waited %v, want >= 30ms", d)
	}

	start = time.Now()
	p.After(context.Background(), ClassDocument)
	if d := time.Since(start); d > 20*time.Millisecond {
		t.Errorf("class without delay waited %v", d)
	}
}

func TestDelayPacerHonoursCancellation(t *testing.T) {
	p := NewDelayPacer(map[CallClass]time.Duration{ClassIndexPage: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.After(ctx, ClassIndexPage)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLimiterPacerSpacesConcurrentCallers(t *testing.T) {
	const interval = 20 * time.Millisecond
	p := NewLimiterPacer(map[CallClass]time.Duration{ClassDocument: interval})

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Before(context.Background(), ClassDocument); err != nil {
				t.Errorf("Before: %v", err)
			}
		}()
	}
	wg.Wait()

	// burst of one, then three more intervals
	if d := time.Since(start); d < 3*interval-5*time.Millisecond {
		t.Errorf("four callers finished in %v, want >= %v", d, 3*interval)
	}
}

func TestLimiterPacerZeroDelayIsUnlimited(t *testing.T) {
	p := NewLimiterPacer(nil)
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := p.Before(context.Background(), ClassFeed); err != nil {
			t.Fatalf("Before: %v", err)
		}
	}
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Errorf("unlimited pacer took %v", d)
	}
}
