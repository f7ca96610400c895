package ingest

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces requests to the archive. Before runs ahead of every request,
// After only after a successful one.
type Pacer interface {
	Before(ctx context.Context, class CallClass) error
	After(ctx context.Context, class CallClass) error
}

// DelayPacer blocks the calling goroutine for the class delay after each
// successful request. It only bounds the request rate for a single,
// sequential caller.
type DelayPacer struct {
	delays map[CallClass]time.Duration
}

// NewDelayPacer copies the delay table.
func NewDelayPacer(delays map[CallClass]time.Duration) *DelayPacer {
	p := &DelayPacer{delays: make(map[CallClass]time.Duration, len(delays))}
	for k, v := range delays {
		p.delays[k] = v
	}
	return p
}

func (p *DelayPacer) Before(ctx context.Context, class CallClass) error {
	return ctx.Err()
}

func (p *DelayPacer) After(ctx context.Context, class CallClass) error {
	return sleep(ctx, p.delays[class])
}

// LimiterPacer keeps one token bucket per call class, shared by every caller
// of the same Fetcher.
type LimiterPacer struct {
	mu       sync.Mutex
	delays   map[CallClass]time.Duration
	limiters map[CallClass]*rate.Limiter
}

// NewLimiterPacer allows one request per delay interval for each class.
func NewLimiterPacer(delays map[CallClass]time.Duration) *LimiterPacer {
	p := &LimiterPacer{
		delays:   make(map[CallClass]time.Duration, len(delays)),
		limiters: make(map[CallClass]*rate.Limiter),
	}
	for k, v := range delays {
		p.delays[k] = v
	}
	return p
}

func (p *LimiterPacer) limiter(class CallClass) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.limiters[class]; ok {
		return l
	}
	limit := rate.Inf
	if d := p.delays[class]; d > 0 {
		limit = rate.Every(d)
	}
	l := rate.NewLimiter(limit, 1)
	p.limiters[class] = l
	return l
}

func (p *LimiterPacer) Before(ctx context.Context, class CallClass) error {
	return p.limiter(class).Wait(ctx)
}

func (p *LimiterPacer) After(ctx context.Context, class CallClass) error {
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
