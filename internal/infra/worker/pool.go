package worker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Task pulls and processes at most one job, returning true when it did work.
// Returning false lets the pool idle for a poll interval before retrying.
type Task func(ctx context.Context) bool

// Pool runs a fixed number of workers over a Task. Throughput is additionally
// capped by a token bucket, independent of concurrency, so a wide pool cannot
// overrun the downstream prediction RPC.
type Pool struct {
	n       int
	limiter *rate.Limiter
	poll    time.Duration
	wg      sync.WaitGroup
}

func NewPool(workers int, jobsPerSecond float64, burst int, poll time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if jobsPerSecond > 0 {
		if burst <= 0 {
			burst = int(jobsPerSecond)
		}
		limiter = rate.NewLimiter(rate.Limit(jobsPerSecond), burst)
	}
	return &Pool{n: workers, limiter: limiter, poll: poll}
}

// Start launches the workers. They stop when ctx is cancelled, finishing any
// in-flight job first.
func (p *Pool) Start(ctx context.Context, task Task) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				if err := p.limiter.Wait(ctx); err != nil {
					return
				}
				if task(ctx) {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.poll):
				}
			}
		}()
	}
}

// Drain blocks until all workers exit or the timeout elapses. Returns false
// when the hard timeout fired with jobs still in flight.
func (p *Pool) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
