package scheduler

import (
	"sync"
	"time"

	"github.com/alpinemaps/tilescheduler/internal/tileid"
)

// DefaultRateLimit and DefaultRatePeriod are the spec.md §4.5 defaults:
// at most 100 requests admitted per rolling second.
const (
	DefaultRateLimit  = 100
	DefaultRatePeriod = time.Second
)

// RateLimiter enforces at most Rate admissions per Period using a sliding
// window of send timestamps, queuing whatever the window won't yet admit
// and draining the queue as the window slides (spec.md §4.5). OnEmit is
// called once per admitted ID, synchronously, on whichever goroutine
// triggered the admission (Request or the internal timer callback).
type RateLimiter struct {
	Rate   int
	Period time.Duration
	OnEmit func(tileid.ID)

	mu    sync.Mutex
	sent  []time.Time
	queue []tileid.ID
	timer *time.Timer
	now   func() time.Time // overridable for tests
}

// NewRateLimiter builds a RateLimiter with the spec's defaults.
func NewRateLimiter(onEmit func(tileid.ID)) *RateLimiter {
	return &RateLimiter{
		Rate:   DefaultRateLimit,
		Period: DefaultRatePeriod,
		OnEmit: onEmit,
		now:    time.Now,
	}
}

func (r *RateLimiter) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// pruneLocked drops send timestamps that are at least Period old relative to
// now. Must be called with mu held.
func (r *RateLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-r.Period)
	i := 0
	for i < len(r.sent) && !r.sent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		r.sent = r.sent[i:]
	}
}

// Request admits id immediately if the current window has room, otherwise
// queues it and arms a timer to retry once the window slides.
func (r *RateLimiter) Request(id tileid.ID) {
	r.mu.Lock()
	now := r.clock()
	r.pruneLocked(now)

	if len(r.sent) < r.Rate {
		r.sent = append(r.sent, now)
		r.mu.Unlock()
		if r.OnEmit != nil {
			r.OnEmit(id)
		}
		return
	}

	r.queue = append(r.queue, id)
	r.armTimerLocked(now)
	r.mu.Unlock()
}

// armTimerLocked schedules processQueue to run once the oldest in-window
// timestamp falls out of the window. Must be called with mu held.
func (r *RateLimiter) armTimerLocked(now time.Time) {
	if r.timer != nil || len(r.sent) == 0 {
		return
	}
	delay := r.sent[0].Add(r.Period).Sub(now)
	if delay < 0 {
		delay = 0
	}
	r.timer = time.AfterFunc(delay, r.processQueue)
}

// processQueue drains as many queued IDs as the current window allows, then
// re-arms itself if the queue is still non-empty.
func (r *RateLimiter) processQueue() {
	r.mu.Lock()
	r.timer = nil
	now := r.clock()
	r.pruneLocked(now)

	room := r.Rate - len(r.sent)
	if room > len(r.queue) {
		room = len(r.queue)
	}

	var toEmit []tileid.ID
	if room > 0 {
		toEmit = append(toEmit, r.queue[:room]...)
		r.queue = r.queue[room:]
		for range toEmit {
			r.sent = append(r.sent, now)
		}
	}
	if len(r.queue) > 0 {
		r.armTimerLocked(now)
	}
	r.mu.Unlock()

	if r.OnEmit != nil {
		for _, id := range toEmit {
			r.OnEmit(id)
		}
	}
}

// QueueLen reports how many requests are currently waiting for a window
// slot; used by tests.
func (r *RateLimiter) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}
