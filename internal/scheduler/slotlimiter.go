package scheduler

import (
	"sync"

	"github.com/alpinemaps/tilescheduler/internal/tileid"
)

// DefaultSlotLimit is the spec.md §4.6 default concurrency cap.
const DefaultSlotLimit = 16

// SlotLimiter caps in-flight quad requests, deduplicates already-in-flight
// IDs, and queues the overflow. Unlike RateLimiter's queue, SlotLimiter's
// overflow queue is replaced wholesale on every RequestQuads call: stale
// desire from a previous camera position is dropped, which is the only
// cancellation mechanism the pipeline needs (spec.md §4.6, §5).
type SlotLimiter struct {
	Limit    int
	OnForward func(tileid.ID)

	mu       sync.Mutex
	inFlight map[tileid.ID]struct{}
	queue    []tileid.ID
}

// NewSlotLimiter builds a SlotLimiter with the spec's default concurrency
// cap.
func NewSlotLimiter(onForward func(tileid.ID)) *SlotLimiter {
	return &SlotLimiter{
		Limit:     DefaultSlotLimit,
		OnForward: onForward,
		inFlight:  make(map[tileid.ID]struct{}),
	}
}

// RequestQuads replaces the overflow queue with ids (minus whatever is
// already in flight) and admits as many as the concurrency limit allows, in
// order.
func (s *SlotLimiter) RequestQuads(ids []tileid.ID) {
	s.mu.Lock()
	s.queue = s.queue[:0]

	var toForward []tileid.ID
	for _, id := range ids {
		if _, ok := s.inFlight[id]; ok {
			continue
		}
		if len(s.inFlight) < s.Limit {
			s.inFlight[id] = struct{}{}
			toForward = append(toForward, id)
		} else {
			s.queue = append(s.queue, id)
		}
	}
	s.mu.Unlock()

	if s.OnForward != nil {
		for _, id := range toForward {
			s.OnForward(id)
		}
	}
}

// DeliverQuad releases the slot held by id, then admits the next queued ID
// (if any). onDelivered is called first so the Scheduler can act on the
// completed quad before a new request potentially starts.
func (s *SlotLimiter) DeliverQuad(id tileid.ID, onDelivered func()) {
	s.mu.Lock()
	delete(s.inFlight, id)

	var admitted tileid.ID
	var hasAdmitted bool
	if len(s.queue) > 0 {
		admitted = s.queue[0]
		s.queue = s.queue[1:]
		s.inFlight[admitted] = struct{}{}
		hasAdmitted = true
	}
	s.mu.Unlock()

	if onDelivered != nil {
		onDelivered()
	}
	if hasAdmitted && s.OnForward != nil {
		s.OnForward(admitted)
	}
}

// InFlightLen reports the current in-flight count; used by tests.
func (s *SlotLimiter) InFlightLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// QueueLen reports the current overflow queue length.
func (s *SlotLimiter) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
