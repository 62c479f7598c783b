package scheduler

import (
	"testing"

	"github.com/alpinemaps/tilescheduler/internal/tileid"
)

func TestSlotLimiterAdmitsUnderLimit(t *testing.T) {
	var forwarded []tileid.ID
	s := NewSlotLimiter(func(id tileid.ID) { forwarded = append(forwarded, id) })
	s.Limit = 2

	s.RequestQuads([]tileid.ID{tileid.New(1, 0, 0), tileid.New(1, 1, 0)})

	if len(forwarded) != 2 {
		t.Fatalf("expected both ids forwarded, got %d", len(forwarded))
	}
	if s.InFlightLen() != 2 {
		t.Fatalf("expected 2 in flight, got %d", s.InFlightLen())
	}
	if s.QueueLen() != 0 {
		t.Fatalf("expected empty queue, got %d", s.QueueLen())
	}
}

func TestSlotLimiterQueuesOverflowAndDeduplicates(t *testing.T) {
	var forwarded []tileid.ID
	s := NewSlotLimiter(func(id tileid.ID) { forwarded = append(forwarded, id) })
	s.Limit = 1

	a := tileid.New(1, 0, 0)
	b := tileid.New(1, 1, 0)
	s.RequestQuads([]tileid.ID{a, b})

	if len(forwarded) != 1 || forwarded[0] != a {
		t.Fatalf("expected only a forwarded, got %v", forwarded)
	}
	if s.QueueLen() != 1 {
		t.Fatalf("expected b queued, got queue len %d", s.QueueLen())
	}

	// Re-requesting a (already in flight) and b (already queued) must not
	// duplicate admission or queue entries.
	s.RequestQuads([]tileid.ID{a, b})
	if s.QueueLen() != 1 {
		t.Fatalf("expected queue to still hold exactly one entry, got %d", s.QueueLen())
	}
}

func TestSlotLimiterRequestQuadsReplacesQueue(t *testing.T) {
	s := NewSlotLimiter(nil)
	s.Limit = 1

	a := tileid.New(1, 0, 0)
	b := tileid.New(1, 1, 0)
	c := tileid.New(1, 2, 0)

	s.RequestQuads([]tileid.ID{a, b}) // a in flight, b queued
	s.RequestQuads([]tileid.ID{a, c}) // stale desire for b dropped, c queued instead

	if s.QueueLen() != 1 {
		t.Fatalf("expected exactly one queued id, got %d", s.QueueLen())
	}
}

func TestSlotLimiterDeliverQuadAdmitsNextQueued(t *testing.T) {
	var forwarded []tileid.ID
	s := NewSlotLimiter(func(id tileid.ID) { forwarded = append(forwarded, id) })
	s.Limit = 1

	a := tileid.New(1, 0, 0)
	b := tileid.New(1, 1, 0)
	s.RequestQuads([]tileid.ID{a, b})

	delivered := false
	s.DeliverQuad(a, func() { delivered = true })

	if !delivered {
		t.Fatal("expected onDelivered callback to run")
	}
	if s.InFlightLen() != 1 {
		t.Fatalf("expected b now in flight, got %d", s.InFlightLen())
	}
	if len(forwarded) != 2 || forwarded[1] != b {
		t.Fatalf("expected b forwarded after a's slot freed, got %v", forwarded)
	}
}
