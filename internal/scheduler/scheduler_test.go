package scheduler

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alpinemaps/tilescheduler/internal/camera"
	"github.com/alpinemaps/tilescheduler/internal/geom"
	"github.com/alpinemaps/tilescheduler/internal/tileid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T, cfg Config, desired []tileid.ID) (*Scheduler, *[][]tileid.ID) {
	t.Helper()
	pyramid := geom.NewHeightPyramid(0, 4000)
	aabb := geom.NewAabbDecorator(pyramid)
	s := New(cfg, aabb, testLogger())
	s.DesiredSetFunc = func(camera.Camera) []tileid.ID { return desired }

	var requests [][]tileid.ID
	s.OnQuadsRequested = func(ids []tileid.ID) { requests = append(requests, append([]tileid.ID{}, ids...)) }
	s.SetEnabled(true)
	s.SetNetworkReachability(true)
	return s, &requests
}

func mkQuad(id tileid.ID, status tileid.Status, timestampMs int64) TileQuad {
	child := id.Children()[0]
	return TileQuad{
		ID:     id,
		NTiles: 1,
		Tiles: [4]LayeredTile{
			{ID: child, Info: tileid.NetworkInfo{Status: status, TimestampMs: timestampMs}},
		},
	}
}

// Seed scenario: cache dedup (spec.md §8 scenario 3).
func TestSchedulerCacheDedup(t *testing.T) {
	a, b, c, d, e := tileid.New(0, 0, 0), tileid.New(1, 1, 1), tileid.New(2, 2, 2), tileid.New(3, 4, 5), tileid.New(4, 8, 10)
	desired := []tileid.ID{a, b, c, d, e}

	cfg := DefaultConfig()
	cfg.UpdateTimeout = 2 * time.Millisecond
	s, requests := newTestScheduler(t, cfg, desired)

	now := time.Now().UnixMilli()
	s.ReceiveQuad(mkQuad(a, tileid.Good, now))
	s.ReceiveQuad(mkQuad(b, tileid.Good, now))
	s.ReceiveQuad(mkQuad(c, tileid.Good, now))

	s.UpdateCamera(camera.Camera{})
	require.Eventually(t, func() bool { return len(*requests) > 0 }, time.Second, time.Millisecond)

	last := (*requests)[len(*requests)-1]
	assert.NotContains(t, last, a)
	assert.NotContains(t, last, b)
	assert.NotContains(t, last, c)
	assert.Contains(t, last, d)
	assert.Contains(t, last, e)
}

// Seed scenario: NotFound is authoritative, NetworkError is retried
// (spec.md §8 scenario 4).
func TestSchedulerNotFoundAuthoritativeNetworkErrorRetried(t *testing.T) {
	a, b := tileid.New(0, 0, 0), tileid.New(1, 1, 1)
	desired := []tileid.ID{a, b}

	cfg := DefaultConfig()
	cfg.UpdateTimeout = 2 * time.Millisecond
	s, requests := newTestScheduler(t, cfg, desired)

	now := time.Now().UnixMilli()
	s.ReceiveQuad(mkQuad(a, tileid.NotFound, now))
	s.ReceiveQuad(mkQuad(b, tileid.NetworkError, now))

	s.UpdateCamera(camera.Camera{})
	require.Eventually(t, func() bool { return len(*requests) > 0 }, time.Second, time.Millisecond)

	last := (*requests)[len(*requests)-1]
	assert.Contains(t, last, b)
	assert.NotContains(t, last, a)
}

// Seed scenario: retirement (spec.md §8 scenario 5).
func TestSchedulerRetirement(t *testing.T) {
	a, b, c := tileid.New(0, 0, 0), tileid.New(1, 1, 1), tileid.New(2, 2, 2)
	desired := []tileid.ID{a, b, c}

	cfg := DefaultConfig()
	cfg.UpdateTimeout = 2 * time.Millisecond
	cfg.RetirementAge = 5 * time.Millisecond
	s, requests := newTestScheduler(t, cfg, desired)

	now := time.Now().UnixMilli()
	s.ReceiveQuad(mkQuad(a, tileid.Good, now))
	s.ReceiveQuad(mkQuad(b, tileid.Good, now))
	s.ReceiveQuad(mkQuad(c, tileid.Good, now))

	time.Sleep(10 * time.Millisecond)
	s.UpdateCamera(camera.Camera{})
	require.Eventually(t, func() bool { return len(*requests) > 0 }, time.Second, time.Millisecond)

	last := (*requests)[len(*requests)-1]
	assert.Contains(t, last, a)
	assert.Contains(t, last, b)
	assert.Contains(t, last, c)
}

// Seed scenario: debounced requests (spec.md §8 scenario 2) — three rapid
// updates collapse into one request, a later update produces a second.
func TestSchedulerDebouncesCameraUpdates(t *testing.T) {
	desired := []tileid.ID{tileid.New(0, 0, 0)}
	cfg := DefaultConfig()
	cfg.UpdateTimeout = 15 * time.Millisecond
	s, requests := newTestScheduler(t, cfg, desired)

	s.UpdateCamera(camera.Camera{})
	time.Sleep(1 * time.Millisecond)
	s.UpdateCamera(camera.Camera{})
	time.Sleep(1 * time.Millisecond)
	s.UpdateCamera(camera.Camera{})

	time.Sleep(30 * time.Millisecond)
	require.Len(t, *requests, 1)

	time.Sleep(7 * time.Millisecond)
	s.UpdateCamera(camera.Camera{})
	time.Sleep(30 * time.Millisecond)
	require.Len(t, *requests, 2)
}

// Seed scenario: GPU cap and focus (spec.md §8 scenario 6), simplified to a
// fixed desired set rather than real camera/frustum geometry.
func TestSchedulerGpuWorkingSetRespectsLimit(t *testing.T) {
	const n = 39
	ids := make([]tileid.ID, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, tileid.New(10, uint32(i), uint32(i)))
	}

	cfg := DefaultConfig()
	cfg.GpuQuadLimit = 17
	s, _ := newTestScheduler(t, cfg, ids)

	now := time.Now().UnixMilli()
	for _, id := range ids {
		s.PreloadRamCache([]TileQuad{mkQuad(id, tileid.Good, now)})
	}

	var added []GpuTileQuad
	var removed []tileid.ID
	s.OnGpuQuadsUpdated = func(a []GpuTileQuad, r []tileid.ID) { added, removed = a, r }

	s.UpdateCamera(camera.Camera{})
	require.Eventually(t, func() bool { return added != nil }, time.Second, time.Millisecond)

	assert.Len(t, added, 17)
	assert.Empty(t, removed)
	assert.LessOrEqual(t, s.GpuCacheLen(), cfg.GpuQuadLimit)
}

// Universal invariant: |ram_cache| <= ram_quad_limit after each purge. The
// purge timer is armed by the update cycle (spec.md §4.7 step 5), so one
// camera update arms it before the deliveries that follow.
func TestSchedulerPurgeEnforcesRamLimit(t *testing.T) {
	cfg := Config{RamQuadLimit: 5, PurgeTimeout: 5 * time.Millisecond, UpdateTimeout: time.Millisecond, GpuQuadLimit: 1}
	s, _ := newTestScheduler(t, cfg, nil)

	s.UpdateCamera(camera.Camera{})
	time.Sleep(2 * time.Millisecond)

	now := time.Now().UnixMilli()
	for i := 0; i < 10; i++ {
		s.ReceiveQuad(mkQuad(tileid.New(5, uint32(i), uint32(i)), tileid.Good, now))
	}

	require.Eventually(t, func() bool { return s.RamCacheLen() <= 5 }, time.Second, time.Millisecond)
}

// Universal invariant: reachability gating suppresses quads_requested, and
// restoring reachability drains the backlog via Prod.
func TestSchedulerReachabilityGating(t *testing.T) {
	desired := []tileid.ID{tileid.New(0, 0, 0)}
	cfg := DefaultConfig()
	cfg.UpdateTimeout = 2 * time.Millisecond
	s, requests := newTestScheduler(t, cfg, desired)

	s.SetNetworkReachability(false)
	s.UpdateCamera(camera.Camera{})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, *requests)

	s.SetNetworkReachability(true)
	require.Eventually(t, func() bool { return len(*requests) > 0 }, time.Second, time.Millisecond)
}

// Universal invariant: a camera update received while disabled is not lost.
// Enabling must itself trigger the pending update, the same way restoring
// reachability drains a backlog above — otherwise a camera already on file
// when SetEnabled(true) runs would wait for another UpdateCamera call before
// producing its first quads_requested.
func TestSchedulerEnablingTriggersPendingUpdate(t *testing.T) {
	desired := []tileid.ID{tileid.New(0, 0, 0)}
	pyramid := geom.NewHeightPyramid(0, 4000)
	aabb := geom.NewAabbDecorator(pyramid)

	cfg := DefaultConfig()
	cfg.UpdateTimeout = 2 * time.Millisecond
	s := New(cfg, aabb, testLogger())
	s.DesiredSetFunc = func(camera.Camera) []tileid.ID { return desired }

	var requests [][]tileid.ID
	s.OnQuadsRequested = func(ids []tileid.ID) { requests = append(requests, append([]tileid.ID{}, ids...)) }
	s.SetNetworkReachability(true)

	s.UpdateCamera(camera.Camera{})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, requests)

	s.SetEnabled(true)
	require.Eventually(t, func() bool { return len(requests) > 0 }, time.Second, time.Millisecond)
}
