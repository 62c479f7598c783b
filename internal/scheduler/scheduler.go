// Package scheduler implements the tile streaming pipeline: camera-driven
// quadtree refinement, the rate/slot-limited request pipeline, the RAM and
// GPU caches, and the retirement/network-reachability policy described in
// spec.md. Scheduler is the component that owns all of it; the other types
// in this package (RateLimiter, SlotLimiter, QuadAssembler, LayerAssembler,
// TileLoadService, RefineFunctor) are the small stages it wires together
// via NewPipeline.
package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alpinemaps/tilescheduler/internal/cache"
	"github.com/alpinemaps/tilescheduler/internal/camera"
	"github.com/alpinemaps/tilescheduler/internal/geom"
	"github.com/alpinemaps/tilescheduler/internal/tileid"
	"github.com/google/uuid"
)

// Defaults from spec.md §3/§6.
const (
	DefaultGpuQuadLimit  = 512
	DefaultRamQuadLimit  = 12000
	DefaultUpdateTimeout = 100 * time.Millisecond
	DefaultPurgeTimeout  = 1000 * time.Millisecond
	DefaultRetirementAge = 24 * time.Hour
)

// Config holds the Scheduler's tunables. The cache limits, timeouts and
// retirement age are mutable at runtime via the Set* methods (spec.md §4.7);
// ErrorThresholdPx and TileSizePx have no setter and are fixed at New.
type Config struct {
	GpuQuadLimit  int
	RamQuadLimit  int
	UpdateTimeout time.Duration
	PurgeTimeout  time.Duration
	RetirementAge time.Duration
	ErrorThresholdPx float64
	TileSizePx       float64
}

// DefaultConfig returns the spec's defaults.
func DefaultConfig() Config {
	return Config{
		GpuQuadLimit:     DefaultGpuQuadLimit,
		RamQuadLimit:     DefaultRamQuadLimit,
		UpdateTimeout:    DefaultUpdateTimeout,
		PurgeTimeout:     DefaultPurgeTimeout,
		RetirementAge:    DefaultRetirementAge,
		ErrorThresholdPx: DefaultScreenSpaceErrorPx,
		TileSizePx:       DefaultTileSize,
	}
}

// RootID is the ID the quadtree traversal starts from, under the Tms
// (south-origin row) scheme that the tile sources this scheduler was built
// for use. Children() propagates the scheme to every descendant.
var RootID = tileid.NewWithScheme(0, 0, 0, tileid.Tms)

// Scheduler is the pipeline's central, stateful component (spec.md §4.7).
// It exclusively owns the RAM cache, the GPU-cache mirror, and the update
// and purge timers; every other pipeline stage is stateless with respect to
// these caches and communicates with the Scheduler only through the
// callbacks wired by NewPipeline.
type Scheduler struct {
	cfg    Config
	aabb   *geom.AabbDecorator
	logger *slog.Logger
	runID  uuid.UUID

	defaultOrtho  []byte
	defaultHeight []byte

	ramCache     *cache.Cache[TileQuad]
	gpuCacheInfo *cache.Cache[GpuCacheInfo]

	mu            sync.Mutex
	currentCamera camera.Camera
	hasCamera     bool
	enabled       bool
	reachable     bool
	lastDesired   map[tileid.ID]struct{}

	updateTimer *time.Timer
	purgeTimer  *time.Timer

	disk DiskBackend

	// OnQuadsRequested, OnGpuQuadsUpdated, and OnQuadReceived are the
	// Scheduler's public outputs (spec.md §4.7 "Outputs"). NewPipeline
	// wires OnQuadsRequested to the SlotLimiter and leaves the other two
	// for the embedding application (GPU consumer, UI/stats).
	OnQuadsRequested  func([]tileid.ID)
	OnGpuQuadsUpdated func(added []GpuTileQuad, removed []tileid.ID)
	OnQuadReceived    func(tileid.ID)

	// DesiredSetFunc, when set, replaces the built-in
	// RefineFunctor+QuadtreeTraverse computation of the desired tile set
	// for a given camera. The default (nil) path is what spec.md §4.1/§4.7
	// describes; this hook exists for callers — including this package's
	// own tests — that want to drive the Scheduler's request/cache/GPU
	// logic from a fixed, known desired set without needing a real camera
	// frustum and height pyramid to reproduce exact SSE geometry.
	DesiredSetFunc func(camera.Camera) []tileid.ID
}

// New builds a Scheduler with cfg (use DefaultConfig() for spec defaults),
// an AabbDecorator for RefineFunctor and GPU unpacking, and a logger. The
// Scheduler starts disabled and unreachable; call SetEnabled and
// SetNetworkReachability to activate it.
func New(cfg Config, aabb *geom.AabbDecorator, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GpuQuadLimit <= 0 {
		cfg.GpuQuadLimit = DefaultGpuQuadLimit
	}
	if cfg.RamQuadLimit <= 0 {
		cfg.RamQuadLimit = DefaultRamQuadLimit
	}
	if cfg.UpdateTimeout <= 0 {
		cfg.UpdateTimeout = DefaultUpdateTimeout
	}
	if cfg.PurgeTimeout <= 0 {
		cfg.PurgeTimeout = DefaultPurgeTimeout
	}
	if cfg.ErrorThresholdPx <= 0 {
		cfg.ErrorThresholdPx = DefaultScreenSpaceErrorPx
	}
	if cfg.TileSizePx <= 0 {
		cfg.TileSizePx = DefaultTileSize
	}

	runID := uuid.New()
	return &Scheduler{
		cfg:           cfg,
		aabb:          aabb,
		logger:        logger.With(slog.String("run_id", runID.String())),
		runID:         runID,
		defaultOrtho:  buildDefaultOrtho(),
		defaultHeight: buildDefaultHeight(),
		ramCache:      cache.New[TileQuad](),
		gpuCacheInfo:  cache.New[GpuCacheInfo](),
		lastDesired:   make(map[tileid.ID]struct{}),
	}
}

// RunID returns the unique identifier assigned to this Scheduler instance,
// attached to every log line it emits.
func (s *Scheduler) RunID() uuid.UUID { return s.runID }

// SetEnabled gates the Scheduler's update cycle (spec.md §4.7). Enabling
// triggers a pending update immediately, the same way reachability being
// restored does (SetNetworkReachability below): a camera already on file
// while disabled must not wait for another UpdateCamera call to produce its
// first quads_requested.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	wasEnabled := s.enabled
	s.enabled = enabled
	hasCam := s.hasCamera
	s.mu.Unlock()
	s.logger.Info("enabled changed", slog.Bool("enabled", enabled))
	if enabled && !wasEnabled && hasCam {
		s.Prod()
	}
}

// SetNetworkReachability gates request emission (spec.md §5 reachability
// gating): while unreachable, quads_requested is not emitted; in-flight
// requests drain normally.
func (s *Scheduler) SetNetworkReachability(reachable bool) {
	s.mu.Lock()
	wasReachable := s.reachable
	s.reachable = reachable
	hasCam := s.hasCamera
	s.mu.Unlock()
	s.logger.Info("reachability changed", slog.Bool("reachable", reachable))
	if reachable && !wasReachable && hasCam {
		s.Prod()
	}
}

// SetGpuQuadLimit changes the GPU working-set cap at runtime.
func (s *Scheduler) SetGpuQuadLimit(n int) {
	s.mu.Lock()
	s.cfg.GpuQuadLimit = n
	s.mu.Unlock()
}

// SetRamQuadLimit changes the RAM cache cap at runtime.
func (s *Scheduler) SetRamQuadLimit(n int) {
	s.mu.Lock()
	s.cfg.RamQuadLimit = n
	s.mu.Unlock()
}

// SetUpdateTimeout changes the camera-update debounce interval.
func (s *Scheduler) SetUpdateTimeout(d time.Duration) {
	s.mu.Lock()
	s.cfg.UpdateTimeout = d
	s.mu.Unlock()
}

// SetPurgeTimeout changes the RAM-purge debounce interval.
func (s *Scheduler) SetPurgeTimeout(d time.Duration) {
	s.mu.Lock()
	s.cfg.PurgeTimeout = d
	s.mu.Unlock()
}

// SetRetirementAge changes the wall-clock age after which a cached entry is
// re-requested even if present.
func (s *Scheduler) SetRetirementAge(d time.Duration) {
	s.mu.Lock()
	s.cfg.RetirementAge = d
	s.mu.Unlock()
}

// UpdateCamera accepts a new camera snapshot. Updates are coalesced by the
// update timer: while the timer is running, this just replaces the stored
// camera without rearming it.
func (s *Scheduler) UpdateCamera(cam camera.Camera) {
	s.mu.Lock()
	s.currentCamera = cam
	s.hasCamera = true
	if s.updateTimer == nil {
		s.updateTimer = time.AfterFunc(s.cfg.UpdateTimeout, s.onUpdateTimer)
	}
	s.mu.Unlock()
}

// Prod forces an immediate update cycle using the most recently stored
// camera, bypassing the debounce timer. It is intended for the
// reachability-restored case (spec.md §5: "the next camera update ... or
// an explicit prod") and is safe to call even if a debounce timer is
// already pending; it does not cancel that timer.
func (s *Scheduler) Prod() {
	s.mu.Lock()
	hasCam := s.hasCamera
	s.mu.Unlock()
	if hasCam {
		s.doUpdate()
	}
}

func (s *Scheduler) onUpdateTimer() {
	s.mu.Lock()
	s.updateTimer = nil
	s.mu.Unlock()
	s.doUpdate()
}

// doUpdate runs one full update cycle (spec.md §4.7 "Update cycle").
func (s *Scheduler) doUpdate() {
	s.mu.Lock()
	enabled, reachable := s.enabled, s.reachable
	cam := s.currentCamera
	cfg := s.cfg
	s.mu.Unlock()

	if !enabled || !reachable {
		return
	}

	var desired []tileid.ID
	if s.DesiredSetFunc != nil {
		desired = s.DesiredSetFunc(cam)
	} else {
		refine := RefineFunctor{
			Camera:           cam,
			Aabb:             s.aabb,
			ErrorThresholdPx: cfg.ErrorThresholdPx,
			TileSizePx:       cfg.TileSizePx,
		}
		desired = QuadtreeTraverse(RootID, refine.Refine)
	}

	desiredSet := make(map[tileid.ID]struct{}, len(desired))
	for _, id := range desired {
		desiredSet[id] = struct{}{}
	}

	now := time.Now().UnixMilli()
	toRequest := make([]tileid.ID, 0, len(desired))
	for _, id := range desired {
		if s.needsRequest(id, now, cfg.RetirementAge) {
			toRequest = append(toRequest, id)
		}
	}

	s.mu.Lock()
	s.lastDesired = desiredSet
	s.mu.Unlock()

	if s.OnQuadsRequested != nil {
		s.OnQuadsRequested(toRequest)
	}

	s.recomputeGpuWorkingSet(desiredSet)
	s.schedulePurge()
}

// needsRequest implements spec.md §4.7 step 2: an ID is requested if it is
// absent from RAM, or present but NetworkError (always eligible for
// retry), or present with any status but past retirement age.
func (s *Scheduler) needsRequest(id tileid.ID, nowMs int64, retirementAge time.Duration) bool {
	q, ok := s.ramCache.PeekAt(id)
	if !ok {
		return true
	}
	info := q.NetworkInfo()
	if info.Status == tileid.NetworkError {
		return true
	}
	age := time.Duration(nowMs-info.TimestampMs) * time.Millisecond
	return age > retirementAge
}

// ReceiveQuad accepts a completed quad from the pipeline's return path. It
// is inserted into RAM, reported via OnQuadReceived, and — if it belongs to
// the currently desired set — the GPU working set is recomputed immediately
// for snappier delivery (spec.md §4.7 "On receive_quad").
func (s *Scheduler) ReceiveQuad(q TileQuad) {
	s.ramCache.Insert(q)

	if s.OnQuadReceived != nil {
		s.OnQuadReceived(q.ID)
	}

	s.mu.Lock()
	_, inDesired := s.lastDesired[q.ID]
	desiredSet := s.lastDesired
	s.mu.Unlock()

	if inDesired {
		s.recomputeGpuWorkingSet(desiredSet)
	}
}

// recomputeGpuWorkingSet implements spec.md §4.7 step 4: visit the RAM
// cache most-recent-first, take the first K entries in the desired set,
// touch them (promoting recency), and publish the delta relative to the
// GPU-cache mirror.
func (s *Scheduler) recomputeGpuWorkingSet(desired map[tileid.ID]struct{}) {
	s.mu.Lock()
	limit := s.cfg.GpuQuadLimit
	s.mu.Unlock()

	selected := make([]TileQuad, 0, limit)
	selectedSet := make(map[tileid.ID]struct{}, limit)
	s.ramCache.Visit(func(q TileQuad) bool {
		if len(selected) >= limit {
			return false
		}
		if _, ok := desired[q.ID]; !ok {
			return true
		}
		selected = append(selected, q)
		selectedSet[q.ID] = struct{}{}
		return true
	})
	for _, q := range selected {
		s.ramCache.Touch(q.ID)
	}

	var removed []tileid.ID
	s.gpuCacheInfo.Visit(func(g GpuCacheInfo) bool {
		if _, ok := selectedSet[g.ID]; !ok {
			removed = append(removed, g.ID)
		}
		return true
	})
	for _, id := range removed {
		s.gpuCacheInfo.Remove(id)
	}

	var added []GpuTileQuad
	for _, q := range selected {
		if s.gpuCacheInfo.Contains(q.ID) {
			continue
		}
		s.gpuCacheInfo.Insert(GpuCacheInfo{ID: q.ID})
		added = append(added, s.unpackForGpu(q))
	}

	if len(added) > 0 || len(removed) > 0 {
		if s.OnGpuQuadsUpdated != nil {
			s.OnGpuQuadsUpdated(added, removed)
		}
	}
}

// unpackForGpu converts a TileQuad into a GpuTileQuad, computing
// per-child SrsAndHeightBounds and substituting configured default
// payloads for any layer that was not Good (spec.md §4.7 "GPU unpacking").
func (s *Scheduler) unpackForGpu(q TileQuad) GpuTileQuad {
	out := GpuTileQuad{ID: q.ID, NTiles: q.NTiles}
	for i := 0; i < q.NTiles; i++ {
		t := q.Tiles[i]
		box := s.aabb.Aabb(t.ID)
		bound := t.ID.Maptile().Bound()

		gt := GpuLayeredTile{
			ID: t.ID,
			Bounds: SrsAndHeightBounds{
				MinLon: bound.Min.Lon(), MinLat: bound.Min.Lat(),
				MaxLon: bound.Max.Lon(), MaxLat: bound.Max.Lat(),
				MinHeight: box.Min[2], MaxHeight: box.Max[2],
			},
			Ortho:  t.Ortho,
			Height: t.HeightRaw,
		}
		if t.Info.Status != tileid.Good || len(gt.Ortho) == 0 {
			gt.Ortho = s.defaultOrtho
		}
		if t.Info.Status != tileid.Good || len(gt.Height) == 0 {
			gt.Height = s.defaultHeight
		}
		out.Tiles[i] = gt
	}
	return out
}

// schedulePurge arms the purge timer if one is not already pending. The
// purge timer is a debounce that, once armed, is never restarted by
// subsequent deliveries (spec.md §4.7 step 5) — a steady stream of
// arrivals still eventually triggers cleanup rather than starving it
// forever.
func (s *Scheduler) schedulePurge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.purgeTimer != nil {
		return
	}
	s.purgeTimer = time.AfterFunc(s.cfg.PurgeTimeout, s.doPurge)
}

func (s *Scheduler) doPurge() {
	s.mu.Lock()
	s.purgeTimer = nil
	limit := s.cfg.RamQuadLimit
	s.mu.Unlock()

	removedFromRam := s.ramCache.Purge(limit)
	if len(removedFromRam) == 0 {
		return
	}

	var removedFromGpu []tileid.ID
	for _, id := range removedFromRam {
		if s.gpuCacheInfo.Contains(id) {
			s.gpuCacheInfo.Remove(id)
			removedFromGpu = append(removedFromGpu, id)
		}
	}
	if len(removedFromGpu) > 0 && s.OnGpuQuadsUpdated != nil {
		s.OnGpuQuadsUpdated(nil, removedFromGpu)
	}
}

// RamCacheLen reports the current RAM cache size; used by the status
// endpoint and tests.
func (s *Scheduler) RamCacheLen() int { return s.ramCache.Len() }

// GpuCacheLen reports the current GPU-cache mirror size.
func (s *Scheduler) GpuCacheLen() int { return s.gpuCacheInfo.Len() }

// PreloadRamCache inserts quads directly into the RAM cache without going
// through the pipeline — used by tests seeding a cache and by
// read_disk_cache on startup.
func (s *Scheduler) PreloadRamCache(quads []TileQuad) {
	for _, q := range quads {
		s.ramCache.Insert(q)
	}
}

// SnapshotRamCache returns every quad currently in RAM, most-recent-first —
// used by persist_tiles.
func (s *Scheduler) SnapshotRamCache() []TileQuad {
	var out []TileQuad
	s.ramCache.Visit(func(q TileQuad) bool {
		out = append(out, q)
		return true
	})
	return out
}
