package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/alpinemaps/tilescheduler/internal/geom"
	"github.com/alpinemaps/tilescheduler/internal/tileid"
)

// LayerServiceConfig configures one layer's TileLoadService plus the
// concurrency of the worker pool that drives it — the Go equivalent of the
// original renderer's per-layer QNetworkAccessManager, reworked as a
// bounded goroutine pool (grounded on this codebase's
// internal/worker.Pool / internal/datasource.FetchQueue shape).
type LayerServiceConfig struct {
	BaseURL    string
	Pattern    URLPattern
	FileSuffix string
	Hosts      []string
	Timeout    time.Duration
	// Workers bounds how many fetches for this layer may be in flight at
	// once; independent of SlotLimiter's cross-layer quad concurrency cap.
	Workers int
}

func (c LayerServiceConfig) workers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// PipelineConfig is everything NewPipeline needs to wire the full tile
// streaming pipeline (spec.md §2 data-flow diagram).
type PipelineConfig struct {
	Ortho  LayerServiceConfig
	Height LayerServiceConfig
	// Vector is optional; nil disables the vector layer entirely, and
	// LayerAssembler stops waiting on it (see layerassembler.go).
	Vector *LayerServiceConfig

	Scheduler Config
	Aabb      *geom.AabbDecorator
	Logger    *slog.Logger
}

// Pipeline is every wired-together stage plus the Scheduler that owns them,
// the Go analogue of the original renderer's setup.cpp
// MonolithicScheduler/monolithic() — one constructor that builds the whole
// object graph and connects every stage's outputs to the next stage's
// inputs, so the embedder only has to drive Scheduler's public methods and
// observe its public callbacks.
type Pipeline struct {
	Scheduler      *Scheduler
	SlotLimiter    *SlotLimiter
	RateLimiter    *RateLimiter
	QuadAssembler  *QuadAssembler
	LayerAssembler *LayerAssembler

	services map[Layer]*TileLoadService
	sems     map[Layer]chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPipeline builds and wires the full pipeline. There is no separate start
// step: HTTP fetches begin as soon as the Scheduler emits its first request.
// Call Stop to cancel the fetches' shared context.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sched := New(cfg.Scheduler, cfg.Aabb, logger)
	slot := NewSlotLimiter(nil)
	rate := NewRateLimiter(nil)
	quadAsm := NewQuadAssembler()
	layerAsm := NewLayerAssembler(cfg.Vector != nil)

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pipeline{
		Scheduler:      sched,
		SlotLimiter:    slot,
		RateLimiter:    rate,
		QuadAssembler:  quadAsm,
		LayerAssembler: layerAsm,
		services:       make(map[Layer]*TileLoadService),
		sems:           make(map[Layer]chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
	}

	p.addService(Ortho, cfg.Ortho)
	p.addService(Height, cfg.Height)
	if cfg.Vector != nil {
		p.addService(Vector, *cfg.Vector)
	}

	// Return path, innermost-out: TileLoadService results feed
	// LayerAssembler, whose completed LayeredTiles feed QuadAssembler,
	// whose completed TileQuads feed SlotLimiter.DeliverQuad, which
	// finally hands the quad to Scheduler.ReceiveQuad.
	layerAsm.OnTileReady = quadAsm.DeliverTile
	quadAsm.OnQuadReady = func(q TileQuad) {
		slot.DeliverQuad(q.ID, func() { sched.ReceiveQuad(q) })
	}

	// Request path, outermost-in: Scheduler decides what's desired,
	// SlotLimiter gates concurrency, RateLimiter gates request rate,
	// QuadAssembler fans a quad out into four tile requests, LayerAssembler
	// fans each tile out into one request per configured layer.
	sched.OnQuadsRequested = slot.RequestQuads
	slot.OnForward = rate.Request
	rate.OnEmit = quadAsm.Load
	quadAsm.OnRequestTile = layerAsm.Load
	layerAsm.OnRequestLayer = p.dispatchFetch

	return p
}

func (p *Pipeline) addService(layer Layer, cfg LayerServiceConfig) {
	p.services[layer] = NewTileLoadService(layer, cfg.BaseURL, cfg.Pattern, cfg.FileSuffix, cfg.Hosts...)
	if cfg.Timeout > 0 {
		p.services[layer].Timeout = cfg.Timeout
	}
	p.sems[layer] = make(chan struct{}, cfg.workers())
}

// dispatchFetch runs one layer fetch on a goroutine bounded by that layer's
// worker semaphore, delivering the result back into LayerAssembler when it
// completes. Every pipeline stage guards its own state with a mutex, so
// delivering from an arbitrary fetch goroutine rather than a single
// dedicated pipeline goroutine is safe; spec.md §5's "single pipeline
// thread" becomes, in Go, "every stage is individually safe for concurrent
// callers."
func (p *Pipeline) dispatchFetch(id tileid.ID, layer Layer) {
	svc, ok := p.services[layer]
	if !ok {
		return
	}
	sem := p.sems[layer]

	go func() {
		select {
		case sem <- struct{}{}:
		case <-p.ctx.Done():
			return
		}
		defer func() { <-sem }()

		result := svc.Load(p.ctx, id)
		p.LayerAssembler.DeliverLayer(result)
	}()
}

// Stop cancels any in-flight fetches' context; per spec.md §5 there is no
// explicit per-request cancel, so in-flight work is allowed to observe
// ctx.Done() and unwind on its own rather than being forcibly torn down.
func (p *Pipeline) Stop() {
	p.cancel()
}
