package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alpinemaps/tilescheduler/internal/config"
	"github.com/alpinemaps/tilescheduler/internal/diskcache"
	"github.com/alpinemaps/tilescheduler/internal/geom"
	"github.com/alpinemaps/tilescheduler/internal/netwatch"
	"github.com/alpinemaps/tilescheduler/internal/scheduler"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tile scheduler daemon",
	Long: `serve builds the full tile streaming pipeline (Scheduler, SlotLimiter,
RateLimiter, QuadAssembler, LayerAssembler, TileLoadService), opens the disk
cache, starts a network-reachability watcher, and exposes a debug/status HTTP
server. It blocks until signaled.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", config.Defaults().ListenAddr, "Debug/status HTTP listen address (host:port)")
	serveCmd.Flags().String("disk-cache-dir", config.Defaults().DiskCacheDir, "Directory for the persistent disk cache")
	serveCmd.Flags().String("height-pyramid", "", "Path to a precomputed height pyramid asset; serve does not read it and bounds every tile with a flat 0..4000 m elevation band")
	serveCmd.Flags().Int("gpu-quad-limit", config.Defaults().GpuQuadLimit, "Maximum quads replicated to the GPU consumer")
	serveCmd.Flags().Int("ram-quad-limit", config.Defaults().RamQuadLimit, "Maximum quads held in the RAM cache")
	serveCmd.Flags().Int("update-timeout-ms", config.Defaults().UpdateTimeoutMs, "Camera-update debounce, in ms")
	serveCmd.Flags().Int("purge-timeout-ms", config.Defaults().PurgeTimeoutMs, "RAM-purge debounce, in ms")
	serveCmd.Flags().Int64("retirement-age-ms", config.Defaults().RetirementAgeMs, "Age after which cached tiles are re-requested")
	serveCmd.Flags().Float64("sse-threshold-px", config.Defaults().ScreenSpaceErrorPx, "Screen-space-error refinement threshold, in pixels")

	serveCmd.Flags().String("ortho-base-url", config.Defaults().Ortho.BaseURL, "Orthophoto tile service base URL")
	serveCmd.Flags().String("height-base-url", config.Defaults().Height.BaseURL, "Elevation tile service base URL")

	mustBind := func(key, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}
	mustBind("listen_addr", "addr")
	mustBind("disk_cache_dir", "disk-cache-dir")
	mustBind("height_pyramid_path", "height-pyramid")
	mustBind("gpu_quad_limit", "gpu-quad-limit")
	mustBind("ram_quad_limit", "ram-quad-limit")
	mustBind("update_timeout_ms", "update-timeout-ms")
	mustBind("purge_timeout_ms", "purge-timeout-ms")
	mustBind("retirement_age_ms", "retirement-age-ms")
	mustBind("screen_space_error_px", "sse-threshold-px")
	mustBind("ortho.base_url", "ortho-base-url")
	mustBind("height.base_url", "height-base-url")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	cfg := config.Defaults()
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("serve: parse config: %w", err)
	}
	if v := viper.GetString("ortho.base_url"); v != "" {
		cfg.Ortho.BaseURL = v
	}
	if v := viper.GetString("height.base_url"); v != "" {
		cfg.Height.BaseURL = v
	}

	pyramid := geom.NewHeightPyramid(0, 4000)
	aabb := geom.NewAabbDecorator(pyramid)

	var vector *scheduler.LayerServiceConfig
	if cfg.Vector != nil {
		v := layerServiceConfig(*cfg.Vector)
		vector = &v
	}

	pipeline := scheduler.NewPipeline(scheduler.PipelineConfig{
		Ortho:     layerServiceConfig(cfg.Ortho),
		Height:    layerServiceConfig(cfg.Height),
		Vector:    vector,
		Scheduler: cfg.SchedulerConfig(),
		Aabb:      aabb,
		Logger:    logger,
	})
	pipeline.RateLimiter.Rate = cfg.RateLimitCount
	pipeline.RateLimiter.Period = time.Duration(cfg.RateLimitPeriodMs) * time.Millisecond
	pipeline.SlotLimiter.Limit = cfg.SlotLimit

	store, err := diskcache.Open(cfg.DiskCacheDir, logger)
	if err != nil {
		return fmt.Errorf("serve: open disk cache: %w", err)
	}
	defer store.Close()
	pipeline.Scheduler.SetDiskBackend(store)
	pipeline.Scheduler.ReadDiskCache()
	logger.Info("disk cache loaded", "dir", cfg.DiskCacheDir, "quads", pipeline.Scheduler.RamCacheLen())

	watcher := &netwatch.Poller{
		Hosts:    []string{cfg.Ortho.BaseURL, cfg.Height.BaseURL},
		Interval: time.Duration(cfg.NetworkWatchIntervalMs) * time.Millisecond,
		Target:   pipeline.Scheduler,
	}
	watcher.Start()
	defer watcher.Stop()

	pipeline.Scheduler.SetEnabled(true)

	persistTicker := time.NewTicker(5 * time.Minute)
	defer persistTicker.Stop()
	persistDone := make(chan struct{})
	go func() {
		for {
			select {
			case <-persistTicker.C:
				pipeline.Scheduler.PersistTiles()
			case <-persistDone:
				return
			}
		}
	}()
	defer close(persistDone)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/status", statusHandler(pipeline.Scheduler))
	mux.Handle("/status/stream", statusStreamHandler(pipeline.Scheduler))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("status server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	pipeline.Scheduler.PersistTiles()
	pipeline.Stop()
	return srv.Close()
}

func layerServiceConfig(c config.LayerConfig) scheduler.LayerServiceConfig {
	return scheduler.LayerServiceConfig{
		BaseURL:    c.BaseURL,
		Pattern:    parsePattern(c.Pattern),
		FileSuffix: c.FileSuffix,
		Hosts:      c.Hosts,
		Timeout:    time.Duration(c.TimeoutMs) * time.Millisecond,
		Workers:    c.Workers,
	}
}

func parsePattern(s string) scheduler.URLPattern {
	switch s {
	case "zyx":
		return scheduler.ZYX
	case "zxy_south":
		return scheduler.ZXYYPointingSouth
	case "zyx_south":
		return scheduler.ZYXYPointingSouth
	default:
		return scheduler.ZXY
	}
}

// statusPayload mirrors the teacher's OnDemandTiles.Status shape: a small
// JSON-able snapshot safe to poll or stream.
type statusPayload struct {
	RamCacheQuads  int    `json:"ram_cache_quads"`
	GpuCacheQuads  int    `json:"gpu_cache_quads"`
	RunID          string `json:"run_id"`
}

func snapshotStatus(s *scheduler.Scheduler) statusPayload {
	return statusPayload{
		RamCacheQuads: s.RamCacheLen(),
		GpuCacheQuads: s.GpuCacheLen(),
		RunID:         s.RunID().String(),
	}
}

// statusHandler returns a JSON status endpoint, grounded on
// OnDemandTiles.StatusHandler in the teacher's internal/server package.
func statusHandler(s *scheduler.Scheduler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(snapshotStatus(s)); err != nil {
			http.Error(w, "failed to encode status", http.StatusInternalServerError)
		}
	})
}

// statusStreamHandler is the SSE counterpart, grounded on
// OnDemandTiles.StatusStreamHandler.
func statusStreamHandler(s *scheduler.Scheduler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "SSE not supported", http.StatusInternalServerError)
			return
		}

		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()

		send := func() {
			data, err := json.Marshal(snapshotStatus(s))
			if err != nil {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}

		send()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				send()
			}
		}
	})
}

// humanizeBytes is used by inspect-cache to render disk cache sizes.
func humanizeBytes(n int64) string {
	return humanize.Bytes(uint64(n))
}
