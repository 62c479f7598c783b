// Package config defines the scheduler daemon's tunables (spec.md §6's list
// of configuration inputs) and their defaults. It does no loading itself:
// internal/cmd binds cobra flags through viper and unmarshals the layered
// flags > env > YAML file > defaults result into a Config.
package config

import (
	"time"

	"github.com/alpinemaps/tilescheduler/internal/scheduler"
)

// LayerConfig is one layer's URL template, path pattern, and HTTP knobs
// (spec.md §4.2/§6).
type LayerConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Pattern    string `mapstructure:"pattern"` // "zxy", "zyx", "zxy_south", "zyx_south"
	FileSuffix string `mapstructure:"file_suffix"`
	Hosts      []string
	TimeoutMs  int `mapstructure:"timeout_ms"`
	Workers    int
}

// Config is every tunable named in spec.md §6, flattened for viper binding.
type Config struct {
	Ortho  LayerConfig
	Height LayerConfig
	Vector *LayerConfig

	HeightPyramidPath string `mapstructure:"height_pyramid_path"`
	DiskCacheDir      string `mapstructure:"disk_cache_dir"`
	DiskCacheSoftMB   int    `mapstructure:"disk_cache_soft_mb"`

	GpuQuadLimit  int  `mapstructure:"gpu_quad_limit"`
	RamQuadLimit  int  `mapstructure:"ram_quad_limit"`
	UpdateTimeoutMs int `mapstructure:"update_timeout_ms"`
	PurgeTimeoutMs  int `mapstructure:"purge_timeout_ms"`
	RetirementAgeMs int64 `mapstructure:"retirement_age_ms"`

	ScreenSpaceErrorPx float64 `mapstructure:"screen_space_error_px"`

	RateLimitCount  int `mapstructure:"rate_limit_count"`
	RateLimitPeriodMs int `mapstructure:"rate_limit_period_ms"`
	SlotLimit       int `mapstructure:"slot_limit"`

	NetworkWatchIntervalMs int `mapstructure:"network_watch_interval_ms"`

	ListenAddr string `mapstructure:"listen_addr"`
}

// Defaults mirrors spec.md §3/§4's defaults so a daemon started with an
// empty config file still behaves per spec.
func Defaults() Config {
	return Config{
		Ortho: LayerConfig{
			BaseURL:    "https://%HOST%.tile.alpinemaps.org/ortho",
			Pattern:    "zxy",
			FileSuffix: ".jpg",
			TimeoutMs:  5000,
			Workers:    4,
		},
		Height: LayerConfig{
			BaseURL:    "https://%HOST%.tile.alpinemaps.org/height",
			Pattern:    "zxy",
			FileSuffix: ".png",
			TimeoutMs:  5000,
			Workers:    4,
		},
		DiskCacheDir:           "./tilecache",
		DiskCacheSoftMB:        2048,
		GpuQuadLimit:           scheduler.DefaultGpuQuadLimit,
		RamQuadLimit:           scheduler.DefaultRamQuadLimit,
		UpdateTimeoutMs:        int(scheduler.DefaultUpdateTimeout / time.Millisecond),
		PurgeTimeoutMs:         int(scheduler.DefaultPurgeTimeout / time.Millisecond),
		RetirementAgeMs:        int64(scheduler.DefaultRetirementAge / time.Millisecond),
		ScreenSpaceErrorPx:     scheduler.DefaultScreenSpaceErrorPx,
		RateLimitCount:         100,
		RateLimitPeriodMs:      1000,
		SlotLimit:              16,
		NetworkWatchIntervalMs: 10000,
		ListenAddr:             "127.0.0.1:8090",
	}
}

// SchedulerConfig projects the cache/timer/SSE tunables into a
// scheduler.Config.
func (c Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		GpuQuadLimit:     c.GpuQuadLimit,
		RamQuadLimit:     c.RamQuadLimit,
		UpdateTimeout:    time.Duration(c.UpdateTimeoutMs) * time.Millisecond,
		PurgeTimeout:     time.Duration(c.PurgeTimeoutMs) * time.Millisecond,
		RetirementAge:    time.Duration(c.RetirementAgeMs) * time.Millisecond,
		ErrorThresholdPx: c.ScreenSpaceErrorPx,
		TileSizePx:       scheduler.DefaultTileSize,
	}
}
