package config

import (
	"testing"
	"time"

	"github.com/alpinemaps/tilescheduler/internal/scheduler"
)

func TestDefaultsMatchSchedulerDefaults(t *testing.T) {
	c := Defaults()

	if c.GpuQuadLimit != scheduler.DefaultGpuQuadLimit {
		t.Errorf("GpuQuadLimit = %d, want %d", c.GpuQuadLimit, scheduler.DefaultGpuQuadLimit)
	}
	if c.RamQuadLimit != scheduler.DefaultRamQuadLimit {
		t.Errorf("RamQuadLimit = %d, want %d", c.RamQuadLimit, scheduler.DefaultRamQuadLimit)
	}
	if time.Duration(c.RetirementAgeMs)*time.Millisecond != scheduler.DefaultRetirementAge {
		t.Errorf("RetirementAgeMs = %d, want %d ms", c.RetirementAgeMs, scheduler.DefaultRetirementAge/time.Millisecond)
	}
	if c.ListenAddr == "" {
		t.Error("expected a non-empty default listen address")
	}
}

func TestSchedulerConfigProjection(t *testing.T) {
	c := Defaults()
	c.GpuQuadLimit = 7
	c.RamQuadLimit = 11
	c.UpdateTimeoutMs = 250
	c.PurgeTimeoutMs = 500
	c.RetirementAgeMs = 60000
	c.ScreenSpaceErrorPx = 3.5

	sc := c.SchedulerConfig()

	if sc.GpuQuadLimit != 7 || sc.RamQuadLimit != 11 {
		t.Errorf("cache limits = (%d,%d), want (7,11)", sc.GpuQuadLimit, sc.RamQuadLimit)
	}
	if sc.UpdateTimeout != 250*time.Millisecond {
		t.Errorf("UpdateTimeout = %v, want 250ms", sc.UpdateTimeout)
	}
	if sc.PurgeTimeout != 500*time.Millisecond {
		t.Errorf("PurgeTimeout = %v, want 500ms", sc.PurgeTimeout)
	}
	if sc.RetirementAge != time.Minute {
		t.Errorf("RetirementAge = %v, want 1m", sc.RetirementAge)
	}
	if sc.ErrorThresholdPx != 3.5 {
		t.Errorf("ErrorThresholdPx = %v, want 3.5", sc.ErrorThresholdPx)
	}
}
