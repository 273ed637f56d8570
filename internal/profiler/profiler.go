// Package profiler provides lightweight wall-clock and memory profiling for
// hot paths (pattern matching, OpenAPI indexing, GraphQL normalization) that
// can be toggled on without recompiling.
package profiler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Profile is a single recorded measurement.
type Profile struct {
	Operation    string
	Duration     time.Duration
	MemoryBefore uint64
	MemoryAfter  uint64
	MemoryDelta  int64
	LinesCount   int
	BytesCount   int64
	Timestamp    time.Time
}

// String renders the profile as a compact key=value line suitable for
// slog's message field or ad-hoc debugging.
func (p *Profile) String() string {
	return fmt.Sprintf(
		"operation=%s duration=%s memory_before=%d memory_after=%d memory_delta=%d lines=%d bytes=%d",
		p.Operation, p.Duration, p.MemoryBefore, p.MemoryAfter, p.MemoryDelta, p.LinesCount, p.BytesCount,
	)
}

// Profiler records profiles for a component when enabled, and logs them
// through the supplied logger. A nil logger is valid; it simply disables
// log output while still recording profiles.
type Profiler struct {
	logger  *slog.Logger
	enabled bool
}

// New builds a Profiler. When enabled is false, ProfileFunc/ProfileFuncWithMetrics/Start
// still invoke the wrapped function but skip all measurement and return a nil Profile.
func New(logger *slog.Logger, enabled bool) *Profiler {
	return &Profiler{logger: logger, enabled: enabled}
}

// ProfileFunc runs fn, recording its wall-clock duration. The function's
// error is always returned, even when a Profile was also produced.
func (p *Profiler) ProfileFunc(ctx context.Context, operation string, fn func() error) (*Profile, error) {
	if !p.enabled {
		return nil, fn()
	}

	before := memStats()
	start := time.Now()
	err := fn()
	duration := time.Since(start)
	after := memStats()

	profile := &Profile{
		Operation:    operation,
		Duration:     duration,
		MemoryBefore: before,
		MemoryAfter:  after,
		MemoryDelta:  safeMemoryDelta(after, before),
		Timestamp:    time.Now(),
	}
	p.log(ctx, profile)
	return profile, err
}

// ProfileFuncWithMetrics is ProfileFunc plus caller-supplied volume counters
// (e.g. lines parsed, bytes read) that get attached to the resulting Profile.
func (p *Profiler) ProfileFuncWithMetrics(ctx context.Context, operation string, fn func() (int, int64, error)) (*Profile, error) {
	if !p.enabled {
		_, _, err := fn()
		return nil, err
	}

	before := memStats()
	start := time.Now()
	lines, bytes, err := fn()
	duration := time.Since(start)
	after := memStats()

	profile := &Profile{
		Operation:    operation,
		Duration:     duration,
		MemoryBefore: before,
		MemoryAfter:  after,
		MemoryDelta:  safeMemoryDelta(after, before),
		LinesCount:   lines,
		BytesCount:   bytes,
		Timestamp:    time.Now(),
	}
	p.log(ctx, profile)
	return profile, err
}

// Start begins a manually-scoped profile; the caller invokes the returned
// function with volume counters once the operation completes. Useful when
// the operation doesn't fit a single fn() call (e.g. it straddles a loop).
func (p *Profiler) Start(ctx context.Context, operation string) func(linesCount int, bytesCount int64) *Profile {
	if !p.enabled {
		return func(int, int64) *Profile { return nil }
	}

	before := memStats()
	start := time.Now()

	return func(linesCount int, bytesCount int64) *Profile {
		duration := time.Since(start)
		after := memStats()
		profile := &Profile{
			Operation:    operation,
			Duration:     duration,
			MemoryBefore: before,
			MemoryAfter:  after,
			MemoryDelta:  safeMemoryDelta(after, before),
			LinesCount:   linesCount,
			BytesCount:   bytesCount,
			Timestamp:    time.Now(),
		}
		p.log(ctx, profile)
		return profile
	}
}

func (p *Profiler) log(ctx context.Context, profile *Profile) {
	if p.logger == nil {
		return
	}
	p.logger.DebugContext(ctx, "profile", "operation", profile.Operation, "duration", profile.Duration,
		"memory_delta", profile.MemoryDelta, "lines", profile.LinesCount, "bytes", profile.BytesCount)
}

func memStats() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc
}

// safeMemoryDelta computes after-before as a signed delta without wrapping,
// clamping to the int64 range rather than overflowing on pathological
// uint64 inputs near the top of the range.
func safeMemoryDelta(after, before uint64) int64 {
	if after >= before {
		diff := after - before
		if diff > uint64(^uint64(0)>>1) {
			return int64(^uint64(0) >> 1)
		}
		return int64(diff)
	}
	diff := before - after
	if diff > uint64(^uint64(0)>>1) {
		return -int64(^uint64(0) >> 1)
	}
	return -int64(diff)
}

// IsProfilingEnabled reports whether profiling was requested through the
// environment, for callers that wire up the profiler before config parsing
// has happened (e.g. very early CLI bootstrap).
func IsProfilingEnabled() bool {
	v := os.Getenv("PROXY_PROFILING_ENABLED")
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}
