package profiler

import (
	"runtime"
	"sort"
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/logger"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/resource"
)

// Stats is one reporting interval worth of measurements.
type Stats struct {
	FPS         float64
	HeapMB      float64
	AllocRateMB float64
	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64
	SysMB       float64

	// GPU is the mean GPU time per resolved range, keyed by timer label.
	GPU map[string]time.Duration
	// Resources is the context's resource snapshot at the end of the interval.
	Resources resource.Stats
}

// Profiler tracks frame rate, memory, GPU pass time and resource statistics.
// Outputs stats to the logger at a configurable interval.
type Profiler struct {
	ctx *renderer.Context
	now func() time.Time

	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	gpuTotals map[string]time.Duration
	gpuCounts map[string]int
	last      Stats
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		now:            time.Now,
		updateInterval: time.Second,
		gpuTotals:      make(map[string]time.Duration),
		gpuCounts:      make(map[string]int),
	}
	for _, option := range options {
		option(p)
	}
	p.lastTime = p.now()
	return p
}

// Last returns the stats of the most recent completed interval.
func (p *Profiler) Last() Stats {
	return p.last
}

// collectGPU drains resolved timer ranges into the interval totals.
func (p *Profiler) collectGPU() {
	if p.ctx == nil || p.ctx.Timer() == nil {
		return
	}
	for _, r := range p.ctx.Timer().Resolve() {
		p.gpuTotals[r.Label] += r.Duration
		p.gpuCounts[r.Label]++
	}
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times,
// total memory, mean GPU time per pass and resource counts.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	p.collectGPU()
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	s := Stats{FPS: float64(p.frameCount) / elapsed.Seconds()}

	runtime.ReadMemStats(&p.memStats)
	// Alloc is live heap, TotalAlloc only grows and tracks churn, Sys is the
	// process footprint.
	s.HeapMB = float64(p.memStats.Alloc) / 1024 / 1024
	s.SysMB = float64(p.memStats.Sys) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	s.AllocRateMB = float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	s.GCCount = p.memStats.NumGC
	if s.GCCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses
		s.LastPauseUs = p.memStats.PauseNs[(s.GCCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if s.GCCount-startIdx > 256 {
			startIdx = s.GCCount - 256
		}
		for i := startIdx; i < s.GCCount; i++ {
			s.MaxPauseUs = max(s.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	s.GPU = make(map[string]time.Duration, len(p.gpuTotals))
	for label, total := range p.gpuTotals {
		s.GPU[label] = total / time.Duration(p.gpuCounts[label])
	}
	if p.ctx != nil {
		s.Resources = p.ctx.Stats()
	}
	p.log(s)

	p.last = s
	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = s.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	clear(p.gpuTotals)
	clear(p.gpuCounts)
	return true
}

func (p *Profiler) log(s Stats) {
	args := []any{
		"fps", s.FPS,
		"heapMB", s.HeapMB,
		"allocRateMB", s.AllocRateMB,
		"gc", s.GCCount,
		"lastPauseUs", s.LastPauseUs,
		"maxPauseUs", s.MaxPauseUs,
		"sysMB", s.SysMB,
	}
	labels := make([]string, 0, len(s.GPU))
	for label := range s.GPU {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		args = append(args, "gpu."+label, s.GPU[label])
	}
	if p.ctx != nil {
		args = append(args,
			"draws", s.Resources.DrawCount,
			"programs", s.Resources.Count(resource.KindProgram),
			"textures", s.Resources.Count(resource.KindTexture),
			"buffers", s.Resources.Count(resource.KindBuffer),
		)
	}
	logger.Logger().Info("profiler", args...)
}
