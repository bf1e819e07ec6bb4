package renderer

import (
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
)

// TimerResult is one resolved GPU time measurement.
type TimerResult struct {
	Label    string
	Duration time.Duration
}

type timerQuery struct {
	label string
	query gpu.Handle
}

// GpuTimer measures GPU time of labelled command ranges. Ranges cannot nest.
type GpuTimer struct {
	b       gpu.Backend
	active  *timerQuery
	pending []timerQuery
}

func newGpuTimer(b gpu.Backend) *GpuTimer {
	return &GpuTimer{b: b}
}

// Mark starts a range. It is ignored while another range is open.
func (t *GpuTimer) Mark(label string) {
	if t.active != nil {
		return
	}
	q, err := t.b.CreateTimerQuery()
	if err != nil {
		return
	}
	t.b.BeginTimerQuery(q)
	t.active = &timerQuery{label: label, query: q}
}

// MarkEnd closes the range started with the same label.
func (t *GpuTimer) MarkEnd(label string) {
	if t.active == nil || t.active.label != label {
		return
	}
	t.b.EndTimerQuery(t.active.query)
	t.pending = append(t.pending, *t.active)
	t.active = nil
}

// Resolve returns the ranges whose results became available, oldest first.
func (t *GpuTimer) Resolve() []TimerResult {
	var out []TimerResult
	kept := t.pending[:0]
	for _, q := range t.pending {
		ns, ok := t.b.TimerQueryResult(q.query)
		if !ok {
			kept = append(kept, q)
			continue
		}
		out = append(out, TimerResult{Label: q.label, Duration: time.Duration(ns)})
		t.b.DeleteTimerQuery(q.query)
	}
	t.pending = kept
	return out
}

// Clear drops every open and pending range without reading results.
func (t *GpuTimer) Clear() {
	if t.active != nil {
		t.b.DeleteTimerQuery(t.active.query)
		t.active = nil
	}
	for _, q := range t.pending {
		t.b.DeleteTimerQuery(q.query)
	}
	t.pending = t.pending[:0]
}
