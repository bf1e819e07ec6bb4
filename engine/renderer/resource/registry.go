// Package resource wraps backend objects in typed, registry-tracked handles.
// Every resource remembers its last definition so that it can be recreated
// on a fresh device after context restoration.
package resource

import (
	"errors"
	"slices"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-render/engine/logger"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
)

// Kind enumerates the resource types tracked by a Registry.
type Kind uint8

const (
	KindBuffer Kind = iota
	KindTexture
	KindRenderbuffer
	KindProgram
	KindVertexArray
	KindFramebuffer
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindTexture:
		return "texture"
	case KindRenderbuffer:
		return "renderbuffer"
	case KindProgram:
		return "program"
	case KindVertexArray:
		return "vertex array"
	case KindFramebuffer:
		return "framebuffer"
	}
	return "unknown"
}

// Resource is implemented by every registry-tracked object.
type Resource interface {
	ID() int
	Kind() Kind
	// Reset recreates the backend object and replays its last definition.
	Reset() error
	// Destroy releases the backend object. Calling it twice is a no-op.
	Destroy()
}

var nextID atomic.Int64

// NextID returns a process-unique id. Resources, render targets and
// renderables draw from the same counter.
func NextID() int {
	return int(nextID.Add(1))
}

// Stats summarizes live resources and the draw calls of the current frame.
type Stats struct {
	Live  [kindCount]int
	Bytes [kindCount]int

	DrawCount          int
	InstanceCount      int
	InstancedDrawCount int
}

// Count returns the live count of kind k.
func (s Stats) Count(k Kind) int {
	return s.Live[k]
}

type programEntry struct {
	program *Program
	refs    int
}

// Registry owns every resource created on one backend.
//
// A Registry is used from the render thread only.
type Registry struct {
	b        gpu.Backend
	live     [kindCount]map[int]Resource
	bytes    [kindCount]int
	programs map[string]*programEntry
	stats    Stats
}

// NewRegistry creates an empty registry bound to b.
//
// Parameters:
//   - b: the backend resources are created on
//
// Returns:
//   - *Registry: the registry
func NewRegistry(b gpu.Backend) *Registry {
	r := &Registry{b: b, programs: make(map[string]*programEntry)}
	for k := range r.live {
		r.live[k] = make(map[int]Resource)
	}
	return r
}

// Backend returns the backend the registry creates resources on.
func (r *Registry) Backend() gpu.Backend {
	return r.b
}

func (r *Registry) track(res Resource) {
	r.live[res.Kind()][res.ID()] = res
}

func (r *Registry) untrack(res Resource) {
	delete(r.live[res.Kind()], res.ID())
}

func (r *Registry) addBytes(k Kind, delta int) {
	r.bytes[k] += delta
}

// Live reports whether a resource with the given kind and id is registered.
func (r *Registry) Live(k Kind, id int) bool {
	_, ok := r.live[k][id]
	return ok
}

// Stats returns the live counts, byte totals and frame draw counters.
func (r *Registry) Stats() Stats {
	s := r.stats
	for k := range r.live {
		s.Live[k] = len(r.live[k])
		s.Bytes[k] = r.bytes[k]
	}
	return s
}

// RecordDraw adds one draw call to the frame counters.
func (r *Registry) RecordDraw(instances int) {
	r.stats.DrawCount++
	r.stats.InstanceCount += max(instances, 1)
	if instances > 1 {
		r.stats.InstancedDrawCount++
	}
}

// ResetFrameStats zeroes the draw counters.
func (r *Registry) ResetFrameStats() {
	r.stats.DrawCount, r.stats.InstanceCount, r.stats.InstancedDrawCount = 0, 0, 0
}

func sortedIDs(m map[int]Resource) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Reset recreates every live resource on the current device. Kinds are
// reset in dependency order so that vertex arrays and framebuffers see the
// new handles of what they reference.
//
// Returns:
//   - error: every reset failure, joined
func (r *Registry) Reset() error {
	var errs []error
	for k := range r.live {
		for _, id := range sortedIDs(r.live[k]) {
			if err := r.live[k][id].Reset(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	logger.Logger().Debug("resource registry reset", "live", r.Stats().Live)
	return errors.Join(errs...)
}

// Destroy releases every live resource and empties the program cache.
func (r *Registry) Destroy() {
	for k := len(r.live) - 1; k >= 0; k-- {
		for _, id := range sortedIDs(r.live[k]) {
			if res, ok := r.live[k][id]; ok {
				res.Destroy()
			}
		}
	}
	clear(r.programs)
}
