package scene

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/logger"
	"github.com/Carmen-Shannon/oxy-render/engine/renderable"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
)

// NoTimeLimit is a Commit budget that drains the whole queue.
const NoTimeLimit = time.Duration(math.MaxInt64)

// DefaultParallelThreshold is the renderable count from which bounding
// spheres are computed on the worker pool.
const DefaultParallelThreshold = 512

// Scene owns the renderables of a view. Additions and removals are queued and
// applied by Commit, which is time-boxed so large scenes can be built over
// several frames. Aggregates are recomputed on Commit, Update and
// SyncVisibility only.
// Safe for concurrent access.
type Scene interface {
	// Context returns the context the renderables are created in.
	Context() *renderer.Context

	// Add queues o for addition. A pending removal of o is cancelled.
	Add(o *renderable.Object)

	// Remove queues o for removal. A pending addition of o is cancelled.
	Remove(o *renderable.Object)

	// Commit applies queued operations until the queue is empty or maxTime
	// has passed. The budget is checked before each operation, so a zero
	// budget applies nothing.
	//
	// Parameters:
	//   - maxTime: the time budget, or NoTimeLimit
	//
	// Returns:
	//   - bool: true if operations remain queued
	Commit(maxTime time.Duration) bool

	// NeedsCommit reports whether operations are queued.
	NeedsCommit() bool

	// CommitQueueSize returns the number of queued operations.
	CommitQueueSize() int

	// Has reports whether o was added by a completed commit.
	Has(o *renderable.Object) bool

	// Count returns the number of renderables.
	Count() int

	// ForEach calls fn for every renderable in draw order.
	ForEach(fn func(r renderable.Renderable, o *renderable.Object))

	// Renderables returns every renderable in draw order. The slice must not
	// be modified.
	Renderables() []renderable.Renderable

	// Primitives returns the primitive renderables in draw order.
	Primitives() []renderable.Renderable

	// Volumes returns the volume renderables in draw order.
	Volumes() []renderable.Renderable

	// Update uploads changed values of objects, or of every renderable when
	// objects is nil, and recomputes the aggregates.
	//
	// Parameters:
	//   - objects: the objects whose values changed, nil for all
	//   - keepBoundingSphere: true if no geometry changed
	//
	// Returns:
	//   - error: the joined upload errors
	Update(objects []*renderable.Object, keepBoundingSphere bool) error

	// SyncVisibility re-reads the visible flag of every renderable.
	//
	// Returns:
	//   - bool: true if any flag changed since the last sync
	SyncVisibility() bool

	// MarkerAverage is the mean marker average of visible primitives.
	MarkerAverage() float32

	// OpacityAverage is the mean opacity of visible primitives.
	OpacityAverage() float32

	// HasOpaque reports whether a visible primitive is fully opaque.
	HasOpaque() bool

	// TransparencyMin is the lowest transparency among visible primitives,
	// 1 when there are none.
	TransparencyMin() float32

	// BoundingSphere encloses every renderable.
	BoundingSphere() common.Sphere

	// BoundingSphereVisible encloses every visible renderable.
	BoundingSphereVisible() common.Sphere

	// Reset re-uploads every renderable after context restoration.
	Reset() error

	// Clear disposes every renderable and drops queued operations.
	Clear()

	// Dispose clears the scene and stops its compute workers. The scene
	// stays usable; bounding spheres are then computed serially.
	Dispose()
}

type scene struct {
	mu  *sync.RWMutex
	ctx *renderer.Context
	now func() time.Time

	queue       *commitQueue
	byObject    map[*renderable.Object]renderable.Renderable
	renderables []renderable.Renderable
	primitives  []renderable.Renderable
	volumes     []renderable.Renderable
	visible     []bool
	applied     bool

	markerAverage   float32
	opacityAverage  float32
	hasOpaque       bool
	transparencyMin float32

	sphere             common.Sphere
	sphereDirty        bool
	sphereVisible      common.Sphere
	sphereVisibleDirty bool

	computePool       worker.DynamicWorkerPool
	computeWorkers    int
	parallelThreshold int
	poolStopped       bool
}

// Ensure scene implements Scene interface.
var _ Scene = &scene{}

// NewScene creates an empty Scene whose renderables are created in ctx.
//
// Parameters:
//   - ctx: the owning context
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(ctx *renderer.Context, options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:                 &sync.RWMutex{},
		ctx:                ctx,
		now:                time.Now,
		queue:              newCommitQueue(),
		byObject:           make(map[*renderable.Object]renderable.Renderable),
		transparencyMin:    1,
		sphere:             common.EmptySphere(),
		sphereVisible:      common.EmptySphere(),
		computeWorkers:     max(runtime.NumCPU()-1, 1),
		parallelThreshold:  DefaultParallelThreshold,
		sphereDirty:        true,
		sphereVisibleDirty: true,
	}

	for _, option := range options {
		option(s)
	}

	// Initialize the compute pool after options so WithComputeWorkers can override the default.
	s.computePool = worker.NewDynamicWorkerPool(s.computeWorkers, 256, 1*time.Second)
	return s
}

func (s *scene) Context() *renderer.Context {
	return s.ctx
}

func (s *scene) Add(o *renderable.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.add(o)
}

func (s *scene) Remove(o *renderable.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.remove(o)
}

func (s *scene) Commit(maxTime time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	for s.queue.len() > 0 {
		if maxTime != NoTimeLimit && s.now().Sub(start) >= maxTime {
			logger.Logger().Debug("scene commit out of time", "remaining", s.queue.len())
			return true
		}
		o, isAdd := s.queue.next()
		if isAdd {
			s.add(o)
		} else {
			s.remove(o)
		}
	}
	if s.applied {
		s.finishCommit()
	}
	return false
}

func (s *scene) add(o *renderable.Object) {
	if _, ok := s.byObject[o]; ok {
		return
	}
	r, err := renderable.New(s.ctx, o)
	if err != nil {
		logger.Logger().Warn("scene: dropping object", "id", o.ID, "err", err)
		return
	}
	s.byObject[o] = r
	s.renderables = append(s.renderables, r)
	if o.Kind == renderable.KindVolume {
		s.volumes = append(s.volumes, r)
	} else {
		s.primitives = append(s.primitives, r)
	}
	s.applied = true
}

func (s *scene) remove(o *renderable.Object) {
	r, ok := s.byObject[o]
	if !ok {
		return
	}
	r.Dispose()
	delete(s.byObject, o)
	is := func(x renderable.Renderable) bool { return x == r }
	s.renderables = slices.DeleteFunc(s.renderables, is)
	s.primitives = slices.DeleteFunc(s.primitives, is)
	s.volumes = slices.DeleteFunc(s.volumes, is)
	s.applied = true
}

func programID(r renderable.Renderable) int {
	if p := r.Program(renderable.VariantColor); p != nil {
		return p.ID()
	}
	return -1
}

// compareRenderables orders by program, then material, then id, which keeps
// program and material switches to a minimum during a pass.
func compareRenderables(a, b renderable.Renderable) int {
	return cmp.Or(
		cmp.Compare(programID(a), programID(b)),
		cmp.Compare(a.MaterialID(), b.MaterialID()),
		cmp.Compare(a.ID(), b.ID()),
	)
}

func (s *scene) finishCommit() {
	slices.SortStableFunc(s.renderables, compareRenderables)
	slices.SortStableFunc(s.primitives, compareRenderables)
	slices.SortStableFunc(s.volumes, compareRenderables)
	s.snapshotVisibility()
	s.sphereDirty = true
	s.sphereVisibleDirty = true
	s.calculateAggregates()
	s.applied = false
}

func (s *scene) snapshotVisibility() bool {
	changed := len(s.visible) != len(s.renderables)
	if changed {
		s.visible = make([]bool, len(s.renderables))
	}
	for i, r := range s.renderables {
		v := r.State().Visible
		if s.visible[i] != v {
			s.visible[i] = v
			changed = true
		}
	}
	return changed
}

func (s *scene) NeedsCommit() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue.len() > 0
}

func (s *scene) CommitQueueSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue.len()
}

func (s *scene) Has(o *renderable.Object) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byObject[o]
	return ok
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.renderables)
}

func (s *scene) ForEach(fn func(r renderable.Renderable, o *renderable.Object)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.renderables {
		fn(r, r.Object())
	}
}

func (s *scene) Renderables() []renderable.Renderable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.renderables
}

func (s *scene) Primitives() []renderable.Renderable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.primitives
}

func (s *scene) Volumes() []renderable.Renderable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volumes
}

func (s *scene) Update(objects []*renderable.Object, keepBoundingSphere bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	update := func(r renderable.Renderable) {
		if err := r.Update(); err != nil {
			errs = append(errs, fmt.Errorf("renderable %d: %w", r.ID(), err))
		}
	}
	if objects == nil {
		for _, r := range s.renderables {
			update(r)
		}
	} else {
		for _, o := range objects {
			if r, ok := s.byObject[o]; ok {
				update(r)
			}
		}
	}
	if !keepBoundingSphere {
		s.sphereDirty = true
		s.sphereVisibleDirty = true
	}
	s.calculateAggregates()
	return errors.Join(errs...)
}

func (s *scene) SyncVisibility() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.snapshotVisibility() {
		return false
	}
	s.sphereVisibleDirty = true
	s.calculateAggregates()
	return true
}

func (s *scene) calculateAggregates() {
	var markerSum, opacitySum float32
	count := 0
	s.hasOpaque = false
	s.transparencyMin = 1
	for _, r := range s.primitives {
		st := r.State()
		if !st.Visible {
			continue
		}
		v := r.Values()
		markerSum += renderable.GetOr(v, renderable.ValueMarkerAverage, float32(0))
		o := renderable.Opacity(v, st)
		opacitySum += o
		if st.Opaque && o >= 1 {
			s.hasOpaque = true
		}
		s.transparencyMin = min(s.transparencyMin, 1-o)
		count++
	}
	if count == 0 {
		s.markerAverage, s.opacityAverage = 0, 0
		return
	}
	s.markerAverage = markerSum / float32(count)
	s.opacityAverage = opacitySum / float32(count)
}

func (s *scene) MarkerAverage() float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.markerAverage
}

func (s *scene) OpacityAverage() float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opacityAverage
}

func (s *scene) HasOpaque() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasOpaque
}

func (s *scene) TransparencyMin() float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transparencyMin
}

func (s *scene) BoundingSphere() common.Sphere {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sphereDirty {
		s.sphere = s.mergeSpheres(false)
		s.sphereDirty = false
	}
	return s.sphere
}

func (s *scene) BoundingSphereVisible() common.Sphere {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sphereVisibleDirty {
		s.sphereVisible = s.mergeSpheres(true)
		s.sphereVisibleDirty = false
	}
	return s.sphereVisible
}

// sphereOf returns the boundingSphere value of r, or one computed from its
// positions and instance transforms.
func sphereOf(r renderable.Renderable) common.Sphere {
	v := r.Values()
	if sp, ok := renderable.Get[common.Sphere](v, renderable.ValueBoundingSphere); ok {
		return sp
	}
	a, ok := renderable.Get[renderable.Attribute](v, renderable.AttributePosition)
	if !ok || a.Components < 2 {
		return common.EmptySphere()
	}
	points := a.Data
	if a.Components != 3 {
		points = make([]float32, 0, a.Count()*3)
		for i := 0; i < a.Count(); i++ {
			p := a.Data[i*a.Components:]
			points = append(points, p[0], p[1], 0)
			if a.Components > 2 {
				points[len(points)-1] = p[2]
			}
		}
	}
	base := common.SphereFromPoints(points)
	transforms := renderable.TransformOf(v)
	if len(transforms) == 0 {
		return base
	}
	out := common.EmptySphere()
	for _, m := range transforms {
		out = common.MergeSpheres(out, common.TransformSphere(base, m))
	}
	return out
}

// mergeSpheres computes per-renderable spheres, on the compute pool when the
// scene is large, and merges them serially.
func (s *scene) mergeSpheres(onlyVisible bool) common.Sphere {
	rs := s.renderables
	spheres := make([]common.Sphere, len(rs))
	fill := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			if onlyVisible && !rs[i].State().Visible {
				spheres[i] = common.EmptySphere()
				continue
			}
			spheres[i] = sphereOf(rs[i])
		}
	}

	if len(rs) < s.parallelThreshold || s.computeWorkers < 2 || s.poolStopped {
		fill(0, len(rs))
	} else {
		// A WaitGroup provides the barrier; the pool's workers outlive the call.
		var wg sync.WaitGroup
		chunk := (len(rs) + s.computeWorkers - 1) / s.computeWorkers
		taskID := 0
		for lo := 0; lo < len(rs); lo += chunk {
			hi := min(lo+chunk, len(rs))
			wg.Add(1)
			s.computePool.SubmitTask(worker.Task{
				ID: taskID,
				Do: func() (any, error) {
					defer wg.Done()
					fill(lo, hi)
					return nil, nil
				},
			})
			taskID++
		}
		wg.Wait()
	}

	out := common.EmptySphere()
	for _, sp := range spheres {
		out = common.MergeSpheres(out, sp)
	}
	return out
}

func (s *scene) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, r := range s.renderables {
		if err := r.Reset(); err != nil {
			errs = append(errs, fmt.Errorf("renderable %d: %w", r.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.renderables {
		r.Dispose()
	}
	clear(s.byObject)
	s.renderables, s.primitives, s.volumes, s.visible = nil, nil, nil, nil
	s.queue.clear()
	s.applied = false
	s.sphereDirty = true
	s.sphereVisibleDirty = true
	s.calculateAggregates()
}

func (s *scene) Dispose() {
	s.Clear()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poolStopped {
		return
	}
	s.computePool.Stop()
	s.poolStopped = true
}
