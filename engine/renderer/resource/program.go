package resource

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
)

// Program is a linked shader program. Programs are shared through the
// registry cache keyed by gpu.ProgramSource.Key.
type Program struct {
	r         *Registry
	id        int
	handle    gpu.Handle
	src       gpu.ProgramSource
	destroyed bool
}

var _ Resource = &Program{}

// Program returns the cached program for src.Key, compiling it on first use.
// Every call must be paired with ReleaseProgram.
//
// Parameters:
//   - src: the program source
//
// Returns:
//   - *Program: the shared program
//   - error: error if compilation failed
func (r *Registry) Program(src gpu.ProgramSource) (*Program, error) {
	if e, ok := r.programs[src.Key]; ok {
		e.refs++
		return e.program, nil
	}
	p := &Program{r: r, id: NextID(), src: src}
	if err := p.create(); err != nil {
		return nil, err
	}
	r.track(p)
	r.programs[src.Key] = &programEntry{program: p, refs: 1}
	return p, nil
}

// ReleaseProgram drops one reference to p and destroys it at zero.
func (r *Registry) ReleaseProgram(p *Program) {
	e, ok := r.programs[p.src.Key]
	if !ok || e.program != p {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(r.programs, p.src.Key)
		p.Destroy()
	}
}

// ProgramRefs returns the reference count of the cached program for key.
func (r *Registry) ProgramRefs(key string) int {
	if e, ok := r.programs[key]; ok {
		return e.refs
	}
	return 0
}

func (p *Program) create() error {
	h, err := p.r.b.CreateProgram(p.src)
	if err != nil {
		return fmt.Errorf("create program %q: %w", p.src.Key, err)
	}
	p.handle = h
	return nil
}

func (p *Program) ID() int { return p.id }
func (p *Program) Kind() Kind { return KindProgram }
func (p *Program) Handle() gpu.Handle { return p.handle }
func (p *Program) Key() string { return p.src.Key }

// AttributeLocation returns the location of the named attribute, or -1.
func (p *Program) AttributeLocation(name string) int {
	return slices.Index(p.src.Attributes, name)
}

// Use makes the program current.
func (p *Program) Use() {
	p.r.b.UseProgram(p.handle)
}

// SetUniform sets a uniform on the program.
func (p *Program) SetUniform(name string, value any) error {
	if err := p.r.b.Uniform(p.handle, name, value); err != nil {
		return fmt.Errorf("program %q: %w", p.src.Key, err)
	}
	return nil
}

func (p *Program) Reset() error {
	if p.destroyed {
		return nil
	}
	return p.create()
}

// Destroy deletes the program regardless of outstanding references.
func (p *Program) Destroy() {
	if p.destroyed {
		return
	}
	if e, ok := p.r.programs[p.src.Key]; ok && e.program == p {
		delete(p.r.programs, p.src.Key)
	}
	p.r.b.DeleteProgram(p.handle)
	p.r.untrack(p)
	p.destroyed = true
}
