package scene

import (
	"slices"

	"github.com/Carmen-Shannon/oxy-render/engine/renderable"
)

// commitQueue holds pending additions and removals. Queuing an object
// cancels a pending opposite operation on it; duplicates are dropped.
type commitQueue struct {
	adds      []*renderable.Object
	removes   []*renderable.Object
	addSet    map[*renderable.Object]struct{}
	removeSet map[*renderable.Object]struct{}
}

func newCommitQueue() *commitQueue {
	return &commitQueue{
		addSet:    make(map[*renderable.Object]struct{}),
		removeSet: make(map[*renderable.Object]struct{}),
	}
}

func (q *commitQueue) add(o *renderable.Object) {
	if _, ok := q.removeSet[o]; ok {
		delete(q.removeSet, o)
		q.removes = slices.DeleteFunc(q.removes, func(x *renderable.Object) bool { return x == o })
	}
	if _, ok := q.addSet[o]; ok {
		return
	}
	q.addSet[o] = struct{}{}
	q.adds = append(q.adds, o)
}

func (q *commitQueue) remove(o *renderable.Object) {
	if _, ok := q.addSet[o]; ok {
		delete(q.addSet, o)
		q.adds = slices.DeleteFunc(q.adds, func(x *renderable.Object) bool { return x == o })
	}
	if _, ok := q.removeSet[o]; ok {
		return
	}
	q.removeSet[o] = struct{}{}
	q.removes = append(q.removes, o)
}

// next pops the next operation. Removals drain before additions.
//
// Returns:
//   - *renderable.Object: the object, nil when the queue is empty
//   - bool: true for an addition
func (q *commitQueue) next() (*renderable.Object, bool) {
	if len(q.removes) > 0 {
		o := q.removes[0]
		q.removes = q.removes[1:]
		delete(q.removeSet, o)
		return o, false
	}
	if len(q.adds) > 0 {
		o := q.adds[0]
		q.adds = q.adds[1:]
		delete(q.addSet, o)
		return o, true
	}
	return nil, false
}

func (q *commitQueue) len() int {
	return len(q.adds) + len(q.removes)
}

func (q *commitQueue) clear() {
	q.adds, q.removes = nil, nil
	clear(q.addSet)
	clear(q.removeSet)
}
