// Package deps maintains the directed acyclic graph induced by work-item
// dependencies within one project. Topological operations use Kahn's
// algorithm; cascading failure uses breadth-first reachability over the
// reverse adjacency.
package deps

import (
	"sort"

	"obra/internal/logging"
	"obra/internal/types"
)

// DefaultMaxDepth bounds dependency chains when no limit is configured.
const DefaultMaxDepth = 10

// Resolver is an in-memory view of one project's dependency graph. It is
// rebuilt from StateManager data; it holds ids, never entity pointers.
type Resolver struct {
	items    map[int64]*types.WorkItem
	edges    map[int64][]int64 // item -> its dependencies
	reverse  map[int64][]int64 // dependency -> its dependents
	maxDepth int
}

// NewResolver builds a resolver over a project's work items.
func NewResolver(items []*types.WorkItem, maxDepth int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	r := &Resolver{
		items:    make(map[int64]*types.WorkItem, len(items)),
		edges:    make(map[int64][]int64, len(items)),
		reverse:  make(map[int64][]int64),
		maxDepth: maxDepth,
	}
	for _, it := range items {
		r.items[it.ID] = it
		seen := make(map[int64]bool, len(it.DependencyIDs))
		for _, dep := range it.DependencyIDs {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			r.edges[it.ID] = append(r.edges[it.ID], dep)
			r.reverse[dep] = append(r.reverse[dep], it.ID)
		}
	}
	return r
}

// AddEdge records a trial dependency from -> to without invariant checks.
// Callers validate with Validate and ChainDepth afterwards.
func (r *Resolver) AddEdge(from, to int64) {
	for _, dep := range r.edges[from] {
		if dep == to {
			return
		}
	}
	r.edges[from] = append(r.edges[from], to)
	r.reverse[to] = append(r.reverse[to], from)
}

// ReadySet returns the topological frontier: non-deleted pending items
// whose dependencies are all completed, ordered by priority descending
// then creation time ascending.
func (r *Resolver) ReadySet() []int64 {
	var ready []*types.WorkItem
	for id, it := range r.items {
		if it.Deleted || it.Status != types.StatusPending {
			continue
		}
		satisfied := true
		for _, dep := range r.edges[id] {
			depItem, ok := r.items[dep]
			if !ok || depItem.Status != types.StatusCompleted {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, it)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		if !ready[i].CreatedAt.Equal(ready[j].CreatedAt) {
			return ready[i].CreatedAt.Before(ready[j].CreatedAt)
		}
		return ready[i].ID < ready[j].ID
	})

	ids := make([]int64, len(ready))
	for i, it := range ready {
		ids[i] = it.ID
	}
	return ids
}

// Validate runs a full cycle check with Kahn's algorithm. If a cycle
// exists it returns the offending cycle as an ordered id list.
func (r *Resolver) Validate() ([]int64, error) {
	indegree := make(map[int64]int, len(r.items))
	for id := range r.items {
		indegree[id] = 0
	}
	for id, deps := range r.edges {
		if _, ok := r.items[id]; !ok {
			continue
		}
		for _, dep := range deps {
			if _, ok := r.items[dep]; ok {
				indegree[id]++
			}
		}
	}

	queue := make([]int64, 0, len(r.items))
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, dependent := range r.reverse[id] {
			if _, ok := r.items[dependent]; !ok {
				continue
			}
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if processed == len(r.items) {
		return nil, nil
	}

	cycle := r.findCycle(indegree)
	logging.Get(logging.CategoryDeps).Warn("Dependency cycle detected: %v", cycle)
	return cycle, types.Errorf(types.KindWouldCycle, "deps.Validate",
		"dependency cycle: %v", cycle)
}

// findCycle walks the residual graph (nodes with nonzero indegree after
// Kahn) until an id repeats.
func (r *Resolver) findCycle(indegree map[int64]int) []int64 {
	var start int64 = -1
	for id, deg := range indegree {
		if deg > 0 {
			start = id
			break
		}
	}
	if start < 0 {
		return nil
	}

	visited := make(map[int64]int) // id -> position in path
	var path []int64
	cur := start
	for {
		if pos, seen := visited[cur]; seen {
			return append(path[pos:], cur)
		}
		visited[cur] = len(path)
		path = append(path, cur)

		next := int64(-1)
		for _, dep := range r.edges[cur] {
			if indegree[dep] > 0 {
				next = dep
				break
			}
		}
		if next < 0 {
			return path
		}
		cur = next
	}
}

// ChainDepth returns the longest dependency chain starting at id. A
// depth beyond the configured maximum is a dependency-too-deep error.
func (r *Resolver) ChainDepth(id int64) (int, error) {
	memo := make(map[int64]int)
	depth, ok := r.depthFrom(id, memo, make(map[int64]bool))
	if !ok {
		return 0, types.Errorf(types.KindWouldCycle, "deps.ChainDepth",
			"cycle reachable from %d", id)
	}
	if depth > r.maxDepth {
		return depth, types.Errorf(types.KindDependencyTooDeep, "deps.ChainDepth",
			"dependency chain depth %d exceeds limit %d", depth, r.maxDepth)
	}
	return depth, nil
}

func (r *Resolver) depthFrom(id int64, memo map[int64]int, onPath map[int64]bool) (int, bool) {
	if d, ok := memo[id]; ok {
		return d, true
	}
	if onPath[id] {
		return 0, false
	}
	onPath[id] = true
	defer delete(onPath, id)

	max := 0
	for _, dep := range r.edges[id] {
		d, ok := r.depthFrom(dep, memo, onPath)
		if !ok {
			return 0, false
		}
		if d+1 > max {
			max = d + 1
		}
	}
	memo[id] = max
	return max, true
}

// Cascade returns the ids transitively dependent on failedID, breadth
// first. These are the items a failure blocks.
func (r *Resolver) Cascade(failedID int64) []int64 {
	visited := map[int64]bool{failedID: true}
	queue := append([]int64(nil), r.reverse[failedID]...)
	var blocked []int64
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		blocked = append(blocked, id)
		queue = append(queue, r.reverse[id]...)
	}
	sort.Slice(blocked, func(i, j int) bool { return blocked[i] < blocked[j] })
	return blocked
}
