package pipeline

import (
	"container/heap"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

// Graph is an immutable, validated task DAG. It is safe for concurrent reads.
type Graph struct {
	tasks      []task.Task
	index      map[task.Name]int
	deps       [][]int // resolved dependency indices per task, declared order
	dependents [][]int
	order      []int // topological order
}

func invalidf(format string, args ...any) error {
	return ferrors.ValidationError(fmt.Sprintf(format, args...)).Build()
}

// NewGraph validates tasks and their dependencies. It rejects empty and
// duplicate names, self dependencies, mandatory dependencies on tasks not in
// the pipeline, and cycles. Optional dependencies on absent tasks are dropped.
func NewGraph(tasks ...task.Task) (*Graph, error) {
	if len(tasks) == 0 {
		return nil, invalidf("pipeline has no tasks")
	}
	g := &Graph{
		tasks:      append([]task.Task(nil), tasks...),
		index:      make(map[task.Name]int, len(tasks)),
		deps:       make([][]int, len(tasks)),
		dependents: make([][]int, len(tasks)),
	}
	for i, t := range tasks {
		name := t.Name()
		if strings.TrimSpace(string(name)) == "" {
			return nil, invalidf("task at position %d has no name", i)
		}
		if _, dup := g.index[name]; dup {
			return nil, invalidf("duplicate task name: %q", name)
		}
		g.index[name] = i
	}
	for i, t := range tasks {
		seen := map[int]bool{}
		for _, dep := range t.Dependencies() {
			if dep.Name == t.Name() {
				return nil, invalidf("task %q depends on itself", t.Name())
			}
			j, ok := g.index[dep.Name]
			if !ok {
				if dep.Optional {
					continue
				}
				return nil, invalidf("task %q depends on unknown task %q", t.Name(), dep.Name)
			}
			if seen[j] {
				continue
			}
			seen[j] = true
			g.deps[i] = append(g.deps[i], j)
			g.dependents[j] = append(g.dependents[j], i)
		}
	}
	order, err := g.topoOrder()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

// indexHeap pops the lowest declared index first so the topological order
// follows declaration order wherever dependencies allow.
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (g *Graph) topoOrder() ([]int, error) {
	indeg := make([]int, len(g.tasks))
	for i := range g.tasks {
		indeg[i] = len(g.deps[i])
	}
	h := &indexHeap{}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(h, i)
		}
	}
	order := make([]int, 0, len(g.tasks))
	for h.Len() > 0 {
		u := heap.Pop(h).(int)
		order = append(order, u)
		for _, v := range g.dependents[u] {
			indeg[v]--
			if indeg[v] == 0 {
				heap.Push(h, v)
			}
		}
	}
	if len(order) != len(g.tasks) {
		var cyclic []string
		for i, d := range indeg {
			if d > 0 {
				cyclic = append(cyclic, string(g.tasks[i].Name()))
			}
		}
		sort.Strings(cyclic)
		return nil, ferrors.ValidationError("dependency cycle detected").
			WithContext("tasks", strings.Join(cyclic, ", ")).Build()
	}
	return order, nil
}

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.tasks) }

// Task returns a task by name.
func (g *Graph) Task(name task.Name) (task.Task, bool) {
	i, ok := g.index[name]
	if !ok {
		return nil, false
	}
	return g.tasks[i], true
}

// TopologicalOrder returns task names in execution order.
func (g *Graph) TopologicalOrder() []task.Name {
	out := make([]task.Name, len(g.order))
	for i, idx := range g.order {
		out[i] = g.tasks[idx].Name()
	}
	return out
}

// DependenciesOf returns the resolved dependency names of a task.
func (g *Graph) DependenciesOf(name task.Name) []task.Name {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	out := make([]task.Name, len(g.deps[i]))
	for k, j := range g.deps[i] {
		out[k] = g.tasks[j].Name()
	}
	return out
}

// handles resolves the dependency handles of the task at idx. Declared
// dependencies absent from the graph get an unresolved handle.
func (g *Graph) handles(idx int, subjectDir string) map[task.Name]task.Handle {
	t := g.tasks[idx]
	out := make(map[task.Name]task.Handle, len(t.Dependencies()))
	for _, dep := range t.Dependencies() {
		j, ok := g.index[dep.Name]
		if !ok {
			out[dep.Name] = task.Handle{Name: dep.Name}
			continue
		}
		out[dep.Name] = task.Handle{
			Name:     dep.Name,
			Dir:      filepath.Join(subjectDir, task.WorkingDirName(g.tasks[j])),
			Resolved: true,
		}
	}
	return out
}

// mandatory reports whether the dependency edge idx -> dep is non-optional.
func (g *Graph) mandatory(idx, dep int) bool {
	depName := g.tasks[dep].Name()
	for _, d := range g.tasks[idx].Dependencies() {
		if d.Name == depName {
			return !d.Optional
		}
	}
	return false
}
