package taskgraph

import "strings"

// Graph is an immutable, validated set of tasks keyed by name.
// Iteration order is the order tasks were supplied to New.
type Graph struct {
	names []string
	tasks map[string]Task
}

// New validates tasks and builds a Graph. Checks run in order: task names,
// unknown dependencies and self dependencies per task, then a depth-first
// cycle search over the whole set. No graph is returned on failure.
func New(tasks []Task) (*Graph, error) {
	g := &Graph{
		names: make([]string, 0, len(tasks)),
		tasks: make(map[string]Task, len(tasks)),
	}
	for _, t := range tasks {
		if strings.TrimSpace(t.Name) == "" {
			return nil, invalid(ErrInvalidTask, "", "task name cannot be empty")
		}
		if _, dup := g.tasks[t.Name]; dup {
			return nil, invalid(ErrDuplicateTask, t.Name, "task '%s' is defined more than once", t.Name)
		}
		g.names = append(g.names, t.Name)
		g.tasks[t.Name] = t.clone()
	}

	for _, name := range g.names {
		seen := make(map[string]bool)
		for _, dep := range g.tasks[name].DependsOn {
			if _, ok := g.tasks[dep]; !ok {
				return nil, invalid(ErrUnknownDependency, name, "task '%s' depends on unknown task '%s'", name, dep)
			}
			if dep == name {
				return nil, invalid(ErrSelfDependency, name, "task '%s' depends on itself", name)
			}
			if seen[dep] {
				return nil, invalid(ErrInvalidTask, name, "task '%s' lists dependency '%s' more than once", name, dep)
			}
			seen[dep] = true
		}
	}

	if closing, ok := FindCycle(g.names, g.DependenciesOf); ok {
		return nil, invalid(ErrCycle, closing, "dependency cycle detected involving '%s'", closing)
	}
	return g, nil
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.names)
}

// Has reports whether a task with the given name exists.
func (g *Graph) Has(name string) bool {
	if g == nil {
		return false
	}
	_, ok := g.tasks[name]
	return ok
}

// Task looks up a task by name. The returned value is a copy.
func (g *Graph) Task(name string) (Task, bool) {
	if g == nil {
		return Task{}, false
	}
	t, ok := g.tasks[name]
	if !ok {
		return Task{}, false
	}
	return t.clone(), true
}

// Names returns all task names in insertion order.
func (g *Graph) Names() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.names...)
}

// Tasks returns copies of all tasks in insertion order.
func (g *Graph) Tasks() []Task {
	if g == nil {
		return nil
	}
	out := make([]Task, 0, len(g.names))
	for _, name := range g.names {
		out = append(out, g.tasks[name].clone())
	}
	return out
}

// DependenciesOf returns the declared dependencies of a task.
func (g *Graph) DependenciesOf(name string) []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.tasks[name].DependsOn...)
}

// Dependents returns the names of tasks that directly depend on name.
func (g *Graph) Dependents(name string) []string {
	var out []string
	for _, n := range g.Names() {
		for _, dep := range g.tasks[n].DependsOn {
			if dep == name {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// With returns a new graph with t added, or replacing the task of the same name
// in place. The receiver is unchanged.
func (g *Graph) With(t Task) (*Graph, error) {
	tasks := g.Tasks()
	replaced := false
	for i := range tasks {
		if tasks[i].Name == t.Name {
			tasks[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		tasks = append(tasks, t)
	}
	return New(tasks)
}

// Without returns a new graph with the named task removed. Removing a task
// that others depend on fails validation.
func (g *Graph) Without(name string) (*Graph, error) {
	tasks := g.Tasks()
	out := tasks[:0]
	for _, t := range tasks {
		if t.Name != name {
			out = append(out, t)
		}
	}
	return New(out)
}

// FindCycle runs a three-color depth-first search over names, visiting roots
// in the given order. It returns the node that closed the first cycle found.
func FindCycle(names []string, depsOf func(string) []string) (string, bool) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(names))

	var visit func(node string) (string, bool)
	visit = func(node string) (string, bool) {
		color[node] = gray
		for _, dep := range depsOf(node) {
			switch color[dep] {
			case gray:
				return dep, true
			case white:
				if closing, ok := visit(dep); ok {
					return closing, true
				}
			}
		}
		color[node] = black
		return "", false
	}

	for _, name := range names {
		if color[name] != white {
			continue
		}
		if closing, ok := visit(name); ok {
			return closing, true
		}
	}
	return "", false
}
