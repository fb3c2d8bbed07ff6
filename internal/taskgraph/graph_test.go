package taskgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func task(name string, deps ...string) Task {
	t := NewTask(name, "run-"+name)
	t.DependsOn = deps
	return t
}

func TestNew_PreservesInsertionOrder(t *testing.T) {
	g, err := New([]Task{task("web", "api"), task("db"), task("api", "db")})
	require.NoError(t, err)
	assert.Equal(t, []string{"web", "db", "api"}, g.Names())
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, []string{"db"}, g.DependenciesOf("api"))
}

func TestNew_UnknownDependency(t *testing.T) {
	g, err := New([]Task{task("api", "db")})
	require.Error(t, err)
	assert.Nil(t, g)
	assert.True(t, errors.Is(err, ErrUnknownDependency))
	assert.Equal(t, "task 'api' depends on unknown task 'db'", err.Error())

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "api", verr.Task)
}

func TestNew_SelfDependency(t *testing.T) {
	g, err := New([]Task{task("a", "a")})
	require.Error(t, err)
	assert.Nil(t, g)
	assert.True(t, errors.Is(err, ErrSelfDependency))
	assert.Contains(t, err.Error(), "depends on itself")
}

func TestNew_TwoNodeCycle(t *testing.T) {
	g, err := New([]Task{task("a", "b"), task("b", "a")})
	require.Error(t, err)
	assert.Nil(t, g)
	assert.True(t, errors.Is(err, ErrCycle))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, []string{"a", "b"}, verr.Task)
	assert.Contains(t, err.Error(), "cycle")
}

func TestNew_ThreeNodeCycle(t *testing.T) {
	_, err := New([]Task{task("a", "c"), task("b", "a"), task("c", "b")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycle))
}

func TestNew_CycleReportsClosingNode(t *testing.T) {
	// DFS from x: x -> y -> z -> y closes on y.
	_, err := New([]Task{task("x", "y"), task("y", "z"), task("z", "y")})
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "y", verr.Task)
	assert.Equal(t, "dependency cycle detected involving 'y'", verr.Error())
}

func TestNew_DuplicateTask(t *testing.T) {
	_, err := New([]Task{task("a"), task("a")})
	assert.True(t, errors.Is(err, ErrDuplicateTask))
}

func TestNew_DuplicateDependencyEntry(t *testing.T) {
	_, err := New([]Task{task("a"), task("b", "a", "a")})
	assert.True(t, errors.Is(err, ErrInvalidTask))
}

func TestNew_EmptyName(t *testing.T) {
	_, err := New([]Task{task("")})
	assert.True(t, errors.Is(err, ErrInvalidTask))
}

func TestGraph_TaskReturnsCopy(t *testing.T) {
	g, err := New([]Task{task("db"), task("api", "db")})
	require.NoError(t, err)

	api, ok := g.Task("api")
	require.True(t, ok)
	api.DependsOn[0] = "mutated"

	again, _ := g.Task("api")
	assert.Equal(t, []string{"db"}, again.DependsOn)

	_, ok = g.Task("missing")
	assert.False(t, ok)
}

func TestGraph_WithAndWithoutLeaveReceiverUntouched(t *testing.T) {
	g, err := New([]Task{task("db"), task("api", "db")})
	require.NoError(t, err)

	added, err := g.With(task("web", "api"))
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "api", "web"}, added.Names())
	assert.Equal(t, []string{"db", "api"}, g.Names())

	replaced, err := added.With(NewTask("api", "new-cmd"))
	require.NoError(t, err)
	api, _ := replaced.Task("api")
	assert.Equal(t, "new-cmd", api.Command)
	assert.Equal(t, []string{"db", "api", "web"}, replaced.Names())

	_, err = added.Without("db")
	assert.True(t, errors.Is(err, ErrUnknownDependency), "removing a depended-on task must fail")

	trimmed, err := added.Without("web")
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "api"}, trimmed.Names())

	_, err = g.With(task("db", "api"))
	assert.True(t, errors.Is(err, ErrCycle))
}

func TestGraph_Dependents(t *testing.T) {
	g, err := New([]Task{task("db"), task("api", "db"), task("worker", "db")})
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "worker"}, g.Dependents("db"))
	assert.Empty(t, g.Dependents("api"))
}

func TestTask_DependencyWait(t *testing.T) {
	tk := NewTask("db", "postgres")
	assert.Equal(t, DefaultHealthInterval*DefaultHealthRetries, tk.DependencyWait())

	tk.HealthInterval = 0
	tk.HealthRetries = 0
	assert.Equal(t, DefaultHealthInterval*DefaultHealthRetries, tk.DependencyWait())
}

func TestFindCycle_Acyclic(t *testing.T) {
	deps := map[string][]string{"a": {"b"}, "b": {"c"}, "c": nil}
	_, found := FindCycle([]string{"a", "b", "c"}, func(n string) []string { return deps[n] })
	assert.False(t, found)
}
