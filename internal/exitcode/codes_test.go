package exitcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nc9/taskmux/internal/orchestrator"
	"github.com/nc9/taskmux/internal/taskgraph"
)

func TestError_Error(t *testing.T) {
	assert.Equal(t, "task 'api' not found in config", TaskNotFound("api").Error())
	assert.Equal(t, "starting: boom", Wrap(ErrGeneral, "starting", errors.New("boom")).Error())
	assert.Equal(t, "bad toml", Config(errors.New("bad toml")).Error())
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(ErrTimeout, "waiting", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrTimeout, Code(err))
}

func TestCode(t *testing.T) {
	_, cycle := taskgraph.New([]taskgraph.Task{
		{Name: "a", Command: "x", DependsOn: []string{"b"}},
		{Name: "b", Command: "y", DependsOn: []string{"a"}},
	})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, Success},
		{"plain", errors.New("boom"), ErrGeneral},
		{"coded", New(ErrUsage, "bad flag"), ErrUsage},
		{"wrapped coded", fmt.Errorf("outer: %w", TaskNotFound("api")), ErrTaskNotFound},
		{"task not found", fmt.Errorf("x: %w", orchestrator.ErrTaskNotFound), ErrTaskNotFound},
		{"no session", orchestrator.ErrNoSession, ErrSessionNotFound},
		{"not running", orchestrator.ErrNotRunning, ErrNotRunning},
		{"already running", orchestrator.ErrAlreadyRunning, ErrAlreadyRunning},
		{"session exists", orchestrator.ErrSessionExists, ErrAlreadyRunning},
		{"hook failed", orchestrator.ErrHookFailed, ErrHookFailed},
		{"no auto-start", orchestrator.ErrNoAutoStartTasks, ErrConfig},
		{"cycle", cycle, ErrConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestIs(t *testing.T) {
	assert.True(t, Is(Timeout("wait"), ErrTimeout))
	assert.False(t, Is(errors.New("x"), ErrTimeout))
}
