package testsupport

import (
	"context"
	"sync"

	"github.com/krancour/secureimage/internal/tools"
)

// ToolHandler simulates a single external tool.
type ToolHandler func(cmd tools.Command) (tools.Result, error)

// ToolRunner is a tools.Runner that dispatches invocations to handlers keyed
// by executable name and records every invocation.
type ToolRunner struct {
	mu       sync.Mutex
	handlers map[string]ToolHandler
	calls    []tools.Command
}

// NewToolRunner returns a ToolRunner with no handlers.
func NewToolRunner() *ToolRunner {
	return &ToolRunner{
		handlers: map[string]ToolHandler{},
	}
}

// Handle registers the handler for the named tool.
func (t *ToolRunner) Handle(name string, handler ToolHandler) *ToolRunner {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[name] = handler
	return t
}

// Calls returns every recorded invocation.
func (t *ToolRunner) Calls() []tools.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	calls := make([]tools.Command, len(t.calls))
	copy(calls, t.calls)
	return calls
}

// CallsTo returns the recorded invocations of the named tool.
func (t *ToolRunner) CallsTo(name string) []tools.Command {
	calls := []tools.Command{}
	for _, call := range t.Calls() {
		if call.Name == name {
			calls = append(calls, call)
		}
	}
	return calls
}

func (t *ToolRunner) Run(
	ctx context.Context,
	cmd tools.Command,
) (tools.Result, error) {
	t.mu.Lock()
	t.calls = append(t.calls, cmd)
	handler, ok := t.handlers[cmd.Name]
	t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return tools.Result{}, err
	}
	if !ok {
		return tools.Result{}, &tools.ExecutionError{
			Tool:     cmd.Name,
			ExitCode: 127,
			Stderr:   cmd.Name + ": command not found",
		}
	}
	return handler(cmd)
}
