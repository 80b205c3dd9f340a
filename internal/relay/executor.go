package relay

import (
	"context"

	"github.com/codefionn/livecast/internal/upstream"
)

// DefaultToolResult is what StubExecutor returns when no result is set.
const DefaultToolResult = "This is a test tool result."

// Executor runs one function call requested by the upstream model.
// Implementations must return promptly once ctx is done.
type Executor interface {
	Execute(ctx context.Context, call upstream.FunctionCall) (any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, call upstream.FunctionCall) (any, error)

// Execute calls f(ctx, call).
func (f ExecutorFunc) Execute(ctx context.Context, call upstream.FunctionCall) (any, error) {
	return f(ctx, call)
}

// StubExecutor answers every call with a fixed result.
type StubExecutor struct {
	Result any
}

// Execute returns s.Result, or DefaultToolResult when it is nil. It fails
// only if ctx is already done.
func (s StubExecutor) Execute(ctx context.Context, call upstream.FunctionCall) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Result == nil {
		return DefaultToolResult, nil
	}
	return s.Result, nil
}

// responseMap shapes an executor result as a function response payload.
func responseMap(result any) map[string]any {
	if m, ok := result.(map[string]any); ok {
		return m
	}
	return map[string]any{"output": result}
}
