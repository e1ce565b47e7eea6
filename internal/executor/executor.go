// Package executor runs parsed tool calls against the tool registry.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashutoshrp06/toolloop/internal/observability"
	"github.com/ashutoshrp06/toolloop/internal/tools"
	"github.com/ashutoshrp06/toolloop/pkg/models"
	"go.uber.org/zap"
)

// Executor validates tool calls and invokes the matching tool. Every outcome,
// including a panicking tool, is returned as a ToolResult.
type Executor struct {
	registry *tools.Registry
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewExecutor(registry *tools.Registry, logger *zap.Logger, metrics *observability.Metrics) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry: registry,
		logger:   logger,
		metrics:  metrics,
	}
}

// Execute runs call and reports the result. The tool is only invoked when
// every argument passes validation.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	start := time.Now()
	result := e.execute(ctx, call)
	result.ToolCallID = call.ID
	result.ToolName = call.Name
	result.Duration = time.Since(start)

	e.metrics.RecordToolCall(call.Name, string(result.Status), string(result.Kind), result.Duration)
	if result.Success() {
		e.logger.Info("Tool executed",
			zap.String("tool", call.Name),
			zap.String("tool_call_id", call.ID),
			zap.Duration("duration", result.Duration))
	} else {
		e.logger.Warn("Tool failed",
			zap.String("tool", call.Name),
			zap.String("tool_call_id", call.ID),
			zap.String("kind", string(result.Kind)),
			zap.String("error", result.Error))
	}
	return result
}

func (e *Executor) execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	tool, exists := e.registry.Get(call.Name)
	if !exists {
		return failure(models.ErrUnknownTool, fmt.Errorf("%w: %s", tools.ErrUnknownTool, call.Name))
	}

	if call.Partial {
		return failure(models.ErrMissingOrInvalidArgument,
			fmt.Errorf("tool call for %s is marked partial; send the complete arguments", call.Name))
	}

	if err := tools.CheckArguments(tool.Parameters(), call.Arguments); err != nil {
		return failure(models.ErrMissingOrInvalidArgument, err)
	}

	args := tools.ApplyDefaults(tool.Parameters(), call.Arguments)

	e.logger.Debug("Executing tool",
		zap.String("tool", call.Name),
		zap.Any("args", args))

	out, err := invoke(ctx, tool, args)
	if err != nil {
		return failure(models.ErrToolExecution, err)
	}
	return models.ToolResult{
		Status: models.ToolSuccess,
		Output: out.Text,
		Image:  out.Image,
	}
}

// invoke calls the tool, converting a panic into an error.
func invoke(ctx context.Context, tool tools.Tool, args map[string]any) (out tools.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return tools.Output{}, err
	}
	return tool.Execute(ctx, args)
}

func failure(kind models.ErrorKind, err error) models.ToolResult {
	var argErr *tools.ArgumentError
	if errors.As(err, &argErr) {
		kind = models.ErrMissingOrInvalidArgument
	}
	return models.ToolResult{
		Status: models.ToolError,
		Kind:   kind,
		Error:  err.Error(),
	}
}
