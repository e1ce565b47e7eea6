// Package agent implements the tool-calling loop: ask the model, run the tool
// it picks, feed the result back, and stop on a final answer or the turn limit.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashutoshrp06/toolloop/internal/config"
	"github.com/ashutoshrp06/toolloop/internal/executor"
	"github.com/ashutoshrp06/toolloop/internal/llm"
	"github.com/ashutoshrp06/toolloop/internal/observability"
	"github.com/ashutoshrp06/toolloop/internal/tools"
	"github.com/ashutoshrp06/toolloop/internal/validator"
	"github.com/ashutoshrp06/toolloop/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrMaxTurnsExceeded is set on a RunResult that hit the turn limit.
var ErrMaxTurnsExceeded = errors.New("maximum turns exceeded")

// Observer receives progress events during a run.
type Observer func(models.AgentEvent)

// Sink receives every finished run.
type Sink interface {
	Record(ctx context.Context, res *RunResult) error
}

// RunResult is the outcome of one Run.
type RunResult struct {
	RunID          string              `json:"run_id" yaml:"run_id"`
	FinalText      string              `json:"final_text" yaml:"final_text"`
	AnnotatedImage string              `json:"annotated_image,omitempty" yaml:"annotated_image,omitempty"`
	Status         models.RunStatus    `json:"status" yaml:"status"`
	Turns          int                 `json:"turns" yaml:"turns"`
	Truncated      bool                `json:"truncated" yaml:"truncated"`
	Conversation   []models.Message    `json:"conversation" yaml:"conversation"`
	ToolResults    []models.ToolResult `json:"tool_results,omitempty" yaml:"tool_results,omitempty"`
	Err            error               `json:"-" yaml:"-"`
	StartedAt      time.Time           `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time           `json:"finished_at" yaml:"finished_at"`
}

// Error returns the run error as text, or "" for a successful run.
func (r *RunResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Agent runs the loop. It holds no per-run state and may be shared by
// concurrent runs.
type Agent struct {
	cfg          *config.Config
	llmClient    *llm.Client
	registry     *tools.Registry
	executor     *executor.Executor
	parser       *validator.OutputValidator
	systemPrompt string
	observer     Observer
	sink         Sink
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// Config holds agent dependencies.
type Config struct {
	AppConfig *config.Config
	LLM       *llm.Client
	Registry  *tools.Registry
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	// Observer, when set, receives events from every run.
	Observer Observer
	// Transcript, when set, is handed every finished run.
	Transcript Sink
}

// New creates an agent and renders its system prompt.
func New(cfg Config) (*Agent, error) {
	if cfg.LLM == nil {
		return nil, errors.New("agent: LLM client is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("agent: tool registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.AppConfig == nil {
		cfg.AppConfig = config.DefaultConfig()
	}
	if cfg.AppConfig.Agent.MaxTurns <= 0 {
		return nil, fmt.Errorf("agent: max_turns must be positive, got %d", cfg.AppConfig.Agent.MaxTurns)
	}

	prompt, err := llm.BuildSystemPrompt(cfg.Registry.ListTools(), cfg.AppConfig.Agent.SystemPromptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build system prompt: %w", err)
	}

	return &Agent{
		cfg:          cfg.AppConfig,
		llmClient:    cfg.LLM,
		registry:     cfg.Registry,
		executor:     executor.NewExecutor(cfg.Registry, cfg.Logger, cfg.Metrics),
		parser:       validator.NewOutputValidator(),
		systemPrompt: prompt,
		observer:     cfg.Observer,
		sink:         cfg.Transcript,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}, nil
}

// RunOption customizes a single run.
type RunOption func(*runOptions)

type runOptions struct {
	observers []Observer
}

// WithObserver adds an observer for this run only.
func WithObserver(o Observer) RunOption {
	return func(ro *runOptions) {
		if o != nil {
			ro.observers = append(ro.observers, o)
		}
	}
}

// run is the mutable state of one Run call.
type run struct {
	conv      *models.Conversation
	res       *RunResult
	observers []Observer
}

func (r *run) emit(ev models.AgentEvent) {
	ev.Turn = r.res.Turns
	if ev.Status == "" {
		ev.Status = r.res.Status
	}
	for _, o := range r.observers {
		o(ev)
	}
}

// Run drives one conversation to a terminal status. initial must hold at
// least one message. Run failures are reported through RunResult.Status and
// RunResult.Err; the returned error is reserved for invalid input.
func (a *Agent) Run(ctx context.Context, initial []models.Message, opts ...RunOption) (*RunResult, error) {
	if len(initial) == 0 {
		return nil, errors.New("agent: at least one initial message is required")
	}

	ro := runOptions{}
	if a.observer != nil {
		ro.observers = append(ro.observers, a.observer)
	}
	for _, opt := range opts {
		opt(&ro)
	}

	seed := append([]models.Message{{Role: models.RoleSystem, Content: a.systemPrompt}}, initial...)
	conv, err := models.NewConversation(seed...)
	if err != nil {
		return nil, fmt.Errorf("invalid initial messages: %w", err)
	}

	r := &run{
		conv: conv,
		res: &RunResult{
			RunID:     uuid.NewString(),
			Status:    models.RunRunning,
			StartedAt: time.Now(),
		},
		observers: ro.observers,
	}

	logger := a.logger.With(zap.String("run_id", r.res.RunID))
	logger.Info("Run started", zap.Int("initial_messages", len(initial)))

	a.loop(ctx, r, logger)
	a.finish(ctx, r, logger)
	return r.res, nil
}

func (a *Agent) loop(ctx context.Context, r *run, logger *zap.Logger) {
	maxTurns := a.cfg.Agent.MaxTurns

	for r.res.Turns < maxTurns {
		if err := ctx.Err(); err != nil {
			a.fail(r, err)
			return
		}

		r.res.Turns++
		r.emit(models.AgentEvent{State: models.StateThinking})

		reply, err := a.llmClient.Generate(ctx, llm.Request{
			System:      a.systemPrompt,
			Messages:    r.conv.Messages(),
			Temperature: a.cfg.Provider.Temperature,
			MaxTokens:   a.cfg.Provider.MaxTokens,
		})
		if err != nil {
			logger.Warn("Model call failed", zap.Int("turn", r.res.Turns), zap.Error(err))
			a.fail(r, fmt.Errorf("model call failed: %w", err))
			return
		}

		outcome := a.parser.Parse(reply)
		a.metrics.RecordParse(outcome.Kind.String())
		logger.Debug("Parsed reply",
			zap.Int("turn", r.res.Turns),
			zap.Stringer("outcome", outcome.Kind),
			zap.Int("ignored", outcome.Ignored))

		switch outcome.Kind {
		case validator.FinalAnswer:
			if err := r.conv.Append(models.Message{Role: models.RoleAssistant, Content: reply}); err != nil {
				a.fail(r, err)
				return
			}
			r.res.FinalText = outcome.Text
			r.res.Status = models.RunDone
			return

		case validator.ToolCall:
			if !a.handleToolCall(ctx, r, reply, *outcome.Call, logger) {
				return
			}

		case validator.Unparseable:
			logger.Warn("Unparseable reply", zap.Int("turn", r.res.Turns), zap.String("reason", outcome.Reason))
			corrective := llm.CorrectivePrompt(a.cfg.Agent.CorrectivePrompt, outcome.Reason)
			if err := r.conv.Append(models.Message{Role: models.RoleAssistant, Content: reply}); err != nil {
				a.fail(r, err)
				return
			}
			if err := r.conv.Append(models.Message{Role: models.RoleUser, Content: corrective}); err != nil {
				a.fail(r, err)
				return
			}
			r.emit(models.AgentEvent{State: models.StateThinking, Message: "reply could not be parsed, asking again"})
		}

		if err := ctx.Err(); err != nil {
			a.fail(r, err)
			return
		}
	}

	r.res.Status = models.RunMaxTurnsExceeded
	r.res.Truncated = true
	r.res.Err = ErrMaxTurnsExceeded
	r.res.FinalText = bestPartial(r, fmt.Sprintf("Stopped after %d turns without a final answer.", maxTurns))
}

// newToolCallID returns a fresh tool_call_id. The whole UUID is kept: a
// reused ID is rejected by the conversation and would fail the run.
func newToolCallID() string {
	return "call_" + uuid.NewString()
}

// handleToolCall executes call and appends both halves of the exchange. It
// reports whether the loop should continue.
func (a *Agent) handleToolCall(ctx context.Context, r *run, reply string, call models.ToolCall, logger *zap.Logger) bool {
	call.ID = newToolCallID()

	if err := r.conv.Append(models.Message{Role: models.RoleAssistant, Content: reply, ToolCall: &call}); err != nil {
		a.fail(r, err)
		return false
	}

	r.res.Status = models.RunToolPending
	r.emit(models.AgentEvent{State: models.StateToolCall, ToolCall: &call})
	r.emit(models.AgentEvent{State: models.StateToolExecuting, ToolCall: &call})

	result := a.executor.Execute(ctx, call)
	if err := r.conv.Append(result.Message()); err != nil {
		a.fail(r, err)
		return false
	}

	r.res.ToolResults = append(r.res.ToolResults, result)
	if result.Success() && result.Image != "" {
		r.res.AnnotatedImage = result.Image
	}
	r.res.Status = models.RunRunning

	logger.Info("Tool finished",
		zap.String("tool", call.Name),
		zap.String("tool_call_id", call.ID),
		zap.String("status", string(result.Status)),
		zap.String("error_kind", string(result.Kind)))

	r.emit(models.AgentEvent{State: models.StateToolExecuting, ToolCall: &call, ToolResult: &result, Image: result.Image})
	return true
}

func (a *Agent) fail(r *run, err error) {
	r.res.Status = models.RunFailed
	r.res.Err = err
	r.res.FinalText = bestPartial(r, "The run failed before producing an answer: "+err.Error())
}

func (a *Agent) finish(ctx context.Context, r *run, logger *zap.Logger) {
	res := r.res
	res.FinishedAt = time.Now()
	res.Conversation = r.conv.Messages()

	duration := res.FinishedAt.Sub(res.StartedAt)
	a.metrics.RecordRun(string(res.Status), res.Turns, duration)

	fields := []zap.Field{
		zap.String("status", string(res.Status)),
		zap.Int("turns", res.Turns),
		zap.Duration("duration", duration),
	}
	if res.Err != nil {
		logger.Warn("Run finished", append(fields, zap.Error(res.Err))...)
	} else {
		logger.Info("Run finished", fields...)
	}

	final := models.AgentEvent{
		State:       models.StateResponding,
		FinalAnswer: res.FinalText,
		Image:       res.AnnotatedImage,
		Error:       res.Err,
	}
	if res.Status != models.RunDone {
		final.State = models.StateError
	}
	r.emit(final)

	if a.sink != nil {
		if err := a.sink.Record(context.WithoutCancel(ctx), res); err != nil {
			logger.Warn("Failed to record transcript", zap.Error(err))
		}
	}
}

// bestPartial returns the most useful text produced so far: the latest plain
// assistant reply, else the latest successful tool output, else fallback.
func bestPartial(r *run, fallback string) string {
	msgs := r.conv.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if msg.Role == models.RoleAssistant && msg.ToolCall == nil && strings.TrimSpace(msg.Content) != "" {
			return msg.Content
		}
	}
	for i := len(r.res.ToolResults) - 1; i >= 0; i-- {
		tr := r.res.ToolResults[i]
		if tr.Success() {
			return fmt.Sprintf("%s\n\nLast successful tool output (%s): %s", fallback, tr.ToolName, tr.Output)
		}
	}
	return fallback
}

// ListTools returns the tool catalogue.
func (a *Agent) ListTools() []tools.ToolInfo {
	return a.registry.ListTools()
}

// SystemPrompt returns the rendered system prompt.
func (a *Agent) SystemPrompt() string {
	return a.systemPrompt
}

// LLMInfo returns information about the configured model.
func (a *Agent) LLMInfo() string {
	return fmt.Sprintf("%s @ %s", a.cfg.Provider.Model, a.llmClient.Name())
}
