package agent

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashutoshrp06/toolloop/internal/config"
	"github.com/ashutoshrp06/toolloop/internal/functions"
	"github.com/ashutoshrp06/toolloop/internal/imaging"
	"github.com/ashutoshrp06/toolloop/internal/llm"
	"github.com/ashutoshrp06/toolloop/internal/llm/mock"
	"github.com/ashutoshrp06/toolloop/internal/tools"
	"github.com/ashutoshrp06/toolloop/internal/vision"
	"github.com/ashutoshrp06/toolloop/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLocator struct {
	loc vision.Location
}

func (s stubLocator) Locate(ctx context.Context, imagePath, description string) (vision.Location, error) {
	return s.loc, nil
}

func toolUse(t *testing.T, name string, params map[string]any) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"type":      "tool_use",
		"tool_uses": []map[string]any{{"name": name, "params": params}},
	})
	require.NoError(t, err)
	return string(data)
}

func textReply(text string) string {
	data, _ := json.Marshal(map[string]string{"type": "text", "text": text})
	return string(data)
}

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dog.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 64, 48))))
	return path
}

func newClient(p llm.Provider, retries int) *llm.Client {
	return llm.NewClient(p, llm.ClientConfig{
		Timeout:         time.Second,
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})
}

func boxRegistry(t *testing.T, loc vision.Location) *tools.Registry {
	t.Helper()
	drawer, err := imaging.NewFileDrawer(imaging.Config{OutputDir: t.TempDir()})
	require.NoError(t, err)
	reg, err := functions.NewRegistry(functions.Deps{
		Locator:     stubLocator{loc: loc},
		Drawer:      drawer,
		Coordinates: vision.Normalized,
	})
	require.NoError(t, err)
	return reg
}

func newAgent(t *testing.T, p llm.Provider, reg *tools.Registry, maxTurns int, extra ...func(*Config)) *Agent {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Agent.MaxTurns = maxTurns
	ac := Config{AppConfig: cfg, LLM: newClient(p, 0), Registry: reg}
	for _, fn := range extra {
		fn(&ac)
	}
	a, err := New(ac)
	require.NoError(t, err)
	return a
}

func userMsg(text string) []models.Message {
	return []models.Message{{Role: models.RoleUser, Content: text}}
}

// assertPaired checks that every tool message answers exactly one earlier call.
func assertPaired(t *testing.T, msgs []models.Message) {
	t.Helper()
	issued := map[string]int{}
	for _, m := range msgs {
		switch {
		case m.Role == models.RoleAssistant && m.ToolCall != nil:
			issued[m.ToolCall.ID]++
		case m.Role == models.RoleTool:
			require.Equal(t, 1, issued[m.ToolCallID], "tool message %q has no matching call", m.ToolCallID)
			issued[m.ToolCallID]++
		}
	}
}

func TestRun_DogScenario(t *testing.T) {
	img := writeImage(t)
	reg := boxRegistry(t, vision.Location{
		Found: true, Box: models.Box{XMin: 0.1, YMin: 0.2, XMax: 0.5, YMax: 0.9}, Confidence: 0.9, Width: 64, Height: 48,
	})
	provider := mock.NewScripted(
		toolUse(t, "detect_bounding_box", map[string]any{"image_path": img, "label": "dog"}),
		textReply("I drew a box around the dog."),
	)
	a := newAgent(t, provider, reg, 5)

	res, err := a.Run(context.Background(), userMsg("Draw a box around the dog in "+img))
	require.NoError(t, err)

	assert.Equal(t, models.RunDone, res.Status)
	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, "I drew a box around the dog.", res.FinalText)
	assert.False(t, res.Truncated)
	require.NotEmpty(t, res.AnnotatedImage)
	assert.FileExists(t, res.AnnotatedImage)

	roles := make([]models.Role, 0, len(res.Conversation))
	for _, m := range res.Conversation {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []models.Role{
		models.RoleSystem, models.RoleUser, models.RoleAssistant, models.RoleTool, models.RoleAssistant,
	}, roles)

	call := res.Conversation[2].ToolCall
	require.NotNil(t, call)
	assert.True(t, strings.HasPrefix(call.ID, "call_"))
	_, err = uuid.Parse(strings.TrimPrefix(call.ID, "call_"))
	assert.NoError(t, err)
	assert.Equal(t, "dog", call.Arguments["label"])
	assert.Equal(t, call.ID, res.Conversation[3].ToolCallID)
	assertPaired(t, res.Conversation)

	// The second model call sees the tool result.
	reqs := provider.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, models.RoleTool, last.Role)
	assert.Contains(t, last.Content, res.AnnotatedImage)
	assert.Contains(t, reqs[0].System, "detect_bounding_box")
}

func TestRun_NotLocated(t *testing.T) {
	img := writeImage(t)
	provider := mock.NewScripted(
		toolUse(t, "detect_bounding_box", map[string]any{"image_path": img, "label": "unicorn"}),
		"There is no unicorn in that image.",
	)
	a := newAgent(t, provider, boxRegistry(t, vision.Location{}), 5)

	res, err := a.Run(context.Background(), userMsg("find the unicorn"))
	require.NoError(t, err)

	assert.Equal(t, models.RunDone, res.Status)
	assert.Empty(t, res.AnnotatedImage)
	require.Len(t, res.ToolResults, 1)
	tr := res.ToolResults[0]
	assert.Equal(t, models.ToolError, tr.Status)
	assert.Equal(t, models.ErrToolExecution, tr.Kind)
	assert.Equal(t, "object not located", tr.Error)
	assert.Equal(t, "There is no unicorn in that image.", res.FinalText)
}

func TestRun_UnknownTool(t *testing.T) {
	provider := mock.NewScripted(
		toolUse(t, "teleport", map[string]any{"to": "mars"}),
		textReply("I cannot do that."),
	)
	a := newAgent(t, provider, boxRegistry(t, vision.Location{}), 5)

	res, err := a.Run(context.Background(), userMsg("teleport me"))
	require.NoError(t, err)

	assert.Equal(t, models.RunDone, res.Status)
	require.Len(t, res.ToolResults, 1)
	assert.Equal(t, models.ErrUnknownTool, res.ToolResults[0].Kind)
	assertPaired(t, res.Conversation)
}

func TestRun_MaxTurnsBound(t *testing.T) {
	calls := 0
	echo := &tools.Func{ToolName: "echo", Desc: "echo", Fn: func(ctx context.Context, args map[string]any) (tools.Output, error) {
		calls++
		return tools.Output{Text: "again"}, nil
	}}
	reg := tools.MustNewRegistry(echo)
	provider := &mock.Provider{GenerateFn: func(ctx context.Context, req llm.Request) (string, error) {
		return `{"type": "tool_use", "tool_uses": [{"name": "echo", "params": {}}]}`, nil
	}}
	a := newAgent(t, provider, reg, 3)

	res, err := a.Run(context.Background(), userMsg("loop forever"))
	require.NoError(t, err)

	assert.Equal(t, models.RunMaxTurnsExceeded, res.Status)
	assert.True(t, res.Truncated)
	assert.ErrorIs(t, res.Err, ErrMaxTurnsExceeded)
	assert.Equal(t, 3, res.Turns)
	assert.Equal(t, 3, provider.Calls())
	assert.Equal(t, 3, calls)
	assert.NotEmpty(t, res.FinalText)
	assertPaired(t, res.Conversation)
}

func TestRun_UnparseableThenRecovery(t *testing.T) {
	provider := mock.NewScripted(
		`{"type": "tool_use", "tool_uses": [`,
		textReply("recovered"),
	)
	a := newAgent(t, provider, tools.MustNewRegistry(), 5)

	res, err := a.Run(context.Background(), userMsg("hello there"))
	require.NoError(t, err)

	assert.Equal(t, models.RunDone, res.Status)
	assert.Equal(t, "recovered", res.FinalText)
	assert.Equal(t, 2, res.Turns)

	reqs := provider.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, models.RoleUser, last.Role)
	assert.Contains(t, last.Content, "could not be parsed")
}

func TestRun_ProviderFailure(t *testing.T) {
	provider := &mock.Provider{GenerateFn: func(ctx context.Context, req llm.Request) (string, error) {
		return "", llm.NewProviderError("mock", 503, errors.New("unavailable"))
	}}
	cfg := config.DefaultConfig()
	a, err := New(Config{AppConfig: cfg, LLM: newClient(provider, 2), Registry: tools.MustNewRegistry()})
	require.NoError(t, err)

	res, err := a.Run(context.Background(), userMsg("anything"))
	require.NoError(t, err)

	assert.Equal(t, models.RunFailed, res.Status)
	assert.True(t, llm.IsRetryable(res.Err))
	assert.Equal(t, 3, provider.Calls())
	assert.NotEmpty(t, res.FinalText)
}

func TestRun_CancelledDuringTool(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow := &tools.Func{ToolName: "slow", Desc: "slow", Fn: func(ctx context.Context, args map[string]any) (tools.Output, error) {
		cancel()
		return tools.Output{Text: "partial work"}, nil
	}}
	provider := mock.NewScripted(
		`{"type": "tool_use", "tool_uses": [{"name": "slow", "params": {}}]}`,
		textReply("never reached"),
	)
	a := newAgent(t, provider, tools.MustNewRegistry(slow), 5)

	res, err := a.Run(ctx, userMsg("do the slow thing"))
	require.NoError(t, err)

	assert.Equal(t, models.RunFailed, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 1, provider.Calls())
	assert.Contains(t, res.FinalText, "partial work")
	assertPaired(t, res.Conversation)
}

type recordingSink struct {
	mu   sync.Mutex
	runs []*RunResult
}

func (s *recordingSink) Record(ctx context.Context, res *RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, res)
	return nil
}

func TestRun_EventsAndTranscript(t *testing.T) {
	img := writeImage(t)
	reg := boxRegistry(t, vision.Location{Found: true, Box: models.Box{XMax: 0.5, YMax: 0.5}, Width: 64, Height: 48})
	provider := mock.NewScripted(
		toolUse(t, "detect_bounding_box", map[string]any{"image_path": img, "label": "dog"}),
		textReply("done"),
	)
	sink := &recordingSink{}
	var global []models.AgentEvent
	a := newAgent(t, provider, reg, 5, func(c *Config) {
		c.Transcript = sink
		c.Observer = func(ev models.AgentEvent) { global = append(global, ev) }
	})

	var local []models.AgentEvent
	res, err := a.Run(context.Background(), userMsg("box the dog"), WithObserver(func(ev models.AgentEvent) {
		local = append(local, ev)
	}))
	require.NoError(t, err)

	require.Equal(t, global, local)
	states := make([]models.AgentState, 0, len(local))
	for _, ev := range local {
		states = append(states, ev.State)
	}
	assert.Equal(t, []models.AgentState{
		models.StateThinking,
		models.StateToolCall,
		models.StateToolExecuting,
		models.StateToolExecuting,
		models.StateThinking,
		models.StateResponding,
	}, states)

	final := local[len(local)-1]
	assert.Equal(t, models.RunDone, final.Status)
	assert.Equal(t, "done", final.FinalAnswer)
	assert.Equal(t, res.AnnotatedImage, final.Image)

	require.Len(t, sink.runs, 1)
	assert.Equal(t, res.RunID, sink.runs[0].RunID)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Registry: tools.MustNewRegistry()})
	require.Error(t, err)

	_, err = New(Config{LLM: newClient(mock.NewScripted(), 0)})
	require.Error(t, err)

	cfg := config.DefaultConfig()
	cfg.Agent.SystemPromptPath = filepath.Join(t.TempDir(), "missing.tmpl")
	_, err = New(Config{AppConfig: cfg, LLM: newClient(mock.NewScripted(), 0), Registry: tools.MustNewRegistry()})
	require.Error(t, err)
}

func TestRun_RequiresInitialMessage(t *testing.T) {
	a := newAgent(t, mock.NewScripted(), tools.MustNewRegistry(), 3)
	_, err := a.Run(context.Background(), nil)
	require.Error(t, err)
}
