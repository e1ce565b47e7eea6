package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashutoshrp06/toolloop/internal/config"
	"github.com/ashutoshrp06/toolloop/internal/llm/mock"
	"github.com/ashutoshrp06/toolloop/pkg/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Agent.MaxRetries = 0
	cfg.Agent.RetryInitialInterval = time.Millisecond
	cfg.Agent.RetryMaxInterval = time.Millisecond
	cfg.Drawing.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.Transcript.Enabled = true
	cfg.Transcript.Dir = filepath.Join(t.TempDir(), "history")
	return cfg
}

func testImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dog.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 120, 80))))
	return path
}

func TestApp_EndToEnd(t *testing.T) {
	img := testImage(t)

	chat := mock.NewScripted(
		`{"type": "tool_use", "tool_uses": [{"name": "detect_bounding_box", "params": {"image_path": "`+img+`", "label": "dog"}}]}`,
		`{"type": "text", "text": "The dog is boxed."}`,
	)
	visionModel := mock.NewScripted("```json\n{\"boxes\": [{\"confidence\": 0.93, \"xyxy\": [0.1, 0.2, 0.6, 0.9]}]}\n```")

	cfg := testConfig(t)
	a, err := newApp(cfg, zap.NewNop(), chat, visionModel)
	require.NoError(t, err)

	var out bytes.Buffer
	res, err := runQuery(context.Background(), &out, a, "Draw a box around the dog", img)
	require.NoError(t, err)

	assert.Equal(t, models.RunDone, res.Status)
	assert.Equal(t, "The dog is boxed.", res.FinalText)
	require.NotEmpty(t, res.AnnotatedImage)
	assert.FileExists(t, res.AnnotatedImage)
	assert.Equal(t, cfg.Drawing.OutputDir, filepath.Dir(res.AnnotatedImage))

	assert.Contains(t, out.String(), "detect_bounding_box")
	assert.Contains(t, out.String(), res.AnnotatedImage)

	assert.Equal(t, 1, visionModel.Calls())
	assert.Equal(t, 2, chat.Calls())

	entries, err := os.ReadDir(cfg.Transcript.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.metrics.Runs.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.metrics.ToolCalls.WithLabelValues("detect_bounding_box", "success", "none")))
}

func TestApp_MaxTurnsReported(t *testing.T) {
	chat := &mock.Provider{Replies: []string{
		`{"type": "tool_use", "tool_uses": [{"name": "draw_bounding_box", "params": {"image_path": "missing.png", "box": [0, 0, 1, 1]}}]}`,
		`{"type": "tool_use", "tool_uses": [{"name": "draw_bounding_box", "params": {"image_path": "missing.png", "box": [0, 0, 1, 1]}}]}`,
	}}
	cfg := testConfig(t)
	cfg.Agent.MaxTurns = 2
	cfg.Transcript.Enabled = false

	a, err := newApp(cfg, zap.NewNop(), chat, mock.NewScripted())
	require.NoError(t, err)

	var out bytes.Buffer
	res, err := runQuery(context.Background(), &out, a, "box everything", "")
	require.NoError(t, err)

	assert.Equal(t, models.RunMaxTurnsExceeded, res.Status)
	assert.Contains(t, out.String(), "max_turns_exceeded")
	assert.NotEmpty(t, res.FinalText)
}

func TestApplyFlags(t *testing.T) {
	defer func() { provider, model, maxTurns, metricsAddr = "", "", 0, "" }()
	provider, model, maxTurns, metricsAddr = "ollama", "llava", 3, ":9100"

	cfg := config.DefaultConfig()
	applyFlags(cfg)

	assert.Equal(t, "ollama", cfg.Provider.Name)
	assert.Equal(t, "llava", cfg.Provider.Model)
	assert.Equal(t, 3, cfg.Agent.MaxTurns)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	require.NoError(t, cfg.Validate())
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolloop.yaml")
	require.NoError(t, initConfig(path))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Agent.MaxTurns, cfg.Agent.MaxTurns)

	// A second call leaves the file alone.
	require.NoError(t, initConfig(path))
}
