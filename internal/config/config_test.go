package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, "gemini", cfg.Provider.Name)
	require.Equal(t, 60*time.Second, cfg.Provider.Timeout)
	require.Equal(t, 8, cfg.Agent.MaxTurns)
	require.Equal(t, 3, cfg.Agent.MaxRetries)
	require.Equal(t, "normalized", cfg.Vision.Coordinates)
	require.Equal(t, "red", cfg.Drawing.Color)
	require.Equal(t, 3, cfg.Drawing.LineWidth)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toolloop.yaml")
	content := `
provider:
  name: claude
  model: claude-sonnet-4-5
  timeout: 30s
agent:
  max_turns: 4
drawing:
  color: "#00ff00"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("TOOLLOOP_AGENT_MAX_RETRIES", "5")
	t.Setenv("TOOLLOOP_PROVIDER_API_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "claude", cfg.Provider.Name)
	require.Equal(t, 30*time.Second, cfg.Provider.Timeout)
	require.Equal(t, 4, cfg.Agent.MaxTurns)
	require.Equal(t, 5, cfg.Agent.MaxRetries)
	require.Equal(t, "secret", cfg.Provider.APIKey)
	require.Equal(t, "#00ff00", cfg.Drawing.Color)
	require.Equal(t, 3, cfg.Drawing.LineWidth)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider.Name = "skynet"
	cfg.Agent.MaxTurns = 0
	cfg.Vision.Coordinates = "polar"
	cfg.Transcript.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"provider.name", "agent.max_turns", "vision.coordinates", "transcript.format"} {
		require.True(t, strings.Contains(msg, want), "missing %q in %q", want, msg)
	}
}

func TestVisionProvider(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, cfg.Provider.Name, cfg.VisionProvider().Name)

	cfg.Vision.Provider = "ollama"
	cfg.Vision.Model = "llava"
	vp := cfg.VisionProvider()
	require.Equal(t, "ollama", vp.Name)
	require.Equal(t, "llava", vp.Model)
	require.Equal(t, cfg.Provider.Timeout, vp.Timeout)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Provider.APIKey = "do-not-write"
	cfg.Agent.MaxTurns = 6

	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "do-not-write")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 6, loaded.Agent.MaxTurns)
	require.Equal(t, cfg.Provider.Timeout, loaded.Provider.Timeout)
}
