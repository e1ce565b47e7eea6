// Package transcript writes a file per finished run for later inspection.
package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashutoshrp06/toolloop/internal/agent"
	"github.com/ashutoshrp06/toolloop/pkg/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Supported formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Document is the on-disk shape of a transcript.
type Document struct {
	RunID          string              `json:"run_id" yaml:"run_id"`
	Status         models.RunStatus    `json:"status" yaml:"status"`
	Turns          int                 `json:"turns" yaml:"turns"`
	Truncated      bool                `json:"truncated" yaml:"truncated"`
	FinalText      string              `json:"final_text" yaml:"final_text"`
	AnnotatedImage string              `json:"annotated_image,omitempty" yaml:"annotated_image,omitempty"`
	Error          string              `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt      time.Time           `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time           `json:"finished_at" yaml:"finished_at"`
	Messages       []models.Message    `json:"messages" yaml:"messages"`
	ToolResults    []models.ToolResult `json:"tool_results" yaml:"tool_results"`
}

// Recorder implements agent.Sink.
type Recorder struct {
	dir    string
	format string
	logger *zap.Logger
}

// NewRecorder creates dir if needed. An empty format means JSON.
func NewRecorder(dir, format string, logger *zap.Logger) (*Recorder, error) {
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatYAML {
		return nil, fmt.Errorf("unsupported transcript format %q", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{dir: dir, format: format, logger: logger}, nil
}

// Record writes res to <dir>/<timestamp>_<run id prefix>.<format>.
func (r *Recorder) Record(ctx context.Context, res *agent.RunResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := Document{
		RunID:          res.RunID,
		Status:         res.Status,
		Turns:          res.Turns,
		Truncated:      res.Truncated,
		FinalText:      res.FinalText,
		AnnotatedImage: res.AnnotatedImage,
		Error:          res.Error(),
		StartedAt:      res.StartedAt,
		FinishedAt:     res.FinishedAt,
		Messages:       res.Conversation,
		ToolResults:    res.ToolResults,
	}

	var (
		data []byte
		err  error
	)
	switch r.format {
	case FormatYAML:
		data, err = yaml.Marshal(doc)
	default:
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	path := filepath.Join(r.dir, r.filename(res))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}

	r.logger.Debug("Transcript written", zap.String("path", path))
	return nil
}

func (r *Recorder) filename(res *agent.RunResult) string {
	id := res.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	ts := res.StartedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("%s_%s.%s", ts.Format("20060102_150405"), id, r.format)
}
