// Package llm defines the model provider contract and the retrying client
// the agent talks to.
package llm

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashutoshrp06/toolloop/pkg/models"
)

// Provider generates a completion for a conversation. Implementations must
// honor ctx cancellation and report failures as errors, preferably
// *ProviderError.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is the input for Provider.Generate.
type Request struct {
	System      string
	Messages    []models.Message
	Temperature float64
	MaxTokens   int
}

// Turn is a provider-neutral chat turn. Role is either user or assistant.
type Turn struct {
	Role   models.Role
	Text   string
	Images []string
}

// Turns flattens messages into alternating user/assistant turns. System
// messages are dropped (they travel in Request.System), TOOL messages become
// user turns and consecutive turns of the same role are merged.
func Turns(msgs []models.Message) []Turn {
	var turns []Turn
	for _, msg := range msgs {
		role := msg.Role
		text := msg.Content
		switch role {
		case models.RoleSystem:
			continue
		case models.RoleTool:
			role = models.RoleUser
			text = fmt.Sprintf("Tool result for %s:\n%s", msg.ToolCallID, msg.Content)
		}

		if n := len(turns); n > 0 && turns[n-1].Role == role {
			last := &turns[n-1]
			last.Text = strings.TrimSpace(last.Text + "\n\n" + text)
			if msg.Image != "" {
				last.Images = append(last.Images, msg.Image)
			}
			continue
		}

		turn := Turn{Role: role, Text: text}
		if msg.Image != "" {
			turn.Images = []string{msg.Image}
		}
		turns = append(turns, turn)
	}
	return turns
}

// SystemPrompt joins the content of every system message.
func SystemPrompt(msgs []models.Message) string {
	var parts []string
	for _, msg := range msgs {
		if msg.Role == models.RoleSystem && msg.Content != "" {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Image is an image file loaded for inline upload.
type Image struct {
	Path     string
	MIMEType string
	Data     []byte
}

// LoadImage reads path and sniffs its MIME type.
func LoadImage(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(byExt, "image/") {
			mimeType = byExt
		} else {
			return Image{}, fmt.Errorf("%s is not an image (%s)", path, mimeType)
		}
	}
	return Image{Path: path, MIMEType: mimeType, Data: data}, nil
}
