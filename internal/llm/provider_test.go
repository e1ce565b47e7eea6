package llm

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashutoshrp06/toolloop/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestTurns(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleSystem, Content: "rules"},
		{Role: models.RoleUser, Content: "find the dog", Image: "dog.png"},
		{Role: models.RoleAssistant, Content: `{"type":"tool_use"}`, ToolCall: &models.ToolCall{ID: "call_1"}},
		{Role: models.RoleTool, ToolCallID: "call_1", Content: `{"status":"success"}`, Image: "dog_annotated.png"},
		{Role: models.RoleUser, Content: "thanks"},
	}

	turns := Turns(msgs)
	require.Len(t, turns, 3)
	require.Equal(t, models.RoleUser, turns[0].Role)
	require.Equal(t, []string{"dog.png"}, turns[0].Images)
	require.Equal(t, models.RoleAssistant, turns[1].Role)
	require.Equal(t, models.RoleUser, turns[2].Role)
	require.True(t, strings.HasPrefix(turns[2].Text, "Tool result for call_1"))
	require.Contains(t, turns[2].Text, "thanks")
	require.Equal(t, []string{"dog_annotated.png"}, turns[2].Images)

	require.Equal(t, "rules", SystemPrompt(msgs))
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	imgPath := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(imgPath, buf.Bytes(), 0644))

	img, err := LoadImage(imgPath)
	require.NoError(t, err)
	require.Equal(t, "image/png", img.MIMEType)
	require.NotEmpty(t, img.Data)

	txtPath := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("hello"), 0644))
	_, err = LoadImage(txtPath)
	require.Error(t, err)

	_, err = LoadImage(filepath.Join(dir, "missing.png"))
	require.Error(t, err)
}
