package llm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashutoshrp06/toolloop/internal/tools"
	"github.com/stretchr/testify/require"
)

var testInfos = []tools.ToolInfo{
	{
		Name:        "detect_bounding_box",
		Description: "Locate an object and draw a box around it.",
		Parameters: []tools.Parameter{
			{Name: "image_path", Type: tools.TypeString, Required: true, Description: "Path to the image"},
			{Name: "box", Type: tools.TypeArray, Items: tools.TypeNumber, Length: 4},
			{Name: "color", Type: tools.TypeString, Default: "red", Enum: []string{"red", "blue"}},
		},
	},
}

func TestBuildCatalogue(t *testing.T) {
	out := BuildCatalogue(testInfos)

	require.Contains(t, out, "- detect_bounding_box: Locate an object")
	require.Contains(t, out, "- image_path (string, required): Path to the image")
	require.Contains(t, out, "- box (array of 4 numbers, optional)")
	require.Contains(t, out, "[one of: red, blue] [default: red]")

	require.Equal(t, "No tools available.\n", BuildCatalogue(nil))
}

func TestBuildSystemPrompt_Default(t *testing.T) {
	prompt, err := BuildSystemPrompt(testInfos, "")
	require.NoError(t, err)
	require.Contains(t, prompt, "detect_bounding_box")
	require.Contains(t, prompt, `"tool_uses"`)
	require.Contains(t, prompt, "clarifying question")
	require.NotContains(t, prompt, PlaceholderCatalogue)
	require.NotContains(t, prompt, PlaceholderFormat)
}

func TestBuildSystemPrompt_Template(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("TOOLS:\n{{TOOL_CATALOGUE}}\nEND"), 0644))

	prompt, err := BuildSystemPrompt(testInfos, path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(prompt, "TOOLS:\n- detect_bounding_box"))
	require.True(t, strings.HasSuffix(prompt, "END"))

	_, err = BuildSystemPrompt(testInfos, filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestCorrectivePrompt(t *testing.T) {
	require.Contains(t, CorrectivePrompt("", "invalid JSON"), "(invalid JSON)")
	require.Equal(t, "Use JSON please.", CorrectivePrompt("Use JSON please.", "whatever"))
}
