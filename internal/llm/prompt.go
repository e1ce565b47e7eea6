package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/ashutoshrp06/toolloop/internal/tools"
	"github.com/ashutoshrp06/toolloop/internal/validator"
)

// Template placeholders substituted by BuildSystemPrompt.
const (
	PlaceholderCatalogue = "{{TOOL_CATALOGUE}}"
	PlaceholderFormat    = "{{RESPONSE_FORMAT}}"
)

// DefaultCorrectivePrompt is sent after a reply that could not be parsed.
const DefaultCorrectivePrompt = `Your previous reply could not be parsed (%s). ` +
	`Reply again with exactly one JSON object: either {"type": "text", "text": "..."} ` +
	`or {"type": "tool_use", "tool_uses": [{"name": "...", "params": {...}}]}.`

const defaultTemplate = `You are a careful assistant that works with images by calling tools.

You must respond with valid JSON only, choosing exactly one of these forms:

1. A final answer for the user:
{"type": "text", "text": "<your answer>"}

2. A request to call one tool:
{"type": "tool_use", "tool_uses": [{"name": "<tool name>", "params": {<arguments>}}]}

Rules:
- Call at most one tool per reply and wait for its result before continuing.
- Only call tools listed below, with the parameters they declare.
- If the request is ambiguous or a required argument is missing (which object to find, which image to use), ask a clarifying question with a text reply instead of guessing.
- If no tool is needed, answer directly with a text reply.
- Tool results arrive in messages starting with "Tool result for". When a tool reports an error, explain it to the user or retry with corrected arguments.
- Image paths given by the user are local file paths. Pass them to tools unchanged.
- When a tool produced an annotated image, mention its output path in your final answer.

Available tools:
{{TOOL_CATALOGUE}}
Reply JSON schema:
{{RESPONSE_FORMAT}}
`

// BuildSystemPrompt renders the system prompt for the given tools. An empty
// templatePath selects the built-in template.
func BuildSystemPrompt(infos []tools.ToolInfo, templatePath string) (string, error) {
	tmpl := defaultTemplate
	if templatePath != "" {
		raw, err := os.ReadFile(templatePath)
		if err != nil {
			return "", fmt.Errorf("read system prompt template: %w", err)
		}
		tmpl = string(raw)
	}

	prompt := strings.ReplaceAll(tmpl, PlaceholderCatalogue, BuildCatalogue(infos))
	prompt = strings.ReplaceAll(prompt, PlaceholderFormat, validator.EnvelopeSchema())
	return prompt, nil
}

// CorrectivePrompt fills the unparseable-reply template with reason. A
// template without a %s verb is used verbatim.
func CorrectivePrompt(template, reason string) string {
	if template == "" {
		template = DefaultCorrectivePrompt
	}
	if !strings.Contains(template, "%s") {
		return template
	}
	return fmt.Sprintf(template, reason)
}

// ─── catalogue ────────────────────────────────────────────────────────────────

// BuildCatalogue formats the tool list including parameter details so the
// model knows exact names, types, and whether they are required.
func BuildCatalogue(infos []tools.ToolInfo) string {
	if len(infos) == 0 {
		return "No tools available.\n"
	}

	var sb strings.Builder
	for _, info := range infos {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", info.Name, info.Description))
		if len(info.Parameters) > 0 {
			sb.WriteString("  Parameters:\n")
			for _, p := range info.Parameters {
				sb.WriteString("    " + describeParam(p) + "\n")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func describeParam(p tools.Parameter) string {
	req := "optional"
	if p.Required {
		req = "required"
	}
	typ := string(p.Type)
	if p.Type == tools.TypeArray && p.Items != "" {
		typ = fmt.Sprintf("array of %s", p.Items)
		if p.Length > 0 {
			typ = fmt.Sprintf("array of %d %ss", p.Length, p.Items)
		}
	}

	line := fmt.Sprintf("- %s (%s, %s)", p.Name, typ, req)
	if p.Description != "" {
		line += ": " + p.Description
	}
	if len(p.Enum) > 0 {
		line += fmt.Sprintf(" [one of: %s]", strings.Join(p.Enum, ", "))
	}
	if p.Default != nil {
		line += fmt.Sprintf(" [default: %v]", p.Default)
	}
	return line
}
