package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ashutoshrp06/toolloop/pkg/models"
	"github.com/invopop/jsonschema"
)

// OutcomeKind classifies a parsed model completion.
type OutcomeKind int

const (
	FinalAnswer OutcomeKind = iota
	ToolCall
	Unparseable
)

func (k OutcomeKind) String() string {
	switch k {
	case FinalAnswer:
		return "final_answer"
	case ToolCall:
		return "tool_call"
	case Unparseable:
		return "unparseable"
	}
	return "unknown"
}

// Outcome is the result of parsing one completion.
type Outcome struct {
	Kind OutcomeKind
	// Call is set for ToolCall outcomes. Its ID is left empty for the caller.
	Call *models.ToolCall
	// Text is the final answer for FinalAnswer outcomes.
	Text string
	// Raw is the structured block the outcome was decoded from, if any.
	Raw string
	// Reason explains an Unparseable outcome.
	Reason string
	// Ignored counts blocks and tool_uses entries past the honored one.
	Ignored int
}

// Envelope is the single JSON object the model is instructed to reply with.
type Envelope struct {
	Type     string    `json:"type" jsonschema:"required,enum=text,enum=tool_use,description=Either text for a final answer or tool_use to call a tool"`
	Text     string    `json:"text,omitempty" jsonschema:"description=The answer for the user when type is text"`
	ToolUses []ToolUse `json:"tool_uses,omitempty" jsonschema:"description=Exactly one tool invocation when type is tool_use"`
}

// ToolUse is one tool invocation inside an Envelope.
type ToolUse struct {
	Name    string         `json:"name" jsonschema:"required,description=Name of the tool to call"`
	Params  map[string]any `json:"params" jsonschema:"required,description=Arguments keyed by parameter name"`
	Partial bool           `json:"partial,omitempty" jsonschema:"description=True only if the arguments are incomplete"`
}

const (
	envelopeText    = "text"
	envelopeToolUse = "tool_use"
)

type OutputValidator struct{}

func NewOutputValidator() *OutputValidator {
	return &OutputValidator{}
}

// Parse classifies a completion. The first well-formed envelope wins; a
// completion without any structured block is a final answer in full; a
// completion whose blocks are all malformed is Unparseable.
func (v *OutputValidator) Parse(completion string) Outcome {
	blocks, scanErr := findBlocks(completion)

	if len(blocks) == 0 {
		if scanErr != nil {
			return Outcome{Kind: Unparseable, Reason: scanErr.Error()}
		}
		if strings.TrimSpace(completion) == "" {
			return Outcome{Kind: Unparseable, Reason: "empty completion"}
		}
		return Outcome{Kind: FinalAnswer, Text: completion}
	}

	var reasons []string
	for i, block := range blocks {
		env, err := decodeEnvelope(block)
		if err != nil {
			reasons = append(reasons, err.Error())
			continue
		}
		out := outcomeFrom(env, block)
		out.Ignored += len(blocks) - i - 1
		return out
	}

	if scanErr != nil {
		reasons = append(reasons, scanErr.Error())
	}
	return Outcome{
		Kind:   Unparseable,
		Raw:    blocks[0],
		Reason: strings.Join(reasons, "; "),
	}
}

func outcomeFrom(env *Envelope, block string) Outcome {
	if env.Type == envelopeText {
		return Outcome{Kind: FinalAnswer, Text: env.Text, Raw: block}
	}

	use := env.ToolUses[0]
	args := use.Params
	if args == nil {
		args = map[string]any{}
	}
	return Outcome{
		Kind: ToolCall,
		Call: &models.ToolCall{
			Name:      use.Name,
			Arguments: args,
			Partial:   use.Partial,
			Raw:       block,
		},
		Raw:     block,
		Ignored: len(env.ToolUses) - 1,
	}
}

// decodeEnvelope strictly decodes one block.
func decodeEnvelope(block string) (*Envelope, error) {
	dec := json.NewDecoder(strings.NewReader(block))
	dec.DisallowUnknownFields()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON object")
	}

	switch env.Type {
	case envelopeText:
		if strings.TrimSpace(env.Text) == "" {
			return nil, errors.New("text envelope without text")
		}
		if len(env.ToolUses) > 0 {
			return nil, errors.New("text envelope must not carry tool_uses")
		}
	case envelopeToolUse:
		if len(env.ToolUses) == 0 {
			return nil, errors.New("tool_use envelope without tool_uses")
		}
		if strings.TrimSpace(env.ToolUses[0].Name) == "" {
			return nil, errors.New("tool_use entry without name")
		}
	case "":
		return nil, errors.New("missing type field")
	default:
		return nil, fmt.Errorf("unknown envelope type %q", env.Type)
	}
	return &env, nil
}

// findBlocks returns every top-level JSON object segment that opens with a
// key, in order of appearance. An object left open at end of input is
// reported as an error.
func findBlocks(s string) ([]string, error) {
	var blocks []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' || !opensWithKey(s[i+1:]) {
			continue
		}
		end, ok := matchBrace(s, i)
		if !ok {
			return blocks, errors.New("unterminated JSON block")
		}
		blocks = append(blocks, s[i:end+1])
		i = end
	}
	return blocks, nil
}

func opensWithKey(rest string) bool {
	trimmed := strings.TrimLeft(rest, " \t\r\n")
	return strings.HasPrefix(trimmed, `"`)
}

// matchBrace returns the index of the brace closing the one at start.
// Braces inside JSON strings are skipped.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// EnvelopeSchema renders the JSON Schema of the reply envelope.
func EnvelopeSchema() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&Envelope{})
	schema.Version = ""
	schema.ID = ""

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(schema); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}
