// Package models defines the data shared by the agent loop, the tools and the UI.
package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is a single immutable entry in a conversation.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
	// Image is a local file path attached to the message, if any.
	Image      string    `json:"image,omitempty" yaml:"image,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty"`
	ToolCall   *ToolCall `json:"tool_call,omitempty" yaml:"tool_call,omitempty"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
}

// ToolCall is a parsed request from the model to run a tool.
type ToolCall struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Arguments map[string]any `json:"arguments" yaml:"arguments"`
	Partial   bool           `json:"partial,omitempty" yaml:"partial,omitempty"`
	// Raw is the block of model output the call was decoded from.
	Raw string `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// ToolStatus is the outcome of a tool execution.
type ToolStatus string

const (
	ToolSuccess ToolStatus = "success"
	ToolError   ToolStatus = "error"
)

// ErrorKind classifies a failed tool execution.
type ErrorKind string

const (
	ErrMissingOrInvalidArgument ErrorKind = "missing_or_invalid_argument"
	ErrUnknownTool              ErrorKind = "unknown_tool"
	ErrToolExecution            ErrorKind = "tool_execution_error"
)

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string        `json:"tool_call_id" yaml:"tool_call_id"`
	ToolName   string        `json:"tool_name" yaml:"tool_name"`
	Status     ToolStatus    `json:"status" yaml:"status"`
	Output     string        `json:"output,omitempty" yaml:"output,omitempty"`
	Image      string        `json:"image,omitempty" yaml:"image,omitempty"`
	Kind       ErrorKind     `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration   time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// Success reports whether the tool ran and produced output.
func (r ToolResult) Success() bool {
	return r.Status == ToolSuccess
}

// Content renders the result as the JSON document the model sees.
func (r ToolResult) Content() string {
	payload := map[string]any{
		"tool_call_id": r.ToolCallID,
		"tool":         r.ToolName,
		"status":       r.Status,
	}
	if r.Success() {
		payload["output"] = r.Output
		if r.Image != "" {
			payload["image"] = r.Image
		}
	} else {
		payload["error"] = map[string]string{
			"kind":   string(r.Kind),
			"detail": r.Error,
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return r.Output
	}
	return string(data)
}

// Message wraps the result as a TOOL message answering its call.
func (r ToolResult) Message() Message {
	return Message{
		Role:       RoleTool,
		Content:    r.Content(),
		Image:      r.Image,
		ToolCallID: r.ToolCallID,
		Timestamp:  time.Now(),
	}
}

// RunStatus is the lifecycle state of one agent run.
type RunStatus string

const (
	RunRunning          RunStatus = "running"
	RunToolPending      RunStatus = "tool_pending"
	RunDone             RunStatus = "done"
	RunFailed           RunStatus = "failed"
	RunMaxTurnsExceeded RunStatus = "max_turns_exceeded"
)

// Terminal reports whether no further transitions are possible.
func (s RunStatus) Terminal() bool {
	return s == RunDone || s == RunFailed || s == RunMaxTurnsExceeded
}

// Box is an axis-aligned rectangle. Coordinates are normalized to [0,1]
// unless a component states otherwise.
type Box struct {
	XMin float64 `json:"x_min" yaml:"x_min"`
	YMin float64 `json:"y_min" yaml:"y_min"`
	XMax float64 `json:"x_max" yaml:"x_max"`
	YMax float64 `json:"y_max" yaml:"y_max"`
}

// Slice returns the box as [x_min, y_min, x_max, y_max].
func (b Box) Slice() []float64 {
	return []float64{b.XMin, b.YMin, b.XMax, b.YMax}
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.XMax <= b.XMin || b.YMax <= b.YMin
}

// AgentState represents the current state of agent processing.
type AgentState int

const (
	StateIdle AgentState = iota
	StateThinking
	StateToolCall
	StateToolExecuting
	StateResponding
	StateError
)

func (s AgentState) String() string {
	names := [...]string{"Idle", "Thinking", "Planning tool call", "Executing tool", "Responding", "Error"}
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "Unknown"
}

// AgentEvent is sent during agent processing to update the UI.
type AgentEvent struct {
	State       AgentState
	Turn        int
	Message     string
	ToolCall    *ToolCall
	ToolResult  *ToolResult
	FinalAnswer string
	Image       string
	Status      RunStatus
	Error       error
}
