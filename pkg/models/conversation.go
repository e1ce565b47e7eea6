package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnpairedToolMessage is returned when a TOOL message does not answer
	// an outstanding assistant tool call.
	ErrUnpairedToolMessage = errors.New("tool message does not match a pending tool call")
	// ErrDuplicateToolCall is returned when an assistant message reuses a tool_call_id.
	ErrDuplicateToolCall = errors.New("duplicate tool_call_id")
)

// Conversation is an append-only message log. Every TOOL message must answer
// exactly one earlier assistant tool call. A Conversation belongs to a single
// run and is not safe for concurrent use.
type Conversation struct {
	messages []Message
	// answered tracks issued tool_call_ids; true once a TOOL message answers one.
	answered map[string]bool
}

// NewConversation builds a conversation from seed messages, validating each.
func NewConversation(seed ...Message) (*Conversation, error) {
	c := &Conversation{answered: make(map[string]bool)}
	for i, msg := range seed {
		if err := c.Append(msg); err != nil {
			return nil, fmt.Errorf("seed message %d: %w", i, err)
		}
	}
	return c, nil
}

// Append validates and appends msg.
func (c *Conversation) Append(msg Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("unknown role %q", msg.Role)
	}

	switch msg.Role {
	case RoleAssistant:
		if msg.ToolCall != nil {
			id := msg.ToolCall.ID
			if id == "" {
				return fmt.Errorf("assistant tool call without id")
			}
			if _, seen := c.answered[id]; seen {
				return fmt.Errorf("%w: %s", ErrDuplicateToolCall, id)
			}
			c.answered[id] = false
		}
	case RoleTool:
		done, issued := c.answered[msg.ToolCallID]
		if msg.ToolCallID == "" || !issued || done {
			return fmt.Errorf("%w: %q", ErrUnpairedToolMessage, msg.ToolCallID)
		}
		c.answered[msg.ToolCallID] = true
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.messages = append(c.messages, msg)
	return nil
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// LastAssistant returns the most recent assistant message.
func (c *Conversation) LastAssistant() (Message, bool) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleAssistant {
			return c.messages[i], true
		}
	}
	return Message{}, false
}

// Pending returns the ids of tool calls that have not been answered yet.
func (c *Conversation) Pending() []string {
	var ids []string
	for _, msg := range c.messages {
		if msg.ToolCall != nil && !c.answered[msg.ToolCall.ID] {
			ids = append(ids, msg.ToolCall.ID)
		}
	}
	return ids
}
