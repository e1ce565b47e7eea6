package agent

import (
	"context"
	"fmt"
	"sync"

	ctxmgr "github.com/ashutoshrp06/toolloop/internal/context"
	"github.com/ashutoshrp06/toolloop/internal/validator"
	"github.com/ashutoshrp06/toolloop/pkg/models"
)

// Session is an interactive conversation made of successive runs. Only the
// question and final answer of each completed run are kept as history, so a
// trimmed history never splits a tool call from its result. Queries are
// serialized.
type Session struct {
	agent          *Agent
	history        *ctxmgr.Manager
	inputValidator *validator.InputValidator
	mu             sync.Mutex
}

// NewSession starts a session keeping at most historyMessages messages.
func NewSession(a *Agent, historyMessages int) *Session {
	return &Session{
		agent:          a,
		history:        ctxmgr.NewManager(historyMessages),
		inputValidator: validator.NewInputValidator(),
	}
}

// Ask validates the query, runs it with the session history and records the
// exchange. image is an optional local image path.
func (s *Session) Ask(ctx context.Context, query, image string, opts ...RunOption) (*RunResult, error) {
	if err := s.inputValidator.Validate(query); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if image != "" {
		if err := s.inputValidator.ValidateImage(image); err != nil {
			return nil, fmt.Errorf("invalid image: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := UserMessage(s.inputValidator.Sanitize(query), image)
	initial := append(s.history.GetMessages(), user)

	res, err := s.agent.Run(ctx, initial, opts...)
	if err != nil {
		return nil, err
	}

	// Unfinished runs stay out of history: their text is a fallback or a raw
	// partial reply, not an answer later runs should build on.
	if res.Status != models.RunDone {
		return res, nil
	}

	// History keeps the path in the text but not the inline attachment.
	user.Image = ""
	s.history.AddMessage(user, models.Message{Role: models.RoleAssistant, Content: res.FinalText})
	return res, nil
}

// Stream runs Ask in the background and delivers its events on the returned
// channel, which is closed after the terminal event. Validation errors arrive
// as a single StateError event.
func (s *Session) Stream(ctx context.Context, query, image string) <-chan models.AgentEvent {
	events := make(chan models.AgentEvent, 16)

	go func() {
		defer close(events)

		send := func(ev models.AgentEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		if _, err := s.Ask(ctx, query, image, WithObserver(send)); err != nil {
			send(models.AgentEvent{State: models.StateError, Status: models.RunFailed, Error: err})
		}
	}()

	return events
}

// History returns the retained messages.
func (s *Session) History() []models.Message {
	return s.history.GetMessages()
}

// ClearHistory clears the conversation history.
func (s *Session) ClearHistory() {
	s.history.Clear()
}

// Agent returns the underlying agent.
func (s *Session) Agent() *Agent {
	return s.agent
}

// UserMessage builds the user message for query, mentioning and attaching
// image when one is given.
func UserMessage(query, image string) models.Message {
	msg := models.Message{Role: models.RoleUser, Content: query}
	if image != "" {
		msg.Content = fmt.Sprintf("%s\n\nImage: %s", query, image)
		msg.Image = image
	}
	return msg
}
