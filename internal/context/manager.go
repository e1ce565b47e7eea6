// Package context keeps the bounded chat history of an interactive session.
package context

import (
	"sync"

	"github.com/ashutoshrp06/toolloop/pkg/models"
)

// Manager holds the most recent maxMessages messages. A non-positive limit
// keeps everything.
type Manager struct {
	messages    []models.Message
	maxMessages int
	mu          sync.RWMutex
}

func NewManager(maxMessages int) *Manager {
	return &Manager{
		messages:    make([]models.Message, 0),
		maxMessages: maxMessages,
	}
}

// AddMessage appends msgs and drops the oldest entries past the limit.
func (m *Manager) AddMessage(msgs ...models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, msgs...)

	if m.maxMessages > 0 && len(m.messages) > m.maxMessages {
		m.messages = m.messages[len(m.messages)-m.maxMessages:]
	}
}

func (m *Manager) GetMessages() []models.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Message, len(m.messages))
	copy(result, m.messages)
	return result
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = make([]models.Message, 0)
}
