// Package ui provides the terminal user interface using Bubble Tea.
package ui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ashutoshrp06/toolloop/internal/functions/boxes"
	"github.com/ashutoshrp06/toolloop/internal/tools"
	"github.com/ashutoshrp06/toolloop/pkg/models"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// RunFunc starts a query and returns its event stream. The channel must be
// closed after the last event.
type RunFunc func(query, image string) <-chan models.AgentEvent

// Options wires the model to the agent.
type Options struct {
	Run   RunFunc
	Tools []tools.ToolInfo
	// Clear, when set, is called by the clear command to reset agent history.
	Clear func()
	// Image preselects the image attached to queries.
	Image string
}

// Model is the Bubble Tea model for the interactive session.
type Model struct {
	// UI Components
	textInput textinput.Model
	spinner   spinner.Model
	viewport  viewport.Model
	styles    Styles

	// State
	state       models.AgentState
	busy        bool
	messages    []chatMessage
	currentTool *toolExecution
	image       string
	width       int
	height      int
	ready       bool
	quitting    bool
	err         error

	opts Options
}

// chatMessage represents a message in the chat history.
type chatMessage struct {
	role    string // "user", "assistant", "system", "tool"
	content string
	tool    *toolExecution
}

// toolExecution tracks a tool call and its result.
type toolExecution struct {
	name     string
	params   map[string]any
	output   string
	image    string
	success  bool
	error    string
	duration string
	done     bool
}

// eventMsg carries one agent event together with the stream it came from.
type eventMsg struct {
	event  models.AgentEvent
	events <-chan models.AgentEvent
}

// runDoneMsg signals that the event stream was closed.
type runDoneMsg struct{}

// waitForEvent reads the next event from the stream.
func waitForEvent(events <-chan models.AgentEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return runDoneMsg{}
		}
		return eventMsg{event: ev, events: events}
	}
}

// NewModel creates a new UI model.
func NewModel(opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask about an image... (e.g., 'Draw a box around the dog')"
	ti.Focus()
	ti.CharLimit = 1000
	ti.Width = 80

	styles := DefaultStyles()
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Phase

	vp := viewport.New(0, 0)
	vp.KeyMap = viewport.DefaultKeyMap()

	return Model{
		textInput: ti,
		spinner:   s,
		viewport:  vp,
		styles:    styles,
		state:     models.StateIdle,
		messages:  make([]chatMessage, 0),
		image:     opts.Image,
		opts:      opts,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
	)
}

// headerHeight returns the number of terminal lines occupied by the banner.
func (m Model) headerHeight() int {
	banner := m.styles.Title.Render(Banner())
	return lipgloss.Height(banner) + 2
}

// footerHeight covers the blank line, the prompt line and the help bar.
func (m Model) footerHeight() int {
	return 4
}

// updateViewport rebuilds the viewport content and scrolls to the bottom.
func (m *Model) updateViewport() {
	var b strings.Builder

	for _, msg := range m.messages {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}

	if m.currentTool != nil && !m.currentTool.done {
		b.WriteString(m.renderToolInProgress())
		b.WriteString("\n")
	}

	if m.busy {
		b.WriteString(m.renderStatus())
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit

		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}

			query := strings.TrimSpace(m.textInput.Value())
			if query == "" {
				return m, nil
			}

			if handled, cmd := m.handleCommand(query); handled {
				m.textInput.SetValue("")
				m.updateViewport()
				return m, cmd
			}

			content := query
			if m.image != "" {
				content = fmt.Sprintf("%s  [%s]", query, m.image)
			}
			m.messages = append(m.messages, chatMessage{role: "user", content: content})

			m.textInput.SetValue("")
			m.busy = true
			m.err = nil
			m.state = models.StateThinking
			m.updateViewport()

			if m.opts.Run != nil {
				cmds = append(cmds, waitForEvent(m.opts.Run(query, m.image)))
			}
			cmds = append(cmds, m.spinner.Tick)

			return m, tea.Batch(cmds...)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textInput.Width = msg.Width - 10

		vpHeight := msg.Height - m.headerHeight() - m.footerHeight()
		if vpHeight < 1 {
			vpHeight = 1
		}

		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.viewport.KeyMap = viewport.DefaultKeyMap()
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}

		m.ready = true
		m.updateViewport()

	case eventMsg:
		m.handleAgentEvent(msg.event)
		m.updateViewport()
		return m, waitForEvent(msg.events)

	case runDoneMsg:
		m.busy = false
		m.state = models.StateIdle
		m.currentTool = nil
		m.updateViewport()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		m.updateViewport()
	}

	if !m.busy {
		var tiCmd tea.Cmd
		m.textInput, tiCmd = m.textInput.Update(msg)
		cmds = append(cmds, tiCmd)
	}

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	return m, tea.Batch(cmds...)
}

// handleCommand processes special commands. It reports whether input was a
// command.
func (m *Model) handleCommand(input string) (bool, tea.Cmd) {
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "exit", "quit", "q":
		if len(fields) > 1 {
			return false, nil
		}
		m.quitting = true
		return true, tea.Quit

	case "clear":
		if len(fields) > 1 {
			return false, nil
		}
		m.messages = make([]chatMessage, 0)
		if m.opts.Clear != nil {
			m.opts.Clear()
		}
		return true, nil

	case "help", "?":
		if len(fields) > 1 {
			return false, nil
		}
		m.system(helpText)
		return true, nil

	case "tools":
		if len(fields) > 1 {
			return false, nil
		}
		m.system(m.toolsText())
		return true, nil

	case "image":
		arg := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))
		switch arg {
		case "":
			if m.image == "" {
				m.system("No image selected. Use: image <path>")
			} else {
				m.system("Current image: " + m.image)
			}
		case "none", "off":
			m.image = ""
			m.system("Image cleared.")
		default:
			m.image = arg
			m.system("Image set: " + arg)
		}
		return true, nil
	}

	return false, nil
}

const helpText = `Available commands:
  help, ?         Show this help
  tools           List available tools
  image <path>    Attach an image to the next queries
  image none      Stop attaching an image
  clear           Clear chat history
  exit, quit      Exit

Example queries:
  "Draw a box around the dog"
  "Find the red car and box it in blue"
  "What objects can you locate in this picture?"`

func (m *Model) system(text string) {
	m.messages = append(m.messages, chatMessage{role: "system", content: text})
}

func (m Model) toolsText() string {
	if len(m.opts.Tools) == 0 {
		return "No tools registered."
	}
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, t := range m.opts.Tools {
		b.WriteString(fmt.Sprintf("\n  %s\n    %s\n", t.Name, t.Description))
		for _, p := range t.Parameters {
			req := ""
			if p.Required {
				req = ", required"
			}
			b.WriteString(fmt.Sprintf("      - %s (%s%s)\n", p.Name, p.Type, req))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// handleAgentEvent processes events from the agent.
func (m *Model) handleAgentEvent(event models.AgentEvent) {
	m.state = event.State

	switch event.State {
	case models.StateToolCall:
		if event.ToolCall != nil {
			m.currentTool = &toolExecution{
				name:   event.ToolCall.Name,
				params: event.ToolCall.Arguments,
			}
		}

	case models.StateToolExecuting:
		if event.ToolResult == nil || m.currentTool == nil {
			return
		}
		res := event.ToolResult
		m.currentTool.success = res.Success()
		m.currentTool.output = res.Output
		m.currentTool.image = res.Image
		m.currentTool.error = res.Error
		if res.Kind != "" {
			m.currentTool.error = fmt.Sprintf("%s: %s", res.Kind, res.Error)
		}
		m.currentTool.duration = res.Duration.String()
		m.currentTool.done = true
		m.messages = append(m.messages, chatMessage{role: "tool", tool: m.currentTool})
		m.currentTool = nil

	case models.StateThinking:
		if event.Message != "" {
			m.system(event.Message)
		}

	case models.StateResponding:
		content := event.FinalAnswer
		if event.Image != "" {
			content += "\n\nAnnotated image: " + m.styles.ImagePath.Render(event.Image)
		}
		m.messages = append(m.messages, chatMessage{role: "assistant", content: content})

	case models.StateError:
		m.err = event.Error
		errText := "An error occurred"
		if event.Error != nil {
			errText = event.Error.Error()
		}
		if event.Status != "" {
			errText = fmt.Sprintf("%s (%s)", errText, event.Status)
		}
		m.system("Error: " + errText)
		if event.FinalAnswer != "" {
			m.messages = append(m.messages, chatMessage{role: "assistant", content: event.FinalAnswer})
		}
	}
}

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return m.styles.Notice.Render("Goodbye!\n")
	}

	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder

	b.WriteString(m.styles.Title.Render(Banner()))
	b.WriteString("\n\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	b.WriteString(m.styles.InputMark.Render("> "))
	if !m.busy {
		b.WriteString(m.textInput.View())
	} else {
		b.WriteString(m.styles.Busy.Render("(processing...)"))
	}
	b.WriteString("\n")
	b.WriteString(m.renderHelpBar())

	return m.styles.App.Render(b.String())
}

// renderMessage renders a single chat message.
func (m Model) renderMessage(msg chatMessage) string {
	switch msg.role {
	case "user":
		return m.styles.You.Render("You: " + msg.content)

	case "assistant":
		return m.styles.Answer.Render("Assistant: " + msg.content)

	case "system":
		return m.styles.Notice.Render(msg.content)

	case "tool":
		if msg.tool != nil {
			return m.renderToolResult(msg.tool)
		}
	}
	return ""
}

func formatParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// detection decodes a bounding-box tool result, if output is one.
func detection(output string) (boxes.Result, bool) {
	var res boxes.Result
	if err := json.Unmarshal([]byte(output), &res); err != nil {
		return res, false
	}
	return res, len(res.Box) == 4 && res.OutputPath != ""
}

// renderToolResult renders a completed tool execution.
func (m Model) renderToolResult(t *toolExecution) string {
	var b strings.Builder

	b.WriteString(m.styles.CardTitle.Render("Tool: " + t.name))
	if len(t.params) > 0 {
		b.WriteString(" ")
		b.WriteString(m.styles.CardArgs.Render(formatParams(t.params)))
	}
	b.WriteString("\n")

	if t.success {
		b.WriteString(m.styles.CardOK.Render("  Success"))
		if t.duration != "" && t.duration != "0s" {
			b.WriteString(m.styles.CardArgs.Render(fmt.Sprintf(" (%s)", t.duration)))
		}
		b.WriteString("\n")
		if det, ok := detection(t.output); ok {
			b.WriteString(m.styles.CardBody.Render(m.styles.Detection(det.Label, det.Box, det.Coordinates, det.Confidence, t.image)))
			b.WriteString("\n")
		} else {
			if t.image != "" {
				b.WriteString(m.styles.CardBody.Render(m.styles.ImagePath.Render(t.image)))
				b.WriteString("\n")
			}
			output := t.output
			if len(output) > 300 {
				output = output[:300] + "..."
			}
			for _, line := range strings.Split(output, "\n") {
				if line != "" {
					b.WriteString(m.styles.CardBody.Render("  | " + line))
					b.WriteString("\n")
				}
			}
		}
	} else {
		b.WriteString(m.styles.CardFailed.Render("  Failed: " + t.error))
		b.WriteString("\n")
	}

	return m.styles.Card.Render(b.String())
}

// renderToolInProgress renders a tool that's currently executing.
func (m Model) renderToolInProgress() string {
	var b strings.Builder

	b.WriteString(m.styles.CardTitle.Render("Tool: " + m.currentTool.name))
	if len(m.currentTool.params) > 0 {
		b.WriteString(" ")
		b.WriteString(m.styles.CardArgs.Render(formatParams(m.currentTool.params)))
	}
	b.WriteString("\n")
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(m.styles.Busy.Render("Executing..."))

	return m.styles.Card.Render(b.String())
}

// renderStatus renders the current processing status.
func (m Model) renderStatus() string {
	return fmt.Sprintf("%s %s",
		m.spinner.View(),
		m.styles.Phase.Render(m.state.String()+"..."),
	)
}

// renderHelpBar renders the bottom help bar.
func (m Model) renderHelpBar() string {
	help := []string{
		m.styles.Key.Render("enter") + m.styles.KeyHelp.Render(" send"),
		m.styles.Key.Render("ctrl+c") + m.styles.KeyHelp.Render(" quit"),
		m.styles.Key.Render("image <path>") + m.styles.KeyHelp.Render(" attach"),
		m.styles.Key.Render("help") + m.styles.KeyHelp.Render(" commands"),
	}
	if m.image != "" {
		help = append(help, m.styles.KeyHelp.Render("image: "+m.image))
	}
	return m.styles.Footer.Render(strings.Join(help, "  |  "))
}
