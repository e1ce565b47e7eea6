package ui

import (
	"fmt"
	"strings"

	"github.com/ashutoshrp06/toolloop/internal/vision"
	"github.com/charmbracelet/lipgloss"
)

// Palette holds the session colours. Stroke matches the drawer's default box
// colour so detections read the same on screen and in the annotated file.
type Palette struct {
	Stroke lipgloss.Color
	Frame  lipgloss.Color
	Link   lipgloss.Color
	Good   lipgloss.Color
	Bad    lipgloss.Color
	Faint  lipgloss.Color
	Body   lipgloss.Color
}

func DefaultPalette() Palette {
	return Palette{
		Stroke: lipgloss.Color("#FF3B30"),
		Frame:  lipgloss.Color("#38BDF8"),
		Link:   lipgloss.Color("#A3E635"),
		Good:   lipgloss.Color("#22C55E"),
		Bad:    lipgloss.Color("#F43F5E"),
		Faint:  lipgloss.Color("#71717A"),
		Body:   lipgloss.Color("#E4E4E7"),
	}
}

// Styles groups the lipgloss styles by the part of the screen they paint.
type Styles struct {
	App   lipgloss.Style
	Title lipgloss.Style

	// Conversation lines.
	You       lipgloss.Style
	Answer    lipgloss.Style
	Notice    lipgloss.Style
	InputMark lipgloss.Style

	// Tool card.
	Card       lipgloss.Style
	CardTitle  lipgloss.Style
	CardArgs   lipgloss.Style
	CardOK     lipgloss.Style
	CardFailed lipgloss.Style
	CardBody   lipgloss.Style

	// Detection summary inside a tool card.
	BoxLabel   lipgloss.Style
	BoxCoords  lipgloss.Style
	Confidence lipgloss.Style
	ImagePath  lipgloss.Style

	// Footer.
	Busy    lipgloss.Style
	Phase   lipgloss.Style
	Key     lipgloss.Style
	KeyHelp lipgloss.Style
	Footer  lipgloss.Style
}

func NewStyles(p Palette) Styles {
	plain := lipgloss.NewStyle()
	indented := plain.PaddingLeft(2)

	return Styles{
		App:   plain.Padding(1, 2),
		Title: plain.Foreground(p.Stroke).Bold(true),

		You:       indented.Foreground(p.Frame).Bold(true),
		Answer:    indented.Foreground(p.Body),
		Notice:    indented.Foreground(p.Faint).Italic(true),
		InputMark: plain.Foreground(p.Stroke).Bold(true),

		Card: plain.
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderTop(false).
			BorderRight(false).
			BorderBottom(false).
			BorderForeground(p.Frame).
			PaddingLeft(1).
			MarginLeft(2).
			MarginTop(1),
		CardTitle:  plain.Foreground(p.Frame).Bold(true),
		CardArgs:   plain.Foreground(p.Faint),
		CardOK:     plain.Foreground(p.Good).Bold(true),
		CardFailed: plain.Foreground(p.Bad).Bold(true),
		CardBody:   plain.Foreground(p.Body).PaddingLeft(1),

		BoxLabel:   plain.Foreground(p.Body).Background(p.Stroke).Bold(true).Padding(0, 1),
		BoxCoords:  plain.Foreground(p.Stroke),
		Confidence: plain.Foreground(p.Good),
		ImagePath:  plain.Foreground(p.Link).Underline(true),

		Busy:    plain.Foreground(p.Faint),
		Phase:   plain.Foreground(p.Stroke).Bold(true),
		Key:     plain.Foreground(p.Frame),
		KeyHelp: plain.Foreground(p.Faint),
		Footer:  plain.Foreground(p.Faint).MarginTop(1),
	}
}

func DefaultStyles() Styles {
	return NewStyles(DefaultPalette())
}

// Detection renders a located box with its confidence, followed by the
// annotated file on its own line when there is one.
func (s Styles) Detection(label string, box []float64, coordinates string, confidence float64, image string) string {
	coords := make([]string, len(box))
	for i, c := range box {
		if coordinates == vision.Pixel {
			coords[i] = fmt.Sprintf("%.0f", c)
		} else {
			coords[i] = fmt.Sprintf("%.3f", c)
		}
	}

	parts := []string{
		s.BoxLabel.Render(label),
		s.BoxCoords.Render("[" + strings.Join(coords, ", ") + "] " + coordinates),
	}
	if confidence > 0 {
		parts = append(parts, s.Confidence.Render(fmt.Sprintf("%.0f%%", confidence*100)))
	}
	line := strings.Join(parts, " ")
	if image != "" {
		line += "\n" + s.ImagePath.Render(image)
	}
	return line
}

// Banner returns the ASCII art banner.
func Banner() string {
	return `
 ┌───────────────────────────────────────────────────────────────┐
 │  ████████╗ ██████╗  ██████╗ ██╗     ██╗      ██████╗  ██████╗ │
 │  ╚══██╔══╝██╔═══██╗██╔═══██╗██║     ██║     ██╔═══██╗██╔══██╗│
 │     ██║   ██║   ██║██║   ██║██║     ██║     ██║   ██║██████╔╝│
 │     ██║   ██║   ██║██║   ██║██║     ██║     ██║   ██║██╔═══╝ │
 │     ██║   ╚██████╔╝╚██████╔╝███████╗███████╗╚██████╔╝██║     │
 │     ╚═╝    ╚═════╝  ╚═════╝ ╚══════╝╚══════╝ ╚═════╝ ╚═╝     │
 └──────── Tool-Calling Agent for Bounding-Box Detection ────────┘`
}
