package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/sdis/opsdash/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for section headers in command output.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// SubtleStyle renders secondary details such as dates and senders.
var SubtleStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// ErrorStyle renders failures.
var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// BorderStyle provides a standard rounded border for summaries.
var BorderStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder).
	Padding(0, 1)

// StatusStyle returns a color-coded style for an operation status.
func StatusStyle(status model.OperationStatus) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch status {
	case model.StatusPending:
		return base.Foreground(ColorBlue)
	case model.StatusInProgress:
		return base.Foreground(ColorYellow)
	case model.StatusResolved:
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}

// KindStyle returns a color-coded style for a radio-network notice kind.
func KindStyle(kind model.OperationKind) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch kind {
	case model.KindIncidentStart:
		return base.Foreground(ColorRed)
	case model.KindIncidentEnd:
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorBlue)
	}
}

// PowerTypeStyle highlights alerts over administrative notices.
func PowerTypeStyle(t model.PowerEventType) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	if t == model.PowerAlert {
		return base.Foreground(ColorOrange)
	}
	return base.Foreground(ColorGray)
}
