package style

import (
	"log/slog"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// --- Reusable Colors ---
var (
	colorPink      = lipgloss.Color("205")
	colorDarkGray  = lipgloss.Color("240")
	colorLightGray = lipgloss.Color("229")
	colorBlue      = lipgloss.Color("57")
	colorCyan      = lipgloss.Color("212")
	colorPurple    = lipgloss.Color("99")
	colorRed       = lipgloss.Color("196")
	colorOrange    = lipgloss.Color("214")
	colorGreen     = lipgloss.Color("78")
)

// --- General Purpose Styles ---
var (
	ErrorStyle         = lipgloss.NewStyle().Foreground(colorRed)
	TitleStyle         = lipgloss.NewStyle().Bold(true).Foreground(colorPink)
	HelpStyle          = lipgloss.NewStyle().Faint(true)
	HighlightFontStyle = lipgloss.NewStyle().Foreground(colorCyan)
	RunningStyle       = lipgloss.NewStyle().Foreground(colorGreen)
	StoppedStyle       = lipgloss.NewStyle().Foreground(colorDarkGray)
)

// --- Panel Frames ---
var (
	PanelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorDarkGray).
			Padding(0, 1)
	FocusedPanelStyle = PanelStyle.BorderForeground(colorPink)
)

// --- Picker Styles ---
var (
	CursorStyle     = lipgloss.NewStyle().Foreground(colorCyan).SetString("> ")
	NoCursorStyle   = lipgloss.NewStyle().SetString("  ")
	SelectedStyle   = lipgloss.NewStyle().Foreground(colorGreen).SetString("[x] ")
	DeselectedStyle = lipgloss.NewStyle().SetString("[ ] ")
	DirStyle        = lipgloss.NewStyle().Foreground(colorPurple)
	FileStyle       = lipgloss.NewStyle().Foreground(colorLightGray)
)

// --- Log Levels ---
var (
	logDebugStyle = lipgloss.NewStyle().Foreground(colorDarkGray)
	logInfoStyle  = lipgloss.NewStyle()
	logWarnStyle  = lipgloss.NewStyle().Foreground(colorOrange)
	logErrorStyle = lipgloss.NewStyle().Foreground(colorRed)
)

// LogLevelStyle returns the line style for a log level.
func LogLevelStyle(level slog.Level) lipgloss.Style {
	switch {
	case level >= slog.LevelError:
		return logErrorStyle
	case level >= slog.LevelWarn:
		return logWarnStyle
	case level >= slog.LevelInfo:
		return logInfoStyle
	default:
		return logDebugStyle
	}
}

// --- Common Components ---

// NewSpinner creates a spinner with a consistent style.
func NewSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPink)
	return s
}

// NewTableStyles returns the default styles for tables, with our custom selection style.
func NewTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Selected = styles.Selected.Foreground(colorLightGray).Background(colorBlue).Bold(false)
	return styles
}
