package tui

import "github.com/balkashynov/wotrack/internal/models"

// Palette for the board and the order form. Amber/steel, readable on the
// dark terminals used at the workstations.
const (
	ColorBorder = "#4B5563"

	ColorPrimaryText   = "#F3F4F6"
	ColorSecondaryText = "#9CA3AF"
	ColorPlaceholder   = "#6B7280"
	ColorHelpText      = "240"

	ColorAccentMain   = "#D97706"
	ColorAccentBright = "#FBBF24"

	ColorError   = "#EF4444"
	ColorSuccess = "#22C55E"
	ColorWarning = "#F59E0B"
)

// statusColor picks the foreground for a timer status cell.
func statusColor(status models.TimerStatus) string {
	switch status {
	case models.TimerRunning:
		return ColorSuccess
	case models.TimerPaused:
		return ColorWarning
	case models.TimerFinalized:
		return ColorSecondaryText
	default:
		return ColorPrimaryText
	}
}
