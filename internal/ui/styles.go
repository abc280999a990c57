package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorWarn      = lipgloss.Color("214") // Orange
)

// SelectedItem style for the row under the cursor.
var SelectedItem = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary)

// NormalItem style for unread messages.
var NormalItem = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255"))

// ReadItem style for messages that have been read.
var ReadItem = lipgloss.NewStyle().
	Foreground(colorSecondary)

// SenderStyle for the sender column.
var SenderStyle = lipgloss.NewStyle().
	Foreground(colorHighlight)

// MetaItem style for ids and ages.
var MetaItem = lipgloss.NewStyle().
	Foreground(colorMuted)

// UnreadDot marks unread rows.
var UnreadDot = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true)

// MentionBadge and ReactionBadge mark unread mentions and reactions.
var (
	MentionBadge = lipgloss.NewStyle().
			Foreground(colorWarn).
			Bold(true)
	ReactionBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("204"))
)

// MediaTag style for the media state label.
var MediaTag = lipgloss.NewStyle().
	Foreground(lipgloss.Color("75"))

// AlbumRail marks rows that belong to an album.
var AlbumRail = lipgloss.NewStyle().
	Foreground(colorPrimary)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// SuspendedBadge shows that read tracking is paused.
var SuspendedBadge = lipgloss.NewStyle().
	Foreground(lipgloss.Color("0")).
	Background(colorWarn).
	Padding(0, 1)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("196")).
	Bold(true).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// DebugPanel frames the debug overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// DebugHeaderStyle for section headers inside the debug overlay.
var DebugHeaderStyle = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)
