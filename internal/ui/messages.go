// Package ui provides the Bubble Tea TUI for readwatch.
package ui

import "github.com/abelbrown/readwatch/internal/store"

// MessagesLoaded is sent when the chat's messages are fetched from the store.
type MessagesLoaded struct {
	Messages      []store.Message
	FirstUnreadID int          // 0 when every message is read
	Counts        store.Counts // chat-wide totals; zero when unknown
	Err           error
}

// MessagesArrived is sent after new messages were written to the store.
type MessagesArrived struct {
	ChatID int64
	Count  int
}

type mediaKind int

const (
	mediaLoading mediaKind = iota
	mediaPlaying
)

// mediaChanged carries an auxiliary observer entry back into Update.
type mediaChanged struct {
	ID      int
	Kind    mediaKind
	Visible bool
}
