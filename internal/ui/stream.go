package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/readwatch/internal/lifecycle"
	"github.com/abelbrown/readwatch/internal/store"
)

// mediaState is what the auxiliary observers have reported for a media row.
type mediaState struct {
	loaded  bool // has entered the loading region at least once
	playing bool // currently on screen
}

func (s mediaState) label() string {
	switch {
	case s.playing:
		return "[▶ playing]"
	case s.loaded:
		return "[loaded]"
	default:
		return "[loading…]"
	}
}

// album is a run of consecutive media messages from one sender. It is drawn
// with a rail and read as a unit, like a grouped media post. first and last
// are indexes into the message slice.
type album struct {
	first, last int
}

// findAlbums returns every run of two or more consecutive media messages
// from the same sender, in order.
func findAlbums(msgs []store.Message) []album {
	var out []album
	for i := 0; i < len(msgs); {
		j := i
		if msgs[i].HasMedia {
			for j+1 < len(msgs) && msgs[j+1].HasMedia && msgs[j+1].Sender == msgs[i].Sender {
				j++
			}
		}
		if j > i {
			out = append(out, album{first: i, last: j})
		}
		i = j + 1
	}
	return out
}

// calcScrollOffset moves offset the least amount needed to keep cursor
// inside a window of height rows, clamped to the list.
func calcScrollOffset(cursor, offset, height, total int) int {
	if total == 0 || height <= 0 {
		return 0
	}
	if cursor < offset {
		offset = cursor
	}
	if cursor >= offset+height {
		offset = cursor - height + 1
	}
	if last := total - height; offset > last {
		offset = last
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}

// RenderStream renders rows offset..offset+height of the message list, one
// terminal line per message.
func RenderStream(msgs []store.Message, media map[int]mediaState, cursor, offset, width, height int, mobile bool) string {
	if len(msgs) == 0 {
		return HelpStyle.Render("No messages yet.")
	}

	rails := make(map[int]string)
	for _, a := range findAlbums(msgs) {
		for i := a.first; i <= a.last; i++ {
			switch i {
			case a.first:
				rails[i] = "┌"
			case a.last:
				rails[i] = "└"
			default:
				rails[i] = "│"
			}
		}
	}

	var b strings.Builder
	for i := offset; i < len(msgs) && i < offset+height; i++ {
		m := msgs[i]
		b.WriteString(renderRow(m, media[m.ID], rails[i], i == cursor, width, mobile))
		b.WriteString("\n")
	}
	return b.String()
}

// renderRow renders a single message line.
func renderRow(m store.Message, media mediaState, rail string, selected bool, width int, mobile bool) string {
	senderWidth := 12
	if mobile {
		senderWidth = 8
	}

	dot := " "
	if !m.Read {
		dot = "●"
	}
	if rail == "" {
		rail = " "
	}

	var prefix string
	if mobile {
		prefix = fmt.Sprintf("%s%s %s ", dot, rail, padRunes(m.Sender, senderWidth))
	} else {
		prefix = fmt.Sprintf("%s%s %5d %s ", dot, rail, m.ID, padRunes(m.Sender, senderWidth))
	}

	var badges []string
	if m.HasMention {
		badges = append(badges, "@")
	}
	if m.HasReaction {
		badges = append(badges, "♥")
	}
	if m.HasMedia {
		badges = append(badges, media.label())
	}
	suffix := ""
	if len(badges) > 0 {
		suffix = " " + strings.Join(badges, " ")
	}
	age := ""
	if !mobile && !m.Created.IsZero() {
		age = " " + formatAgeShort(m.Created)
	}

	bodyWidth := width - utf8.RuneCountInString(prefix) - utf8.RuneCountInString(suffix) - utf8.RuneCountInString(age)
	if bodyWidth < 10 {
		bodyWidth = 10
	}
	body := padRunes(truncateRunes(m.Body, bodyWidth), bodyWidth)

	if selected {
		return SelectedItem.Render(prefix + body + suffix + age)
	}

	textStyle := NormalItem
	if m.Read {
		textStyle = ReadItem
	}

	var out strings.Builder
	if m.Read {
		out.WriteString(" ")
	} else {
		out.WriteString(UnreadDot.Render(dot))
	}
	out.WriteString(AlbumRail.Render(rail))
	out.WriteString(" ")
	if !mobile {
		out.WriteString(MetaItem.Render(fmt.Sprintf("%5d", m.ID)))
		out.WriteString(" ")
	}
	out.WriteString(SenderStyle.Render(padRunes(m.Sender, senderWidth)))
	out.WriteString(" ")
	out.WriteString(textStyle.Render(body))
	for _, badge := range badges {
		out.WriteString(" ")
		switch badge {
		case "@":
			out.WriteString(MentionBadge.Render(badge))
		case "♥":
			out.WriteString(ReactionBadge.Render(badge))
		default:
			out.WriteString(MediaTag.Render(badge))
		}
	}
	if age != "" {
		out.WriteString(MetaItem.Render(age))
	}
	return out.String()
}

// padRunes truncates or right-pads s to exactly n runes.
func padRunes(s string, n int) string {
	s = truncateRunes(s, n)
	if pad := n - utf8.RuneCountInString(s); pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s
}

func formatAgeShort(created time.Time) string {
	age := time.Since(created)
	switch {
	case age < time.Minute:
		return "now"
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}

// statusInfo is everything the status bar shows.
type statusInfo struct {
	cursor, total               int
	unread, mentions, reactions int
	tracking                    lifecycle.State
	mobile, loading             bool
}

// RenderStatusBar renders the bottom status bar with counters and key hints.
func RenderStatusBar(s statusInfo, width int) string {
	var left string
	if s.loading {
		left = " Loading... "
	} else if s.total == 0 {
		left = " 0/0 "
	} else {
		left = fmt.Sprintf(" %d/%d ", s.cursor+1, s.total)
	}
	left += StatusBarText.Render(fmt.Sprintf(" unread %d  @%d  ♥%d ", s.unread, s.mentions, s.reactions))
	if s.tracking == lifecycle.Suspended {
		left += " " + SuspendedBadge.Render("paused")
	}

	layoutName := "desktop"
	if s.mobile {
		layoutName = "mobile"
	}
	keys := []string{
		StatusBarText.Render(layoutName),
		StatusBarKey.Render("j/k") + StatusBarText.Render(":nav"),
		StatusBarKey.Render("s") + StatusBarText.Render(":pause"),
		StatusBarKey.Render("D") + StatusBarText.Render(":debug"),
		StatusBarKey.Render("q") + StatusBarText.Render(":quit"),
	}
	if s.mobile {
		keys = keys[:1]
	}
	keyHints := strings.Join(keys, " ")

	padding := width - lipgloss.Width(left) - lipgloss.Width(keyHints) - 2
	if padding < 0 {
		padding = 0
	}

	bar := left + strings.Repeat(" ", padding) + keyHints
	return StatusBar.Width(width).Render(bar)
}
