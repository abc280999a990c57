// Package readstate turns batches of visibility entries from a message list
// into read-state actions: mark read up to an id, mark mentions read, and
// show reactions as seen.
package readstate

import (
	"strconv"

	"github.com/abelbrown/readwatch/internal/visibility"
)

// Entry is a visibility entry with its dataset decoded.
type Entry struct {
	MessageID         int
	LastMessageID     int  // set on run terminators; 0 otherwise
	RunTerminator     bool // last-message-id was present, even if malformed
	Visible           bool
	HasUnreadMention  bool
	HasUnreadReaction bool
}

// EffectiveID is LastMessageID for run terminators, MessageID otherwise.
// A terminator with a malformed last id yields <= 0 and is never counted
// under its first id.
func (e Entry) EffectiveID() int {
	if e.RunTerminator || e.LastMessageID != 0 {
		return e.LastMessageID
	}
	return e.MessageID
}

// Decode reads the typed fields out of a raw entry. Missing or malformed
// ids decode to 0; flags are set when the attribute is present and non-empty.
func Decode(raw visibility.Entry) Entry {
	last := raw.Data[visibility.AttrLastMessageID]
	return Entry{
		MessageID:         parseID(raw.Data[visibility.AttrMessageID]),
		LastMessageID:     parseID(last),
		RunTerminator:     last != "",
		Visible:           raw.Visible,
		HasUnreadMention:  raw.Data[visibility.AttrUnreadMention] != "",
		HasUnreadReaction: raw.Data[visibility.AttrUnreadReaction] != "",
	}
}

// DecodeAll decodes a flushed batch.
func DecodeAll(raw []visibility.Entry) []Entry {
	out := make([]Entry, len(raw))
	for i, r := range raw {
		out[i] = Decode(r)
	}
	return out
}

func parseID(s string) int {
	if s == "" {
		return 0
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return id
}

// Result summarizes one batch.
type Result struct {
	MaxID       int   // highest effective id among visible entries, 0 if none
	MentionIDs  []int // visible entries with an unread mention, in batch order
	ReactionIDs []int // visible entries with an unread reaction, in batch order
}

// Empty reports whether the result would trigger no action at all.
func (r Result) Empty() bool {
	return r.MaxID <= 0 && len(r.MentionIDs) == 0 && len(r.ReactionIDs) == 0
}

// Reduce summarizes a batch. Invisible entries are skipped. Entries without
// a usable id (<= 0) never raise MaxID and are left out of both lists.
func Reduce(entries []Entry) Result {
	var res Result
	for _, e := range entries {
		if !e.Visible {
			continue
		}
		id := e.EffectiveID()
		if id <= 0 {
			continue
		}
		if id > res.MaxID {
			res.MaxID = id
		}
		if e.HasUnreadMention {
			res.MentionIDs = append(res.MentionIDs, id)
		}
		if e.HasUnreadReaction {
			res.ReactionIDs = append(res.ReactionIDs, id)
		}
	}
	return res
}
