package readstate

import "fmt"

// ListType is the kind of message list being shown.
type ListType string

const (
	ListThread    ListType = "thread"
	ListPinned    ListType = "pinned"
	ListScheduled ListType = "scheduled"
)

// TracksReads reports whether visibility in this list changes read state.
// Only the main thread view does.
func (t ListType) TracksReads() bool {
	return t == ListThread
}

// ParseListType validates a list type name.
func ParseListType(s string) (ListType, error) {
	switch t := ListType(s); t {
	case ListThread, ListPinned, ListScheduled:
		return t, nil
	default:
		return "", fmt.Errorf("unknown list type %q", s)
	}
}
