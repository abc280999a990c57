package readstate

// Actions receives read-state changes. Calls are fire-and-forget: the
// implementation reports its own failures.
type Actions interface {
	MarkReadUpTo(maxID int)
	MarkMentionsRead(ids []int)
	TriggerReactionSeen(ids []int)
}

// Dispatched records which actions a Dispatch call invoked.
type Dispatched struct {
	ReadUpTo  int // 0 when MarkReadUpTo was not called
	Mentions  int
	Reactions int
}

// Dispatch invokes at most one call per action for a reduced batch:
//   - MarkReadUpTo(res.MaxID) when the boundary is defined and MaxID reaches it
//   - MarkMentionsRead with the whole mention list when non-empty
//   - TriggerReactionSeen with the whole reaction list when non-empty
//
// Dispatch keeps no state, so equal inputs always produce equal calls.
func Dispatch(res Result, boundary *Boundary, actions Actions) Dispatched {
	var d Dispatched

	if first, ok := boundary.Current(); ok && res.MaxID >= first {
		actions.MarkReadUpTo(res.MaxID)
		d.ReadUpTo = res.MaxID
	}

	if len(res.MentionIDs) > 0 {
		actions.MarkMentionsRead(res.MentionIDs)
		d.Mentions = len(res.MentionIDs)
	}

	if len(res.ReactionIDs) > 0 {
		actions.TriggerReactionSeen(res.ReactionIDs)
		d.Reactions = len(res.ReactionIDs)
	}

	return d
}
