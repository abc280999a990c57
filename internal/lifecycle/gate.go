// Package lifecycle suspends an observer while the app is in the background.
package lifecycle

import "sync"

// State of a Gate.
type State int

const (
	Active State = iota
	Suspended
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Freezer is the part of an observer the gate drives.
type Freezer interface {
	Freeze()
	Unfreeze()
}

// Gate freezes its target on Background and unfreezes it on Foreground.
// It starts Active. Signals that do not change the state are ignored.
type Gate struct {
	mu       sync.Mutex
	target   Freezer
	state    State
	onChange func(from, to State)
}

// NewGate wraps target. onChange, if non-nil, runs after every transition.
func NewGate(target Freezer, onChange func(from, to State)) *Gate {
	return &Gate{target: target, state: Active, onChange: onChange}
}

// Background suspends the target.
func (g *Gate) Background() {
	g.transition(Suspended)
}

// Foreground resumes the target.
func (g *Gate) Foreground() {
	g.transition(Active)
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) transition(to State) {
	g.mu.Lock()
	from := g.state
	if from == to {
		g.mu.Unlock()
		return
	}
	g.state = to
	if to == Suspended {
		g.target.Freeze()
	} else {
		g.target.Unfreeze()
	}
	g.mu.Unlock()

	if g.onChange != nil {
		g.onChange(from, to)
	}
}
