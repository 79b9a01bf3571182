// Package confirm implements the "click again within N seconds" gate that
// protects irreversible operator actions.
//
// A single slot holds the armed action, so at most one action can be armed
// at a time: arming one action supersedes whatever was armed before.
package confirm

import (
	"fmt"
	"sync"
	"time"

	"botwatch/internal/logging"
)

// DefaultWindow is how long an armed action waits for its second click.
const DefaultWindow = 5 * time.Second

// Kind identifies a confirmable action.
type Kind string

const (
	StopBot     Kind = "stopBot"
	StopMonitor Kind = "stopMonitor"
	SwitchMode  Kind = "switchMode"
	Logout      Kind = "logout"
)

// Label returns the button name shown to the operator.
func (k Kind) Label() string {
	switch k {
	case StopBot:
		return "Stop Bot"
	case StopMonitor:
		return "Stop Monitor"
	case SwitchMode:
		return "Switch Mode"
	case Logout:
		return "Logout"
	default:
		return string(k)
	}
}

// Action is a confirmable action together with its target. Only
// StopMonitor uses a target (the execution id).
type Action struct {
	Kind   Kind
	Target string
}

func (a Action) String() string {
	if a.Target == "" {
		return string(a.Kind)
	}
	return fmt.Sprintf("%s(%s)", a.Kind, a.Target)
}

// State is a lifecycle state of an armed action.
type State string

const (
	Idle       State = "IDLE"
	Armed      State = "ARMED"
	Confirmed  State = "CONFIRMED"
	Expired    State = "EXPIRED"
	Superseded State = "SUPERSEDED"
)

// Outcome is the result of one invocation.
type Outcome int

const (
	// OutcomeArmed means the action now waits for a second invocation.
	OutcomeArmed Outcome = iota
	// OutcomeConfirmed means the caller must perform the action now.
	OutcomeConfirmed
)

func (o Outcome) String() string {
	if o == OutcomeConfirmed {
		return "confirmed"
	}
	return "armed"
}

// Transition describes one state change, for observers.
type Transition struct {
	Action Action
	From   State
	To     State
	At     time.Time
}

type slot struct {
	action   Action
	deadline time.Time
	timer    Timer
	seq      uint64
}

// Gate is the confirmation state machine shared by all confirmable actions.
type Gate struct {
	mu       sync.Mutex
	clock    Clock
	window   time.Duration
	log      logging.Sink
	armed    *slot
	seq      uint64
	observer func(Transition)
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock sets the timer primitive.
func WithClock(c Clock) Option {
	return func(g *Gate) { g.clock = c }
}

// WithWindow sets the confirmation window.
func WithWindow(d time.Duration) Option {
	return func(g *Gate) { g.window = d }
}

// WithObserver registers a callback for every transition.
func WithObserver(fn func(Transition)) Option {
	return func(g *Gate) { g.observer = fn }
}

// NewGate creates a gate reporting to log.
func NewGate(log logging.Sink, options ...Option) *Gate {
	g := &Gate{
		clock:  RealClock(),
		window: DefaultWindow,
		log:    log,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Window returns the confirmation window.
func (g *Gate) Window() time.Duration {
	return g.window
}

// Invoke registers one click on a. The first click arms a; a second click
// on the same action before the deadline confirms it. A click after the
// deadline arms again, so a confirmation never carries across an expiry.
func (g *Gate) Invoke(a Action) Outcome {
	g.mu.Lock()
	now := g.clock.Now()
	var events []Transition

	if cur := g.armed; cur != nil {
		switch {
		case !now.Before(cur.deadline):
			events = append(events, g.clearLocked(Expired, now))
		case cur.action == a:
			events = append(events, g.clearLocked(Confirmed, now))
			g.mu.Unlock()
			g.notify(events)
			return OutcomeConfirmed
		default:
			events = append(events, g.clearLocked(Superseded, now))
		}
	}

	g.seq++
	seq := g.seq
	g.armed = &slot{
		action:   a,
		deadline: now.Add(g.window),
		seq:      seq,
	}
	g.armed.timer = g.clock.AfterFunc(g.window, func() { g.expire(seq) })
	events = append(events, Transition{Action: a, From: Idle, To: Armed, At: now})
	g.mu.Unlock()

	g.log.Warning("%s", g.prompt(a))
	g.notify(events)
	return OutcomeArmed
}

func (g *Gate) prompt(a Action) string {
	secs := int(g.window / time.Second)
	if a.Kind == StopMonitor {
		return fmt.Sprintf("Click %q again for strategy %s within %d seconds to confirm.", a.Kind.Label(), a.Target, secs)
	}
	return fmt.Sprintf("Click %q again within %d seconds to confirm.", a.Kind.Label(), secs)
}

// expire clears the slot if it still holds the arming identified by seq.
func (g *Gate) expire(seq uint64) {
	g.mu.Lock()
	if g.armed == nil || g.armed.seq != seq {
		g.mu.Unlock()
		return
	}
	ev := g.clearLocked(Expired, g.clock.Now())
	g.mu.Unlock()
	g.notify([]Transition{ev})
}

func (g *Gate) clearLocked(to State, at time.Time) Transition {
	cur := g.armed
	if cur.timer != nil {
		cur.timer.Stop()
	}
	g.armed = nil
	return Transition{Action: cur.action, From: Armed, To: to, At: at}
}

func (g *Gate) notify(events []Transition) {
	if g.observer == nil {
		return
	}
	for _, ev := range events {
		g.observer(ev)
	}
}

// Armed returns the currently armed action and its deadline.
func (g *Gate) Armed() (Action, time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.armed == nil || !g.clock.Now().Before(g.armed.deadline) {
		return Action{}, time.Time{}, false
	}
	return g.armed.action, g.armed.deadline, true
}

// IsArmed reports whether a is the armed action.
func (g *Gate) IsArmed(a Action) bool {
	cur, _, ok := g.Armed()
	return ok && cur == a
}

// Cancel disarms whatever is armed. Used on teardown.
func (g *Gate) Cancel() {
	g.mu.Lock()
	if g.armed == nil {
		g.mu.Unlock()
		return
	}
	ev := g.clearLocked(Expired, g.clock.Now())
	g.mu.Unlock()
	g.notify([]Transition{ev})
}
