package confirm

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	warnings []string
}

func (r *recordingSink) Info(string, ...interface{})    {}
func (r *recordingSink) Success(string, ...interface{}) {}
func (r *recordingSink) Error(string, ...interface{})   {}

func (r *recordingSink) Warning(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}

func newTestGate(t *testing.T) (*Gate, *ManualClock, *recordingSink, *[]Transition) {
	t.Helper()
	clock := NewManualClock(time.Date(2024, 11, 21, 9, 30, 0, 0, time.UTC))
	sink := &recordingSink{}
	var events []Transition
	g := NewGate(sink, WithClock(clock), WithObserver(func(tr Transition) {
		events = append(events, tr)
	}))
	return g, clock, sink, &events
}

func TestGate_SecondClickConfirms(t *testing.T) {
	g, clock, sink, _ := newTestGate(t)
	stop := Action{Kind: StopBot}

	assert.Equal(t, OutcomeArmed, g.Invoke(stop))
	require.Equal(t, 1, sink.count())
	assert.Equal(t, `Click "Stop Bot" again within 5 seconds to confirm.`, sink.warnings[0])
	assert.True(t, g.IsArmed(stop))

	clock.Advance(4 * time.Second)
	assert.Equal(t, OutcomeConfirmed, g.Invoke(stop))
	assert.False(t, g.IsArmed(stop))
	assert.Equal(t, 0, clock.Pending(), "confirming must clear the expiry timer")
}

func TestGate_ExpiryDoesNotBank(t *testing.T) {
	g, clock, sink, events := newTestGate(t)
	stop := Action{Kind: StopBot}

	g.Invoke(stop)
	clock.Advance(5001 * time.Millisecond)

	assert.False(t, g.IsArmed(stop))
	assert.Equal(t, OutcomeArmed, g.Invoke(stop), "a click after expiry must re-arm")
	assert.Equal(t, 2, sink.count(), "the warning is logged again")

	var states []State
	for _, ev := range *events {
		states = append(states, ev.To)
	}
	assert.Equal(t, []State{Armed, Expired, Armed}, states)
}

func TestGate_ExpiryAtDeadlineWithoutTimer(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	g := NewGate(&recordingSink{}, WithClock(clock))
	stop := Action{Kind: StopBot}

	g.Invoke(stop)
	// Drop the timer to exercise the invoke-time deadline check alone.
	g.mu.Lock()
	g.armed.timer.Stop()
	g.mu.Unlock()

	clock.Advance(DefaultWindow)
	assert.Equal(t, OutcomeArmed, g.Invoke(stop))
}

func TestGate_MutualExclusion(t *testing.T) {
	g, _, _, events := newTestGate(t)
	monitorX := Action{Kind: StopMonitor, Target: "X"}
	mode := Action{Kind: SwitchMode}

	g.Invoke(monitorX)
	g.Invoke(mode)

	assert.False(t, g.IsArmed(monitorX))
	assert.True(t, g.IsArmed(mode))
	assert.Equal(t, OutcomeArmed, g.Invoke(monitorX), "superseded action re-arms instead of executing")
	assert.False(t, g.IsArmed(mode))

	require.GreaterOrEqual(t, len(*events), 3)
	assert.Equal(t, Transition{Action: monitorX, From: Armed, To: Superseded, At: (*events)[1].At}, (*events)[1])
}

func TestGate_DifferentMonitorTargetArmsAnew(t *testing.T) {
	g, _, sink, _ := newTestGate(t)

	g.Invoke(Action{Kind: StopMonitor, Target: "exec-1"})
	out := g.Invoke(Action{Kind: StopMonitor, Target: "exec-2"})

	assert.Equal(t, OutcomeArmed, out)
	assert.True(t, g.IsArmed(Action{Kind: StopMonitor, Target: "exec-2"}))
	assert.False(t, g.IsArmed(Action{Kind: StopMonitor, Target: "exec-1"}))
	assert.Contains(t, sink.warnings[1], "exec-2")
}

func TestGate_CancelClearsSlot(t *testing.T) {
	g, clock, _, _ := newTestGate(t)
	g.Invoke(Action{Kind: Logout})

	g.Cancel()

	_, _, ok := g.Armed()
	assert.False(t, ok)
	assert.Equal(t, 0, clock.Pending())
}

func TestGate_RealClockExpires(t *testing.T) {
	g := NewGate(&recordingSink{}, WithWindow(20*time.Millisecond))
	a := Action{Kind: SwitchMode}
	g.Invoke(a)

	assert.Eventually(t, func() bool { return !g.IsArmed(a) }, time.Second, 5*time.Millisecond)
}

// Property: at most one action is ever armed, whatever the click sequence.
func TestProperty_AtMostOneArmed(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	actions := []Action{
		{Kind: StopBot},
		{Kind: StopMonitor, Target: "a"},
		{Kind: StopMonitor, Target: "b"},
		{Kind: SwitchMode},
		{Kind: Logout},
	}

	properties.Property("single armed slot", prop.ForAll(
		func(clicks []int, gaps []int) bool {
			clock := NewManualClock(time.Unix(0, 0))
			g := NewGate(&recordingSink{}, WithClock(clock))
			var last *Action
			for i, c := range clicks {
				a := actions[c]
				out := g.Invoke(a)
				if out == OutcomeConfirmed && (last == nil || *last != a) {
					return false
				}
				armedCount := 0
				for _, candidate := range actions {
					if g.IsArmed(candidate) {
						armedCount++
					}
				}
				if armedCount > 1 {
					return false
				}
				if out == OutcomeConfirmed {
					last = nil
				} else {
					last = &actions[c]
				}
				clock.Advance(time.Duration(gaps[i%len(gaps)]) * time.Second)
				if !g.IsArmed(a) {
					last = nil
				}
			}
			return true
		},
		gen.SliceOfN(30, gen.IntRange(0, len(actions)-1)),
		gen.SliceOfN(30, gen.IntRange(0, 7)),
	))

	properties.TestingRun(t)
}
