// Package governor rate-limits alerts with a wall-clock cooldown.
package governor

import (
	"time"

	"github.com/etesami/roi-watcher/internal/drift"
)

// DefaultCooldown is the default minimum interval between two alerts.
const DefaultCooldown = 5 * time.Second

type State int

const (
	Idle State = iota
	Cooldown
)

func (s State) String() string {
	if s == Cooldown {
		return "cooldown"
	}
	return "idle"
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Governor turns per-frame classifications into alert decisions.
// It is owned by the session loop and is not safe for concurrent use.
type Governor struct {
	cooldown  time.Duration
	state     State
	lastAlert time.Time
}

func New(cooldown time.Duration) *Governor {
	return &Governor{cooldown: cooldown}
}

// Step applies one classification observed at now and reports whether an
// alert must be emitted.
func (g *Governor) Step(c drift.Classification, now time.Time) bool {
	if !c.Alerting() {
		if g.state == Cooldown && now.Sub(g.lastAlert) > g.cooldown {
			g.state = Idle
		}
		return false
	}
	if g.state == Idle || now.Sub(g.lastAlert) >= g.cooldown {
		g.state = Cooldown
		// a clock step backwards must not move the timestamp back
		if now.After(g.lastAlert) {
			g.lastAlert = now
		}
		return true
	}
	return false
}

// State reports Idle or Cooldown as of now. Unlike Step it does not mutate.
func (g *Governor) State(now time.Time) State {
	if g.state == Cooldown && now.Sub(g.lastAlert) > g.cooldown {
		return Idle
	}
	return g.state
}

// LastAlert returns the time of the last emitted alert; zero means none.
func (g *Governor) LastAlert() time.Time {
	return g.lastAlert
}

func (g *Governor) Cooldown() time.Duration {
	return g.cooldown
}

// Reset forgets the last alert.
func (g *Governor) Reset() {
	g.state = Idle
	g.lastAlert = time.Time{}
}
