package governor

import (
	"testing"
	"time"

	"github.com/etesami/roi-watcher/internal/drift"

	"github.com/stretchr/testify/assert"
)

var (
	normal = drift.Classification{Kind: drift.Normal, DriftPixels: 38}
	moved  = drift.Classification{Kind: drift.Moved, DriftPixels: 50}
	lost   = drift.Classification{Kind: drift.Lost}
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

func TestFirstAlertFiresFromIdle(t *testing.T) {
	g := New(DefaultCooldown)
	assert.Equal(t, Idle, g.State(at(0)))
	assert.True(t, g.Step(moved, at(0)))
	assert.Equal(t, Cooldown, g.State(at(0)))
	assert.Equal(t, at(0), g.LastAlert())
}

func TestNormalNeverFires(t *testing.T) {
	g := New(DefaultCooldown)
	for i := 0; i < 20; i++ {
		assert.False(t, g.Step(normal, at(float64(i))))
	}
	assert.True(t, g.LastAlert().IsZero())
}

func TestSuppressedWithinCooldown(t *testing.T) {
	g := New(DefaultCooldown)
	fired := 0
	// 100 alerting frames at 30fps span ~3.3s, shorter than the cooldown
	for i := 0; i < 100; i++ {
		c := moved
		if i%3 == 0 {
			c = lost
		}
		if g.Step(c, at(float64(i)/30)) {
			fired++
		}
	}
	assert.Equal(t, 1, fired)
}

func TestRealertAfterCooldown(t *testing.T) {
	g := New(DefaultCooldown)
	assert.True(t, g.Step(lost, at(0)))
	assert.False(t, g.Step(lost, at(4.999)))
	assert.True(t, g.Step(lost, at(5)), "elapsed == cooldown re-alerts")
	assert.Equal(t, at(5), g.LastAlert())
	assert.Equal(t, Cooldown, g.State(at(5)))
}

func TestScenario(t *testing.T) {
	g := New(5 * time.Second)
	assert.False(t, g.Step(normal, at(0)), "t1 within threshold")
	assert.True(t, g.Step(moved, at(1)), "t2 first move")
	assert.False(t, g.Step(moved, at(2)), "t3 inside cooldown")
	assert.True(t, g.Step(moved, at(7)), "t8 six seconds after t2")
}

func TestCooldownExpiryIsTimeBased(t *testing.T) {
	g := New(5 * time.Second)
	assert.True(t, g.Step(moved, at(0)))

	// returning to normal does not end the cooldown early
	assert.False(t, g.Step(normal, at(1)))
	assert.Equal(t, Cooldown, g.State(at(1)))
	assert.False(t, g.Step(moved, at(2)))

	// once enough time passed a normal frame drops to idle
	assert.False(t, g.Step(normal, at(6)))
	assert.Equal(t, Idle, g.State(at(6)))
	assert.True(t, g.Step(lost, at(6.5)))
}

func TestStateQueryDoesNotMutate(t *testing.T) {
	g := New(time.Second)
	g.Step(moved, at(0))
	assert.Equal(t, Idle, g.State(at(10)))
	assert.Equal(t, at(0), g.LastAlert())
}

func TestLastAlertMonotonic(t *testing.T) {
	g := New(time.Second)
	assert.True(t, g.Step(moved, at(10)))
	assert.False(t, g.Step(normal, at(12)))
	assert.Equal(t, Idle, g.State(at(12)))
	// wall clock stepped back behind the last alert
	assert.True(t, g.Step(moved, at(9)))
	assert.Equal(t, at(10), g.LastAlert())
}

func TestZeroCooldownAlertsEveryFrame(t *testing.T) {
	g := New(0)
	for i := 0; i < 5; i++ {
		assert.True(t, g.Step(moved, at(float64(i))))
	}
}

func TestReset(t *testing.T) {
	g := New(time.Minute)
	g.Step(moved, at(0))
	g.Reset()
	assert.True(t, g.Step(moved, at(1)))
}
