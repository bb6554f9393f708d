// Package drift classifies a tracker result against the baseline position.
package drift

import (
	"fmt"

	api "github.com/etesami/roi-watcher/api"
	"github.com/etesami/roi-watcher/internal/tracker"
)

// DefaultThreshold is the default drift, in pixels, above which the object
// counts as moved.
const DefaultThreshold = 40

type Kind int

const (
	Normal Kind = iota
	Moved
	Lost
)

func (k Kind) String() string {
	switch k {
	case Normal:
		return "normal"
	case Moved:
		return "moved"
	case Lost:
		return "lost"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Classification is derived fresh every frame. DriftPixels is set whenever
// the object was located, including Normal frames.
type Classification struct {
	Kind        Kind
	DriftPixels float64
}

// Alerting reports whether the classification should drive the governor.
func (c Classification) Alerting() bool {
	return c.Kind == Moved || c.Kind == Lost
}

type Evaluator struct {
	Threshold float64
}

func NewEvaluator(threshold float64) Evaluator {
	return Evaluator{Threshold: threshold}
}

// Classify measures the cumulative displacement of the result's centre from
// the baseline centre. The comparison is strict: a drift equal to the
// threshold is Normal.
func (e Evaluator) Classify(baseline api.Point, r tracker.Result) Classification {
	if !r.Found {
		return Classification{Kind: Lost}
	}
	d := r.Box.Center().Distance(baseline)
	if d > e.Threshold {
		return Classification{Kind: Moved, DriftPixels: d}
	}
	return Classification{Kind: Normal, DriftPixels: d}
}
