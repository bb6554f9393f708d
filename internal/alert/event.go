// Package alert performs the side effects of an emitted alert.
package alert

import (
	"fmt"
	"time"

	api "github.com/etesami/roi-watcher/api"
	"github.com/etesami/roi-watcher/internal/drift"
)

const (
	logTimeLayout  = "2006-01-02 15:04:05"
	fileTimeLayout = "2006-01-02_15-04-05"
)

type Kind string

const (
	KindMoved Kind = "moved"
	KindLost  Kind = "lost"
)

// KindOf maps an alerting classification to an event kind.
func KindOf(k drift.Kind) (Kind, bool) {
	switch k {
	case drift.Moved:
		return KindMoved, true
	case drift.Lost:
		return KindLost, true
	}
	return "", false
}

// Event is produced once per emitted alert and consumed immediately.
// DriftPixels is only meaningful for KindMoved; Box is the tracker's last
// located box, zero for KindLost.
type Event struct {
	Kind        Kind            `json:"kind"`
	DriftPixels float64         `json:"drift_pixels,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Label       string          `json:"label"`
	BaselineID  string          `json:"baseline_id"`
	Box         api.BoundingBox `json:"box"`
	Confidence  float64         `json:"confidence"`
}

func (e Event) HasDrift() bool {
	return e.Kind == KindMoved
}

// Message is the human readable reason, shared by the overlay and the log line.
func (e Event) Message() string {
	if e.HasDrift() {
		return fmt.Sprintf("%s moved! (%dpx drift)", e.Label, int(e.DriftPixels))
	}
	return fmt.Sprintf("%s not detected!", e.Label)
}

// LogLine renders the alert line written to the alert stream.
func (e Event) LogLine() string {
	return fmt.Sprintf("[%s] *** ALERT *** %s", e.Timestamp.Format(logTimeLayout), e.Message())
}

// SnapshotName is derived from the event time at seconds resolution.
func (e Event) SnapshotName() string {
	return "alert_" + e.Timestamp.Format(fileTimeLayout) + ".jpg"
}
