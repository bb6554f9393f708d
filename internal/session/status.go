package session

import (
	"time"

	api "github.com/etesami/roi-watcher/api"
)

// Status is a read-only copy of the last tick, safe to hand to other
// goroutines.
type Status struct {
	Running        bool            `json:"running"`
	Label          string          `json:"label"`
	Source         string          `json:"source"`
	Mode           string          `json:"mode"`
	BaselineID     string          `json:"baseline_id"`
	Baseline       api.BoundingBox `json:"baseline"`
	LastBox        api.BoundingBox `json:"last_box"`
	Found          bool            `json:"found"`
	Classification string          `json:"classification"`
	DriftPixels    float64         `json:"drift_pixels"`
	Confidence     float64         `json:"confidence"`
	Governor       string          `json:"governor"`
	LastAlert      time.Time       `json:"last_alert"`
	Frames         int64           `json:"frames"`
	Alerts         int64           `json:"alerts"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func boxMap(b api.BoundingBox) map[string]any {
	return map[string]any{"x": b.X, "y": b.Y, "width": b.Width, "height": b.Height}
}

// Map flattens the status for the gRPC feed.
func (s Status) Map() map[string]any {
	return map[string]any{
		"running":        s.Running,
		"label":          s.Label,
		"source":         s.Source,
		"mode":           s.Mode,
		"baseline_id":    s.BaselineID,
		"baseline":       boxMap(s.Baseline),
		"last_box":       boxMap(s.LastBox),
		"found":          s.Found,
		"classification": s.Classification,
		"drift_pixels":   s.DriftPixels,
		"confidence":     s.Confidence,
		"governor":       s.Governor,
		"last_alert":     s.LastAlert,
		"frames":         s.Frames,
		"alerts":         s.Alerts,
		"updated_at":     s.UpdatedAt,
	}
}

func (c *Controller) publish(t Tick) {
	prev := c.Status()
	st := Status{
		Running:        true,
		Label:          c.opts.Label,
		Source:         t.Source,
		Mode:           string(c.tracker.State().Mode),
		BaselineID:     t.Baseline.ID,
		Baseline:       t.Baseline.Box,
		LastBox:        c.tracker.State().LastKnownBox,
		Found:          t.Result.Found,
		Classification: t.Classification.Kind.String(),
		DriftPixels:    t.Classification.DriftPixels,
		Confidence:     t.Result.Confidence,
		Governor:       c.gov.State(t.Time).String(),
		LastAlert:      c.gov.LastAlert(),
		Frames:         prev.Frames + 1,
		Alerts:         prev.Alerts,
		UpdatedAt:      t.Time,
	}
	if t.Fired {
		st.Alerts++
	}
	c.status.Store(st)
}

func (c *Controller) markStopped() {
	st := c.Status()
	st.Running = false
	c.status.Store(st)
}
