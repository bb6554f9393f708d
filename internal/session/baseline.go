package session

import (
	"time"

	api "github.com/etesami/roi-watcher/api"

	"github.com/google/uuid"
)

// Baseline is fixed at ROI confirmation; drift is always measured from
// Center. It is replaced wholesale on reselect.
type Baseline struct {
	ID        string          `json:"id"`
	Box       api.BoundingBox `json:"box"`
	Center    api.Point       `json:"center"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewBaseline(box api.BoundingBox, now time.Time) Baseline {
	return Baseline{
		ID:        uuid.NewString(),
		Box:       box,
		Center:    box.Center(),
		CreatedAt: now,
	}
}
