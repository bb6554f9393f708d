package session

import (
	"context"

	api "github.com/etesami/roi-watcher/api"

	"gocv.io/x/gocv"
)

type SignalKind int

const (
	Confirm SignalKind = iota
	Cancel
	Reselect
	Quit
)

func (k SignalKind) String() string {
	switch k {
	case Confirm:
		return "confirm"
	case Cancel:
		return "cancel"
	case Reselect:
		return "reselect"
	case Quit:
		return "quit"
	}
	return "unknown"
}

// Signal is a discrete control event from the UI or the HTTP control surface.
// Box is set on Confirm, and optionally on Reselect to skip interactive
// selection.
type Signal struct {
	Kind SignalKind
	Box  *api.BoundingBox
}

// FrameSource delivers frames. The caller owns the returned Mat and closes it.
type FrameSource interface {
	Read(ctx context.Context) (api.FrameData, error)
}

// ROISelector asks for a region on frame. It answers with Confirm and a box,
// Cancel, or Quit. hint, when set, is a box already chosen elsewhere.
type ROISelector interface {
	Select(ctx context.Context, frame gocv.Mat, hint *api.BoundingBox) (Signal, error)
}

// Renderer shows the annotated frame and returns any signals the user gave
// while it was on screen.
type Renderer interface {
	Render(frame gocv.Mat, t Tick) []Signal
}
