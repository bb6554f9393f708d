package tracker

import (
	api "github.com/etesami/roi-watcher/api"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

type NativeKind string

const (
	NativeCSRT NativeKind = "csrt"
	NativeKCF  NativeKind = "kcf"
)

// NativeTracker delegates to an OpenCV contrib tracker. Any failure inside
// the native update is reported as NotFound.
type NativeTracker struct {
	kind    NativeKind
	tracker gocv.Tracker
	state   State
}

func NewNativeTracker(kind NativeKind) (*NativeTracker, error) {
	if !nativeCompiled() {
		return nil, errors.New("native tracking is not compiled in (built with nocontrib)")
	}
	t, err := newContribTracker(kind)
	if err != nil {
		return nil, err
	}
	return &NativeTracker{
		kind:    kind,
		tracker: t,
		state:   State{Mode: ModeNative},
	}, nil
}

func NewNativeFactory(kind NativeKind) Factory {
	return func() (Tracker, error) {
		return NewNativeTracker(kind)
	}
}

func (n *NativeTracker) Init(frame gocv.Mat, box api.BoundingBox) error {
	if err := checkInit(frame, box); err != nil {
		return err
	}
	if n.tracker == nil {
		return &InitError{Box: box, Reason: "tracker closed"}
	}
	if ok := n.tracker.Init(frame, box.Rect()); !ok {
		return &InitError{Box: box, Reason: "native tracker rejected the region"}
	}
	n.state.LastKnownBox = box
	return nil
}

func (n *NativeTracker) Update(frame gocv.Mat) (res Result) {
	if n.tracker == nil || frame.Empty() {
		return NotFound
	}
	defer func() {
		if r := recover(); r != nil {
			res = NotFound
		}
	}()
	rect, ok := n.tracker.Update(frame)
	if !ok {
		return NotFound
	}
	box := api.FromRect(rect)
	if !box.Valid() {
		return NotFound
	}
	n.state.LastKnownBox = box
	return Result{Box: box, Confidence: 1.0, Found: true}
}

func (n *NativeTracker) State() State {
	return n.state
}

func (n *NativeTracker) Close() error {
	if n.tracker == nil {
		return nil
	}
	err := n.tracker.Close()
	n.tracker = nil
	return err
}
