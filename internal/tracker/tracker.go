// Package tracker locates the watched region in successive frames.
//
// Two strategies share the Tracker contract: a native adaptive tracker backed
// by OpenCV contrib (CSRT or KCF) and a template-matching tracker that only
// needs core OpenCV. Select picks one of them once at process start.
package tracker

import (
	"fmt"

	api "github.com/etesami/roi-watcher/api"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ConfidenceThreshold is the minimum normalized cross-correlation score the
// template tracker accepts as a match.
const ConfidenceThreshold = 0.45

type Mode string

const (
	ModeNative   Mode = "native"
	ModeTemplate Mode = "template"
)

// Result is the outcome of one Update. Found == false is the NotFound outcome;
// it is a normal per-frame value, not an error.
type Result struct {
	Box        api.BoundingBox
	Confidence float64
	Found      bool
}

// NotFound is the zero Result.
var NotFound = Result{}

// State is the externally visible tracker state.
type State struct {
	Mode         Mode
	LastKnownBox api.BoundingBox
}

type Tracker interface {
	// Init captures the region to follow. It fails with an *InitError when the
	// box is degenerate or not fully inside the frame; the tracker is left
	// untouched in that case.
	Init(frame gocv.Mat, box api.BoundingBox) error
	Update(frame gocv.Mat) Result
	State() State
	Close() error
}

// Factory builds a fresh, uninitialized Tracker.
type Factory func() (Tracker, error)

// ErrInit matches every *InitError through errors.Is.
var ErrInit = errors.New("tracker init failed")

type InitError struct {
	Box    api.BoundingBox
	Reason string
}

func (e *InitError) Error() string {
	return fmt.Sprintf("invalid region %s: %s", e.Box, e.Reason)
}

func (e *InitError) Is(target error) bool {
	return target == ErrInit
}

func checkInit(frame gocv.Mat, box api.BoundingBox) error {
	if frame.Empty() {
		return &InitError{Box: box, Reason: "empty frame"}
	}
	if !box.Valid() {
		return &InitError{Box: box, Reason: "width and height must be positive"}
	}
	if !box.Inside(frame.Cols(), frame.Rows()) {
		return &InitError{Box: box, Reason: fmt.Sprintf("outside %dx%d frame", frame.Cols(), frame.Rows())}
	}
	return nil
}

// depthMask selects the element depth bits of a MatType.
const depthMask = 7

// grayInto writes a single-channel 8-bit copy of src into dst.
func grayInto(src gocv.Mat, dst *gocv.Mat) error {
	if depth := src.Type() & depthMask; depth != gocv.MatTypeCV8U {
		return errors.Errorf("unsupported element depth %d", depth)
	}
	var err error
	switch src.Channels() {
	case 1:
		err = src.CopyTo(dst)
	case 3:
		err = gocv.CvtColor(src, dst, gocv.ColorBGRToGray)
	case 4:
		err = gocv.CvtColor(src, dst, gocv.ColorBGRAToGray)
	default:
		return errors.Errorf("unsupported channel count %d", src.Channels())
	}
	return errors.Wrap(err, "grayscale conversion")
}
