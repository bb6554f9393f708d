package tracker

import (
	"image"
	"math"

	api "github.com/etesami/roi-watcher/api"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// TemplateTracker finds the region by normalized cross-correlation of a
// greyscale template captured once at Init.
type TemplateTracker struct {
	template  gocv.Mat
	gray      gocv.Mat
	result    gocv.Mat
	mask      gocv.Mat
	threshold float64
	state     State
}

func NewTemplateTracker() *TemplateTracker {
	return &TemplateTracker{
		template:  gocv.NewMat(),
		gray:      gocv.NewMat(),
		result:    gocv.NewMat(),
		mask:      gocv.NewMat(),
		threshold: ConfidenceThreshold,
		state:     State{Mode: ModeTemplate},
	}
}

func NewTemplateFactory() Factory {
	return func() (Tracker, error) {
		return NewTemplateTracker(), nil
	}
}

func (t *TemplateTracker) Init(frame gocv.Mat, box api.BoundingBox) error {
	if err := checkInit(frame, box); err != nil {
		return err
	}
	region := frame.Region(box.Rect())
	defer region.Close()

	tmpl := gocv.NewMat()
	if err := grayInto(region, &tmpl); err != nil {
		tmpl.Close()
		return errors.Wrap(&InitError{Box: box, Reason: err.Error()}, "capture template")
	}
	t.template.Close()
	t.template = tmpl
	t.state.LastKnownBox = box
	return nil
}

func (t *TemplateTracker) Update(frame gocv.Mat) Result {
	if t.template.Empty() || frame.Empty() {
		return NotFound
	}
	// the camera may change resolution under us
	if frame.Cols() < t.template.Cols() || frame.Rows() < t.template.Rows() {
		return NotFound
	}
	if err := grayInto(frame, &t.gray); err != nil {
		return NotFound
	}
	if err := gocv.MatchTemplate(t.gray, t.template, &t.result, gocv.TmCcoeffNormed, t.mask); err != nil {
		// result may still hold the previous frame's map
		return NotFound
	}
	if t.result.Empty() {
		return NotFound
	}
	_, maxVal, _, maxLoc := gocv.MinMaxLoc(t.result)

	res := t.accept(float64(maxVal), maxLoc)
	if res.Found {
		t.state.LastKnownBox = res.Box
	}
	return res
}

// accept turns the best match into a Result, applying the confidence threshold.
func (t *TemplateTracker) accept(score float64, loc image.Point) Result {
	if math.IsNaN(score) || score < t.threshold {
		return Result{Confidence: score}
	}
	return Result{
		Box: api.BoundingBox{
			X:      loc.X,
			Y:      loc.Y,
			Width:  t.template.Cols(),
			Height: t.template.Rows(),
		},
		Confidence: score,
		Found:      true,
	}
}

func (t *TemplateTracker) State() State {
	return t.state
}

func (t *TemplateTracker) Close() error {
	t.template.Close()
	t.gray.Close()
	t.result.Close()
	t.mask.Close()
	return nil
}
