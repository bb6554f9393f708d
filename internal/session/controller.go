// Package session runs the watch loop: frame, tracker, drift, governor, sink.
//
// All core state (tracker, baseline, governor) is owned by the goroutine
// running Run. Other goroutines talk to the controller only through the
// signal channel and read it through Status.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	api "github.com/etesami/roi-watcher/api"
	"github.com/etesami/roi-watcher/internal/alert"
	"github.com/etesami/roi-watcher/internal/drift"
	"github.com/etesami/roi-watcher/internal/governor"
	"github.com/etesami/roi-watcher/internal/tracker"
	metric "github.com/etesami/roi-watcher/pkg/metric"

	"go.uber.org/zap"
)

// ErrFrameSource is returned by Run when the frame source fails. It is fatal
// to the session.
var ErrFrameSource = errors.New("frame source failure")

const (
	signalBuffer      = 8
	defaultRetryDelay = 500 * time.Millisecond
)

type Options struct {
	Label     string
	Threshold float64
	Cooldown  time.Duration
	// ResetCooldownOnReselect clears the governor when a new baseline is
	// confirmed. Off by default: the cooldown is global across reselects.
	ResetCooldownOnReselect bool
	// RetryDelay is how long the initial selection waits after a cancel
	// before asking again.
	RetryDelay time.Duration
	Clock      governor.Clock
	Log        *zap.Logger
	Metric     *metric.Metric
}

// Tick is the outcome of one frame.
type Tick struct {
	FrameID        int64
	Source         string
	Time           time.Time
	Baseline       Baseline
	Result         tracker.Result
	Classification drift.Classification
	Fired          bool
	Suppressed     bool
	Event          *alert.Event
	Marks          alert.Marks
	ProcessingTime time.Duration
}

type Controller struct {
	factory  tracker.Factory
	source   FrameSource
	selector ROISelector
	renderer Renderer
	sink     alert.Sink

	opts      Options
	log       *zap.Logger
	evaluator drift.Evaluator
	gov       *governor.Governor
	signals   chan Signal
	status    atomic.Value

	tracker  tracker.Tracker
	baseline Baseline
	pending  []Signal
}

// New builds a controller. renderer and sink may be nil.
func New(factory tracker.Factory, source FrameSource, selector ROISelector, renderer Renderer, sink alert.Sink, opts Options) *Controller {
	if opts.Label == "" {
		opts.Label = "Object"
	}
	if !(opts.Threshold > 0) || math.IsInf(opts.Threshold, 0) {
		opts.Threshold = drift.DefaultThreshold
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Clock == nil {
		opts.Clock = governor.SystemClock{}
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if sink == nil {
		sink = alert.Multi{}
	}
	c := &Controller{
		factory:   factory,
		source:    source,
		selector:  selector,
		renderer:  renderer,
		sink:      sink,
		opts:      opts,
		log:       opts.Log,
		evaluator: drift.NewEvaluator(opts.Threshold),
		gov:       governor.New(opts.Cooldown),
		signals:   make(chan Signal, signalBuffer),
	}
	c.status.Store(Status{Label: opts.Label})
	return c
}

// Signals is the inbound control channel. Signals are consumed at the top of
// the next tick.
func (c *Controller) Signals() chan<- Signal {
	return c.signals
}

// Send queues sig without blocking and reports whether it was accepted.
func (c *Controller) Send(sig Signal) bool {
	select {
	case c.signals <- sig:
		return true
	default:
		return false
	}
}

// Status returns the last published snapshot.
func (c *Controller) Status() Status {
	return c.status.Load().(Status)
}

// Start confirms box on frame as the first baseline.
func (c *Controller) Start(frame api.FrameData, box api.BoundingBox) error {
	return c.rebase(frame, box)
}

// rebase creates a tracker on box and swaps it in together with a new
// baseline. On failure the current tracker and baseline are kept.
func (c *Controller) rebase(fd api.FrameData, box api.BoundingBox) error {
	t, err := c.factory()
	if err != nil {
		return err
	}
	if err := t.Init(fd.Frame, box); err != nil {
		t.Close()
		return err
	}
	if c.tracker != nil {
		c.tracker.Close()
		if c.opts.ResetCooldownOnReselect {
			c.gov.Reset()
		}
	}
	c.tracker = t
	c.baseline = NewBaseline(box, c.now(fd))
	return nil
}

func (c *Controller) now(fd api.FrameData) time.Time {
	if fd.Timestamp.IsZero() {
		return c.opts.Clock.Now()
	}
	return fd.Timestamp
}

// Step runs one frame through tracker, drift evaluator, governor and sink.
// It must not be called before a baseline has been confirmed.
func (c *Controller) Step(fd api.FrameData) Tick {
	start := time.Now()
	now := c.now(fd)

	res := c.tracker.Update(fd.Frame)
	cls := c.evaluator.Classify(c.baseline.Center, res)
	fired := c.gov.Step(cls, now)

	tick := Tick{
		FrameID:        fd.FrameId,
		Source:         fd.SourceId,
		Time:           now,
		Baseline:       c.baseline,
		Result:         res,
		Classification: cls,
		Fired:          fired,
	}

	if kind, ok := alert.KindOf(cls.Kind); ok {
		ev := alert.Event{
			Kind:        kind,
			DriftPixels: cls.DriftPixels,
			Timestamp:   now,
			Label:       c.opts.Label,
			BaselineID:  c.baseline.ID,
			Box:         res.Box,
			Confidence:  res.Confidence,
		}
		if fired {
			c.opts.Metric.AddAlert(string(kind))
			if err := c.sink.Handle(ev, fd.Frame, &tick.Marks); err != nil {
				c.log.Warn("alert action failed",
					zap.String("kind", string(kind)),
					zap.String("source", fd.SourceId),
					zap.Int64("frame", fd.FrameId),
					zap.Error(err))
			}
			tick.Event = &ev
		} else {
			tick.Suppressed = true
			c.opts.Metric.AddSuppressed()
		}
		// the banner stays up while the condition lasts, alert or not
		if tick.Marks.Message == "" {
			tick.Marks = alert.Marks{Border: true, Message: ev.Message()}
		}
	}

	iou := 0.0
	if res.Found {
		iou = c.baseline.Box.IoU(res.Box)
	}
	c.opts.Metric.ObserveFrame(cls.Kind.String(), res.Found, cls.DriftPixels, res.Confidence, iou)

	tick.ProcessingTime = time.Since(start)
	c.opts.Metric.AddProcessingTime(float64(tick.ProcessingTime.Microseconds()) / 1000.0)
	c.publish(tick)
	return tick
}

// Run selects the first baseline and then processes frames until Quit, ctx
// cancellation or a frame source failure. Only the latter returns an error.
func (c *Controller) Run(ctx context.Context) error {
	defer c.closeTracker()
	defer c.markStopped()

	started, err := c.selectInitial(ctx)
	if err != nil || !started {
		return err
	}
	c.log.Info("tracking started",
		zap.String("label", c.opts.Label),
		zap.Stringer("roi", c.baseline.Box),
		zap.Float64("center_x", c.baseline.Center.X),
		zap.Float64("center_y", c.baseline.Center.Y),
		zap.Float64("threshold_px", c.opts.Threshold),
		zap.Duration("cooldown", c.opts.Cooldown),
	)

	for {
		quit, err := c.handleSignals(ctx)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}

		fd, err := c.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrFrameSource, err)
		}
		tick := c.Step(fd)
		c.render(fd, tick)
		fd.Frame.Close()
	}
}

func (c *Controller) render(fd api.FrameData, tick Tick) {
	if c.renderer == nil {
		return
	}
	c.pending = append(c.pending, c.renderer.Render(fd.Frame, tick)...)
}

// nextSignal returns a queued signal, renderer signals first.
func (c *Controller) nextSignal() (Signal, bool) {
	if len(c.pending) > 0 {
		sig := c.pending[0]
		c.pending = c.pending[1:]
		return sig, true
	}
	select {
	case sig := <-c.signals:
		return sig, true
	default:
		return Signal{}, false
	}
}

// handleSignals drains every queued signal. It reports quit on Quit or a
// cancelled ctx.
func (c *Controller) handleSignals(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return true, nil
	}
	for {
		sig, ok := c.nextSignal()
		if !ok {
			return false, nil
		}
		switch sig.Kind {
		case Quit:
			c.log.Info("quit requested")
			return true, nil
		case Reselect:
			quit, err := c.reselect(ctx, sig.Box)
			if err != nil || quit {
				return quit, err
			}
		default:
			c.log.Debug("ignoring signal outside selection", zap.Stringer("signal", sig.Kind))
		}
	}
}

// reselect asks for a new ROI on a fresh frame. Cancel or an invalid box keeps
// the current baseline and tracker.
func (c *Controller) reselect(ctx context.Context, hint *api.BoundingBox) (bool, error) {
	fd, err := c.source.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		return false, fmt.Errorf("%w: %w", ErrFrameSource, err)
	}
	defer fd.Frame.Close()

	sig, err := c.selector.Select(ctx, fd.Frame, hint)
	if err != nil {
		c.log.Warn("ROI selection failed, keeping current baseline", zap.Error(err))
		return false, nil
	}
	switch sig.Kind {
	case Quit:
		return true, nil
	case Confirm:
		if sig.Box == nil {
			return false, nil
		}
		if err := c.rebase(fd, *sig.Box); err != nil {
			c.log.Warn("new ROI rejected, keeping current baseline", zap.Stringer("roi", *sig.Box), zap.Error(err))
			return false, nil
		}
		c.opts.Metric.AddReselect()
		c.log.Info("re-tracking from new position",
			zap.Stringer("roi", c.baseline.Box),
			zap.String("baseline_id", c.baseline.ID),
		)
	default:
		c.log.Info("reselect cancelled, keeping current baseline")
	}
	return false, nil
}

// selectInitial loops until a valid ROI is confirmed. It reports false
// without error when the user quits first.
func (c *Controller) selectInitial(ctx context.Context) (bool, error) {
	var hint *api.BoundingBox
	for {
		if ctx.Err() != nil {
			return false, nil
		}
		fd, err := c.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			return false, fmt.Errorf("%w: %w", ErrFrameSource, err)
		}

		sig, err := c.selector.Select(ctx, fd.Frame, hint)
		hint = nil
		if err != nil {
			c.log.Warn("ROI selection failed", zap.Error(err))
			sig = Signal{Kind: Cancel}
		}
		switch sig.Kind {
		case Quit:
			fd.Frame.Close()
			return false, nil
		case Confirm:
			if sig.Box != nil {
				err := c.rebase(fd, *sig.Box)
				fd.Frame.Close()
				if err == nil {
					return true, nil
				}
				c.log.Warn("ROI rejected, select again", zap.Stringer("roi", *sig.Box), zap.Error(err))
				continue
			}
		}
		fd.Frame.Close()

		// nothing selected: wait for a control signal or retry after a pause
		select {
		case <-ctx.Done():
			return false, nil
		case s := <-c.signals:
			if s.Kind == Quit {
				return false, nil
			}
			if s.Box != nil {
				hint = s.Box
			}
		case <-time.After(c.opts.RetryDelay):
		}
	}
}

func (c *Controller) closeTracker() {
	if c.tracker != nil {
		c.tracker.Close()
		c.tracker = nil
	}
}
