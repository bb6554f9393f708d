// Package ui is the on-screen side of the watcher: it draws ticks, maps keys
// to control signals and asks the user for a region.
package ui

import (
	"context"
	"image"
	"sync"

	api "github.com/etesami/roi-watcher/api"
	"github.com/etesami/roi-watcher/internal/overlay"
	"github.com/etesami/roi-watcher/internal/session"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	WindowTitle = "ROI Watcher"
	selectTitle = "Select region -- press SPACE/ENTER to confirm"

	keyEsc = 27
)

// KeySignal maps a WaitKey code to a control signal.
func KeySignal(key int) (session.Signal, bool) {
	switch key & 0xFF {
	case 'q', 'Q', keyEsc:
		return session.Signal{Kind: session.Quit}, true
	case 'r', 'R':
		return session.Signal{Kind: session.Reselect}, true
	}
	return session.Signal{}, false
}

// buttonSignals pairs with overlay.KeyHints.
var buttonSignals = []session.SignalKind{session.Reselect, session.Quit}

// Annotate draws a tick onto img: the alert banner while an alert condition
// holds, otherwise the tracked box, then the buttons with the one under hover
// highlighted. It returns the button rectangles.
func Annotate(img *gocv.Mat, t session.Tick, hover image.Point) []image.Rectangle {
	switch {
	case t.Marks.Border:
		overlay.Alert(img, t.Marks.Message)
	case t.Result.Found:
		overlay.Watching(img, t.Result.Box)
	}
	return overlay.Hints(img, hover)
}

// HitButton maps a click at p to the signal of the button it landed on.
func HitButton(rects []image.Rectangle, p image.Point) (session.Signal, bool) {
	for i, r := range rects {
		if i < len(buttonSignals) && p.In(r) {
			return session.Signal{Kind: buttonSignals[i]}, true
		}
	}
	return session.Signal{}, false
}

// HighGUI mouse event codes.
const (
	mouseMove   = 0
	mouseLeftUp = 4
)

var noPointer = image.Pt(-1, -1)

// pointer collects mouse events between frames. HighGUI delivers them from
// inside WaitKey.
type pointer struct {
	mu     sync.Mutex
	pos    image.Point
	clicks []image.Point
}

func newPointer() *pointer {
	return &pointer{pos: noPointer}
}

func (p *pointer) handle(event, x, y, _ int, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch event {
	case mouseMove:
		p.pos = image.Pt(x, y)
	case mouseLeftUp:
		p.pos = image.Pt(x, y)
		p.clicks = append(p.clicks, p.pos)
	}
}

func (p *pointer) hover() image.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

// signals drains the pending clicks that landed on a button.
func (p *pointer) signals(rects []image.Rectangle) []session.Signal {
	p.mu.Lock()
	clicks := p.clicks
	p.clicks = nil
	p.mu.Unlock()

	var out []session.Signal
	for _, c := range clicks {
		if sig, ok := HitButton(rects, c); ok {
			out = append(out, sig)
		}
	}
	return out
}

// Window renders ticks in a HighGUI window. Keys and clicks on the buttons
// both produce control signals.
type Window struct {
	win     *gocv.Window
	pointer *pointer
}

func NewWindow(title string) *Window {
	if title == "" {
		title = WindowTitle
	}
	w := &Window{win: gocv.NewWindow(title), pointer: newPointer()}
	w.win.SetMouseHandler(w.pointer.handle, nil)
	return w
}

func (w *Window) Render(frame gocv.Mat, t session.Tick) []session.Signal {
	rects := Annotate(&frame, t, w.pointer.hover())
	w.win.IMShow(frame)
	key := w.win.WaitKey(1)

	out := w.pointer.signals(rects)
	if sig, ok := KeySignal(key); ok {
		out = append(out, sig)
	}
	return out
}

func (w *Window) Close() error {
	return w.win.Close()
}

// WindowSelector lets the user drag a rectangle with gocv.SelectROI. A hint
// box is accepted as is without opening a window.
type WindowSelector struct {
	log *zap.Logger
}

func NewWindowSelector(log *zap.Logger) *WindowSelector {
	if log == nil {
		log = zap.NewNop()
	}
	return &WindowSelector{log: log}
}

func (s *WindowSelector) Select(_ context.Context, frame gocv.Mat, hint *api.BoundingBox) (session.Signal, error) {
	if hint != nil {
		return session.Signal{Kind: session.Confirm, Box: hint}, nil
	}
	s.log.Info("draw a box around the object, then press SPACE or ENTER to confirm; press 'c' to cancel")

	win := gocv.NewWindow(selectTitle)
	defer win.Close()
	rect := gocv.SelectROI(selectTitle, frame)
	return rectSignal(rect, s.log), nil
}

func rectSignal(rect image.Rectangle, log *zap.Logger) session.Signal {
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		log.Info("no region selected")
		return session.Signal{Kind: session.Cancel}
	}
	box := api.FromRect(rect)
	return session.Signal{Kind: session.Confirm, Box: &box}
}
