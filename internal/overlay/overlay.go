// Package overlay draws the watcher's annotations onto frames.
package overlay

import (
	"image"
	"image/color"

	api "github.com/etesami/roi-watcher/api"

	"gocv.io/x/gocv"
)

const (
	font      = gocv.FontHersheySimplex
	hintScale = 0.6
	hintThick = 1
	btnH      = 38
	btnPadX   = 16
	btnMargin = 8
)

var (
	Red   = color.RGBA{R: 255, A: 255}
	Green = color.RGBA{G: 255, A: 255}
	Black = color.RGBA{A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}

	watchingGreen = color.RGBA{G: 220, A: 255}
	btnBg         = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	btnHoverBg    = color.RGBA{R: 70, G: 70, B: 70, A: 255}
	btnBorder     = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	btnText       = color.RGBA{R: 230, G: 230, B: 230, A: 255}
)

// KeyHints are drawn bottom-right, left to right. They double as clickable
// buttons.
var KeyHints = []string{"Reselect  [R]", "Quit  [Q]"}

// TextWithBg draws text over a solid box so it stays readable on any scene.
func TextWithBg(img *gocv.Mat, text string, pos image.Point, scale float64, fg, bg color.RGBA, thickness, padding int) {
	size, baseline := gocv.GetTextSizeWithBaseline(text, font, scale, thickness)
	box := image.Rect(
		pos.X-padding, pos.Y-size.Y-padding,
		pos.X+size.X+padding, pos.Y+baseline+padding,
	)
	gocv.Rectangle(img, box, bg, -1)
	gocv.PutTextWithParams(img, text, pos, font, scale, fg, thickness, gocv.LineAA, false)
}

// Alert draws a red border and the alert message near the bottom of the frame.
func Alert(img *gocv.Mat, message string) {
	w, h := img.Cols(), img.Rows()
	gocv.Rectangle(img, image.Rect(0, 0, w-1, h-1), Red, 6)
	TextWithBg(img, "ALERT: "+message, image.Pt(10, h-55), 0.9, Red, Black, 2, 6)
}

// Watching draws the tracked box, its centre and the idle status line.
func Watching(img *gocv.Mat, box api.BoundingBox) {
	gocv.Rectangle(img, box.Rect(), Green, 2)
	c := box.Center()
	gocv.Circle(img, image.Pt(int(c.X), int(c.Y)), 4, Green, -1)
	TextWithBg(img, "Watching...", image.Pt(10, 30), 0.8, watchingGreen, Black, 2, 5)
}

// HintRects lays the key hint buttons out bottom-right of a w x h frame, in
// KeyHints order.
func HintRects(w, h int) []image.Rectangle {
	rects := make([]image.Rectangle, len(KeyHints))
	x := w - btnMargin
	for i := len(KeyHints) - 1; i >= 0; i-- {
		size := gocv.GetTextSize(KeyHints[i], font, hintScale, hintThick)
		bw := size.X + btnPadX*2
		bx := x - bw
		by := h - btnH - btnMargin
		rects[i] = image.Rect(bx, by, bx+bw, by+btnH)
		x = bx - btnMargin
	}
	return rects
}

// Hints draws the key hint buttons and returns their rectangles. The button
// under hover, if any, is highlighted.
func Hints(img *gocv.Mat, hover image.Point) []image.Rectangle {
	rects := HintRects(img.Cols(), img.Rows())
	for i, label := range KeyHints {
		r := rects[i]
		bg := btnBg
		if hover.In(r) {
			bg = btnHoverBg
		}
		gocv.Rectangle(img, r, bg, -1)
		gocv.Rectangle(img, r, btnBorder, 1)
		size := gocv.GetTextSize(label, font, hintScale, hintThick)
		tx := r.Min.X + (r.Dx()-size.X)/2
		ty := r.Min.Y + (r.Dy()+size.Y)/2
		gocv.PutTextWithParams(img, label, image.Pt(tx, ty), font, hintScale, btnText, hintThick, gocv.LineAA, false)
	}
	return rects
}
