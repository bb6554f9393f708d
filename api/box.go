package api

import (
	"fmt"
	"image"
	"math"
)

// Point is a sub-pixel position in frame coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// BoundingBox is an axis-aligned rectangle in integer pixel units.
// The (X, Y) position is the top left corner.
type BoundingBox struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (b BoundingBox) Valid() bool {
	return b.Width > 0 && b.Height > 0
}

func (b BoundingBox) Center() Point {
	return Point{
		X: float64(b.X) + float64(b.Width)/2,
		Y: float64(b.Y) + float64(b.Height)/2,
	}
}

// Inside reports whether b lies fully within a frame of the given size.
func (b BoundingBox) Inside(width, height int) bool {
	return b.Valid() && b.X >= 0 && b.Y >= 0 &&
		b.X+b.Width <= width && b.Y+b.Height <= height
}

func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", b.X, b.Y, b.Width, b.Height)
}

func FromRect(r image.Rectangle) BoundingBox {
	r = r.Canon()
	return BoundingBox{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// IoU calculates the Intersection over Union of two bounding boxes.
// Returns 0.0 if either box is invalid or if they do not overlap.
func (b BoundingBox) IoU(o BoundingBox) float64 {
	if !b.Valid() || !o.Valid() {
		return 0.0
	}
	inter := b.Rect().Intersect(o.Rect())
	if inter.Empty() {
		return 0.0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	unionArea := float64(b.Width*b.Height+o.Width*o.Height) - interArea
	return interArea / unionArea
}

// ParseBox parses "x,y,w,h".
func ParseBox(s string) (BoundingBox, error) {
	var b BoundingBox
	if _, err := fmt.Sscanf(s, "%d,%d,%d,%d", &b.X, &b.Y, &b.Width, &b.Height); err != nil {
		return BoundingBox{}, fmt.Errorf("invalid box %q: %v", s, err)
	}
	if !b.Valid() {
		return BoundingBox{}, fmt.Errorf("invalid box %q: width and height must be positive", s)
	}
	return b, nil
}
