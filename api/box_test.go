package api

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundingBoxCenter(t *testing.T) {
	b := BoundingBox{X: 80, Y: 70, Width: 40, Height: 60}
	assert.Equal(t, Point{X: 100, Y: 100}, b.Center())

	odd := BoundingBox{X: 0, Y: 0, Width: 5, Height: 3}
	assert.Equal(t, Point{X: 2.5, Y: 1.5}, odd.Center())
}

func TestBoundingBoxInside(t *testing.T) {
	tests := []struct {
		name string
		box  BoundingBox
		want bool
	}{
		{"fully inside", BoundingBox{10, 10, 20, 20}, true},
		{"touching edges", BoundingBox{0, 0, 100, 50}, true},
		{"past right edge", BoundingBox{90, 0, 20, 20}, false},
		{"negative origin", BoundingBox{-1, 0, 20, 20}, false},
		{"zero width", BoundingBox{10, 10, 0, 20}, false},
		{"negative height", BoundingBox{10, 10, 20, -5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.box.Inside(100, 50))
		})
	}
}

func TestRectRoundTrip(t *testing.T) {
	b := BoundingBox{X: 3, Y: 4, Width: 10, Height: 7}
	assert.Equal(t, image.Rect(3, 4, 13, 11), b.Rect())
	assert.Equal(t, b, FromRect(b.Rect()))
}

func TestIoU(t *testing.T) {
	a := BoundingBox{0, 0, 10, 10}
	assert.InDelta(t, 1.0, a.IoU(a), 1e-9)
	assert.InDelta(t, 25.0/175.0, a.IoU(BoundingBox{5, 5, 10, 10}), 1e-9)
	assert.Equal(t, 0.0, a.IoU(BoundingBox{20, 20, 5, 5}))
	assert.Equal(t, 0.0, a.IoU(BoundingBox{0, 0, 0, 5}))
}

func TestPointDistance(t *testing.T) {
	assert.InDelta(t, 5.0, Point{0, 0}.Distance(Point{3, 4}), 1e-9)
}

func TestParseBox(t *testing.T) {
	b, err := ParseBox("10,20,30,40")
	require.NoError(t, err)
	assert.Equal(t, BoundingBox{10, 20, 30, 40}, b)

	_, err = ParseBox("10,20,0,40")
	assert.Error(t, err)
	_, err = ParseBox("nope")
	assert.Error(t, err)
}
