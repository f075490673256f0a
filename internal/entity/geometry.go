package entity

import "math"

// BBox is an axis-aligned box in page units. Origin is the top-left corner of
// the page and Y grows downward.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (b BBox) Right() float64   { return b.X + b.W }
func (b BBox) Bottom() float64  { return b.Y + b.H }
func (b BBox) CenterY() float64 { return b.Y + b.H/2 }

// Clamp returns b with negative extents set to zero.
func (b BBox) Clamp() BBox {
	if b.W < 0 {
		b.W = 0
	}
	if b.H < 0 {
		b.H = 0
	}
	return b
}

// Union returns the smallest box containing both b and o.
func (b BBox) Union(o BBox) BBox {
	x := math.Min(b.X, o.X)
	y := math.Min(b.Y, o.Y)
	r := math.Max(b.Right(), o.Right())
	bt := math.Max(b.Bottom(), o.Bottom())
	return BBox{X: x, Y: y, W: r - x, H: bt - y}
}

// Contains reports whether o lies inside b (edges inclusive).
func (b BBox) Contains(o BBox) bool {
	const eps = 1e-9
	return o.X >= b.X-eps && o.Y >= b.Y-eps &&
		o.Right() <= b.Right()+eps && o.Bottom() <= b.Bottom()+eps
}

// OverlapsX reports whether the horizontal extents of b and o intersect.
func (b BBox) OverlapsX(o BBox) bool {
	return b.X <= o.Right() && o.X <= b.Right()
}
