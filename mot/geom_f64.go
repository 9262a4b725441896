package mot

import "math"

// Rectangle is an axis-aligned box: top-left corner plus size.
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func NewRect(x, y, width, height float64) Rectangle {
	return Rectangle{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

// Center returns the centroid of the rectangle
func (rect Rectangle) Center() Point {
	return Point{
		X: rect.X + rect.Width/2.0,
		Y: rect.Y + rect.Height/2.0,
	}
}

// Scale multiplies horizontal components by sx and vertical ones by sy
func (rect Rectangle) Scale(sx, sy float64) Rectangle {
	return Rectangle{
		X:      rect.X * sx,
		Y:      rect.Y * sy,
		Width:  rect.Width * sx,
		Height: rect.Height * sy,
	}
}

type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Hypot(p1.X-p2.X, p1.Y-p2.Y)
}

func isFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
