package mot

import (
	"github.com/pkg/errors"
)

// ErrInvalidDetection is returned when detection values are out of range
var ErrInvalidDetection = errors.New("invalid detection")

// Detection is a single object found by the detector on one frame.
// Box is expressed in whatever coordinate space the producer used; LineTracker
// expects display coordinates.
type Detection struct {
	Class      string
	Confidence float64
	Box        Rectangle
}

// NewDetection validates raw detector output and builds a Detection.
// Empty class, non-finite numbers, confidence outside [0, 1] and negative
// box size are rejected with ErrInvalidDetection.
func NewDetection(class string, confidence, x, y, w, h float64) (Detection, error) {
	if class == "" {
		return Detection{}, errors.Wrap(ErrInvalidDetection, "empty class")
	}
	if !isFinite(confidence, x, y, w, h) {
		return Detection{}, errors.Wrapf(ErrInvalidDetection, "non-finite value for class '%s'", class)
	}
	if confidence < 0 || confidence > 1 {
		return Detection{}, errors.Wrapf(ErrInvalidDetection, "confidence %f is out of [0, 1]", confidence)
	}
	if w < 0 || h < 0 {
		return Detection{}, errors.Wrapf(ErrInvalidDetection, "negative box size %fx%f", w, h)
	}
	return Detection{
		Class:      class,
		Confidence: confidence,
		Box:        NewRect(x, y, w, h),
	}, nil
}

// Centroid returns the center of the detection box
func (d Detection) Centroid() Point {
	return d.Box.Center()
}

// Scale returns copy of detection with box scaled by (sx, sy)
func (d Detection) Scale(sx, sy float64) Detection {
	d.Box = d.Box.Scale(sx, sy)
	return d
}

// FilterByConfidence returns detections whose confidence is at least threshold.
// Input order is preserved.
func FilterByConfidence(detections []Detection, threshold float64) []Detection {
	filtered := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence < threshold {
			continue
		}
		filtered = append(filtered, d)
	}
	return filtered
}
