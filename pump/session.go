package pump

import (
	"github.com/pkg/errors"

	"github.com/LdDl/mot-linecount/analytics"
	"github.com/LdDl/mot-linecount/mot"
)

// Session is the per-source context: tracker, counters and display geometry.
// It is created by the caller and handed to the pump; nothing in this module
// keeps process-wide state.
type Session struct {
	Tracker       *mot.LineTracker
	Analytics     *analytics.Accumulator
	DisplayWidth  float64
	DisplayHeight float64
}

// NewSession creates session with empty tracker and counters
func NewSession(tracker *mot.LineTracker, acc *analytics.Accumulator) *Session {
	if tracker == nil {
		tracker = mot.NewLineTrackerDefault()
	}
	if acc == nil {
		acc = analytics.New()
	}
	return &Session{
		Tracker:   tracker,
		Analytics: acc,
	}
}

// SetDisplaySize sets size of the display canvas detections are scaled to
func (s *Session) SetDisplaySize(width, height float64) error {
	if !(width > 0) || !(height > 0) {
		return errors.Errorf("display size must be positive, got %fx%f", width, height)
	}
	s.DisplayWidth = width
	s.DisplayHeight = height
	s.Tracker.SetCanvasHeight(height)
	return nil
}

// Reset clears tracks and counters
func (s *Session) Reset() {
	s.Tracker.Reset()
	s.Analytics.Reset()
}
