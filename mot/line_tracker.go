package mot

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// LineTracker is a naive Multi-object tracker (MOT) counting directional crossings
// of a horizontal line.
//
// Association is greedy and class-aware: every detection (in input order) takes the
// nearest not-yet-matched live track of the same class within maxDistance. There is
// no velocity model in matching, so per-frame cost is O(n*m).
// It is not safe for concurrent use.
type LineTracker struct {
	// Live tracks in creation order. Order matters: distance ties go to the first found
	tracks []*Track
	// Max centroid distance (display units) for a detection to continue a track. Default 50.0
	maxDistance float64
	// Track is removed when it has not been matched for longer than this. Default 2s
	staleAfter time.Duration
	// Counting line as a fraction of canvas height, in [0, 1]. Default 0.5
	linePosition float64
	// Height of the display canvas detections are expressed in
	canvasHeight float64
	// Time step for the per-track smoother. Default 1/30
	dt float64
}

// Option configures LineTracker
type Option func(*LineTracker)

// WithMaxDistance sets association radius
func WithMaxDistance(maxDistance float64) Option {
	return func(tracker *LineTracker) {
		tracker.maxDistance = maxDistance
	}
}

// WithStaleAfter sets track expiry timeout
func WithStaleAfter(staleAfter time.Duration) Option {
	return func(tracker *LineTracker) {
		tracker.staleAfter = staleAfter
	}
}

// WithLinePosition sets counting line position. Values outside [0, 1] are clamped.
func WithLinePosition(linePosition float64) Option {
	return func(tracker *LineTracker) {
		tracker.linePosition = clampUnit(linePosition)
	}
}

// WithCanvasHeight sets display canvas height
func WithCanvasHeight(canvasHeight float64) Option {
	return func(tracker *LineTracker) {
		tracker.canvasHeight = canvasHeight
	}
}

// WithTimeStep sets time step of the per-track smoother
func WithTimeStep(dt float64) Option {
	return func(tracker *LineTracker) {
		tracker.dt = dt
	}
}

// NewLineTrackerDefault creates default instance of LineTracker
func NewLineTrackerDefault() *LineTracker {
	return NewLineTracker()
}

// NewLineTracker creates new instance of LineTracker
func NewLineTracker(opts ...Option) *LineTracker {
	tracker := &LineTracker{
		tracks:       make([]*Track, 0),
		maxDistance:  50.0,
		staleAfter:   2000 * time.Millisecond,
		linePosition: 0.5,
		dt:           1.0 / 30.0,
	}
	for _, opt := range opts {
		opt(tracker)
	}
	return tracker
}

// SetLinePosition sets counting line position, takes effect on the next Update
func (tracker *LineTracker) SetLinePosition(linePosition float64) error {
	if math.IsNaN(linePosition) || linePosition < 0 || linePosition > 1 {
		return errors.Errorf("line position %f is out of [0, 1]", linePosition)
	}
	tracker.linePosition = linePosition
	return nil
}

// GetLinePosition returns counting line position as a fraction of canvas height
func (tracker *LineTracker) GetLinePosition() float64 {
	return tracker.linePosition
}

// SetCanvasHeight sets display canvas height
func (tracker *LineTracker) SetCanvasHeight(canvasHeight float64) {
	tracker.canvasHeight = canvasHeight
}

// LineY returns counting line in display coordinates
func (tracker *LineTracker) LineY() float64 {
	return tracker.canvasHeight * tracker.linePosition
}

// Tracks returns live tracks in creation order. Be careful: tracks are not copies
func (tracker *LineTracker) Tracks() []*Track {
	return tracker.tracks
}

// Len returns number of live tracks
func (tracker *LineTracker) Len() int {
	return len(tracker.tracks)
}

// Reset drops every track
func (tracker *LineTracker) Reset() {
	tracker.tracks = tracker.tracks[:0]
}

// Update associates detections (display coordinates) with live tracks, emits
// crossing events and then drops tracks unseen for longer than staleAfter.
//
// A failing smoother does not interrupt the frame: the affected track keeps its
// raw centroid, every detection is still associated and expiry still runs.
// The first smoother error is returned together with the events.
func (tracker *LineTracker) Update(now time.Time, detections []Detection) ([]CrossingEvent, error) {
	lineY := tracker.LineY()
	var events []CrossingEvent
	var smoothErr error

	// We need to prevent double update of tracks
	reserved := make(map[TrackID]struct{}, len(detections))

	for _, detection := range detections {
		centroid := detection.Centroid()
		best := tracker.nearest(detection.Class, centroid, reserved)
		if best == nil {
			// Register detection as a new track
			newTrack := newTrackWithTime(detection.Class, centroid, now, tracker.dt)
			reserved[newTrack.id] = struct{}{}
			tracker.tracks = append(tracker.tracks, newTrack)
			continue
		}
		reserved[best.id] = struct{}{}
		direction, err := best.update(centroid, now, lineY)
		if err != nil && smoothErr == nil {
			smoothErr = errors.Wrapf(err, "Can't update track with id %s", best.id.String())
		}
		if direction != 0 {
			events = append(events, CrossingEvent{
				TrackID:   best.id,
				Class:     best.class,
				Direction: direction,
				At:        now,
				Position:  centroid,
			})
		}
	}

	// Clean up existing data
	alive := tracker.tracks[:0]
	for _, t := range tracker.tracks {
		if t.isStale(now, tracker.staleAfter) {
			continue
		}
		alive = append(alive, t)
	}
	for i := len(alive); i < len(tracker.tracks); i++ {
		tracker.tracks[i] = nil
	}
	tracker.tracks = alive
	return events, smoothErr
}

// nearest returns closest unreserved track of the same class within maxDistance
func (tracker *LineTracker) nearest(class string, centroid Point, reserved map[TrackID]struct{}) *Track {
	var best *Track
	minDistance := tracker.maxDistance
	for _, t := range tracker.tracks {
		if t.class != class {
			continue
		}
		if _, ok := reserved[t.id]; ok {
			continue
		}
		dist := t.DistanceTo(centroid)
		if dist < minDistance {
			minDistance = dist
			best = t
		}
	}
	return best
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
