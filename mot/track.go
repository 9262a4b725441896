package mot

import (
	"time"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TrackID identifies a track within the tracker's lifetime. A fresh ID is
// generated for every created track, so a removed track can never be confused
// with a new one occupying the same position in the live set.
type TrackID = uuid.UUID

// smoother is the per-track position filter. Implemented by kalman_filter.Kalman2D
type smoother interface {
	Predict()
	Update(x, y float64) error
	GetState() (float64, float64)
}

// Track is a hypothesis that consecutive detections refer to the same object.
// Class never changes after creation.
type Track struct {
	id       TrackID
	class    string
	centroid Point
	lastSeen time.Time
	// Set after emitting a crossing in the given direction; cleared by a crossing in the opposite one
	crossedUp   bool
	crossedDown bool

	track       []Point
	maxTrackLen int
	smoothed    Point
	predicted   Point
	tracker     smoother
}

func newTrackWithTime(class string, centroid Point, now time.Time, dt float64) *Track {
	/* Kalman filter props */
	ux := 1.0
	uy := 1.0
	stdDevA := 2.0
	stdDevMx := 0.1
	stdDevMy := 0.1
	kf := kalman_filter.NewKalman2D(dt, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(centroid.X, centroid.Y))
	t := Track{
		id:          uuid.New(),
		class:       class,
		centroid:    centroid,
		lastSeen:    now,
		track:       make([]Point, 0, 150),
		maxTrackLen: 150,
		smoothed:    centroid,
		predicted:   centroid,
		tracker:     kf,
	}
	t.track = append(t.track, centroid)
	return &t
}

// GetID returns track's identifier
func (t *Track) GetID() TrackID {
	return t.id
}

// GetClass returns class label the track was created with
func (t *Track) GetClass() string {
	return t.class
}

// GetCentroid returns last matched centroid (raw, not smoothed)
func (t *Track) GetCentroid() Point {
	return t.centroid
}

// GetLastSeen returns time of the last matched detection
func (t *Track) GetLastSeen() time.Time {
	return t.lastSeen
}

// CrossedUp reports whether the last crossing of this track was upwards
func (t *Track) CrossedUp() bool {
	return t.crossedUp
}

// CrossedDown reports whether the last crossing of this track was downwards
func (t *Track) CrossedDown() bool {
	return t.crossedDown
}

// GetSmoothed returns Kalman-filtered centroid. Display only: association uses the raw centroid.
func (t *Track) GetSmoothed() Point {
	return t.smoothed
}

// GetPredicted returns one-step-ahead centroid estimate. Display only.
func (t *Track) GetPredicted() Point {
	return t.predicted
}

// GetTrack returns track's centroid history. Be careful: this is not copy of track, but reference to it
func (t *Track) GetTrack() []Point {
	return t.track
}

// GetMaxTrackLen returns max length of centroid history
func (t *Track) GetMaxTrackLen() int {
	return t.maxTrackLen
}

// SetMaxTrackLen sets max length of centroid history
func (t *Track) SetMaxTrackLen(newMaxTrackLen int) {
	t.maxTrackLen = newMaxTrackLen
}

// DistanceTo returns distance from track's centroid to the given point
func (t *Track) DistanceTo(p Point) float64 {
	return euclideanDistance(t.centroid, p)
}

// isStale reports whether the track has not been seen for longer than staleAfter
func (t *Track) isStale(now time.Time, staleAfter time.Duration) bool {
	return now.Sub(t.lastSeen) > staleAfter
}

// update moves track to the new centroid, refreshes its smoothed estimate and
// returns crossing direction (zero if none) against horizontal line lineY.
// A smoother error is returned alongside the direction: the move and the
// crossing check happen regardless.
func (t *Track) update(centroid Point, now time.Time, lineY float64) (Direction, error) {
	prevY := t.centroid.Y
	t.centroid = centroid
	t.lastSeen = now

	err := t.smooth(centroid)

	t.track = append(t.track, t.smoothed)
	if len(t.track) > t.maxTrackLen {
		t.track = t.track[1:]
	}

	switch {
	case prevY < lineY && lineY <= centroid.Y && !t.crossedDown:
		t.crossedDown = true
		t.crossedUp = false
		return DirectionDown, err
	case prevY > lineY && lineY >= centroid.Y && !t.crossedUp:
		t.crossedUp = true
		t.crossedDown = false
		return DirectionUp, err
	}
	return 0, err
}

// smooth feeds centroid to the filter. On failure both estimates fall back to the raw centroid.
func (t *Track) smooth(centroid Point) error {
	last := t.track[len(t.track)-1]
	t.tracker.Predict()
	if err := t.tracker.Update(centroid.X, centroid.Y); err != nil {
		t.smoothed = centroid
		t.predicted = centroid
		return errors.Wrap(err, "Can't update track smoother")
	}
	stateX, stateY := t.tracker.GetState()
	if !isFinite(stateX, stateY) {
		t.smoothed = centroid
		t.predicted = centroid
		return errors.Errorf("track smoother diverged: (%f, %f)", stateX, stateY)
	}
	t.smoothed = Point{X: stateX, Y: stateY}
	t.predicted = Point{
		X: 2*stateX - last.X,
		Y: 2*stateY - last.Y,
	}
	return nil
}
