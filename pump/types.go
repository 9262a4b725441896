package pump

import (
	"time"

	"github.com/pkg/errors"

	"github.com/LdDl/mot-linecount/analytics"
	"github.com/LdDl/mot-linecount/mot"
)

var (
	// ErrInvalidTransition is returned when an event is not allowed in the current state
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNoSource is returned when playback is requested before a source is loaded
	ErrNoSource = errors.New("no source loaded")
	// ErrMalformedResponse marks a response payload that could not be decoded
	ErrMalformedResponse = errors.New("malformed response")
	// ErrChannelClosed marks a request lost because the channel went down
	ErrChannelClosed = errors.New("channel closed")
	// ErrCaptureFailed marks a frame that could not be captured or encoded
	ErrCaptureFailed = errors.New("capture failed")
	// ErrRequestTimeout marks a request that got no response in time
	ErrRequestTimeout = errors.New("request timed out")
)

// State of the pump
type State uint8

const (
	// Idle means no request outstanding
	Idle State = iota
	// AwaitingResponse means a request is in flight
	AwaitingResponse
	// Advancing means a response is being applied
	Advancing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingResponse:
		return "awaiting_response"
	case Advancing:
		return "advancing"
	default:
		return "unknown"
	}
}

// Request is a single encoded frame sent to the detection service.
type Request struct {
	// Monotonic per pump, starts at 1
	Seq uint64
	// Playback position the frame was captured at, seconds
	Position float64
	Width    int
	Height   int
	Frame    []byte
}

// Response is the detection service answer for Request with the same Seq.
// Detections are in the request's pixel space. A non-nil Err resolves the frame
// as having no detections.
type Response struct {
	Seq        uint64
	Detections []mot.Detection
	// Opaque per-label statistics, passed through
	Stats map[string]int
	Err   error
}

// Result is what the render sink gets after a round trip has been applied.
type Result struct {
	Seq      uint64
	Position float64
	// Display coordinates, confidence-filtered
	Detections []mot.Detection
	Events     []mot.CrossingEvent
	Tracks     []TrackView
	LineY      float64
	Counters   analytics.Counters
	Stats      map[string]int
	Throughput int
	RoundTrip  time.Duration
	Err        error
}

// TrackView is a read-only copy of a live track for rendering
type TrackView struct {
	ID        mot.TrackID
	Class     string
	Centroid  mot.Point
	Smoothed  mot.Point
	Predicted mot.Point
}

// Status is a snapshot of pump state
type Status struct {
	State       State
	Playing     bool
	Connected   bool
	CurrentTime float64
	Duration    float64
	// Seq of the request in flight, 0 if none
	Outstanding uint64
	Throughput  int
	LiveTracks  int
	Counters    analytics.Counters
}
