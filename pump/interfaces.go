package pump

import (
	"context"
	"time"
)

// Playback is the video collaborator owning the playback position.
type Playback interface {
	// CurrentTime returns playback position in seconds.
	CurrentTime() float64
	// Duration returns total length in seconds.
	Duration() float64
	// Advance seeks forward by seconds. Completion is reported through the OnSettled callback.
	Advance(seconds float64)
	// OnSettled registers callback fired once a seek has settled (edge-triggered).
	OnSettled(callback func())
}

// FrameSource captures the frame at the current playback position and encodes it
// at the requested size.
type FrameSource interface {
	Capture(width, height int) ([]byte, error)
}

// Channel delivers a request to the detection service. Send must not wait for
// the response: it arrives later through [Loop.OnResponse] or [Pump.HandleResponse].
type Channel interface {
	Send(ctx context.Context, req Request) error
}

// RenderSink receives every applied round trip.
type RenderSink interface {
	Render(result Result)
}

// RenderFunc adapts a function to RenderSink
type RenderFunc func(result Result)

// Render calls f(result)
func (f RenderFunc) Render(result Result) {
	f(result)
}

// MultiSink renders to every sink in order
type MultiSink []RenderSink

// Render forwards result to every sink
func (m MultiSink) Render(result Result) {
	for _, sink := range m {
		sink.Render(result)
	}
}

// Clock abstracts wall-clock time for track expiry and throughput measurement.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

type discardSink struct{}

func (discardSink) Render(Result) {}
