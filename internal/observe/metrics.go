// Package observe provides OpenTelemetry metric instruments for the frame pump
// and a Prometheus bridge so they can be scraped from /metrics.
//
// Tests should use [NewMetrics] with a custom [metric.MeterProvider] backed by
// a manual reader; [Noop] returns instruments that record nothing.
package observe

import (
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/LdDl/mot-linecount"

// Metrics holds all metric instruments. All fields are safe for concurrent use.
type Metrics struct {
	// RoundTrip tracks time between issuing a detection request and applying its response.
	RoundTrip metric.Float64Histogram

	// Requests counts detection requests sent to the channel.
	Requests metric.Int64Counter

	// Failures counts round trips resolved without detections. Use with attribute:
	//   attribute.String("reason", ...): "channel", "malformed", "capture", "timeout", "send"
	Failures metric.Int64Counter

	// DroppedCaptures counts capture attempts discarded because a request was in flight.
	DroppedCaptures metric.Int64Counter

	// Detections counts raw detections received.
	Detections metric.Int64Counter

	// Crossings counts line crossings. Use with attributes:
	//   attribute.String("direction", ...), attribute.String("class", ...)
	Crossings metric.Int64Counter

	// Throughput reports processed responses during the last completed second.
	Throughput metric.Int64Gauge

	// LiveTracks reports the size of the tracker working set.
	LiveTracks metric.Int64Gauge
}

// roundTripBuckets defines histogram bucket boundaries (in seconds) for detector round trips.
var roundTripBuckets = []float64{
	0.005, 0.01, 0.02, 0.033, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] using the given [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RoundTrip, err = m.Float64Histogram("linecount.roundtrip.duration",
		metric.WithDescription("Latency of a detection round trip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(roundTripBuckets...),
	); err != nil {
		return nil, errors.Wrap(err, "roundtrip histogram")
	}
	if met.Requests, err = m.Int64Counter("linecount.requests",
		metric.WithDescription("Total detection requests sent."),
	); err != nil {
		return nil, errors.Wrap(err, "requests counter")
	}
	if met.Failures, err = m.Int64Counter("linecount.failures",
		metric.WithDescription("Round trips resolved as empty by failure reason."),
	); err != nil {
		return nil, errors.Wrap(err, "failures counter")
	}
	if met.DroppedCaptures, err = m.Int64Counter("linecount.captures.dropped",
		metric.WithDescription("Capture attempts dropped while a request was in flight."),
	); err != nil {
		return nil, errors.Wrap(err, "dropped captures counter")
	}
	if met.Detections, err = m.Int64Counter("linecount.detections",
		metric.WithDescription("Raw detections received."),
	); err != nil {
		return nil, errors.Wrap(err, "detections counter")
	}
	if met.Crossings, err = m.Int64Counter("linecount.crossings",
		metric.WithDescription("Line crossings by direction and class."),
	); err != nil {
		return nil, errors.Wrap(err, "crossings counter")
	}
	if met.Throughput, err = m.Int64Gauge("linecount.throughput",
		metric.WithDescription("Responses processed during the last completed second."),
		metric.WithUnit("{frame}/s"),
	); err != nil {
		return nil, errors.Wrap(err, "throughput gauge")
	}
	if met.LiveTracks, err = m.Int64Gauge("linecount.tracks.live",
		metric.WithDescription("Tracks in the tracker working set."),
	); err != nil {
		return nil, errors.Wrap(err, "live tracks gauge")
	}
	return met, nil
}

// Noop returns instruments backed by a no-op provider.
func Noop() *Metrics {
	met, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		// noop provider never fails
		panic(err)
	}
	return met
}
