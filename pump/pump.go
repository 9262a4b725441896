package pump

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/LdDl/mot-linecount/internal/observe"
	"github.com/LdDl/mot-linecount/mot"
)

const (
	// DefaultRequestWidth is the encoded frame width sent to the detection service
	DefaultRequestWidth = 640
	// DefaultTimestep is how far playback advances after each round trip, seconds
	DefaultTimestep = 1.0 / 30.0
	// DefaultConfidenceThreshold drops detections below it before tracking
	DefaultConfidenceThreshold = 0.5
)

// Pump is the lock-step capture/request/advance state machine.
// It is not safe for concurrent use: drive it from a single goroutine (see Loop).
type Pump struct {
	session  *Session
	playback Playback
	source   FrameSource
	channel  Channel
	sink     RenderSink
	clock    Clock
	logger   *slog.Logger
	metrics  *observe.Metrics

	requestWidth int
	timestep     float64
	confidence   float64

	state     State
	isPlaying bool
	connected bool
	// Set between Advance and the settled signal
	seekPending bool
	// Last issued request sequence number
	seq uint64
	// Sequence number of the request the channel is busy with, 0 if none.
	// May be set while Idle after LoadSource: that response is discarded on arrival.
	outstanding    uint64
	issuedAt       time.Time
	issuedPosition float64
	meter          *ThroughputMeter
}

// Option configures Pump
type Option func(*Pump)

// WithRenderSink sets receiver of applied round trips
func WithRenderSink(sink RenderSink) Option {
	return func(p *Pump) {
		p.sink = sink
	}
}

// WithClock sets time source
func WithClock(clock Clock) Option {
	return func(p *Pump) {
		p.clock = clock
	}
}

// WithLogger sets logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pump) {
		p.logger = logger
	}
}

// WithMetrics sets metric instruments
func WithMetrics(metrics *observe.Metrics) Option {
	return func(p *Pump) {
		p.metrics = metrics
	}
}

// WithRequestWidth sets encoded frame width
func WithRequestWidth(width int) Option {
	return func(p *Pump) {
		p.requestWidth = width
	}
}

// WithTimestep sets playback advance per round trip, seconds
func WithTimestep(seconds float64) Option {
	return func(p *Pump) {
		p.timestep = seconds
	}
}

// WithConfidenceThreshold sets minimum confidence of detections handed to the tracker
func WithConfidenceThreshold(threshold float64) Option {
	return func(p *Pump) {
		p.confidence = threshold
	}
}

// New creates pump over the given session and channel. A source has to be
// loaded with LoadSource before Start.
func New(session *Session, channel Channel, opts ...Option) *Pump {
	p := &Pump{
		session:      session,
		channel:      channel,
		sink:         discardSink{},
		clock:        systemClock{},
		logger:       slog.Default(),
		requestWidth: DefaultRequestWidth,
		timestep:     DefaultTimestep,
		confidence:   DefaultConfidenceThreshold,
		state:        Idle,
		meter:        NewThroughputMeter(time.Second),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.Noop()
	}
	return p
}

// LoadSource resets the session (tracks, counters) and pump state and switches
// to a new video. Playback is stopped. A request still in flight is not
// cancelled; its response is discarded.
func (p *Pump) LoadSource(playback Playback, source FrameSource, displayWidth, displayHeight float64) error {
	if playback == nil || source == nil {
		return errors.Wrap(ErrNoSource, "playback and frame source are required")
	}
	if err := p.session.SetDisplaySize(displayWidth, displayHeight); err != nil {
		return errors.Wrap(err, "Can't load source")
	}
	p.session.Reset()
	p.fire(evReset)
	p.playback = playback
	p.source = source
	p.isPlaying = false
	p.seekPending = false
	p.meter.Reset()
	p.logger.Info("source loaded",
		"display_width", displayWidth,
		"display_height", displayHeight,
		"duration", playback.Duration(),
	)
	return nil
}

// Start begins (or resumes) playback and tries to capture the current frame.
// While a request is in flight the capture attempt is dropped. While a seek is
// pending the capture waits for the settled signal.
func (p *Pump) Start(ctx context.Context) error {
	if p.playback == nil {
		return ErrNoSource
	}
	p.isPlaying = true
	p.tryCapture(ctx)
	return nil
}

// Stop inhibits further captures. A request in flight is still applied when
// its response arrives, but playback does not advance.
func (p *Pump) Stop() {
	p.isPlaying = false
}

// HandleSettled is the playback collaborator's "seek settled" signal.
func (p *Pump) HandleSettled(ctx context.Context) {
	p.seekPending = false
	if !p.isPlaying {
		return
	}
	p.tryCapture(ctx)
}

// HandleConnectivity records channel availability. Going down while a request
// is in flight resolves it as empty; coming back up resumes capturing.
func (p *Pump) HandleConnectivity(ctx context.Context, up bool) {
	wasUp := p.connected
	p.connected = up
	if !up {
		if p.outstanding == 0 {
			return
		}
		seq := p.outstanding
		p.outstanding = 0
		if p.state == AwaitingResponse {
			p.resolve(ctx, Response{Seq: seq, Err: ErrChannelClosed})
		}
		return
	}
	if !wasUp {
		p.logger.Info("detection channel available")
		p.tryCapture(ctx)
	}
}

// HandleResponse applies the detection service answer. Responses that do not
// belong to the request in flight are ignored.
func (p *Pump) HandleResponse(ctx context.Context, resp Response) {
	if resp.Seq == 0 || resp.Seq != p.outstanding {
		p.logger.Debug("stale response ignored", "seq", resp.Seq, "outstanding", p.outstanding)
		return
	}
	p.outstanding = 0
	if p.state != AwaitingResponse {
		// Issued before the last LoadSource
		p.logger.Debug("response of previous source discarded", "seq", resp.Seq)
		p.tryCapture(ctx)
		return
	}
	p.resolve(ctx, resp)
}

// HandleTimeout resolves request seq as empty if it is still in flight.
func (p *Pump) HandleTimeout(ctx context.Context, seq uint64) {
	if seq == 0 || seq != p.outstanding {
		return
	}
	p.outstanding = 0
	if p.state != AwaitingResponse {
		p.tryCapture(ctx)
		return
	}
	p.resolve(ctx, Response{Seq: seq, Err: ErrRequestTimeout})
}

// SetLinePosition moves the counting line, effective on the next tracker update
func (p *Pump) SetLinePosition(linePosition float64) error {
	return p.session.Tracker.SetLinePosition(linePosition)
}

// SetConfidenceThreshold sets minimum confidence of detections handed to the tracker
func (p *Pump) SetConfidenceThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return errors.Errorf("confidence threshold %f is out of [0, 1]", threshold)
	}
	p.confidence = threshold
	return nil
}

// Outstanding returns sequence number of the request in flight, 0 if none
func (p *Pump) Outstanding() uint64 {
	return p.outstanding
}

// Status returns snapshot of pump state
func (p *Pump) Status() Status {
	st := Status{
		State:       p.state,
		Playing:     p.isPlaying,
		Connected:   p.connected,
		Outstanding: p.outstanding,
		Throughput:  p.meter.Current(),
		LiveTracks:  p.session.Tracker.Len(),
		Counters:    p.session.Analytics.Counters(),
	}
	if p.playback != nil {
		st.CurrentTime = p.playback.CurrentTime()
		st.Duration = p.playback.Duration()
	}
	return st
}

func (p *Pump) fire(ev event) bool {
	next, err := nextState(p.state, ev)
	if err != nil {
		p.logger.Error("pump transition rejected", "error", err)
		return false
	}
	p.state = next
	return true
}

func (p *Pump) atEnd() bool {
	return p.playback.CurrentTime() >= p.playback.Duration()
}

func (p *Pump) finish() {
	if p.isPlaying {
		p.logger.Info("playback reached the end", "duration", p.playback.Duration())
	}
	p.isPlaying = false
}

// requestSize returns encoded frame size: fixed width, height keeps display aspect ratio
func (p *Pump) requestSize() (int, int) {
	w := p.requestWidth
	h := int(math.Round(p.session.DisplayHeight * float64(w) / p.session.DisplayWidth))
	if h < 1 {
		h = 1
	}
	return w, h
}

func (p *Pump) tryCapture(ctx context.Context) {
	if !p.isPlaying || p.playback == nil {
		return
	}
	if p.atEnd() {
		p.finish()
		return
	}
	if p.seekPending {
		p.logger.Debug("capture deferred: seek not settled")
		return
	}
	if !p.connected {
		p.logger.Debug("capture suppressed: channel unavailable")
		return
	}
	if p.state != Idle || p.outstanding != 0 {
		p.metrics.DroppedCaptures.Add(ctx, 1)
		p.logger.Debug("capture dropped: request in flight", "state", p.state, "outstanding", p.outstanding)
		return
	}
	if !p.fire(evCapture) {
		return
	}

	p.seq++
	p.outstanding = p.seq
	p.issuedAt = p.clock.Now()
	p.issuedPosition = p.playback.CurrentTime()

	width, height := p.requestSize()
	frame, err := p.source.Capture(width, height)
	if err != nil {
		p.logger.Warn("frame capture failed", "seq", p.seq, "position", p.issuedPosition, "error", err)
		p.outstanding = 0
		p.resolve(ctx, Response{Seq: p.seq, Err: errors.Wrapf(ErrCaptureFailed, "%v", err)})
		return
	}

	req := Request{
		Seq:      p.seq,
		Position: p.issuedPosition,
		Width:    width,
		Height:   height,
		Frame:    frame,
	}
	if err := p.channel.Send(ctx, req); err != nil {
		// Nothing reached the service: behave as if the channel was unavailable
		p.logger.Warn("detection request not sent", "seq", p.seq, "error", err)
		p.metrics.Failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "send")))
		p.outstanding = 0
		p.connected = false
		p.fire(evSendFailed)
		return
	}
	p.metrics.Requests.Add(ctx, 1)
}

// resolve applies one round trip: tracker, analytics, render, then clock advance
func (p *Pump) resolve(ctx context.Context, resp Response) {
	if !p.fire(evResolve) {
		return
	}
	now := p.clock.Now()
	roundTrip := now.Sub(p.issuedAt)

	var detections []mot.Detection
	if resp.Err != nil {
		p.logger.Warn("round trip resolved without detections", "seq", resp.Seq, "error", resp.Err)
		p.metrics.Failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", failureReason(resp.Err))))
	} else {
		detections = resp.Detections
		p.session.Analytics.SetStats(resp.Stats)
	}

	display := p.toDisplay(detections)
	events, err := p.session.Tracker.Update(now, display)
	if err != nil {
		p.logger.Warn("track smoothing failed, raw centroid kept", "seq", resp.Seq, "error", err)
	}
	p.session.Analytics.Fold(len(detections), events)
	throughput := p.meter.Observe(now)

	p.metrics.RoundTrip.Record(ctx, roundTrip.Seconds())
	p.metrics.Detections.Add(ctx, int64(len(detections)))
	p.metrics.Throughput.Record(ctx, int64(throughput))
	p.metrics.LiveTracks.Record(ctx, int64(p.session.Tracker.Len()))
	for _, ev := range events {
		p.metrics.Crossings.Add(ctx, 1, metric.WithAttributes(
			attribute.String("direction", ev.Direction.String()),
			attribute.String("class", ev.Class),
		))
		p.logger.Debug("line crossed", "class", ev.Class, "direction", ev.Direction, "track", ev.TrackID)
	}

	p.sink.Render(Result{
		Seq:        resp.Seq,
		Position:   p.issuedPosition,
		Detections: display,
		Events:     events,
		Tracks:     p.trackViews(),
		LineY:      p.session.Tracker.LineY(),
		Counters:   p.session.Analytics.Counters(),
		Stats:      p.session.Analytics.Stats(),
		Throughput: throughput,
		RoundTrip:  roundTrip,
		Err:        resp.Err,
	})

	p.advance()
}

// advance moves playback one timestep forward. The next capture happens on the settled signal.
func (p *Pump) advance() {
	p.fire(evAdvanced)
	if !p.isPlaying {
		return
	}
	if p.atEnd() {
		p.finish()
		return
	}
	step := math.Min(p.timestep, p.playback.Duration()-p.playback.CurrentTime())
	// Settled may be signalled from within Advance
	p.seekPending = true
	p.playback.Advance(step)
}

// toDisplay scales detections from request space to display space and applies confidence filter
func (p *Pump) toDisplay(detections []mot.Detection) []mot.Detection {
	if len(detections) == 0 {
		return nil
	}
	reqW, reqH := p.requestSize()
	sx := p.session.DisplayWidth / float64(reqW)
	sy := p.session.DisplayHeight / float64(reqH)
	display := make([]mot.Detection, 0, len(detections))
	for _, d := range mot.FilterByConfidence(detections, p.confidence) {
		display = append(display, d.Scale(sx, sy))
	}
	return display
}

func (p *Pump) trackViews() []TrackView {
	tracks := p.session.Tracker.Tracks()
	views := make([]TrackView, 0, len(tracks))
	for _, t := range tracks {
		views = append(views, TrackView{
			ID:        t.GetID(),
			Class:     t.GetClass(),
			Centroid:  t.GetCentroid(),
			Smoothed:  t.GetSmoothed(),
			Predicted: t.GetPredicted(),
		})
	}
	return views
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrRequestTimeout):
		return "timeout"
	case errors.Is(err, ErrCaptureFailed):
		return "capture"
	default:
		return "channel"
	}
}
