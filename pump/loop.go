package pump

import (
	"context"
	"log/slog"
	"time"
)

// Loop owns a Pump on a single goroutine. Every external event is posted to
// the loop and applied in arrival order, so no pump state is ever touched
// concurrently.
type Loop struct {
	pump    *Pump
	events  chan func(context.Context)
	done    chan struct{}
	timeout time.Duration
	logger  *slog.Logger

	// Last sequence number a timeout was armed for; owned by the loop goroutine
	armedSeq uint64
}

// LoopOption configures Loop
type LoopOption func(*Loop)

// WithRequestTimeout resolves a request as empty when no response arrives in d.
// Zero (default) waits forever.
func WithRequestTimeout(d time.Duration) LoopOption {
	return func(l *Loop) {
		l.timeout = d
	}
}

// WithLoopLogger sets logger
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// NewLoop creates loop around p. Call Run to start processing events.
func NewLoop(p *Pump, opts ...LoopOption) *Loop {
	l := &Loop{
		pump:   p,
		events: make(chan func(context.Context), 64),
		done:   make(chan struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run processes events until ctx is done. It must be called once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.events:
			fn(ctx)
			l.armTimeout()
		}
	}
}

// post enqueues fn, returns false if the loop has stopped
func (l *Loop) post(fn func(context.Context)) bool {
	select {
	case l.events <- fn:
		return true
	case <-l.done:
		return false
	}
}

// call runs fn on the loop goroutine and waits for its result
func (l *Loop) call(fn func(context.Context) error) error {
	result := make(chan error, 1)
	if !l.post(func(ctx context.Context) { result <- fn(ctx) }) {
		return context.Canceled
	}
	select {
	case err := <-result:
		return err
	case <-l.done:
		return context.Canceled
	}
}

// LoadSource switches to a new video and resets the session.
func (l *Loop) LoadSource(playback Playback, source FrameSource, displayWidth, displayHeight float64) error {
	return l.call(func(context.Context) error {
		if playback != nil {
			playback.OnSettled(l.OnSettled)
		}
		return l.pump.LoadSource(playback, source, displayWidth, displayHeight)
	})
}

// Start begins playback
func (l *Loop) Start() error {
	return l.call(l.pump.Start)
}

// Stop halts playback after the request in flight, if any
func (l *Loop) Stop() {
	l.post(func(context.Context) { l.pump.Stop() })
}

// SetLinePosition moves the counting line
func (l *Loop) SetLinePosition(linePosition float64) error {
	return l.call(func(context.Context) error {
		return l.pump.SetLinePosition(linePosition)
	})
}

// SetConfidenceThreshold sets minimum detection confidence
func (l *Loop) SetConfidenceThreshold(threshold float64) error {
	return l.call(func(context.Context) error {
		return l.pump.SetConfidenceThreshold(threshold)
	})
}

// Status returns pump snapshot taken on the loop goroutine
func (l *Loop) Status() (Status, error) {
	var st Status
	err := l.call(func(context.Context) error {
		st = l.pump.Status()
		return nil
	})
	return st, err
}

// OnResponse delivers a detection service answer
func (l *Loop) OnResponse(resp Response) {
	l.post(func(ctx context.Context) { l.pump.HandleResponse(ctx, resp) })
}

// OnConnectivity delivers channel availability changes
func (l *Loop) OnConnectivity(up bool) {
	l.post(func(ctx context.Context) { l.pump.HandleConnectivity(ctx, up) })
}

// OnSettled delivers playback "seek settled" signal
func (l *Loop) OnSettled() {
	l.post(func(ctx context.Context) { l.pump.HandleSettled(ctx) })
}

func (l *Loop) armTimeout() {
	if l.timeout <= 0 {
		return
	}
	seq := l.pump.Outstanding()
	if seq == 0 || seq == l.armedSeq {
		return
	}
	l.armedSeq = seq
	time.AfterFunc(l.timeout, func() {
		l.post(func(ctx context.Context) {
			if l.pump.Outstanding() == seq {
				l.logger.Warn("detection request timed out", "seq", seq, "timeout", l.timeout)
			}
			l.pump.HandleTimeout(ctx, seq)
		})
	})
}
