package pump

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LdDl/mot-linecount/analytics"
	"github.com/LdDl/mot-linecount/mot"
)

func startLoop(t *testing.T, l *Loop) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(time.Second):
			t.Error("loop did not stop")
		}
	})
	return cancel
}

func TestLoopPlaysToEnd(t *testing.T) {
	const frames = 10
	sink := &recordingSink{}
	ch := &fakeChannel{}
	p := New(NewSession(mot.NewLineTrackerDefault(), analytics.New()), ch, WithRenderSink(sink))
	l := NewLoop(p)

	y := 20.0
	ch.onSend = func(req Request) {
		y += 10
		resp := Response{
			Seq:        req.Seq,
			Detections: []mot.Detection{{Class: "car", Confidence: 0.9, Box: mot.NewRect(100, y-5, 10, 10)}},
		}
		go func() {
			ch.answered()
			l.OnResponse(resp)
		}()
	}
	startLoop(t, l)

	// Half step at the end so the last advance is clamped to the duration
	pb := &fakePlayback{duration: (frames - 0.5) * DefaultTimestep, autoSettle: true}
	require.NoError(t, l.LoadSource(pb, &fakeSource{}, 640, 160))
	l.OnConnectivity(true)
	require.NoError(t, l.Start())

	require.Eventually(t, func() bool {
		st, err := l.Status()
		return err == nil && !st.Playing && st.State == Idle
	}, 2*time.Second, 5*time.Millisecond)

	st, err := l.Status()
	require.NoError(t, err)
	assert.Len(t, sink.all(), frames)
	assert.Equal(t, uint64(frames), st.Counters.TotalDetections)
	assert.Equal(t, uint64(1), st.Counters.PassedDown)
	assert.InDelta(t, st.Duration, st.CurrentTime, 1e-9)
	assert.Equal(t, 1, ch.maxInFlight)
}

func TestLoopRequestTimeout(t *testing.T) {
	sink := &recordingSink{}
	ch := &fakeChannel{}
	p := New(NewSession(nil, nil), ch, WithRenderSink(sink))
	l := NewLoop(p, WithRequestTimeout(20*time.Millisecond))
	startLoop(t, l)

	pb := &fakePlayback{duration: 2.5 * DefaultTimestep, autoSettle: true}
	require.NoError(t, l.LoadSource(pb, &fakeSource{}, 640, 360))
	l.OnConnectivity(true)
	require.NoError(t, l.Start())

	require.Eventually(t, func() bool {
		return len(sink.all()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	for _, r := range sink.all() {
		assert.ErrorIs(t, r.Err, ErrRequestTimeout)
	}
	assert.Len(t, ch.sent(), 3)
}

func TestLoopRejectsAfterShutdown(t *testing.T) {
	p := New(NewSession(nil, nil), &fakeChannel{})
	l := NewLoop(p)
	cancel := startLoop(t, l)

	require.NoError(t, l.SetLinePosition(0.25))
	assert.Error(t, l.SetLinePosition(2))
	assert.ErrorIs(t, l.Start(), ErrNoSource)

	cancel()
	<-l.done
	assert.ErrorIs(t, l.Start(), context.Canceled)
	_, err := l.Status()
	assert.Error(t, err)
	l.Stop()
	l.OnSettled()
}
