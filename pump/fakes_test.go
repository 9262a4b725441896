package pump

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakePlayback moves instantly; settled is signalled by the test unless autoSettle is set
type fakePlayback struct {
	mu         sync.Mutex
	current    float64
	duration   float64
	advances   []float64
	settled    func()
	autoSettle bool
}

func (p *fakePlayback) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *fakePlayback) Duration() float64 {
	return p.duration
}

func (p *fakePlayback) Advance(seconds float64) {
	p.mu.Lock()
	p.advances = append(p.advances, seconds)
	p.current += seconds
	if p.current > p.duration {
		p.current = p.duration
	}
	cb := p.settled
	auto := p.autoSettle
	p.mu.Unlock()
	if auto && cb != nil {
		cb()
	}
}

func (p *fakePlayback) OnSettled(callback func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settled = callback
}

func (p *fakePlayback) advanceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.advances)
}

type fakeSource struct {
	err   error
	sizes [][2]int
}

func (s *fakeSource) Capture(width, height int) ([]byte, error) {
	s.sizes = append(s.sizes, [2]int{width, height})
	if s.err != nil {
		return nil, s.err
	}
	return []byte{0xff, 0xd8, 0xff}, nil
}

// fakeChannel tracks requests in flight to check single-flight behaviour
type fakeChannel struct {
	mu          sync.Mutex
	requests    []Request
	inFlight    int
	maxInFlight int
	sendErr     error
	onSend      func(req Request)
}

func (c *fakeChannel) Send(_ context.Context, req Request) error {
	c.mu.Lock()
	if c.sendErr != nil {
		c.mu.Unlock()
		return c.sendErr
	}
	c.requests = append(c.requests, req)
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	onSend := c.onSend
	c.mu.Unlock()
	if onSend != nil {
		onSend(req)
	}
	return nil
}

// answered marks one request as answered by the service
func (c *fakeChannel) answered() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
}

func (c *fakeChannel) sent() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.requests))
	copy(out, c.requests)
	return out
}

func (c *fakeChannel) last() Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

type recordingSink struct {
	mu      sync.Mutex
	results []Result
}

func (s *recordingSink) Render(result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
}

func (s *recordingSink) all() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

var errBoom = errors.New("boom")
