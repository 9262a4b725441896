package pump

import (
	"time"
)

// ThroughputMeter counts processed responses in consecutive wall-clock windows
// and reports the count of the last completed window. Advisory only.
type ThroughputMeter struct {
	window  time.Duration
	start   time.Time
	count   int
	current int
}

// NewThroughputMeter creates meter with the given window, 1s if not positive
func NewThroughputMeter(window time.Duration) *ThroughputMeter {
	if window <= 0 {
		window = time.Second
	}
	return &ThroughputMeter{window: window}
}

// Observe records one processed response at now and returns current throughput
func (m *ThroughputMeter) Observe(now time.Time) int {
	m.roll(now)
	m.count++
	return m.current
}

// Current returns count of the last completed window
func (m *ThroughputMeter) Current() int {
	return m.current
}

// Reset forgets all observations
func (m *ThroughputMeter) Reset() {
	m.start = time.Time{}
	m.count = 0
	m.current = 0
}

func (m *ThroughputMeter) roll(now time.Time) {
	if m.start.IsZero() {
		m.start = now
		return
	}
	elapsed := int(now.Sub(m.start) / m.window)
	switch {
	case elapsed <= 0:
		return
	case elapsed == 1:
		m.current = m.count
	default:
		// Whole windows passed without any response
		m.current = 0
	}
	m.count = 0
	m.start = m.start.Add(time.Duration(elapsed) * m.window)
}
