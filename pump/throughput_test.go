package pump

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThroughputMeter(t *testing.T) {
	m := NewThroughputMeter(time.Second)
	t0 := time.Unix(1700000000, 0)

	assert.Equal(t, 0, m.Observe(t0))
	assert.Equal(t, 0, m.Observe(t0.Add(300*time.Millisecond)))
	assert.Equal(t, 0, m.Observe(t0.Add(900*time.Millisecond)))

	// First window closed with three responses
	assert.Equal(t, 3, m.Observe(t0.Add(1200*time.Millisecond)))
	assert.Equal(t, 3, m.Current())
	assert.Equal(t, 3, m.Observe(t0.Add(1900*time.Millisecond)))

	// Window [1s, 2s) had two responses
	assert.Equal(t, 2, m.Observe(t0.Add(2100*time.Millisecond)))

	// Idle for more than a window
	assert.Equal(t, 0, m.Observe(t0.Add(5*time.Second)))

	m.Reset()
	assert.Equal(t, 0, m.Current())
	assert.Equal(t, 0, m.Observe(t0.Add(6*time.Second)))
}

func TestThroughputMeterDefaultWindow(t *testing.T) {
	m := NewThroughputMeter(0)
	t0 := time.Unix(1700000000, 0)
	m.Observe(t0)
	assert.Equal(t, 1, m.Observe(t0.Add(time.Second)))
}
