// Package analytics folds per-frame tracker output into running session totals.
package analytics

import (
	"github.com/LdDl/mot-linecount/mot"
)

// Counters is a snapshot of session totals.
//
// TotalDetections is a raw per-frame sum, not a count of unique objects: an
// object visible on 10 consecutive frames contributes 10.
type Counters struct {
	TotalDetections uint64
	PassedUp        uint64
	PassedDown      uint64
	// Crossings per class label
	ByClass map[string]ClassCounters
}

// ClassCounters holds crossing totals of a single class
type ClassCounters struct {
	PassedUp   uint64
	PassedDown uint64
}

// Accumulator keeps monotonically non-decreasing session counters.
// The only mutation paths are Fold, SetStats and Reset. It is not safe for concurrent use.
type Accumulator struct {
	counters Counters
	stats    map[string]int
}

// New creates empty Accumulator
func New() *Accumulator {
	return &Accumulator{
		counters: Counters{ByClass: make(map[string]ClassCounters)},
		stats:    make(map[string]int),
	}
}

// Fold adds one frame worth of data: rawDetections is added to TotalDetections,
// every crossing event increments its direction counter exactly once.
func (acc *Accumulator) Fold(rawDetections int, events []mot.CrossingEvent) {
	if rawDetections > 0 {
		acc.counters.TotalDetections += uint64(rawDetections)
	}
	for _, event := range events {
		perClass := acc.counters.ByClass[event.Class]
		switch event.Direction {
		case mot.DirectionUp:
			acc.counters.PassedUp++
			perClass.PassedUp++
		case mot.DirectionDown:
			acc.counters.PassedDown++
			perClass.PassedDown++
		default:
			continue
		}
		acc.counters.ByClass[event.Class] = perClass
	}
}

// SetStats replaces the opaque per-label statistics reported by the detection service.
// The map is copied and not interpreted.
func (acc *Accumulator) SetStats(stats map[string]int) {
	acc.stats = make(map[string]int, len(stats))
	for label, count := range stats {
		acc.stats[label] = count
	}
}

// Stats returns copy of the latest per-label statistics
func (acc *Accumulator) Stats() map[string]int {
	stats := make(map[string]int, len(acc.stats))
	for label, count := range acc.stats {
		stats[label] = count
	}
	return stats
}

// Counters returns copy of current counters
func (acc *Accumulator) Counters() Counters {
	snapshot := acc.counters
	snapshot.ByClass = make(map[string]ClassCounters, len(acc.counters.ByClass))
	for class, perClass := range acc.counters.ByClass {
		snapshot.ByClass[class] = perClass
	}
	return snapshot
}

// Reset zeroes every counter and forgets statistics
func (acc *Accumulator) Reset() {
	acc.counters = Counters{ByClass: make(map[string]ClassCounters)}
	acc.stats = make(map[string]int)
}
