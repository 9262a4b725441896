package mot

import (
	"time"
)

// Direction is for the side a track moved to when crossing the counting line
type Direction uint8

const (
	// DirectionDown means centroid moved from above the line to on/below it (Y grows downwards)
	DirectionDown Direction = iota + 1
	// DirectionUp means centroid moved from below the line to on/above it
	DirectionUp
)

func (d Direction) String() string {
	switch d {
	case DirectionDown:
		return "down"
	case DirectionUp:
		return "up"
	default:
		return "unknown"
	}
}

// CrossingEvent is emitted once per directional line crossing of a track
type CrossingEvent struct {
	TrackID   TrackID
	Class     string
	Direction Direction
	At        time.Time
	// Centroid right after the crossing
	Position Point
}
