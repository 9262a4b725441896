package report

import (
	"io"

	"github.com/LdDl/mot-linecount/pump"
)

var trackHeader = []string{
	"time", "track", "class",
	"x", "y",
	"smoothed_x", "smoothed_y",
	"predicted_x", "predicted_y",
}

// TrackCSV is a pump render sink writing every live track of every applied
// frame: raw centroid, filtered centroid and one-step-ahead estimate.
type TrackCSV struct {
	*table
}

// NewTrackCSV writes the header to w and returns the sink.
func NewTrackCSV(w io.Writer) (*TrackCSV, error) {
	t, err := newTable(w, trackHeader)
	if err != nil {
		return nil, err
	}
	return &TrackCSV{table: t}, nil
}

// CreateTrackCSV truncates or creates the file at path
func CreateTrackCSV(path string) (*TrackCSV, error) {
	t, err := createTable(path, trackHeader)
	if err != nil {
		return nil, err
	}
	return &TrackCSV{table: t}, nil
}

// Render appends a row per live track
func (c *TrackCSV) Render(result pump.Result) {
	at := formatTime(result.Position)
	rows := make([][]string, 0, len(result.Tracks))
	for _, tr := range result.Tracks {
		rows = append(rows, []string{
			at, tr.ID.String(), tr.Class,
			formatCoord(tr.Centroid.X), formatCoord(tr.Centroid.Y),
			formatCoord(tr.Smoothed.X), formatCoord(tr.Smoothed.Y),
			formatCoord(tr.Predicted.X), formatCoord(tr.Predicted.Y),
		})
	}
	c.write(rows)
}
