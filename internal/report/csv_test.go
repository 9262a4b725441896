package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LdDl/mot-linecount/mot"
	"github.com/LdDl/mot-linecount/pump"
)

func crossing(class string, dir mot.Direction) mot.CrossingEvent {
	return mot.CrossingEvent{
		TrackID:   uuid.New(),
		Class:     class,
		Direction: dir,
		At:        time.Unix(1700000000, 0),
	}
}

func TestCSVRows(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewCSV(&buf)
	require.NoError(t, err)

	down := crossing("car", mot.DirectionDown)
	up := crossing("bus", mot.DirectionUp)
	sink.Render(pump.Result{Position: 1.0 / 3.0})
	sink.Render(pump.Result{Position: 1.5, Events: []mot.CrossingEvent{down, up}})
	require.NoError(t, sink.Close())
	assert.Equal(t, 2, sink.Rows())

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"time", "type", "class", "track"},
		{"1.50", "down", "car", down.TrackID.String()},
		{"1.50", "up", "bus", up.TrackID.String()},
	}, records)
}

func TestCreateCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crossings.csv")
	sink, err := CreateCSV(path)
	require.NoError(t, err)
	sink.Render(pump.Result{Position: 0.2, Events: []mot.CrossingEvent{crossing("truck", mot.DirectionDown)}})
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "time,type,class,track\n0.20,down,truck,")

	_, err = CreateCSV(filepath.Join(t.TempDir(), "missing", "x.csv"))
	assert.Error(t, err)
}

type failingWriter struct {
	after int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("disk full")
	}
	w.after--
	return len(p), nil
}

func TestCSVWriteErrors(t *testing.T) {
	_, err := NewCSV(&failingWriter{})
	assert.Error(t, err)

	sink, err := NewCSV(&failingWriter{after: 1})
	require.NoError(t, err)
	sink.Render(pump.Result{Events: []mot.CrossingEvent{crossing("car", mot.DirectionUp)}})
	assert.Error(t, sink.Err())

	// Sticky: later rows are dropped
	sink.Render(pump.Result{Events: []mot.CrossingEvent{crossing("car", mot.DirectionDown)}})
	assert.Equal(t, 1, sink.Rows())
	assert.Error(t, sink.Close())
}
