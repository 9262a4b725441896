// Package report writes pump results as CSV: crossing events, and optionally
// per-frame track positions.
package report

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/LdDl/mot-linecount/pump"
)

var header = []string{"time", "type", "class", "track"}

// table is a CSV stream with a sticky first error
type table struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	rows   int
	err    error
}

func newTable(w io.Writer, columns []string) (*table, error) {
	t := &table{w: csv.NewWriter(w)}
	if err := t.w.Write(columns); err != nil {
		return nil, errors.Wrap(err, "Can't write csv header")
	}
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		return nil, errors.Wrap(err, "Can't write csv header")
	}
	return t, nil
}

func createTable(path string, columns []string) (*table, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't create report %s", path)
	}
	t, err := newTable(f, columns)
	if err != nil {
		f.Close()
		return nil, err
	}
	t.closer = f
	return t, nil
}

// write appends rows and flushes. After the first error later rows are dropped.
func (t *table) write(rows [][]string) {
	if len(rows) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}
	for _, row := range rows {
		if err := t.w.Write(row); err != nil {
			t.err = errors.Wrap(err, "Can't write csv row")
			return
		}
		t.rows++
	}
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		t.err = errors.Wrap(err, "Can't flush csv rows")
	}
}

// Rows returns number of data rows written
func (t *table) Rows() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rows
}

// Err returns the first write error
func (t *table) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close flushes pending rows and closes the underlying file, if any
func (t *table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.w.Flush()
	err := t.w.Error()
	if t.closer != nil {
		if cerr := t.closer.Close(); err == nil {
			err = cerr
		}
		t.closer = nil
	}
	if err != nil {
		return errors.Wrap(err, "Can't close report")
	}
	return t.err
}

// CSV is a pump render sink appending crossing events to a CSV stream.
// Time is the playback position of the frame, seconds.
type CSV struct {
	*table
}

// NewCSV writes the header to w and returns the sink.
func NewCSV(w io.Writer) (*CSV, error) {
	t, err := newTable(w, header)
	if err != nil {
		return nil, err
	}
	return &CSV{table: t}, nil
}

// CreateCSV truncates or creates the file at path
func CreateCSV(path string) (*CSV, error) {
	t, err := createTable(path, header)
	if err != nil {
		return nil, err
	}
	return &CSV{table: t}, nil
}

// Render appends a row per crossing event. The first write error is kept and
// reported by Err; later rows are dropped.
func (c *CSV) Render(result pump.Result) {
	at := formatTime(result.Position)
	rows := make([][]string, 0, len(result.Events))
	for _, ev := range result.Events {
		rows = append(rows, []string{at, ev.Direction.String(), ev.Class, ev.TrackID.String()})
	}
	c.write(rows)
}

func formatTime(position float64) string {
	return strconv.FormatFloat(position, 'f', 2, 64)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
