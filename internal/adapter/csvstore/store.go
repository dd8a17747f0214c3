// Package csvstore persists an earthquake history as a flat CSV file.
package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/juseg/aftershocks/internal/domain"
)

// header is the first line of every history file. Column order is fixed.
var header = []string{"time", "region_name", "magnitude", "latitude", "longitude", "depth"}

// timeLayout keeps the offset so that naive listing times survive a round trip.
const timeLayout = time.RFC3339Nano

// Store reads and writes the history file at a single path.
type Store struct {
	path string
}

// New returns a store for path. Nothing is touched on disk until Load or Save.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the history file location.
func (s *Store) Path() string { return s.path }

// Load reads the full history. A missing file is an empty history.
func (s *Store) Load(ctx context.Context) (domain.History, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.History{}, nil
	}
	if err != nil {
		return nil, s.fail("open", err)
	}
	defer f.Close()

	history, err := readHistory(f)
	if err != nil {
		return nil, s.fail("read", err)
	}
	return history, nil
}

// Save replaces the history file with h. The new content is written to a
// temporary file in the same directory, synced, then renamed over the target,
// so readers see either the old or the new file and never a partial one.
func (s *Store) Save(ctx context.Context, h domain.History) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return s.fail("create directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return s.fail("create temp", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := writeHistory(tmp, h); err != nil {
		return s.fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return s.fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		return s.fail("close", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return s.fail("chmod", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return s.fail("rename", err)
	}
	committed = true
	return nil
}

func (s *Store) fail(op string, err error) error {
	return &domain.PersistenceError{Op: op, Path: s.path, Err: err}
}

func readHistory(r io.Reader) (domain.History, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(header)

	got, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return domain.History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if err := validateHeader(got); err != nil {
		return nil, err
	}

	history := domain.History{}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", line, err)
		}
		rec, err := rowToRecord(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		history = append(history, rec)
	}
	return history, nil
}

func validateHeader(got []string) error {
	if len(got) != len(header) {
		return fmt.Errorf("header has %d columns, expected %d", len(got), len(header))
	}
	for i, expected := range header {
		if got[i] != expected {
			return fmt.Errorf("header mismatch at column %d: expected '%s', got '%s'", i, expected, got[i])
		}
	}
	return nil
}

func rowToRecord(row []string) (domain.EarthquakeRecord, error) {
	ts, err := time.Parse(timeLayout, row[0])
	if err != nil {
		return domain.EarthquakeRecord{}, fmt.Errorf("parsing time: %w", err)
	}
	return domain.EarthquakeRecord{
		Time:      ts,
		Region:    row[1],
		Magnitude: row[2],
		Latitude:  row[3],
		Longitude: row[4],
		Depth:     row[5],
	}, nil
}

func writeHistory(w io.Writer, h domain.History) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, r := range h {
		row := []string{
			r.Time.Format(timeLayout),
			r.Region,
			r.Magnitude,
			r.Latitude,
			r.Longitude,
			r.Depth,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
