package csvstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juseg/aftershocks/internal/domain"
)

func sampleHistory(t *testing.T) domain.History {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	return domain.History{
		{Time: time.Date(2018, 9, 6, 3, 7, 0, 0, loc), Region: "Iburi-chiho Chutobu", Magnitude: "M6.7", Latitude: "42.7N", Longitude: "142.0E", Depth: "37km"},
		{Time: time.Date(2018, 9, 6, 3, 20, 0, 0, loc), Region: "Iburi-chiho Chutobu", Magnitude: "M4.1"},
		{Time: time.Date(2018, 9, 6, 6, 11, 0, 0, loc), Region: `Region, with "quotes"`, Magnitude: "M-1.0"},
	}
}

// sameInstants compares histories with times compared as instants.
var sameInstants = cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })

func TestStore_LoadMissingFileIsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.csv"))

	h, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h)
	assert.NotNil(t, h)
}

func TestStore_SaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iburi.csv")
	s := New(path)
	want := sampleHistory(t)

	require.NoError(t, s.Save(context.Background(), want))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, sameInstants); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_SaveWritesHeaderAndOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iburi.csv")
	require.NoError(t, New(path).Save(context.Background(), sampleHistory(t)[:1]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "time,region_name,magnitude,latitude,longitude,depth", lines[0])
	assert.Equal(t, "2018-09-06T03:07:00+09:00,Iburi-chiho Chutobu,M6.7,42.7N,142.0E,37km", lines[1])
}

func TestStore_SaveEmptyHistory(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "empty.csv"))
	require.NoError(t, s.Save(context.Background(), domain.History{}))

	h, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestStore_SaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "iburi.csv")
	require.NoError(t, New(path).Save(context.Background(), sampleHistory(t)))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestStore_SaveReplacesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iburi.csv")
	s := New(path)
	h := sampleHistory(t)

	require.NoError(t, s.Save(context.Background(), h))
	require.NoError(t, s.Save(context.Background(), h[:1]))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "iburi.csv", entries[0].Name())
}

func TestStore_SaveFailureKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iburi.csv")
	s := New(path)
	require.NoError(t, s.Save(context.Background(), sampleHistory(t)))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// A directory at the target path makes the final rename fail.
	blocked := New(filepath.Join(dir, "blocked"))
	require.NoError(t, os.Mkdir(blocked.Path(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(blocked.Path(), "keep"), nil, 0o644))

	err = blocked.Save(context.Background(), sampleHistory(t))
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "rename", perr.Op)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp file must be cleaned up")
}

func TestStore_LoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "wrong header",
			content: "when,where,mag,lat,lon,depth\n",
			want:    "header mismatch at column 0",
		},
		{
			name:    "short header",
			content: "time,region_name,magnitude\n",
			want:    "reading header",
		},
		{
			name:    "bad timestamp",
			content: "time,region_name,magnitude,latitude,longitude,depth\nyesterday,Iburi,M1.0,,,\n",
			want:    "row 2: parsing time",
		},
		{
			name:    "short row",
			content: "time,region_name,magnitude,latitude,longitude,depth\n2018-09-06T03:07:00+09:00,Iburi\n",
			want:    "reading row 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.csv")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := New(path).Load(context.Background())
			require.Error(t, err)

			var perr *domain.PersistenceError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, path, perr.Path)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStore_LoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	h, err := New(path).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(filepath.Join(t.TempDir(), "iburi.csv"))

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Save(ctx, nil), context.Canceled)
}

func TestStore_MergeRoundTripIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iburi.csv")
	s := New(path)
	h := sampleHistory(t)

	merged := domain.Merge(nil, h)
	require.NoError(t, s.Save(context.Background(), merged))

	loaded, err := s.Load(context.Background())
	require.NoError(t, err)

	again := domain.Merge(loaded, h)
	assert.Len(t, again, len(merged))
}
