package jobs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/internal/httpclient"
	"github.com/teranos/waypoint/location"
	"github.com/teranos/waypoint/pulse/async"
)

const overlandFile = `{
	"locations": [
		{
			"type": "Feature",
			"geometry": {"type": "Point", "coordinates": [13.407278, 52.605508]},
			"properties": {
				"timestamp": "2025-01-31T09:32:11Z",
				"speed": 1.5,
				"horizontal_accuracy": 10,
				"altitude": 309,
				"course": 270,
				"battery_level": 0.65,
				"motion": ["walking"]
			}
		},
		{
			"type": "Feature",
			"geometry": {"type": "Point", "coordinates": [13.408, 52.606]},
			"properties": {"timestamp": "2025-01-31T09:33:11+01:00"}
		},
		{
			"type": "Feature",
			"geometry": {"type": "LineString", "coordinates": [[1, 2], [3, 4]]},
			"properties": {"timestamp": "2025-01-31T09:34:11Z"}
		}
	],
	"current": {"battery": "unplugged"}
}`

const batchFile = `{
	"gps_data": [
		{"timestamp": "1672531199", "latitude": 52.605508, "longitude": 13.407278, "heading": -1, "speed": 0},
		{"timestamp": 1672531260.5, "latitude": 52.6056, "longitude": 13.4073},
		{"timestamp": "yesterday", "latitude": 1, "longitude": 1},
		{"latitude": 1, "longitude": 1},
		{"timestamp": 1672531300, "latitude": 123, "longitude": 1}
	]
}`

func decodeAll(t *testing.T, doc string) ([]location.Point, int) {
	t.Helper()
	d := NewPointDecoder(strings.NewReader(doc))
	var points []location.Point
	for {
		p, err := d.Next()
		if err == io.EOF {
			return points, d.Skipped()
		}
		require.NoError(t, err)
		points = append(points, p)
	}
}

func TestDecodeOverland(t *testing.T) {
	points, skipped := decodeAll(t, overlandFile)
	require.Len(t, points, 2)
	assert.Equal(t, 1, skipped)

	first := points[0]
	assert.Equal(t, 52.605508, first.Latitude)
	assert.Equal(t, 13.407278, first.Longitude)
	assert.Equal(t, time.Date(2025, 1, 31, 9, 32, 11, 0, time.UTC), first.Timestamp)
	assert.Equal(t, 1.5, *first.Speed)
	assert.Equal(t, 270.0, *first.Heading, "course maps to heading")
	assert.Nil(t, first.VerticalAccuracy)

	assert.Equal(t, time.Date(2025, 1, 31, 8, 33, 11, 0, time.UTC), points[1].Timestamp)
}

func TestDecodeBatchFormat(t *testing.T) {
	points, skipped := decodeAll(t, batchFile)
	require.Len(t, points, 2)
	assert.Equal(t, 3, skipped, "bad timestamp, missing timestamp and out of range latitude")

	assert.Equal(t, time.Unix(1672531199, 0).UTC(), points[0].Timestamp)
	assert.Equal(t, -1.0, *points[0].Heading)
	assert.Equal(t, time.Unix(1672531260, 500_000_000).UTC(), points[1].Timestamp)
}

func TestDecodeShapes(t *testing.T) {
	points, _ := decodeAll(t, `[{"timestamp": 1, "latitude": 1, "longitude": 2}]`)
	assert.Len(t, points, 1, "bare array")

	points, _ = decodeAll(t, `{"type": "FeatureCollection", "features": [
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [2, 1]}, "properties": {"timestamp": "1970-01-01T00:00:01Z"}}
	]}`)
	require.Len(t, points, 1, "GeoJSON export")
	assert.Equal(t, 1.0, points[0].Latitude)

	points, _ = decodeAll(t, `{"unrelated": {"locations": "nested keys are ignored"}}`)
	assert.Empty(t, points)

	_, err := NewPointDecoder(strings.NewReader(`"just a string"`)).Next()
	assert.Error(t, err)

	_, err = NewPointDecoder(strings.NewReader(`{"locations": [{"type": `)).Next()
	assert.Error(t, err, "truncated documents fail")
}

func TestDecodeSkipsEntriesOfTheWrongShape(t *testing.T) {
	points, skipped := decodeAll(t, `{"locations": [
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [13.4, 52.5]}, "properties": {"timestamp": 1}},
		{"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[13.4, 52.5], [13.5, 52.6]]}, "properties": {"timestamp": 2}},
		{"type": "Feature", "geometry": {"type": "Polygon", "coordinates": [[[0, 0], [1, 0], [1, 1], [0, 0]]]}, "properties": {"timestamp": 3}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": "13.4,52.5"}, "properties": {"timestamp": 4}},
		{"timestamp": 5, "latitude": "52.5", "longitude": 13.4},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [13.6, 52.7]}, "properties": {"timestamp": 6}}
	]}`)
	require.Len(t, points, 2)
	assert.Equal(t, 4, skipped)
	assert.Equal(t, 52.5, points[0].Latitude)
	assert.Equal(t, 52.7, points[1].Latitude)
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "overland.json")
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))
	return src
}

// sourceOptions allows local sources from the directory holding src
func sourceOptions(t *testing.T, src string, batchSize int) ImportOptions {
	t.Helper()
	return ImportOptions{
		Directory:       t.TempDir(),
		SourceDirectory: filepath.Dir(src),
		BatchSize:       batchSize,
	}
}

const (
	importA = "0b6e4f6a-2c1d-4a8e-9f3b-5d7c1e2a9b40"
	importB = "5a3d2c1b-7e6f-4a9b-8c0d-1e2f3a4b5c6d"
)

func TestImportJobFromLocalFile(t *testing.T) {
	store, userID := newTestStore(t)
	ctx := context.Background()
	src := writeSource(t, overlandFile)
	opts := sourceOptions(t, src, 1)

	runner := NewImportJob(store, importA, src, opts, createTestLogger())
	job := runJob(t, TypeImport, userID, runner)
	requireDone(t, job)

	imp, err := store.GetImport(ctx, importA)
	require.NoError(t, err)
	assert.True(t, imp.Done)
	assert.Equal(t, 2, imp.TotalEntries)
	assert.Equal(t, "overland.json", imp.OriginalFilename)
	assert.FileExists(t, filepath.Join(opts.Directory, importA+".json"))

	points, err := store.PointsPage(ctx, userID, location.AllPoints, location.Cursor{}, 10)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, importA, points[0].ImportID)
}

func TestImportJobRelativeSource(t *testing.T) {
	store, userID := newTestStore(t)
	src := writeSource(t, overlandFile)

	runner := NewImportJob(store, importA, "overland.json", sourceOptions(t, src, 10), nil)
	requireDone(t, runJob(t, TypeImport, userID, runner))
}

func TestImportJobFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(batchFile))
	}))
	defer srv.Close()

	store, userID := newTestStore(t)
	opts := ImportOptions{Directory: t.TempDir(), BatchSize: 100, HTTP: httpclient.WrapClient(srv.Client())}
	runner := NewImportJob(store, importA, srv.URL+"/export/batch.json?token=x", opts, createTestLogger())
	requireDone(t, runJob(t, TypeImport, userID, runner))

	imp, err := store.GetImport(context.Background(), importA)
	require.NoError(t, err)
	assert.Equal(t, 2, imp.TotalEntries)
	assert.Equal(t, "batch.json", imp.OriginalFilename)
}

func TestImportJobFailures(t *testing.T) {
	t.Run("missing source", func(t *testing.T) {
		store, userID := newTestStore(t)
		dir := t.TempDir()
		opts := ImportOptions{Directory: t.TempDir(), SourceDirectory: dir, BatchSize: 10}
		runner := NewImportJob(store, importA, filepath.Join(dir, "nope.json"), opts, nil)
		job := runJob(t, TypeImport, userID, runner)
		assert.Equal(t, async.JobStateFailed, job.State())

		imp, err := store.GetImport(context.Background(), importA)
		require.NoError(t, err)
		assert.False(t, imp.Done)
	})

	t.Run("malformed document", func(t *testing.T) {
		store, userID := newTestStore(t)
		src := writeSource(t, `{"locations": [`)
		runner := NewImportJob(store, importA, src, sourceOptions(t, src, 10), nil)
		job := runJob(t, TypeImport, userID, runner)
		assert.Equal(t, async.JobStateFailed, job.State())
		assert.Equal(t, async.ErrorCodeParse, async.ClassifyError(job.Err()))
	})

	t.Run("import of another user", func(t *testing.T) {
		store, userID := newTestStore(t)
		other, err := store.CreateUser(context.Background(), "other@example.com", false)
		require.NoError(t, err)
		_, err = store.EnsureImport(context.Background(), importB, other.ID, "f", "f")
		require.NoError(t, err)

		src := writeSource(t, overlandFile)
		runner := NewImportJob(store, importB, src, sourceOptions(t, src, 10), nil)
		job := runJob(t, TypeImport, userID, runner)
		assert.Equal(t, async.JobStateFailed, job.State())
		assert.True(t, errors.IsInvalidRequestError(job.Err()))
	})
}

func TestImportIDMustBeUUID(t *testing.T) {
	require.NoError(t, ValidateImportID(importA))

	for _, id := range []string{"", "imp-1", "../escaped", "a/b", strings.ToUpper(importA), "urn:uuid:" + importA} {
		t.Run(id, func(t *testing.T) {
			assert.True(t, errors.IsInvalidRequestError(ValidateImportID(id)))
		})
	}

	t.Run("rejected before anything is written", func(t *testing.T) {
		store, userID := newTestStore(t)
		src := writeSource(t, overlandFile)
		opts := sourceOptions(t, src, 10)

		job := runJob(t, TypeImport, userID, NewImportJob(store, "../escaped", src, opts, nil))
		assert.Equal(t, async.JobStateFailed, job.State())
		assert.True(t, errors.IsInvalidRequestError(job.Err()))
		assert.NoFileExists(t, filepath.Join(filepath.Dir(opts.Directory), "escaped.json"))

		_, err := store.GetImport(context.Background(), "../escaped")
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("catalog refuses to build", func(t *testing.T) {
		catalog := async.NewCatalog()
		Register(catalog, Deps{})
		_, err := catalog.Build(TypeImport, map[string]interface{}{"import_id": "../escaped", "source": "x.json"}, "alice")
		assert.True(t, errors.IsInvalidRequestError(err))
	})
}

func TestImportSourceRestrictions(t *testing.T) {
	outside := writeSource(t, overlandFile)
	allowed := t.TempDir()

	link := filepath.Join(allowed, "link.json")
	require.NoError(t, os.Symlink(outside, link))

	tests := []struct {
		name   string
		source string
		opts   ImportOptions
	}{
		{name: "absolute path outside", source: outside, opts: ImportOptions{SourceDirectory: allowed}},
		{name: "relative escape", source: filepath.Join("..", filepath.Base(filepath.Dir(outside)), "overland.json"), opts: ImportOptions{SourceDirectory: allowed}},
		{name: "symlink pointing outside", source: link, opts: ImportOptions{SourceDirectory: allowed}},
		{name: "local sources disabled", source: outside, opts: ImportOptions{}},
		{name: "file URL", source: "file://" + outside, opts: ImportOptions{SourceDirectory: filepath.Dir(outside)}},
		{name: "other scheme", source: "s3://bucket/overland.json", opts: ImportOptions{SourceDirectory: allowed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, userID := newTestStore(t)
			tt.opts.Directory = t.TempDir()
			job := runJob(t, TypeImport, userID, NewImportJob(store, importA, tt.source, tt.opts, nil))
			assert.Equal(t, async.JobStateFailed, job.State())
			assert.True(t, errors.IsInvalidRequestError(job.Err()), "%v", job.Err())
			assert.NoFileExists(t, filepath.Join(tt.opts.Directory, importA+".json"))
		})
	}
}

func TestImportURLToInternalHostIsBlocked(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(batchFile))
	}))
	defer srv.Close()

	store, userID := newTestStore(t)
	opts := ImportOptions{Directory: t.TempDir()}
	job := runJob(t, TypeImport, userID, NewImportJob(store, importA, srv.URL+"/batch.json", opts, nil))
	assert.Equal(t, async.JobStateFailed, job.State())
	assert.Contains(t, job.Err().Error(), "blocked")
	assert.Zero(t, hits)
}

func TestOriginalName(t *testing.T) {
	assert.Equal(t, "a.json", originalName("/tmp/x/a.json"))
	assert.Equal(t, "b.json", originalName("https://example.com/dl/b.json?sig=1"))
	assert.Equal(t, "c.json", originalName("c.json"))
}
