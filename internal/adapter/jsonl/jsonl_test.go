package jsonl_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/adapter/jsonl"
	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/mockdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobsInput = `{"location":{"id":"w-1","lon":-97.5,"lat":35.4},"series":[{"metric":"precip","period":"monthly","start":"2020-01-01","values":[12.4,0,null,31]}]}
{"location":{"id":"w-2","lon":-97.6,"lat":35.5},"series":[]}

{"location":{"id":"w-3","lon":-97.7,"lat":35.6},"terrain":{"elevation":410,"slope":1.5,"aspect":null,"curvature":0,"plan_curvature":null,"total_curvature":0,"tpi":0.2,"twi":9.1,"distance_to_water":null,"flat":false},"series":[]}
`

func TestJobReader_Batches(t *testing.T) {
	r := jsonl.NewJobReader(strings.NewReader(jobsInput))
	ctx := context.Background()

	first, err := r.ExtractBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "w-1", first[0].Location.ID)

	precip := first[0].Series[0]
	assert.Equal(t, "precip", precip.Metric())
	assert.Equal(t, 4, precip.Len())
	assert.False(t, precip.At(2).Valid, "null is missing, not zero")
	assert.Equal(t, domain.Some(0), precip.At(1))
	assert.Nil(t, first[0].Terrain)

	second, err := r.ExtractBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.NotNil(t, second[0].Terrain)
	assert.Equal(t, domain.Some(9.1), second[0].Terrain.TWI)
	assert.False(t, second[0].Terrain.Aspect.Valid)

	_, err = r.ExtractBatch(ctx, 2)
	assert.ErrorIs(t, err, io.EOF)
}

func TestJobReader_MalformedRecord(t *testing.T) {
	r := jsonl.NewJobReader(strings.NewReader(`{"location":{"id":"ok"}}` + "\n" + `{"location": nope}`))
	_, err := r.ExtractBatch(context.Background(), 5)
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "record 2")
}

func TestJobReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := jsonl.NewJobReader(strings.NewReader(jobsInput)).ExtractBatch(ctx, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTiles_RoundTripThroughFile(t *testing.T) {
	p := mockdata.DefaultParams()
	p.Tiles, p.Rows, p.Cols = 2, 8, 8
	ds, err := mockdata.Generate(p)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tiles.jsonl")
	var buf bytes.Buffer
	w := jsonl.NewWriter(&buf)
	for _, tile := range ds.Tiles {
		require.NoError(t, w.Write(tile))
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	r, err := jsonl.OpenTiles(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	for _, want := range ds.Tiles {
		got, err := r.NextTile(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Elevation.Cells(), got.Elevation.Cells())
		assert.Equal(t, want.Anchors, got.Anchors)
	}
	_, err = r.NextTile(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestTileReader_RequiresElevation(t *testing.T) {
	r := jsonl.NewTileReader(strings.NewReader(`{"id":"t-1","anchors":[]}`))
	_, err := r.NextTile(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestOpenJobs_MissingFile(t *testing.T) {
	_, err := jsonl.OpenJobs(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriter_LoadBatch(t *testing.T) {
	schema, err := domain.NewSchema("twi", "spi_3")
	require.NoError(t, err)
	b := domain.NewVectorBuilder(schema, domain.Location{ID: "w-1", Lon: 1, Lat: 2},
		time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, b.Set("twi", 7.5))
	require.NoError(t, b.MarkInsufficient("spi_3", "insufficient history"))

	var buf bytes.Buffer
	require.NoError(t, jsonl.NewWriter(&buf).LoadBatch(context.Background(), []domain.FeatureVector{b.Build(), b.Build()}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var got domain.FeatureVector
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	twi, ok := got.Get("twi")
	require.True(t, ok)
	assert.Equal(t, 7.5, twi.Value)
	spi, _ := got.Get("spi_3")
	assert.Equal(t, domain.StatusInsufficient, spi.Status)
}

func TestReadVectors_FromWriterOutput(t *testing.T) {
	schema, err := domain.NewSchema("twi")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "vectors.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)

	var batch []domain.FeatureVector
	for i := range 3 {
		b := domain.NewVectorBuilder(schema, domain.Location{ID: "w-1"},
			time.Date(2021, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, b.Set("twi", float64(i)))
		batch = append(batch, b.Build())
	}
	require.NoError(t, jsonl.NewWriter(f).LoadBatch(context.Background(), batch))
	require.NoError(t, f.Close())

	got, err := jsonl.ReadVectors(path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, time.March, got[2].Date().Month())
	twi, _ := got[2].Get("twi")
	assert.Equal(t, 2.0, twi.Value)

	require.NoError(t, os.WriteFile(path, []byte(`{"location":{"id":"w-1"},"date":"June"}`), 0o600))
	_, err = jsonl.ReadVectors(path)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
