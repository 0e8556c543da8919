//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/adapter/jsonl"
	"github.com/couchcryptid/aquifer-feature-etl/internal/adapter/kafka"
	"github.com/couchcryptid/aquifer-feature-etl/internal/adapter/sqlstore"
	"github.com/couchcryptid/aquifer-feature-etl/internal/config"
	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/features"
	"github.com/couchcryptid/aquifer-feature-etl/internal/mockdata"
	"github.com/couchcryptid/aquifer-feature-etl/internal/observability"
	"github.com/couchcryptid/aquifer-feature-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSinkTopic = "test-feature-vectors"

// publishedVector holds a deserialized message read from the sink topic.
type publishedVector struct {
	Vector  domain.FeatureVector
	Key     string
	Headers map[string]string
}

// readPublished reads a single message from the sink consumer and deserializes it.
func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedVector {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var fv domain.FeatureVector
	require.NoError(t, json.Unmarshal(msg.Value, &fv), "unmarshal sink message")

	return publishedVector{Vector: fv, Key: string(msg.Key), Headers: headers}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaWriter verifies that kafka.Writer publishes a vector with its key
// and headers intact.
func TestKafkaWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	generated := time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(generated))
	t.Cleanup(func() { domain.SetClock(nil) })

	schema, err := domain.NewSchema("twi", "spi_3")
	require.NoError(t, err)
	b := domain.NewVectorBuilder(schema, domain.Location{ID: "well-7", Lon: -97.5, Lat: 35.4},
		time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, b.Set("twi", 10.84))
	require.NoError(t, b.MarkInsufficient("spi_3", "insufficient history"))

	writer := kafka.NewWriter(&config.Config{KafkaBrokers: []string{broker}, KafkaSinkTopic: testSinkTopic}, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.FeatureVector{b.Build()}))

	pv := readPublished(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, "well-7|2021-06-01", pv.Key)
	assert.Equal(t, "true", pv.Headers["feature_complete"])
	assert.Equal(t, generated.Format(time.RFC3339), pv.Headers["generated_at"])

	twi, ok := pv.Vector.Get("twi")
	require.True(t, ok)
	assert.Equal(t, 10.84, twi.Value)
	spi, _ := pv.Vector.Get("spi_3")
	assert.Equal(t, domain.StatusInsufficient, spi.Status)
}

type sliceTiles struct {
	tiles []domain.TerrainTile
}

func (s *sliceTiles) NextTile(context.Context) (domain.TerrainTile, error) {
	if len(s.tiles) == 0 {
		return domain.TerrainTile{}, io.EOF
	}
	tile := s.tiles[0]
	s.tiles = s.tiles[1:]
	return tile, nil
}

// TestPipelineEndToEnd wires the full pipeline (jobs file → assembler →
// SQL store + Kafka) and verifies every vector reaches both sinks.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	p := mockdata.DefaultParams()
	p.Tiles, p.AnchorsPerTile, p.Orphans, p.Months = 1, 3, 1, 24
	p.Rows, p.Cols = 32, 32
	ds, err := mockdata.Generate(p)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := jsonl.NewWriter(&buf)
	for _, job := range ds.Jobs {
		require.NoError(t, w.Write(job))
	}

	logger, metrics := discardLogger(), observability.NewMetricsForTesting()
	engine := config.DefaultEngine()
	catalog, err := pipeline.BuildTerrain(ctx, &sliceTiles{tiles: ds.Tiles}, engine.Terrain, 2, logger, metrics)
	require.NoError(t, err)
	assembler, err := features.NewAssembler(engine.Features)
	require.NoError(t, err)

	store, err := sqlstore.Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	writer := kafka.NewWriter(&config.Config{KafkaBrokers: []string{broker}, KafkaSinkTopic: testSinkTopic}, logger)
	t.Cleanup(func() { _ = writer.Close() })

	pl := pipeline.New(jsonl.NewJobReader(&buf), pipeline.NewTransformer(assembler, logger),
		pipeline.MultiLoader{store, writer}, logger, metrics, 2,
		pipeline.WithWorkers(2), pipeline.WithTerrain(catalog, 5000))
	require.NoError(t, pl.Run(ctx))
	require.NoError(t, pl.CheckReadiness(ctx))

	want := len(ds.Jobs) * p.Months
	consumer := sinkConsumer(t, broker)
	keys := make(map[string]bool, want)
	for len(keys) < want {
		pv := readPublished(ctx, t, consumer)
		require.False(t, keys[pv.Key], "duplicate key %s", pv.Key)
		keys[pv.Key] = true
		assert.Equal(t, kafka.MessageKey(pv.Vector), pv.Key)
		assert.Equal(t, "true", pv.Headers["feature_complete"])

		stored, err := store.Load(ctx, pv.Vector.Location(), pv.Vector.Date())
		require.NoError(t, err)
		assert.Equal(t, pv.Vector.Dense()[0], stored.Dense()[0])
	}

	for _, job := range ds.Jobs {
		list, err := store.List(ctx, job.Location.ID)
		require.NoError(t, err)
		assert.Len(t, list, p.Months, job.Location.ID)
	}
}
