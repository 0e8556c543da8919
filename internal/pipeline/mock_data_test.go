package pipeline_test

import (
	"context"
	"testing"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/features"
	"github.com/couchcryptid/aquifer-feature-etl/internal/mockdata"
	"github.com/couchcryptid/aquifer-feature-etl/internal/pipeline"
	"github.com/couchcryptid/aquifer-feature-etl/internal/spatial"
	"github.com/couchcryptid/aquifer-feature-etl/internal/terrain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_WithMockData(t *testing.T) {
	params := mockdata.DefaultParams()
	ds, err := mockdata.Generate(params)
	require.NoError(t, err)

	metrics := newTestMetrics()
	catalog, err := pipeline.BuildTerrain(context.Background(), &sliceTiles{tiles: ds.Tiles},
		terrain.DefaultOptions(), 4, discardLogger(), metrics)
	require.NoError(t, err)
	require.Equal(t, params.Tiles*params.AnchorsPerTile, catalog.Len())

	assembler, err := features.NewAssembler(features.DefaultConfig())
	require.NoError(t, err)

	var batches [][]domain.LocationJob
	for i := 0; i < len(ds.Jobs); i += 7 {
		batches = append(batches, ds.Jobs[i:min(i+7, len(ds.Jobs))])
	}
	ldr := &mockLoader{}
	holder := &spatial.Holder{}
	p := pipeline.New(&mockExtractor{batches: batches}, pipeline.NewTransformer(assembler, discardLogger()),
		ldr, discardLogger(), metrics, 7,
		pipeline.WithWorkers(4), pipeline.WithTerrain(catalog, 50), pipeline.WithLocationIndex(holder))
	require.NoError(t, p.Run(context.Background()))

	got := ldr.vectors()
	require.Len(t, got, len(ds.Jobs)*params.Months)
	assert.Equal(t, len(ds.Jobs), holder.Load().Len())

	anchored := map[string]bool{}
	for _, tile := range ds.Tiles {
		for _, a := range tile.Anchors {
			anchored[a.Location.ID] = true
		}
	}

	for _, v := range got {
		assert.True(t, v.Complete(), "every slot resolved for %s on %s", v.Location().ID, v.Date())

		elev, _ := v.Get(features.FeatureElevation)
		twi, _ := v.Get(features.FeatureTWI)
		if anchored[v.Location().ID] {
			assert.Equal(t, domain.StatusPresent, elev.Status)
			assert.Equal(t, domain.StatusPresent, twi.Status)
		} else {
			assert.Equal(t, domain.StatusInsufficient, elev.Status)
		}

		spi, _ := v.Get("spi_1")
		if spi.Present() {
			assert.LessOrEqual(t, spi.Value, 3.5)
			assert.GreaterOrEqual(t, spi.Value, -3.5)
		}
	}
}
