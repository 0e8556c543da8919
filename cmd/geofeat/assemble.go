package main

import (
	"github.com/couchcryptid/aquifer-feature-etl/internal/adapter/jsonl"
	"github.com/couchcryptid/aquifer-feature-etl/internal/features"
	"github.com/couchcryptid/aquifer-feature-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	tilesPath   string
	maxDistance float64
	batchSize   int
)

var assembleCmd = &cobra.Command{
	Use:   "assemble <locations.jsonl>",
	Short: "Assemble feature vectors for every location job",
	Long: `Reads location jobs, optionally attaches the nearest terrain sample from
--tiles, and prints one feature vector per location and date.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, m := logger(), metrics()

		assembler, err := features.NewAssembler(engine.Features)
		if err != nil {
			return err
		}
		opts := []pipeline.Option{pipeline.WithWorkers(workers)}
		if tilesPath != "" {
			tiles, err := jsonl.OpenTiles(tilesPath)
			if err != nil {
				return err
			}
			catalog, err := pipeline.BuildTerrain(cmd.Context(), tiles, engine.Terrain, workers, log, m)
			_ = tiles.Close()
			if err != nil {
				return err
			}
			opts = append(opts, pipeline.WithTerrain(catalog, maxDistance))
		}

		jobs, err := jsonl.OpenJobs(args[0])
		if err != nil {
			return err
		}
		defer jobs.Close()

		w, closeOut, err := output(cmd)
		if err != nil {
			return err
		}
		p := pipeline.New(jobs, pipeline.NewTransformer(assembler, log), w, log, m, batchSize, opts...)
		if err := p.Run(cmd.Context()); err != nil {
			_ = closeOut()
			return err
		}
		return closeOut()
	},
}

func init() {
	assembleCmd.Flags().StringVar(&tilesPath, "tiles", "", "Terrain tiles to sample (JSON lines)")
	assembleCmd.Flags().Float64Var(&maxDistance, "terrain-max-distance", 5000, "Meters a location may borrow terrain from")
	assembleCmd.Flags().IntVar(&batchSize, "batch-size", 50, "Locations per batch")
	rootCmd.AddCommand(assembleCmd)
}
