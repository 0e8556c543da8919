package main

import (
	"cmp"
	"slices"

	"github.com/couchcryptid/aquifer-feature-etl/internal/adapter/jsonl"
	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

var terrainCmd = &cobra.Command{
	Use:   "terrain <tiles.jsonl>",
	Short: "Derive terrain features and print one sample per anchor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tiles, err := jsonl.OpenTiles(args[0])
		if err != nil {
			return err
		}
		defer tiles.Close()

		catalog, err := pipeline.BuildTerrain(cmd.Context(), tiles, engine.Terrain, workers, logger(), metrics())
		if err != nil {
			return err
		}

		w, closeOut, err := output(cmd)
		if err != nil {
			return err
		}
		locs := catalog.Index().Locations()
		slices.SortFunc(locs, func(a, b domain.Location) int { return cmp.Compare(a.ID, b.ID) })
		for _, loc := range locs {
			sample, _ := catalog.Sample(loc.ID)
			if err := w.Write(sample); err != nil {
				_ = closeOut()
				return err
			}
		}
		return closeOut()
	},
}

func init() {
	rootCmd.AddCommand(terrainCmd)
}
