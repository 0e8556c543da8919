package main

import (
	"context"

	"github.com/couchcryptid/aquifer-feature-etl/internal/adapter/jsonl"
	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/spatial"
	"github.com/spf13/cobra"
)

var (
	queryLon  float64
	queryLat  float64
	nearestK  int
	radiusM   float64
	threshold int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run spatial queries over the locations in a jobs file",
}

var nearestCmd = &cobra.Command{
	Use:   "nearest <locations.jsonl>",
	Short: "Print the k locations closest to --lon/--lat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := loadIndex(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		hits, err := ix.Nearest(queryLon, queryLat, nearestK)
		if err != nil {
			return err
		}
		return writeNeighbors(cmd, hits)
	},
}

var withinCmd = &cobra.Command{
	Use:   "within <locations.jsonl>",
	Short: "Print every location within --radius-m of --lon/--lat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := loadIndex(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		hits, err := ix.Within(queryLon, queryLat, radiusM)
		if err != nil {
			return err
		}
		return writeNeighbors(cmd, hits)
	},
}

func loadIndex(ctx context.Context, path string) (*spatial.Index, error) {
	r, err := jsonl.OpenJobs(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	jobs, err := r.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	locs := make([]domain.Location, len(jobs))
	for i, j := range jobs {
		locs[i] = j.Location
	}
	ix, err := spatial.Build(locs, spatial.WithLinearThreshold(threshold))
	if err != nil {
		return nil, err
	}
	logger().Debug("location index built", "locations", ix.Len(), "strategy", ix.Strategy())
	return ix, nil
}

func writeNeighbors(cmd *cobra.Command, hits []spatial.Neighbor) error {
	w, closeOut, err := output(cmd)
	if err != nil {
		return err
	}
	for _, h := range hits {
		if err := w.Write(h); err != nil {
			_ = closeOut()
			return err
		}
	}
	return closeOut()
}

func init() {
	for _, c := range []*cobra.Command{nearestCmd, withinCmd} {
		c.Flags().Float64Var(&queryLon, "lon", 0, "Query longitude in decimal degrees")
		c.Flags().Float64Var(&queryLat, "lat", 0, "Query latitude in decimal degrees")
		c.Flags().IntVar(&threshold, "linear-threshold", spatial.DefaultLinearThreshold, "Scan linearly below this many locations")
		_ = c.MarkFlagRequired("lon")
		_ = c.MarkFlagRequired("lat")
	}
	nearestCmd.Flags().IntVarP(&nearestK, "k", "k", 5, "Number of neighbors")
	withinCmd.Flags().Float64Var(&radiusM, "radius-m", 1000, "Search radius in meters")

	queryCmd.AddCommand(nearestCmd, withinCmd)
	rootCmd.AddCommand(queryCmd)
}
