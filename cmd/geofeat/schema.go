package main

import (
	"fmt"

	"github.com/couchcryptid/aquifer-feature-etl/internal/features"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "List the feature names the engine parameters produce, in vector order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := features.NewAssembler(engine.Features)
		if err != nil {
			return err
		}
		for _, name := range a.Schema().Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
