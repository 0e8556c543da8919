// Command geofeat runs the feature engines over local files: terrain
// derivation, vector assembly, and spatial queries.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
