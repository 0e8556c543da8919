package domain

// Anchor ties a grid cell to the geographic point it samples. Reprojection
// happens upstream; the engine only reads the cell.
type Anchor struct {
	Location Location `json:"location"`
	Row      int      `json:"row"`
	Col      int      `json:"col"`
}

// TerrainTile is one bounded raster tile and the sample points inside it.
// FlowAccumulation and WaterMask are optional and must align with Elevation.
type TerrainTile struct {
	ID               string   `json:"id"`
	Elevation        *Grid    `json:"elevation"`
	FlowAccumulation *Grid    `json:"flow_accumulation,omitempty"`
	WaterMask        *Grid    `json:"water_mask,omitempty"`
	Anchors          []Anchor `json:"anchors"`
}

// TerrainProfile holds the static terrain features of one point.
type TerrainProfile struct {
	Elevation       Value `json:"elevation"`
	Slope           Value `json:"slope"`
	Aspect          Value `json:"aspect"`
	Curvature       Value `json:"curvature"`
	PlanCurvature   Value `json:"plan_curvature"`
	TotalCurvature  Value `json:"total_curvature"`
	TPI             Value `json:"tpi"`
	TWI             Value `json:"twi"`
	DistanceToWater Value `json:"distance_to_water"`
	// Flat marks a zero-gradient cell, whose aspect is undefined.
	Flat bool `json:"flat"`
}

// TerrainSample is a profile read at an anchored point.
type TerrainSample struct {
	Location Location       `json:"location"`
	TileID   string         `json:"tile_id"`
	Profile  TerrainProfile `json:"profile"`
}

// LocationJob is the unit of batch work: one location, its metric series and,
// optionally, a terrain profile supplied by the caller. Jobs without a profile
// take the nearest anchored terrain sample.
type LocationJob struct {
	Location Location        `json:"location"`
	Terrain  *TerrainProfile `json:"terrain,omitempty"`
	Series   []Series        `json:"series"`
}
