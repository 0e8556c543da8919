// Package domain defines the values shared by the feature engines: rasters,
// locations, time series, feature vectors, and the error taxonomy.
//
// # Rasters
//
// A [Grid] is row-major with row 0 on the northern edge and columns running
// east. CellSize is in meters so gradients come out as rise over run.
// Undefined cells are NaN in memory and null in JSON:
//
//	{"spec": {"rows": 2, "cols": 2, "cell_size": 30, "crs": "EPSG:32614"},
//	 "cells": [101.5, 102.0, null, 99.8]}
//
// Grids used together must agree on shape, cell size and CRS. A mismatch is
// a [ConfigurationError] raised before any computation; nothing is resampled.
//
// # Time series
//
// A [Series] holds one metric for one location at a fixed [Period] (daily or
// monthly). Dates are normalized to the start of their period in UTC. A date
// with no observation is an explicit missing [Value]:
//
//	{"metric": "precip", "period": "monthly", "start": "2020-01-01",
//	 "values": [12.4, 0, null, 31.0]}
//
// Missing is never zero. Gaps are only filled when a caller asks for it
// through [Series.Fill].
//
// Metric names used by the engines:
//
//	precip  precipitation total for the period (mm)
//	pet     potential evapotranspiration for the period (mm)
//	tmean   mean air temperature (°C)
//	tmin    minimum air temperature (°C)
//	tmax    maximum air temperature (°C)
//
// # Feature vectors
//
// A [FeatureVector] is keyed by location and date and bound to a closed
// [Schema]. Every slot has a [FeatureStatus]:
//
//	present       numeric value
//	insufficient  not enough history or data (lag beyond series start,
//	              gap inside a rolling window, unfit index)
//	undefined     no value by definition (aspect of a flat cell,
//	              NaN source cell)
//	unset         nothing recorded; the vector is not Complete
//
// Feature names:
//
//	month, dayofyear, sin_day, cos_day   calendar encodings
//	longitude, latitude                  position
//	elevation, slope, aspect, curvature,
//	plan_curvature, total_curvature,
//	tpi, twi, distance_to_water          terrain
//	lag{N}_{metric}                      value N periods earlier
//	roll{W}_{metric}, roll{W}_{metric}_sum  trailing mean and sum
//	stats_{metric}_{std,min,max,trend}   trailing spread, range and slope
//	spi_{T}, spei_{T}                    standardized indices
//
// # Errors
//
//	ConfigurationError      fatal; aborts the batch (ErrConfiguration)
//	InsufficientDataError   per feature, location and date (ErrInsufficientData)
//	DegeneracyWarning       clamped tail value; logged and counted, not an error
package domain
