// Package climate computes standardized drought indices from gap-aware
// series: SPI from precipitation (zero-inflated gamma) and SPEI from the
// precipitation minus evapotranspiration balance (three-parameter
// log-logistic fitted by probability-weighted moments).
//
// Each timescale T is handled independently:
//
//  1. trailing T-period sums; any gap in the window leaves the sum missing
//  2. fit the distribution to every non-missing sum
//  3. map each sum through the fitted CDF and the inverse standard normal
//
// A timescale with fewer than MinPoints sums, or whose fit is degenerate, is
// reported as unfit and produces no values. Probabilities whose normal
// quantile lies beyond ±ZBound are clamped and reported as warnings.
package climate
