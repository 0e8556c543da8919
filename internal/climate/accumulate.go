package climate

import "github.com/couchcryptid/aquifer-feature-etl/internal/domain"

// Accumulate returns trailing t-period sums aligned with s. The first t-1
// positions, and any window containing a missing value, are missing.
func Accumulate(s domain.Series, t int) []domain.Value {
	out := make([]domain.Value, s.Len())
	for i := t - 1; i < s.Len(); i++ {
		sum, ok := 0.0, true
		for j := i - t + 1; j <= i; j++ {
			v := s.At(j)
			if !v.Valid {
				ok = false
				break
			}
			sum += v.V
		}
		if ok {
			out[i] = domain.Some(sum)
		}
	}
	return out
}
