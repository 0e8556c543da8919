package terrain

import "math"

// positionIndex returns z minus the mean of the (2r+1)² window around each
// cell. Windows are truncated at the edges and skip undefined cells; the
// sums come from summed-area tables so the cost does not grow with r.
func positionIndex(z field, radius int) field {
	w := z.cols + 1
	sum := make([]float64, (z.rows+1)*w)
	cnt := make([]float64, (z.rows+1)*w)
	for r := 0; r < z.rows; r++ {
		for c := 0; c < z.cols; c++ {
			v, n := z.at(r, c), 1.0
			if math.IsNaN(v) {
				v, n = 0, 0
			}
			i := (r+1)*w + c + 1
			sum[i] = v + sum[i-1] + sum[i-w] - sum[i-w-1]
			cnt[i] = n + cnt[i-1] + cnt[i-w] - cnt[i-w-1]
		}
	}
	rect := func(t []float64, r0, c0, r1, c1 int) float64 {
		return t[(r1+1)*w+c1+1] - t[r0*w+c1+1] - t[(r1+1)*w+c0] + t[r0*w+c0]
	}

	out := z.like()
	for r := 0; r < z.rows; r++ {
		for c := 0; c < z.cols; c++ {
			v := z.at(r, c)
			if math.IsNaN(v) {
				out.v[r*z.cols+c] = math.NaN()
				continue
			}
			r0, r1 := max(0, r-radius), min(z.rows-1, r+radius)
			c0, c1 := max(0, c-radius), min(z.cols-1, c+radius)
			mean := rect(sum, r0, c0, r1, c1) / rect(cnt, r0, c0, r1, c1)
			out.v[r*z.cols+c] = v - mean
		}
	}
	return out
}
