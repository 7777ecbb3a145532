package features

import "math"

// Rolling indicators over a column. Every function returns a slice the length of its
// input where index i depends only on inputs 0..i. Undefined positions hold NaN.

var nan = math.NaN()

func filled(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = nan
	}
	return out
}

// SMA is the simple moving average over n values.
func SMA(x []float64, n int) []float64 {
	out := filled(len(x))
	if n <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range x {
		sum += v
		if i >= n {
			sum -= x[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// EMA is the exponential moving average with alpha 2/(n+1), seeded with the first value.
// NaN inputs are skipped until the first defined value.
func EMA(x []float64, n int) []float64 {
	out := filled(len(x))
	alpha := 2.0 / float64(n+1)
	prev := nan
	for i, v := range x {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(prev) {
			prev = v
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// RSI uses simple rolling means of gains and losses over n price changes.
// No losses reads 100, or 50 when there were no gains either.
func RSI(closes []float64, n int) []float64 {
	out := filled(len(closes))
	if len(closes) <= n {
		return out
	}
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	var g, l float64
	for i := 1; i < len(closes); i++ {
		g += gains[i]
		l += losses[i]
		if i > n {
			g -= gains[i-n]
			l -= losses[i-n]
		}
		if i < n {
			continue
		}
		avgG, avgL := g/float64(n), l/float64(n)
		switch {
		case avgL <= 1e-12 && avgG <= 1e-12:
			out[i] = 50
		case avgL <= 1e-12:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+avgG/avgL)
		}
	}
	return out
}

// MACD returns the fast-slow EMA spread, its signal EMA and the histogram.
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist []float64) {
	ef, es := EMA(closes, fast), EMA(closes, slow)
	line = make([]float64, len(closes))
	for i := range closes {
		line[i] = ef[i] - es[i]
	}
	sig = EMA(line, signal)
	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}

// Stochastic returns %K over n bars and %D as the m-bar SMA of %K. A flat range reads 50.
func Stochastic(high, low, closes []float64, n, m int) (k, d []float64) {
	k, d = filled(len(closes)), filled(len(closes))
	if n < 1 || len(closes) < n {
		return k, d
	}
	for i := n - 1; i < len(closes); i++ {
		hh, ll := high[i], low[i]
		for j := i - n + 1; j < i; j++ {
			hh = math.Max(hh, high[j])
			ll = math.Min(ll, low[j])
		}
		if hh-ll <= 1e-12 {
			k[i] = 50
			continue
		}
		k[i] = 100 * (closes[i] - ll) / (hh - ll)
	}
	copy(d[n-1:], SMA(k[n-1:], m))
	return k, d
}

// Returns is the simple k-period return.
func Returns(closes []float64, k int) []float64 {
	out := filled(len(closes))
	for i := k; i < len(closes); i++ {
		out[i] = ratio(closes[i], closes[i-k]) - 1
	}
	return out
}

// RollingStd is the sample standard deviation over n values. A NaN in the window yields NaN.
func RollingStd(x []float64, n int) []float64 {
	out := filled(len(x))
	if n < 2 {
		return out
	}
	for i := n - 1; i < len(x); i++ {
		var sum, sum2 float64
		ok := true
		for _, v := range x[i-n+1 : i+1] {
			if math.IsNaN(v) {
				ok = false
				break
			}
			sum += v
			sum2 += v * v
		}
		if !ok {
			continue
		}
		mean := sum / float64(n)
		variance := (sum2 - float64(n)*mean*mean) / float64(n-1)
		out[i] = math.Sqrt(math.Max(variance, 0))
	}
	return out
}

// Shift moves x forward by k positions, so out[i] = x[i-k].
func Shift(x []float64, k int) []float64 {
	out := filled(len(x))
	for i := k; i < len(x); i++ {
		out[i] = x[i-k]
	}
	return out
}

// ratio divides, returning NaN for a zero or undefined denominator.
func ratio(a, b float64) float64 {
	if b == 0 || math.IsNaN(b) || math.IsNaN(a) {
		return nan
	}
	return a / b
}
