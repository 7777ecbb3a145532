package features

import (
	"fmt"
	"math"
	"time"

	"TWSignal/internal/domain/models"
	"TWSignal/pkg/config"
)

// column is one named feature series aligned to the bars.
type column struct {
	name   string
	values []float64
}

// Schema returns the column layout Build produces for cfg.
func Schema(cfg config.FeatureConfig) models.FeatureSchema {
	var cols []string
	for _, n := range cfg.MAWindows {
		cols = append(cols, fmt.Sprintf("bias_%d", n))
	}
	cols = append(cols, fmt.Sprintf("rsi_%d", cfg.RSI), "macd", "macd_signal", "macd_hist")
	if cfg.KD {
		cols = append(cols, "stoch_k", "stoch_d")
	}
	cols = append(cols,
		"ret_1d", "ret_5d",
		fmt.Sprintf("volatility_%dd", cfg.Volatility),
		"hl_range",
		fmt.Sprintf("volume_ratio_%d", cfg.VolumeMA),
	)
	for k := 1; k <= cfg.Lags; k++ {
		cols = append(cols, fmt.Sprintf("close_lag%d", k))
	}
	for k := 1; k <= cfg.Lags; k++ {
		cols = append(cols, fmt.Sprintf("volume_lag%d", k))
	}
	for k := 1; k <= cfg.Lags; k++ {
		cols = append(cols, fmt.Sprintf("ret_1d_lag%d", k))
	}
	if cfg.Flows {
		cols = append(cols, "flow_foreign", "flow_trust", "flow_dealer")
	}
	return models.FeatureSchema{Version: models.FeatureSchemaVersion, Columns: cols}
}

// MinBars is the number of bars needed before the first row is fully defined.
func MinBars(cfg config.FeatureConfig) int {
	warm := 5 // ret_5d
	for _, n := range cfg.MAWindows {
		warm = max(warm, n-1)
	}
	warm = max(warm, cfg.RSI, cfg.Volatility, cfg.VolumeMA-1)
	if cfg.KD {
		warm = max(warm, cfg.KDWindow-1+cfg.KDSmooth-1)
	}
	if cfg.Lags > 0 {
		warm = max(warm, cfg.Lags+1)
	}
	return warm + 1
}

// Build derives one feature row per bar. Row D reads bars dated on or before D only,
// so Build over any prefix of bars yields a prefix of the rows Build yields over all of them.
// Leading rows are dropped until every column is defined. Later gaps, such as a zero
// volume average, read as 0.
func Build(bars []models.Bar, flows []models.FlowRecord, cfg config.FeatureConfig) (models.FeatureSchema, []models.FeatureRow, error) {
	schema := Schema(cfg)
	if need := MinBars(cfg); len(bars) < need {
		return schema, nil, &models.InsufficientHistoryError{Need: need, Have: len(bars)}
	}
	cols := columns(bars, flows, cfg)
	if len(cols) != len(schema.Columns) {
		return schema, nil, fmt.Errorf("feature columns: built %d, schema has %d", len(cols), len(schema.Columns))
	}

	start := -1
	for i := range bars {
		if rowDefined(cols, i) {
			start = i
			break
		}
	}
	if start < 0 {
		return schema, nil, &models.InsufficientHistoryError{Need: MinBars(cfg), Have: len(bars)}
	}

	rows := make([]models.FeatureRow, 0, len(bars)-start)
	for i := start; i < len(bars); i++ {
		vals := make([]float64, len(cols))
		for j, c := range cols {
			v := c.values[i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			vals[j] = v
		}
		rows = append(rows, models.FeatureRow{Date: bars[i].Date, Values: vals})
	}
	return schema, rows, nil
}

func rowDefined(cols []column, i int) bool {
	for _, c := range cols {
		v := c.values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func columns(bars []models.Bar, flows []models.FlowRecord, cfg config.FeatureConfig) []column {
	n := len(bars)
	high, low, closes, vol := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	for i, b := range bars {
		high[i], low[i], closes[i], vol[i] = b.High, b.Low, b.Close, b.Volume
	}

	var cols []column
	for _, w := range cfg.MAWindows {
		ma := SMA(closes, w)
		cols = append(cols, column{fmt.Sprintf("bias_%d", w), mapIdx(n, func(i int) float64 { return ratio(closes[i], ma[i]) - 1 })})
	}

	cols = append(cols, column{fmt.Sprintf("rsi_%d", cfg.RSI), RSI(closes, cfg.RSI)})

	line, sig, hist := MACD(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	cols = append(cols,
		column{"macd", perClose(line, closes)},
		column{"macd_signal", perClose(sig, closes)},
		column{"macd_hist", perClose(hist, closes)},
	)

	if cfg.KD {
		k, d := Stochastic(high, low, closes, cfg.KDWindow, cfg.KDSmooth)
		cols = append(cols, column{"stoch_k", k}, column{"stoch_d", d})
	}

	ret1 := Returns(closes, 1)
	cols = append(cols,
		column{"ret_1d", ret1},
		column{"ret_5d", Returns(closes, 5)},
		column{fmt.Sprintf("volatility_%dd", cfg.Volatility), RollingStd(ret1, cfg.Volatility)},
		column{"hl_range", mapIdx(n, func(i int) float64 { return ratio(high[i]-low[i], closes[i]) })},
	)

	volMA := SMA(vol, cfg.VolumeMA)
	cols = append(cols, column{fmt.Sprintf("volume_ratio_%d", cfg.VolumeMA), mapIdx(n, func(i int) float64 { return gapRatio(vol[i], volMA[i]) })})

	for k := 1; k <= cfg.Lags; k++ {
		lagged := Shift(closes, k)
		cols = append(cols, column{fmt.Sprintf("close_lag%d", k), mapIdx(n, func(i int) float64 { return ratio(lagged[i], closes[i]) - 1 })})
	}
	for k := 1; k <= cfg.Lags; k++ {
		lagged := Shift(vol, k)
		cols = append(cols, column{fmt.Sprintf("volume_lag%d", k), mapIdx(n, func(i int) float64 {
			if math.IsNaN(lagged[i]) {
				return nan
			}
			return gapRatio(lagged[i], volMA[i])
		})})
	}
	for k := 1; k <= cfg.Lags; k++ {
		cols = append(cols, column{fmt.Sprintf("ret_1d_lag%d", k), Shift(ret1, k)})
	}

	if cfg.Flows {
		byDate := make(map[time.Time]models.FlowRecord, len(flows))
		for _, f := range flows {
			byDate[f.Date] = f
		}
		pick := func(get func(models.FlowRecord) float64) []float64 {
			return mapIdx(n, func(i int) float64 {
				f, ok := byDate[bars[i].Date]
				if !ok || vol[i] <= 0 {
					return 0
				}
				return get(f) / vol[i]
			})
		}
		cols = append(cols,
			column{"flow_foreign", pick(func(f models.FlowRecord) float64 { return f.Foreign })},
			column{"flow_trust", pick(func(f models.FlowRecord) float64 { return f.Trust })},
			column{"flow_dealer", pick(func(f models.FlowRecord) float64 { return f.Dealer })},
		)
	}
	return cols
}

// gapRatio is a/b where b is defined; a zero denominator reads 0 instead of undefined.
func gapRatio(a, b float64) float64 {
	if math.IsNaN(b) {
		return nan
	}
	if b == 0 {
		return 0
	}
	return a / b
}

func perClose(x, closes []float64) []float64 {
	return mapIdx(len(x), func(i int) float64 { return ratio(x[i], closes[i]) })
}

func mapIdx(n int, f func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

// Labels pairs each row with 1 when close[D+horizon]/close[D]-1 > threshold, else 0.
// Rows whose forward bar is not in bars are dropped.
func Labels(bars []models.Bar, rows []models.FeatureRow, horizon int, threshold float64) ([]models.FeatureRow, []int) {
	idx := make(map[time.Time]int, len(bars))
	for i, b := range bars {
		idx[b.Date] = i
	}
	out := make([]models.FeatureRow, 0, len(rows))
	y := make([]int, 0, len(rows))
	for _, r := range rows {
		i, ok := idx[r.Date]
		if !ok || i+horizon >= len(bars) || bars[i].Close <= 0 {
			continue
		}
		label := 0
		if bars[i+horizon].Close/bars[i].Close-1 > threshold {
			label = 1
		}
		out = append(out, r)
		y = append(y, label)
	}
	return out, y
}
