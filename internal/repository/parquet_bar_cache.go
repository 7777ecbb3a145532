package repository

import (
	"os"
	"path/filepath"

	"TWSignal/internal/domain/models"
)

type barRow struct {
	Date   int32   `parquet:"date,date"`
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume float64 `parquet:"volume"`
}

// ParquetBarCache implements BarCache with one file per ticker under <data>/ohlcv.
type ParquetBarCache struct {
	dir string
}

func NewParquetBarCache(dataDir string) *ParquetBarCache {
	return &ParquetBarCache{dir: filepath.Join(dataDir, "ohlcv")}
}

func (c *ParquetBarCache) path(t models.Ticker) string {
	return filepath.Join(c.dir, "ticker="+t.FileKey()+parquetExt)
}

func (c *ParquetBarCache) Load(t models.Ticker) (*models.Series, error) {
	rows, err := readParquet[barRow](c.path(t))
	if err != nil {
		return nil, err
	}
	s := &models.Series{Ticker: t, Bars: make([]models.Bar, 0, len(rows))}
	for _, r := range rows {
		s.Bars = append(s.Bars, models.Bar{
			Date:   fromEpochDays(r.Date),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	models.SortBars(s.Bars)
	return s, nil
}

func (c *ParquetBarCache) Save(s *models.Series) error {
	rows := make([]barRow, 0, len(s.Bars))
	for _, b := range s.Bars {
		rows = append(rows, barRow{
			Date:   toEpochDays(b.Date),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return writeParquet(c.path(s.Ticker), rows)
}

func (c *ParquetBarCache) Exists(t models.Ticker) bool {
	_, err := os.Stat(c.path(t))
	return err == nil
}

func (c *ParquetBarCache) Clear() (int, error) { return clearParquet(c.dir) }
