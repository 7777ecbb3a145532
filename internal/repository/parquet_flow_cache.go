package repository

import (
	"path/filepath"
	"sort"

	"TWSignal/internal/domain/models"
)

type flowRow struct {
	Date    int32   `parquet:"date,date"`
	Foreign float64 `parquet:"foreign"`
	Trust   float64 `parquet:"trust"`
	Dealer  float64 `parquet:"dealer"`
}

// ParquetFlowCache implements FlowCache with one file per ticker under <data>/flows.
type ParquetFlowCache struct {
	dir string
}

func NewParquetFlowCache(dataDir string) *ParquetFlowCache {
	return &ParquetFlowCache{dir: filepath.Join(dataDir, "flows")}
}

func (c *ParquetFlowCache) path(t models.Ticker) string {
	return filepath.Join(c.dir, "ticker="+t.FileKey()+parquetExt)
}

func (c *ParquetFlowCache) Load(t models.Ticker) ([]models.FlowRecord, error) {
	rows, err := readParquet[flowRow](c.path(t))
	if err != nil {
		return nil, err
	}
	out := make([]models.FlowRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.FlowRecord{
			Date:    fromEpochDays(r.Date),
			Foreign: r.Foreign,
			Trust:   r.Trust,
			Dealer:  r.Dealer,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (c *ParquetFlowCache) Save(t models.Ticker, flows []models.FlowRecord) error {
	rows := make([]flowRow, 0, len(flows))
	for _, f := range flows {
		rows = append(rows, flowRow{
			Date:    toEpochDays(f.Date),
			Foreign: f.Foreign,
			Trust:   f.Trust,
			Dealer:  f.Dealer,
		})
	}
	return writeParquet(c.path(t), rows)
}

func (c *ParquetFlowCache) Clear() (int, error) { return clearParquet(c.dir) }
