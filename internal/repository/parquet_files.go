package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	domrepo "TWSignal/internal/domain/repository"
)

const parquetExt = ".parquet"

var epochDay = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// toEpochDays and fromEpochDays encode calendar days for the parquet DATE type.
func toEpochDays(t time.Time) int32 {
	return int32(t.Sub(epochDay).Hours() / 24)
}

func fromEpochDays(d int32) time.Time {
	return epochDay.AddDate(0, 0, int(d))
}

// readParquet loads every row of path. A missing file is ErrNotCached.
func readParquet[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, domrepo.ErrNotCached
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

// writeParquet writes rows to a sibling temp file and renames it over path.
func writeParquet[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// clearParquet removes every parquet file directly under dir.
func clearParquet(dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+parquetExt))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return n, fmt.Errorf("remove %s: %w", filepath.Base(f), err)
		}
		n++
	}
	return n, nil
}
