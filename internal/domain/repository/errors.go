package repository

import "errors"

var (
	// ErrNotCached is returned by local stores when no file exists for the key.
	ErrNotCached = errors.New("not cached")

	// ErrNoData is returned by sources when the vendor answered but had no rows.
	ErrNoData = errors.New("no data")
)
