package models

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError means a query resolved on neither the listed nor the OTC market.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ticker not found: %q", e.Query)
}

// DataUnavailableError means a fetch failed and no cached fallback exists.
type DataUnavailableError struct {
	Ticker string
	Op     string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("%s %s: data unavailable: %v", e.Op, e.Ticker, e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

// InsufficientHistoryError means too few bars for the configured windows.
type InsufficientHistoryError struct {
	Ticker string
	Need   int
	Have   int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history for %s: need %d bars, have %d", e.Ticker, e.Need, e.Have)
}

// ModelMismatchError means the artifact was trained on a different feature schema.
type ModelMismatchError struct {
	Want FeatureSchema // current pipeline
	Got  FeatureSchema // artifact
}

func (e *ModelMismatchError) Error() string {
	return fmt.Sprintf("model feature schema mismatch: pipeline %s [%s], model %s [%s]",
		e.Want.Version, strings.Join(e.Want.Columns, ","),
		e.Got.Version, strings.Join(e.Got.Columns, ","))
}

// ErrLookAhead is returned when a replayed decision used data dated after the decision day.
var ErrLookAhead = errors.New("look-ahead: decision used data from a later date")

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsDataUnavailable(err error) bool {
	var e *DataUnavailableError
	return errors.As(err, &e)
}

func IsInsufficientHistory(err error) bool {
	var e *InsufficientHistoryError
	return errors.As(err, &e)
}

func IsModelMismatch(err error) bool {
	var e *ModelMismatchError
	return errors.As(err, &e)
}

// ErrorKind classifies err for skip records and metrics labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsNotFound(err):
		return "not_found"
	case IsDataUnavailable(err):
		return "data_unavailable"
	case IsInsufficientHistory(err):
		return "insufficient_history"
	case IsModelMismatch(err):
		return "model_mismatch"
	case errors.Is(err, ErrLookAhead):
		return "look_ahead"
	default:
		return "error"
	}
}
