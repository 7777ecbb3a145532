package models

import (
	"fmt"
	"regexp"
	"strings"
)

// Market is the Yahoo suffix of a Taiwan listing.
type Market string

const (
	MarketListed Market = "TW"  // TWSE main board
	MarketOTC    Market = "TWO" // TPEx over-the-counter
)

var codePattern = regexp.MustCompile(`^[0-9]{4,6}[A-Z]?$`)

// Ticker identifies a security by its exchange code and market.
type Ticker struct {
	Code   string `json:"code"`
	Market Market `json:"market"`
}

func (t Ticker) String() string { return t.Code + "." + string(t.Market) }

// IsZero reports whether t was never set.
func (t Ticker) IsZero() bool { return t.Code == "" }

// IsETF follows the TWSE convention that ETF codes start with "00".
func (t Ticker) IsETF() bool { return strings.HasPrefix(t.Code, "00") }

// FileKey is the filesystem-safe form, e.g. 2330_TW.
func (t Ticker) FileKey() string { return t.Code + "_" + string(t.Market) }

// IsCode reports whether s looks like a bare exchange code (2330, 00878, 00632R).
func IsCode(s string) bool { return codePattern.MatchString(s) }

// ParseTicker parses "2330.TW" or "6488.TWO". Bare codes are rejected.
func ParseTicker(s string) (Ticker, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	code, suffix, ok := strings.Cut(s, ".")
	if !ok || !IsCode(code) {
		return Ticker{}, fmt.Errorf("invalid ticker %q", s)
	}
	switch Market(suffix) {
	case MarketListed, MarketOTC:
		return Ticker{Code: code, Market: Market(suffix)}, nil
	default:
		return Ticker{}, fmt.Errorf("invalid market suffix %q", suffix)
	}
}

// MustTicker is ParseTicker for constants and tests.
func MustTicker(s string) Ticker {
	t, err := ParseTicker(s)
	if err != nil {
		panic(err)
	}
	return t
}
