package models

import (
	"sort"
	"time"
)

// Bar is one daily OHLCV record. Date is the trading day at UTC midnight.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is an ascending, date-unique run of bars for one ticker.
type Series struct {
	Ticker Ticker `json:"ticker"`
	Bars   []Bar  `json:"bars"`
}

func (s *Series) Len() int { return len(s.Bars) }

// Last returns the most recent bar, or false when empty.
func (s *Series) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Between returns a copy holding bars with from <= date <= to. A zero bound is open.
func (s *Series) Between(from, to time.Time) *Series {
	out := make([]Bar, 0, len(s.Bars))
	for _, b := range s.Bars {
		if !from.IsZero() && b.Date.Before(from) {
			continue
		}
		if !to.IsZero() && b.Date.After(to) {
			break
		}
		out = append(out, b)
	}
	return &Series{Ticker: s.Ticker, Bars: out}
}

// Merge adds fresh bars for dates not already present. Existing rows win.
// It returns the number of bars added.
func (s *Series) Merge(fresh []Bar) int {
	have := make(map[time.Time]struct{}, len(s.Bars))
	for _, b := range s.Bars {
		have[b.Date] = struct{}{}
	}
	added := 0
	for _, b := range fresh {
		if _, ok := have[b.Date]; ok {
			continue
		}
		have[b.Date] = struct{}{}
		s.Bars = append(s.Bars, b)
		added++
	}
	if added > 0 {
		SortBars(s.Bars)
	}
	return added
}

// SortBars orders bars by date ascending.
func SortBars(bars []Bar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}
