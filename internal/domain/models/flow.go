package models

import "time"

// FlowRecord is the net buy (positive) or sell of the three institutional
// investor classes on one trading day, in shares.
type FlowRecord struct {
	Date    time.Time `json:"date"`
	Foreign float64   `json:"foreign"`
	Trust   float64   `json:"trust"`
	Dealer  float64   `json:"dealer"`
}

// Total is the combined institutional net.
func (f FlowRecord) Total() float64 { return f.Foreign + f.Trust + f.Dealer }

// FlowSummary aggregates net flows over the last Days records.
type FlowSummary struct {
	Days    int     `json:"days"`
	Foreign float64 `json:"foreign"`
	Trust   float64 `json:"trust"`
	Dealer  float64 `json:"dealer"`
	Total   float64 `json:"total"`
}

// SummarizeFlows sums the last n records.
func SummarizeFlows(flows []FlowRecord, n int) *FlowSummary {
	if len(flows) == 0 {
		return nil
	}
	if n > len(flows) || n <= 0 {
		n = len(flows)
	}
	s := &FlowSummary{Days: n}
	for _, f := range flows[len(flows)-n:] {
		s.Foreign += f.Foreign
		s.Trust += f.Trust
		s.Dealer += f.Dealer
	}
	s.Total = s.Foreign + s.Trust + s.Dealer
	return s
}
