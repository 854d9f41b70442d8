package metrics

import (
	"sync/atomic"
	"time"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// EngineStats counts pricing and lifecycle activity. A nil *EngineStats is
// valid and records nothing.
type EngineStats struct {
	QuotesComputed     Counter
	QuoteRejections    Counter
	TransitionsApplied Counter
	InvalidTransitions Counter
	StaleRejections    Counter
	SettlementFailures Counter
	LedgerRetries      Counter
	DeliveryUpdates    Counter
}

type Snapshot struct {
	QuotesComputed     uint64 `json:"quotesComputed"`
	QuoteRejections    uint64 `json:"quoteRejections"`
	TransitionsApplied uint64 `json:"transitionsApplied"`
	InvalidTransitions uint64 `json:"invalidTransitions"`
	StaleRejections    uint64 `json:"staleRejections"`
	SettlementFailures uint64 `json:"settlementFailures"`
	LedgerRetries      uint64 `json:"ledgerRetries"`
	DeliveryUpdates    uint64 `json:"deliveryUpdates"`
}

func NewEngineStats() *EngineStats {
	return &EngineStats{}
}

// Inc increments the counter selected by pick when s is non-nil.
func (s *EngineStats) Inc(pick func(*EngineStats) *Counter) {
	if s == nil {
		return
	}
	pick(s).Inc()
}

func (s *EngineStats) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return Snapshot{
		QuotesComputed:     s.QuotesComputed.Load(),
		QuoteRejections:    s.QuoteRejections.Load(),
		TransitionsApplied: s.TransitionsApplied.Load(),
		InvalidTransitions: s.InvalidTransitions.Load(),
		StaleRejections:    s.StaleRejections.Load(),
		SettlementFailures: s.SettlementFailures.Load(),
		LedgerRetries:      s.LedgerRetries.Load(),
		DeliveryUpdates:    s.DeliveryUpdates.Load(),
	}
}

func QuotesComputed(s *EngineStats) *Counter     { return &s.QuotesComputed }
func QuoteRejections(s *EngineStats) *Counter    { return &s.QuoteRejections }
func TransitionsApplied(s *EngineStats) *Counter { return &s.TransitionsApplied }
func InvalidTransitions(s *EngineStats) *Counter { return &s.InvalidTransitions }
func StaleRejections(s *EngineStats) *Counter    { return &s.StaleRejections }
func SettlementFailures(s *EngineStats) *Counter { return &s.SettlementFailures }
func LedgerRetries(s *EngineStats) *Counter      { return &s.LedgerRetries }
func DeliveryUpdates(s *EngineStats) *Counter    { return &s.DeliveryUpdates }
