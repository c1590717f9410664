// Package ingestion turns marketplace feed rows into ledger records, idempotently.
package ingestion

import "go.uber.org/zap"

// Outcome is what happened to a single row
type Outcome int

const (
	OutcomeIngested Outcome = iota
	OutcomeDuplicate
	OutcomeUnresolved
	OutcomeInvalid
	OutcomeFailed
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeIngested:
		return "ingested"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeUnresolved:
		return "unresolved"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "failed"
	}
}

// Stats counts row outcomes of an ingestion call
type Stats struct {
	Received   int
	Ingested   int
	Duplicates int
	Unresolved int
	Invalid    int
	Failed     int
}

func (s *Stats) record(o Outcome) {
	switch o {
	case OutcomeIngested:
		s.Ingested++
	case OutcomeDuplicate:
		s.Duplicates++
	case OutcomeUnresolved:
		s.Unresolved++
	case OutcomeInvalid:
		s.Invalid++
	default:
		s.Failed++
	}
}

// Add accumulates other into s
func (s *Stats) Add(other Stats) {
	s.Received += other.Received
	s.Ingested += other.Ingested
	s.Duplicates += other.Duplicates
	s.Unresolved += other.Unresolved
	s.Invalid += other.Invalid
	s.Failed += other.Failed
}

// Dropped is the number of rows dropped as permanent failures
func (s Stats) Dropped() int {
	return s.Unresolved + s.Invalid
}

// Fields renders the stats as log fields
func (s Stats) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("received", s.Received),
		zap.Int("ingested", s.Ingested),
		zap.Int("duplicates", s.Duplicates),
		zap.Int("unresolved", s.Unresolved),
		zap.Int("invalid", s.Invalid),
		zap.Int("failed", s.Failed),
	}
}
