// Package stats recomputes campaign-level counters from call records.
package stats

import "github.com/emirpiksel/dialara/internal/domain"

// Aggregate folds a campaign's call attempts into a stats snapshot. The
// input is never mutated, so callers may aggregate concurrently with an
// active dialing run.
func Aggregate(totalContacts int, attempts []domain.CallAttempt) domain.CampaignStats {
	s := domain.CampaignStats{TotalContacts: totalContacts}

	var completedDuration int
	for _, a := range attempts {
		s.CallsAttempted++
		switch a.Status {
		case domain.AttemptStatusConnected, domain.AttemptStatusCompleted, domain.AttemptStatusVoicemail:
			s.CallsConnected++
		}
		switch a.Status {
		case domain.AttemptStatusCompleted:
			s.CallsCompleted++
			completedDuration += a.DurationSeconds
		case domain.AttemptStatusFailed, domain.AttemptStatusNoAnswer, domain.AttemptStatusBusy:
			s.CallsFailed++
		}
	}

	if s.CallsCompleted > 0 {
		s.AverageDuration = float64(completedDuration) / float64(s.CallsCompleted)
	}
	if s.CallsAttempted > 0 {
		s.ConversionRate = float64(s.CallsCompleted) / float64(s.CallsAttempted)
	}

	return s
}

// InFlight counts attempts currently occupying a concurrency slot.
func InFlight(attempts []domain.CallAttempt) int {
	n := 0
	for _, a := range attempts {
		if a.Status.InFlight() {
			n++
		}
	}
	return n
}
