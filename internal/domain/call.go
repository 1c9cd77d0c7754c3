package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContactStatus enumerates per-contact retry states within a run.
type ContactStatus string

const (
	ContactStatusPending   ContactStatus = "pending"
	ContactStatusCalling   ContactStatus = "calling"
	ContactStatusExhausted ContactStatus = "exhausted"
	ContactStatusDone      ContactStatus = "done"
)

// Terminal reports whether the contact is never redialed in this run.
func (s ContactStatus) Terminal() bool {
	return s == ContactStatusDone || s == ContactStatusExhausted
}

// Contact is one phone-number target within a campaign.
type Contact struct {
	ID              uuid.UUID
	CampaignID      uuid.UUID
	PhoneNumber     string // canonical dialable form, e.g. "+15551234567"
	Name            string
	Email           string
	CustomVariables map[string]string
	Attempts        int
	LastAttemptAt   *time.Time
	Status          ContactStatus
	FailureReason   string
}

// AttemptStatus enumerates lifecycle stages of a single dial.
type AttemptStatus string

const (
	AttemptStatusPending   AttemptStatus = "pending"
	AttemptStatusDialing   AttemptStatus = "dialing"
	AttemptStatusConnected AttemptStatus = "connected"
	AttemptStatusNoAnswer  AttemptStatus = "no_answer"
	AttemptStatusBusy      AttemptStatus = "busy"
	AttemptStatusFailed    AttemptStatus = "failed"
	AttemptStatusCompleted AttemptStatus = "completed"
	AttemptStatusVoicemail AttemptStatus = "voicemail"
)

// Terminal reports whether the attempt can no longer change. A retry is a
// new attempt, never a mutation of a terminal one.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case AttemptStatusCompleted, AttemptStatusFailed, AttemptStatusNoAnswer,
		AttemptStatusBusy, AttemptStatusVoicemail:
		return true
	}
	return false
}

// InFlight reports whether the attempt occupies a concurrency slot.
func (s AttemptStatus) InFlight() bool {
	return s == AttemptStatusDialing || s == AttemptStatusConnected
}

// Retryable reports whether the outcome re-queues the contact while
// attempts remain.
func (s AttemptStatus) Retryable() bool {
	switch s {
	case AttemptStatusNoAnswer, AttemptStatusBusy, AttemptStatusFailed:
		return true
	}
	return false
}

// CallAttempt is one concrete dial against a contact.
type CallAttempt struct {
	ID              uuid.UUID
	CampaignID      uuid.UUID
	ContactID       uuid.UUID
	PhoneNumber     string
	AttemptNum      int
	Status          AttemptStatus
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds int
	FailureReason   string
	ProviderCallID  string
}
