package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus enumerates lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusCancelled
}

// Startable reports whether Start is legal from this state.
func (s CampaignStatus) Startable() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusPaused:
		return true
	}
	return false
}

// CanTransition encodes the campaign state machine. Stop (-> completed) and
// cancel are legal from any non-terminal state; pause only from active.
func (s CampaignStatus) CanTransition(to CampaignStatus) bool {
	if s.Terminal() {
		return false
	}
	switch to {
	case CampaignStatusActive:
		return s.Startable()
	case CampaignStatusPaused:
		return s == CampaignStatusActive
	case CampaignStatusScheduled:
		return s == CampaignStatusDraft
	case CampaignStatusCompleted, CampaignStatusCancelled:
		return true
	default:
		return false
	}
}

// CampaignSettings is the immutable per-run dialing configuration.
type CampaignSettings struct {
	MaxConcurrentCalls int
	RetryAttempts      int
	RetryDelayMinutes  int
	CallTimeoutSeconds int
	RespectDoNotCall   bool
	TimeZone           string
	CallingHoursStart  string // "HH:MM" wall clock in TimeZone
	CallingHoursEnd    string // "HH:MM", strictly after CallingHoursStart
	ExcludeWeekends    bool
}

// DefaultSettings mirrors the product defaults applied to omitted fields.
func DefaultSettings() CampaignSettings {
	return CampaignSettings{
		MaxConcurrentCalls: 5,
		RetryAttempts:      3,
		RetryDelayMinutes:  30,
		CallTimeoutSeconds: 300,
		RespectDoNotCall:   true,
		TimeZone:           "UTC",
		CallingHoursStart:  "09:00",
		CallingHoursEnd:    "17:00",
		ExcludeWeekends:    true,
	}
}

// RetryDelay converts the configured delay to a duration.
func (s CampaignSettings) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMinutes) * time.Minute
}

// CallTimeout converts the configured timeout to a duration.
func (s CampaignSettings) CallTimeout() time.Duration {
	return time.Duration(s.CallTimeoutSeconds) * time.Second
}

// MaxAttempts is the hard ceiling on dials per contact: the first attempt
// plus the configured retries.
func (s CampaignSettings) MaxAttempts() int {
	return s.RetryAttempts + 1
}

// Campaign models one configured unit of outbound dialing work over a fixed
// contact list.
type Campaign struct {
	ID             uuid.UUID
	OwnerID        string
	Name           string
	Description    string
	AgentID        string
	ScriptTemplate string
	Settings       CampaignSettings
	Contacts       []Contact
	Status         CampaignStatus
	Stats          CampaignStats
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
	StartedAt      *time.Time
	PausedAt       *time.Time
	CompletedAt    *time.Time
}

// CampaignStats is the last-computed aggregate snapshot for a campaign.
type CampaignStats struct {
	TotalContacts   int
	CallsAttempted  int
	CallsConnected  int
	CallsCompleted  int
	CallsFailed     int
	AverageDuration float64
	ConversionRate  float64
}
