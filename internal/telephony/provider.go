// Package telephony abstracts the voice provider that places and reports
// on outbound calls.
package telephony

import (
	"context"

	"github.com/emirpiksel/dialara/internal/domain"
)

// PlaceCallRequest carries everything the provider needs to dial one
// contact. Metadata is opaque correlation data echoed back on webhooks.
type PlaceCallRequest struct {
	AgentID        string
	PhoneNumber    string
	CampaignID     string
	AttemptID      string
	ContactName    string
	ContactEmail   string
	ScriptTemplate string
	CustomVars     map[string]string
}

// PlaceCallResult is the synchronous response to a placement request.
type PlaceCallResult struct {
	ProviderCallID string
}

// StatusResult is one poll of an in-flight call.
type StatusResult struct {
	Ended           bool
	EndReason       string
	DurationSeconds int
}

// Provider places calls and reports their progress.
type Provider interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
	CallStatus(ctx context.Context, providerCallID string) (StatusResult, error)
}

// MapEndReason translates the provider's end-reason vocabulary onto the
// attempt status enum. Unknown reasons default to failed.
func MapEndReason(reason string) domain.AttemptStatus {
	switch reason {
	case "completed", "customer-ended-call", "assistant-ended-call", "hangup":
		return domain.AttemptStatusCompleted
	case "no-answer", "no_answer", "customer-did-not-answer":
		return domain.AttemptStatusNoAnswer
	case "busy", "customer-busy":
		return domain.AttemptStatusBusy
	case "voicemail":
		return domain.AttemptStatusVoicemail
	default:
		return domain.AttemptStatusFailed
	}
}
