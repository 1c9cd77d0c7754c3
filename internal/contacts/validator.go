// Package contacts normalizes raw contact lists into dialable entries.
package contacts

import (
	"strings"

	"github.com/google/uuid"

	"github.com/emirpiksel/dialara/internal/domain"
)

// DefaultCountryCode is prefixed onto bare 10-digit numbers.
const DefaultCountryCode = "1"

// Input is one raw entry from an uploaded contact list.
type Input struct {
	PhoneNumber     string
	Name            string
	Email           string
	CustomVariables map[string]string
}

// Sanitize filters and normalizes a raw list. Entries without a phone number
// or with an unparseable one are dropped rather than failing the batch.
// Every survivor starts pending with zero attempts.
func Sanitize(campaignID uuid.UUID, inputs []Input) []domain.Contact {
	out := make([]domain.Contact, 0, len(inputs))
	for _, in := range inputs {
		phone, ok := NormalizePhone(in.PhoneNumber)
		if !ok {
			continue
		}
		out = append(out, domain.Contact{
			ID:              uuid.New(),
			CampaignID:      campaignID,
			PhoneNumber:     phone,
			Name:            in.Name,
			Email:           in.Email,
			CustomVariables: in.CustomVariables,
			Attempts:        0,
			Status:          domain.ContactStatusPending,
		})
	}
	return out
}

// NormalizePhone strips formatting and returns the canonical dialable form.
// A bare 10-digit number is assumed domestic; an 11-digit number must
// already carry the country code. Anything else is rejected.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10:
		digits = DefaultCountryCode + digits
	case len(digits) == 11 && strings.HasPrefix(digits, DefaultCountryCode):
		// already canonical
	default:
		return "", false
	}

	return "+" + digits, true
}
