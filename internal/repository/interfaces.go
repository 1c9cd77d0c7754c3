package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/emirpiksel/dialara/internal/domain"
	apperrors "github.com/emirpiksel/dialara/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// CampaignRepository manages campaign persistence. Create stores the
// campaign together with its contact snapshot atomically. Reads are owner
// scoped; a campaign belonging to another owner is reported as not found.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *domain.Campaign) error
	Get(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Campaign, error)
	Update(ctx context.Context, campaign *domain.Campaign) error
	ListByOwner(ctx context.Context, ownerID string, status *domain.CampaignStatus, limit int) ([]*domain.Campaign, error)
	// ListByStatus is the cross-owner reconciliation index used to resume
	// active campaigns after a restart.
	ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error)
}

// ContactRepository manages the per-contact dial state within a run.
type ContactRepository interface {
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Contact, error)
	ListByStatus(ctx context.Context, campaignID uuid.UUID, status domain.ContactStatus) ([]domain.Contact, error)
	CountByStatus(ctx context.Context, campaignID uuid.UUID, status domain.ContactStatus) (int, error)
	// UpdateDialState persists status, attempts, last_attempt_at and
	// failure_reason after a dial or a skip decision.
	UpdateDialState(ctx context.Context, contact *domain.Contact) error
}

// AttemptStore persists call attempt records.
type AttemptStore interface {
	Append(ctx context.Context, attempt *domain.CallAttempt) error
	// Finalize writes the terminal outcome. Finalizing an attempt that is
	// already terminal is a no-op, so a late provider report after a forced
	// timeout never overwrites the recorded outcome.
	Finalize(ctx context.Context, attempt *domain.CallAttempt) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.CallAttempt, error)
}
