package scylla

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emirpiksel/dialara/internal/domain"
	"github.com/emirpiksel/dialara/pkg/logger"
)

var attemptStatuses = []domain.AttemptStatus{
	domain.AttemptStatusPending, domain.AttemptStatusDialing, domain.AttemptStatusConnected,
	domain.AttemptStatusNoAnswer, domain.AttemptStatusBusy, domain.AttemptStatusFailed,
	domain.AttemptStatusCompleted, domain.AttemptStatusVoicemail,
}

// finalizeGuard enumerates the statuses Finalize may overwrite. It is derived
// from the domain predicate so the conditional update and the in-process
// notion of "already terminal" cannot drift apart.
var finalizeGuard = func() string {
	open := make([]string, 0, len(attemptStatuses))
	for _, s := range attemptStatuses {
		if !s.Terminal() {
			open = append(open, "'"+string(s)+"'")
		}
	}
	return strings.Join(open, ", ")
}()

// AttemptStore persists call attempt records in Scylla. Attempts are
// append-heavy and read back whole-campaign for stats aggregation, so they
// are partitioned by campaign.
type AttemptStore struct {
	session *gocql.Session
	log     *logger.Logger
}

// NewAttemptStore creates a new attempt store.
func NewAttemptStore(session *gocql.Session, log *logger.Logger) *AttemptStore {
	if log == nil {
		log = &logger.Logger{Logger: zap.NewNop()}
	}
	return &AttemptStore{session: session, log: log}
}

// Append inserts a freshly created attempt record.
func (s *AttemptStore) Append(ctx context.Context, attempt *domain.CallAttempt) error {
	if err := s.session.Query(`INSERT INTO attempts_by_campaign
		(campaign_id, attempt_id, contact_id, phone_number, attempt_num, status,
		 started_at, ended_at, duration_seconds, failure_reason, provider_call_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.CampaignID.String(), attempt.ID.String(), attempt.ContactID.String(),
		attempt.PhoneNumber, attempt.AttemptNum, string(attempt.Status),
		attempt.StartedAt, attempt.EndedAt, attempt.DurationSeconds,
		attempt.FailureReason, attempt.ProviderCallID,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("attempt store: insert: %w", err)
	}
	return nil
}

// Finalize writes the terminal outcome using a conditional update so a late
// report can never overwrite an attempt that already reached a terminal
// state. Losing the race is not an error.
func (s *AttemptStore) Finalize(ctx context.Context, attempt *domain.CallAttempt) error {
	var prev string
	applied, err := s.session.Query(fmt.Sprintf(`UPDATE attempts_by_campaign SET
		status = ?, ended_at = ?, duration_seconds = ?, failure_reason = ?
		WHERE campaign_id = ? AND attempt_id = ?
		IF status IN (%s)`, finalizeGuard),
		string(attempt.Status), attempt.EndedAt, attempt.DurationSeconds, attempt.FailureReason,
		attempt.CampaignID.String(), attempt.ID.String(),
	).WithContext(ctx).ScanCAS(&prev)
	if err != nil {
		return fmt.Errorf("attempt store: finalize: %w", err)
	}
	if !applied {
		s.log.Debug("late finalize ignored, attempt already terminal",
			zap.String("attempt_id", attempt.ID.String()),
			zap.String("stored_status", prev),
			zap.String("late_status", string(attempt.Status)))
	}
	return nil
}

// ListByCampaign returns every attempt recorded for the campaign.
func (s *AttemptStore) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.CallAttempt, error) {
	iter := s.session.Query(`SELECT attempt_id, contact_id, phone_number, attempt_num, status,
		started_at, ended_at, duration_seconds, failure_reason, provider_call_id
		FROM attempts_by_campaign WHERE campaign_id = ?`, campaignID.String()).
		WithContext(ctx).Iter()

	var attempts []domain.CallAttempt
	var (
		attemptIDStr   string
		contactIDStr   string
		phone          string
		attemptNum     int
		status         string
		startedAt      time.Time
		endedAt        time.Time
		duration       int
		failureReason  string
		providerCallID string
	)

	for iter.Scan(&attemptIDStr, &contactIDStr, &phone, &attemptNum, &status,
		&startedAt, &endedAt, &duration, &failureReason, &providerCallID) {
		attemptID, err := uuid.Parse(attemptIDStr)
		if err != nil {
			continue
		}
		contactID, err := uuid.Parse(contactIDStr)
		if err != nil {
			continue
		}

		attempt := domain.CallAttempt{
			ID:              attemptID,
			CampaignID:      campaignID,
			ContactID:       contactID,
			PhoneNumber:     phone,
			AttemptNum:      attemptNum,
			Status:          domain.AttemptStatus(status),
			StartedAt:       startedAt,
			DurationSeconds: duration,
			FailureReason:   failureReason,
			ProviderCallID:  providerCallID,
		}
		if !endedAt.IsZero() {
			t := endedAt
			attempt.EndedAt = &t
		}
		attempts = append(attempts, attempt)
		endedAt = time.Time{}
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("attempt store: iter close: %w", err)
	}
	return attempts, nil
}
