// Package repotest holds contract checks shared by attempt store
// implementations and the in-memory doubles the test suites run against.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/emirpiksel/dialara/internal/domain"
	"github.com/emirpiksel/dialara/internal/repository"
)

// AttemptStoreKeepsFirstOutcome verifies the finalize contract: the first
// terminal outcome written for an attempt wins, and a later report must
// neither fail nor change the record. A call monitor that forced a timeout
// and a provider reporting afterwards both finalize the same attempt; only
// one of them may land.
func AttemptStoreKeepsFirstOutcome(t *testing.T, store repository.AttemptStore) {
	t.Helper()
	ctx := context.Background()
	campaignID := uuid.New()
	attempt := &domain.CallAttempt{
		ID:          uuid.New(),
		CampaignID:  campaignID,
		ContactID:   uuid.New(),
		PhoneNumber: "+15550000001",
		AttemptNum:  1,
		Status:      domain.AttemptStatusDialing,
		StartedAt:   time.Now().UTC(),
	}
	if err := store.Append(ctx, attempt); err != nil {
		t.Fatalf("Append: %v", err)
	}

	ended := time.Now().UTC()
	first := *attempt
	first.Status = domain.AttemptStatusFailed
	first.FailureReason = "timeout"
	first.EndedAt = &ended
	if err := store.Finalize(ctx, &first); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	late := *attempt
	late.Status = domain.AttemptStatusCompleted
	late.DurationSeconds = 42
	late.EndedAt = &ended
	if err := store.Finalize(ctx, &late); err != nil {
		t.Fatalf("late Finalize must not fail: %v", err)
	}

	records, err := store.ListByCampaign(ctx, campaignID)
	if err != nil {
		t.Fatalf("ListByCampaign: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	got := records[0]
	if got.Status != domain.AttemptStatusFailed {
		t.Errorf("status = %s, want the first terminal outcome (failed) to survive", got.Status)
	}
	if got.FailureReason != "timeout" {
		t.Errorf("failure reason = %q, want timeout", got.FailureReason)
	}
	if got.DurationSeconds != 0 {
		t.Errorf("duration = %d, late report must not land", got.DurationSeconds)
	}
}
