package dialer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/emirpiksel/dialara/internal/compliance"
	"github.com/emirpiksel/dialara/internal/dnc"
	"github.com/emirpiksel/dialara/internal/domain"
	"github.com/emirpiksel/dialara/internal/queue"
	"github.com/emirpiksel/dialara/internal/repository"
	"github.com/emirpiksel/dialara/internal/telephony"
	"github.com/emirpiksel/dialara/pkg/logger"
)

const reasonDoNotCall = "do not call"

// OutcomeSink receives terminal attempt outcomes for downstream consumers.
type OutcomeSink interface {
	PublishOutcome(ctx context.Context, msg queue.OutcomeMessage) error
}

// CampaignSource reads back the persisted campaign, so a run observes status
// transitions applied by another process.
type CampaignSource interface {
	Get(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Campaign, error)
}

// Config wires a Runner's collaborators.
type Config struct {
	Campaign *domain.Campaign
	State    *State
	// Statuses, when set, is consulted before every dial so that a pause or
	// stop issued by another process halts this run too.
	Statuses CampaignSource
	Contacts repository.ContactRepository
	Attempts repository.AttemptStore
	Provider telephony.Provider
	DNC      dnc.Registry
	Outcomes OutcomeSink
	Logger   *logger.Logger

	// PollInterval is the call monitor's poll cadence.
	PollInterval time.Duration
	// Now supplies wall-clock time for window checks and record timestamps.
	Now func() time.Time
	// OnComplete is invoked once when the run drains with no contact left
	// pending, so the owner can mark the campaign completed.
	OnComplete func(ctx context.Context)
}

// Runner executes one dialing run of one campaign. Each pending contact is
// owned by a single task that performs all of that contact's attempts
// sequentially; a weighted semaphore bounds how many calls are in flight at
// once. Runs of different campaigns never share a semaphore.
type Runner struct {
	cfg     Config
	sem     *semaphore.Weighted
	monitor *Monitor
	log     *logger.Logger
	now     func() time.Time
}

// NewRunner creates a runner for the campaign in cfg.
func NewRunner(cfg Config) *Runner {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	limit := cfg.Campaign.Settings.MaxConcurrentCalls
	if limit < 1 {
		limit = 1
	}
	return &Runner{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(limit)),
		monitor: NewMonitor(cfg.Provider, cfg.PollInterval, cfg.Logger),
		log: &logger.Logger{Logger: cfg.Logger.With(
			zap.String("campaign_id", cfg.Campaign.ID.String()),
		)},
		now: now,
	}
}

// Run dials every pending contact and blocks until all contact tasks have
// drained. It returns once no task remains, whether the run finished its
// contacts or was paused or stopped partway.
func (r *Runner) Run(ctx context.Context) error {
	tracer := otel.Tracer("dialara.dialer")
	ctx, span := tracer.Start(ctx, "dialer.run")
	span.SetAttributes(attribute.String("campaign.id", r.cfg.Campaign.ID.String()))
	defer span.End()

	pending, err := r.cfg.Contacts.ListByStatus(ctx, r.cfg.Campaign.ID, domain.ContactStatusPending)
	if err != nil {
		return fmt.Errorf("dialer: list pending contacts: %w", err)
	}
	r.log.Info("dialing run started",
		zap.Int("pending_contacts", len(pending)),
		zap.Int("max_concurrent", r.cfg.Campaign.Settings.MaxConcurrentCalls))

	var wg sync.WaitGroup
	for i := range pending {
		contact := pending[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.dialContact(ctx, &contact)
		}()
	}
	wg.Wait()

	r.finishRun(ctx)
	return nil
}

// finishRun marks the campaign completed when the run drained with nothing
// left to dial. Contacts skipped by a pause or a closed calling window stay
// pending, which keeps the campaign open for a later resume.
func (r *Runner) finishRun(ctx context.Context) {
	if r.cfg.State.Status() != domain.CampaignStatusActive {
		r.log.Info("dialing run drained", zap.String("status", string(r.cfg.State.Status())))
		return
	}
	remaining, err := r.cfg.Contacts.CountByStatus(ctx, r.cfg.Campaign.ID, domain.ContactStatusPending)
	if err != nil {
		r.log.Error("count pending contacts failed", zap.Error(err))
		return
	}
	if remaining > 0 {
		r.log.Info("dialing run drained with contacts pending", zap.Int("pending", remaining))
		return
	}
	if r.cfg.OnComplete != nil {
		r.cfg.OnComplete(ctx)
	}
}

// dialContact owns every attempt against one contact. It acquires a
// concurrency slot per attempt and releases it before waiting out the retry
// delay, so waiting contacts never starve the rest of the campaign.
func (r *Runner) dialContact(ctx context.Context, contact *domain.Contact) {
	for {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return
		}
		retry := r.attemptOnce(ctx, contact)
		r.sem.Release(1)
		if !retry {
			return
		}
		if !r.awaitRetry(ctx, r.cfg.Campaign.Settings.RetryDelay()) {
			return
		}
	}
}

// attemptOnce performs at most one dial of the contact and reports whether
// the contact should be retried. Gate checks run inside the slot so a paused
// campaign stops admitting work the moment the status flips.
func (r *Runner) attemptOnce(ctx context.Context, contact *domain.Contact) bool {
	if r.cfg.State.Status() != domain.CampaignStatusActive {
		return false
	}
	if !r.campaignActive(ctx) {
		return false
	}
	if !compliance.WithinWindow(r.now(), r.cfg.Campaign.Settings) {
		r.log.Info("contact skipped, outside calling window",
			zap.String("contact_id", contact.ID.String()))
		return false
	}
	if r.cfg.Campaign.Settings.RespectDoNotCall {
		listed, err := r.cfg.DNC.IsListed(ctx, contact.PhoneNumber)
		if err != nil {
			r.log.Warn("dnc lookup failed",
				zap.String("contact_id", contact.ID.String()),
				zap.Error(err))
		}
		if listed {
			contact.Status = domain.ContactStatusExhausted
			contact.FailureReason = reasonDoNotCall
			r.persistContact(ctx, contact)
			r.log.Info("contact on do-not-call list, skipping",
				zap.String("contact_id", contact.ID.String()))
			return false
		}
	}

	contact.Status = domain.ContactStatusCalling
	r.persistContact(ctx, contact)

	r.cfg.State.incInFlight()
	attempt := r.dial(ctx, contact)
	r.cfg.State.decInFlight()

	r.publish(ctx, attempt)
	return r.settleContact(ctx, contact, attempt)
}

// campaignActive cross-checks the stored campaign status. The in-memory
// state only sees transitions made by this process; a run resumed by the
// reconcile daemon must also stop admitting contacts when the owner stops
// the campaign through the API service.
func (r *Runner) campaignActive(ctx context.Context) bool {
	if r.cfg.Statuses == nil {
		return true
	}
	stored, err := r.cfg.Statuses.Get(ctx, r.cfg.Campaign.ID, r.cfg.Campaign.OwnerID)
	if err != nil {
		r.log.Warn("campaign status check failed", zap.Error(err))
		return true
	}
	if stored.Status != domain.CampaignStatusActive {
		r.cfg.State.SetStatus(stored.Status)
		return false
	}
	return true
}

// dial places the call and monitors it to a terminal state. A placement
// failure becomes an immediately terminal failed attempt without ever
// engaging the monitor.
func (r *Runner) dial(ctx context.Context, contact *domain.Contact) *domain.CallAttempt {
	started := r.now()
	attempt := &domain.CallAttempt{
		ID:          uuid.New(),
		CampaignID:  r.cfg.Campaign.ID,
		ContactID:   contact.ID,
		PhoneNumber: contact.PhoneNumber,
		AttemptNum:  contact.Attempts + 1,
		StartedAt:   started,
	}

	result, err := r.cfg.Provider.PlaceCall(ctx, telephony.PlaceCallRequest{
		AgentID:        r.cfg.Campaign.AgentID,
		PhoneNumber:    contact.PhoneNumber,
		CampaignID:     r.cfg.Campaign.ID.String(),
		AttemptID:      attempt.ID.String(),
		ContactName:    contact.Name,
		ContactEmail:   contact.Email,
		ScriptTemplate: r.cfg.Campaign.ScriptTemplate,
		CustomVars:     contact.CustomVariables,
	})
	if err != nil {
		r.log.Error("call placement failed",
			zap.String("contact_id", contact.ID.String()),
			zap.Int("attempt_num", attempt.AttemptNum),
			zap.Error(err))
		ended := r.now()
		attempt.Status = domain.AttemptStatusFailed
		attempt.FailureReason = err.Error()
		attempt.EndedAt = &ended
		if err := r.cfg.Attempts.Append(ctx, attempt); err != nil {
			r.log.Error("append attempt failed", zap.Error(err))
		}
		return attempt
	}

	attempt.Status = domain.AttemptStatusDialing
	attempt.ProviderCallID = result.ProviderCallID
	if err := r.cfg.Attempts.Append(ctx, attempt); err != nil {
		r.log.Error("append attempt failed", zap.Error(err))
	}

	outcome := r.monitor.Await(ctx, result.ProviderCallID, r.cfg.Campaign.Settings.CallTimeout())
	ended := r.now()
	attempt.Status = outcome.Status
	attempt.DurationSeconds = outcome.DurationSeconds
	attempt.FailureReason = outcome.FailureReason
	attempt.EndedAt = &ended
	if err := r.cfg.Attempts.Finalize(ctx, attempt); err != nil {
		r.log.Error("finalize attempt failed",
			zap.String("attempt_id", attempt.ID.String()),
			zap.Error(err))
	}
	return attempt
}

// settleContact updates the contact's dial state from a terminal attempt and
// reports whether another attempt should follow.
func (r *Runner) settleContact(ctx context.Context, contact *domain.Contact, attempt *domain.CallAttempt) bool {
	now := r.now()
	contact.Attempts = attempt.AttemptNum
	contact.LastAttemptAt = &now

	retry := false
	switch {
	case attempt.Status == domain.AttemptStatusCompleted || attempt.Status == domain.AttemptStatusVoicemail:
		contact.Status = domain.ContactStatusDone
		contact.FailureReason = ""
	case attempt.Status.Retryable() && contact.Attempts < r.cfg.Campaign.Settings.MaxAttempts():
		contact.Status = domain.ContactStatusPending
		retry = true
	default:
		contact.Status = domain.ContactStatusExhausted
		contact.FailureReason = attempt.FailureReason
		if contact.FailureReason == "" {
			contact.FailureReason = string(attempt.Status)
		}
	}
	r.persistContact(ctx, contact)
	return retry
}

// awaitRetry waits out the retry delay without holding a slot. The wait ends
// early when the run is canceled or the campaign leaves active; the contact
// stays pending in either case and is picked up again on resume.
func (r *Runner) awaitRetry(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return r.cfg.State.Status() == domain.CampaignStatusActive
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return r.cfg.State.Status() == domain.CampaignStatusActive
		case <-ticker.C:
			if r.cfg.State.Status() != domain.CampaignStatusActive {
				return false
			}
		}
	}
}

func (r *Runner) persistContact(ctx context.Context, contact *domain.Contact) {
	if err := r.cfg.Contacts.UpdateDialState(ctx, contact); err != nil {
		r.log.Error("update contact dial state failed",
			zap.String("contact_id", contact.ID.String()),
			zap.Error(err))
	}
}

func (r *Runner) publish(ctx context.Context, attempt *domain.CallAttempt) {
	if r.cfg.Outcomes == nil {
		return
	}
	msg := queue.OutcomeMessage{
		AttemptID:       attempt.ID,
		CampaignID:      attempt.CampaignID,
		ContactID:       attempt.ContactID,
		PhoneNumber:     attempt.PhoneNumber,
		AttemptNum:      attempt.AttemptNum,
		Status:          string(attempt.Status),
		DurationSeconds: attempt.DurationSeconds,
		FailureReason:   attempt.FailureReason,
		ProviderCallID:  attempt.ProviderCallID,
		OccurredAt:      r.now(),
	}
	if err := r.cfg.Outcomes.PublishOutcome(ctx, msg); err != nil {
		r.log.Error("publish outcome failed",
			zap.String("attempt_id", attempt.ID.String()),
			zap.Error(err))
	}
}
