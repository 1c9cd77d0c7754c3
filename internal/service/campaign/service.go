// Package campaign implements the campaign lifecycle: creation with
// validation, the start/pause/stop/cancel state machine, status reporting
// and restart reconciliation.
package campaign

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emirpiksel/dialara/internal/compliance"
	"github.com/emirpiksel/dialara/internal/contacts"
	"github.com/emirpiksel/dialara/internal/dialer"
	"github.com/emirpiksel/dialara/internal/dnc"
	"github.com/emirpiksel/dialara/internal/domain"
	"github.com/emirpiksel/dialara/internal/repository"
	"github.com/emirpiksel/dialara/internal/stats"
	"github.com/emirpiksel/dialara/internal/telephony"
	apperrors "github.com/emirpiksel/dialara/pkg/errors"
	"github.com/emirpiksel/dialara/pkg/logger"
)

const maxConcurrentCeiling = 50

// RunLock serializes dialing runs per campaign across processes. The lease
// expires on its own, so a live run must keep refreshing it; a refresh error
// means the lease is gone and another process may hold it.
type RunLock interface {
	Acquire(ctx context.Context, campaignID uuid.UUID, token string) (bool, error)
	Refresh(ctx context.Context, campaignID uuid.UUID, token string) error
	Release(ctx context.Context, campaignID uuid.UUID, token string) error
}

// Deps wires the service's collaborators.
type Deps struct {
	Campaigns repository.CampaignRepository
	Contacts  repository.ContactRepository
	Attempts  repository.AttemptStore
	Provider  telephony.Provider
	DNC       dnc.Registry
	Outcomes  dialer.OutcomeSink
	Lock      RunLock
	Logger    *logger.Logger

	// PollInterval is handed to each run's call monitor.
	PollInterval time.Duration
	// LockRefresh is the cadence at which a live run extends its lease.
	// Keep it well under the lease TTL.
	LockRefresh time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Service owns campaign state transitions and the in-process dialing runs
// they spawn. One service instance holds at most one run per campaign; the
// distributed run lock keeps other instances out.
type Service struct {
	deps  Deps
	now   func() time.Time
	token string

	runCtx    context.Context
	cancelRun context.CancelFunc

	mu   sync.Mutex
	runs map[uuid.UUID]*dialer.State
	wg   sync.WaitGroup
}

// NewService constructs the campaign service.
func NewService(deps Deps) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Service{
		deps:      deps,
		now:       now,
		token:     uuid.NewString(),
		runCtx:    runCtx,
		cancelRun: cancel,
		runs:      make(map[uuid.UUID]*dialer.State),
	}
}

// SettingsInput carries optional setting overrides; nil fields fall back to
// the product defaults.
type SettingsInput struct {
	MaxConcurrentCalls *int
	RetryAttempts      *int
	RetryDelayMinutes  *int
	CallTimeoutSeconds *int
	RespectDoNotCall   *bool
	TimeZone           *string
	CallingHoursStart  *string
	CallingHoursEnd    *string
	ExcludeWeekends    *bool
}

func (in *SettingsInput) merge() domain.CampaignSettings {
	s := domain.DefaultSettings()
	if in == nil {
		return s
	}
	if in.MaxConcurrentCalls != nil {
		s.MaxConcurrentCalls = *in.MaxConcurrentCalls
	}
	if in.RetryAttempts != nil {
		s.RetryAttempts = *in.RetryAttempts
	}
	if in.RetryDelayMinutes != nil {
		s.RetryDelayMinutes = *in.RetryDelayMinutes
	}
	if in.CallTimeoutSeconds != nil {
		s.CallTimeoutSeconds = *in.CallTimeoutSeconds
	}
	if in.RespectDoNotCall != nil {
		s.RespectDoNotCall = *in.RespectDoNotCall
	}
	if in.TimeZone != nil {
		s.TimeZone = *in.TimeZone
	}
	if in.CallingHoursStart != nil {
		s.CallingHoursStart = *in.CallingHoursStart
	}
	if in.CallingHoursEnd != nil {
		s.CallingHoursEnd = *in.CallingHoursEnd
	}
	if in.ExcludeWeekends != nil {
		s.ExcludeWeekends = *in.ExcludeWeekends
	}
	return s
}

// CreateInput is a campaign creation request.
type CreateInput struct {
	Name           string
	Description    string
	AgentID        string
	ScriptTemplate string
	Settings       *SettingsInput
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
	Contacts       []contacts.Input
}

// Create validates and persists a new draft campaign with its sanitized
// contact list. Validation collects every violation before rejecting the
// request, so a caller can fix the whole payload in one pass.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*domain.Campaign, error) {
	settings := in.Settings.merge()
	id := uuid.New()
	list := contacts.Sanitize(id, in.Contacts)

	var violations []string
	if in.Name == "" {
		violations = append(violations, "name: required")
	}
	if in.AgentID == "" {
		violations = append(violations, "agent_id: required")
	}
	if len(list) == 0 {
		violations = append(violations, "contacts: at least one contact with a valid phone number is required")
	}
	if settings.MaxConcurrentCalls < 1 || settings.MaxConcurrentCalls > maxConcurrentCeiling {
		violations = append(violations,
			fmt.Sprintf("settings.max_concurrent_calls: must be between 1 and %d", maxConcurrentCeiling))
	}
	if settings.RetryAttempts < 0 {
		violations = append(violations, "settings.retry_attempts: must not be negative")
	}
	if settings.RetryDelayMinutes < 0 {
		violations = append(violations, "settings.retry_delay_minutes: must not be negative")
	}
	if settings.CallTimeoutSeconds <= 0 {
		violations = append(violations, "settings.call_timeout_seconds: must be positive")
	}
	violations = append(violations, compliance.ValidateWindow(settings)...)
	if err := apperrors.NewValidation(violations); err != nil {
		return nil, fmt.Errorf("campaign service: create: %w", err)
	}

	now := s.now()
	status := domain.CampaignStatusDraft
	if in.ScheduledStart != nil {
		status = domain.CampaignStatusScheduled
	}
	campaign := &domain.Campaign{
		ID:             id,
		OwnerID:        ownerID,
		Name:           in.Name,
		Description:    in.Description,
		AgentID:        in.AgentID,
		ScriptTemplate: in.ScriptTemplate,
		Settings:       settings,
		Contacts:       list,
		Status:         status,
		Stats:          domain.CampaignStats{TotalContacts: len(list)},
		CreatedAt:      now,
		UpdatedAt:      now,
		ScheduledStart: in.ScheduledStart,
		ScheduledEnd:   in.ScheduledEnd,
	}
	if err := s.deps.Campaigns.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("campaign service: create: %w", err)
	}
	s.deps.Logger.Info("campaign created",
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("owner_id", ownerID),
		zap.Int("contacts", len(list)))
	return campaign, nil
}

// Get returns the owner's campaign.
func (s *Service) Get(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Campaign, error) {
	return s.deps.Campaigns.Get(ctx, id, ownerID)
}

// Start activates the campaign and launches its dialing run. Starting from
// paused resumes pending contacts with their attempt counts intact. The call
// fails when the current time is outside the campaign's calling window, or
// when another process already drives the run.
func (s *Service) Start(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Campaign, error) {
	campaign, err := s.deps.Campaigns.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if !campaign.Status.Startable() {
		return nil, fmt.Errorf("campaign service: start from %s: %w", campaign.Status, apperrors.ErrInvalidState)
	}
	if !compliance.WithinWindow(s.now(), campaign.Settings) {
		return nil, fmt.Errorf("campaign service: start: %w", apperrors.ErrCompliance)
	}

	acquired, err := s.deps.Lock.Acquire(ctx, id, s.token)
	if err != nil {
		return nil, fmt.Errorf("campaign service: start: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("campaign service: start: run already held: %w", apperrors.ErrConflict)
	}

	now := s.now()
	campaign.Status = domain.CampaignStatusActive
	campaign.PausedAt = nil
	campaign.UpdatedAt = now
	if campaign.StartedAt == nil {
		campaign.StartedAt = &now
	}
	if err := s.deps.Campaigns.Update(ctx, campaign); err != nil {
		if relErr := s.deps.Lock.Release(ctx, id, s.token); relErr != nil {
			s.deps.Logger.Error("run lock release failed", zap.Error(relErr))
		}
		return nil, fmt.Errorf("campaign service: start: %w", err)
	}

	s.launchRun(campaign)
	s.deps.Logger.Info("campaign started",
		zap.String("campaign_id", id.String()),
		zap.String("owner_id", ownerID))
	return campaign, nil
}

// launchRun registers run state and spawns the runner goroutine. The run
// outlives the originating request; it stops on service shutdown or when the
// campaign leaves active.
func (s *Service) launchRun(campaign *domain.Campaign) {
	state := dialer.NewState(domain.CampaignStatusActive)
	s.mu.Lock()
	s.runs[campaign.ID] = state
	s.mu.Unlock()

	runner := dialer.NewRunner(dialer.Config{
		Campaign:     campaign,
		State:        state,
		Statuses:     s.deps.Campaigns,
		Contacts:     s.deps.Contacts,
		Attempts:     s.deps.Attempts,
		Provider:     s.deps.Provider,
		DNC:          s.deps.DNC,
		Outcomes:     s.deps.Outcomes,
		Logger:       s.deps.Logger,
		PollInterval: s.deps.PollInterval,
		Now:          s.now,
		OnComplete: func(ctx context.Context) {
			if err := s.complete(ctx, campaign.ID, campaign.OwnerID); err != nil {
				s.deps.Logger.Error("auto-complete failed",
					zap.String("campaign_id", campaign.ID.String()),
					zap.Error(err))
			}
		},
	})

	leaseCtx, stopLease := context.WithCancel(s.runCtx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.keepLease(leaseCtx, campaign.ID, state)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := runner.Run(s.runCtx); err != nil {
			s.deps.Logger.Error("dialing run failed",
				zap.String("campaign_id", campaign.ID.String()),
				zap.Error(err))
		}
		stopLease()
		s.mu.Lock()
		delete(s.runs, campaign.ID)
		s.mu.Unlock()
		if err := s.deps.Lock.Release(context.Background(), campaign.ID, s.token); err != nil {
			s.deps.Logger.Error("run lock release failed",
				zap.String("campaign_id", campaign.ID.String()),
				zap.Error(err))
		}
	}()
}

// keepLease extends the run lease for as long as the run is alive. The lease
// must outlive retry waits, which can park a run far beyond the lease TTL.
// Losing the lease means another process may already drive the campaign, so
// the run is halted rather than risk a contact being dialed twice.
func (s *Service) keepLease(ctx context.Context, id uuid.UUID, state *dialer.State) {
	interval := s.deps.LockRefresh
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.deps.Lock.Refresh(ctx, id, s.token); err != nil {
				s.deps.Logger.Error("run lease lost, halting run",
					zap.String("campaign_id", id.String()),
					zap.Error(err))
				state.SetStatus(domain.CampaignStatusPaused)
				return
			}
		}
	}
}

// Pause suspends dialing. In-flight calls run to completion; contacts not
// yet dialed stay pending for a later resume.
func (s *Service) Pause(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Campaign, error) {
	campaign, err := s.deps.Campaigns.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if !campaign.Status.CanTransition(domain.CampaignStatusPaused) {
		return nil, fmt.Errorf("campaign service: pause from %s: %w", campaign.Status, apperrors.ErrInvalidState)
	}

	s.signalRun(id, domain.CampaignStatusPaused)

	now := s.now()
	campaign.Status = domain.CampaignStatusPaused
	campaign.PausedAt = &now
	campaign.UpdatedAt = now
	if err := s.refreshStats(ctx, campaign); err != nil {
		s.deps.Logger.Warn("stats refresh failed on pause", zap.Error(err))
	}
	if err := s.deps.Campaigns.Update(ctx, campaign); err != nil {
		return nil, fmt.Errorf("campaign service: pause: %w", err)
	}
	s.deps.Logger.Info("campaign paused", zap.String("campaign_id", id.String()))
	return campaign, nil
}

// Stop ends the campaign permanently, marking it completed with final
// statistics. In-flight calls are allowed to finish.
func (s *Service) Stop(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Campaign, error) {
	return s.finish(ctx, id, ownerID, domain.CampaignStatusCompleted)
}

// Cancel abandons the campaign. Like Stop it is legal from any non-terminal
// state, but the campaign is recorded as cancelled rather than completed.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Campaign, error) {
	return s.finish(ctx, id, ownerID, domain.CampaignStatusCancelled)
}

func (s *Service) finish(ctx context.Context, id uuid.UUID, ownerID string, terminal domain.CampaignStatus) (*domain.Campaign, error) {
	campaign, err := s.deps.Campaigns.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if !campaign.Status.CanTransition(terminal) {
		return nil, fmt.Errorf("campaign service: %s from %s: %w", terminal, campaign.Status, apperrors.ErrInvalidState)
	}

	s.signalRun(id, terminal)

	now := s.now()
	campaign.Status = terminal
	campaign.CompletedAt = &now
	campaign.UpdatedAt = now
	if err := s.refreshStats(ctx, campaign); err != nil {
		s.deps.Logger.Warn("stats refresh failed on finish", zap.Error(err))
	}
	if err := s.deps.Campaigns.Update(ctx, campaign); err != nil {
		return nil, fmt.Errorf("campaign service: %s: %w", terminal, err)
	}
	s.deps.Logger.Info("campaign finished",
		zap.String("campaign_id", id.String()),
		zap.String("status", string(terminal)))
	return campaign, nil
}

// complete is the runner's auto-completion path when a run drains with no
// contact left pending. A concurrent Stop can win the race; completing a
// campaign that already went terminal is reported as ErrInvalidState by the
// transition check and swallowed here.
func (s *Service) complete(ctx context.Context, id uuid.UUID, ownerID string) error {
	_, err := s.finish(ctx, id, ownerID, domain.CampaignStatusCompleted)
	if apperrors.Is(err, apperrors.ErrInvalidState) {
		return nil
	}
	return err
}

// signalRun flips the live run state, if this instance holds the run.
func (s *Service) signalRun(id uuid.UUID, status domain.CampaignStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.runs[id]; ok {
		state.SetStatus(status)
	}
}

// refreshStats recomputes the campaign's aggregate snapshot from the
// attempt log.
func (s *Service) refreshStats(ctx context.Context, campaign *domain.Campaign) error {
	attempts, err := s.deps.Attempts.ListByCampaign(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("campaign service: list attempts: %w", err)
	}
	total := campaign.Stats.TotalContacts
	if len(campaign.Contacts) > 0 {
		total = len(campaign.Contacts)
	}
	campaign.Stats = stats.Aggregate(total, attempts)
	return nil
}

// StatusReport is the live view of a campaign returned by Status.
type StatusReport struct {
	Campaign        *domain.Campaign
	InFlight        int
	ContactsPending int
}

// Status returns the campaign with statistics recomputed from the attempt
// log, plus live run counters when this instance drives the run.
func (s *Service) Status(ctx context.Context, id uuid.UUID, ownerID string) (*StatusReport, error) {
	campaign, err := s.deps.Campaigns.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.deps.Attempts.ListByCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("campaign service: list attempts: %w", err)
	}
	total := campaign.Stats.TotalContacts
	if len(campaign.Contacts) > 0 {
		total = len(campaign.Contacts)
	}
	campaign.Stats = stats.Aggregate(total, attempts)

	pending, err := s.deps.Contacts.CountByStatus(ctx, id, domain.ContactStatusPending)
	if err != nil {
		return nil, fmt.Errorf("campaign service: count pending: %w", err)
	}

	report := &StatusReport{Campaign: campaign, ContactsPending: pending}
	s.mu.Lock()
	state, live := s.runs[id]
	s.mu.Unlock()
	if live {
		report.InFlight = state.InFlight()
	} else {
		// A run held elsewhere still leaves its in-flight attempts visible
		// in the attempt log.
		report.InFlight = stats.InFlight(attempts)
	}
	return report, nil
}

// List returns the owner's campaigns, optionally filtered by status. For
// campaigns with a live run on this instance the stored statistics snapshot
// is replaced with a fresh aggregate.
func (s *Service) List(ctx context.Context, ownerID string, status *domain.CampaignStatus, limit int) ([]*domain.Campaign, error) {
	campaigns, err := s.deps.Campaigns.ListByOwner(ctx, ownerID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("campaign service: list: %w", err)
	}
	for _, c := range campaigns {
		s.mu.Lock()
		_, live := s.runs[c.ID]
		s.mu.Unlock()
		if !live {
			continue
		}
		if err := s.refreshStats(ctx, c); err != nil {
			s.deps.Logger.Warn("stats refresh failed on list",
				zap.String("campaign_id", c.ID.String()),
				zap.Error(err))
		}
	}
	return campaigns, nil
}

// Reconcile resumes dialing for active campaigns that have no live run,
// typically after a process restart. Campaigns whose run lock is held
// elsewhere are skipped.
func (s *Service) Reconcile(ctx context.Context, batch int) error {
	campaigns, err := s.deps.Campaigns.ListByStatus(ctx, domain.CampaignStatusActive, batch)
	if err != nil {
		return fmt.Errorf("campaign service: reconcile: %w", err)
	}
	for _, campaign := range campaigns {
		s.mu.Lock()
		_, live := s.runs[campaign.ID]
		s.mu.Unlock()
		if live {
			continue
		}
		if !compliance.WithinWindow(s.now(), campaign.Settings) {
			continue
		}
		acquired, err := s.deps.Lock.Acquire(ctx, campaign.ID, s.token)
		if err != nil {
			s.deps.Logger.Error("run lock acquire failed",
				zap.String("campaign_id", campaign.ID.String()),
				zap.Error(err))
			continue
		}
		if !acquired {
			continue
		}
		s.deps.Logger.Info("resuming interrupted campaign",
			zap.String("campaign_id", campaign.ID.String()))
		s.launchRun(campaign)
	}
	return nil
}

// Shutdown stops admitting new work and waits for in-flight runs to drain,
// up to ctx's deadline.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancelRun()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
