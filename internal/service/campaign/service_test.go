package campaign

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emirpiksel/dialara/internal/contacts"
	"github.com/emirpiksel/dialara/internal/domain"
	"github.com/emirpiksel/dialara/internal/queue"
	"github.com/emirpiksel/dialara/internal/repository"
	"github.com/emirpiksel/dialara/internal/repository/repotest"
	"github.com/emirpiksel/dialara/internal/telephony"
	apperrors "github.com/emirpiksel/dialara/pkg/errors"
	"github.com/emirpiksel/dialara/pkg/logger"
)

type fakeCampaignRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Campaign
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{byID: make(map[uuid.UUID]domain.Campaign)}
}

func (f *fakeCampaignRepo) Create(_ context.Context, campaign *domain.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[campaign.ID] = *campaign
	return nil
}

func (f *fakeCampaignRepo) Get(_ context.Context, id uuid.UUID, ownerID string) (*domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok || c.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	out := c
	return &out, nil
}

func (f *fakeCampaignRepo) Update(_ context.Context, campaign *domain.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[campaign.ID]; !ok {
		return repository.ErrNotFound
	}
	f.byID[campaign.ID] = *campaign
	return nil
}

func (f *fakeCampaignRepo) ListByOwner(_ context.Context, ownerID string, status *domain.CampaignStatus, _ int) ([]*domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Campaign
	for _, c := range f.byID {
		if c.OwnerID != ownerID {
			continue
		}
		if status != nil && c.Status != *status {
			continue
		}
		copied := c
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeCampaignRepo) ListByStatus(_ context.Context, status domain.CampaignStatus, _ int) ([]*domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Campaign
	for _, c := range f.byID {
		if c.Status != status {
			continue
		}
		copied := c
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeCampaignRepo) status(id uuid.UUID) domain.CampaignStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].Status
}

type fakeContactRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Contact
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{byID: make(map[uuid.UUID]domain.Contact)}
}

func (f *fakeContactRepo) seed(list []domain.Contact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range list {
		f.byID[c.ID] = c
	}
}

func (f *fakeContactRepo) ListByCampaign(_ context.Context, campaignID uuid.UUID) ([]domain.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Contact
	for _, c := range f.byID {
		if c.CampaignID == campaignID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContactRepo) ListByStatus(_ context.Context, campaignID uuid.UUID, status domain.ContactStatus) ([]domain.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Contact
	for _, c := range f.byID {
		if c.CampaignID == campaignID && c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContactRepo) CountByStatus(_ context.Context, campaignID uuid.UUID, status domain.ContactStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.byID {
		if c.CampaignID == campaignID && c.Status == status {
			n++
		}
	}
	return n, nil
}

func (f *fakeContactRepo) UpdateDialState(_ context.Context, contact *domain.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[contact.ID] = *contact
	return nil
}

type fakeAttemptStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]domain.CallAttempt
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{records: make(map[uuid.UUID]domain.CallAttempt)}
}

func (f *fakeAttemptStore) Append(_ context.Context, attempt *domain.CallAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[attempt.ID] = *attempt
	return nil
}

func (f *fakeAttemptStore) Finalize(_ context.Context, attempt *domain.CallAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.records[attempt.ID]; ok && existing.Status.Terminal() {
		return nil
	}
	f.records[attempt.ID] = *attempt
	return nil
}

func (f *fakeAttemptStore) ListByCampaign(_ context.Context, campaignID uuid.UUID) ([]domain.CallAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CallAttempt
	for _, a := range f.records {
		if a.CampaignID == campaignID {
			out = append(out, a)
		}
	}
	return out, nil
}

// completingProvider answers every call as completed on the first poll.
type completingProvider struct{}

func (completingProvider) PlaceCall(context.Context, telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	return telephony.PlaceCallResult{ProviderCallID: uuid.NewString()}, nil
}

func (completingProvider) CallStatus(context.Context, string) (telephony.StatusResult, error) {
	return telephony.StatusResult{Ended: true, EndReason: "completed", DurationSeconds: 25}, nil
}

// scriptedProvider answers placements with the scripted end reasons in
// order, then keeps completing.
type scriptedProvider struct {
	mu     sync.Mutex
	script []string
	placed int
	calls  map[string]telephony.StatusResult
}

func (p *scriptedProvider) PlaceCall(context.Context, telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	reason := "completed"
	if p.placed < len(p.script) {
		reason = p.script[p.placed]
	}
	p.placed++
	if p.calls == nil {
		p.calls = make(map[string]telephony.StatusResult)
	}
	id := uuid.NewString()
	p.calls[id] = telephony.StatusResult{Ended: true, EndReason: reason, DurationSeconds: 10}
	return telephony.PlaceCallResult{ProviderCallID: id}, nil
}

func (p *scriptedProvider) CallStatus(_ context.Context, providerCallID string) (telephony.StatusResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.calls[providerCallID]
	if !ok {
		return telephony.StatusResult{}, errors.New("unknown call")
	}
	return res, nil
}

type allowAllDNC struct{}

func (allowAllDNC) IsListed(context.Context, string) (bool, error) { return false, nil }

type nullSink struct{}

func (nullSink) PublishOutcome(context.Context, queue.OutcomeMessage) error { return nil }

type fakeLock struct {
	mu        sync.Mutex
	held      map[uuid.UUID]string
	refreshes map[uuid.UUID]int
	reject    bool
}

func newFakeLock() *fakeLock {
	return &fakeLock{
		held:      make(map[uuid.UUID]string),
		refreshes: make(map[uuid.UUID]int),
	}
}

func (f *fakeLock) Acquire(_ context.Context, campaignID uuid.UUID, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false, nil
	}
	if _, ok := f.held[campaignID]; ok {
		return false, nil
	}
	f.held[campaignID] = token
	return true, nil
}

func (f *fakeLock) Refresh(_ context.Context, campaignID uuid.UUID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[campaignID] != token {
		return errors.New("lease lost")
	}
	f.refreshes[campaignID]++
	return nil
}

func (f *fakeLock) Release(_ context.Context, campaignID uuid.UUID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[campaignID] == token {
		delete(f.held, campaignID)
	}
	return nil
}

func (f *fakeLock) isHeld(campaignID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.held[campaignID]
	return ok
}

func (f *fakeLock) holder(campaignID uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held[campaignID]
}

func (f *fakeLock) refreshCount(campaignID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes[campaignID]
}

// expire drops the lease regardless of holder, as the TTL would.
func (f *fakeLock) expire(campaignID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, campaignID)
}

type serviceHarness struct {
	svc       *Service
	campaigns *fakeCampaignRepo
	contacts  *fakeContactRepo
	attempts  *fakeAttemptStore
	lock      *fakeLock
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()
	return newServiceHarnessWith(t, completingProvider{})
}

func newServiceHarnessWith(t *testing.T, provider telephony.Provider) *serviceHarness {
	t.Helper()
	h := &serviceHarness{
		campaigns: newFakeCampaignRepo(),
		contacts:  newFakeContactRepo(),
		attempts:  newFakeAttemptStore(),
		lock:      newFakeLock(),
	}
	h.svc = NewService(Deps{
		Campaigns:    h.campaigns,
		Contacts:     h.contacts,
		Attempts:     h.attempts,
		Provider:     provider,
		DNC:          allowAllDNC{},
		Outcomes:     nullSink{},
		Lock:         h.lock,
		Logger:       &logger.Logger{Logger: zap.NewNop()},
		PollInterval: time.Millisecond,
		LockRefresh:  time.Millisecond,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.svc.Shutdown(ctx)
	})
	return h
}

// newLinkedService builds a second service over the same stores and lock,
// standing in for another process of the deployment.
func newLinkedService(t *testing.T, h *serviceHarness, provider telephony.Provider) *Service {
	t.Helper()
	svc := NewService(Deps{
		Campaigns:    h.campaigns,
		Contacts:     h.contacts,
		Attempts:     h.attempts,
		Provider:     provider,
		DNC:          allowAllDNC{},
		Outcomes:     nullSink{},
		Lock:         h.lock,
		Logger:       &logger.Logger{Logger: zap.NewNop()},
		PollInterval: time.Millisecond,
		LockRefresh:  time.Millisecond,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc
}

func runCount(s *Service) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

func ptr[T any](v T) *T { return &v }

func openWindow() *SettingsInput {
	return &SettingsInput{
		RetryDelayMinutes: ptr(0),
		CallingHoursStart: ptr("00:00"),
		CallingHoursEnd:   ptr("23:59"),
		ExcludeWeekends:   ptr(false),
	}
}

func validInput() CreateInput {
	return CreateInput{
		Name:     "q3 renewals",
		AgentID:  "agent-1",
		Settings: openWindow(),
		Contacts: []contacts.Input{
			{PhoneNumber: "555-123-4567", Name: "Ada"},
			{PhoneNumber: "+1 (555) 987-6543", Name: "Grace"},
		},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestCreateAppliesDefaultSettings(t *testing.T) {
	h := newServiceHarness(t)

	created, err := h.svc.Create(context.Background(), "owner-1", CreateInput{
		Name:    "q3 renewals",
		AgentID: "agent-1",
		Contacts: []contacts.Input{
			{PhoneNumber: "555-123-4567"},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != domain.CampaignStatusDraft {
		t.Errorf("status = %s, want draft", created.Status)
	}
	s := created.Settings
	if s.MaxConcurrentCalls != 5 || s.RetryAttempts != 3 || s.RetryDelayMinutes != 30 {
		t.Errorf("defaults not applied: %+v", s)
	}
	if !s.RespectDoNotCall || !s.ExcludeWeekends {
		t.Error("boolean defaults must be true when omitted")
	}
	if len(created.Contacts) != 1 {
		t.Fatalf("contacts = %d, want 1", len(created.Contacts))
	}
	if created.Contacts[0].PhoneNumber != "+15551234567" {
		t.Errorf("phone = %s, want +15551234567", created.Contacts[0].PhoneNumber)
	}
	if created.Stats.TotalContacts != 1 {
		t.Errorf("total contacts = %d, want 1", created.Stats.TotalContacts)
	}
}

func TestCreateCollectsAllViolations(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.svc.Create(context.Background(), "owner-1", CreateInput{
		Settings: &SettingsInput{
			MaxConcurrentCalls: ptr(0),
			CallingHoursStart:  ptr("17:00"),
			CallingHoursEnd:    ptr("09:00"),
		},
		Contacts: []contacts.Input{{PhoneNumber: "123"}},
	})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	var verr *apperrors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err %T does not carry violations", err)
	}
	if len(verr.Violations) < 4 {
		t.Errorf("violations = %v, want name, agent, contacts and window all reported", verr.Violations)
	}
}

func TestCreateWithScheduleStartsAsScheduled(t *testing.T) {
	h := newServiceHarness(t)

	in := validInput()
	start := time.Now().Add(24 * time.Hour)
	in.ScheduledStart = &start
	created, err := h.svc.Create(context.Background(), "owner-1", in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != domain.CampaignStatusScheduled {
		t.Errorf("status = %s, want scheduled", created.Status)
	}
}

func TestStartRunsCampaignToCompletion(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	created, err := h.svc.Create(ctx, "owner-1", validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.contacts.seed(created.Contacts)

	started, err := h.svc.Start(ctx, created.ID, "owner-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Status != domain.CampaignStatusActive {
		t.Fatalf("status = %s, want active", started.Status)
	}
	if started.StartedAt == nil {
		t.Fatal("StartedAt must be set on first start")
	}

	waitFor(t, "campaign completion", func() bool {
		return h.campaigns.status(created.ID) == domain.CampaignStatusCompleted
	})
	waitFor(t, "run lock release", func() bool {
		return !h.lock.isHeld(created.ID)
	})

	report, err := h.svc.Status(ctx, created.ID, "owner-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if report.Campaign.Stats.CallsCompleted != 2 {
		t.Errorf("completed calls = %d, want 2", report.Campaign.Stats.CallsCompleted)
	}
	if report.ContactsPending != 0 {
		t.Errorf("pending contacts = %d, want 0", report.ContactsPending)
	}
}

func TestStartRejectsUnknownOwner(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	created, err := h.svc.Create(ctx, "owner-1", validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.svc.Start(ctx, created.ID, "other-owner"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStartRejectsTerminalCampaign(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	created, err := h.svc.Create(ctx, "owner-1", validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.svc.Cancel(ctx, created.ID, "owner-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := h.svc.Start(ctx, created.ID, "owner-1"); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestStartOutsideCallingWindowRejected(t *testing.T) {
	h := newServiceHarness(t)
	// Freeze the clock on a Sunday.
	h.svc.now = func() time.Time {
		return time.Date(2025, time.June, 8, 12, 0, 0, 0, time.UTC)
	}
	ctx := context.Background()

	in := validInput()
	in.Settings.ExcludeWeekends = ptr(true)
	created, err := h.svc.Create(ctx, "owner-1", in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.svc.Start(ctx, created.ID, "owner-1"); !errors.Is(err, apperrors.ErrCompliance) {
		t.Fatalf("err = %v, want ErrCompliance", err)
	}
	if got := h.campaigns.status(created.ID); got != domain.CampaignStatusDraft {
		t.Errorf("status = %s, want draft untouched", got)
	}
	if h.lock.isHeld(created.ID) {
		t.Error("rejected start must not leave the run lock held")
	}
}

func TestStartWhileRunHeldElsewhereConflicts(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	created, err := h.svc.Create(ctx, "owner-1", validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.lock.Acquire(ctx, created.ID, "another-instance"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	if _, err := h.svc.Start(ctx, created.ID, "owner-1"); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestPauseRequiresActiveCampaign(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	created, err := h.svc.Create(ctx, "owner-1", validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.svc.Pause(ctx, created.ID, "owner-1"); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestStopIsLegalFromDraftAndTerminalOnce(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	created, err := h.svc.Create(ctx, "owner-1", validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	stopped, err := h.svc.Stop(ctx, created.ID, "owner-1")
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped.Status != domain.CampaignStatusCompleted {
		t.Errorf("status = %s, want completed", stopped.Status)
	}
	if stopped.CompletedAt == nil {
		t.Error("CompletedAt must be set")
	}
	if _, err := h.svc.Stop(ctx, created.ID, "owner-1"); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("second stop err = %v, want ErrInvalidState", err)
	}
}

func TestCancelMarksCampaignCancelled(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	created, err := h.svc.Create(ctx, "owner-1", validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	cancelled, err := h.svc.Cancel(ctx, created.ID, "owner-1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != domain.CampaignStatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	first, err := h.svc.Create(ctx, "owner-1", validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.svc.Create(ctx, "owner-1", validInput()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.svc.Cancel(ctx, first.ID, "owner-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	status := domain.CampaignStatusDraft
	drafts, err := h.svc.List(ctx, "owner-1", &status, 50)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("drafts = %d, want 1", len(drafts))
	}

	all, err := h.svc.List(ctx, "owner-1", nil, 50)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("campaigns = %d, want 2", len(all))
	}
}

func TestReconcileResumesOrphanedActiveCampaign(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	created, err := h.svc.Create(ctx, "owner-1", validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.contacts.seed(created.Contacts)

	// Simulate a crash after start: persisted active, but no live run and
	// an expired lock.
	created.Status = domain.CampaignStatusActive
	now := time.Now()
	created.StartedAt = &now
	if err := h.campaigns.Update(ctx, created); err != nil {
		t.Fatalf("seed active campaign: %v", err)
	}

	if err := h.svc.Reconcile(ctx, 100); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	waitFor(t, "resumed campaign to complete", func() bool {
		return h.campaigns.status(created.ID) == domain.CampaignStatusCompleted
	})
}

// retryParkedInput yields a single contact whose first attempt comes back
// busy, leaving the run parked in a one-minute retry wait.
func retryParkedInput() CreateInput {
	in := validInput()
	in.Settings.RetryAttempts = ptr(1)
	in.Settings.RetryDelayMinutes = ptr(1)
	in.Contacts = in.Contacts[:1]
	return in
}

func TestRunKeepsLeaseDuringRetryWait(t *testing.T) {
	h := newServiceHarnessWith(t, &scriptedProvider{script: []string{"busy"}})
	ctx := context.Background()

	created, err := h.svc.Create(ctx, "owner-1", retryParkedInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.contacts.seed(created.Contacts)
	if _, err := h.svc.Start(ctx, created.ID, "owner-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "first attempt to be recorded", func() bool {
		records, _ := h.attempts.ListByCampaign(ctx, created.ID)
		return len(records) == 1
	})
	waitFor(t, "lease refreshes during the retry wait", func() bool {
		return h.lock.refreshCount(created.ID) >= 2
	})

	holder := h.lock.holder(created.ID)
	other := newLinkedService(t, h, completingProvider{})
	if err := other.Reconcile(ctx, 100); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := h.lock.holder(created.ID); got != holder {
		t.Fatalf("lease holder changed from %q to %q, reconcile must not steal a live lease", holder, got)
	}
	if runCount(other) != 0 {
		t.Error("second instance must not launch a run while the lease is held")
	}
}

func TestStaleRunHaltsAfterLeaseExpiry(t *testing.T) {
	h := newServiceHarnessWith(t, &scriptedProvider{script: []string{"busy"}})
	ctx := context.Background()

	created, err := h.svc.Create(ctx, "owner-1", retryParkedInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.contacts.seed(created.Contacts)
	if _, err := h.svc.Start(ctx, created.ID, "owner-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "first attempt to be recorded", func() bool {
		records, _ := h.attempts.ListByCampaign(ctx, created.ID)
		return len(records) == 1
	})

	h.lock.expire(created.ID)
	waitFor(t, "stale run to halt after losing the lease", func() bool {
		return runCount(h.svc) == 0
	})

	other := newLinkedService(t, h, completingProvider{})
	if err := other.Reconcile(ctx, 100); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	waitFor(t, "taken-over campaign to complete", func() bool {
		return h.campaigns.status(created.ID) == domain.CampaignStatusCompleted
	})

	records, _ := h.attempts.ListByCampaign(ctx, created.ID)
	if len(records) != 2 {
		t.Fatalf("attempt records = %d, want exactly retry_attempts+1 = 2 across both instances", len(records))
	}
	list, _ := h.contacts.ListByCampaign(ctx, created.ID)
	if len(list) != 1 {
		t.Fatalf("contacts = %d, want 1", len(list))
	}
	if list[0].Status != domain.ContactStatusDone || list[0].Attempts != 2 {
		t.Fatalf("contact = %s after %d attempts, want done after 2", list[0].Status, list[0].Attempts)
	}
}

func TestAttemptStoreFakeKeepsFirstOutcome(t *testing.T) {
	repotest.AttemptStoreKeepsFirstOutcome(t, newFakeAttemptStore())
}
