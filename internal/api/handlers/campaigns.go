package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/emirpiksel/dialara/internal/contacts"
	"github.com/emirpiksel/dialara/internal/domain"
	campaignsvc "github.com/emirpiksel/dialara/internal/service/campaign"
)

type createCampaignRequest struct {
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	AgentID        string           `json:"agent_id"`
	ScriptTemplate string           `json:"script_template"`
	Settings       *settingsRequest `json:"settings"`
	ScheduledStart *time.Time       `json:"scheduled_start"`
	ScheduledEnd   *time.Time       `json:"scheduled_end"`
	Contacts       []contactRequest `json:"contacts"`
}

type settingsRequest struct {
	MaxConcurrentCalls *int    `json:"max_concurrent_calls"`
	RetryAttempts      *int    `json:"retry_attempts"`
	RetryDelayMinutes  *int    `json:"retry_delay_minutes"`
	CallTimeoutSeconds *int    `json:"call_timeout_seconds"`
	RespectDoNotCall   *bool   `json:"respect_do_not_call"`
	TimeZone           *string `json:"time_zone"`
	CallingHoursStart  *string `json:"calling_hours_start"`
	CallingHoursEnd    *string `json:"calling_hours_end"`
	ExcludeWeekends    *bool   `json:"exclude_weekends"`
}

type contactRequest struct {
	PhoneNumber     string            `json:"phone_number"`
	Name            string            `json:"name"`
	Email           string            `json:"email"`
	CustomVariables map[string]string `json:"custom_variables"`
}

type settingsResponse struct {
	MaxConcurrentCalls int    `json:"max_concurrent_calls"`
	RetryAttempts      int    `json:"retry_attempts"`
	RetryDelayMinutes  int    `json:"retry_delay_minutes"`
	CallTimeoutSeconds int    `json:"call_timeout_seconds"`
	RespectDoNotCall   bool   `json:"respect_do_not_call"`
	TimeZone           string `json:"time_zone"`
	CallingHoursStart  string `json:"calling_hours_start"`
	CallingHoursEnd    string `json:"calling_hours_end"`
	ExcludeWeekends    bool   `json:"exclude_weekends"`
}

type statsResponse struct {
	TotalContacts   int     `json:"total_contacts"`
	CallsAttempted  int     `json:"calls_attempted"`
	CallsConnected  int     `json:"calls_connected"`
	CallsCompleted  int     `json:"calls_completed"`
	CallsFailed     int     `json:"calls_failed"`
	AverageDuration float64 `json:"average_duration"`
	ConversionRate  float64 `json:"conversion_rate"`
}

type campaignResponse struct {
	ID             uuid.UUID             `json:"id"`
	Name           string                `json:"name"`
	Description    string                `json:"description,omitempty"`
	AgentID        string                `json:"agent_id"`
	Status         domain.CampaignStatus `json:"status"`
	Settings       settingsResponse      `json:"settings"`
	Stats          statsResponse         `json:"stats"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	ScheduledStart *time.Time            `json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time            `json:"scheduled_end,omitempty"`
	StartedAt      *time.Time            `json:"started_at,omitempty"`
	PausedAt       *time.Time            `json:"paused_at,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
}

type campaignStatusResponse struct {
	campaignResponse
	InFlightCalls   int `json:"in_flight_calls"`
	ContactsPending int `json:"contacts_pending"`
}

type listCampaignsResponse struct {
	Campaigns []campaignResponse `json:"campaigns"`
}

func (h *HandlerSet) createCampaign(ctx *fiber.Ctx) error {
	owner, err := h.owner(ctx)
	if err != nil {
		return err
	}

	var req createCampaignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	campaign, err := h.campaigns.Create(ctx.Context(), owner, toCreateInput(req))
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusCreated).JSON(toCampaignResponse(campaign))
}

func (h *HandlerSet) listCampaigns(ctx *fiber.Ctx) error {
	owner, err := h.owner(ctx)
	if err != nil {
		return err
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))
	var status *domain.CampaignStatus
	if raw := ctx.Query("status"); raw != "" {
		s := domain.CampaignStatus(raw)
		status = &s
	}

	campaigns, err := h.campaigns.List(ctx.Context(), owner, status, limit)
	if err != nil {
		return translateError(err)
	}

	resp := listCampaignsResponse{Campaigns: make([]campaignResponse, 0, len(campaigns))}
	for _, c := range campaigns {
		resp.Campaigns = append(resp.Campaigns, toCampaignResponse(c))
	}
	return ctx.JSON(resp)
}

func (h *HandlerSet) campaignStatus(ctx *fiber.Ctx) error {
	owner, err := h.owner(ctx)
	if err != nil {
		return err
	}
	id, err := parseID(ctx)
	if err != nil {
		return err
	}

	report, err := h.campaigns.Status(ctx.Context(), id, owner)
	if err != nil {
		return translateError(err)
	}

	return ctx.JSON(campaignStatusResponse{
		campaignResponse: toCampaignResponse(report.Campaign),
		InFlightCalls:    report.InFlight,
		ContactsPending:  report.ContactsPending,
	})
}

func (h *HandlerSet) startCampaign(ctx *fiber.Ctx) error {
	return h.transition(ctx, h.campaigns.Start)
}

func (h *HandlerSet) pauseCampaign(ctx *fiber.Ctx) error {
	return h.transition(ctx, h.campaigns.Pause)
}

func (h *HandlerSet) stopCampaign(ctx *fiber.Ctx) error {
	return h.transition(ctx, h.campaigns.Stop)
}

func (h *HandlerSet) cancelCampaign(ctx *fiber.Ctx) error {
	return h.transition(ctx, h.campaigns.Cancel)
}

func (h *HandlerSet) transition(
	ctx *fiber.Ctx,
	op func(c context.Context, id uuid.UUID, owner string) (*domain.Campaign, error),
) error {
	owner, err := h.owner(ctx)
	if err != nil {
		return err
	}
	id, err := parseID(ctx)
	if err != nil {
		return err
	}

	campaign, err := op(ctx.Context(), id, owner)
	if err != nil {
		return translateError(err)
	}
	return ctx.JSON(toCampaignResponse(campaign))
}

func parseID(ctx *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	return id, nil
}

func toCreateInput(req createCampaignRequest) campaignsvc.CreateInput {
	in := campaignsvc.CreateInput{
		Name:           req.Name,
		Description:    req.Description,
		AgentID:        req.AgentID,
		ScriptTemplate: req.ScriptTemplate,
		ScheduledStart: req.ScheduledStart,
		ScheduledEnd:   req.ScheduledEnd,
	}
	if req.Settings != nil {
		in.Settings = &campaignsvc.SettingsInput{
			MaxConcurrentCalls: req.Settings.MaxConcurrentCalls,
			RetryAttempts:      req.Settings.RetryAttempts,
			RetryDelayMinutes:  req.Settings.RetryDelayMinutes,
			CallTimeoutSeconds: req.Settings.CallTimeoutSeconds,
			RespectDoNotCall:   req.Settings.RespectDoNotCall,
			TimeZone:           req.Settings.TimeZone,
			CallingHoursStart:  req.Settings.CallingHoursStart,
			CallingHoursEnd:    req.Settings.CallingHoursEnd,
			ExcludeWeekends:    req.Settings.ExcludeWeekends,
		}
	}
	for _, c := range req.Contacts {
		in.Contacts = append(in.Contacts, contacts.Input{
			PhoneNumber:     c.PhoneNumber,
			Name:            c.Name,
			Email:           c.Email,
			CustomVariables: c.CustomVariables,
		})
	}
	return in
}

func toCampaignResponse(c *domain.Campaign) campaignResponse {
	return campaignResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		AgentID:     c.AgentID,
		Status:      c.Status,
		Settings: settingsResponse{
			MaxConcurrentCalls: c.Settings.MaxConcurrentCalls,
			RetryAttempts:      c.Settings.RetryAttempts,
			RetryDelayMinutes:  c.Settings.RetryDelayMinutes,
			CallTimeoutSeconds: c.Settings.CallTimeoutSeconds,
			RespectDoNotCall:   c.Settings.RespectDoNotCall,
			TimeZone:           c.Settings.TimeZone,
			CallingHoursStart:  c.Settings.CallingHoursStart,
			CallingHoursEnd:    c.Settings.CallingHoursEnd,
			ExcludeWeekends:    c.Settings.ExcludeWeekends,
		},
		Stats: statsResponse{
			TotalContacts:   c.Stats.TotalContacts,
			CallsAttempted:  c.Stats.CallsAttempted,
			CallsConnected:  c.Stats.CallsConnected,
			CallsCompleted:  c.Stats.CallsCompleted,
			CallsFailed:     c.Stats.CallsFailed,
			AverageDuration: c.Stats.AverageDuration,
			ConversionRate:  c.Stats.ConversionRate,
		},
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		ScheduledStart: c.ScheduledStart,
		ScheduledEnd:   c.ScheduledEnd,
		StartedAt:      c.StartedAt,
		PausedAt:       c.PausedAt,
		CompletedAt:    c.CompletedAt,
	}
}
