package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/emirpiksel/dialara/internal/domain"
	"github.com/emirpiksel/dialara/internal/repository"
)

const campaignColumns = `id, owner_id, name, description, agent_id, script_template, status,
	max_concurrent_calls, retry_attempts, retry_delay_minutes, call_timeout_seconds,
	respect_do_not_call, time_zone, calling_hours_start, calling_hours_end, exclude_weekends,
	total_contacts, calls_attempted, calls_connected, calls_completed, calls_failed,
	average_duration, conversion_rate,
	created_at, updated_at, scheduled_start, scheduled_end, started_at, paused_at, completed_at`

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
type CampaignRepository struct {
	db       *sqlx.DB
	contacts *ContactRepository
}

// NewCampaignRepository constructs a new repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db, contacts: NewContactRepository(db)}
}

// Create inserts the campaign and its contact snapshot in one transaction.
func (r *CampaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO campaigns (` + campaignColumns + `) VALUES (
			:id, :owner_id, :name, :description, :agent_id, :script_template, :status,
			:max_concurrent_calls, :retry_attempts, :retry_delay_minutes, :call_timeout_seconds,
			:respect_do_not_call, :time_zone, :calling_hours_start, :calling_hours_end, :exclude_weekends,
			:total_contacts, :calls_attempted, :calls_connected, :calls_completed, :calls_failed,
			:average_duration, :conversion_rate,
			:created_at, :updated_at, :scheduled_start, :scheduled_end, :started_at, :paused_at, :completed_at
		)`

		if _, err := tx.NamedExecContext(ctx, q, toCampaignParams(campaign)); err != nil {
			return fmt.Errorf("campaign repo: insert: %w", err)
		}

		if err := r.contacts.bulkInsert(ctx, tx, campaign.ID, campaign.Contacts); err != nil {
			return err
		}
		return nil
	})
}

// Get fetches a campaign scoped to its owner, contacts included.
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1 AND owner_id = $2`

	row := r.db.QueryRowxContext(ctx, q, id, ownerID)
	var record campaignRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign repo: get: %w", err)
	}

	campaign := record.toDomain()
	contactRows, err := r.contacts.ListByCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	campaign.Contacts = contactRows
	return &campaign, nil
}

// Update persists campaign status, stats snapshot and timestamps.
func (r *CampaignRepository) Update(ctx context.Context, campaign *domain.Campaign) error {
	q := `UPDATE campaigns SET
		name = :name,
		description = :description,
		status = :status,
		total_contacts = :total_contacts,
		calls_attempted = :calls_attempted,
		calls_connected = :calls_connected,
		calls_completed = :calls_completed,
		calls_failed = :calls_failed,
		average_duration = :average_duration,
		conversion_rate = :conversion_rate,
		updated_at = :updated_at,
		started_at = :started_at,
		paused_at = :paused_at,
		completed_at = :completed_at
	 WHERE id = :id AND owner_id = :owner_id`

	res, err := r.db.NamedExecContext(ctx, q, toCampaignParams(campaign))
	if err != nil {
		return fmt.Errorf("campaign repo: update: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByOwner returns an owner's campaigns, optionally filtered by status.
func (r *CampaignRepository) ListByOwner(ctx context.Context, ownerID string, status *domain.CampaignStatus, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sqlx.Rows
	var err error
	if status != nil {
		rows, err = r.db.QueryxContext(ctx, `SELECT `+campaignColumns+` FROM campaigns
			WHERE owner_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3`, ownerID, *status, limit)
	} else {
		rows, err = r.db.QueryxContext(ctx, `SELECT `+campaignColumns+` FROM campaigns
			WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`, ownerID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list by owner: %w", err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

// ListByStatus returns campaigns in a given state across all owners.
func (r *CampaignRepository) ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT `+campaignColumns+` FROM campaigns
		WHERE status = $1 ORDER BY updated_at ASC LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list by status: %w", err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

func scanCampaigns(rows *sqlx.Rows) ([]*domain.Campaign, error) {
	var results []*domain.Campaign
	for rows.Next() {
		var record campaignRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("campaign repo: scan: %w", err)
		}
		campaign := record.toDomain()
		results = append(results, &campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign repo: rows err: %w", err)
	}
	return results, nil
}

func toCampaignParams(c *domain.Campaign) map[string]any {
	return map[string]any{
		"id":                   c.ID,
		"owner_id":             c.OwnerID,
		"name":                 c.Name,
		"description":          c.Description,
		"agent_id":             c.AgentID,
		"script_template":      c.ScriptTemplate,
		"status":               c.Status,
		"max_concurrent_calls": c.Settings.MaxConcurrentCalls,
		"retry_attempts":       c.Settings.RetryAttempts,
		"retry_delay_minutes":  c.Settings.RetryDelayMinutes,
		"call_timeout_seconds": c.Settings.CallTimeoutSeconds,
		"respect_do_not_call":  c.Settings.RespectDoNotCall,
		"time_zone":            c.Settings.TimeZone,
		"calling_hours_start":  c.Settings.CallingHoursStart,
		"calling_hours_end":    c.Settings.CallingHoursEnd,
		"exclude_weekends":     c.Settings.ExcludeWeekends,
		"total_contacts":       c.Stats.TotalContacts,
		"calls_attempted":      c.Stats.CallsAttempted,
		"calls_connected":      c.Stats.CallsConnected,
		"calls_completed":      c.Stats.CallsCompleted,
		"calls_failed":         c.Stats.CallsFailed,
		"average_duration":     c.Stats.AverageDuration,
		"conversion_rate":      c.Stats.ConversionRate,
		"created_at":           c.CreatedAt,
		"updated_at":           c.UpdatedAt,
		"scheduled_start":      c.ScheduledStart,
		"scheduled_end":        c.ScheduledEnd,
		"started_at":           c.StartedAt,
		"paused_at":            c.PausedAt,
		"completed_at":         c.CompletedAt,
	}
}

type campaignRecord struct {
	ID                 uuid.UUID      `db:"id"`
	OwnerID            string         `db:"owner_id"`
	Name               string         `db:"name"`
	Description        sql.NullString `db:"description"`
	AgentID            string         `db:"agent_id"`
	ScriptTemplate     sql.NullString `db:"script_template"`
	Status             string         `db:"status"`
	MaxConcurrentCalls int            `db:"max_concurrent_calls"`
	RetryAttempts      int            `db:"retry_attempts"`
	RetryDelayMinutes  int            `db:"retry_delay_minutes"`
	CallTimeoutSeconds int            `db:"call_timeout_seconds"`
	RespectDoNotCall   bool           `db:"respect_do_not_call"`
	TimeZone           string         `db:"time_zone"`
	CallingHoursStart  string         `db:"calling_hours_start"`
	CallingHoursEnd    string         `db:"calling_hours_end"`
	ExcludeWeekends    bool           `db:"exclude_weekends"`
	TotalContacts      int            `db:"total_contacts"`
	CallsAttempted     int            `db:"calls_attempted"`
	CallsConnected     int            `db:"calls_connected"`
	CallsCompleted     int            `db:"calls_completed"`
	CallsFailed        int            `db:"calls_failed"`
	AverageDuration    float64        `db:"average_duration"`
	ConversionRate     float64        `db:"conversion_rate"`
	CreatedAt          sql.NullTime   `db:"created_at"`
	UpdatedAt          sql.NullTime   `db:"updated_at"`
	ScheduledStart     sql.NullTime   `db:"scheduled_start"`
	ScheduledEnd       sql.NullTime   `db:"scheduled_end"`
	StartedAt          sql.NullTime   `db:"started_at"`
	PausedAt           sql.NullTime   `db:"paused_at"`
	CompletedAt        sql.NullTime   `db:"completed_at"`
}

func (r campaignRecord) toDomain() domain.Campaign {
	campaign := domain.Campaign{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		Name:           r.Name,
		Description:    r.Description.String,
		AgentID:        r.AgentID,
		ScriptTemplate: r.ScriptTemplate.String,
		Status:         domain.CampaignStatus(r.Status),
		Settings: domain.CampaignSettings{
			MaxConcurrentCalls: r.MaxConcurrentCalls,
			RetryAttempts:      r.RetryAttempts,
			RetryDelayMinutes:  r.RetryDelayMinutes,
			CallTimeoutSeconds: r.CallTimeoutSeconds,
			RespectDoNotCall:   r.RespectDoNotCall,
			TimeZone:           r.TimeZone,
			CallingHoursStart:  r.CallingHoursStart,
			CallingHoursEnd:    r.CallingHoursEnd,
			ExcludeWeekends:    r.ExcludeWeekends,
		},
		Stats: domain.CampaignStats{
			TotalContacts:   r.TotalContacts,
			CallsAttempted:  r.CallsAttempted,
			CallsConnected:  r.CallsConnected,
			CallsCompleted:  r.CallsCompleted,
			CallsFailed:     r.CallsFailed,
			AverageDuration: r.AverageDuration,
			ConversionRate:  r.ConversionRate,
		},
	}

	if r.CreatedAt.Valid {
		campaign.CreatedAt = r.CreatedAt.Time
	}
	if r.UpdatedAt.Valid {
		campaign.UpdatedAt = r.UpdatedAt.Time
	}
	campaign.ScheduledStart = nullTimePtr(r.ScheduledStart)
	campaign.ScheduledEnd = nullTimePtr(r.ScheduledEnd)
	campaign.StartedAt = nullTimePtr(r.StartedAt)
	campaign.PausedAt = nullTimePtr(r.PausedAt)
	campaign.CompletedAt = nullTimePtr(r.CompletedAt)

	return campaign
}
