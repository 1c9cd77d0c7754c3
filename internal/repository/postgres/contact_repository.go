package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/emirpiksel/dialara/internal/domain"
	"github.com/emirpiksel/dialara/internal/repository"
)

// ContactRepository persists a campaign's contact snapshot.
type ContactRepository struct {
	db *sqlx.DB
}

// NewContactRepository constructs the repository.
func NewContactRepository(db *sqlx.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) bulkInsert(ctx context.Context, tx *sqlx.Tx, campaignID uuid.UUID, contacts []domain.Contact) error {
	if len(contacts) == 0 {
		return nil
	}

	q := `INSERT INTO campaign_contacts (
		id, campaign_id, phone_number, name, email, custom_variables,
		attempts, last_attempt_at, status, failure_reason, created_at, updated_at
	) VALUES (:id, :campaign_id, :phone_number, :name, :email, :custom_variables,
		:attempts, :last_attempt_at, :status, :failure_reason, :created_at, :updated_at)`

	now := time.Now().UTC()
	rows := make([]map[string]any, 0, len(contacts))
	for _, c := range contacts {
		vars, err := json.Marshal(c.CustomVariables)
		if err != nil {
			return fmt.Errorf("contact repo: marshal custom variables: %w", err)
		}
		rows = append(rows, map[string]any{
			"id":               c.ID,
			"campaign_id":      campaignID,
			"phone_number":     c.PhoneNumber,
			"name":             c.Name,
			"email":            c.Email,
			"custom_variables": vars,
			"attempts":         c.Attempts,
			"last_attempt_at":  c.LastAttemptAt,
			"status":           c.Status,
			"failure_reason":   c.FailureReason,
			"created_at":       now,
			"updated_at":       now,
		})
	}

	if _, err := tx.NamedExecContext(ctx, q, rows); err != nil {
		return fmt.Errorf("contact repo: bulk insert: %w", err)
	}
	return nil
}

const contactColumns = `id, campaign_id, phone_number, name, email, custom_variables,
	attempts, last_attempt_at, status, failure_reason`

// ListByCampaign returns the full contact snapshot in creation order.
func (r *ContactRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Contact, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT `+contactColumns+`
		FROM campaign_contacts WHERE campaign_id = $1 ORDER BY created_at ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("contact repo: list: %w", err)
	}
	defer rows.Close()

	return scanContacts(rows)
}

// ListByStatus returns contacts in a given dial state.
func (r *ContactRepository) ListByStatus(ctx context.Context, campaignID uuid.UUID, status domain.ContactStatus) ([]domain.Contact, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT `+contactColumns+`
		FROM campaign_contacts WHERE campaign_id = $1 AND status = $2 ORDER BY created_at ASC`, campaignID, status)
	if err != nil {
		return nil, fmt.Errorf("contact repo: list by status: %w", err)
	}
	defer rows.Close()

	return scanContacts(rows)
}

// CountByStatus counts contacts in a given dial state.
func (r *ContactRepository) CountByStatus(ctx context.Context, campaignID uuid.UUID, status domain.ContactStatus) (int, error) {
	var n int
	err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM campaign_contacts
		WHERE campaign_id = $1 AND status = $2`, campaignID, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("contact repo: count by status: %w", err)
	}
	return n, nil
}

// UpdateDialState persists the mutable dial fields for one contact.
func (r *ContactRepository) UpdateDialState(ctx context.Context, contact *domain.Contact) error {
	res, err := r.db.ExecContext(ctx, `UPDATE campaign_contacts SET
		attempts = $1, last_attempt_at = $2, status = $3, failure_reason = $4, updated_at = $5
		WHERE id = $6 AND campaign_id = $7`,
		contact.Attempts, contact.LastAttemptAt, contact.Status, contact.FailureReason,
		time.Now().UTC(), contact.ID, contact.CampaignID,
	)
	if err != nil {
		return fmt.Errorf("contact repo: update dial state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("contact repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanContacts(rows *sqlx.Rows) ([]domain.Contact, error) {
	var results []domain.Contact
	for rows.Next() {
		var rec contactRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("contact repo: scan: %w", err)
		}
		results = append(results, rec.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contact repo: rows err: %w", err)
	}
	return results, nil
}

type contactRecord struct {
	ID            uuid.UUID      `db:"id"`
	CampaignID    uuid.UUID      `db:"campaign_id"`
	PhoneNumber   string         `db:"phone_number"`
	Name          sql.NullString `db:"name"`
	Email         sql.NullString `db:"email"`
	CustomVars    []byte         `db:"custom_variables"`
	Attempts      int            `db:"attempts"`
	LastAttemptAt sql.NullTime   `db:"last_attempt_at"`
	Status        string         `db:"status"`
	FailureReason sql.NullString `db:"failure_reason"`
}

func (r contactRecord) toDomain() domain.Contact {
	var vars map[string]string
	_ = json.Unmarshal(r.CustomVars, &vars)

	contact := domain.Contact{
		ID:              r.ID,
		CampaignID:      r.CampaignID,
		PhoneNumber:     r.PhoneNumber,
		Name:            r.Name.String,
		Email:           r.Email.String,
		CustomVariables: vars,
		Attempts:        r.Attempts,
		Status:          domain.ContactStatus(r.Status),
		FailureReason:   r.FailureReason.String,
	}
	contact.LastAttemptAt = nullTimePtr(r.LastAttemptAt)
	return contact
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
