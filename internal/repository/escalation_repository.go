package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/Clanvaro/unigrc-m-production-sub010/internal/apperrors"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/database"
)

// EscalationRepository reads escalation records. Creation and resolution
// happen inside the ApprovalRepository transitions so they stay in the same
// transaction as the item's status change.
type EscalationRepository struct {
	db *database.DB
}

// NewEscalationRepository creates a new EscalationRepository.
func NewEscalationRepository(db *database.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

const escalationColumns = `id, approval_item_id, escalation_level, urgency,
	       timeout_hours, escalation_reason, escalated_by, created_at, resolved_at`

// GetActiveByItem returns the unresolved escalation for an item, or nil when
// none is active.
func (r *EscalationRepository) GetActiveByItem(ctx context.Context, approvalItemID string) (*Escalation, error) {
	query := `
		SELECT ` + escalationColumns + `
		FROM approval_escalations
		WHERE approval_item_id = $1
		  AND resolved_at IS NULL
	`

	esc, err := r.scanEscalation(r.db.QueryRow(ctx, query, approvalItemID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get active escalation")
	}
	return esc, nil
}

// ListActive returns all unresolved escalations, oldest first.
func (r *EscalationRepository) ListActive(ctx context.Context) ([]*Escalation, error) {
	query := `
		SELECT ` + escalationColumns + `
		FROM approval_escalations
		WHERE resolved_at IS NULL
		ORDER BY created_at ASC
	`
	return r.list(ctx, query)
}

// List returns every escalation ever raised, newest first.
func (r *EscalationRepository) List(ctx context.Context) ([]*Escalation, error) {
	query := `
		SELECT ` + escalationColumns + `
		FROM approval_escalations
		ORDER BY created_at DESC
	`
	return r.list(ctx, query)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *EscalationRepository) list(ctx context.Context, query string, args ...any) ([]*Escalation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list escalations")
	}
	defer rows.Close()

	var escalations []*Escalation
	for rows.Next() {
		esc, err := r.scanEscalation(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan escalation")
		}
		escalations = append(escalations, esc)
	}
	return escalations, rows.Err()
}

type escalationScanner interface {
	Scan(dest ...any) error
}

func (r *EscalationRepository) scanEscalation(row escalationScanner) (*Escalation, error) {
	esc := &Escalation{}
	err := row.Scan(
		&esc.ID,
		&esc.ApprovalItemID,
		&esc.Level,
		&esc.Urgency,
		&esc.TimeoutHours,
		&esc.Reason,
		&esc.EscalatedBy,
		&esc.CreatedAt,
		&esc.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return esc, nil
}
