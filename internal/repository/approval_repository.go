package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Clanvaro/unigrc-m-production-sub010/internal/apperrors"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/database"
)

// ErrStatusChanged is returned when a status-guarded write matched no row
// even though the item exists: another actor transitioned it first. The
// service layer surfaces this as a CONFLICT.
var ErrStatusChanged = errors.New("approval item status changed since read")

// ApprovalRepository persists approval items and applies their state
// transitions. Every transition is a compare-and-set on the status observed
// by the caller, executed in a single transaction together with its side
// effects (closing or opening an escalation), so concurrent actors cannot
// produce lost updates.
type ApprovalRepository struct {
	db *database.DB
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *database.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalColumns = `id, item_type, item_ref, title, risk_level, approval_status,
	       submitted_by, submitted_at, approver_id, reasoning, decided_at,
	       created_at, updated_at`

// Create inserts a new pending approval item.
func (r *ApprovalRepository) Create(ctx context.Context, item *ApprovalItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	query := `
		INSERT INTO approval_items
		    (id, item_type, item_ref, title, risk_level, approval_status, submitted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING submitted_at, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		item.ID,
		item.ItemType,
		item.ItemRef,
		item.Title,
		item.RiskLevel,
		item.Status,
		item.SubmittedBy,
	).Scan(&item.SubmittedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create approval item")
	}
	return nil
}

// GetByID retrieves an approval item by primary key.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*ApprovalItem, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approval_items
		WHERE id = $1
	`

	item, err := scanApprovalItem(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("approval_item", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get approval item")
	}
	return item, nil
}

// ListPending returns all pending items oldest-first.
func (r *ApprovalRepository) ListPending(ctx context.Context) ([]*ApprovalItem, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approval_items
		WHERE approval_status = 'pending'
		ORDER BY submitted_at ASC
	`
	return r.list(ctx, query)
}

// List returns every approval item, newest submission first. The dashboard
// aggregator recomputes its projections over this collection on demand.
func (r *ApprovalRepository) List(ctx context.Context) ([]*ApprovalItem, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approval_items
		ORDER BY submitted_at DESC
	`
	return r.list(ctx, query)
}

// Decide applies an approve/reject transition. The write is guarded on the
// status the caller observed (expected); in the same transaction any
// unresolved escalation for the item is closed. Returns ErrStatusChanged
// when the guard matched no row.
func (r *ApprovalRepository) Decide(
	ctx context.Context,
	id string,
	expected ApprovalStatus,
	to ApprovalStatus,
	approverID string,
	reasoning *string,
) (*ApprovalItem, error) {
	var item *ApprovalItem

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE approval_items
			SET approval_status = $3,
			    approver_id     = $4,
			    reasoning       = $5,
			    decided_at      = NOW(),
			    updated_at      = NOW()
			WHERE id = $1
			  AND approval_status = $2
			RETURNING ` + approvalColumns + `
		`

		var err error
		item, err = scanApprovalItem(tx.QueryRow(ctx, query, id, expected, to, approverID, reasoning))
		if err == pgx.ErrNoRows {
			return ErrStatusChanged
		}
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to apply decision")
		}

		// Close the active escalation, if any. Decisions on never-escalated
		// items update zero rows here, which is fine.
		resolve := `
			UPDATE approval_escalations
			SET resolved_at = NOW()
			WHERE approval_item_id = $1
			  AND resolved_at IS NULL
		`
		if _, err := tx.Exec(ctx, resolve, id); err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to resolve escalation")
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Escalate moves a pending item to escalated and records the escalation in
// the same transaction. Guarded on status = pending; returns
// ErrStatusChanged when the item is no longer pending at write time.
func (r *ApprovalRepository) Escalate(ctx context.Context, id string, esc *Escalation) (*ApprovalItem, error) {
	if esc.ID == "" {
		esc.ID = uuid.NewString()
	}
	esc.ApprovalItemID = id

	var item *ApprovalItem

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE approval_items
			SET approval_status = 'escalated',
			    updated_at      = NOW()
			WHERE id = $1
			  AND approval_status = 'pending'
			RETURNING ` + approvalColumns + `
		`

		var err error
		item, err = scanApprovalItem(tx.QueryRow(ctx, query, id))
		if err == pgx.ErrNoRows {
			return ErrStatusChanged
		}
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to escalate approval item")
		}

		insert := `
			INSERT INTO approval_escalations
			    (id, approval_item_id, escalation_level, urgency,
			     timeout_hours, escalation_reason, escalated_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at
		`

		err = tx.QueryRow(ctx, insert,
			esc.ID,
			esc.ApprovalItemID,
			esc.Level,
			esc.Urgency,
			esc.TimeoutHours,
			esc.Reason,
			esc.EscalatedBy,
		).Scan(&esc.CreatedAt)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create escalation")
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *ApprovalRepository) list(ctx context.Context, query string, args ...any) ([]*ApprovalItem, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list approval items")
	}
	defer rows.Close()

	var items []*ApprovalItem
	for rows.Next() {
		item, err := scanApprovalItem(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan approval item")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type approvalScanner interface {
	Scan(dest ...any) error
}

func scanApprovalItem(row approvalScanner) (*ApprovalItem, error) {
	item := &ApprovalItem{}
	err := row.Scan(
		&item.ID,
		&item.ItemType,
		&item.ItemRef,
		&item.Title,
		&item.RiskLevel,
		&item.Status,
		&item.SubmittedBy,
		&item.SubmittedAt,
		&item.ApproverID,
		&item.Reasoning,
		&item.DecidedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}
