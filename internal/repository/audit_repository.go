package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/Clanvaro/unigrc-m-production-sub010/internal/apperrors"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/database"
)

// AuditRepository appends and reads immutable approval audit log entries.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry. The table is append-only; this is the only
// mutation operation exposed.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO approval_audit_log
		    (id, approval_item_id, action, performed_by,
		     status_before, status_after, metadata)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7)
		RETURNING performed_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.ID,
		entry.ApprovalItemID,
		entry.Action,
		entry.PerformedBy,
		entry.StatusBefore,
		entry.StatusAfter,
		metadataJSON,
	).Scan(&entry.PerformedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to append audit entry")
	}
	return nil
}

// GetByItemID returns the full audit trail for an approval item oldest-first.
func (r *AuditRepository) GetByItemID(ctx context.Context, approvalItemID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, approval_item_id, action, performed_by, performed_at,
		       status_before, status_after, metadata
		FROM approval_audit_log
		WHERE approval_item_id = $1
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, approvalItemID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get audit trail")
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		entry := &AuditEntry{}
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.ApprovalItemID,
			&entry.Action,
			&entry.PerformedBy,
			&entry.PerformedAt,
			&entry.StatusBefore,
			&entry.StatusAfter,
			&metadataJSON,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan audit entry")
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to unmarshal audit metadata")
			}
		}

		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
