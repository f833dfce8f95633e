package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Clanvaro/unigrc-m-production-sub010/internal/apperrors"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/database"
)

// PrioritizationRepository persists audit prioritization factors.
// Listing is always ordered by created_at so that rank ties resolve by
// insertion order, which keeps recalculation idempotent.
type PrioritizationRepository struct {
	db *database.DB
}

// NewPrioritizationRepository creates a new PrioritizationRepository.
func NewPrioritizationRepository(db *database.DB) *PrioritizationRepository {
	return &PrioritizationRepository{db: db}
}

const factorColumns = `id, plan_id, universe_id, risk_score, previous_audit_result,
	       strategic_priority, fraud_history, regulatory_requirement, management_request,
	       estimated_audit_hours, time_since_last_audit,
	       total_priority_score, calculated_ranking,
	       created_at, updated_at`

// Create inserts a factor for an auditable entity newly added to a plan.
func (r *PrioritizationRepository) Create(ctx context.Context, f *PrioritizationFactor) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}

	query := `
		INSERT INTO audit_prioritization_factors
		    (id, plan_id, universe_id, risk_score, previous_audit_result,
		     strategic_priority, fraud_history, regulatory_requirement, management_request,
		     estimated_audit_hours, time_since_last_audit,
		     total_priority_score, calculated_ranking)
		VALUES ($1, $2, $3, $4, $5,
		        $6, $7, $8, $9,
		        $10, $11,
		        $12, $13)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		f.ID,
		f.PlanID,
		f.UniverseID,
		f.RiskScore,
		f.PreviousAuditResult,
		f.StrategicPriority,
		f.FraudHistory,
		f.RegulatoryRequirement,
		f.ManagementRequest,
		f.EstimatedAuditHours,
		f.TimeSinceLastAudit,
		f.TotalPriorityScore,
		f.CalculatedRanking,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create prioritization factor")
	}
	return nil
}

// GetByID retrieves a factor by primary key.
func (r *PrioritizationRepository) GetByID(ctx context.Context, id string) (*PrioritizationFactor, error) {
	query := `
		SELECT ` + factorColumns + `
		FROM audit_prioritization_factors
		WHERE id = $1
	`

	f, err := r.scanFactor(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("prioritization_factor", id)
	}
	return f, err
}

// ListByPlan returns every factor in a plan in creation order.
func (r *PrioritizationRepository) ListByPlan(ctx context.Context, planID string) ([]*PrioritizationFactor, error) {
	query := `
		SELECT ` + factorColumns + `
		FROM audit_prioritization_factors
		WHERE plan_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, planID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list prioritization factors")
	}
	defer rows.Close()

	var factors []*PrioritizationFactor
	for rows.Next() {
		f, err := r.scanFactor(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan prioritization factor")
		}
		factors = append(factors, f)
	}
	return factors, rows.Err()
}

// ListByPlanWithEntity returns the plan's factors joined with universe entity
// details, ordered by current ranking for display.
func (r *PrioritizationRepository) ListByPlanWithEntity(ctx context.Context, planID string) ([]*FactorWithEntity, error) {
	query := `
		SELECT f.id, f.plan_id, f.universe_id, f.risk_score, f.previous_audit_result,
		       f.strategic_priority, f.fraud_history, f.regulatory_requirement, f.management_request,
		       f.estimated_audit_hours, f.time_since_last_audit,
		       f.total_priority_score, f.calculated_ranking,
		       f.created_at, f.updated_at,
		       u.name, u.kind
		FROM audit_prioritization_factors f
		JOIN audit_universe_entries u ON u.id = f.universe_id
		WHERE f.plan_id = $1
		ORDER BY f.calculated_ranking ASC, f.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, planID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list prioritization factors with entities")
	}
	defer rows.Close()

	var out []*FactorWithEntity
	for rows.Next() {
		fe := &FactorWithEntity{}
		err := rows.Scan(
			&fe.ID,
			&fe.PlanID,
			&fe.UniverseID,
			&fe.RiskScore,
			&fe.PreviousAuditResult,
			&fe.StrategicPriority,
			&fe.FraudHistory,
			&fe.RegulatoryRequirement,
			&fe.ManagementRequest,
			&fe.EstimatedAuditHours,
			&fe.TimeSinceLastAudit,
			&fe.TotalPriorityScore,
			&fe.CalculatedRanking,
			&fe.CreatedAt,
			&fe.UpdatedAt,
			&fe.EntityName,
			&fe.EntityKind,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan prioritization factor row")
		}
		out = append(out, fe)
	}
	return out, rows.Err()
}

// UpdateInputs persists the manual scoring inputs of a single factor.
// Derived fields are written separately by UpdateScore during recalculation.
func (r *PrioritizationRepository) UpdateInputs(ctx context.Context, f *PrioritizationFactor) error {
	query := `
		UPDATE audit_prioritization_factors
		SET risk_score             = $2,
		    previous_audit_result  = $3,
		    strategic_priority     = $4,
		    fraud_history          = $5,
		    regulatory_requirement = $6,
		    management_request     = $7,
		    estimated_audit_hours  = $8,
		    time_since_last_audit  = $9,
		    updated_at             = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		f.ID,
		f.RiskScore,
		f.PreviousAuditResult,
		f.StrategicPriority,
		f.FraudHistory,
		f.RegulatoryRequirement,
		f.ManagementRequest,
		f.EstimatedAuditHours,
		f.TimeSinceLastAudit,
	).Scan(&f.UpdatedAt)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("prioritization_factor", f.ID)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to update prioritization factor")
	}
	return nil
}

// UpdateScore persists the derived score and ranking of one factor.
func (r *PrioritizationRepository) UpdateScore(ctx context.Context, id string, score, ranking int) error {
	query := `
		UPDATE audit_prioritization_factors
		SET total_priority_score = $2,
		    calculated_ranking   = $3,
		    updated_at           = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, score, ranking).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("prioritization_factor", id)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to update factor score")
	}
	return nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type factorScanner interface {
	Scan(dest ...any) error
}

func (r *PrioritizationRepository) scanFactor(row factorScanner) (*PrioritizationFactor, error) {
	f := &PrioritizationFactor{}
	err := row.Scan(
		&f.ID,
		&f.PlanID,
		&f.UniverseID,
		&f.RiskScore,
		&f.PreviousAuditResult,
		&f.StrategicPriority,
		&f.FraudHistory,
		&f.RegulatoryRequirement,
		&f.ManagementRequest,
		&f.EstimatedAuditHours,
		&f.TimeSinceLastAudit,
		&f.TotalPriorityScore,
		&f.CalculatedRanking,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}
