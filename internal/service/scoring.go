package service

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/Clanvaro/unigrc-m-production-sub010/internal/apperrors"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/config"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/repository"
)

// PrioritizationStore is the persistence surface the scoring engine needs.
type PrioritizationStore interface {
	GetByID(ctx context.Context, id string) (*repository.PrioritizationFactor, error)
	ListByPlan(ctx context.Context, planID string) ([]*repository.PrioritizationFactor, error)
	ListByPlanWithEntity(ctx context.Context, planID string) ([]*repository.FactorWithEntity, error)
	UpdateInputs(ctx context.Context, f *repository.PrioritizationFactor) error
	UpdateScore(ctx context.Context, id string, score, ranking int) error
}

// ScoringService computes priority scores and plan-wide rankings for
// auditable entities. The weighting policy comes from configuration.
type ScoringService struct {
	factors PrioritizationStore
	cfg     config.ScoringConfig
	log     zerolog.Logger
}

// NewScoringService creates a new ScoringService.
func NewScoringService(factors PrioritizationStore, cfg config.ScoringConfig, log zerolog.Logger) *ScoringService {
	return &ScoringService{factors: factors, cfg: cfg, log: log}
}

// ComputeScore evaluates the weighted priority score for one factor.
// With the default policy: riskScore contributes up to 40 points,
// strategic priority up to 20, the previous audit result up to 15, and the
// fraud/regulatory/management flags 15/5/5. The result is clamped to [0,100].
func ComputeScore(f *repository.PrioritizationFactor, w config.ScoringWeights) int {
	score := float64(f.RiskScore) * w.RiskScoreFactor
	score += float64(f.StrategicPriority) / 3.0 * w.StrategicPriorityMax

	switch f.PreviousAuditResult {
	case repository.AuditResultBad:
		score += w.PreviousResultBad
	case repository.AuditResultRegular:
		score += w.PreviousResultRegular
	case repository.AuditResultGood:
		score += w.PreviousResultGood
	}

	if f.FraudHistory {
		score += w.FraudHistory
	}
	if f.RegulatoryRequirement {
		score += w.RegulatoryRequirement
	}
	if f.ManagementRequest {
		score += w.ManagementRequest
	}

	rounded := int(math.Round(score))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}

// RiskLevelForScore maps a priority score onto a risk level using the
// configured thresholds.
func RiskLevelForScore(score int, t config.RiskThresholds) repository.RiskLevel {
	switch {
	case score >= t.Critical:
		return repository.RiskCritical
	case score >= t.High:
		return repository.RiskHigh
	case score >= t.Medium:
		return repository.RiskMedium
	default:
		return repository.RiskLow
	}
}

// FactorRecalcResult is the per-factor outcome of a plan recalculation.
type FactorRecalcResult struct {
	FactorID  string               `json:"factorId"`
	Score     int                  `json:"totalPriorityScore"`
	Ranking   int                  `json:"calculatedRanking"`
	RiskLevel repository.RiskLevel `json:"riskLevel"`
	Success   bool                 `json:"success"`
	Error     string               `json:"error,omitempty"`
}

// RecalculateAll recomputes the score of every factor in a plan and assigns
// rankings 1..N by descending score, ties broken by creation order. Scores
// and ranks are persisted per factor; a write failure on one factor does not
// stop the rest. A plan with no factors yields an empty result.
func (s *ScoringService) RecalculateAll(ctx context.Context, planID string) ([]FactorRecalcResult, error) {
	factors, err := s.factors.ListByPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if len(factors) == 0 {
		return []FactorRecalcResult{}, nil
	}

	for _, f := range factors {
		f.TotalPriorityScore = ComputeScore(f, s.cfg.Weights)
		f.RiskLevel = RiskLevelForScore(f.TotalPriorityScore, s.cfg.RiskThresholds)
	}

	// ListByPlan returns creation order; the stable sort preserves it for
	// equal scores, which makes recalculation idempotent.
	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].TotalPriorityScore > factors[j].TotalPriorityScore
	})

	results := make([]FactorRecalcResult, 0, len(factors))
	failed := 0
	for i, f := range factors {
		f.CalculatedRanking = i + 1

		res := FactorRecalcResult{
			FactorID:  f.ID,
			Score:     f.TotalPriorityScore,
			Ranking:   f.CalculatedRanking,
			RiskLevel: f.RiskLevel,
			Success:   true,
		}
		if err := s.factors.UpdateScore(ctx, f.ID, f.TotalPriorityScore, f.CalculatedRanking); err != nil {
			res.Success = false
			res.Error = err.Error()
			failed++
		}
		results = append(results, res)
	}

	if failed > 0 {
		s.log.Warn().
			Str("plan_id", planID).
			Int("failed", failed).
			Int("total", len(factors)).
			Msg("Plan recalculation completed with per-factor failures")
	} else {
		s.log.Info().
			Str("plan_id", planID).
			Int("factors", len(factors)).
			Msg("Plan recalculation completed")
	}

	return results, nil
}

// FactorUpdate is a partial edit of a factor's scoring inputs. Nil fields
// are left unchanged.
type FactorUpdate struct {
	RiskScore             *int     `json:"riskScore,omitempty"`
	PreviousAuditResult   *string  `json:"previousAuditResult,omitempty"`
	StrategicPriority     *int     `json:"strategicPriority,omitempty"`
	FraudHistory          *bool    `json:"fraudHistory,omitempty"`
	RegulatoryRequirement *bool    `json:"regulatoryRequirement,omitempty"`
	ManagementRequest     *bool    `json:"managementRequest,omitempty"`
	EstimatedAuditHours   *int     `json:"estimatedAuditHours,omitempty"`
	TimeSinceLastAudit    *float64 `json:"timeSinceLastAudit,omitempty"`
}

// UpdateFactor applies a partial edit to one factor and then recalculates
// the whole plan, because ranking is plan-relative. Returns the updated
// factor and the recalculation report.
func (s *ScoringService) UpdateFactor(ctx context.Context, id string, patch *FactorUpdate) (*repository.PrioritizationFactor, []FactorRecalcResult, error) {
	f, err := s.factors.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if patch.RiskScore != nil {
		if *patch.RiskScore < 0 || *patch.RiskScore > 100 {
			return nil, nil, apperrors.InvalidInput("riskScore", "must be between 0 and 100")
		}
		f.RiskScore = *patch.RiskScore
	}
	if patch.PreviousAuditResult != nil {
		if !repository.ValidPreviousAuditResult(*patch.PreviousAuditResult) {
			return nil, nil, apperrors.InvalidInput("previousAuditResult", "must be one of none, good, regular, bad")
		}
		f.PreviousAuditResult = repository.PreviousAuditResult(*patch.PreviousAuditResult)
	}
	if patch.StrategicPriority != nil {
		if *patch.StrategicPriority < 1 || *patch.StrategicPriority > 3 {
			return nil, nil, apperrors.InvalidInput("strategicPriority", "must be 1, 2 or 3")
		}
		f.StrategicPriority = *patch.StrategicPriority
	}
	if patch.FraudHistory != nil {
		f.FraudHistory = *patch.FraudHistory
	}
	if patch.RegulatoryRequirement != nil {
		f.RegulatoryRequirement = *patch.RegulatoryRequirement
	}
	if patch.ManagementRequest != nil {
		f.ManagementRequest = *patch.ManagementRequest
	}
	if patch.EstimatedAuditHours != nil {
		if *patch.EstimatedAuditHours < 0 {
			return nil, nil, apperrors.InvalidInput("estimatedAuditHours", "cannot be negative")
		}
		f.EstimatedAuditHours = *patch.EstimatedAuditHours
	}
	if patch.TimeSinceLastAudit != nil {
		if *patch.TimeSinceLastAudit < 0 {
			return nil, nil, apperrors.InvalidInput("timeSinceLastAudit", "cannot be negative")
		}
		f.TimeSinceLastAudit = *patch.TimeSinceLastAudit
	}

	if err := s.factors.UpdateInputs(ctx, f); err != nil {
		return nil, nil, err
	}

	report, err := s.RecalculateAll(ctx, f.PlanID)
	if err != nil {
		return nil, nil, err
	}

	// Reflect the factor's own recalculated score in the returned record.
	for _, res := range report {
		if res.FactorID == f.ID && res.Success {
			f.TotalPriorityScore = res.Score
			f.CalculatedRanking = res.Ranking
		}
	}
	f.RiskLevel = RiskLevelForScore(f.TotalPriorityScore, s.cfg.RiskThresholds)

	return f, report, nil
}

// ListPlanFactors returns a plan's factors joined with entity details. The
// risk level is derived from the stored score on the way out.
func (s *ScoringService) ListPlanFactors(ctx context.Context, planID string) ([]*repository.FactorWithEntity, error) {
	factors, err := s.factors.ListByPlanWithEntity(ctx, planID)
	if err != nil {
		return nil, err
	}
	if factors == nil {
		factors = []*repository.FactorWithEntity{}
	}
	for _, f := range factors {
		f.RiskLevel = RiskLevelForScore(f.TotalPriorityScore, s.cfg.RiskThresholds)
	}
	return factors, nil
}
