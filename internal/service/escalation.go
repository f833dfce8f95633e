package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Clanvaro/unigrc-m-production-sub010/internal/apperrors"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/config"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/repository"
)

// SLAThreshold returns the pending-age limit for a risk level.
func SLAThreshold(level repository.RiskLevel, sla config.SLAConfig) time.Duration {
	switch level {
	case repository.RiskCritical:
		return sla.Critical
	case repository.RiskHigh:
		return sla.High
	case repository.RiskMedium:
		return sla.Medium
	default:
		return sla.Low
	}
}

// OverduePlan pairs a pending item with the escalation the sweep intends to
// raise for it.
type OverduePlan struct {
	Item       *repository.ApprovalItem
	Escalation *repository.Escalation
}

// PlanOverdue selects the pending items whose age exceeds their risk-level
// SLA and builds the escalations to apply. Pure function of its inputs so
// sweep behavior is testable without the wall clock; items that are already
// escalated or terminal are never selected.
func PlanOverdue(items []*repository.ApprovalItem, now time.Time, sla config.SLAConfig) []OverduePlan {
	var plans []OverduePlan
	for _, item := range items {
		if item.Status != repository.StatusPending {
			continue
		}

		threshold := SLAThreshold(item.RiskLevel, sla)
		age := now.Sub(item.SubmittedAt)
		if age <= threshold {
			continue
		}

		plans = append(plans, OverduePlan{
			Item: item,
			Escalation: &repository.Escalation{
				ApprovalItemID: item.ID,
				Level:          repository.EscalationManager,
				Urgency:        item.RiskLevel,
				TimeoutHours:   int(threshold / time.Hour),
				Reason: fmt.Sprintf("pending for %s, exceeds %s SLA of %s",
					age.Round(time.Minute), item.RiskLevel, threshold),
				EscalatedBy: repository.SystemActor,
			},
		})
	}
	return plans
}

// EscalationService runs the SLA sweep that auto-escalates overdue pending
// items on behalf of the system actor.
type EscalationService struct {
	items     ApprovalStore
	approvals *ApprovalService
	sla       config.SLAConfig
	log       zerolog.Logger
}

// NewEscalationService creates a new EscalationService.
func NewEscalationService(items ApprovalStore, approvals *ApprovalService, sla config.SLAConfig, log zerolog.Logger) *EscalationService {
	return &EscalationService{items: items, approvals: approvals, sla: sla, log: log}
}

// Sweep evaluates every pending item against its SLA at the given instant
// and applies the overdue escalations. Each apply goes through the same
// status-guarded transition as a manual escalation, so a concurrent sweep or
// a racing human actor simply wins the item and this sweep skips it. Safe to
// run on any schedule.
func (s *EscalationService) Sweep(ctx context.Context, now time.Time) (applied int, err error) {
	pending, err := s.items.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	plans := PlanOverdue(pending, now, s.sla)
	if len(plans) == 0 {
		return 0, nil
	}

	for _, plan := range plans {
		_, err := s.approvals.Escalate(ctx, plan.Item.ID, &EscalateRequest{
			Level:        string(plan.Escalation.Level),
			Urgency:      string(plan.Escalation.Urgency),
			Reason:       plan.Escalation.Reason,
			EscalatedBy:  plan.Escalation.EscalatedBy,
			TimeoutHours: plan.Escalation.TimeoutHours,
		})
		if err != nil {
			// Lost the race to another actor or sweep; skip, the item is
			// no longer pending.
			if isTransitionRace(err) {
				s.log.Debug().
					Str("item_id", plan.Item.ID).
					Msg("SLA sweep skipped item escalated or decided concurrently")
				continue
			}
			s.log.Error().Err(err).
				Str("item_id", plan.Item.ID).
				Msg("SLA sweep failed to escalate item")
			continue
		}
		applied++
	}

	if applied > 0 {
		s.log.Info().
			Int("applied", applied).
			Int("planned", len(plans)).
			Msg("SLA sweep escalated overdue items")
	}

	return applied, nil
}

// isTransitionRace reports whether the escalation failed only because the
// item left the pending state between the sweep's read and its write.
func isTransitionRace(err error) bool {
	if errors.Is(err, repository.ErrStatusChanged) {
		return true
	}
	return apperrors.IsCode(err, apperrors.CodeConflict) ||
		apperrors.IsCode(err, apperrors.CodeInvalidState)
}
