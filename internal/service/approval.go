package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Clanvaro/unigrc-m-production-sub010/internal/apperrors"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/repository"
)

// ApprovalStore is the persistence surface of the approval state machine.
type ApprovalStore interface {
	Create(ctx context.Context, item *repository.ApprovalItem) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalItem, error)
	ListPending(ctx context.Context) ([]*repository.ApprovalItem, error)
	List(ctx context.Context) ([]*repository.ApprovalItem, error)
	Decide(ctx context.Context, id string, expected, to repository.ApprovalStatus, approverID string, reasoning *string) (*repository.ApprovalItem, error)
	Escalate(ctx context.Context, id string, esc *repository.Escalation) (*repository.ApprovalItem, error)
}

// AuditStore appends immutable audit trail entries.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	GetByItemID(ctx context.Context, approvalItemID string) ([]*repository.AuditEntry, error)
}

// Notifier publishes workflow events. Implementations never return errors;
// notification failure must not interrupt an approval operation.
type Notifier interface {
	PublishApprovalEvent(ctx context.Context, eventType string, item *repository.ApprovalItem, actorID string, payload map[string]interface{})
}

// ApprovalService drives the approval state machine:
// pending -> approved | rejected | escalated, with escalated items returning
// to the decision pool. Approved and rejected are terminal.
type ApprovalService struct {
	items    ApprovalStore
	audit    AuditStore
	notifier Notifier
	log      zerolog.Logger
}

// NewApprovalService creates a new ApprovalService. notifier may be nil when
// eventing is disabled.
func NewApprovalService(items ApprovalStore, audit AuditStore, notifier Notifier, log zerolog.Logger) *ApprovalService {
	return &ApprovalService{items: items, audit: audit, notifier: notifier, log: log}
}

// ── Submission ────────────────────────────────────────────────────────────────

// SubmitRequest creates a new item awaiting approval.
type SubmitRequest struct {
	ItemType    string `json:"approvalItemType"`
	ItemRef     string `json:"approvalItemId"`
	Title       string `json:"title"`
	RiskLevel   string `json:"riskLevel"`
	SubmittedBy string `json:"submittedBy"`
}

// Submit registers a change for approval; the item starts out pending.
func (s *ApprovalService) Submit(ctx context.Context, req *SubmitRequest) (*repository.ApprovalItem, error) {
	if !repository.ValidApprovalItemType(req.ItemType) {
		return nil, apperrors.InvalidInput("approvalItemType", "must be one of risk, control, action_plan")
	}
	if req.ItemRef == "" {
		return nil, apperrors.InvalidInput("approvalItemId", "is required")
	}
	if !repository.ValidRiskLevel(req.RiskLevel) {
		return nil, apperrors.InvalidInput("riskLevel", "must be one of low, medium, high, critical")
	}
	if strings.TrimSpace(req.SubmittedBy) == "" {
		return nil, apperrors.InvalidInput("submittedBy", "is required")
	}

	item := &repository.ApprovalItem{
		ItemType:    repository.ApprovalItemType(req.ItemType),
		ItemRef:     req.ItemRef,
		Title:       req.Title,
		RiskLevel:   repository.RiskLevel(req.RiskLevel),
		Status:      repository.StatusPending,
		SubmittedBy: req.SubmittedBy,
	}

	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, item.ID, "submitted", req.SubmittedBy, nil, strPtr(string(repository.StatusPending)), map[string]interface{}{
		"item_type": req.ItemType,
		"item_ref":  req.ItemRef,
	})
	s.notify(ctx, "approval_submitted", item, req.SubmittedBy, nil)

	s.log.Info().
		Str("item_id", item.ID).
		Str("item_type", string(item.ItemType)).
		Str("risk_level", string(item.RiskLevel)).
		Msg("Approval item submitted")

	return item, nil
}

// ── Decisions ─────────────────────────────────────────────────────────────────

// Approve decides an item positively. Valid from pending or escalated;
// reasoning is optional.
func (s *ApprovalService) Approve(ctx context.Context, id, approverID string, reasoning *string) (*repository.ApprovalItem, error) {
	if strings.TrimSpace(approverID) == "" {
		return nil, apperrors.InvalidInput("approverId", "is required")
	}
	return s.decide(ctx, id, repository.StatusApproved, approverID, reasoning)
}

// Reject decides an item negatively. Valid from pending or escalated;
// reasoning is mandatory.
func (s *ApprovalService) Reject(ctx context.Context, id, approverID string, reasoning string) (*repository.ApprovalItem, error) {
	if strings.TrimSpace(approverID) == "" {
		return nil, apperrors.InvalidInput("approverId", "is required")
	}
	if strings.TrimSpace(reasoning) == "" {
		return nil, apperrors.InvalidInput("reasoning", "rejection reasoning is required")
	}
	return s.decide(ctx, id, repository.StatusRejected, approverID, &reasoning)
}

func (s *ApprovalService) decide(ctx context.Context, id string, to repository.ApprovalStatus, approverID string, reasoning *string) (*repository.ApprovalItem, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.Status.Decidable() {
		return nil, apperrors.InvalidState(
			fmt.Sprintf("approval item is %s and cannot be decided", item.Status))
	}

	before := item.Status
	decided, err := s.items.Decide(ctx, id, before, to, approverID, reasoning)
	if errors.Is(err, repository.ErrStatusChanged) {
		return nil, apperrors.Conflict("approval item was modified by another actor, refetch and retry")
	}
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, id, string(to), approverID, strPtr(string(before)), strPtr(string(to)), auditReasonMeta(reasoning))
	s.notify(ctx, "approval_"+string(to), decided, approverID, nil)

	s.log.Info().
		Str("item_id", id).
		Str("status", string(to)).
		Str("approver_id", approverID).
		Msg("Approval decision recorded")

	return decided, nil
}

// ── Escalation ────────────────────────────────────────────────────────────────

// EscalateRequest raises an item to a higher approval tier.
type EscalateRequest struct {
	Level       string `json:"escalationLevel"`
	Urgency     string `json:"urgency"`
	Reason      string `json:"escalationReason"`
	EscalatedBy string `json:"escalatedBy"`
	// TimeoutHours bounds how long the escalation may stay open before the
	// next tier is expected to act. Zero means the SLA default for the
	// item's risk level.
	TimeoutHours int `json:"timeoutHours"`
}

// Escalate moves a pending item into the escalated state and opens an
// escalation record. Escalating an item that is already escalated (or
// terminal) fails with an invalid-state error rather than silently
// ignoring the caller's level and urgency.
func (s *ApprovalService) Escalate(ctx context.Context, id string, req *EscalateRequest) (*repository.Escalation, error) {
	if !repository.ValidEscalationLevel(req.Level) {
		return nil, apperrors.InvalidInput("escalationLevel", "must be one of manager, director, executive")
	}
	if !repository.ValidRiskLevel(req.Urgency) {
		return nil, apperrors.InvalidInput("urgency", "must be one of low, medium, high, critical")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, apperrors.InvalidInput("escalationReason", "is required")
	}
	if strings.TrimSpace(req.EscalatedBy) == "" {
		return nil, apperrors.InvalidInput("escalatedBy", "is required")
	}
	if req.TimeoutHours < 0 {
		return nil, apperrors.InvalidInput("timeoutHours", "cannot be negative")
	}

	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != repository.StatusPending {
		return nil, apperrors.InvalidState(
			fmt.Sprintf("only pending items can be escalated, item is %s", item.Status))
	}

	esc := &repository.Escalation{
		Level:        repository.EscalationLevel(req.Level),
		Urgency:      repository.RiskLevel(req.Urgency),
		TimeoutHours: req.TimeoutHours,
		Reason:       req.Reason,
		EscalatedBy:  req.EscalatedBy,
	}

	escalated, err := s.items.Escalate(ctx, id, esc)
	if errors.Is(err, repository.ErrStatusChanged) {
		return nil, apperrors.Conflict("approval item was modified by another actor, refetch and retry")
	}
	if err != nil {
		return nil, err
	}

	action := "escalated"
	if req.EscalatedBy == repository.SystemActor {
		action = "auto_escalated"
	}
	s.appendAudit(ctx, id, action, req.EscalatedBy,
		strPtr(string(repository.StatusPending)), strPtr(string(repository.StatusEscalated)),
		map[string]interface{}{
			"escalation_level": req.Level,
			"urgency":          req.Urgency,
			"reason":           req.Reason,
		})
	s.notify(ctx, "approval_escalated", escalated, req.EscalatedBy, map[string]interface{}{
		"escalation_level": req.Level,
		"urgency":          req.Urgency,
	})

	s.log.Info().
		Str("item_id", id).
		Str("level", req.Level).
		Str("urgency", req.Urgency).
		Str("escalated_by", req.EscalatedBy).
		Msg("Approval item escalated")

	return esc, nil
}

// ── Bulk operations ───────────────────────────────────────────────────────────

// BulkResult reports the outcome for one item of a bulk operation.
type BulkResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BulkApprove approves each listed item independently, continuing past
// failures. Deliberately not transactional across items: each id gets its
// own approve with its own outcome.
func (s *ApprovalService) BulkApprove(ctx context.Context, ids []string, approverID string, reasoning *string) ([]BulkResult, error) {
	if len(ids) == 0 {
		return nil, apperrors.InvalidInput("ids", "at least one item id is required")
	}
	if strings.TrimSpace(approverID) == "" {
		return nil, apperrors.InvalidInput("approverId", "is required")
	}

	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		res := BulkResult{ID: id, Success: true}
		if _, err := s.Approve(ctx, id, approverID, reasoning); err != nil {
			res.Success = false
			res.Error = string(apperrors.CodeOf(err))
		}
		results = append(results, res)
	}
	return results, nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

// GetItem returns one approval item.
func (s *ApprovalService) GetItem(ctx context.Context, id string) (*repository.ApprovalItem, error) {
	return s.items.GetByID(ctx, id)
}

// ListPending returns all items awaiting a decision, oldest first.
func (s *ApprovalService) ListPending(ctx context.Context) ([]*repository.ApprovalItem, error) {
	items, err := s.items.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*repository.ApprovalItem{}
	}
	return items, nil
}

// History returns the audit trail for an item, oldest first.
func (s *ApprovalService) History(ctx context.Context, id string) ([]*repository.AuditEntry, error) {
	if _, err := s.items.GetByID(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.audit.GetByItemID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*repository.AuditEntry{}
	}
	return entries, nil
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// appendAudit writes an audit entry and logs a warning on failure; the
// audit trail is best-effort and never fails the operation.
func (s *ApprovalService) appendAudit(ctx context.Context, itemID, action, performedBy string, before, after *string, metadata map[string]interface{}) {
	entry := &repository.AuditEntry{
		ApprovalItemID: itemID,
		Action:         action,
		PerformedBy:    performedBy,
		StatusBefore:   before,
		StatusAfter:    after,
		Metadata:       metadata,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("item_id", itemID).
			Str("action", action).
			Msg("Failed to write audit log entry")
	}
}

func (s *ApprovalService) notify(ctx context.Context, eventType string, item *repository.ApprovalItem, actorID string, payload map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishApprovalEvent(ctx, eventType, item, actorID, payload)
}

func auditReasonMeta(reasoning *string) map[string]interface{} {
	if reasoning == nil || *reasoning == "" {
		return nil
	}
	return map[string]interface{}{"reasoning": *reasoning}
}

func strPtr(s string) *string { return &s }
