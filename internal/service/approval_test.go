package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clanvaro/unigrc-m-production-sub010/internal/apperrors"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/repository"
)

type approvalFixture struct {
	store    *memApprovalStore
	audit    *memAuditStore
	notifier *memNotifier
	svc      *ApprovalService
}

func newApprovalFixture() *approvalFixture {
	store := newMemApprovalStore()
	audit := &memAuditStore{}
	notifier := &memNotifier{}
	return &approvalFixture{
		store:    store,
		audit:    audit,
		notifier: notifier,
		svc:      NewApprovalService(store, audit, notifier, zerolog.Nop()),
	}
}

func (f *approvalFixture) pendingItem(level repository.RiskLevel) *repository.ApprovalItem {
	return f.store.seed(&repository.ApprovalItem{
		ItemType:    repository.ItemTypeRisk,
		ItemRef:     "risk-1",
		Title:       "Residual risk increase",
		RiskLevel:   level,
		Status:      repository.StatusPending,
		SubmittedBy: "alice",
	})
}

func TestSubmit(t *testing.T) {
	f := newApprovalFixture()

	item, err := f.svc.Submit(context.Background(), &SubmitRequest{
		ItemType:    "control",
		ItemRef:     "ctl-9",
		Title:       "New segregation-of-duties control",
		RiskLevel:   "high",
		SubmittedBy: "alice",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, repository.StatusPending, item.Status)
	assert.Nil(t, item.DecidedAt)

	trail, err := f.audit.GetByItemID(context.Background(), item.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "submitted", trail[0].Action)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, "approval_submitted", f.notifier.events[0].EventType)
}

func TestSubmitValidation(t *testing.T) {
	f := newApprovalFixture()

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"bad item type", SubmitRequest{ItemType: "policy", ItemRef: "x", RiskLevel: "low", SubmittedBy: "a"}},
		{"missing item ref", SubmitRequest{ItemType: "risk", RiskLevel: "low", SubmittedBy: "a"}},
		{"bad risk level", SubmitRequest{ItemType: "risk", ItemRef: "x", RiskLevel: "severe", SubmittedBy: "a"}},
		{"missing submitter", SubmitRequest{ItemType: "risk", ItemRef: "x", RiskLevel: "low"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), &tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
		})
	}
}

func TestApprove(t *testing.T) {
	f := newApprovalFixture()
	item := f.pendingItem(repository.RiskMedium)

	decided, err := f.svc.Approve(context.Background(), item.ID, "bob", nil)
	require.NoError(t, err)

	assert.Equal(t, repository.StatusApproved, decided.Status)
	require.NotNil(t, decided.ApproverID)
	assert.Equal(t, "bob", *decided.ApproverID)
	assert.NotNil(t, decided.DecidedAt)
}

func TestApproveAlreadyTerminal(t *testing.T) {
	f := newApprovalFixture()
	item := f.pendingItem(repository.RiskMedium)

	_, err := f.svc.Approve(context.Background(), item.ID, "bob", nil)
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), item.ID, "carol", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidState))
}

func TestRejectRequiresReasoning(t *testing.T) {
	f := newApprovalFixture()
	item := f.pendingItem(repository.RiskMedium)

	_, err := f.svc.Reject(context.Background(), item.ID, "bob", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = f.svc.Reject(context.Background(), item.ID, "bob", "   ")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	decided, err := f.svc.Reject(context.Background(), item.ID, "bob", "control design is insufficient")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusRejected, decided.Status)
	require.NotNil(t, decided.Reasoning)
	assert.Equal(t, "control design is insufficient", *decided.Reasoning)
}

func TestApproveMissingApprover(t *testing.T) {
	f := newApprovalFixture()
	item := f.pendingItem(repository.RiskLow)

	_, err := f.svc.Approve(context.Background(), item.ID, "", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestApproveNotFound(t *testing.T) {
	f := newApprovalFixture()

	_, err := f.svc.Approve(context.Background(), "missing", "bob", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestEscalate(t *testing.T) {
	f := newApprovalFixture()
	item := f.pendingItem(repository.RiskHigh)

	esc, err := f.svc.Escalate(context.Background(), item.ID, &EscalateRequest{
		Level:       "director",
		Urgency:     "high",
		Reason:      "decision blocked for two weeks",
		EscalatedBy: "alice",
	})
	require.NoError(t, err)

	assert.Equal(t, repository.EscalationDirector, esc.Level)
	assert.Equal(t, repository.RiskHigh, esc.Urgency)
	assert.Nil(t, esc.ResolvedAt)

	current, err := f.store.GetByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusEscalated, current.Status)
}

func TestEscalateAlreadyEscalated(t *testing.T) {
	f := newApprovalFixture()
	item := f.pendingItem(repository.RiskHigh)

	req := &EscalateRequest{Level: "manager", Urgency: "high", Reason: "stuck", EscalatedBy: "alice"}
	_, err := f.svc.Escalate(context.Background(), item.ID, req)
	require.NoError(t, err)

	// Escalating again is an invalid transition, not a silent no-op.
	_, err = f.svc.Escalate(context.Background(), item.ID, req)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidState))
}

func TestEscalatedItemRemainsDecidable(t *testing.T) {
	f := newApprovalFixture()
	item := f.pendingItem(repository.RiskCritical)

	_, err := f.svc.Escalate(context.Background(), item.ID, &EscalateRequest{
		Level: "executive", Urgency: "critical", Reason: "regulatory deadline", EscalatedBy: "alice",
	})
	require.NoError(t, err)

	decided, err := f.svc.Approve(context.Background(), item.ID, "dana", nil)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, decided.Status)
}

func TestDecisionResolvesEscalation(t *testing.T) {
	f := newApprovalFixture()
	item := f.pendingItem(repository.RiskHigh)

	esc, err := f.svc.Escalate(context.Background(), item.ID, &EscalateRequest{
		Level: "manager", Urgency: "high", Reason: "stalled", EscalatedBy: "alice",
	})
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), item.ID, "bob", nil)
	require.NoError(t, err)

	escStore := &memEscalationStore{store: f.store}
	all, err := escStore.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, esc.ID, all[0].ID)
	assert.NotNil(t, all[0].ResolvedAt)
}

func TestLostDecisionRaceSurfacesConflict(t *testing.T) {
	store := newMemApprovalStore()
	svc := NewApprovalService(&contendedApprovalStore{store}, &memAuditStore{}, nil, zerolog.Nop())

	item := store.seed(&repository.ApprovalItem{
		ItemType:    repository.ItemTypeRisk,
		ItemRef:     "risk-1",
		RiskLevel:   repository.RiskMedium,
		Status:      repository.StatusPending,
		SubmittedBy: "alice",
	})

	// The item reads as decidable, but another actor wins the race before
	// the guarded write lands.
	_, err := svc.Approve(context.Background(), item.ID, "bob", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	_, err = svc.Reject(context.Background(), item.ID, "bob", "too risky")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
}

func TestLostEscalationRaceSurfacesConflict(t *testing.T) {
	store := newMemApprovalStore()
	svc := NewApprovalService(&contendedApprovalStore{store}, &memAuditStore{}, nil, zerolog.Nop())

	item := store.seed(&repository.ApprovalItem{
		ItemType:    repository.ItemTypeRisk,
		ItemRef:     "risk-1",
		RiskLevel:   repository.RiskHigh,
		Status:      repository.StatusPending,
		SubmittedBy: "alice",
	})

	_, err := svc.Escalate(context.Background(), item.ID, &EscalateRequest{
		Level: "manager", Urgency: "high", Reason: "stalled", EscalatedBy: "alice",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
}

func TestBulkApprovePartialFailure(t *testing.T) {
	f := newApprovalFixture()
	pending := f.pendingItem(repository.RiskLow)
	approved := f.pendingItem(repository.RiskLow)

	_, err := f.svc.Approve(context.Background(), approved.ID, "bob", nil)
	require.NoError(t, err)

	results, err := f.svc.BulkApprove(context.Background(), []string{pending.ID, approved.ID, "missing"}, "bob", nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, BulkResult{ID: pending.ID, Success: true}, results[0])
	assert.Equal(t, BulkResult{ID: approved.ID, Success: false, Error: "INVALID_STATE"}, results[1])
	assert.Equal(t, BulkResult{ID: "missing", Success: false, Error: "NOT_FOUND"}, results[2])
}

func TestBulkApproveValidation(t *testing.T) {
	f := newApprovalFixture()

	_, err := f.svc.BulkApprove(context.Background(), nil, "bob", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = f.svc.BulkApprove(context.Background(), []string{"a"}, "", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestHistory(t *testing.T) {
	f := newApprovalFixture()

	item, err := f.svc.Submit(context.Background(), &SubmitRequest{
		ItemType: "risk", ItemRef: "r1", Title: "t", RiskLevel: "high", SubmittedBy: "alice",
	})
	require.NoError(t, err)

	_, err = f.svc.Escalate(context.Background(), item.ID, &EscalateRequest{
		Level: "manager", Urgency: "high", Reason: "stalled", EscalatedBy: "alice",
	})
	require.NoError(t, err)

	_, err = f.svc.Reject(context.Background(), item.ID, "bob", "not justified")
	require.NoError(t, err)

	trail, err := f.svc.History(context.Background(), item.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, "submitted", trail[0].Action)
	assert.Equal(t, "escalated", trail[1].Action)
	assert.Equal(t, "rejected", trail[2].Action)
}

func TestHistoryUnknownItem(t *testing.T) {
	f := newApprovalFixture()

	_, err := f.svc.History(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
