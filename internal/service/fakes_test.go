package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Clanvaro/unigrc-m-production-sub010/internal/apperrors"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/config"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/repository"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		Weights: config.ScoringWeights{
			RiskScoreFactor:       0.4,
			StrategicPriorityMax:  20,
			PreviousResultBad:     15,
			PreviousResultRegular: 8,
			PreviousResultGood:    2,
			FraudHistory:          15,
			RegulatoryRequirement: 5,
			ManagementRequest:     5,
		},
		RiskThresholds: config.RiskThresholds{Critical: 80, High: 60, Medium: 40},
	}
}

func testSLAConfig() config.SLAConfig {
	return config.SLAConfig{
		Critical: 4 * time.Hour,
		High:     24 * time.Hour,
		Medium:   72 * time.Hour,
		Low:      168 * time.Hour,
	}
}

// ── in-memory ApprovalStore ───────────────────────────────────────────────────

// memApprovalStore mimics the repository's transition semantics: writes are
// guarded on the expected status and escalation records are kept in step
// with item transitions.
type memApprovalStore struct {
	mu          sync.Mutex
	items       map[string]*repository.ApprovalItem
	escalations []*repository.Escalation
}

func newMemApprovalStore() *memApprovalStore {
	return &memApprovalStore{items: make(map[string]*repository.ApprovalItem)}
}

func (m *memApprovalStore) seed(item *repository.ApprovalItem) *repository.ApprovalItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.SubmittedAt.IsZero() {
		item.SubmittedAt = time.Now()
	}
	cp := *item
	m.items[item.ID] = &cp
	return item
}

func (m *memApprovalStore) Create(_ context.Context, item *repository.ApprovalItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now()
	item.SubmittedAt = now
	item.CreatedAt = now
	item.UpdatedAt = now
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memApprovalStore) GetByID(_ context.Context, id string) (*repository.ApprovalItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, apperrors.NotFound("approval_item", id)
	}
	cp := *item
	return &cp, nil
}

func (m *memApprovalStore) ListPending(_ context.Context) ([]*repository.ApprovalItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.ApprovalItem
	for _, item := range m.items {
		if item.Status == repository.StatusPending {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (m *memApprovalStore) List(_ context.Context) ([]*repository.ApprovalItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.ApprovalItem
	for _, item := range m.items {
		cp := *item
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (m *memApprovalStore) Decide(
	_ context.Context,
	id string,
	expected, to repository.ApprovalStatus,
	approverID string,
	reasoning *string,
) (*repository.ApprovalItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, apperrors.NotFound("approval_item", id)
	}
	if item.Status != expected {
		return nil, repository.ErrStatusChanged
	}
	now := time.Now()
	item.Status = to
	item.ApproverID = &approverID
	item.Reasoning = reasoning
	item.DecidedAt = &now
	item.UpdatedAt = now
	for _, esc := range m.escalations {
		if esc.ApprovalItemID == id && esc.ResolvedAt == nil {
			resolved := now
			esc.ResolvedAt = &resolved
		}
	}
	cp := *item
	return &cp, nil
}

func (m *memApprovalStore) Escalate(_ context.Context, id string, esc *repository.Escalation) (*repository.ApprovalItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, apperrors.NotFound("approval_item", id)
	}
	if item.Status != repository.StatusPending {
		return nil, repository.ErrStatusChanged
	}
	if esc.ID == "" {
		esc.ID = uuid.NewString()
	}
	esc.ApprovalItemID = id
	esc.CreatedAt = time.Now()
	cp := *esc
	m.escalations = append(m.escalations, &cp)
	item.Status = repository.StatusEscalated
	item.UpdatedAt = time.Now()
	itemCp := *item
	return &itemCp, nil
}

// memEscalationStore exposes the fake's escalations for dashboard reads.
type memEscalationStore struct {
	store *memApprovalStore
}

func (m *memEscalationStore) ListActive(_ context.Context) ([]*repository.Escalation, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []*repository.Escalation
	for _, esc := range m.store.escalations {
		if esc.ResolvedAt == nil {
			cp := *esc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memEscalationStore) List(_ context.Context) ([]*repository.Escalation, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []*repository.Escalation
	for _, esc := range m.store.escalations {
		cp := *esc
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memEscalationStore) GetActiveByItem(_ context.Context, approvalItemID string) (*repository.Escalation, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, esc := range m.store.escalations {
		if esc.ApprovalItemID == approvalItemID && esc.ResolvedAt == nil {
			cp := *esc
			return &cp, nil
		}
	}
	return nil, nil
}

// contendedApprovalStore fails every guarded write with ErrStatusChanged, as
// if another actor transitioned the item between this caller's read and the
// write. Reads pass through.
type contendedApprovalStore struct {
	*memApprovalStore
}

func (c *contendedApprovalStore) Decide(_ context.Context, _ string, _, _ repository.ApprovalStatus, _ string, _ *string) (*repository.ApprovalItem, error) {
	return nil, repository.ErrStatusChanged
}

func (c *contendedApprovalStore) Escalate(_ context.Context, _ string, _ *repository.Escalation) (*repository.ApprovalItem, error) {
	return nil, repository.ErrStatusChanged
}

// ── in-memory AuditStore ──────────────────────────────────────────────────────

type memAuditStore struct {
	mu      sync.Mutex
	entries []*repository.AuditEntry
}

func (m *memAuditStore) Append(_ context.Context, entry *repository.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.PerformedAt = time.Now()
	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memAuditStore) GetByItemID(_ context.Context, approvalItemID string) ([]*repository.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.AuditEntry
	for _, e := range m.entries {
		if e.ApprovalItemID == approvalItemID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ── recording Notifier ────────────────────────────────────────────────────────

type recordedEvent struct {
	EventType string
	ItemID    string
	ActorID   string
}

type memNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (m *memNotifier) PublishApprovalEvent(_ context.Context, eventType string, item *repository.ApprovalItem, actorID string, _ map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedEvent{EventType: eventType, ItemID: item.ID, ActorID: actorID})
}

// ── in-memory PrioritizationStore ─────────────────────────────────────────────

type memFactorStore struct {
	mu      sync.Mutex
	factors []*repository.PrioritizationFactor
	// failScoreFor simulates a persistence failure for specific factor ids
	// during UpdateScore.
	failScoreFor map[string]bool
}

func newMemFactorStore() *memFactorStore {
	return &memFactorStore{failScoreFor: make(map[string]bool)}
}

func (m *memFactorStore) seed(f *repository.PrioritizationFactor) *repository.PrioritizationFactor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().Add(time.Duration(len(m.factors)) * time.Millisecond)
	}
	cp := *f
	m.factors = append(m.factors, &cp)
	return f
}

func (m *memFactorStore) GetByID(_ context.Context, id string) (*repository.PrioritizationFactor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.factors {
		if f.ID == id {
			cp := *f
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("prioritization_factor", id)
}

func (m *memFactorStore) ListByPlan(_ context.Context, planID string) ([]*repository.PrioritizationFactor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.PrioritizationFactor
	for _, f := range m.factors {
		if f.PlanID == planID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memFactorStore) ListByPlanWithEntity(ctx context.Context, planID string) ([]*repository.FactorWithEntity, error) {
	factors, err := m.ListByPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	var out []*repository.FactorWithEntity
	for _, f := range factors {
		out = append(out, &repository.FactorWithEntity{
			PrioritizationFactor: *f,
			EntityName:           "entity-" + f.UniverseID,
			EntityKind:           "process",
		})
	}
	return out, nil
}

func (m *memFactorStore) UpdateInputs(_ context.Context, f *repository.PrioritizationFactor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.factors {
		if existing.ID == f.ID {
			cp := *f
			cp.CreatedAt = existing.CreatedAt
			*existing = cp
			return nil
		}
	}
	return apperrors.NotFound("prioritization_factor", f.ID)
}

func (m *memFactorStore) UpdateScore(_ context.Context, id string, score, ranking int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failScoreFor[id] {
		return apperrors.New(apperrors.CodeInternal, "simulated write failure")
	}
	for _, f := range m.factors {
		if f.ID == id {
			f.TotalPriorityScore = score
			f.CalculatedRanking = ranking
			f.UpdatedAt = time.Now()
			return nil
		}
	}
	return apperrors.NotFound("prioritization_factor", id)
}
