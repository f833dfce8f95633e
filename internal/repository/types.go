package repository

import "time"

// ── Enums ─────────────────────────────────────────────────────────────────────

// RiskLevel classifies an approval item (and drives its SLA).
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ValidRiskLevel reports whether s is a known risk level.
func ValidRiskLevel(s string) bool {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// ApprovalStatus is the approval state machine's state.
// pending -> approved | rejected | escalated; escalated -> approved | rejected.
// approved and rejected are terminal; escalated is not.
type ApprovalStatus string

const (
	StatusPending   ApprovalStatus = "pending"
	StatusApproved  ApprovalStatus = "approved"
	StatusRejected  ApprovalStatus = "rejected"
	StatusEscalated ApprovalStatus = "escalated"
)

// Terminal reports whether no further transition is allowed from s.
func (s ApprovalStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Decidable reports whether s accepts an approve/reject decision.
func (s ApprovalStatus) Decidable() bool {
	return s == StatusPending || s == StatusEscalated
}

// ApprovalItemType identifies what kind of change awaits approval.
type ApprovalItemType string

const (
	ItemTypeRisk       ApprovalItemType = "risk"
	ItemTypeControl    ApprovalItemType = "control"
	ItemTypeActionPlan ApprovalItemType = "action_plan"
)

func ValidApprovalItemType(s string) bool {
	switch ApprovalItemType(s) {
	case ItemTypeRisk, ItemTypeControl, ItemTypeActionPlan:
		return true
	}
	return false
}

// PreviousAuditResult categorizes the outcome of the entity's last audit.
type PreviousAuditResult string

const (
	AuditResultNone    PreviousAuditResult = "none"
	AuditResultGood    PreviousAuditResult = "good"
	AuditResultRegular PreviousAuditResult = "regular"
	AuditResultBad     PreviousAuditResult = "bad"
)

func ValidPreviousAuditResult(s string) bool {
	switch PreviousAuditResult(s) {
	case AuditResultNone, AuditResultGood, AuditResultRegular, AuditResultBad:
		return true
	}
	return false
}

// EscalationLevel is the tier an escalation is raised to.
type EscalationLevel string

const (
	EscalationManager   EscalationLevel = "manager"
	EscalationDirector  EscalationLevel = "director"
	EscalationExecutive EscalationLevel = "executive"
)

func ValidEscalationLevel(s string) bool {
	switch EscalationLevel(s) {
	case EscalationManager, EscalationDirector, EscalationExecutive:
		return true
	}
	return false
}

// SystemActor is recorded as the acting user on timer-driven escalations
// and is what the automatic-approval rate counts in the dashboard.
const SystemActor = "system"

// ── Records ───────────────────────────────────────────────────────────────────

// UniverseEntry is an auditable entity (process or subprocess) inside an
// audit plan's universe.
type UniverseEntry struct {
	ID        string    `json:"id"`
	PlanID    string    `json:"planId"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"` // process | subprocess
	CreatedAt time.Time `json:"createdAt"`
}

// PrioritizationFactor holds the scoring inputs and derived outputs for one
// auditable entity in one audit plan.
type PrioritizationFactor struct {
	ID                    string              `json:"id"`
	PlanID                string              `json:"planId"`
	UniverseID            string              `json:"universeId"`
	RiskScore             int                 `json:"riskScore"`         // 0..100, from residual risk
	PreviousAuditResult   PreviousAuditResult `json:"previousAuditResult"`
	StrategicPriority     int                 `json:"strategicPriority"` // 1..3
	FraudHistory          bool                `json:"fraudHistory"`
	RegulatoryRequirement bool                `json:"regulatoryRequirement"`
	ManagementRequest     bool                `json:"managementRequest"`
	EstimatedAuditHours   int                 `json:"estimatedAuditHours"`
	TimeSinceLastAudit    float64             `json:"timeSinceLastAudit"` // years
	TotalPriorityScore    int                 `json:"totalPriorityScore"` // derived, 0..100
	CalculatedRanking     int                 `json:"calculatedRanking"`  // derived, dense 1..N per plan
	RiskLevel             RiskLevel           `json:"riskLevel"`          // derived from TotalPriorityScore, not persisted
	CreatedAt             time.Time           `json:"createdAt"`
	UpdatedAt             time.Time           `json:"updatedAt"`
}

// FactorWithEntity joins a factor with its universe entry for list views.
type FactorWithEntity struct {
	PrioritizationFactor
	EntityName string `json:"entityName"`
	EntityKind string `json:"entityKind"`
}

// ApprovalItem is one thing awaiting approval.
// Invariants: Reasoning is set when Status is rejected; DecidedAt is nil
// iff the item has never been decided.
type ApprovalItem struct {
	ID          string           `json:"id"`
	ItemType    ApprovalItemType `json:"approvalItemType"`
	ItemRef     string           `json:"approvalItemId"` // id of the risk/control/action plan under approval
	Title       string           `json:"title"`
	RiskLevel   RiskLevel        `json:"riskLevel"`
	Status      ApprovalStatus   `json:"approvalStatus"`
	SubmittedBy string           `json:"submittedBy"`
	SubmittedAt time.Time        `json:"submittedAt"`
	ApproverID  *string          `json:"approverId,omitempty"`
	Reasoning   *string          `json:"reasoning,omitempty"`
	DecidedAt   *time.Time       `json:"decidedAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Escalation records one raise of an approval item. At most one unresolved
// escalation exists per item (enforced by a partial unique index).
type Escalation struct {
	ID             string          `json:"id"`
	ApprovalItemID string          `json:"approvalItemId"`
	Level          EscalationLevel `json:"escalationLevel"`
	Urgency        RiskLevel       `json:"urgency"`
	TimeoutHours   int             `json:"timeoutHours"`
	Reason         string          `json:"escalationReason"`
	EscalatedBy    string          `json:"escalatedBy"`
	CreatedAt      time.Time       `json:"createdAt"`
	ResolvedAt     *time.Time      `json:"resolvedAt,omitempty"`
}

// AuditEntry is one immutable record in the approval audit log.
type AuditEntry struct {
	ID             string                 `json:"id"`
	ApprovalItemID string                 `json:"approvalItemId"`
	Action         string                 `json:"action"` // submitted | approved | rejected | escalated | auto_escalated
	PerformedBy    string                 `json:"performedBy"`
	PerformedAt    time.Time              `json:"performedAt"`
	StatusBefore   *string                `json:"statusBefore,omitempty"`
	StatusAfter    *string                `json:"statusAfter,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}
