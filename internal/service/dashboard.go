package service

import (
	"context"
	"sort"
	"time"

	"github.com/Clanvaro/unigrc-m-production-sub010/internal/config"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/repository"
)

// EscalationStore is the read surface the dashboard needs for escalations.
type EscalationStore interface {
	ListActive(ctx context.Context) ([]*repository.Escalation, error)
	List(ctx context.Context) ([]*repository.Escalation, error)
	GetActiveByItem(ctx context.Context, approvalItemID string) (*repository.Escalation, error)
}

// DashboardService computes read-only projections over the approval-item and
// escalation collections. Everything is recomputed on demand; every ratio is
// zero-guarded so sparse or empty data yields zeros, never NaN.
type DashboardService struct {
	items       ApprovalStore
	escalations EscalationStore
	sla         config.SLAConfig
	trendDays   int
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(items ApprovalStore, escalations EscalationStore, sla config.SLAConfig, trendDays int) *DashboardService {
	if trendDays < 1 {
		trendDays = 30
	}
	return &DashboardService{items: items, escalations: escalations, sla: sla, trendDays: trendDays}
}

// Summary is the headline dashboard block.
type Summary struct {
	DecidedToday      int     `json:"decidedToday"`
	Pending           int     `json:"pending"`
	Overdue           int     `json:"overdue"`
	ActiveEscalations int     `json:"activeEscalations"`
	AutoApprovalRate  float64 `json:"autoApprovalRate"`
}

// DailyTrend is one day's approval count.
type DailyTrend struct {
	Date      string `json:"date"` // YYYY-MM-DD
	Approvals int    `json:"approvals"`
}

// Performance aggregates decision quality metrics.
type Performance struct {
	ApprovalRate       float64 `json:"approvalRate"`       // approved / (approved + rejected)
	AvgProcessingHours float64 `json:"avgProcessingHours"` // mean(decidedAt - submittedAt) over decided items
	EscalationRate     float64 `json:"escalationRate"`     // items escalated at least once / total items
	TotalDecided       int     `json:"totalDecided"`
}

// ApproverCount is one leaderboard row.
type ApproverCount struct {
	ApproverID string `json:"approverId"`
	Decisions  int    `json:"decisions"`
}

// Breakdown groups items by risk level and ranks approvers.
type Breakdown struct {
	ByRiskLevel  map[repository.RiskLevel]int `json:"byRiskLevel"`
	TopApprovers []ApproverCount              `json:"topApprovers"`
}

// Report is the full dashboard payload.
type Report struct {
	Summary   Summary      `json:"summary"`
	Trends    []DailyTrend `json:"trends"`
	Breakdown Breakdown    `json:"breakdown"`
}

const topApproverLimit = 5

// Dashboard assembles the summary, trend series and breakdowns.
func (s *DashboardService) Dashboard(ctx context.Context, now time.Time) (*Report, error) {
	items, err := s.items.List(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.escalations.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	return &Report{
		Summary:   s.summarize(items, active, now),
		Trends:    s.dailyTrends(items, now),
		Breakdown: s.breakdown(items),
	}, nil
}

// Metrics computes the performance block.
func (s *DashboardService) Metrics(ctx context.Context) (*Performance, error) {
	items, err := s.items.List(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.escalations.List(ctx)
	if err != nil {
		return nil, err
	}
	perf := s.performance(items, all)
	return &perf, nil
}

// ActiveEscalations lists unresolved escalations, oldest first.
func (s *DashboardService) ActiveEscalations(ctx context.Context) ([]*repository.Escalation, error) {
	active, err := s.escalations.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		active = []*repository.Escalation{}
	}
	return active, nil
}

// ItemEscalation returns the item's unresolved escalation, or nil when the
// item is not currently escalated.
func (s *DashboardService) ItemEscalation(ctx context.Context, itemID string) (*repository.Escalation, error) {
	return s.escalations.GetActiveByItem(ctx, itemID)
}

// AllEscalations lists every escalation ever raised.
func (s *DashboardService) AllEscalations(ctx context.Context) ([]*repository.Escalation, error) {
	all, err := s.escalations.List(ctx)
	if err != nil {
		return nil, err
	}
	if all == nil {
		all = []*repository.Escalation{}
	}
	return all, nil
}

// ── aggregation helpers ───────────────────────────────────────────────────────

func (s *DashboardService) summarize(items []*repository.ApprovalItem, active []*repository.Escalation, now time.Time) Summary {
	sum := Summary{ActiveEscalations: len(active)}

	// Midnight in now's own location, so "today" follows the caller's
	// timezone rather than the UTC epoch day.
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	decisions, autoDecisions := 0, 0

	for _, item := range items {
		switch item.Status {
		case repository.StatusPending:
			sum.Pending++
			if now.Sub(item.SubmittedAt) > SLAThreshold(item.RiskLevel, s.sla) {
				sum.Overdue++
			}
		case repository.StatusApproved, repository.StatusRejected:
			decisions++
			if item.ApproverID != nil && *item.ApproverID == repository.SystemActor {
				autoDecisions++
			}
			if item.DecidedAt != nil && !item.DecidedAt.Before(today) {
				sum.DecidedToday++
			}
		}
	}

	if decisions > 0 {
		sum.AutoApprovalRate = float64(autoDecisions) / float64(decisions)
	}
	return sum
}

func (s *DashboardService) dailyTrends(items []*repository.ApprovalItem, now time.Time) []DailyTrend {
	counts := make(map[string]int)
	for _, item := range items {
		if item.Status != repository.StatusApproved || item.DecidedAt == nil {
			continue
		}
		counts[item.DecidedAt.Format("2006-01-02")]++
	}

	trends := make([]DailyTrend, 0, s.trendDays)
	for i := s.trendDays - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")
		trends = append(trends, DailyTrend{Date: day, Approvals: counts[day]})
	}
	return trends
}

func (s *DashboardService) performance(items []*repository.ApprovalItem, escalations []*repository.Escalation) Performance {
	var perf Performance

	approved, rejected := 0, 0
	var totalProcessing time.Duration
	decidedWithTimes := 0

	for _, item := range items {
		switch item.Status {
		case repository.StatusApproved:
			approved++
		case repository.StatusRejected:
			rejected++
		default:
			continue
		}
		if item.DecidedAt != nil {
			totalProcessing += item.DecidedAt.Sub(item.SubmittedAt)
			decidedWithTimes++
		}
	}

	perf.TotalDecided = approved + rejected
	if perf.TotalDecided > 0 {
		perf.ApprovalRate = float64(approved) / float64(perf.TotalDecided)
	}
	if decidedWithTimes > 0 {
		perf.AvgProcessingHours = totalProcessing.Hours() / float64(decidedWithTimes)
	}

	// Escalation rate counts items that were escalated at least once over
	// their lifetime, not only those currently in the escalated state.
	escalatedItems := make(map[string]struct{})
	for _, esc := range escalations {
		escalatedItems[esc.ApprovalItemID] = struct{}{}
	}
	if len(items) > 0 {
		perf.EscalationRate = float64(len(escalatedItems)) / float64(len(items))
	}

	return perf
}

func (s *DashboardService) breakdown(items []*repository.ApprovalItem) Breakdown {
	b := Breakdown{
		ByRiskLevel: map[repository.RiskLevel]int{
			repository.RiskLow:      0,
			repository.RiskMedium:   0,
			repository.RiskHigh:     0,
			repository.RiskCritical: 0,
		},
		TopApprovers: []ApproverCount{},
	}

	byApprover := make(map[string]int)
	for _, item := range items {
		b.ByRiskLevel[item.RiskLevel]++
		if item.Status.Terminal() && item.ApproverID != nil {
			byApprover[*item.ApproverID]++
		}
	}

	for id, n := range byApprover {
		b.TopApprovers = append(b.TopApprovers, ApproverCount{ApproverID: id, Decisions: n})
	}
	sort.Slice(b.TopApprovers, func(i, j int) bool {
		if b.TopApprovers[i].Decisions != b.TopApprovers[j].Decisions {
			return b.TopApprovers[i].Decisions > b.TopApprovers[j].Decisions
		}
		return b.TopApprovers[i].ApproverID < b.TopApprovers[j].ApproverID
	})
	if len(b.TopApprovers) > topApproverLimit {
		b.TopApprovers = b.TopApprovers[:topApproverLimit]
	}

	return b
}
