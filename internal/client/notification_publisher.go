package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/Clanvaro/unigrc-m-production-sub010/internal/repository"
)

// NotificationPublisher publishes approval workflow events to NATS for
// consumption by the notifications service (email/in-app delivery).
//
// Subject convention: notifications.grc.<event_type>
// Event types: approval_submitted, approval_approved, approval_rejected,
//              approval_escalated
//
// All publish operations are non-fatal — errors are logged but never
// propagated to the caller, so notification failures never interrupt
// approval operations.
type NotificationPublisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	ActorID      string                 `json:"actor_id"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	ItemType     string                 `json:"item_type,omitempty"`
	RiskLevel    string                 `json:"risk_level,omitempty"`
	Status       string                 `json:"status,omitempty"`
	Severity     string                 `json:"severity,omitempty"`
	Category     string                 `json:"category,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection disables publishing.
func NewNotificationPublisher(conn *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, log: log}
}

// PublishApprovalEvent publishes a GRC approval event.
// Subject: notifications.grc.<eventType>
func (p *NotificationPublisher) PublishApprovalEvent(
	_ context.Context,
	eventType string,
	item *repository.ApprovalItem,
	actorID string,
	payload map[string]interface{},
) {
	if p.conn == nil || item == nil {
		return
	}

	severity := "info"
	if item.RiskLevel == repository.RiskHigh || item.RiskLevel == repository.RiskCritical {
		severity = "warning"
	}

	event := &NotificationEvent{
		EventType:    eventType,
		ActorID:      actorID,
		ResourceType: "approval_item",
		ResourceID:   item.ID,
		ItemType:     string(item.ItemType),
		RiskLevel:    string(item.RiskLevel),
		Status:       string(item.Status),
		Severity:     severity,
		Category:     "grc_approval",
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.grc.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("item_id", item.ID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("item_id", item.ID).
		Msg("notification: event published")
}
