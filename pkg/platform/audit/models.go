package audit

import (
	"context"
	"time"

	id "kycverify/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers decisions with regulatory significance. These
	// are never sampled or dropped.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine lifecycle activity.
	CategoryOperations EventCategory = "operations"
)

// Action names a verification lifecycle step.
type Action string

const (
	ActionVerificationCreated   Action = "verification_created"
	ActionVerificationDecided   Action = "verification_decided"
	ActionVerificationFailed    Action = "verification_failed"
	ActionVerificationStale     Action = "verification_stale"
	ActionWebhookDeliveryFailed Action = "webhook_delivery_failed"
)

var actionCategories = map[Action]EventCategory{
	ActionVerificationCreated:   CategoryOperations,
	ActionVerificationDecided:   CategoryCompliance,
	ActionVerificationFailed:    CategoryCompliance,
	ActionVerificationStale:     CategoryCompliance,
	ActionWebhookDeliveryFailed: CategoryOperations,
}

// Category returns the category for the action. Unknown actions are operational.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from the verification lifecycle. Keep it transport-agnostic
// so stores and sinks can fan out.
type Event struct {
	ID             string
	Timestamp      time.Time
	Action         Action
	ProjectID      id.ProjectID
	VerificationID id.VerificationID
	// Decision is the verification status reached, when the action records one.
	Decision  string
	Reason    string
	RequestID string
	// Details carries small scalar annotations such as risk level or score.
	Details map[string]string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// OutboxEntry is a persisted event awaiting relay to the event stream.
type OutboxEntry struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}
