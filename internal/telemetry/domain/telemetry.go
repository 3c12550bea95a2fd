package domain

import (
	"encoding/json"
	"time"
)

// Event types emitted by the control plane.
const (
	EventActionEnqueued  = "mfa.action.enqueued"
	EventActionBlocked   = "mfa.action.blocked"
	EventActionCompleted = "mfa.action.completed"
	EventNotifySent      = "mfa.notify.sent"
	EventNotifyFailed    = "mfa.notify.failed"
)

// Event is a telemetry event about one action. It is the Kafka message value and the OTel log body source.
type Event struct {
	ID        string          `json:"id"`
	EventType string          `json:"eventType"`
	Source    string          `json:"source"`
	ActionID  string          `json:"actionId,omitempty"`
	Op        string          `json:"op,omitempty"`
	Subject   string          `json:"subject,omitempty"`
	AdminUID  string          `json:"adminUid,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
