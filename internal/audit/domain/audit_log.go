package domain

import "time"

// Audit actions recorded by the revocation control plane.
const (
	ActionEnqueued = "mfa_action_enqueued"
	ActionBlocked  = "mfa_action_blocked"
	ActionRejected = "mfa_action_rejected"
	ActionNotified = "mfa_action_notified"
)

// AuditLog represents an audit event about one queued action or enqueue attempt.
type AuditLog struct {
	ID        string
	AdminUID  string
	Action    string
	Subject   string
	ActionID  string // empty for attempts rejected before an id was assigned
	IP        string
	Metadata  string
	CreatedAt time.Time
}
