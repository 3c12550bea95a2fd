package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// SchemaV1 is written into every queued action so the worker can reject documents it does not understand.
const SchemaV1 = "mfa-action/v1"

// Op is a delete operation the worker knows how to perform.
type Op string

const (
	OpTOTPDelete     Op = "totp.delete"
	OpWebAuthnDelete Op = "webauthn.delete"
)

// Valid reports whether o is one of the known operations.
func (o Op) Valid() bool {
	return o == OpTOTPDelete || o == OpWebAuthnDelete
}

// Scope selects which WebAuthn devices a webauthn.delete removes.
type Scope string

const (
	ScopeAll Scope = "all"
	ScopeOne Scope = "one"
)

// Target narrows a webauthn.delete. Scope one requires exactly one of Masked or Index.
type Target struct {
	Scope  Scope  `json:"scope"`
	Masked string `json:"masked,omitempty"`
	Index  *int   `json:"index,omitempty"`
}

// Requester identifies the administrator who queued an action.
type Requester struct {
	AdminUID string `json:"admin_uid"`
	IP       string `json:"ip"`
	UA       string `json:"ua"`
}

// Request asks for one delete-intent to be queued.
type Request struct {
	Op        Op        `json:"op"`
	User      string    `json:"user"`
	Target    *Target   `json:"target,omitempty"`
	Requester Requester `json:"-"`
}

// Action is the queue document. It is immutable once written.
type Action struct {
	Schema    string    `json:"schema"`
	ActionID  string    `json:"action_id"`
	RequestTS int64     `json:"request_ts"`
	Requester Requester `json:"requester"`
	Op        Op        `json:"op"`
	User      string    `json:"user"`
	Target    *Target   `json:"target,omitempty"`
}

// Meta is the side-car copy of an action's context kept in the results directory.
type Meta struct {
	ActionID  string    `json:"action_id"`
	RequestTS int64     `json:"request_ts"`
	Requester Requester `json:"requester"`
	Op        Op        `json:"op"`
	User      string    `json:"user"`
	Target    *Target   `json:"target,omitempty"`
}

// MetaOf returns the side-car for a.
func MetaOf(a *Action) *Meta {
	return &Meta{
		ActionID:  a.ActionID,
		RequestTS: a.RequestTS,
		Requester: a.Requester,
		Op:        a.Op,
		User:      a.User,
		Target:    a.Target,
	}
}

var (
	userPattern     = regexp.MustCompile(`^[A-Za-z0-9._@+-]{1,128}$`)
	actionIDPattern = regexp.MustCompile(`^\d{8}T\d{6}Z-[0-9a-f]{8}$`)
)

// ValidateUser checks a subject against the queue allow-list.
func ValidateUser(user string) error {
	if !userPattern.MatchString(user) {
		return &ValidationError{Field: "user", Reason: "must be 1-128 characters of [A-Za-z0-9._@+-]"}
	}
	return nil
}

// ValidateOp checks op and its target. Non-webauthn ops ignore target entirely.
func ValidateOp(op Op, target *Target) error {
	if !op.Valid() {
		return &ValidationError{Field: "op", Reason: fmt.Sprintf("unknown op %q", op)}
	}
	if op != OpWebAuthnDelete {
		return nil
	}
	if target == nil {
		return &ValidationError{Field: "target", Reason: "webauthn.delete requires a target"}
	}
	switch target.Scope {
	case ScopeAll:
		return nil
	case ScopeOne:
		hasMasked := strings.TrimSpace(target.Masked) != ""
		hasIndex := target.Index != nil
		if hasMasked == hasIndex {
			return &ValidationError{Field: "target", Reason: "scope one requires exactly one of masked or index"}
		}
		if hasIndex && *target.Index < 0 {
			return &ValidationError{Field: "target.index", Reason: "must not be negative"}
		}
		return nil
	default:
		return &ValidationError{Field: "target.scope", Reason: fmt.Sprintf("unknown scope %q", target.Scope)}
	}
}

// NewActionID returns <UTC yyyymmddThhmmssZ>-<8 random hex chars>.
func NewActionID(now time.Time) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return now.UTC().Format("20060102T150405Z") + "-" + hex.EncodeToString(b), nil
}

// ValidActionID reports whether id has the action_id shape. Anything else is never looked up in storage.
func ValidActionID(id string) bool {
	return actionIDPattern.MatchString(id)
}

// QueueName is the queue blob for id.
func QueueName(id string) string { return id + ".json" }

// ResultName is the worker result blob for id.
func ResultName(id string) string { return id + ".json" }

// MetaName is the side-car blob for id in the results directory.
func MetaName(id string) string { return id + ".meta.json" }

// MarkerName is the notification marker for id in the results directory.
func MarkerName(id string) string { return id + ".notified" }

// CompletedName marks that the completion of id has been observed and reported.
func CompletedName(id string) string { return id + ".completed" }
