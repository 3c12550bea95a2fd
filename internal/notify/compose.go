package notify

import (
	"fmt"
	"strings"
)

// Outcome is the context of a completed action used to build notification text.
type Outcome struct {
	ActionID string
	Op       string
	User     string
	AdminUID string
	Details  string
}

func describeOp(op string) string {
	switch op {
	case "totp.delete":
		return "authenticator app (TOTP) enrollment"
	case "webauthn.delete":
		return "security key (WebAuthn) registration"
	default:
		if op == "" {
			return "MFA enrollment"
		}
		return op
	}
}

// ComposeOutcome returns the message for the affected subject and the operational alert.
// Recipients are left for the caller to fill.
func ComposeOutcome(o Outcome) (subjectMsg, alert Message) {
	what := describeOp(o.Op)
	admin := o.AdminUID
	if admin == "" {
		admin = "an administrator"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", o.User)
	fmt.Fprintf(&b, "Your %s was removed by %s because the account no longer exists in the directory.\n", what, admin)
	b.WriteString("If you believe this is a mistake, contact your IT administrator.\n\n")
	fmt.Fprintf(&b, "Reference: %s\n", o.ActionID)
	subjectMsg = Message{
		Subject: "Your MFA enrollment was removed",
		Body:    b.String(),
	}

	line := fmt.Sprintf("MFA cleanup: %s removed for %s by %s (action %s)", what, o.User, admin, o.ActionID)
	if d := strings.TrimSpace(o.Details); d != "" {
		line += ": " + d
	}
	alert = Message{
		Subject: "MFA orphan cleanup",
		Body:    line,
	}
	return subjectMsg, alert
}
