package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateUser(t *testing.T) {
	valid := []string{"alice", "a.b-c_d", "user+tag@example.com", strings.Repeat("x", 128)}
	for _, u := range valid {
		if err := ValidateUser(u); err != nil {
			t.Errorf("ValidateUser(%q) = %v, want nil", u, err)
		}
	}
	invalid := []string{"", "a b", "../etc/passwd", "x;rm", "ü", strings.Repeat("x", 129), "a/b"}
	for _, u := range invalid {
		err := ValidateUser(u)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("ValidateUser(%q) = %v, want ErrValidation", u, err)
		}
	}
}

func TestValidateOp(t *testing.T) {
	zero, neg := 0, -1
	tests := []struct {
		name    string
		op      Op
		target  *Target
		wantErr bool
	}{
		{"totp", OpTOTPDelete, nil, false},
		{"totp ignores target", OpTOTPDelete, &Target{Scope: "bogus"}, false},
		{"unknown op", Op("totp.reset"), nil, true},
		{"webauthn without target", OpWebAuthnDelete, nil, true},
		{"webauthn all", OpWebAuthnDelete, &Target{Scope: ScopeAll}, false},
		{"webauthn one masked", OpWebAuthnDelete, &Target{Scope: ScopeOne, Masked: "abcd…wxyz"}, false},
		{"webauthn one index", OpWebAuthnDelete, &Target{Scope: ScopeOne, Index: &zero}, false},
		{"webauthn one neither", OpWebAuthnDelete, &Target{Scope: ScopeOne}, true},
		{"webauthn one both", OpWebAuthnDelete, &Target{Scope: ScopeOne, Masked: "m", Index: &zero}, true},
		{"webauthn one negative index", OpWebAuthnDelete, &Target{Scope: ScopeOne, Index: &neg}, true},
		{"webauthn unknown scope", OpWebAuthnDelete, &Target{Scope: "some"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOp(tt.op, tt.target)
			if tt.wantErr && !errors.Is(err, ErrValidation) {
				t.Errorf("ValidateOp = %v, want ErrValidation", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateOp = %v, want nil", err)
			}
		})
	}
}

func TestNewActionID_Format(t *testing.T) {
	now := time.Date(2024, 3, 9, 7, 5, 1, 0, time.FixedZone("X", 3600))
	id, err := NewActionID(now)
	if err != nil {
		t.Fatalf("NewActionID: %v", err)
	}
	if !ValidActionID(id) {
		t.Errorf("id %q does not match action_id pattern", id)
	}
	if !strings.HasPrefix(id, "20240309T060501Z-") {
		t.Errorf("id %q should carry the UTC timestamp", id)
	}
}

func TestNewActionID_Distinct(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id, err := NewActionID(now)
		if err != nil {
			t.Fatalf("NewActionID: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate action_id %q after %d ids", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestValidActionID_RejectsPaths(t *testing.T) {
	for _, id := range []string{"", "../20240101T000000Z-deadbeef", "20240101T000000Z-DEADBEEF", "20240101T000000Z-deadbee", "x"} {
		if ValidActionID(id) {
			t.Errorf("ValidActionID(%q) = true", id)
		}
	}
}

func TestResult_Classify(t *testing.T) {
	tests := []struct {
		raw    string
		legacy bool
		want   Outcome
	}{
		{`{"success":true}`, false, OutcomeSucceeded},
		{`{"success":false,"details":"success anyway"}`, true, OutcomeFailed},
		{`{"details":"Success: removed"}`, false, OutcomeUnknown},
		{`{"details":"Success: removed"}`, true, OutcomeSucceeded},
		{`{"details":"ldap error"}`, true, OutcomeUnknown},
		{`{"details":"  success"}`, true, OutcomeSucceeded},
		{`{"details":"SUCCESS - 2 devices removed"}`, true, OutcomeSucceeded},
		{`{"details":"Unsuccessful: ldap timeout"}`, true, OutcomeUnknown},
		{`{"details":"delete not successful"}`, true, OutcomeUnknown},
		{`{"details":"successor key rotated"}`, true, OutcomeUnknown},
	}
	for _, tt := range tests {
		r, err := ParseResult([]byte(tt.raw))
		if err != nil {
			t.Fatalf("ParseResult(%s): %v", tt.raw, err)
		}
		if got := r.Classify(tt.legacy); got != tt.want {
			t.Errorf("Classify(%s, legacy=%v) = %v, want %v", tt.raw, tt.legacy, got, tt.want)
		}
		if string(r.Raw) != tt.raw {
			t.Errorf("Raw = %s, want verbatim", r.Raw)
		}
	}
}

func TestWorkerFailureError_Unconfirmed(t *testing.T) {
	err := &WorkerFailureError{ActionID: "id", Details: "ldap error", Unconfirmed: true}
	if !errors.Is(err, ErrWorkerFailure) {
		t.Error("unconfirmed result should still match ErrWorkerFailure")
	}
	if !strings.Contains(err.Error(), "no success flag") || !strings.Contains(err.Error(), "ldap error") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWorkerFailureError_Is(t *testing.T) {
	var err error = &WorkerFailureError{ActionID: "id", Details: "boom"}
	if !errors.Is(err, ErrWorkerFailure) {
		t.Error("WorkerFailureError should match ErrWorkerFailure")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("Error() = %q, want details", err.Error())
	}
}
