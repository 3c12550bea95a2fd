package main

import (
	"errors"
	"strings"
	"testing"

	"mfa-orphans/internal/action/domain"
	"mfa-orphans/internal/converge"
	"mfa-orphans/internal/orphan"
)

func TestParseOp(t *testing.T) {
	tests := []struct {
		in   string
		want domain.Op
	}{
		{"totp", domain.OpTOTPDelete},
		{"TOTP", domain.OpTOTPDelete},
		{"totp.delete", domain.OpTOTPDelete},
		{"webauthn", domain.OpWebAuthnDelete},
		{" webauthn.delete ", domain.OpWebAuthnDelete},
	}
	for _, tt := range tests {
		got, err := parseOp(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseOp(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := parseOp("sms"); err == nil {
		t.Error("parseOp(sms) should fail")
	}
}

func TestBuildTarget(t *testing.T) {
	if tgt, err := buildTarget(domain.OpTOTPDelete, "one", "x", 3); err != nil || tgt != nil {
		t.Errorf("totp target = %+v, %v; want nil", tgt, err)
	}
	tgt, err := buildTarget(domain.OpWebAuthnDelete, "one", "", 1)
	if err != nil || tgt.Index == nil || *tgt.Index != 1 || tgt.Masked != "" {
		t.Errorf("index target = %+v, %v", tgt, err)
	}
	tgt, err = buildTarget(domain.OpWebAuthnDelete, "all", "ignored", 2)
	if err != nil || tgt.Index != nil || tgt.Masked != "" {
		t.Errorf("scope all must drop selectors, got %+v, %v", tgt, err)
	}
	if _, err := buildTarget(domain.OpWebAuthnDelete, "one", "abc", 0); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("both selectors: err = %v, want ErrValidation", err)
	}
	if _, err := buildTarget(domain.OpWebAuthnDelete, "one", "", -1); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("no selector: err = %v, want ErrValidation", err)
	}
}

func TestRequestsFromOrphans(t *testing.T) {
	res := &orphan.Result{
		TOTP:     []string{"ghost", "old@example.com"},
		WebAuthn: []orphan.WebAuthnOrphan{{Subject: "ghost", Count: 2}},
	}
	reqs := requestsFromOrphans(res, true, true)
	if len(reqs) != 3 {
		t.Fatalf("len = %d, want 3", len(reqs))
	}
	if reqs[2].Op != domain.OpWebAuthnDelete || reqs[2].Target == nil || reqs[2].Target.Scope != domain.ScopeAll {
		t.Errorf("webauthn request = %+v", reqs[2])
	}
	if got := requestsFromOrphans(res, false, true); len(got) != 1 {
		t.Errorf("webauthn only = %d requests, want 1", len(got))
	}

	want := converge.WantMap{}
	for _, r := range reqs {
		w, ok := converge.WantFor(r, nil)
		if !ok {
			t.Fatalf("WantFor(%+v) not tracked", r)
		}
		want.Add(r.User, w)
	}
	if len(want) != 2 || want.Tries() != converge.BulkTries {
		t.Errorf("want = %v, tries = %d", want, want.Tries())
	}
}

func TestReadRequests(t *testing.T) {
	for _, in := range []string{
		`[{"op":"totp.delete","user":"ghost"}]`,
		`{"actions":[{"op":"totp.delete","user":"ghost"}]}`,
	} {
		reqs, err := readRequests(strings.NewReader(in))
		if err != nil || len(reqs) != 1 || reqs[0].User != "ghost" {
			t.Errorf("readRequests(%s) = %+v, %v", in, reqs, err)
		}
	}
	if _, err := readRequests(strings.NewReader(`nope`)); err == nil {
		t.Error("garbage input should fail")
	}
}

func TestSummarizeRows(t *testing.T) {
	rows := []converge.Row{
		{Subject: "a", Dimension: converge.DimTOTP},
		{Subject: "b", Dimension: converge.DimWebAuthn},
		{Subject: "c", Dimension: converge.DimTOTP},
	}
	if got := summarizeRows(rows, 2); got != "a/totp, b/webauthn, +1 more" {
		t.Errorf("summarizeRows = %q", got)
	}
}
