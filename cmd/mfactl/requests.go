package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"mfa-orphans/internal/action/domain"
	"mfa-orphans/internal/orphan"
)

// parseOp accepts the short forms "totp" and "webauthn" as well as the wire names.
func parseOp(s string) (domain.Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "totp", string(domain.OpTOTPDelete):
		return domain.OpTOTPDelete, nil
	case "webauthn", string(domain.OpWebAuthnDelete):
		return domain.OpWebAuthnDelete, nil
	default:
		return "", fmt.Errorf("unknown op %q (want totp or webauthn)", s)
	}
}

// buildTarget returns nil for totp. index < 0 means unset.
func buildTarget(op domain.Op, scope, masked string, index int) (*domain.Target, error) {
	if op != domain.OpWebAuthnDelete {
		return nil, nil
	}
	t := &domain.Target{Scope: domain.Scope(scope)}
	if t.Scope == domain.ScopeOne {
		t.Masked = masked
		if index >= 0 {
			i := index
			t.Index = &i
		}
	}
	if err := domain.ValidateOp(op, t); err != nil {
		return nil, err
	}
	return t, nil
}

// requestsFromOrphans turns an orphan report into delete requests: one totp.delete per TOTP
// orphan and one scope-all webauthn.delete per WebAuthn orphan.
func requestsFromOrphans(res *orphan.Result, totp, webauthn bool) []domain.Request {
	var reqs []domain.Request
	if totp {
		for _, s := range res.TOTP {
			reqs = append(reqs, domain.Request{Op: domain.OpTOTPDelete, User: s})
		}
	}
	if webauthn {
		for _, w := range res.WebAuthn {
			reqs = append(reqs, domain.Request{
				Op:     domain.OpWebAuthnDelete,
				User:   w.Subject,
				Target: &domain.Target{Scope: domain.ScopeAll},
			})
		}
	}
	return reqs
}

// readRequests decodes a JSON array of requests, or an object with an "actions" array.
func readRequests(r io.Reader) ([]domain.Request, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var reqs []domain.Request
	if err := json.Unmarshal(raw, &reqs); err == nil {
		return reqs, nil
	}
	var wrapped struct {
		Actions []domain.Request `json:"actions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	return wrapped.Actions, nil
}
