package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"
)

const adminProtectionQuery = "data.mfa.admin_protection.protected"

// Group names compare case-insensitively. An empty admin group never protects anyone.
const adminProtectionPolicy = `package mfa.admin_protection

default protected := false

protected if {
	input.admin_group != ""
	some g in input.groups
	lower(trim_space(g)) == lower(input.admin_group)
}
`

// AdminGate evaluates the admin-protection policy with OPA Rego against directory group memberships.
type AdminGate struct {
	groups     GroupResolver
	adminGroup string
	query      rego.PreparedEvalQuery
}

var _ ProtectionEvaluator = (*AdminGate)(nil)

// NewAdminGate compiles the admin-protection policy. adminGroup is the configured administrative group name.
func NewAdminGate(ctx context.Context, groups GroupResolver, adminGroup string) (*AdminGate, error) {
	adminGroup = strings.TrimSpace(adminGroup)
	if adminGroup == "" {
		return nil, errors.New("policy: admin group must not be empty")
	}
	q, err := rego.New(
		rego.Query(adminProtectionQuery),
		rego.Module("admin_protection.rego", adminProtectionPolicy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: prepare admin protection: %w", err)
	}
	return &AdminGate{groups: groups, adminGroup: adminGroup, query: q}, nil
}

// AdminGroup returns the configured administrative group name.
func (g *AdminGate) AdminGroup() string {
	return g.adminGroup
}

// Protected resolves uid's groups and evaluates the policy.
func (g *AdminGate) Protected(ctx context.Context, uid string) (bool, error) {
	groups, err := g.groups.GroupMembership(ctx, uid)
	if err != nil {
		return false, fmt.Errorf("policy: resolve groups for %s: %w", uid, err)
	}
	return g.evaluate(ctx, groups)
}

func (g *AdminGate) evaluate(ctx context.Context, groups []string) (bool, error) {
	list := make([]interface{}, 0, len(groups))
	for _, name := range groups {
		list = append(list, name)
	}
	input := map[string]interface{}{
		"admin_group": g.adminGroup,
		"groups":      list,
	}
	rs, err := g.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("policy: eval admin protection: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, errors.New("policy: admin protection query returned no result")
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy: admin protection returned %T, want bool", rs[0].Expressions[0].Value)
	}
	return v, nil
}

// HealthCheck evaluates the prepared policy against a fixed input. It does not contact the directory.
func (g *AdminGate) HealthCheck(ctx context.Context) error {
	protected, err := g.evaluate(ctx, []string{g.adminGroup})
	if err != nil {
		return err
	}
	if !protected {
		return errors.New("policy: admin protection self-check failed")
	}
	return nil
}
