package authz

import (
	"errors"
	"fmt"
)

// ErrDenied indicates the caller may not perform the operation. It is the
// expected outcome of a failed check, surfaced to the user as a permission
// error, and is never retried.
var ErrDenied = errors.New("authz: access denied")

// DecisionObserver receives the outcome of each authorization check, for
// metrics. Observers must be safe for concurrent use.
type DecisionObserver func(operation string, allowed bool)

// Guard gates named operations behind declared secured rules. An operation
// passes when any one of its rules allows (disjunction); an operation with
// no declared rules always denies. The guard holds no mutable state and is
// safe to share across concurrent requests.
type Guard struct {
	rules    map[string][]SecuredRule
	observer DecisionObserver
}

// NewGuard parses a table of operation name to rule literals. Malformed
// literals fail here, at load time, with an error wrapping ErrRuleFormat.
func NewGuard(table map[string][]string) (*Guard, error) {
	rules := make(map[string][]SecuredRule, len(table))
	for op, literals := range table {
		if len(literals) == 0 {
			return nil, fmt.Errorf("authz: operation %q declares no rules", op)
		}
		parsed := make([]SecuredRule, 0, len(literals))
		for _, literal := range literals {
			rule, err := ParseRule(literal)
			if err != nil {
				return nil, fmt.Errorf("authz: operation %q: %w", op, err)
			}
			parsed = append(parsed, rule)
		}
		rules[op] = parsed
	}
	return &Guard{rules: rules}, nil
}

// Observe installs a decision observer. Call before the guard is shared.
func (g *Guard) Observe(fn DecisionObserver) *Guard {
	g.observer = fn
	return g
}

// Rules returns the declared rules for an operation, nil when unknown.
func (g *Guard) Rules(operation string) []SecuredRule {
	return g.rules[operation]
}

// Authorize evaluates the operation's rules against the context and
// returns nil on the first allowing rule. Unknown operations deny; denial
// is the safe default for every gap. Must be called before any mutation.
func (g *Guard) Authorize(operation string, ctx Context) error {
	allowed := false
	for _, rule := range g.rules[operation] {
		if Evaluate(rule, ctx) == Allow {
			allowed = true
			break
		}
	}
	if g.observer != nil {
		g.observer(operation, allowed)
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrDenied, operation)
	}
	return nil
}
