package authz

import (
	"errors"
	"fmt"
	"strings"
)

// Scope is the relational condition under which a rule's role requirement
// applies.
type Scope int8

const (
	// ScopeAny is always satisfied.
	ScopeAny Scope = iota
	// ScopeSelfID requires the target principal to be the caller, by id.
	ScopeSelfID
	// ScopeSelfName requires the target principal to be the caller, by
	// unique name.
	ScopeSelfName
	// ScopeSelfAcct requires the caller to hold any right on the target
	// account.
	ScopeSelfAcct
	// ScopeSelfAcctPeer additionally requires the peer's current rights on
	// the account to be at or below the caller's.
	ScopeSelfAcctPeer
	// ScopeSelfAcctPeerUpdate additionally requires every proposed right
	// for the peer to be at or below the caller's.
	ScopeSelfAcctPeerUpdate
)

var scopeNames = map[Scope]string{
	ScopeAny:                "ANY",
	ScopeSelfID:             "SELF_ID",
	ScopeSelfName:           "SELF_NAME",
	ScopeSelfAcct:           "SELF_ACCT",
	ScopeSelfAcctPeer:       "SELF_ACCT_PEER",
	ScopeSelfAcctPeerUpdate: "SELF_ACCT_PEER_UPDATE",
}

var scopesByName = map[string]Scope{
	"ANY":                   ScopeAny,
	"SELF_ID":               ScopeSelfID,
	"SELF_NAME":             ScopeSelfName,
	"SELF_ACCT":             ScopeSelfAcct,
	"SELF_ACCT_PEER":        ScopeSelfAcctPeer,
	"SELF_ACCT_PEER_UPDATE": ScopeSelfAcctPeerUpdate,
}

// ParseScope resolves a case-sensitive scope name such as "SELF_ACCT".
func ParseScope(name string) (Scope, error) {
	s, ok := scopesByName[name]
	if !ok {
		return ScopeAny, fmt.Errorf("authz: unknown scope %q", name)
	}
	return s, nil
}

func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SCOPE_UNKNOWN(%d)", int8(s))
}

// ErrRuleFormat marks a malformed secured-rule literal. Rule tables are
// parsed at construction time, so this error never reaches request paths.
var ErrRuleFormat = errors.New("authz: invalid rule format")

const (
	ruleDelim   = ","
	rolePrefix  = "role:"
	scopePrefix = "scope:"
)

// SecuredRule pairs a minimum role with the scope it applies under.
// The textual form is "role:<ROLE>,scope:<SCOPE>", exactly two tokens in
// that order. The grammar is shared with externally configured rule tables
// and must not drift.
type SecuredRule struct {
	Role  Role
	Scope Scope
}

// ParseRule parses the canonical two-token rule literal. Tokens may carry
// surrounding whitespace; enumerant names are case sensitive.
func ParseRule(rule string) (SecuredRule, error) {
	tokens := strings.Split(rule, ruleDelim)
	if len(tokens) != 2 {
		return SecuredRule{}, fmt.Errorf("%w: need two tokens in %q", ErrRuleFormat, rule)
	}

	roleToken := strings.TrimSpace(tokens[0])
	scopeToken := strings.TrimSpace(tokens[1])

	if !strings.HasPrefix(roleToken, rolePrefix) {
		return SecuredRule{}, fmt.Errorf("%w: first token must begin with %q in %q", ErrRuleFormat, rolePrefix, rule)
	}
	if !strings.HasPrefix(scopeToken, scopePrefix) {
		return SecuredRule{}, fmt.Errorf("%w: second token must begin with %q in %q", ErrRuleFormat, scopePrefix, rule)
	}

	role, err := ParseRole(strings.TrimPrefix(roleToken, rolePrefix))
	if err != nil {
		return SecuredRule{}, fmt.Errorf("%w: %v", ErrRuleFormat, err)
	}
	scope, err := ParseScope(strings.TrimPrefix(scopeToken, scopePrefix))
	if err != nil {
		return SecuredRule{}, fmt.Errorf("%w: %v", ErrRuleFormat, err)
	}

	return SecuredRule{Role: role, Scope: scope}, nil
}

// MustRule parses a rule literal and panics on failure. Intended for
// static rule tables where a bad literal is a programming error.
func MustRule(rule string) SecuredRule {
	r, err := ParseRule(rule)
	if err != nil {
		panic(err)
	}
	return r
}

func (r SecuredRule) String() string {
	return rolePrefix + r.Role.String() + ruleDelim + scopePrefix + r.Scope.String()
}
