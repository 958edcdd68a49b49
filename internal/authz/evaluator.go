package authz

// Decision is the outcome of evaluating a rule against a context.
type Decision int8

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "ALLOW"
	}
	return "DENY"
}

// Evaluate decides a single rule against the calling context. The caller
// must first hold at least the rule's role, across global and
// account-scoped rights; the scope condition is then checked. Equal levels
// satisfy the non-strict comparisons. Absent relationship data denies.
func Evaluate(rule SecuredRule, ctx Context) Decision {
	if !ctx.callerLevel().Dominates(rule.Role) {
		return Deny
	}

	switch rule.Scope {
	case ScopeAny:
		return Allow

	case ScopeSelfID:
		if ctx.Caller.ID != 0 && ctx.Caller.ID == ctx.TargetID {
			return Allow
		}

	case ScopeSelfName:
		if ctx.Caller.Name != "" && ctx.Caller.Name == ctx.TargetName {
			return Allow
		}

	case ScopeSelfAcct:
		if len(ctx.CallerAccountRoles) > 0 {
			return Allow
		}

	case ScopeSelfAcctPeer:
		if peerAtOrBelowCaller(ctx) {
			return Allow
		}

	case ScopeSelfAcctPeerUpdate:
		if peerAtOrBelowCaller(ctx) && proposedAtOrBelowCaller(ctx) {
			return Allow
		}
	}

	return Deny
}

// peerAtOrBelowCaller requires membership on the account plus a peer whose
// current highest right does not exceed the caller's. A target with no
// rights on the account sits at the hierarchy floor and always satisfies
// the comparison; first-time grants depend on that.
func peerAtOrBelowCaller(ctx Context) bool {
	if len(ctx.CallerAccountRoles) == 0 {
		return false
	}
	return ctx.accountLevel().Dominates(MaxRole(ctx.TargetAccountRoles))
}

// proposedAtOrBelowCaller requires every role being assigned to stay at or
// below the caller's own level on the account.
func proposedAtOrBelowCaller(ctx Context) bool {
	level := ctx.accountLevel()
	for _, proposed := range ctx.ProposedRoles {
		if !level.Dominates(proposed) {
			return false
		}
	}
	return true
}
