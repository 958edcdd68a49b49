package authz

// Principal identifies an authenticated actor. Anonymous callers are the
// zero value: no id, no name, no roles.
type Principal struct {
	ID    int64
	Name  string
	Roles []Role
}

// Anonymous reports whether the principal carries no identity.
func (p Principal) Anonymous() bool {
	return p.ID == 0 && p.Name == ""
}

// Context carries everything a scope evaluation may need. Fields that do
// not apply to an operation are left zero; the evaluator treats a missing
// required field as a denial, never an error.
type Context struct {
	Caller Principal

	// AccountID is the account the operation targets, if any.
	AccountID int64
	// CallerAccountRoles are the caller's current rights on AccountID.
	CallerAccountRoles []Role

	// TargetID and TargetName identify the target principal, if the
	// operation has one.
	TargetID   int64
	TargetName string
	// TargetAccountRoles are the target's current rights on AccountID.
	TargetAccountRoles []Role

	// ProposedRoles is the role set being assigned to the target, for
	// peer-update evaluations.
	ProposedRoles []Role
}

// callerLevel is the caller's highest role across global and
// account-scoped rights, used for the minimum-role check.
func (c Context) callerLevel() Role {
	global := MaxRole(c.Caller.Roles)
	scoped := MaxRole(c.CallerAccountRoles)
	if scoped > global {
		return scoped
	}
	return global
}

// accountLevel is the caller's highest right on the target account only,
// used for peer comparisons.
func (c Context) accountLevel() Role {
	return MaxRole(c.CallerAccountRoles)
}
