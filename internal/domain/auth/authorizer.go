package auth

// EnsureRoles passes when the context's role set intersects allowed.
// Pure function: no I/O, no state. Fails with CodeInsufficientRole.
func EnsureRoles(sc *SecurityContext, allowed ...Role) error {
	if sc.HasAnyRole(allowed...) {
		return nil
	}
	return Forbidden(CodeInsufficientRole, "Caller lacks required role")
}
