package rbac

// Platform roles carried in the identity token. Buyer and seller are also
// per-offer relationships, checked against the offer itself.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// Permission constants
const (
	PermRefundAny      = "refund_any_payment"
	PermViewAnyOffer   = "view_any_offer"
	PermViewAnyPayment = "view_any_payment"
	PermReplayWebhooks = "replay_webhooks"
)

// RolePermissions defines what each role can do beyond its own offers.
var RolePermissions = map[string][]string{
	RoleBuyer:  {},
	RoleSeller: {},
	RoleAdmin: {
		PermRefundAny, PermViewAnyOffer, PermViewAnyPayment, PermReplayWebhooks,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsKnownRole reports whether role is one the platform issues.
func IsKnownRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}

func IsAdmin(role string) bool {
	return role == RoleAdmin
}
