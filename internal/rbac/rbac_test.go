package rbac

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role string
		perm string
		want bool
	}{
		{RoleAdmin, PermRefundAny, true},
		{RoleAdmin, PermViewAnyPayment, true},
		{RoleAdmin, PermReplayWebhooks, true},
		{RoleSeller, PermRefundAny, false},
		{RoleBuyer, PermRefundAny, false},
		{RoleSeller, PermViewAnyOffer, false},
		{"", PermViewAnyOffer, false},
		{"superuser", PermRefundAny, false},
	}
	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.perm, func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}
