package domain

import "testing"

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name   string
		role   Role
		action Action
		want   bool
	}{
		{name: "user cannot verify", role: RoleUser, action: ActionVerify, want: false},
		{name: "user cannot view audit", role: RoleUser, action: ActionViewAudit, want: false},
		{name: "moderator verifies", role: RoleModerator, action: ActionVerify, want: true},
		{name: "moderator hides", role: RoleModerator, action: ActionHide, want: true},
		{name: "moderator cannot hard delete", role: RoleModerator, action: ActionHardDelete, want: false},
		{name: "admin hard deletes", role: RoleAdmin, action: ActionHardDelete, want: true},
		{name: "admin views audit", role: RoleAdmin, action: ActionViewAudit, want: true},
		{name: "unknown role denied", role: Role("root"), action: ActionVerify, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Authorize(tt.role, tt.action); got != tt.want {
				t.Fatalf("Authorize(%v, %v) = %v, ожидали %v", tt.role, tt.action, got, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"admin":     RoleAdmin,
		" Moderator": RoleModerator,
		"user":      RoleUser,
		"superuser": RoleUser,
		"":          RoleUser,
	}
	for raw, want := range cases {
		if got := ParseRole(raw); got != want {
			t.Fatalf("ParseRole(%q) = %v, ожидали %v", raw, got, want)
		}
	}
}
