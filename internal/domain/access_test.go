package domain

import "testing"

func TestResolveApproval(t *testing.T) {
	cases := []struct {
		name        string
		role        string
		activeGrant bool
		approved    bool
		want        bool
		wantChange  bool
	}{
		{"student gains first grant", RoleStudent, true, false, true, true},
		{"student keeps approval with grant", RoleStudent, true, true, true, false},
		{"student loses last grant", RoleStudent, false, true, false, true},
		{"student never approved", RoleStudent, false, false, false, false},
		{"admin keeps approval without grants", RoleAdmin, false, true, true, false},
		{"super admin keeps approval without grants", RoleSuperAdmin, false, true, true, false},
		{"admin gains grant while unapproved", RoleAdmin, true, false, true, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, changed := ResolveApproval(tc.role, tc.activeGrant, tc.approved)
			if got != tc.want || changed != tc.wantChange {
				t.Errorf("ResolveApproval(%s, grant=%v, approved=%v) = (%v, %v), want (%v, %v)",
					tc.role, tc.activeGrant, tc.approved, got, changed, tc.want, tc.wantChange)
			}
		})
	}
}
