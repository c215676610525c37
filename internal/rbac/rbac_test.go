package rbac

import "testing"

func TestAtLeast(t *testing.T) {
	cases := []struct {
		name  string
		role  Role
		min   Role
		allow bool
	}{
		{name: "unapproved below normal", role: RoleUnapproved, min: RoleNormal, allow: false},
		{name: "normal meets normal", role: RoleNormal, min: RoleNormal, allow: true},
		{name: "normal below editor", role: RoleNormal, min: RoleEditor, allow: false},
		{name: "editor meets normal", role: RoleEditor, min: RoleNormal, allow: true},
		{name: "editor below admin", role: RoleEditor, min: RoleAdmin, allow: false},
		{name: "admin meets everything", role: RoleAdmin, min: RoleUnapproved, allow: true},
		{name: "admin meets admin", role: RoleAdmin, min: RoleAdmin, allow: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AtLeast(tc.role, tc.min); got != tc.allow {
				t.Fatalf("AtLeast(%v, %v) = %v, want %v", tc.role, tc.min, got, tc.allow)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, role := range []Role{RoleUnapproved, RoleNormal, RoleEditor, RoleAdmin} {
		parsed, ok := ParseStrict(role.String())
		if !ok {
			t.Fatalf("ParseStrict(%q) not ok", role.String())
		}
		if parsed != role {
			t.Fatalf("ParseStrict(%q) = %v, want %v", role.String(), parsed, role)
		}
	}
}

func TestParseUnknown(t *testing.T) {
	if _, ok := ParseStrict("superuser"); ok {
		t.Fatal("ParseStrict accepted unknown role name")
	}
	if got := Parse("superuser"); got != RoleUnapproved {
		t.Fatalf("Parse(unknown) = %v, want RoleUnapproved", got)
	}
	if Valid(Role(9)) {
		t.Fatal("Valid accepted out-of-range role")
	}
}
