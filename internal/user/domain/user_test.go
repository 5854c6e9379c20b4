package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	cases := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"Viewer", RoleViewer, false},
		{"Operator", RoleOperator, false},
		{"Admin", RoleAdmin, false},
		{"", "", true},
		{"viewer", "", true},
		{"Safety_Officer", "", true},
		{"root", "", true},
	}
	for _, c := range cases {
		got, err := ParseRole(c.in)
		if c.wantErr {
			if !errors.Is(err, ErrInvalidRole) {
				t.Errorf("ParseRole(%q): want ErrInvalidRole, got %v", c.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRole(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseRole(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRoleLevelOrder(t *testing.T) {
	if !(RoleViewer.Level() < RoleOperator.Level() && RoleOperator.Level() < RoleAdmin.Level()) {
		t.Errorf("role levels not strictly ordered: Viewer=%d Operator=%d Admin=%d",
			RoleViewer.Level(), RoleOperator.Level(), RoleAdmin.Level())
	}
	if Role("Unknown").Level() != 0 {
		t.Errorf("unknown role level = %d, want 0", Role("Unknown").Level())
	}
}

func TestUserValidate(t *testing.T) {
	u := &User{ExternalID: "ext-1", Email: "a@x.com", CreatedAt: time.Now()}
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if u.Role != RoleViewer {
		t.Errorf("empty role not defaulted to Viewer, got %q", u.Role)
	}

	u2 := &User{ExternalID: "ext-2", Email: "b@x.com", Role: "Superuser"}
	if err := u2.Validate(); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("Validate with unknown role: want ErrInvalidRole, got %v", err)
	}

	u3 := &User{Email: "c@x.com"}
	if err := u3.Validate(); err == nil {
		t.Error("Validate without external id: want error, got nil")
	}
}
