package routing

import "testing"

func TestDecide(t *testing.T) {
	p := DefaultPaths()

	tests := []struct {
		name   string
		class  Class
		path   string
		action Action
		to     string
	}{
		{"owner on legacy", ClassLegacyOwner, "/dashboard/projects", ActionAllow, ""},
		{"owner on tenant", ClassLegacyOwner, "/org/projects/7", ActionRedirect, "/dashboard/projects/7"},
		{"member on legacy", ClassTenantMember, "/dashboard", ActionRedirect, "/org"},
		{"member on legacy subpath", ClassTenantMember, "/dashboard/settings", ActionRedirect, "/org/settings"},
		{"member on tenant", ClassTenantMember, "/org/projects", ActionAllow, ""},
		{"unclassified on tenant", ClassUnclassified, "/org", ActionRedirect, "/onboarding"},
		{"unclassified on legacy", ClassUnclassified, "/dashboard/x", ActionRedirect, "/onboarding"},
		{"public path", ClassUnclassified, "/pricing", ActionAllow, ""},
		{"auth api", ClassTenantMember, "/api/auth/login", ActionAllow, ""},
		{"other path", ClassUnclassified, "/docs/intro", ActionAllow, ""},
		{"prefix lookalike", ClassUnclassified, "/organic", ActionAllow, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Decide(tt.class, tt.path)
			if d.Action != tt.action {
				t.Fatalf("action = %v, want %v", d.Action, tt.action)
			}
			if d.Location != tt.to {
				t.Fatalf("location = %q, want %q", d.Location, tt.to)
			}
		})
	}
}

func TestIsPublic(t *testing.T) {
	p := DefaultPaths()

	if !p.IsPublic("/") {
		t.Error("landing page should be public")
	}
	if p.IsPublic("/org") {
		t.Error("tenant prefix must not be public")
	}
	if !p.IsPublic("/api/webhooks/payments") {
		t.Error("webhook path should be public")
	}
	if p.IsPublic("/loginx") {
		t.Error("lookalike of login should not be public")
	}
}

func TestScoped(t *testing.T) {
	p := DefaultPaths()
	if !p.Scoped("/org/a") || !p.Scoped("/dashboard") {
		t.Fatal("prefixed paths should be scoped")
	}
	if p.Scoped("/docs") {
		t.Fatal("/docs should not be scoped")
	}
}

func TestLoginLocation(t *testing.T) {
	p := DefaultPaths()
	if got := p.LoginLocation("/org/a?b=1"); got != "/login?next=%2Forg%2Fa%3Fb%3D1" {
		t.Fatalf("got %q", got)
	}
}

func TestClassString(t *testing.T) {
	if ClassTenantMember.String() != "tenant_member" || Class(42).String() != "unclassified" {
		t.Fatal("unexpected class names")
	}
}
