// Package routing classifies callers and decides which path prefix they may use.
// It is pure: the HTTP middleware resolves the class and applies the decision.
package routing

import (
	"net/url"
	"strings"
)

// Class is the routing class of an authenticated caller.
type Class int

const (
	ClassUnclassified Class = iota
	ClassLegacyOwner
	ClassTenantMember
)

func (c Class) String() string {
	switch c {
	case ClassLegacyOwner:
		return "legacy_owner"
	case ClassTenantMember:
		return "tenant_member"
	default:
		return "unclassified"
	}
}

// Action tells the middleware what to do with a request.
type Action int

const (
	ActionAllow Action = iota
	ActionRedirect
)

// Decision is the outcome of Decide. Location is set for redirects.
type Decision struct {
	Action   Action
	Location string
}

// Allow is the zero-redirect decision.
var Allow = Decision{Action: ActionAllow}

func redirect(to string) Decision {
	return Decision{Action: ActionRedirect, Location: to}
}

// Paths is the path layout the router enforces.
type Paths struct {
	LegacyPrefix string   `yaml:"legacy_prefix"`
	TenantPrefix string   `yaml:"tenant_prefix"`
	Onboarding   string   `yaml:"onboarding"`
	Login        string   `yaml:"login"`
	Public       []string `yaml:"public"`
}

// DefaultPaths returns the stock layout.
func DefaultPaths() Paths {
	return Paths{
		LegacyPrefix: "/dashboard",
		TenantPrefix: "/org",
		Onboarding:   "/onboarding",
		Login:        "/login",
		Public: []string{
			"/", "/login", "/signup", "/onboarding", "/activate", "/pricing",
			"/health", "/api/auth", "/api/payments", "/api/webhooks", "/api/activation",
		},
	}
}

// under reports whether path equals prefix or lies below it. "/" only matches
// itself so that listing the landing page does not open everything.
func under(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if prefix == "/" {
		return path == "/"
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// IsPublic reports whether path is reachable without a session.
func (p Paths) IsPublic(path string) bool {
	if under(path, p.Login) || under(path, p.Onboarding) {
		return true
	}
	for _, pub := range p.Public {
		if under(path, pub) {
			return true
		}
	}
	return false
}

// Scoped reports whether path lies under the legacy or tenant prefix, i.e.
// whether the caller's class matters for it.
func (p Paths) Scoped(path string) bool {
	return under(path, p.LegacyPrefix) || under(path, p.TenantPrefix)
}

// LoginLocation is where unauthenticated callers go, with the original
// target carried in next.
func (p Paths) LoginLocation(requestURI string) string {
	return p.Login + "?next=" + url.QueryEscape(requestURI)
}

// Decide applies the routing table to a caller of class c requesting path.
// Cross-prefix redirects keep the remainder below the prefix.
func (p Paths) Decide(c Class, path string) Decision {
	if p.IsPublic(path) {
		return Allow
	}

	switch {
	case under(path, p.LegacyPrefix):
		switch c {
		case ClassLegacyOwner:
			return Allow
		case ClassTenantMember:
			return redirect(swapPrefix(path, p.LegacyPrefix, p.TenantPrefix))
		default:
			return redirect(p.Onboarding)
		}
	case under(path, p.TenantPrefix):
		switch c {
		case ClassTenantMember:
			return Allow
		case ClassLegacyOwner:
			return redirect(swapPrefix(path, p.TenantPrefix, p.LegacyPrefix))
		default:
			return redirect(p.Onboarding)
		}
	}
	return Allow
}

func swapPrefix(path, from, to string) string {
	from = strings.TrimSuffix(from, "/")
	to = strings.TrimSuffix(to, "/")
	return to + strings.TrimPrefix(path, from)
}
