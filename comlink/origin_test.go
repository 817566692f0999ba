package comlink

import "testing"

func TestOriginPolicyDefaultsToPermitAll(t *testing.T) {
	p := NewOriginPolicy()
	if !p.Accepts("https://anything.example") {
		t.Errorf("empty OriginPolicy rejected an origin, want permit-all default")
	}
	var nilPolicy *OriginPolicy
	if !nilPolicy.Accepts("https://anything.example") {
		t.Errorf("nil *OriginPolicy rejected an origin, want permit-all")
	}
}

func TestOriginPolicyExactMatch(t *testing.T) {
	p := NewOriginPolicy("https://good.example")
	if !p.Accepts("https://good.example") {
		t.Errorf("OriginPolicy rejected its only allowed origin")
	}
	if p.Accepts("https://bad.example") {
		t.Errorf("OriginPolicy accepted an origin not on its allow-list")
	}
}

func TestOriginPolicyWildcard(t *testing.T) {
	p := NewOriginPolicy("*")
	if !p.Accepts("https://whatever.example") {
		t.Errorf("OriginPolicy with \"*\" rejected an origin")
	}
}

func TestOriginPolicyPattern(t *testing.T) {
	p := NewOriginPolicy(`https://[a-z]+\.internal\.example`)
	if !p.Accepts("https://svc.internal.example") {
		t.Errorf("OriginPolicy rejected an origin matching its pattern")
	}
	if p.Accepts("https://svc.internal.example.evil") {
		t.Errorf("OriginPolicy pattern was not anchored: matched a superstring origin")
	}
}
