package gatekit

import (
	"testing"
)

func TestResolveIdentifiersOrderAndNamespacing(t *testing.T) {
	rc := RequestContext{
		IP:          "203.0.113.5",
		UserID:      "u1",
		Email:       "alice@example.com",
		Phone:       "+15551234567",
		Fingerprint: "fp-1",
	}

	ids := ResolveIdentifiers(rc)
	if len(ids) != 5 {
		t.Fatalf("expected 5 identifiers, got %d", len(ids))
	}

	want := []string{
		"user:u1",
		"device:fp-1",
		"email:alice@example.com",
		"phone:+15551234567",
		"ip:203.0.113.5",
	}
	for i, w := range want {
		if got := ids[i].String(); got != w {
			t.Fatalf("identifier %d: expected %q, got %q", i, w, got)
		}
	}
}

func TestResolveIdentifiersSkipsEmpty(t *testing.T) {
	ids := ResolveIdentifiers(RequestContext{IP: "203.0.113.5"})
	if len(ids) != 1 {
		t.Fatalf("expected 1 identifier, got %d", len(ids))
	}
	if ids[0].Kind != IdentifierIP {
		t.Fatalf("expected ip identifier, got %q", ids[0].Kind)
	}
}

func TestResolveIdentifiersEmptyRequest(t *testing.T) {
	if ids := ResolveIdentifiers(RequestContext{}); len(ids) != 0 {
		t.Fatalf("expected no identifiers, got %d", len(ids))
	}
}
