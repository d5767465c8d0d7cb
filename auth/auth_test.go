package auth

import (
	"testing"

	"github.com/rs/zerolog"
)

func newGate(env map[string]string) *Gate {
	return New(zerolog.Nop(), env)
}

func TestLoginPrefersPrimaryOverSecondary(t *testing.T) {
	g := newGate(map[string]string{
		"DRIVER_PASS":    "shared-secret",
		"SUPER_CAT_PASS": "shared-secret",
	})
	_, p, ok := g.Login("shared-secret")
	if !ok {
		t.Fatal("expected a match")
	}
	if p.AccessType != Primary || p.Label != "DRIVER" {
		t.Fatalf("expected primary match on DRIVER, got %+v", p)
	}
}

func TestMintAndVerifyRoundTrip(t *testing.T) {
	g := newGate(map[string]string{"OPS_PASS": "hunter2"})
	cookie, p, ok := g.Login("hunter2")
	if !ok {
		t.Fatal("expected login to succeed")
	}
	got, ok := g.Verify(cookie)
	if !ok || got != p {
		t.Fatalf("verify mismatch: got %+v, ok=%v", got, ok)
	}
}

func TestVerifyRejectsTamperedDigest(t *testing.T) {
	g := newGate(map[string]string{"OPS_PASS": "hunter2"})
	cookie, _, _ := g.Login("hunter2")
	tampered := cookie[:len(cookie)-1] + "0"
	if _, ok := g.Verify(tampered); ok {
		t.Fatal("expected tampered cookie to fail verification")
	}
}

func TestVerifyLegacyTwoPartCookie(t *testing.T) {
	g := newGate(map[string]string{"OPS_PASS": "hunter2"})
	digest := digestFor("OPS", Primary, "hunter2")
	p, ok := g.Verify("OPS:" + digest)
	if !ok || p.AccessType != Primary {
		t.Fatalf("expected legacy cookie to verify as primary, got %+v ok=%v", p, ok)
	}
}

func TestVerifyLegacyCookieIgnoresSecondaryOnlyLabel(t *testing.T) {
	g := newGate(map[string]string{"OPS_CAT_PASS": "hunter2"})
	digest := digestFor("OPS", Secondary, "hunter2")
	if _, ok := g.Verify("OPS:" + digest); ok {
		t.Fatal("legacy 2-part cookies should only match a primary-role secret")
	}
}

func TestRefreshReplacesTable(t *testing.T) {
	g := newGate(map[string]string{"OPS_PASS": "hunter2"})
	g.Refresh(map[string]string{"OPS_PASS": "newsecret"})
	if _, _, ok := g.Login("hunter2"); ok {
		t.Fatal("old secret should no longer authenticate after refresh")
	}
	if _, _, ok := g.Login("newsecret"); !ok {
		t.Fatal("new secret should authenticate after refresh")
	}
}
