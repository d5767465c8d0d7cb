// Package auth implements the dispatcher cookie auth gate: a
// label→secret table rebuilt from the process environment,
// constant-time login against every known secret, and a 3-part signed
// cookie verified on every privileged request.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// AccessType distinguishes the two disjoint operator role classes.
type AccessType string

const (
	Primary   AccessType = "primary"
	Secondary AccessType = "secondary"
)

// Principal identifies an authenticated operator.
type Principal struct {
	Label      string
	AccessType AccessType
}

// credential is one entry of the resolved label->secret table.
type credential struct {
	label  string
	typ    AccessType
	secret string
}

// Gate holds the current label->secret table and knows how to mint and
// verify dispatcher cookies. Safe for concurrent use; Refresh swaps the
// table atomically.
type Gate struct {
	log zerolog.Logger

	mu    sync.RWMutex
	creds []credential
}

// New constructs a Gate and performs an initial table build from env.
func New(log zerolog.Logger, env map[string]string) *Gate {
	g := &Gate{log: log}
	g.Refresh(env)
	return g
}

// Refresh rebuilds the credential table from an environment snapshot.
// env is typically config.LoadAuthEnv()'s output.
func (g *Gate) Refresh(env map[string]string) {
	creds := make([]credential, 0, len(env))
	for key, secret := range env {
		if secret == "" {
			continue
		}
		label, typ, ok := parseAuthKey(key)
		if !ok {
			continue
		}
		creds = append(creds, credential{label: label, typ: typ, secret: secret})
	}
	g.mu.Lock()
	g.creds = creds
	g.mu.Unlock()
}

// parseAuthKey recognizes "<LABEL>_PASS" (primary) and "<LABEL>_CAT_PASS"
// (secondary, with the redundant "_CAT" suffix stripped from the label).
func parseAuthKey(key string) (label string, typ AccessType, ok bool) {
	switch {
	case strings.HasSuffix(key, "_CAT_PASS"):
		return strings.TrimSuffix(key, "_CAT_PASS"), Secondary, true
	case strings.HasSuffix(key, "_PASS"):
		return strings.TrimSuffix(key, "_PASS"), Primary, true
	default:
		return "", "", false
	}
}

// Login compares password in constant time against every known secret,
// preferring a primary-role match over a secondary-role match when the
// same secret is registered under both. Returns the
// minted cookie value and the matched Principal, or ok=false if no secret
// matched.
func (g *Gate) Login(password string) (cookie string, principal Principal, ok bool) {
	g.mu.RLock()
	creds := g.creds
	g.mu.RUnlock()

	var best *credential
	for i := range creds {
		c := &creds[i]
		if !constantTimeEqual(c.secret, password) {
			continue
		}
		if best == nil || (best.typ == Secondary && c.typ == Primary) {
			best = c
		}
	}
	if best == nil {
		return "", Principal{}, false
	}
	principal = Principal{Label: best.label, AccessType: best.typ}
	return mintCookie(best.label, best.typ, best.secret), principal, true
}

// mintCookie builds the 3-part dispatcher cookie value:
// "<label>:<access_type>:sha256_hex('dispatcher::'+label+':'+access_type+':'+secret)".
func mintCookie(label string, typ AccessType, secret string) string {
	digest := digestFor(label, typ, secret)
	return label + ":" + string(typ) + ":" + digest
}

func digestFor(label string, typ AccessType, secret string) string {
	sum := sha256.Sum256([]byte("dispatcher::" + label + ":" + string(typ) + ":" + secret))
	return hex.EncodeToString(sum[:])
}

// Verify checks a cookie value read from the request against the current
// credential table. A 3-part cookie is
// checked against its (label, access_type) expected digest; a 2-part
// legacy cookie ("<label>:<digest>") is checked against the primary role
// only. Any mismatch, absence, or parse failure yields ok=false.
func (g *Gate) Verify(cookie string) (Principal, bool) {
	if cookie == "" {
		return Principal{}, false
	}
	parts := strings.Split(cookie, ":")

	g.mu.RLock()
	creds := g.creds
	g.mu.RUnlock()

	switch len(parts) {
	case 3:
		label, typStr, digest := parts[0], parts[1], parts[2]
		typ := AccessType(typStr)
		for _, c := range creds {
			if c.label != label || c.typ != typ {
				continue
			}
			if constantTimeEqual(digestFor(c.label, c.typ, c.secret), digest) {
				return Principal{Label: c.label, AccessType: c.typ}, true
			}
		}
		return Principal{}, false
	case 2:
		label, digest := parts[0], parts[1]
		for _, c := range creds {
			if c.label != label || c.typ != Primary {
				continue
			}
			if constantTimeEqual(digestFor(c.label, c.typ, c.secret), digest) {
				return Principal{Label: c.label, AccessType: c.typ}, true
			}
		}
		return Principal{}, false
	default:
		return Principal{}, false
	}
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// Still run a comparison of equal length to avoid leaking length
		// via timing; compare against a itself.
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
