package tls

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	stdtls "crypto/tls"
)

// fingerprintHexLen is the canonical fingerprint length: SHA-256 as
// lowercase hex.
const fingerprintHexLen = 64

// Fingerprint returns the canonical SHA-256 fingerprint of a certificate.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// NormalizeFingerprint canonicalizes a configured fingerprint. Accepted
// inputs are the openssl form "SHA256 Fingerprint=AB:CD:..." and bare
// hex with or without colons, in any case. The canonical form is 64
// lowercase hex characters.
func NormalizeFingerprint(s string) (string, error) {
	orig := s
	s = strings.TrimSpace(s)
	if _, rest, ok := strings.Cut(s, "="); ok && strings.HasPrefix(strings.ToUpper(s), "SHA256 FINGERPRINT=") {
		s = rest
	}
	s = strings.ReplaceAll(s, ":", "")
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != fingerprintHexLen {
		return "", fmt.Errorf("fingerprint %q: expected %d hex chars, got %d", orig, fingerprintHexLen, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("fingerprint %q: not hexadecimal", orig)
	}
	return s, nil
}

// Allowlist restricts worker connections by client certificate
// fingerprint. A shard with its own set is checked against that set
// alone; every other shard falls back to the global set.
type Allowlist struct {
	global   map[string]struct{}
	perShard map[uint32]map[string]struct{}
}

// NewAllowlist normalizes the configured fingerprints. A malformed
// fingerprint is a configuration error, not a silent no-match.
func NewAllowlist(global []string, perShard map[uint32][]string) (*Allowlist, error) {
	a := &Allowlist{
		global:   make(map[string]struct{}, len(global)),
		perShard: make(map[uint32]map[string]struct{}, len(perShard)),
	}
	for _, f := range global {
		n, err := NormalizeFingerprint(f)
		if err != nil {
			return nil, err
		}
		a.global[n] = struct{}{}
	}
	for shard, fps := range perShard {
		set := make(map[string]struct{}, len(fps))
		for _, f := range fps {
			n, err := NormalizeFingerprint(f)
			if err != nil {
				return nil, fmt.Errorf("shard %d: %w", shard, err)
			}
			set[n] = struct{}{}
		}
		a.perShard[shard] = set
	}
	return a, nil
}

// Empty reports whether no fingerprint is configured at all.
func (a *Allowlist) Empty() bool {
	if a == nil {
		return true
	}
	if len(a.global) > 0 {
		return false
	}
	for _, set := range a.perShard {
		if len(set) > 0 {
			return false
		}
	}
	return true
}

// Allowed reports whether the certificate may serve the given shard. An
// empty allowlist allows everything; a nil certificate is only allowed
// by an empty allowlist.
func (a *Allowlist) Allowed(shard uint32, cert *x509.Certificate) bool {
	if a.Empty() {
		return true
	}
	if cert == nil {
		return false
	}
	fp := Fingerprint(cert)

	if set, ok := a.perShard[shard]; ok && len(set) > 0 {
		if _, ok := set[fp]; !ok {
			return false
		}
		return true
	}
	_, ok := a.global[fp]
	return ok
}

// PeerCertificate returns the leaf client certificate of a TLS
// connection, or nil for plaintext connections and handshakes without a
// client certificate.
func PeerCertificate(conn net.Conn) *x509.Certificate {
	tc, ok := conn.(*stdtls.Conn)
	if !ok {
		return nil
	}
	state := tc.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	return state.PeerCertificates[0]
}
