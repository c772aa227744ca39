// Package hostname implements the post-connect hostname verification
// policy: CN/subjectAltName precedence and leftmost-label wildcard
// matching against a peer certificate, independent of crypto/tls's own
// (equivalent but unexported) verification so the library can apply it
// to certificates obtained from any source, not just a live handshake.
package hostname

import (
	"crypto/x509"
	"fmt"
	"net"
	"strings"
)

// MismatchError is returned when hostname does not match any candidate name
// in the peer certificate.
type MismatchError struct {
	Expected string
	Actual   []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("hostname: %q does not match certificate names %v", e.Expected, e.Actual)
}

// Verify checks host against cert's subjectAltName dNSName/iPAddress
// entries, falling back to the certificate's CommonName only when no SAN
// dNSName entries are present at all.
func Verify(cert *x509.Certificate, host string) error {
	if ip := net.ParseIP(host); ip != nil {
		return verifyIP(cert, ip, host)
	}

	candidates := cert.DNSNames
	if len(candidates) == 0 && cert.Subject.CommonName != "" {
		candidates = []string{cert.Subject.CommonName}
	}

	for _, candidate := range candidates {
		if matchDNSName(candidate, host) {
			return nil
		}
	}
	return &MismatchError{Expected: host, Actual: candidates}
}

func verifyIP(cert *x509.Certificate, ip net.IP, host string) error {
	for _, certIP := range cert.IPAddresses {
		if certIP.Equal(ip) {
			return nil
		}
	}
	actual := make([]string, len(cert.IPAddresses))
	for i, certIP := range cert.IPAddresses {
		actual[i] = certIP.String()
	}
	return &MismatchError{Expected: host, Actual: actual}
}

// matchDNSName applies the leftmost-label wildcard rule: a lone "*" label
// matches exactly one leftmost label of host; "*" elsewhere in the pattern
// is not a wildcard (it simply never matches). Matching is case-insensitive.
func matchDNSName(pattern, host string) bool {
	pattern = strings.ToLower(strings.TrimSuffix(pattern, "."))
	host = strings.ToLower(strings.TrimSuffix(host, "."))

	if pattern == host {
		return true
	}

	patternLabels := strings.Split(pattern, ".")
	hostLabels := strings.Split(host, ".")
	if len(patternLabels) != len(hostLabels) {
		return false
	}
	if patternLabels[0] != "*" {
		return false
	}
	if hostLabels[0] == "" {
		return false
	}
	for i := 1; i < len(patternLabels); i++ {
		if patternLabels[i] != hostLabels[i] {
			return false
		}
	}
	return true
}
