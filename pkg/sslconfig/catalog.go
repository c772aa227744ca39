package sslconfig

import "github.com/cloudpki/tlsconfig/pkg/platform"

// knownProtocols is the process-wide immutable catalog of recognized
// protocol names. Only the TLSv1.x names resolve to a negotiable
// crypto/tls version (see platform.ProtocolVersion); the SSLv2/SSLv3 names
// are recognized for historical-name compatibility but carry no negotiable
// crypto/tls equivalent — see DESIGN.md.
var knownProtocols = []string{"TLSv1", "SSLv3", "SSLv2", "SSLv2Hello"}

// KnownProtocols returns the frozen catalog of recognized protocol names.
func KnownProtocols() []string {
	out := make([]string, len(knownProtocols))
	copy(out, knownProtocols)
	return out
}

// SupportedCiphers returns the frozen cipher-name catalog, retrieved from
// the platform TLS default factory on first access and frozen thereafter.
func SupportedCiphers() []string {
	return platform.SupportedCipherNames()
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// unsupportedDiff returns the elements of candidates not present in
// universe, preserving candidates' order.
func unsupportedDiff(candidates, universe []string) []string {
	var diff []string
	for _, c := range candidates {
		if !containsString(universe, c) {
			diff = append(diff, c)
		}
	}
	return diff
}
