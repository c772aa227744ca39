// Package trust holds the anchors (trusted CA certificates) and CRLs a
// TLS configuration verifies peer chains against.
//
// A Chain is represented as a union: the distinguished All sentinel (trust
// every peer, skip verification) or a concrete Material set of anchors and
// CRLs — the "All | Set(anchors, crls)" design named in the original's
// TrustMaterial.TRUST_ALL static singleton.
package trust

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/cloudpki/tlsconfig/pkg/pemframe"
)

// ErrNoMaterial is returned when a Material has neither anchors nor CRLs
// and was not explicitly constructed as All.
var ErrNoMaterial = errors.New("trust: no anchors or CRLs loaded")

// ErrRevoked is returned by CheckRevocation when the certificate's serial
// number appears in a CRL issued by its own issuer.
var ErrRevoked = errors.New("trust: certificate revoked")

// ErrCRLUnavailable is returned by CheckRevocation when none of the loaded
// CRLs were issued by the certificate's issuer, so revocation status
// cannot be determined from the chain's static CRL set.
var ErrCRLUnavailable = errors.New("trust: no CRL loaded for issuer")

// Material is a concrete set of trust anchors and certificate revocation
// lists; this package's loaders (LoadPEM, LoadFile) read them from PEM.
type Material struct {
	Anchors []*x509.Certificate
	CRLs    []*x509.RevocationList
}

// All is the distinguished sentinel meaning "trust every peer certificate,
// perform no chain verification" — the Go analogue of the Java
// TrustMaterial.TRUST_ALL static instance. It is compared by pointer
// identity, never by value.
var All = &Material{}

// Chain wraps either All or a concrete Material.
type Chain struct {
	material *Material
}

// NewChain wraps material in a Chain. Passing All produces the trust-all
// chain.
func NewChain(material *Material) *Chain {
	return &Chain{material: material}
}

// IsTrustAll reports whether this chain is the TRUST_ALL sentinel.
func (c *Chain) IsTrustAll() bool {
	return c != nil && c.material == All
}

// Pool builds an *x509.CertPool from the chain's anchors. It returns nil,
// nil for the TRUST_ALL chain: callers must interpret a nil pool together
// with IsTrustAll rather than treating it as "no anchors configured".
func (c *Chain) Pool() (*x509.CertPool, error) {
	if c == nil || c.material == nil {
		return nil, ErrNoMaterial
	}
	if c.IsTrustAll() {
		return nil, nil
	}
	pool := x509.NewCertPool()
	for _, anchor := range c.material.Anchors {
		pool.AddCert(anchor)
	}
	return pool, nil
}

// CRLs returns the chain's loaded revocation lists, empty for TRUST_ALL.
func (c *Chain) CRLs() []*x509.RevocationList {
	if c == nil || c.material == nil || c.IsTrustAll() {
		return nil
	}
	return c.material.CRLs
}

// CheckRevocation looks leaf's serial number up in the CRLs among crls
// that were issued by leaf's own issuer — the static lookup spec §7 calls
// check_crl: no OCSP, no network fetch, only CRLs already loaded into the
// trust chain. It returns ErrCRLUnavailable if no loaded CRL matches
// leaf's issuer, and ErrRevoked if a matching CRL lists leaf's serial.
func CheckRevocation(leaf *x509.Certificate, crls []*x509.RevocationList) error {
	matched := false
	for _, crl := range crls {
		if !bytes.Equal(crl.RawIssuer, leaf.RawIssuer) {
			continue
		}
		matched = true
		for _, entry := range crl.RevokedCertificateEntries {
			if entry.SerialNumber != nil && entry.SerialNumber.Cmp(leaf.SerialNumber) == 0 {
				return ErrRevoked
			}
		}
	}
	if !matched {
		return ErrCRLUnavailable
	}
	return nil
}

// LoadPEM parses anchors and CRLs out of PEM-encoded data, returning a
// Material. Unrecognized blocks are ignored.
func LoadPEM(data []byte) (*Material, error) {
	frames := pemframe.Parse(data)
	m := &Material{}
	for _, f := range frames {
		switch f.Kind {
		case pemframe.KindCertificate:
			cert, err := x509.ParseCertificate(f.DER)
			if err != nil {
				return nil, fmt.Errorf("trust: parsing anchor certificate: %w", err)
			}
			m.Anchors = append(m.Anchors, cert)
		case pemframe.KindCRL:
			crl, err := x509.ParseRevocationList(f.DER)
			if err != nil {
				return nil, fmt.Errorf("trust: parsing CRL: %w", err)
			}
			m.CRLs = append(m.CRLs, crl)
		}
	}
	if len(m.Anchors) == 0 && len(m.CRLs) == 0 {
		return nil, ErrNoMaterial
	}
	return m, nil
}

// LoadFile reads path and loads it as PEM trust material.
func LoadFile(path string) (*Material, error) {
	// #nosec G304 - path is supplied by the caller's own configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trust: reading %s: %w", path, err)
	}
	return LoadPEM(data)
}

// Add merges additional anchors and CRLs into m, the Go analogue of the
// original's TrustMaterial.add* instance methods.
func (m *Material) Add(other *Material) {
	if other == nil {
		return
	}
	m.Anchors = append(m.Anchors, other.Anchors...)
	m.CRLs = append(m.CRLs, other.CRLs...)
}

// Union implements the TrustChain.add(material) rule from §4.3: if c is
// empty (nil, or wraps nil material) or other is the All sentinel, the
// result replaces c outright; otherwise the result's anchors/CRLs are the
// combination of both. c itself is never mutated.
func (c *Chain) Union(other *Material) *Chain {
	if c.IsTrustAll() || other == All {
		return NewChain(All)
	}
	if c == nil || c.material == nil {
		return NewChain(other)
	}
	combined := &Material{
		Anchors: append(append([]*x509.Certificate{}, c.material.Anchors...), other.Anchors...),
		CRLs:    append(append([]*x509.RevocationList{}, c.material.CRLs...), other.CRLs...),
	}
	return NewChain(combined)
}
