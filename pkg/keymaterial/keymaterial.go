// Package keymaterial loads private-key-plus-certificate-chain material
// out of the handful of keystore container byte formats the platform's own
// tooling produces: PKCS#12, "JKS-like" (Sun JKS, magic 0xFEEDFEED),
// "JCEKS-like" (magic 0xCECECECE), and — detected but refused — "BKS-like".
// LoadPEM covers the non-container case: a bare certificate chain plus a
// PKCS#8 private key, optionally PKCS#8-encrypted.
//
// Every container exposes the same dual-password model: a store password
// that guards the container's integrity check, and a key password that
// guards each private key's own encryption. When the caller supplies no
// key password, the store password is reused.
package keymaterial

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA parameter-equality support, per spec contract
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/cloudpki/tlsconfig/pkg/password"
)

var (
	// ErrWrongPassword is returned when a MAC, integrity digest, or padding
	// check fails during decryption.
	ErrWrongPassword = errors.New("keymaterial: wrong password")

	// ErrUnsupportedContainer is returned for container formats this
	// package detects but cannot decode (BKS-like, 40-bit RC2 PKCS#12).
	ErrUnsupportedContainer = errors.New("keymaterial: unsupported container format")

	// ErrMalformedContainer is returned when the container's structure
	// does not match any recognized format, or is internally inconsistent.
	ErrMalformedContainer = errors.New("keymaterial: malformed container")

	// ErrNoPrivateKey is returned when a container decodes successfully
	// but holds no private-key entry.
	ErrNoPrivateKey = errors.New("keymaterial: container has no private key entry")
)

// Entry is one (private key, certificate chain) pair recovered from a
// container. Chain is ordered head-to-root: Chain[0] is the entry's own
// leaf certificate.
type Entry struct {
	Alias      string
	PrivateKey crypto.PrivateKey
	Chain      []*x509.Certificate
}

// Material is the full set of entries recovered from a container.
type Material struct {
	Entries []*Entry
}

// Default returns the container's first entry, the common case of a
// single-key keystore. It returns nil if Material has no entries.
func (m *Material) Default() *Entry {
	if m == nil || len(m.Entries) == 0 {
		return nil
	}
	return m.Entries[0]
}

// Load auto-detects data's container format and decodes it. keyPassword
// may be nil, in which case storePassword is reused for per-key decryption.
func Load(data []byte, storePassword, keyPassword password.Password) (*Material, error) {
	if len(data) < 4 {
		return nil, ErrMalformedContainer
	}
	if keyPassword == nil {
		keyPassword = storePassword
	}

	switch {
	case isJKSMagic(data):
		return loadJKS(data, storePassword, keyPassword)
	case isJCEKSMagic(data):
		return loadJCEKS(data, storePassword, keyPassword)
	case isBKSLike(data):
		return nil, ErrUnsupportedContainer
	case looksLikePKCS12(data):
		return loadPKCS12(data, storePassword, keyPassword)
	default:
		return nil, ErrMalformedContainer
	}
}

func requireAtLeastOneKey(m *Material) error {
	for _, e := range m.Entries {
		if e.PrivateKey != nil {
			return nil
		}
	}
	return ErrNoPrivateKey
}

// requireConsistentKeys checks every entry that carries both a private key
// and a leaf certificate against keysConsistent, the lightweight pairing
// check a container's own integrity MAC never performs: the MAC proves the
// container wasn't tampered with, not that any given key was packaged next
// to the certificate it belongs with.
func requireConsistentKeys(m *Material) error {
	for _, e := range m.Entries {
		if e.PrivateKey == nil || len(e.Chain) == 0 {
			continue
		}
		if !keysConsistent(e.Chain[0].PublicKey, e.PrivateKey) {
			return fmt.Errorf("%w: private key does not match leaf certificate (alias %q)", ErrMalformedContainer, e.Alias)
		}
	}
	return nil
}

// keysConsistent reports whether priv is the private half of leafPub: RSA
// modulus equality, EC point equality, Ed25519 byte equality, or DSA
// (p, q, g, y) parameter equality, depending on which key type leafPub is.
func keysConsistent(leafPub crypto.PublicKey, priv crypto.PrivateKey) bool {
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		p, ok := leafPub.(*rsa.PublicKey)
		return ok && k.N.Cmp(p.N) == 0
	case *ecdsa.PrivateKey:
		p, ok := leafPub.(*ecdsa.PublicKey)
		return ok && k.PublicKey.Equal(p)
	case ed25519.PrivateKey:
		p, ok := leafPub.(ed25519.PublicKey)
		return ok && k.Public().(ed25519.PublicKey).Equal(p)
	case *dsa.PrivateKey:
		p, ok := leafPub.(*dsa.PublicKey)
		return ok && k.PublicKey.P.Cmp(p.P) == 0 && k.PublicKey.Q.Cmp(p.Q) == 0 &&
			k.PublicKey.G.Cmp(p.G) == 0 && k.PublicKey.Y.Cmp(p.Y) == 0
	default:
		return false
	}
}
