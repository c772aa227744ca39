package keymaterial

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/cloudpki/tlsconfig/internal/encoding"
	"github.com/cloudpki/tlsconfig/pkg/password"
	"github.com/cloudpki/tlsconfig/pkg/pemframe"
)

// LoadPEM recovers a single key-plus-chain Entry from standalone PEM
// material — a certificate chain followed by a private key — the form the
// original's KeyMaterial.PEM loader accepts directly instead of unwrapping
// a keystore container. keyPassword is consulted only for an "ENCRYPTED
// PRIVATE KEY" block and is otherwise ignored.
func LoadPEM(data []byte, keyPassword password.Password) (*Material, error) {
	frames := pemframe.Parse(data)
	if len(frames) == 0 {
		return nil, ErrMalformedContainer
	}

	var chain []*x509.Certificate
	var key crypto.PrivateKey

	for _, f := range frames {
		switch f.Kind {
		case pemframe.KindCertificate, pemframe.KindCertificateChain:
			cert, err := x509.ParseCertificate(f.DER)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
			}
			chain = append(chain, cert)

		case pemframe.KindPrivateKey:
			k, err := encoding.DecodePrivateKeyPEM(rearmor(f.Label, f.DER), nil)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
			}
			key = k

		case pemframe.KindEncryptedPrivateKey:
			k, err := encoding.DecodePrivateKeyPEM(rearmor(f.Label, f.DER), keyPassword)
			if err != nil {
				if errors.Is(err, encoding.ErrInvalidPassword) {
					return nil, ErrWrongPassword
				}
				return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
			}
			key = k

		case pemframe.KindRSAPrivateKey:
			k, err := x509.ParsePKCS1PrivateKey(f.DER)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
			}
			key = k

		case pemframe.KindECPrivateKey:
			k, err := x509.ParseECPrivateKey(f.DER)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
			}
			key = k
		}
	}

	if key == nil {
		return nil, ErrNoPrivateKey
	}

	m := &Material{Entries: []*Entry{{
		Alias:      "pem",
		PrivateKey: key,
		Chain:      chain,
	}}}
	if err := requireConsistentKeys(m); err != nil {
		return nil, err
	}
	return m, nil
}

// rearmor re-wraps a frame's already-extracted DER back into PEM armor so
// it can be handed to a decoder that expects to do its own pem.Decode.
func rearmor(label string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: label, Bytes: der})
}
