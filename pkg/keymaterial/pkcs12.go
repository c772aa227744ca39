package keymaterial

import (
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/cloudpki/tlsconfig/pkg/der"
	"github.com/cloudpki/tlsconfig/pkg/password"
)

// pkcs12ContentTypeData is the id-data ContentInfo.contentType under which
// a password-integrity PKCS#12 file wraps its AuthenticatedSafe.
// looksLikePKCS12 does not consult it: detection rests on the outer
// SEQUENCE and its version field alone.
var pkcs12ContentTypeData = der.OID{1, 2, 840, 113549, 1, 7, 1}

// looksLikePKCS12 performs a cheap structural check: the outer object is a
// SEQUENCE whose first child is an INTEGER version field, value 3.
func looksLikePKCS12(data []byte) bool {
	obj, err := der.Decode(data)
	if err != nil {
		return false
	}
	if !obj.Tag.Universal(der.TagSequence) || len(obj.Children) < 2 {
		return false
	}
	version, err := decodeSmallInt(obj.Children[0])
	if err != nil {
		return false
	}
	return version == 3
}

func decodeSmallInt(o *der.Object) (int64, error) {
	if !o.Tag.Universal(der.TagInteger) || len(o.Content) == 0 || len(o.Content) > 8 {
		return 0, der.ErrInvalidOID
	}
	var v int64
	for _, b := range o.Content {
		v = v<<8 | int64(b)
	}
	return v, nil
}

// loadPKCS12 decodes a real PKCS#12 file using golang.org/x/crypto/pkcs12,
// which already implements the RFC 7292 Appendix B PBE key derivation, the
// SHA-1 integrity MAC, and 3-key 3DES decryption this format requires —
// reusing it here means this package never hand-rolls those primitives.
//
// 40-bit RC2 PBE, the other cipher RFC 7292 allows, is recognized by
// golang.org/x/crypto/pkcs12 but rejected by it as unsupported; that
// rejection propagates here as ErrUnsupportedContainer, treated the same
// as "no platform RC2 provider" would be.
func loadPKCS12(data []byte, storePassword, keyPassword password.Password) (*Material, error) {
	storePass, err := passwordString(storePassword)
	if err != nil {
		return nil, err
	}

	key, cert, caCerts, err := pkcs12.DecodeChain(data, storePass)
	if err != nil {
		keyPass, kerr := passwordString(keyPassword)
		if kerr == nil && keyPass != storePass {
			key, cert, caCerts, err = pkcs12.DecodeChain(data, keyPass)
		}
	}
	if err != nil {
		return nil, classifyPKCS12Error(err)
	}

	chain := []*x509.Certificate{}
	if cert != nil {
		chain = append(chain, cert)
	}
	chain = append(chain, caCerts...)

	m := &Material{Entries: []*Entry{{
		Alias:      defaultAlias,
		PrivateKey: key,
		Chain:      chain,
	}}}
	if err := requireAtLeastOneKey(m); err != nil {
		return nil, err
	}
	if err := requireConsistentKeys(m); err != nil {
		return nil, err
	}
	return m, nil
}

const defaultAlias = "1"

func classifyPKCS12Error(err error) error {
	switch {
	case errors.Is(err, pkcs12.ErrIncorrectPassword), errors.Is(err, pkcs12.ErrDecryption):
		return fmt.Errorf("%w: %v", ErrWrongPassword, err)
	case strings.Contains(err.Error(), "unknown"), strings.Contains(err.Error(), "unsupported"):
		return fmt.Errorf("%w: %v", ErrUnsupportedContainer, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}
}

func passwordString(p password.Password) (string, error) {
	if p == nil {
		return "", nil
	}
	return p.String()
}
