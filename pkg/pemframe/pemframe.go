// Package pemframe locates and classifies the PEM frames inside a byte
// stream handed to the trust/key material loaders. Raw DER input yields no
// frames from Parse; LooksLikeDER is a separate check that Parse does not
// call. PEM armor parsing
// itself is delegated to encoding/pem (stdlib) — the character-level base64
// mechanics are explicitly out of scope for this module; this package only
// decides what each block IS.
package pemframe

import (
	"encoding/pem"
)

// Kind classifies a Frame by its PEM label.
type Kind int

const (
	KindUnknown Kind = iota
	KindCertificate
	KindCertificateChain
	KindPrivateKey
	KindEncryptedPrivateKey
	KindRSAPrivateKey
	KindECPrivateKey
	KindCRL
	KindPKCS7
	KindPublicKey
)

// Frame is one classified PEM block.
type Frame struct {
	Label string
	Kind  Kind
	DER   []byte
}

var labelKinds = map[string]Kind{
	"CERTIFICATE":            KindCertificate,
	"TRUSTED CERTIFICATE":    KindCertificate,
	"X509 CERTIFICATE":       KindCertificate,
	"PRIVATE KEY":            KindPrivateKey,
	"ENCRYPTED PRIVATE KEY":  KindEncryptedPrivateKey,
	"RSA PRIVATE KEY":        KindRSAPrivateKey,
	"EC PRIVATE KEY":         KindECPrivateKey,
	"X509 CRL":               KindCRL,
	"PKCS7":                  KindPKCS7,
	"PUBLIC KEY":             KindPublicKey,
	"RSA PUBLIC KEY":         KindPublicKey,
}

// Parse walks every PEM block in data and classifies it. Blocks with an
// unrecognized label are still returned, tagged KindUnknown, so callers can
// decide whether to ignore or reject them.
func Parse(data []byte) []Frame {
	var frames []Frame
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		frames = append(frames, Frame{
			Label: block.Type,
			Kind:  classify(block.Type),
			DER:   block.Bytes,
		})
		if len(rest) == 0 {
			break
		}
	}
	return frames
}

func classify(label string) Kind {
	if k, ok := labelKinds[label]; ok {
		return k
	}
	return KindUnknown
}

// LooksLikeDER reports whether data begins with a DER SEQUENCE or INTEGER
// lead byte. Parse does not call it.
func LooksLikeDER(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	switch data[0] {
	case 0x30, 0x02:
		return true
	default:
		return false
	}
}
