package keymaterial

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // format-defining digest, not a security choice
	"crypto/subtle"
	"crypto/x509"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cloudpki/tlsconfig/pkg/der"
	"github.com/cloudpki/tlsconfig/pkg/password"
	"github.com/cloudpki/tlsconfig/pkg/validation"
)

const jksMagic uint32 = 0xfeedfeed

const jksIntegritySalt = "Mighty Aphrodite"

func isJKSMagic(data []byte) bool {
	return len(data) >= 4 && binary.BigEndian.Uint32(data) == jksMagic
}

// loadJKS decodes a JKS-like keystore: magic, version, entry count, then
// tagged entries (private key or trusted certificate), followed by a
// trailing SHA-1 integrity digest over everything that came before it.
//
// The per-key encryption is the Sun JksKeyProtector keystream cipher: not a
// generic cipher primitive but the format-defining algorithm this
// container names, so it is implemented directly here rather than routed
// through a platform cipher provider.
func loadJKS(data []byte, storePassword, keyPassword password.Password) (*Material, error) {
	if len(data) < 12+20 {
		return nil, ErrMalformedContainer
	}
	body := data[:len(data)-20]
	trailer := data[len(data)-20:]

	storePass, err := passwordString(storePassword)
	if err != nil {
		return nil, err
	}
	if err := verifyJKSIntegrity(body, trailer, storePass); err != nil {
		return nil, err
	}

	r := bytes.NewReader(body)
	var magic, version, count uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, ErrMalformedContainer
	}
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, ErrMalformedContainer
	}
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, ErrMalformedContainer
	}

	keyPass, err := passwordString(keyPassword)
	if err != nil {
		return nil, err
	}

	m := &Material{}
	for i := uint32(0); i < count; i++ {
		entry, err := readJKSEntry(r, keyPass)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			m.Entries = append(m.Entries, entry)
		}
	}

	if err := requireAtLeastOneKey(m); err != nil {
		return nil, err
	}
	if err := requireConsistentKeys(m); err != nil {
		return nil, err
	}
	return m, nil
}

func verifyJKSIntegrity(body, trailer []byte, storePassword string) error {
	h := sha1.New() //nolint:gosec
	h.Write(utf16be(storePassword))
	h.Write([]byte(jksIntegritySalt))
	h.Write(body)
	sum := h.Sum(nil)
	if subtle.ConstantTimeCompare(sum, trailer) != 1 {
		return ErrWrongPassword
	}
	return nil
}

func readJKSEntry(r *bytes.Reader, keyPassword string) (*Entry, error) {
	var tag uint32
	if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
		return nil, ErrMalformedContainer
	}
	alias, err := readJKSUTF(r)
	if err != nil {
		return nil, err
	}
	alias = validation.SanitizeForLog(alias)
	var timestamp int64
	if err := binary.Read(r, binary.BigEndian, &timestamp); err != nil {
		return nil, ErrMalformedContainer
	}

	switch tag {
	case 1: // private key entry
		return readJKSPrivateKeyEntry(r, alias, keyPassword)
	case 2: // trusted certificate entry
		if _, _, err := readJKSCert(r); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, ErrMalformedContainer
	}
}

func readJKSPrivateKeyEntry(r *bytes.Reader, alias, keyPassword string) (*Entry, error) {
	var encodedLen uint32
	if err := binary.Read(r, binary.BigEndian, &encodedLen); err != nil {
		return nil, ErrMalformedContainer
	}
	encoded := make([]byte, encodedLen)
	if _, err := io.ReadFull(r, encoded); err != nil {
		return nil, ErrMalformedContainer
	}

	privateKey, err := decryptJKSKey(encoded, keyPassword)
	if err != nil {
		return nil, err
	}

	var certCount uint32
	if err := binary.Read(r, binary.BigEndian, &certCount); err != nil {
		return nil, ErrMalformedContainer
	}
	chain := make([]*x509.Certificate, 0, certCount)
	for i := uint32(0); i < certCount; i++ {
		_, certDER, err := readJKSCert(r)
		if err != nil {
			return nil, err
		}
		cert, err := x509.ParseCertificate(certDER)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
		}
		chain = append(chain, cert)
	}

	return &Entry{Alias: alias, PrivateKey: privateKey, Chain: chain}, nil
}

func readJKSCert(r *bytes.Reader) (certType string, certDER []byte, err error) {
	certType, err = readJKSUTF(r)
	if err != nil {
		return "", nil, err
	}
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", nil, ErrMalformedContainer
	}
	certDER = make([]byte, n)
	if _, err := io.ReadFull(r, certDER); err != nil {
		return "", nil, ErrMalformedContainer
	}
	return certType, certDER, nil
}

func readJKSUTF(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", ErrMalformedContainer
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", ErrMalformedContainer
	}
	return string(buf), nil
}

// decryptJKSKey unwraps the ASN.1 { algorithm, OCTET STRING encryptedData }
// envelope and runs the keystream cipher: encryptedData is salt(20) ||
// ciphertext || check(20); each 20-byte ciphertext block is XORed against
// SHA-1(password || previousDigest), chained starting from the salt.
func decryptJKSKey(encoded []byte, keyPassword string) (interface{}, error) {
	obj, err := der.Decode(encoded)
	if err != nil || !obj.Tag.Universal(der.TagSequence) || len(obj.Children) < 2 {
		return nil, fmt.Errorf("%w: encrypted key envelope", ErrMalformedContainer)
	}
	octet := obj.Children[len(obj.Children)-1]
	if !octet.Tag.Universal(der.TagOctetString) {
		return nil, fmt.Errorf("%w: encrypted key envelope", ErrMalformedContainer)
	}
	encryptedData := octet.Content
	if len(encryptedData) < 40 {
		return nil, fmt.Errorf("%w: encrypted key too short", ErrMalformedContainer)
	}

	salt := encryptedData[:20]
	ciphertext := encryptedData[20 : len(encryptedData)-20]
	check := encryptedData[len(encryptedData)-20:]
	pass := utf16be(keyPassword)

	plaintext := make([]byte, len(ciphertext))
	digest := salt
	for offset := 0; offset < len(ciphertext); offset += 20 {
		h := sha1.New() //nolint:gosec
		h.Write(pass)
		h.Write(digest)
		digest = h.Sum(nil)

		end := offset + 20
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		for i := offset; i < end; i++ {
			plaintext[i] = ciphertext[i] ^ digest[i-offset]
		}
	}

	h := sha1.New() //nolint:gosec
	h.Write(pass)
	h.Write(plaintext)
	if subtle.ConstantTimeCompare(h.Sum(nil), check) != 1 {
		return nil, ErrWrongPassword
	}

	key, err := x509.ParsePKCS8PrivateKey(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}
	return key, nil
}

// utf16be encodes s the way the JVM's DataOutputStream.writeUTF-adjacent
// password hashing expects: UTF-16BE code units, no byte-order mark.
func utf16be(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		if r <= 0xffff {
			out = append(out, byte(r>>8), byte(r))
			continue
		}
		r -= 0x10000
		hi := 0xd800 + (r >> 10)
		lo := 0xdc00 + (r & 0x3ff)
		out = append(out, byte(hi>>8), byte(hi), byte(lo>>8), byte(lo))
	}
	return out
}
