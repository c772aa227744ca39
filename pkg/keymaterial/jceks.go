package keymaterial

import (
	"bytes"
	"crypto/cipher"
	"crypto/des" //nolint:staticcheck // format-defining cipher for PBEWithMD5AndTripleDES, not a general-purpose choice
	"crypto/md5" //nolint:gosec // format-defining digest, not a security choice
	"crypto/x509"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cloudpki/tlsconfig/pkg/der"
	"github.com/cloudpki/tlsconfig/pkg/password"
	"github.com/cloudpki/tlsconfig/pkg/validation"
)

const jceksMagic uint32 = 0xcececece

func isJCEKSMagic(data []byte) bool {
	return len(data) >= 4 && binary.BigEndian.Uint32(data) == jceksMagic
}

const (
	jceksTagPrivateKey = 1
	jceksTagCert       = 2
	jceksTagSecretKey  = 3
)

// loadJCEKS decodes a JCEKS-like keystore. It is structurally JKS (same
// magic-then-version-then-count layout, same trailing SHA-1 integrity
// digest) plus a third entry tag for secret keys, which this package does
// not model and skips over without error.
func loadJCEKS(data []byte, storePassword, keyPassword password.Password) (*Material, error) {
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
		entry, err := readJCEKSEntry(r, keyPass)
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

func readJCEKSEntry(r *bytes.Reader, keyPassword string) (*Entry, error) {
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
	case jceksTagPrivateKey:
		return readJCEKSPrivateKeyEntry(r, alias, keyPassword)
	case jceksTagCert:
		if _, _, err := readJKSCert(r); err != nil {
			return nil, err
		}
		return nil, nil
	case jceksTagSecretKey:
		return nil, skipJCEKSSecretKeyEntry(r)
	default:
		return nil, ErrMalformedContainer
	}
}

func readJCEKSPrivateKeyEntry(r *bytes.Reader, alias, keyPassword string) (*Entry, error) {
	var encodedLen uint32
	if err := binary.Read(r, binary.BigEndian, &encodedLen); err != nil {
		return nil, ErrMalformedContainer
	}
	encoded := make([]byte, encodedLen)
	if _, err := io.ReadFull(r, encoded); err != nil {
		return nil, ErrMalformedContainer
	}

	privateKey, err := decryptJCEKSKey(encoded, keyPassword)
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

// skipJCEKSSecretKeyEntry discards a sealed secret-key blob. This package
// loads asymmetric key material only; secret keys have no Entry to land in.
func skipJCEKSSecretKeyEntry(r *bytes.Reader) error {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return ErrMalformedContainer
	}
	if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
		return ErrMalformedContainer
	}
	return nil
}

// decryptJCEKSKey unwraps the { AlgorithmIdentifier, OCTET STRING } envelope
// and runs PBEWithMD5AndTripleDES: key and IV come from pbeDeriveMD5 (the
// RFC 7292 Appendix B construction over MD5, ids 1 and 2) and drive 3-key
// 3DES-CBC, with PKCS#5 padding on the plaintext.
func decryptJCEKSKey(encoded []byte, keyPassword string) (interface{}, error) {
	obj, err := der.Decode(encoded)
	if err != nil || !obj.Tag.Universal(der.TagSequence) || len(obj.Children) < 2 {
		return nil, fmt.Errorf("%w: encrypted key envelope", ErrMalformedContainer)
	}
	algID := obj.Children[0]
	octet := obj.Children[len(obj.Children)-1]
	if !algID.Tag.Universal(der.TagSequence) || len(algID.Children) < 2 || !octet.Tag.Universal(der.TagOctetString) {
		return nil, fmt.Errorf("%w: encrypted key envelope", ErrMalformedContainer)
	}

	params := algID.Children[1]
	if !params.Tag.Universal(der.TagSequence) || len(params.Children) < 2 {
		return nil, fmt.Errorf("%w: PBE parameters", ErrMalformedContainer)
	}
	salt := params.Children[0].Content
	iterations, err := decodeSmallInt(params.Children[1])
	if err != nil || iterations <= 0 {
		return nil, fmt.Errorf("%w: PBE iteration count", ErrMalformedContainer)
	}

	pass := utf16be(keyPassword)
	key := pbeDeriveMD5(pass, salt, int(iterations), 1, 24)
	iv := pbeDeriveMD5(pass, salt, int(iterations), 2, 8)

	block, err := des.NewTripleDESCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}
	ciphertext := octet.Content
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("%w: ciphertext not block-aligned", ErrMalformedContainer)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = removePKCS5Padding(plaintext, block.BlockSize())
	if err != nil {
		return nil, ErrWrongPassword
	}

	pkey, err := x509.ParsePKCS8PrivateKey(plaintext)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return pkey, nil
}

func removePKCS5Padding(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}

// pbeDeriveMD5 implements the RFC 7292 Appendix B key-material derivation
// generalized to MD5, which is the construction behind PBEWithMD5AndDES and
// PBEWithMD5AndTripleDES: id selects key material (1) or IV material (2).
func pbeDeriveMD5(password, salt []byte, iterations int, id byte, size int) []byte {
	const v = 64 // MD5 block size
	const u = 16 // MD5 digest size

	d := bytes.Repeat([]byte{id}, v)
	s := cyclicFill(salt, v)
	p := cyclicFill(password, v)
	i := append(append([]byte{}, s...), p...)

	result := make([]byte, 0, size+u)
	for len(result) < size {
		a := md5.Sum(append(append([]byte{}, d...), i...)) //nolint:gosec
		sum := a[:]
		for n := 1; n < iterations; n++ {
			next := md5.Sum(sum) //nolint:gosec
			sum = next[:]
		}
		result = append(result, sum...)

		if len(result) < size && len(i) > 0 {
			b := make([]byte, v)
			for n := range b {
				b[n] = sum[n%u]
			}
			for off := 0; off < len(i); off += v {
				addWithCarry(i[off:off+v], b)
			}
		}
	}
	return result[:size]
}

func cyclicFill(b []byte, v int) []byte {
	if len(b) == 0 {
		return nil
	}
	n := ((len(b) + v - 1) / v) * v
	out := make([]byte, n)
	for i := range out {
		out[i] = b[i%len(b)]
	}
	return out
}

// addWithCarry sets a = a + b + 1 (mod 2^(8*len(a))), the Appendix B
// step 6C update of each I block.
func addWithCarry(a, b []byte) {
	carry := 1
	for i := len(a) - 1; i >= 0; i-- {
		sum := int(a[i]) + int(b[i]) + carry
		a[i] = byte(sum)
		carry = sum >> 8
	}
}
