package keymaterial

import (
	"crypto/ecdsa"
	"crypto/sha1" //nolint:gosec
	"crypto/x509"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudpki/tlsconfig/internal/testutil"
	"github.com/cloudpki/tlsconfig/pkg/der"
	"github.com/cloudpki/tlsconfig/pkg/password"
)

// buildJKSContainer assembles a minimal JKS-like keystore byte-for-byte
// compatible with loadJKS, exercising the format this package only ever
// reads in production code. It exists purely to give the decode path
// something real to decode, since no keytool-generated fixture is checked
// into the repository.
func buildJKSContainer(t *testing.T, alias string, key *ecdsa.PrivateKey, chain []*x509.Certificate, storePassword, keyPassword string) []byte {
	t.Helper()

	plaintext, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	encoded := encryptJKSKeyForTest(t, plaintext, keyPassword)

	body := new(binWriter)
	body.u32(jksMagic)
	body.u32(2)
	body.u32(1)

	body.u32(1) // tag: private key entry
	body.utf(alias)
	body.u64(0)
	body.u32(uint32(len(encoded)))
	body.bytes(encoded)
	body.u32(uint32(len(chain)))
	for _, c := range chain {
		body.utf("X.509")
		body.u32(uint32(len(c.Raw)))
		body.bytes(c.Raw)
	}

	trailer := jksTrailer(storePassword, body.Bytes())
	return append(body.Bytes(), trailer...)
}

func jksTrailer(storePassword string, body []byte) []byte {
	h := sha1.New() //nolint:gosec
	h.Write(utf16be(storePassword))
	h.Write([]byte(jksIntegritySalt))
	h.Write(body)
	return h.Sum(nil)
}

// encryptJKSKeyForTest runs the keystream cipher forward: the same chained
// SHA-1 keystream decryptJKSKey consumes is its own inverse, so encrypting
// is "decrypt with a fresh salt."
func encryptJKSKeyForTest(t *testing.T, plaintext []byte, keyPassword string) []byte {
	t.Helper()

	salt := make([]byte, 20)
	for i := range salt {
		salt[i] = byte(i + 1)
	}
	pass := utf16be(keyPassword)

	ciphertext := make([]byte, len(plaintext))
	digest := salt
	for offset := 0; offset < len(plaintext); offset += 20 {
		h := sha1.New() //nolint:gosec
		h.Write(pass)
		h.Write(digest)
		digest = h.Sum(nil)

		end := offset + 20
		if end > len(plaintext) {
			end = len(plaintext)
		}
		for i := offset; i < end; i++ {
			ciphertext[i] = plaintext[i] ^ digest[i-offset]
		}
	}

	h := sha1.New() //nolint:gosec
	h.Write(pass)
	h.Write(plaintext)
	check := h.Sum(nil)

	encryptedData := append(append(append([]byte{}, salt...), ciphertext...), check...)

	envelope := &der.Object{
		Tag:      der.Tag{Class: der.ClassUniversal, Constructed: true, Number: der.TagSequence},
		Children: []*der.Object{
			{Tag: der.Tag{Class: der.ClassUniversal, Number: der.TagNull}},
			{Tag: der.Tag{Class: der.ClassUniversal, Number: der.TagOctetString}, Content: encryptedData},
		},
	}
	return envelope.Encode()
}

type binWriter struct {
	buf []byte
}

func (w *binWriter) Bytes() []byte { return w.buf }

func (w *binWriter) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *binWriter) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *binWriter) utf(s string) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(len(s)))
	w.buf = append(w.buf, b[:]...)
	w.buf = append(w.buf, []byte(s)...)
}

func (w *binWriter) bytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func mustPassword(t *testing.T, s string) password.Password {
	t.Helper()
	p, err := password.NewClearPasswordFromString(s)
	require.NoError(t, err)
	return p
}

func TestLoadJKSRoundTrip(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)

	data := buildJKSContainer(t, "mykey", ca.Key, []*x509.Certificate{ca.Cert}, "storepass", "keypass")

	m, err := Load(data, mustPassword(t, "storepass"), mustPassword(t, "keypass"))
	require.NoError(t, err)
	entry := m.Default()
	require.NotNil(t, entry)
	assert.Equal(t, "mykey", entry.Alias)
	assert.Len(t, entry.Chain, 1)
	assert.Equal(t, ca.Cert.Raw, entry.Chain[0].Raw)
}

func TestLoadJKSDefaultsKeyPasswordToStorePassword(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)

	data := buildJKSContainer(t, "mykey", ca.Key, []*x509.Certificate{ca.Cert}, "shared", "shared")

	m, err := Load(data, mustPassword(t, "shared"), nil)
	require.NoError(t, err)
	assert.NotNil(t, m.Default())
}

func TestLoadJKSWrongStorePassword(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)

	data := buildJKSContainer(t, "mykey", ca.Key, []*x509.Certificate{ca.Cert}, "storepass", "keypass")

	_, err = Load(data, mustPassword(t, "wrong"), mustPassword(t, "keypass"))
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestLoadJKSWrongKeyPassword(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)

	data := buildJKSContainer(t, "mykey", ca.Key, []*x509.Certificate{ca.Cert}, "storepass", "keypass")

	_, err = Load(data, mustPassword(t, "storepass"), mustPassword(t, "wrong"))
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestLoadJKSTruncatedContainer(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)

	data := buildJKSContainer(t, "mykey", ca.Key, []*x509.Certificate{ca.Cert}, "storepass", "keypass")
	truncated := data[:len(data)-30]

	_, err = Load(truncated, mustPassword(t, "storepass"), mustPassword(t, "keypass"))
	assert.Error(t, err)
}

func TestLoadJKSRejectsMismatchedKey(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	other, err := testutil.GenerateTestCA()
	require.NoError(t, err)

	// ca's certificate packaged next to other's private key.
	data := buildJKSContainer(t, "mykey", other.Key, []*x509.Certificate{ca.Cert}, "storepass", "keypass")

	_, err = Load(data, mustPassword(t, "storepass"), mustPassword(t, "keypass"))
	assert.ErrorIs(t, err, ErrMalformedContainer)
}

func TestIsJKSMagic(t *testing.T) {
	assert.True(t, isJKSMagic([]byte{0xfe, 0xed, 0xfe, 0xed, 0x00}))
	assert.False(t, isJKSMagic([]byte{0x00, 0x00, 0x00, 0x00}))
	assert.False(t, isJKSMagic(nil))
}
