package keymaterial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudpki/tlsconfig/internal/encoding"
	"github.com/cloudpki/tlsconfig/internal/testutil"
)

func TestLoadPEMPlainECKey(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	leaf, err := testutil.GenerateTestServerCert(ca, "localhost")
	require.NoError(t, err)

	combined := append(append([]byte{}, leaf.CertPEM...), leaf.KeyPEM...)
	m, err := LoadPEM(combined, nil)
	require.NoError(t, err)

	entry := m.Default()
	require.NotNil(t, entry)
	assert.Equal(t, leaf.Cert.Raw, entry.Chain[0].Raw)
	assert.NotNil(t, entry.PrivateKey)
}

func TestLoadPEMEncryptedPKCS8Key(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	leaf, err := testutil.GenerateTestServerCert(ca, "localhost")
	require.NoError(t, err)

	pwd := mustPassword(t, "keypass")
	encKeyPEM, err := encoding.EncodePrivateKeyPEM(leaf.Key, pwd)
	require.NoError(t, err)

	combined := append(append([]byte{}, leaf.CertPEM...), encKeyPEM...)
	m, err := LoadPEM(combined, pwd)
	require.NoError(t, err)

	entry := m.Default()
	require.NotNil(t, entry)
	assert.NotNil(t, entry.PrivateKey)
}

func TestLoadPEMEncryptedPKCS8KeyWrongPassword(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	leaf, err := testutil.GenerateTestServerCert(ca, "localhost")
	require.NoError(t, err)

	encKeyPEM, err := encoding.EncodePrivateKeyPEM(leaf.Key, mustPassword(t, "correct"))
	require.NoError(t, err)

	combined := append(append([]byte{}, leaf.CertPEM...), encKeyPEM...)
	_, err = LoadPEM(combined, mustPassword(t, "wrong"))
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestLoadPEMNoPrivateKey(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)

	_, err = LoadPEM(ca.CertPEM, nil)
	assert.ErrorIs(t, err, ErrNoPrivateKey)
}

func TestLoadPEMEmptyInput(t *testing.T) {
	_, err := LoadPEM(nil, nil)
	assert.ErrorIs(t, err, ErrMalformedContainer)
}

func TestLoadPEMRejectsMismatchedKey(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	leaf, err := testutil.GenerateTestServerCert(ca, "localhost")
	require.NoError(t, err)
	other, err := testutil.GenerateTestServerCert(ca, "other.example.com")
	require.NoError(t, err)

	// leaf's certificate packaged next to other's private key.
	combined := append(append([]byte{}, leaf.CertPEM...), other.KeyPEM...)
	_, err = LoadPEM(combined, nil)
	assert.ErrorIs(t, err, ErrMalformedContainer)
}
