package trust

import (
	"crypto/rand"
	"crypto/x509"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudpki/tlsconfig/internal/testutil"
)

func TestLoadPEMAnchors(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)

	m, err := LoadPEM(ca.CertPEM)
	require.NoError(t, err)
	require.Len(t, m.Anchors, 1)
	assert.Equal(t, ca.Cert.Subject.CommonName, m.Anchors[0].Subject.CommonName)
}

func TestLoadPEMEmptyIsError(t *testing.T) {
	_, err := LoadPEM([]byte("not pem data"))
	assert.ErrorIs(t, err, ErrNoMaterial)
}

func TestChainTrustAll(t *testing.T) {
	chain := NewChain(All)
	assert.True(t, chain.IsTrustAll())

	pool, err := chain.Pool()
	require.NoError(t, err)
	assert.Nil(t, pool)
	assert.Nil(t, chain.CRLs())
}

func TestChainConcreteMaterial(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)

	m, err := LoadPEM(ca.CertPEM)
	require.NoError(t, err)

	chain := NewChain(m)
	assert.False(t, chain.IsTrustAll())

	pool, err := chain.Pool()
	require.NoError(t, err)
	require.NotNil(t, pool)
}

func TestMaterialAdd(t *testing.T) {
	ca1, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	ca2, err := testutil.GenerateTestCA()
	require.NoError(t, err)

	m1, err := LoadPEM(ca1.CertPEM)
	require.NoError(t, err)
	m2, err := LoadPEM(ca2.CertPEM)
	require.NoError(t, err)

	m1.Add(m2)
	assert.Len(t, m1.Anchors, 2)
}

func TestChainUnionReplacesEmptyChain(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	m, err := LoadPEM(ca.CertPEM)
	require.NoError(t, err)

	var empty *Chain
	next := empty.Union(m)
	require.False(t, next.IsTrustAll())
	pool, err := next.Pool()
	require.NoError(t, err)
	assert.NotNil(t, pool)
}

func TestChainUnionCombinesConcreteMaterial(t *testing.T) {
	ca1, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	ca2, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	m1, err := LoadPEM(ca1.CertPEM)
	require.NoError(t, err)
	m2, err := LoadPEM(ca2.CertPEM)
	require.NoError(t, err)

	chain := NewChain(m1).Union(m2)
	assert.False(t, chain.IsTrustAll())
	pool, err := chain.Pool()
	require.NoError(t, err)
	assert.NotNil(t, pool)
}

func TestChainUnionStaysTrustAllOnceSet(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	m, err := LoadPEM(ca.CertPEM)
	require.NoError(t, err)

	chain := NewChain(All).Union(m)
	assert.True(t, chain.IsTrustAll())
}

func TestChainUnionWithTrustAllBecomesTrustAll(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	m, err := LoadPEM(ca.CertPEM)
	require.NoError(t, err)

	chain := NewChain(m).Union(All)
	assert.True(t, chain.IsTrustAll())
}

func signCRL(t *testing.T, ca *testutil.TestCA, revoked ...*big.Int) *x509.RevocationList {
	t.Helper()
	entries := make([]x509.RevocationListEntry, len(revoked))
	for i, serial := range revoked {
		entries[i] = x509.RevocationListEntry{
			SerialNumber:   serial,
			RevocationTime: time.Now(),
		}
	}
	template := &x509.RevocationList{
		RevokedCertificateEntries: entries,
		Number:                    big.NewInt(1),
		ThisUpdate:                time.Now(),
		NextUpdate:                time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateRevocationList(rand.Reader, template, ca.Cert, ca.Key)
	require.NoError(t, err)
	crl, err := x509.ParseRevocationList(der)
	require.NoError(t, err)
	return crl
}

func TestCheckRevocationRevokedSerial(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	leaf, err := testutil.GenerateTestClientCert(ca, "revoked-client")
	require.NoError(t, err)

	crl := signCRL(t, ca, leaf.Cert.SerialNumber)

	err = CheckRevocation(leaf.Cert, []*x509.RevocationList{crl})
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestCheckRevocationNotOnCRLIsClean(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	leaf, err := testutil.GenerateTestClientCert(ca, "clean-client")
	require.NoError(t, err)

	crl := signCRL(t, ca, big.NewInt(999))

	err = CheckRevocation(leaf.Cert, []*x509.RevocationList{crl})
	assert.NoError(t, err)
}

func TestCheckRevocationNoMatchingIssuerIsUnavailable(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	otherCA, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	leaf, err := testutil.GenerateTestClientCert(ca, "unrelated-client")
	require.NoError(t, err)

	crl := signCRL(t, otherCA, leaf.Cert.SerialNumber)

	err = CheckRevocation(leaf.Cert, []*x509.RevocationList{crl})
	assert.ErrorIs(t, err, ErrCRLUnavailable)
}
