package sslconfig

import (
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudpki/tlsconfig/internal/testutil"
	"github.com/cloudpki/tlsconfig/pkg/keymaterial"
	"github.com/cloudpki/tlsconfig/pkg/trust"
)

func validMaterial(t *testing.T) *keymaterial.Material {
	t.Helper()
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	leaf, err := testutil.GenerateTestServerCert(ca, "localhost")
	require.NoError(t, err)
	return &keymaterial.Material{Entries: []*keymaterial.Entry{{
		Alias:      "server",
		PrivateKey: leaf.Key,
		Chain:      []*x509.Certificate{leaf.Cert},
	}}}
}

func defectiveMaterial() *keymaterial.Material {
	return &keymaterial.Material{Entries: []*keymaterial.Entry{{Alias: "broken"}}}
}

func TestNewDefaults(t *testing.T) {
	c := New(nil)
	assert.Equal(t, DefaultProtocol, c.defaultProtocol)
	assert.True(t, c.doVerify)
	assert.True(t, c.checkCRL)
	assert.True(t, c.wantClientAuth)
	assert.False(t, c.needClientAuth)
	assert.Equal(t, DefaultSoTimeoutMs, c.soTimeoutMs)
	assert.Equal(t, DefaultConnectTimeout, c.connectTimeoutMs)
	assert.Equal(t, 0, c.InitCount())
	assert.False(t, c.IsBuilt())
}

func TestSetEnabledCiphersRejectsUnsupported(t *testing.T) {
	c := New(nil)
	supported := SupportedCiphers()
	require.NotEmpty(t, supported)

	err := c.SetEnabledCiphers([]string{supported[0], "BOGUS"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "BOGUS")
}

func TestSetEnabledCiphersAcceptsSubsetAndPreservesOrder(t *testing.T) {
	c := New(nil)
	supported := SupportedCiphers()
	require.True(t, len(supported) >= 2)
	chosen := []string{supported[1], supported[0]}

	require.NoError(t, c.SetEnabledCiphers(chosen))
	assert.Equal(t, chosen, c.GetEnabledCiphers())
}

func TestSetEnabledProtocolsRejectsUnknown(t *testing.T) {
	c := New(nil)
	err := c.SetEnabledProtocols([]string{"TLSv1", "MADE_UP"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "MADE_UP")
}

func TestSetEnabledProtocolsAcceptsKnownSubset(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.SetEnabledProtocols([]string{"TLSv1", "SSLv3"}))
	assert.Equal(t, []string{"TLSv1", "SSLv3"}, c.GetEnabledProtocols())
}

func TestEnabledCiphersAndProtocolsDoNotMarkDirty(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.SetKeyMaterial(validMaterial(t)))
	require.True(t, c.IsBuilt())
	initCountBefore := c.InitCount()

	require.NoError(t, c.SetEnabledCiphers(SupportedCiphers()[:1]))
	require.NoError(t, c.SetEnabledProtocols([]string{"TLSv1"}))

	assert.True(t, c.IsBuilt())
	assert.Equal(t, initCountBefore, c.InitCount())
}

func TestTimeoutMutatorsRejectNegativeAndDoNotMarkDirty(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.SetKeyMaterial(validMaterial(t)))
	initCountBefore := c.InitCount()

	require.NoError(t, c.SetSoTimeout(5000))
	require.NoError(t, c.SetConnectTimeout(1000))
	assert.Equal(t, initCountBefore, c.InitCount())

	err := c.SetSoTimeout(-1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	err = c.SetConnectTimeout(-1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestClientAuthMutatorsDoNotMarkDirty(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.SetKeyMaterial(validMaterial(t)))
	initCountBefore := c.InitCount()

	c.SetWantClientAuth(false)
	c.SetNeedClientAuth(true)

	assert.True(t, c.IsBuilt())
	assert.Equal(t, initCountBefore, c.InitCount())
}

func TestTrustMaterialAddTriggersEagerRebuild(t *testing.T) {
	c := New(nil)
	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	m, err := trust.LoadPEM(ca.CertPEM)
	require.NoError(t, err)

	require.NoError(t, c.AddTrustMaterial(m))
	assert.True(t, c.IsBuilt())
	assert.Equal(t, 1, c.InitCount())
}

// TestEagerThenLazyReload checks that exactly 5 mutator-triggered reloads
// eagerly rebuild, and the 6th leaves tls_context Empty until the next
// socket request.
func TestEagerThenLazyReload(t *testing.T) {
	c := New(nil)

	for i := 0; i < eagerRebuildLimit; i++ {
		require.NoError(t, c.SetKeyMaterial(validMaterial(t)))
		assert.True(t, c.IsBuilt(), "build %d should be eager", i+1)
		assert.Equal(t, i+1, c.InitCount())
	}

	require.NoError(t, c.SetKeyMaterial(validMaterial(t)))
	assert.False(t, c.IsBuilt(), "6th reload must stay lazy")
	assert.Equal(t, eagerRebuildLimit, c.InitCount())

	factory, err := c.GetSocketFactory()
	require.NoError(t, err)
	assert.NotNil(t, factory)
	assert.True(t, c.IsBuilt())
	assert.Equal(t, eagerRebuildLimit+1, c.InitCount())
}

// TestEagerWindowBuildFailurePropagatesTyped checks the eager branch of the
// failure propagation policy: within the init_count ≤ 5 window, a typed
// build failure surfaces directly from the mutator that caused it.
func TestEagerWindowBuildFailurePropagatesTyped(t *testing.T) {
	c := New(nil)
	err := c.SetKeyMaterial(defectiveMaterial())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCertificateInvalid)
	assert.False(t, c.IsBuilt())
}

// TestLateInitWrapsDefectiveMaterial checks that after the eager window
// closes, a defective material surfaces as a LateInitError only when the
// next socket-producing call forces the rebuild.
func TestLateInitWrapsDefectiveMaterial(t *testing.T) {
	c := New(nil)
	for i := 0; i < eagerRebuildLimit; i++ {
		require.NoError(t, c.SetKeyMaterial(validMaterial(t)))
	}
	require.NoError(t, c.SetKeyMaterial(validMaterial(t))) // 6th, lazy
	require.NoError(t, c.SetKeyMaterial(defectiveMaterial()))

	_, err := c.GetSocketFactory()
	require.Error(t, err)
	assert.True(t, IsLateInit(err))
	assert.ErrorIs(t, err, ErrCertificateInvalid)
}

func TestSetTrustMaterialAllBuildsTrustAllChain(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.SetTrustMaterial(trust.All))
	assert.True(t, c.IsBuilt())
	assert.True(t, c.trustChain.IsTrustAll())
}

func TestUseClientModeStartsAsShadowDefault(t *testing.T) {
	c := New(nil)
	assert.Nil(t, c.useClientMode)
	c.SetUseClientMode(true)
	require.NotNil(t, c.useClientMode)
	assert.True(t, *c.useClientMode)
}
