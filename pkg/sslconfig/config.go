// Package sslconfig is the stateful heart of the module: a mutable,
// thread-safe SSL configuration record that lazily (or, early in its life,
// eagerly) materializes a platform.Context from its trust material, key
// material, and protocol/cipher preferences, and exposes the
// socket-producing operations that apply per-connection overrides around
// that context.
//
// The package never imports crypto/tls directly; every TLS-engine
// operation is reached through pkg/platform.
package sslconfig

import (
	"crypto/x509"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudpki/tlsconfig/pkg/keymaterial"
	"github.com/cloudpki/tlsconfig/pkg/logging"
	"github.com/cloudpki/tlsconfig/pkg/platform"
	"github.com/cloudpki/tlsconfig/pkg/trust"
	"github.com/cloudpki/tlsconfig/pkg/wrapper"
)

// contextState tracks the tls_context lifecycle: Empty until the first
// build, Built once a platform.Context has been materialized.
type contextState int

const (
	stateEmpty contextState = iota
	stateBuilt
)

// eagerRebuildLimit caps how many times a mutator rebuilds tls_context
// eagerly before reloads fall back to the lazy, first-socket-request path.
const eagerRebuildLimit = 5

// Defaults applied by New.
const (
	DefaultProtocol       = "TLS"
	DefaultSoTimeoutMs    = 86_400_000
	DefaultConnectTimeout = 3_600_000
	DefaultDoVerify       = true
	DefaultCheckCRL       = true
	DefaultWantClientAuth = true
	DefaultNeedClientAuth = false
)

// Config is the mutable SSL configuration record at the heart of the
// package. Every field that affects tls_context composition is guarded by
// mu; callers never touch fields directly.
type Config struct {
	mu sync.Mutex

	trustChain  *trust.Chain
	keyMaterial *keymaterial.Material

	enabledCiphers   []string
	enabledProtocols []string
	defaultProtocol  string

	doVerify bool
	checkCRL bool

	// useClientMode is nil until SetUseClientMode is called explicitly: nil
	// means "do not touch the platform default".
	useClientMode *bool

	soTimeoutMs      int
	connectTimeoutMs int

	wantClientAuth bool
	needClientAuth bool

	wrapperFactory wrapper.Factory

	currentServerChain []*x509.Certificate
	currentClientChain []*x509.Certificate

	ctx       *platform.Context
	state     contextState
	initCount int

	logger *logging.Logger
}

// New returns a Config with the package's default policy applied.
func New(logger *logging.Logger) *Config {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Config{
		defaultProtocol:  DefaultProtocol,
		doVerify:         DefaultDoVerify,
		checkCRL:         DefaultCheckCRL,
		soTimeoutMs:      DefaultSoTimeoutMs,
		connectTimeoutMs: DefaultConnectTimeout,
		wantClientAuth:   DefaultWantClientAuth,
		needClientAuth:   DefaultNeedClientAuth,
		wrapperFactory:   wrapper.Default{},
		state:            stateEmpty,
		logger:           logger,
	}
}

// SetTrustMaterial replaces the configuration's trust chain wholesale.
func (c *Config) SetTrustMaterial(m *trust.Material) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trustChain = trust.NewChain(m)
	return c.markDirtyAndReloadIfYoung()
}

// AddTrustMaterial unions m into the existing trust chain rather than
// replacing it, mirroring TrustChain's own additive Union semantics.
func (c *Config) AddTrustMaterial(m *trust.Material) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trustChain = c.trustChain.Union(m)
	return c.markDirtyAndReloadIfYoung()
}

// SetKeyMaterial replaces the configuration's key material.
func (c *Config) SetKeyMaterial(km *keymaterial.Material) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyMaterial = km
	return c.markDirtyAndReloadIfYoung()
}

// SetDoVerify toggles peer chain verification. Turning it off is
// equivalent in effect to a TRUST_ALL chain at the handshake layer, so it
// marks the context dirty.
func (c *Config) SetDoVerify(verify bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doVerify = verify
	return c.markDirtyAndReloadIfYoung()
}

// SetCheckCRL toggles revocation checking against the trust chain's loaded
// CRL set. CRL checking happens outside the handshake, so this does not
// mark the context dirty.
func (c *Config) SetCheckCRL(check bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkCRL = check
}

// SetEnabledCiphers validates list against SUPPORTED_CIPHERS and, if valid,
// stores it. Ciphers are applied per-socket, not baked into tls_context,
// so this never marks the context dirty.
func (c *Config) SetEnabledCiphers(list []string) error {
	universe := SupportedCiphers()
	if diff := unsupportedDiff(list, universe); len(diff) > 0 {
		return fmt.Errorf("%w: following ciphers not supported: %v", ErrInvalidArgument, diff)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabledCiphers = append([]string{}, list...)
	return nil
}

// GetEnabledCiphers returns the last-set enabled cipher list, preserving
// order.
func (c *Config) GetEnabledCiphers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.enabledCiphers...)
}

// SetEnabledProtocols validates list against KNOWN_PROTOCOLS and, if valid,
// stores it. Like ciphers, protocols are applied per-socket and never mark
// the context dirty.
func (c *Config) SetEnabledProtocols(list []string) error {
	universe := KnownProtocols()
	if diff := unsupportedDiff(list, universe); len(diff) > 0 {
		return fmt.Errorf("%w: following protocols not supported: %v", ErrInvalidArgument, diff)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabledProtocols = append([]string{}, list...)
	return nil
}

// GetEnabledProtocols returns the last-set enabled protocol list.
func (c *Config) GetEnabledProtocols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.enabledProtocols...)
}

// SetDefaultProtocol sets the name passed to the platform's default
// protocol selection. The context depends on this name, so it marks dirty.
func (c *Config) SetDefaultProtocol(protocol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultProtocol = protocol
	return c.markDirtyAndReloadIfYoung()
}

// SetSoTimeout sets the per-socket read/write deadline, in milliseconds.
// Does not mark dirty: it is applied per-socket in doPreConnectSocketStuff.
func (c *Config) SetSoTimeout(ms int) error {
	if ms < 0 {
		return fmt.Errorf("%w: so_timeout must be non-negative, got %d", ErrInvalidArgument, ms)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.soTimeoutMs = ms
	return nil
}

// SetConnectTimeout sets the dial timeout, in milliseconds. Does not mark
// dirty.
func (c *Config) SetConnectTimeout(ms int) error {
	if ms < 0 {
		return fmt.Errorf("%w: connect_timeout must be non-negative, got %d", ErrInvalidArgument, ms)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectTimeoutMs = ms
	return nil
}

// SetUseClientMode records an explicit client/server handshake role,
// clearing the nil "use the platform default" shadow flag.
func (c *Config) SetUseClientMode(clientMode bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.useClientMode = &clientMode
}

// SetWantClientAuth sets the "request a client certificate" flag. Applied
// per-server-socket; does not mark dirty.
func (c *Config) SetWantClientAuth(want bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wantClientAuth = want
}

// SetNeedClientAuth sets the "require a client certificate" flag. Applied
// per-server-socket; does not mark dirty.
func (c *Config) SetNeedClientAuth(need bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.needClientAuth = need
}

// SetWrapperFactory installs the socket decorator applied to every socket
// this configuration produces.
func (c *Config) SetWrapperFactory(f wrapper.Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f == nil {
		f = wrapper.Default{}
	}
	c.wrapperFactory = f
}

// CurrentServerChain returns the peer chain last observed on a server
// socket produced by this configuration.
func (c *Config) CurrentServerChain() []*x509.Certificate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentServerChain
}

// CurrentClientChain returns the peer chain last observed on a client
// socket produced by this configuration.
func (c *Config) CurrentClientChain() []*x509.Certificate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentClientChain
}

// InitCount returns the number of times tls_context has been built. It
// never decreases.
func (c *Config) InitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initCount
}

// IsBuilt reports whether tls_context is currently in the Built state.
func (c *Config) IsBuilt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateBuilt
}

// markDirtyAndReloadIfYoung drops the current tls_context and, while still
// inside the eager rebuild window, immediately rebuilds it. Callers must
// hold c.mu.
func (c *Config) markDirtyAndReloadIfYoung() error {
	c.state = stateEmpty
	c.ctx = nil
	if c.initCount < eagerRebuildLimit {
		return c.buildLocked()
	}
	return nil
}

// ensureBuilt performs the deferred Empty → Built transition on first
// socket request, wrapping a build failure as a *LateInitError. Callers
// must NOT hold c.mu.
func (c *Config) ensureBuilt() (*platform.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateBuilt && c.ctx != nil {
		return c.ctx, nil
	}
	if err := c.buildLocked(); err != nil {
		return nil, NewLateInitError(err)
	}
	return c.ctx, nil
}

// GetSocketFactory triggers the Empty → Built transition if needed and
// returns the platform's client socket factory for the resulting
// tls_context.
func (c *Config) GetSocketFactory() (*platform.ClientSocketFactory, error) {
	ctx, err := c.ensureBuilt()
	if err != nil {
		return nil, err
	}
	return platform.GetSocketFactory(ctx), nil
}

// buildLocked materializes tls_context from the current configuration.
// Callers must hold c.mu.
func (c *Config) buildLocked() error {
	params := platform.InitParams{}

	if c.keyMaterial != nil {
		entry := c.keyMaterial.Default()
		if entry == nil || entry.PrivateKey == nil {
			return fmt.Errorf("%w: key material has no usable private key entry", ErrCertificateInvalid)
		}
		params.AddCertificate(entry.Chain, entry.PrivateKey)
	}

	insecureSkipVerify := !c.doVerify
	if c.trustChain != nil {
		if c.trustChain.IsTrustAll() {
			insecureSkipVerify = true
		} else {
			pool, err := c.trustChain.Pool()
			if err != nil && !errors.Is(err, trust.ErrNoMaterial) {
				return fmt.Errorf("%w: %v", ErrTrustFailure, err)
			}
			if pool != nil {
				params.RootCAs = pool
				params.ClientCAs = pool
			}
		}
	}
	params.InsecureSkipVerify = insecureSkipVerify

	if v, ok := platform.ProtocolVersion(c.defaultProtocol); ok {
		params.MinVersion = v
	}

	ctx, err := platform.Init(params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlatformFailure, err)
	}
	ctx.ServerAuth = platform.ServerAuthState{Want: c.wantClientAuth, Need: c.needClientAuth}

	c.ctx = ctx
	c.state = stateBuilt
	c.initCount++
	c.logger.Debugf("sslconfig: tls_context rebuilt (init_count=%d)", c.initCount)
	return nil
}
