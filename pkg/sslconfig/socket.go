package sslconfig

import (
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cloudpki/tlsconfig/pkg/hostname"
	"github.com/cloudpki/tlsconfig/pkg/platform"
	"github.com/cloudpki/tlsconfig/pkg/trust"
)

// CreateSocket dials addr, producing a client socket bound to this
// configuration's current tls_context.
func (c *Config) CreateSocket(addr string) (net.Conn, error) {
	return c.createSocket(func(socketCtx *platform.Context) (net.Conn, error) {
		return platform.GetSocketFactory(socketCtx).CreateSocket(addr)
	}, addr)
}

// CreateSocketWithParams dials using an explicit local bind address and
// connect timeout. A zero ConnectTimeout uses the configuration's
// connect_timeout.
func (c *Config) CreateSocketWithParams(params platform.DialParams) (net.Conn, error) {
	if params.ConnectTimeout == 0 {
		c.mu.Lock()
		params.ConnectTimeout = time.Duration(c.connectTimeoutMs) * time.Millisecond
		c.mu.Unlock()
	}
	addr := net.JoinHostPort(params.RemoteHost, fmt.Sprintf("%d", params.RemotePort))
	return c.createSocket(func(socketCtx *platform.Context) (net.Conn, error) {
		return platform.GetSocketFactory(socketCtx).CreateSocketTimeout(params)
	}, addr)
}

func (c *Config) createSocket(dial func(*platform.Context) (net.Conn, error), addr string) (net.Conn, error) {
	ctx, err := c.ensureBuilt()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	socketCtx := platform.CloneContext(ctx)
	c.applyPerSocketOverridesLocked(socketCtx)
	wf := c.wrapperFactory
	soTimeoutMs := c.soTimeoutMs
	c.mu.Unlock()

	raw, err := dial(socketCtx)
	if err != nil {
		// A verified handshake already checks the dialed name; the platform
		// closes the connection when that check fails.
		var hostErr x509.HostnameError
		if errors.As(err, &hostErr) {
			return nil, fmt.Errorf("%w: %v", ErrHostnameMismatch, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrPlatformFailure, err)
	}

	c.doPreConnectSocketStuff(raw, soTimeoutMs)

	wrapped, err := wf.Wrap(raw)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}

	host, _, splitErr := net.SplitHostPort(addr)
	if splitErr != nil {
		host = addr
	}
	if err := c.doPostConnectSocketStuff(wrapped, host); err != nil {
		return nil, err
	}
	return wrapped, nil
}

// applyPerSocketOverridesLocked applies the enabled_ciphers/enabled_protocols
// overrides to a freshly cloned Context — they are never baked into the
// shared tls_context. Callers must hold c.mu.
func (c *Config) applyPerSocketOverridesLocked(ctx *platform.Context) {
	if len(c.enabledProtocols) > 0 {
		versions := make([]uint16, 0, len(c.enabledProtocols))
		for _, name := range c.enabledProtocols {
			if v, ok := platform.ProtocolVersion(name); ok {
				versions = append(versions, v)
			}
		}
		if len(versions) > 0 {
			platform.SetEnabledProtocols(ctx, versions)
		}
	}
	if len(c.enabledCiphers) > 0 {
		ids := make([]uint16, 0, len(c.enabledCiphers))
		for _, name := range c.enabledCiphers {
			if id, ok := platform.CipherSuiteID(name); ok {
				ids = append(ids, id)
			}
		}
		platform.SetCipherSuites(ctx, ids)
	}
}

// doPreConnectSocketStuff applies the client pre-connect steps. An
// explicitly set use_client_mode has no effect on a socket produced by
// CreateSocket: the platform dial/listen call already fixes the
// connection's role. See DESIGN.md.
func (c *Config) doPreConnectSocketStuff(conn net.Conn, soTimeoutMs int) {
	if soTimeoutMs > 0 {
		_ = conn.SetDeadline(time.Now().Add(time.Duration(soTimeoutMs) * time.Millisecond))
	}
}

// doPostConnectSocketStuff verifies the negotiated peer chain's hostname
// when do_verify is set, and its revocation status when check_crl is set,
// closing conn before surfacing either failure.
func (c *Config) doPostConnectSocketStuff(conn net.Conn, host string) error {
	c.mu.Lock()
	doVerify := c.doVerify
	checkCRL := c.checkCRL
	trustAll := c.trustChain != nil && c.trustChain.IsTrustAll()
	crls := c.trustChain.CRLs()
	c.mu.Unlock()

	chain, chainErr := platform.PeerChain(conn)
	if chainErr == nil && len(chain) > 0 {
		c.mu.Lock()
		c.currentClientChain = chain
		c.mu.Unlock()
	}

	if trustAll || len(chain) == 0 {
		return nil
	}
	if doVerify {
		if verifyErr := hostname.Verify(chain[0], host); verifyErr != nil {
			_ = conn.Close()
			return fmt.Errorf("%w: %v", ErrHostnameMismatch, verifyErr)
		}
	}
	if checkCRL {
		if revErr := trust.CheckRevocation(chain[0], crls); revErr != nil {
			_ = conn.Close()
			return fmt.Errorf("%w: %v", ErrTrustFailure, revErr)
		}
	}
	return nil
}

// Listen opens a TLS listener bound to this configuration's tls_context,
// applying the resolved client-auth policy per doPreConnectServerSocketStuff.
func (c *Config) Listen(network, addr string) (net.Listener, error) {
	ctx, err := c.ensureBuilt()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	socketCtx := platform.CloneContext(ctx)
	c.applyPerSocketOverridesLocked(socketCtx)
	c.doPreConnectServerSocketStuffLocked(socketCtx)
	c.mu.Unlock()

	ln, err := platform.GetServerSocketFactory(socketCtx).Listen(network, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlatformFailure, err)
	}
	return &serverListener{Listener: ln, cfg: c}, nil
}

// doPreConnectServerSocketStuffLocked applies the client-auth policy in a
// false-before-true order, to work around the platform quirk where
// clearing "need" silently clears "want". Listen applies the protocol and
// cipher overrides (shared with the client path) just before it, and
// serverListener.Accept applies so_timeout to each accepted connection.
// Callers must hold c.mu.
func (c *Config) doPreConnectServerSocketStuffLocked(ctx *platform.Context) {
	if !c.wantClientAuth {
		platform.SetWantClientAuth(&ctx.ServerAuth, false)
	}
	if !c.needClientAuth {
		platform.SetNeedClientAuth(&ctx.ServerAuth, false)
	}
	if c.wantClientAuth {
		platform.SetWantClientAuth(&ctx.ServerAuth, true)
	}
	if c.needClientAuth {
		platform.SetNeedClientAuth(&ctx.ServerAuth, true)
	}
}

// serverListener wraps a platform TLS listener so every accepted
// connection is routed through the wrapper factory and its peer chain is
// captured as current_server_chain.
type serverListener struct {
	net.Listener
	cfg *Config
}

func (l *serverListener) Accept() (net.Conn, error) {
	raw, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	if err := platform.Handshake(raw); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("%w: %v", ErrPlatformFailure, err)
	}

	if chain, chainErr := platform.PeerChain(raw); chainErr == nil && len(chain) > 0 {
		l.cfg.mu.Lock()
		l.cfg.currentServerChain = chain
		l.cfg.mu.Unlock()
	}

	l.cfg.mu.Lock()
	wf := l.cfg.wrapperFactory
	soTimeoutMs := l.cfg.soTimeoutMs
	l.cfg.mu.Unlock()

	l.cfg.doPreConnectSocketStuff(raw, soTimeoutMs)

	wrapped, err := wf.Wrap(raw)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return wrapped, nil
}
