// Package platform is the boundary between the configuration-coherence
// engine and the actual TLS engine: crypto/tls. Every operation the state
// machine in pkg/sslconfig needs from "the platform" — materializing a
// context, producing socket factories, dialing or listening, toggling
// client-auth expectations on a not-yet-accepted server socket — is
// exposed here and nowhere else, so pkg/sslconfig never imports crypto/tls
// directly.
package platform

import (
	"context"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"
)

// InitParams carries everything needed to materialize a Context: the
// coherent snapshot the configuration core builds once its mutators settle.
type InitParams struct {
	Certificates []tls.Certificate
	RootCAs      *x509.CertPool
	ClientCAs    *x509.CertPool
	MinVersion   uint16
	MaxVersion   uint16
	CipherSuites []uint16
	ServerName   string
	// InsecureSkipVerify corresponds to the engine's do_verify=false /
	// TRUST_ALL configuration: the handshake itself performs no chain
	// validation, leaving peer-chain inspection to a higher layer.
	InsecureSkipVerify bool
}

var (
	cipherCatalogOnce sync.Once
	cipherNames       []string
	cipherIDByName    map[string]uint16
)

func initCipherCatalog() {
	cipherCatalogOnce.Do(func() {
		cipherIDByName = make(map[string]uint16)
		all := append(tls.CipherSuites(), tls.InsecureCipherSuites()...)
		names := make([]string, 0, len(all))
		for _, suite := range all {
			cipherIDByName[suite.Name] = suite.ID
			names = append(names, suite.Name)
		}
		sort.Strings(names)
		cipherNames = names
	})
}

// SupportedCipherNames returns the platform's frozen SUPPORTED_CIPHERS
// catalog: every cipher suite name crypto/tls knows, secure or insecure,
// retrieved from the default factory on first access.
func SupportedCipherNames() []string {
	initCipherCatalog()
	out := make([]string, len(cipherNames))
	copy(out, cipherNames)
	return out
}

// CipherSuiteID resolves a SUPPORTED_CIPHERS name to its crypto/tls ID.
func CipherSuiteID(name string) (uint16, bool) {
	initCipherCatalog()
	id, ok := cipherIDByName[name]
	return id, ok
}

// protocolVersionByName maps a KNOWN_PROTOCOLS name to its crypto/tls
// version constant. Names with no entry are recognized but have no
// negotiable crypto/tls equivalent (SSLv2, SSLv3, SSLv2Hello).
var protocolVersionByName = map[string]uint16{
	"TLSv1":   tls.VersionTLS10,
	"TLSv1.1": tls.VersionTLS11,
	"TLSv1.2": tls.VersionTLS12,
	"TLSv1.3": tls.VersionTLS13,
}

// ProtocolVersion resolves a protocol name to its crypto/tls version
// constant, if one exists.
func ProtocolVersion(name string) (uint16, bool) {
	v, ok := protocolVersionByName[name]
	return v, ok
}

// AddCertificate appends a (chain, private key) pair to p's certificate
// list. It exists so pkg/sslconfig can build InitParams from
// pkg/keymaterial.Entry values without ever spelling the crypto/tls
// certificate type itself.
func (p *InitParams) AddCertificate(chain []*x509.Certificate, key crypto.PrivateKey) {
	raw := make([][]byte, len(chain))
	for i, c := range chain {
		raw[i] = c.Raw
	}
	p.Certificates = append(p.Certificates, tls.Certificate{Certificate: raw, PrivateKey: key})
}

// Context is the materialized TLS context the configuration core caches
// until the next dirty/reload cycle replaces it.
type Context struct {
	TLSConfig  *tls.Config
	ServerAuth ServerAuthState
}

// CloneContext returns a Context sharing ctx's certificates and trust roots
// but with an independently mutable tls.Config, so a single connection's
// per-socket protocol/cipher overrides never race with another connection
// dialing concurrently off the same Context.
func CloneContext(ctx *Context) *Context {
	return &Context{TLSConfig: ctx.TLSConfig.Clone(), ServerAuth: ctx.ServerAuth}
}

// SetCipherSuites overrides ctx's negotiable cipher suite list.
func SetCipherSuites(ctx *Context, suites []uint16) {
	ctx.TLSConfig.CipherSuites = suites
}

// PeerChain extracts the verified peer certificate chain from a connection
// produced by this package, the one place the concrete *tls.Conn type is
// unwrapped on behalf of a caller that only holds a net.Conn.
func PeerChain(conn net.Conn) ([]*x509.Certificate, error) {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil, fmt.Errorf("platform: connection is not a TLS connection")
	}
	return tlsConn.ConnectionState().PeerCertificates, nil
}

// Handshake forces conn's TLS handshake to complete synchronously, so a
// caller holding only a net.Conn can rely on ConnectionState/PeerChain
// being populated immediately after Accept rather than on first I/O.
func Handshake(conn net.Conn) error {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return fmt.Errorf("platform: connection is not a TLS connection")
	}
	return tlsConn.Handshake()
}

// Init builds a Context from params. It never touches the network.
func Init(params InitParams) (*Context, error) {
	if params.MinVersion != 0 && params.MaxVersion != 0 && params.MinVersion > params.MaxVersion {
		return nil, fmt.Errorf("platform: min version exceeds max version")
	}
	cfg := &tls.Config{
		Certificates:       params.Certificates,
		RootCAs:            params.RootCAs,
		ClientCAs:          params.ClientCAs,
		MinVersion:         params.MinVersion,
		MaxVersion:         params.MaxVersion,
		CipherSuites:       params.CipherSuites,
		ServerName:         params.ServerName,
		InsecureSkipVerify: params.InsecureSkipVerify,
	}
	return &Context{TLSConfig: cfg}, nil
}

// ServerAuthState tracks the want/need client-certificate flags
// independently of crypto/tls.ClientAuthType until Resolve collapses them
// into the single enum the standard library expects.
type ServerAuthState struct {
	Want bool
	Need bool
}

// SetWantClientAuth sets the "request a client certificate" flag.
func SetWantClientAuth(state *ServerAuthState, want bool) {
	state.Want = want
}

// SetNeedClientAuth sets the "require a client certificate" flag.
func SetNeedClientAuth(state *ServerAuthState, need bool) {
	state.Need = need
}

// Resolve collapses (Want, Need) into the tls.ClientAuthType the server
// socket factory will actually enforce.
func (s ServerAuthState) Resolve() tls.ClientAuthType {
	switch {
	case s.Need:
		if s.Want {
			return tls.RequireAndVerifyClientCert
		}
		return tls.RequireAnyClientCert
	case s.Want:
		return tls.VerifyClientCertIfGiven
	default:
		return tls.NoClientCert
	}
}

// SetEnabledProtocols narrows ctx's negotiable TLS version range to the
// span covered by versions.
func SetEnabledProtocols(ctx *Context, versions []uint16) {
	if len(versions) == 0 {
		return
	}
	min, max := versions[0], versions[0]
	for _, v := range versions[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	ctx.TLSConfig.MinVersion = min
	ctx.TLSConfig.MaxVersion = max
}

// ClientSocketFactory dials TLS connections from an established Context.
type ClientSocketFactory struct {
	ctx *Context
}

// ServerSocketFactory listens for TLS connections from an established
// Context, applying the resolved client-auth policy.
type ServerSocketFactory struct {
	ctx *Context
}

// GetSocketFactory returns the client-side socket factory for ctx.
func GetSocketFactory(ctx *Context) *ClientSocketFactory {
	return &ClientSocketFactory{ctx: ctx}
}

// GetServerSocketFactory returns the server-side socket factory for ctx,
// with the server's tls.Config.ClientAuth resolved from ctx.ServerAuth.
func GetServerSocketFactory(ctx *Context) *ServerSocketFactory {
	ctx.TLSConfig.ClientAuth = ctx.ServerAuth.Resolve()
	return &ServerSocketFactory{ctx: ctx}
}

// DialParams describes a single outbound connection attempt, including the
// local address to bind, matching the original's five-argument
// createSocket(remote_host, remote_port, local_host, local_port, timeout).
type DialParams struct {
	RemoteHost     string
	RemotePort     int
	LocalHost      string
	LocalPort      int
	ConnectTimeout time.Duration
}

// CreateSocket dials addr and performs a TLS handshake using f's context.
func (f *ClientSocketFactory) CreateSocket(addr string) (net.Conn, error) {
	conn, err := tls.Dial("tcp", addr, f.ctx.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("platform: dial %s: %w", addr, err)
	}
	return conn, nil
}

// CreateSocketTimeout dials with an explicit local bind address and
// connect timeout, the Go analogue of the five-argument createSocket
// overload.
func (f *ClientSocketFactory) CreateSocketTimeout(params DialParams) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: params.ConnectTimeout}
	if params.LocalHost != "" || params.LocalPort != 0 {
		dialer.LocalAddr = &net.TCPAddr{
			IP:   net.ParseIP(params.LocalHost),
			Port: params.LocalPort,
		}
	}

	remote := net.JoinHostPort(params.RemoteHost, fmt.Sprintf("%d", params.RemotePort))
	ctx, cancel := context.WithTimeout(context.Background(), params.ConnectTimeout)
	defer cancel()

	rawConn, err := dialer.DialContext(ctx, "tcp", remote)
	if err != nil {
		return nil, fmt.Errorf("platform: dial %s: %w", remote, err)
	}

	tlsConn := tls.Client(rawConn, f.ctx.TLSConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("platform: handshake with %s: %w", remote, err)
	}
	return tlsConn, nil
}

// Listen opens a TLS listener using f's context, enforcing the resolved
// client-auth policy on every accepted connection.
func (f *ServerSocketFactory) Listen(network, addr string) (net.Listener, error) {
	ln, err := tls.Listen(network, addr, f.ctx.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("platform: listen %s: %w", addr, err)
	}
	return ln, nil
}

// runtimeError marks a typed configuration error as having crossed the
// eager/lazy boundary: the only place, per the state machine's error
// propagation policy, where a typed failure becomes an unchecked one.
type runtimeError struct {
	cause error
}

func (e *runtimeError) Error() string { return fmt.Sprintf("platform: late init failed: %v", e.cause) }
func (e *runtimeError) Unwrap() error { return e.cause }

// NewRuntimeException wraps a typed configuration error the way lazy late
// init does when it resurfaces a failure from a socket-producing call
// instead of from the mutator that caused it.
func NewRuntimeException(cause error) error {
	if cause == nil {
		return nil
	}
	return &runtimeError{cause: cause}
}

// IsRuntimeException reports whether err (or something it wraps) was
// produced by NewRuntimeException.
func IsRuntimeException(err error) bool {
	var re *runtimeError
	return errors.As(err, &re)
}
