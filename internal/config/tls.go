package config

import (
	"fmt"
	"os"

	"github.com/cloudpki/tlsconfig/pkg/keymaterial"
	"github.com/cloudpki/tlsconfig/pkg/logging"
	"github.com/cloudpki/tlsconfig/pkg/password"
	"github.com/cloudpki/tlsconfig/pkg/sslconfig"
	"github.com/cloudpki/tlsconfig/pkg/trust"
	"github.com/cloudpki/tlsconfig/pkg/validation"
)

// TLSSettings is the YAML-facing surface over pkg/sslconfig's mutator API.
// Unlike sslconfig.Config itself, which is built up call-by-call, this is a
// flat declarative form meant to be loaded once at process start and
// converted with ToSSLConfig.
type TLSSettings struct {
	Enabled bool `yaml:"enabled"`

	// Key material: either a keystore container (CertFile alone, auto
	// detected by magic) or a standalone PEM chain+key pair (CertFile
	// holding the chain, KeyFile the key, when KeyFile is set).
	CertFile  string `yaml:"cert_file"`
	KeyFile   string `yaml:"key_file"`
	StorePass string `yaml:"store_password,omitempty"`
	KeyPass   string `yaml:"key_password,omitempty"`

	// Trust material: a PEM/DER bundle of anchors (and optionally CRLs), or
	// TrustAll to skip verification entirely.
	TrustFile string `yaml:"trust_file"`
	TrustAll  bool   `yaml:"trust_all"`

	DefaultProtocol  string   `yaml:"default_protocol"`
	EnabledProtocols []string `yaml:"enabled_protocols,omitempty"`
	EnabledCiphers   []string `yaml:"enabled_ciphers,omitempty"`

	// DoVerify/CheckCRL are tri-state: nil means "leave sslconfig's own
	// default in place", mirroring sslconfig.Config.useClientMode's own
	// nil-as-default-shadow convention.
	DoVerify *bool `yaml:"do_verify,omitempty"`
	CheckCRL *bool `yaml:"check_crl,omitempty"`

	// ClientAuth is one of "none", "want", "need" — server-side only.
	ClientAuth string `yaml:"client_auth,omitempty"`

	SoTimeoutMs      int `yaml:"so_timeout_ms,omitempty"`
	ConnectTimeoutMs int `yaml:"connect_timeout_ms,omitempty"`
}

// ToSSLConfig builds a *sslconfig.Config from the declarative settings,
// loading whatever key and trust material the paths name.
func (t *TLSSettings) ToSSLConfig(logger *logging.Logger) (*sslconfig.Config, error) {
	c := sslconfig.New(logger)
	if !t.Enabled {
		return c, nil
	}

	if t.CertFile != "" {
		km, err := t.loadKeyMaterial()
		if err != nil {
			return nil, fmt.Errorf("failed to load key material: %w", err)
		}
		if err := c.SetKeyMaterial(km); err != nil {
			return nil, fmt.Errorf("failed to apply key material: %w", err)
		}
	}

	switch {
	case t.TrustAll:
		if err := c.SetTrustMaterial(trust.All); err != nil {
			return nil, fmt.Errorf("failed to apply trust_all: %w", err)
		}
	case t.TrustFile != "":
		if err := validation.ValidateFilePath(t.TrustFile); err != nil {
			return nil, fmt.Errorf("trust_file: %w", err)
		}
		m, err := trust.LoadFile(t.TrustFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load trust material: %w", err)
		}
		if err := c.SetTrustMaterial(m); err != nil {
			return nil, fmt.Errorf("failed to apply trust material: %w", err)
		}
	}

	if t.DefaultProtocol != "" {
		if err := c.SetDefaultProtocol(t.DefaultProtocol); err != nil {
			return nil, fmt.Errorf("failed to set default_protocol: %w", err)
		}
	}
	if len(t.EnabledProtocols) > 0 {
		if err := c.SetEnabledProtocols(t.EnabledProtocols); err != nil {
			return nil, fmt.Errorf("invalid enabled_protocols: %w", err)
		}
	}
	if len(t.EnabledCiphers) > 0 {
		if err := c.SetEnabledCiphers(t.EnabledCiphers); err != nil {
			return nil, fmt.Errorf("invalid enabled_ciphers: %w", err)
		}
	}

	if t.DoVerify != nil {
		if err := c.SetDoVerify(*t.DoVerify); err != nil {
			return nil, fmt.Errorf("failed to set do_verify: %w", err)
		}
	}
	if t.CheckCRL != nil {
		c.SetCheckCRL(*t.CheckCRL)
	}

	want, need, err := parseClientAuth(t.ClientAuth)
	if err != nil {
		return nil, err
	}
	if want != nil {
		c.SetWantClientAuth(*want)
	}
	if need != nil {
		c.SetNeedClientAuth(*need)
	}

	if t.SoTimeoutMs > 0 {
		if err := c.SetSoTimeout(t.SoTimeoutMs); err != nil {
			return nil, fmt.Errorf("invalid so_timeout_ms: %w", err)
		}
	}
	if t.ConnectTimeoutMs > 0 {
		if err := c.SetConnectTimeout(t.ConnectTimeoutMs); err != nil {
			return nil, fmt.Errorf("invalid connect_timeout_ms: %w", err)
		}
	}

	return c, nil
}

// loadKeyMaterial reads CertFile and either hands it to keymaterial.Load
// (container auto-detection) or, when KeyFile is also set, treats CertFile
// and KeyFile as a standalone PEM chain-plus-key pair via keymaterial.LoadPEM.
func (t *TLSSettings) loadKeyMaterial() (*keymaterial.Material, error) {
	if err := validation.ValidateFilePath(t.CertFile); err != nil {
		return nil, fmt.Errorf("cert_file: %w", err)
	}

	// #nosec G304 - cert file path is validated above and comes from trusted configuration
	certData, err := os.ReadFile(t.CertFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read cert_file %s: %w", t.CertFile, err)
	}

	if t.KeyFile == "" {
		return keymaterial.Load(certData, mustPassword(t.StorePass), mustPassword(t.KeyPass))
	}

	if err := validation.ValidateFilePath(t.KeyFile); err != nil {
		return nil, fmt.Errorf("key_file: %w", err)
	}

	// #nosec G304 - key file path is validated above and comes from trusted configuration
	keyData, err := os.ReadFile(t.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read key_file %s: %w", t.KeyFile, err)
	}
	return keymaterial.LoadPEM(append(certData, keyData...), mustPassword(t.KeyPass))
}

// mustPassword wraps a possibly-empty plaintext password string into a
// password.Password, or nil if s is empty — the loaders already treat a nil
// password as "unencrypted" or "reuse the store password".
func mustPassword(s string) password.Password {
	if s == "" {
		return nil
	}
	p, err := password.NewClearPasswordFromString(s)
	if err != nil {
		return nil
	}
	return p
}

// parseClientAuth converts the "none"/"want"/"need" string into the
// (want, need) bool pair sslconfig.Config's mutators expect. Both return
// values are nil (meaning "leave the default in place") when mode is "".
func parseClientAuth(mode string) (want, need *bool, err error) {
	t, f := true, false
	switch mode {
	case "":
		return nil, nil, nil
	case "none":
		return &f, &f, nil
	case "want":
		return &t, &f, nil
	case "need":
		return &t, &t, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown client_auth mode %q", sslconfig.ErrInvalidArgument, mode)
	}
}
