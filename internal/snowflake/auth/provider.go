package auth

import (
	"fmt"
	"strings"
	"time"
)

// Method selects how the device authenticates to the control plane.
type Method string

const (
	// MethodKeyPair signs a fresh time-boxed JWT with an RSA private key.
	MethodKeyPair Method = "keypair_jwt"
	// MethodPAT reuses a pre-issued programmatic access token.
	MethodPAT Method = "pat"
)

const defaultTokenLifetime = time.Hour

// Config holds credential configuration for a Provider.
type Config struct {
	Account string
	User    string
	Method  Method

	// Key-pair signing material. Required when Method is MethodKeyPair.
	PrivateKeyPath       string
	PrivateKeyPassphrase string

	// PublicKeyFingerprint, when set, skips the fingerprint computation.
	// Format: "SHA256:<base64>".
	PublicKeyFingerprint string

	// TokenLifetime bounds the validity of signed JWTs. Defaults to one hour.
	TokenLifetime time.Duration

	// PATToken is the pre-issued token. Required when Method is MethodPAT.
	PATToken string

	// Now is a clock override for tests.
	Now func() time.Time
}

// Provider issues bearer credentials on demand. It is stateless: each Issue
// call signs a fresh JWT (or returns the configured PAT verbatim).
type Provider struct {
	config Config
	now    func() time.Time
}

// NewProvider validates cfg and returns a Provider. Configuration problems
// are reported immediately as ErrConfig.
func NewProvider(cfg Config) (*Provider, error) {
	cfg.Account = strings.TrimSpace(cfg.Account)
	cfg.User = strings.TrimSpace(cfg.User)

	if cfg.Account == "" {
		return nil, fmt.Errorf("%w: account is required", ErrConfig)
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("%w: user is required", ErrConfig)
	}

	switch cfg.Method {
	case MethodPAT:
		if strings.TrimSpace(cfg.PATToken) == "" {
			return nil, fmt.Errorf("%w: pat token is required for method %q", ErrConfig, cfg.Method)
		}
	case MethodKeyPair:
		if strings.TrimSpace(cfg.PrivateKeyPath) == "" {
			return nil, fmt.Errorf("%w: private key path is required for method %q", ErrConfig, cfg.Method)
		}
	default:
		return nil, fmt.Errorf("%w: unknown auth method %q", ErrConfig, cfg.Method)
	}

	if cfg.TokenLifetime <= 0 {
		cfg.TokenLifetime = defaultTokenLifetime
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Provider{config: cfg, now: now}, nil
}

// Method reports the configured authentication method.
func (p *Provider) Method() Method {
	return p.config.Method
}

// Issue returns a bearer credential for the configured method.
func (p *Provider) Issue() (Token, error) {
	if p.config.Method == MethodPAT {
		return Token{Value: p.config.PATToken, Type: TokenTypePAT}, nil
	}
	signed, err := p.signJWT()
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, Type: TokenTypeKeyPairJWT}, nil
}
