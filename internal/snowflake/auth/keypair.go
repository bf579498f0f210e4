package auth

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/ssh"
)

// loadPrivateKey reads and parses an RSA private key in PEM form. Encrypted
// keys (legacy PEM encryption or OpenSSH format) are decrypted with the
// passphrase; an encrypted key with no passphrase yields ErrPassphraseRequired.
func loadPrivateKey(path, passphrase string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read private key: %v", ErrCrypto, err)
	}

	var parsed any
	if passphrase != "" {
		parsed, err = ssh.ParseRawPrivateKeyWithPassphrase(data, []byte(passphrase))
	} else {
		parsed, err = ssh.ParseRawPrivateKey(data)
	}
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: %w", ErrCrypto, ErrPassphraseRequired)
		}
		return nil, fmt.Errorf("%w: parse private key: %v", ErrCrypto, err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported key type %T, need RSA", ErrCrypto, parsed)
	}
	return key, nil
}

// Fingerprint computes the Snowflake public-key fingerprint for an RSA key:
// "SHA256:" + base64(sha256(DER SubjectPublicKeyInfo)). The result is
// byte-for-byte reproducible for the same key.
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: marshal public key: %v", ErrCrypto, err)
	}
	sum := sha256.Sum256(der)
	return "SHA256:" + base64.StdEncoding.EncodeToString(sum[:]), nil
}

// signJWT builds and signs the key-pair JWT:
//
//	iss = "<ACCOUNT>.<USER>.SHA256:<fingerprint>"
//	sub = "<ACCOUNT>.<USER>"
//	iat = now, exp = now + lifetime (seconds granularity)
//
// Account and user are uppercased to match Snowflake's identifier
// normalization.
func (p *Provider) signJWT() (string, error) {
	key, err := loadPrivateKey(p.config.PrivateKeyPath, p.config.PrivateKeyPassphrase)
	if err != nil {
		return "", err
	}

	fingerprint := strings.TrimSpace(p.config.PublicKeyFingerprint)
	if fingerprint == "" {
		fingerprint, err = Fingerprint(&key.PublicKey)
		if err != nil {
			return "", err
		}
	}

	account := strings.ToUpper(p.config.Account)
	user := strings.ToUpper(p.config.User)
	qualified := account + "." + user

	now := p.now().Truncate(time.Second)
	claims := jwt.RegisteredClaims{
		Issuer:    qualified + "." + fingerprint,
		Subject:   qualified,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.config.TokenLifetime)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: sign jwt: %v", ErrCrypto, err)
	}
	return signed, nil
}
