package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func genRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func writeKeyPKCS1(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rsa_key.pem")
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func writeKeyPKCS8(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rsa_key_p8.pem")
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func writeKeyEncrypted(t *testing.T, key *rsa.PrivateKey, passphrase string) string {
	t.Helper()
	//nolint:staticcheck // legacy PEM encryption is exactly what Snowflake key tooling emits
	block, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY",
		x509.MarshalPKCS1PrivateKey(key), []byte(passphrase), x509.PEMCipherAES256)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rsa_key_enc.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestNewProvider_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing account", cfg: Config{User: "u", Method: MethodPAT, PATToken: "abc"}},
		{name: "missing user", cfg: Config{Account: "a", Method: MethodPAT, PATToken: "abc"}},
		{name: "pat without token", cfg: Config{Account: "a", User: "u", Method: MethodPAT}},
		{name: "keypair without key path", cfg: Config{Account: "a", User: "u", Method: MethodKeyPair}},
		{name: "unknown method", cfg: Config{Account: "a", User: "u", Method: "oauth2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(tt.cfg)
			require.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestProvider_IssuePAT(t *testing.T) {
	p, err := NewProvider(Config{
		Account:  "xy12345",
		User:     "svc_user",
		Method:   MethodPAT,
		PATToken: "abc",
	})
	require.NoError(t, err)

	token, err := p.Issue()
	require.NoError(t, err)
	require.Equal(t, "abc", token.Value)
	require.Equal(t, TokenTypePAT, token.Type)
}

func TestProvider_IssueKeyPairJWT(t *testing.T) {
	key := genRSAKey(t)
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	p, err := NewProvider(Config{
		Account:        "XY12345",
		User:           "svc_user",
		Method:         MethodKeyPair,
		PrivateKeyPath: writeKeyPKCS1(t, key),
		TokenLifetime:  3600 * time.Second,
		Now:            func() time.Time { return now },
	})
	require.NoError(t, err)

	token, err := p.Issue()
	require.NoError(t, err)
	require.Equal(t, TokenTypeKeyPairJWT, token.Type)

	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token.Value, &claims, func(tok *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	fp, err := Fingerprint(&key.PublicKey)
	require.NoError(t, err)

	require.Equal(t, "XY12345.SVC_USER."+fp, claims.Issuer, "user must be uppercased in issuer")
	require.Equal(t, "XY12345.SVC_USER", claims.Subject)
	require.Equal(t, int64(3600), claims.ExpiresAt.Unix()-claims.IssuedAt.Unix(),
		"exp - iat must equal the configured lifetime exactly")
	require.Equal(t, now.Unix(), claims.IssuedAt.Unix())
}

func TestProvider_IssueKeyPairJWT_PKCS8(t *testing.T) {
	key := genRSAKey(t)
	p, err := NewProvider(Config{
		Account:        "acct",
		User:           "user",
		Method:         MethodKeyPair,
		PrivateKeyPath: writeKeyPKCS8(t, key),
	})
	require.NoError(t, err)

	token, err := p.Issue()
	require.NoError(t, err)
	require.NotEmpty(t, token.Value)
}

func TestProvider_IssueUsesConfiguredFingerprint(t *testing.T) {
	key := genRSAKey(t)
	p, err := NewProvider(Config{
		Account:              "acct",
		User:                 "user",
		Method:               MethodKeyPair,
		PrivateKeyPath:       writeKeyPKCS1(t, key),
		PublicKeyFingerprint: "SHA256:precomputed",
	})
	require.NoError(t, err)

	token, err := p.Issue()
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token.Value, &claims)
	require.NoError(t, err)
	require.Equal(t, "ACCT.USER.SHA256:precomputed", claims.Issuer)
}

func TestProvider_EncryptedKey(t *testing.T) {
	key := genRSAKey(t)
	path := writeKeyEncrypted(t, key, "hunter2")

	t.Run("with passphrase", func(t *testing.T) {
		p, err := NewProvider(Config{
			Account:              "acct",
			User:                 "user",
			Method:               MethodKeyPair,
			PrivateKeyPath:       path,
			PrivateKeyPassphrase: "hunter2",
		})
		require.NoError(t, err)
		token, err := p.Issue()
		require.NoError(t, err)
		require.NotEmpty(t, token.Value)
	})

	t.Run("missing passphrase", func(t *testing.T) {
		p, err := NewProvider(Config{
			Account:        "acct",
			User:           "user",
			Method:         MethodKeyPair,
			PrivateKeyPath: path,
		})
		require.NoError(t, err)
		_, err = p.Issue()
		require.ErrorIs(t, err, ErrPassphraseRequired)
		require.ErrorIs(t, err, ErrCrypto)
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		p, err := NewProvider(Config{
			Account:              "acct",
			User:                 "user",
			Method:               MethodKeyPair,
			PrivateKeyPath:       path,
			PrivateKeyPassphrase: "wrong",
		})
		require.NoError(t, err)
		_, err = p.Issue()
		require.ErrorIs(t, err, ErrCrypto)
	})
}

func TestProvider_UnreadableKeyFile(t *testing.T) {
	p, err := NewProvider(Config{
		Account:        "acct",
		User:           "user",
		Method:         MethodKeyPair,
		PrivateKeyPath: filepath.Join(t.TempDir(), "nope.pem"),
	})
	require.NoError(t, err)

	_, err = p.Issue()
	require.ErrorIs(t, err, ErrCrypto)
}

func TestFingerprint_Deterministic(t *testing.T) {
	key := genRSAKey(t)

	first, err := Fingerprint(&key.PublicKey)
	require.NoError(t, err)
	second, err := Fingerprint(&key.PublicKey)
	require.NoError(t, err)
	require.Equal(t, first, second)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	sum := sha256.Sum256(der)
	require.Equal(t, "SHA256:"+base64.StdEncoding.EncodeToString(sum[:]), first)
}
