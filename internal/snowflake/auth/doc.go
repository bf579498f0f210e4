// Package auth issues bearer credentials for the Snowflake streaming API.
//
// Two authentication methods are supported:
//
//   - MethodPAT: a pre-issued programmatic access token is returned verbatim.
//   - MethodKeyPair: a short-lived JWT is signed with the account's RSA
//     private key. The issuer claim embeds the SHA-256 fingerprint of the
//     public key, matching what Snowflake has on file for the user.
//
// Configuration problems (missing token, missing key path) surface as
// ErrConfig at construction time; key-material problems (unreadable file,
// wrong passphrase, signing failure) surface as ErrCrypto from Issue.
package auth
