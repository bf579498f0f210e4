package auth

// TokenType is the value sent in the X-Snowflake-Authorization-Token-Type
// header alongside a bearer token.
type TokenType string

const (
	TokenTypeKeyPairJWT TokenType = "KEYPAIR_JWT"
	TokenTypePAT        TokenType = "PROGRAMMATIC_ACCESS_TOKEN"
	TokenTypeOAuth      TokenType = "OAUTH"
)

// Token is a bearer credential plus its header type tag.
type Token struct {
	Value string
	Type  TokenType
}
