package security

// AccessTokenVerifier turns a bearer token into claims. Signature checking is
// owned by whoever implements it.
type AccessTokenVerifier interface {
	VerifyAccessToken(token string) (TokenClaims, error)
}
