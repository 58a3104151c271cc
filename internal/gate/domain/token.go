package domain

// CredentialPair is one issued session: a short-lived access token and its
// paired refresh token. Both embed the same token id so revoking one kills
// the other.
type CredentialPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"-"`
	TokenID      string `json:"-"`

	// ExpiresIn is the access token lifetime in milliseconds.
	ExpiresIn int64 `json:"expires_in_ms"`
}
