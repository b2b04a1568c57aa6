// Package auth manages the KIS OAuth2 client-credentials bearer token,
// persisting it across processes and watching for sibling refreshes.
package auth

import "time"

type Environment string

const (
	EnvProduction Environment = "production"
	EnvSandbox    Environment = "sandbox"
)

// Token is the persisted shape of kis-token.json.
type Token struct {
	AccessToken string      `json:"accessToken"`
	TokenType   string      `json:"tokenType"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	IssuedAt    time.Time   `json:"issuedAt"`
	Environment Environment `json:"environment"`
}

// validityMargin keeps a safety window so a token is never used right at
// the edge of expiry.
const validityMargin = 5 * time.Minute

// ValidFor reports whether the token can authenticate requests for env at
// instant now. A token from the other environment is treated as absent.
func (t Token) ValidFor(env Environment, now time.Time) bool {
	return t.AccessToken != "" &&
		t.Environment == env &&
		t.ExpiresAt.Sub(now) > validityMargin
}
