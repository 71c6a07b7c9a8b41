package types

import "time"

// Credentials holds an OAuth token set for one profile.
type Credentials struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes"`
}

// StoredCredentials is the persisted form of Credentials, including the
// OAuth client used to obtain them so refresh works across runs.
type StoredCredentials struct {
	Credentials  Credentials `json:"credentials"`
	ClientID     string      `json:"clientId"`
	ClientSecret string      `json:"clientSecret"`
	SavedAt      time.Time   `json:"savedAt"`
}
