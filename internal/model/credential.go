package model

import "time"

// Credential is the stored OAuth token pair. There is at most one.
type Credential struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    int64     `json:"expires_at"` // epoch seconds
	Scope        string    `json:"scope"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ExpiresWithin reports whether the access token expires before now+margin.
func (c *Credential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	return c.ExpiresAt <= now.Add(margin).Unix()
}
