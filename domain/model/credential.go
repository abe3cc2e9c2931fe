package model

import "time"

// Well-known identifier keys stored on a CredentialRecord.
const (
	IdentifierPageID    = "page_id"
	IdentifierPageName  = "page_name"
	IdentifierOpenID    = "open_id"
	IdentifierChannelID = "channel_id"
)

// CredentialRecord stores the OAuth material for one platform. There is exactly one
// live record per platform; Version increases on every write and is the
// compare-and-swap token for concurrent updates.
type CredentialRecord struct {
	PlatformID    PlatformID        `json:"platform_id" bson:"platform_id"`
	AccessToken   string            `json:"access_token" bson:"access_token"`
	RefreshToken  string            `json:"refresh_token,omitempty" bson:"refresh_token,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	Scopes        string            `json:"scopes,omitempty" bson:"scopes,omitempty"`
	TokenType     string            `json:"token_type,omitempty" bson:"token_type,omitempty"`
	Identifiers   map[string]string `json:"identifiers,omitempty" bson:"identifiers,omitempty"`
	Invalidated   bool              `json:"invalidated" bson:"invalidated"`
	InvalidReason string            `json:"invalid_reason,omitempty" bson:"invalid_reason,omitempty"`
	Version       int64             `json:"version" bson:"version"`
	CreatedAt     time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" bson:"updated_at"`
}

func (c *CredentialRecord) Refreshable() bool {
	return c.RefreshToken != ""
}

// ExpiresWithin reports whether the token is expired or expires inside margin.
// A record without expiry never expires.
func (c *CredentialRecord) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Add(margin).Before(*c.ExpiresAt)
}

func (c *CredentialRecord) Expired(now time.Time) bool {
	return c.ExpiresWithin(now, 0)
}

// Usable reports whether the record can back an immediate API call.
func (c *CredentialRecord) Usable(now time.Time) bool {
	if c.Invalidated || c.AccessToken == "" {
		return false
	}
	return !c.Expired(now)
}

func (c *CredentialRecord) Identifier(key string) string {
	if c.Identifiers == nil {
		return ""
	}
	return c.Identifiers[key]
}

// Clone returns a deep copy so callers never share the identifier map.
func (c *CredentialRecord) Clone() *CredentialRecord {
	if c == nil {
		return nil
	}
	out := *c
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		out.ExpiresAt = &t
	}
	if c.Identifiers != nil {
		out.Identifiers = make(map[string]string, len(c.Identifiers))
		for k, v := range c.Identifiers {
			out.Identifiers[k] = v
		}
	}
	return &out
}
