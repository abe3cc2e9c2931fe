package model

import (
	"strings"
	"unicode/utf8"
)

type PlatformID string

const (
	PlatformYouTube  PlatformID = "youtube"
	PlatformFacebook PlatformID = "facebook"
	PlatformTikTok   PlatformID = "tiktok"
)

// ParsePlatformID normalizes user input ("YouTube", " tiktok ") to a PlatformID.
func ParsePlatformID(s string) PlatformID {
	return PlatformID(strings.ToLower(strings.TrimSpace(s)))
}

// Capabilities are the per-platform limits an adapter enforces before any network call.
type Capabilities struct {
	SupportsVideo        bool     `json:"supports_video"`
	SupportsScheduling   bool     `json:"supports_scheduling"`
	MaxTitleLength       int      `json:"max_title_length"`
	MaxDescriptionLength int      `json:"max_description_length"`
	MaxHashtags          int      `json:"max_hashtags"`
	TruncateTitle        bool     `json:"truncate_title"`
	DisallowedTitleChars string   `json:"disallowed_title_chars,omitempty"`
	SupportedFormats     []string `json:"supported_formats"`
}

// PlatformDescriptor is immutable after registration.
type PlatformDescriptor struct {
	ID           PlatformID   `json:"platform_id"`
	DisplayName  string       `json:"display_name"`
	Capabilities Capabilities `json:"capabilities"`
}

// Validate checks meta against the descriptor's capability flags and returns the
// metadata the adapter should send. Titles are truncated only when the platform
// allows it; every other violation is a ValidationError.
func (d PlatformDescriptor) Validate(meta Metadata) (Metadata, error) {
	c := d.Capabilities
	if !c.SupportsVideo {
		return meta, NewValidationError(d.ID, "platform does not accept video uploads")
	}
	out := meta
	out.Title = strings.TrimSpace(meta.Title)
	if out.Title == "" {
		return meta, NewValidationError(d.ID, "title is required")
	}
	if c.DisallowedTitleChars != "" && strings.ContainsAny(out.Title, c.DisallowedTitleChars) {
		return meta, NewValidationError(d.ID, "title contains disallowed characters: "+c.DisallowedTitleChars)
	}
	if c.MaxTitleLength > 0 && utf8.RuneCountInString(out.Title) > c.MaxTitleLength {
		if !c.TruncateTitle {
			return meta, NewValidationError(d.ID, "title exceeds max length")
		}
		out.Title = string([]rune(out.Title)[:c.MaxTitleLength])
	}
	if c.MaxDescriptionLength > 0 && utf8.RuneCountInString(out.Description) > c.MaxDescriptionLength {
		return meta, NewValidationError(d.ID, "description exceeds max length")
	}
	if c.MaxHashtags > 0 && len(out.Hashtags) > c.MaxHashtags {
		return meta, NewValidationError(d.ID, "too many hashtags")
	}
	out.Hashtags = NormalizeHashtags(out.Hashtags)
	return out, nil
}

// PlatformStatus is one row of the status listing.
type PlatformStatus struct {
	Descriptor    PlatformDescriptor `json:"descriptor"`
	Authenticated bool               `json:"authenticated"`
	Invalidated   bool               `json:"invalidated"`
	InvalidReason string             `json:"invalid_reason,omitempty"`
	Refreshable   bool               `json:"refreshable"`
	ExpiresAt     *string            `json:"expires_at,omitempty"`
}
