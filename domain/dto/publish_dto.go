package dto

// Res is the error envelope returned by the API.
type Res struct {
	ResponseCode    string `json:"response_code"`
	ResponseMessage string `json:"response_message"`
}

// MetadataRequest is the user-supplied text for a publish request.
type MetadataRequest struct {
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Hashtags    []string          `json:"hashtags,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// PublishRequest submits one local video to several platforms.
type PublishRequest struct {
	RequestID string                     `json:"request_id,omitempty"`
	VideoPath string                     `json:"video_path" binding:"required"`
	Platforms []string                   `json:"platforms" binding:"required,min=1"`
	Metadata  MetadataRequest            `json:"metadata"`
	Overrides map[string]MetadataRequest `json:"overrides,omitempty"`
	// Async returns 202 immediately; progress is on the stream endpoint.
	Async bool `json:"async,omitempty"`
}

type PublishAccepted struct {
	RequestID string `json:"request_id"`
	StreamURL string `json:"stream_url"`
	ReportURL string `json:"report_url"`
}

type InvalidateRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type AuthURLResponse struct {
	Platform string `json:"platform"`
	AuthURL  string `json:"auth_url"`
	State    string `json:"state"`
}
