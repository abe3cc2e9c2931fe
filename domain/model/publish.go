package model

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// PipelineState is the per-platform state of one publish request.
type PipelineState string

const (
	StatePending           PipelineState = "PENDING"
	StateMetadataResolving PipelineState = "METADATA_RESOLVING"
	StateCredentialCheck   PipelineState = "CREDENTIAL_CHECK"
	StateUploading         PipelineState = "UPLOADING"
	StateSucceeded         PipelineState = "SUCCEEDED"
	StateFailed            PipelineState = "FAILED"
)

func (s PipelineState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Video references a local file.
type Video struct {
	Path string `json:"path"`
}

func (v Video) Name() string {
	base := filepath.Base(v.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Metadata is the text published alongside a video. Extra carries
// platform-specific knobs (privacy, category_id).
type Metadata struct {
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Hashtags    []string          `json:"hashtags,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

func (m Metadata) Complete() bool {
	return m.Title != "" && m.Description != "" && len(m.Hashtags) > 0
}

// Merge fills the empty fields of m from fallback.
func (m Metadata) Merge(fallback Metadata) Metadata {
	out := m
	if out.Title == "" {
		out.Title = fallback.Title
	}
	if out.Description == "" {
		out.Description = fallback.Description
	}
	if len(out.Hashtags) == 0 {
		out.Hashtags = fallback.Hashtags
	}
	if len(fallback.Extra) > 0 {
		extra := make(map[string]string, len(fallback.Extra)+len(m.Extra))
		for k, v := range fallback.Extra {
			extra[k] = v
		}
		for k, v := range m.Extra {
			extra[k] = v
		}
		out.Extra = extra
	}
	return out
}

// NormalizeHashtags lowercases, prefixes with '#', and drops duplicates while keeping order.
func NormalizeHashtags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		t = strings.TrimLeft(t, "#")
		if t == "" {
			continue
		}
		t = "#" + strings.ReplaceAll(t, " ", "")
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// VideoContext is what the content generator knows about a video.
type VideoContext struct {
	FileName string `json:"file_name"`
	Hints    string `json:"hints,omitempty"`
}

// PublishRequest is immutable once submitted.
type PublishRequest struct {
	RequestID string                  `json:"request_id"`
	Video     Video                   `json:"video"`
	Platforms []PlatformID            `json:"platforms"`
	Metadata  Metadata                `json:"metadata"`
	Overrides map[PlatformID]Metadata `json:"overrides,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// MetadataFor returns the user-supplied metadata for platform p, with
// platform-specific overrides taking precedence over the shared fields.
func (r *PublishRequest) MetadataFor(p PlatformID) Metadata {
	if o, ok := r.Overrides[p]; ok {
		return o.Merge(r.Metadata)
	}
	return r.Metadata
}

// Clone returns a deep copy so a pipeline never writes through to the caller's request.
func (r *PublishRequest) Clone() *PublishRequest {
	if r == nil {
		return nil
	}
	out := *r
	out.Platforms = append([]PlatformID(nil), r.Platforms...)
	out.Metadata = r.Metadata.clone()
	if r.Overrides != nil {
		out.Overrides = make(map[PlatformID]Metadata, len(r.Overrides))
		for p, m := range r.Overrides {
			out.Overrides[p] = m.clone()
		}
	}
	return &out
}

func (m Metadata) clone() Metadata {
	out := m
	if m.Hashtags != nil {
		out.Hashtags = append([]string(nil), m.Hashtags...)
	}
	if m.Extra != nil {
		out.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// PublishOutcome is append-only; a retry is a new request.
type PublishOutcome struct {
	RequestID    string        `json:"request_id" bson:"request_id" gorm:"column:request_id;size:64;uniqueIndex:ux_outcome_request_platform"`
	PlatformID   PlatformID    `json:"platform_id" bson:"platform_id" gorm:"column:platform_id;size:32;uniqueIndex:ux_outcome_request_platform;index"`
	Status       OutcomeStatus `json:"status" bson:"status" gorm:"column:status;size:16"`
	RemotePostID string        `json:"remote_post_id,omitempty" bson:"remote_post_id,omitempty" gorm:"column:remote_post_id;size:255"`
	RemoteURL    string        `json:"remote_url,omitempty" bson:"remote_url,omitempty" gorm:"column:remote_url;size:1024"`
	ErrorKind    ErrorKind     `json:"error_kind,omitempty" bson:"error_kind,omitempty" gorm:"column:error_kind;size:32"`
	ErrorMessage string        `json:"error_message,omitempty" bson:"error_message,omitempty" gorm:"column:error_message;type:text"`
	Warnings     []string      `json:"warnings,omitempty" bson:"warnings,omitempty" gorm:"serializer:json;column:warnings"`
	Attempts     int           `json:"attempts" bson:"attempts" gorm:"column:attempts"`
	CompletedAt  time.Time     `json:"completed_at" bson:"completed_at" gorm:"column:completed_at;index"`
}

func (o *PublishOutcome) Succeeded() bool { return o.Status == OutcomeSuccess }

// StateChange is emitted on every pipeline transition.
type StateChange struct {
	RequestID  string        `json:"request_id"`
	PlatformID PlatformID    `json:"platform_id"`
	State      PipelineState `json:"state"`
	At         time.Time     `json:"at"`
}

type ReportSummary string

const (
	SummaryAllSucceeded ReportSummary = "all_succeeded"
	SummaryPartial      ReportSummary = "partial"
	SummaryAllFailed    ReportSummary = "all_failed"
	SummaryAllSkipped   ReportSummary = "all_skipped"
)

// PublishReport is the set of per-platform outcomes for one request. It has no single
// pass/fail flag.
type PublishReport struct {
	RequestID string           `json:"request_id"`
	Outcomes  []PublishOutcome `json:"outcomes"`
}

// Sort orders outcomes by platform for stable output.
func (r *PublishReport) Sort() {
	sort.Slice(r.Outcomes, func(i, j int) bool { return r.Outcomes[i].PlatformID < r.Outcomes[j].PlatformID })
}

func (r *PublishReport) Outcome(p PlatformID) (PublishOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.PlatformID == p {
			return o, true
		}
	}
	return PublishOutcome{}, false
}

func (r *PublishReport) count(s OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

func (r *PublishReport) Succeeded() int { return r.count(OutcomeSuccess) }
func (r *PublishReport) Failed() int    { return r.count(OutcomeFailed) }
func (r *PublishReport) Skipped() int   { return r.count(OutcomeSkipped) }

func (r *PublishReport) AnySucceeded() bool { return r.Succeeded() > 0 }

func (r *PublishReport) Summary() ReportSummary {
	ok, failed := r.Succeeded(), r.Failed()
	switch {
	case ok == len(r.Outcomes) && ok > 0:
		return SummaryAllSucceeded
	case ok > 0:
		return SummaryPartial
	case failed > 0:
		return SummaryAllFailed
	default:
		return SummaryAllSkipped
	}
}

// UploadStatus is the remote processing state of a previously uploaded video.
type UploadStatus struct {
	PlatformID    PlatformID `json:"platform_id"`
	RemoteID      string     `json:"remote_id"`
	State         string     `json:"state"`
	PrivacyStatus string     `json:"privacy_status,omitempty"`
	Detail        string     `json:"detail,omitempty"`
}
