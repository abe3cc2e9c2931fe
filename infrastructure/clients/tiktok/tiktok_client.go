package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"multipost/domain/model"
	"multipost/infrastructure/clients"
	"multipost/infrastructure/logger"

	"github.com/google/go-querystring/query"
)

const (
	defaultAPIURL  = "https://open.tiktokapis.com"
	defaultAuthURL = "https://www.tiktok.com/auth/authorize/"
	scopes         = "user.info.basic,video.list,video.upload"
	maxCaption     = 2200

	// Files up to maxSingleChunk go up in one PUT; larger files use chunkSize
	// pieces with the remainder folded into the last one.
	maxSingleChunk = 64 << 20
	chunkSize      = 10 << 20
)

type Config struct {
	ClientKey    string
	ClientSecret string
	RedirectURL  string
	PrivacyLevel string

	APIURL     string
	AuthURL    string
	HTTPClient *http.Client
	// HTTPTimeout applies when HTTPClient is nil.
	HTTPTimeout time.Duration
}

// Adapter publishes through the TikTok Content Posting API.
type Adapter struct {
	cfg Config
	hc  *http.Client
}

func NewAdapter(cfg Config) *Adapter {
	if cfg.PrivacyLevel == "" {
		cfg.PrivacyLevel = "SELF_ONLY"
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	return &Adapter{cfg: cfg, hc: clients.NewHTTPClient(cfg.HTTPClient, cfg.HTTPTimeout)}
}

func (a *Adapter) Descriptor() model.PlatformDescriptor {
	return model.PlatformDescriptor{
		ID:          model.PlatformTikTok,
		DisplayName: "TikTok",
		Capabilities: model.Capabilities{
			SupportsVideo:        true,
			MaxTitleLength:       maxCaption,
			MaxDescriptionLength: maxCaption,
			MaxHashtags:          30,
			TruncateTitle:        true,
			SupportedFormats:     []string{".mp4", ".mov", ".avi"},
		},
	}
}

type authParams struct {
	ClientKey    string `url:"client_key"`
	Scope        string `url:"scope"`
	ResponseType string `url:"response_type"`
	RedirectURI  string `url:"redirect_uri"`
	State        string `url:"state"`
}

type tokenForm struct {
	ClientKey    string `url:"client_key"`
	ClientSecret string `url:"client_secret"`
	GrantType    string `url:"grant_type"`
	Code         string `url:"code,omitempty"`
	RedirectURI  string `url:"redirect_uri,omitempty"`
	RefreshToken string `url:"refresh_token,omitempty"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	OpenID           string `json:"open_id"`
	Scope            string `json:"scope"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// apiError is the envelope every Content Posting API response carries.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

func (a *Adapter) AuthCodeURL(state string) string {
	v, _ := query.Values(authParams{
		ClientKey:    a.cfg.ClientKey,
		Scope:        scopes,
		ResponseType: "code",
		RedirectURI:  a.cfg.RedirectURL,
		State:        state,
	})
	return a.cfg.AuthURL + "?" + v.Encode()
}

func (a *Adapter) Exchange(ctx context.Context, code string) (*model.CredentialRecord, error) {
	return a.token(ctx, tokenForm{
		ClientKey:    a.cfg.ClientKey,
		ClientSecret: a.cfg.ClientSecret,
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  a.cfg.RedirectURL,
	})
}

func (a *Adapter) RefreshCredential(ctx context.Context, rec *model.CredentialRecord) (*model.CredentialRecord, error) {
	if !rec.Refreshable() {
		return nil, model.NewAuthError(model.PlatformTikTok, model.AuthReasonExpiredUnrefreshable, nil)
	}
	out, err := a.token(ctx, tokenForm{
		ClientKey:    a.cfg.ClientKey,
		ClientSecret: a.cfg.ClientSecret,
		GrantType:    "refresh_token",
		RefreshToken: rec.RefreshToken,
	})
	if err != nil {
		return nil, err
	}
	if out.Identifier(model.IdentifierOpenID) == "" && rec.Identifier(model.IdentifierOpenID) != "" {
		out.Identifiers = map[string]string{model.IdentifierOpenID: rec.Identifier(model.IdentifierOpenID)}
	}
	return out, nil
}

func (a *Adapter) token(ctx context.Context, form tokenForm) (*model.CredentialRecord, error) {
	v, err := query.Values(form)
	if err != nil {
		return nil, model.NewRejectedError(model.PlatformTikTok, "encode token request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIURL+"/v2/oauth/token/", strings.NewReader(v.Encode()))
	if err != nil {
		return nil, model.NewRejectedError(model.PlatformTikTok, "build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := a.hc.Do(req)
	if err != nil {
		return nil, clients.ClassifyTransport(model.PlatformTikTok, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, clients.ClassifyTransport(model.PlatformTikTok, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, clients.ClassifyStatus(model.PlatformTikTok, resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, model.NewRejectedError(model.PlatformTikTok, "unexpected token response", err)
	}
	// The token endpoint reports grant failures in the body, sometimes with a 200.
	if tr.Error != "" || tr.AccessToken == "" || resp.StatusCode >= 300 {
		return nil, model.NewAuthError(model.PlatformTikTok, model.AuthReasonRevoked,
			fmt.Errorf("token endpoint: %s: %s", tr.Error, tr.ErrorDescription))
	}

	now := time.Now().UTC()
	rec := &model.CredentialRecord{
		PlatformID:   model.PlatformTikTok,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		Scopes:       tr.Scope,
	}
	if tr.ExpiresIn > 0 {
		exp := now.Add(time.Duration(tr.ExpiresIn) * time.Second)
		rec.ExpiresAt = &exp
	}
	if tr.OpenID != "" {
		rec.Identifiers = map[string]string{model.IdentifierOpenID: tr.OpenID}
	}
	return rec, nil
}

func (a *Adapter) IsAuthenticated(rec *model.CredentialRecord) bool {
	return rec != nil && (rec.AccessToken != "" || rec.Refreshable())
}

type initRequest struct {
	PostInfo   postInfo   `json:"post_info"`
	SourceInfo sourceInfo `json:"source_info"`
}

type postInfo struct {
	Title         string `json:"title"`
	PrivacyLevel  string `json:"privacy_level"`
	DisableDuet   bool   `json:"disable_duet"`
	DisableStitch bool   `json:"disable_stitch"`
}

type sourceInfo struct {
	Source          string `json:"source"`
	VideoSize       int64  `json:"video_size"`
	ChunkSize       int64  `json:"chunk_size"`
	TotalChunkCount int64  `json:"total_chunk_count"`
}

func (a *Adapter) UploadVideo(ctx context.Context, cred *model.CredentialRecord, video model.Video, meta model.Metadata) (*model.PublishOutcome, error) {
	meta, err := a.Descriptor().Validate(meta)
	if err != nil {
		return nil, err
	}
	if cred == nil || cred.AccessToken == "" {
		return nil, model.NewAuthError(model.PlatformTikTok, model.AuthReasonMissing, nil)
	}
	file, info, err := clients.OpenVideo(model.PlatformTikTok, video)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	size := info.Size()
	chunk, count := chunking(size)
	privacy := a.cfg.PrivacyLevel
	if v := meta.Extra["privacy"]; v != "" {
		privacy = v
	}

	var initResp struct {
		Data struct {
			PublishID string `json:"publish_id"`
			UploadURL string `json:"upload_url"`
		} `json:"data"`
	}
	err = a.postJSON(ctx, cred, "/v2/post/publish/video/init/", initRequest{
		PostInfo: postInfo{Title: caption(meta), PrivacyLevel: privacy},
		SourceInfo: sourceInfo{
			Source:          "FILE_UPLOAD",
			VideoSize:       size,
			ChunkSize:       chunk,
			TotalChunkCount: count,
		},
	}, &initResp)
	if err != nil {
		return nil, err
	}
	if initResp.Data.UploadURL == "" || initResp.Data.PublishID == "" {
		return nil, model.NewRejectedError(model.PlatformTikTok, "init response without upload_url", nil)
	}

	if err := a.putChunks(ctx, initResp.Data.UploadURL, file, size, chunk, count); err != nil {
		return nil, err
	}
	logger.GetLogger().WithField("publish_id", initResp.Data.PublishID).Info("TikTok video uploaded")
	return &model.PublishOutcome{
		PlatformID:   model.PlatformTikTok,
		RemotePostID: initResp.Data.PublishID,
	}, nil
}

// chunking returns the chunk size and count for a file of size bytes.
func chunking(size int64) (int64, int64) {
	if size <= maxSingleChunk {
		return size, 1
	}
	return chunkSize, size / chunkSize
}

func (a *Adapter) putChunks(ctx context.Context, uploadURL string, file *os.File, size, chunk, count int64) error {
	for i := int64(0); i < count; i++ {
		start := i * chunk
		end := start + chunk - 1
		if i == count-1 {
			end = size - 1
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, io.NewSectionReader(file, start, end-start+1))
		if err != nil {
			return model.NewRejectedError(model.PlatformTikTok, "build chunk request", err)
		}
		req.ContentLength = end - start + 1
		req.Header.Set("Content-Type", "video/mp4")
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))

		resp, err := a.hc.Do(req)
		if err != nil {
			return clients.ClassifyTransport(model.PlatformTikTok, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return clients.ClassifyStatus(model.PlatformTikTok, resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}
	return nil
}

func (a *Adapter) UploadStatus(ctx context.Context, cred *model.CredentialRecord, remoteID string) (*model.UploadStatus, error) {
	if cred == nil || cred.AccessToken == "" {
		return nil, model.NewAuthError(model.PlatformTikTok, model.AuthReasonMissing, nil)
	}
	var out struct {
		Data struct {
			Status     string   `json:"status"`
			FailReason string   `json:"fail_reason"`
			PostIDs    []string `json:"publicaly_available_post_id"`
		} `json:"data"`
	}
	err := a.postJSON(ctx, cred, "/v2/post/publish/status/fetch/", map[string]string{"publish_id": remoteID}, &out)
	if err != nil {
		return nil, err
	}
	st := &model.UploadStatus{
		PlatformID: model.PlatformTikTok,
		RemoteID:   remoteID,
		State:      out.Data.Status,
		Detail:     out.Data.FailReason,
	}
	if st.Detail == "" && len(out.Data.PostIDs) > 0 {
		st.Detail = "post_id=" + out.Data.PostIDs[0]
	}
	return st, nil
}

func (a *Adapter) postJSON(ctx context.Context, cred *model.CredentialRecord, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return model.NewRejectedError(model.PlatformTikTok, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIURL+path, bytes.NewReader(payload))
	if err != nil {
		return model.NewRejectedError(model.PlatformTikTok, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := a.hc.Do(req)
	if err != nil {
		return clients.ClassifyTransport(model.PlatformTikTok, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return clients.ClassifyTransport(model.PlatformTikTok, err)
	}

	var envelope struct {
		Error apiError `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)
	if resp.StatusCode >= 300 || (envelope.Error.Code != "" && envelope.Error.Code != "ok") {
		return classify(resp.StatusCode, envelope.Error, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return model.NewRejectedError(model.PlatformTikTok, "unexpected response body", err)
	}
	return nil
}

func classify(status int, e apiError, body []byte) error {
	if e.Code == "" {
		return clients.ClassifyStatus(model.PlatformTikTok, status, strings.TrimSpace(string(body)))
	}
	err := fmt.Errorf("tiktok %s: %s (log_id=%s)", e.Code, e.Message, e.LogID)
	switch e.Code {
	case "access_token_invalid", "scope_not_authorized", "scope_permission_missed":
		return model.NewAuthError(model.PlatformTikTok, model.AuthReasonRevoked, err)
	case "rate_limit_exceeded", "internal_error":
		return model.NewTransientError(model.PlatformTikTok, err)
	}
	if status >= 500 {
		return model.NewTransientError(model.PlatformTikTok, err)
	}
	return model.NewRejectedError(model.PlatformTikTok, e.Code, err)
}

// caption folds title, description and hashtags into TikTok's single text field.
func caption(meta model.Metadata) string {
	text := meta.Title
	if meta.Description != "" {
		text += "\n\n" + meta.Description
	}
	text = clients.AppendHashtags(text, meta.Hashtags)
	if utf8.RuneCountInString(text) > maxCaption {
		text = string([]rune(text)[:maxCaption])
	}
	return text
}
