package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"multipost/domain/model"
	"multipost/infrastructure/clients"
	"multipost/infrastructure/logger"

	"github.com/google/go-querystring/query"
)

const (
	defaultGraphURL  = "https://graph.facebook.com"
	defaultVideoURL  = "https://graph-video.facebook.com"
	defaultDialogURL = "https://www.facebook.com"
	scopes           = "pages_show_list,pages_read_engagement,pages_manage_posts"
)

// Graph error codes that mean "try again later".
var transientCodes = map[int]bool{1: true, 2: true, 4: true, 17: true, 341: true}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	GraphVersion string
	// PageID pins the page to publish to; empty selects the first managed page.
	PageID string

	GraphURL   string
	VideoURL   string
	DialogURL  string
	HTTPClient *http.Client
	// HTTPTimeout applies when HTTPClient is nil.
	HTTPTimeout time.Duration
}

// Adapter publishes videos to a Facebook page through the Graph API.
type Adapter struct {
	cfg Config
	hc  *http.Client
}

func NewAdapter(cfg Config) *Adapter {
	if cfg.GraphVersion == "" {
		cfg.GraphVersion = "v23.0"
	}
	if cfg.GraphURL == "" {
		cfg.GraphURL = defaultGraphURL
	}
	if cfg.VideoURL == "" {
		cfg.VideoURL = defaultVideoURL
	}
	if cfg.DialogURL == "" {
		cfg.DialogURL = defaultDialogURL
	}
	return &Adapter{cfg: cfg, hc: clients.NewHTTPClient(cfg.HTTPClient, cfg.HTTPTimeout)}
}

func (a *Adapter) Descriptor() model.PlatformDescriptor {
	return model.PlatformDescriptor{
		ID:          model.PlatformFacebook,
		DisplayName: "Facebook",
		Capabilities: model.Capabilities{
			SupportsVideo:        true,
			MaxTitleLength:       255,
			MaxDescriptionLength: 63206,
			MaxHashtags:          30,
			TruncateTitle:        true,
			SupportedFormats:     []string{".mp4", ".mov", ".avi"},
		},
	}
}

type dialogParams struct {
	ClientID     string `url:"client_id"`
	RedirectURI  string `url:"redirect_uri"`
	State        string `url:"state"`
	Scope        string `url:"scope"`
	ResponseType string `url:"response_type"`
}

type tokenParams struct {
	ClientID      string `url:"client_id"`
	ClientSecret  string `url:"client_secret"`
	RedirectURI   string `url:"redirect_uri,omitempty"`
	Code          string `url:"code,omitempty"`
	GrantType     string `url:"grant_type,omitempty"`
	ExchangeToken string `url:"fb_exchange_token,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

type graphError struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error"`
}

func (a *Adapter) AuthCodeURL(state string) string {
	v, _ := query.Values(dialogParams{
		ClientID:     a.cfg.ClientID,
		RedirectURI:  a.cfg.RedirectURL,
		State:        state,
		Scope:        scopes,
		ResponseType: "code",
	})
	return fmt.Sprintf("%s/%s/dialog/oauth?%s", a.cfg.DialogURL, a.cfg.GraphVersion, v.Encode())
}

// Exchange runs code -> short-lived user token -> long-lived user token -> page token.
func (a *Adapter) Exchange(ctx context.Context, code string) (*model.CredentialRecord, error) {
	short, err := a.token(ctx, tokenParams{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		RedirectURI:  a.cfg.RedirectURL,
		Code:         code,
	})
	if err != nil {
		return nil, err
	}
	return a.pageCredential(ctx, short.AccessToken, a.cfg.PageID)
}

// RefreshCredential re-exchanges the long-lived user token and re-reads the page token.
func (a *Adapter) RefreshCredential(ctx context.Context, rec *model.CredentialRecord) (*model.CredentialRecord, error) {
	if !rec.Refreshable() {
		return nil, model.NewAuthError(model.PlatformFacebook, model.AuthReasonExpiredUnrefreshable, nil)
	}
	pageID := rec.Identifier(model.IdentifierPageID)
	if pageID == "" {
		pageID = a.cfg.PageID
	}
	return a.pageCredential(ctx, rec.RefreshToken, pageID)
}

func (a *Adapter) pageCredential(ctx context.Context, userToken, pageID string) (*model.CredentialRecord, error) {
	long, err := a.token(ctx, tokenParams{
		ClientID:      a.cfg.ClientID,
		ClientSecret:  a.cfg.ClientSecret,
		GrantType:     "fb_exchange_token",
		ExchangeToken: userToken,
	})
	if err != nil {
		return nil, err
	}
	pages, err := a.pages(ctx, long.AccessToken)
	if err != nil {
		return nil, err
	}
	selected, err := selectPage(pages, pageID)
	if err != nil {
		return nil, err
	}

	rec := &model.CredentialRecord{
		PlatformID:   model.PlatformFacebook,
		AccessToken:  selected.AccessToken,
		RefreshToken: long.AccessToken,
		TokenType:    "page",
		Scopes:       scopes,
		Identifiers: map[string]string{
			model.IdentifierPageID:   selected.ID,
			model.IdentifierPageName: selected.Name,
		},
	}
	if long.ExpiresIn > 0 {
		exp := time.Now().Add(time.Duration(long.ExpiresIn) * time.Second).UTC()
		rec.ExpiresAt = &exp
	}
	return rec, nil
}

func selectPage(pages []page, pageID string) (page, error) {
	if len(pages) == 0 {
		return page{}, model.NewAuthError(model.PlatformFacebook, model.AuthReasonMissing, fmt.Errorf("no managed pages available"))
	}
	if pageID == "" {
		return pages[0], nil
	}
	for _, p := range pages {
		if p.ID == pageID {
			return p, nil
		}
	}
	return page{}, model.NewAuthError(model.PlatformFacebook, model.AuthReasonRevoked, fmt.Errorf("page %s is no longer managed by this user", pageID))
}

func (a *Adapter) token(ctx context.Context, params tokenParams) (*tokenResponse, error) {
	v, err := query.Values(params)
	if err != nil {
		return nil, model.NewRejectedError(model.PlatformFacebook, "encode token request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.graph("/oauth/access_token")+"?"+v.Encode(), nil)
	if err != nil {
		return nil, model.NewRejectedError(model.PlatformFacebook, "build token request", err)
	}
	var out tokenResponse
	if err := a.do(req, &out); err != nil {
		return nil, tokenError(err)
	}
	if out.AccessToken == "" {
		return nil, model.NewAuthError(model.PlatformFacebook, model.AuthReasonRevoked, fmt.Errorf("token response without access_token"))
	}
	return &out, nil
}

// tokenError treats a rejected grant as an auth failure; nothing else can fix it.
func tokenError(err error) error {
	if model.KindOf(err) == model.ErrorKindPlatformRejected {
		return model.NewAuthError(model.PlatformFacebook, model.AuthReasonRevoked, err)
	}
	return err
}

func (a *Adapter) pages(ctx context.Context, userToken string) ([]page, error) {
	v, _ := query.Values(struct {
		AccessToken string `url:"access_token"`
		Fields      string `url:"fields"`
	}{AccessToken: userToken, Fields: "id,name,access_token"})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.graph("/me/accounts")+"?"+v.Encode(), nil)
	if err != nil {
		return nil, model.NewRejectedError(model.PlatformFacebook, "build pages request", err)
	}
	var out struct {
		Data []page `json:"data"`
	}
	if err := a.do(req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (a *Adapter) IsAuthenticated(rec *model.CredentialRecord) bool {
	return rec != nil && rec.AccessToken != "" && rec.Identifier(model.IdentifierPageID) != ""
}

func (a *Adapter) UploadVideo(ctx context.Context, cred *model.CredentialRecord, video model.Video, meta model.Metadata) (*model.PublishOutcome, error) {
	meta, err := a.Descriptor().Validate(meta)
	if err != nil {
		return nil, err
	}
	pageID := ""
	if cred != nil {
		pageID = cred.Identifier(model.IdentifierPageID)
	}
	if cred == nil || cred.AccessToken == "" || pageID == "" {
		return nil, model.NewAuthError(model.PlatformFacebook, model.AuthReasonMissing, nil)
	}
	file, _, err := clients.OpenVideo(model.PlatformFacebook, video)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	body, contentType := multipartBody(file, filepath.Base(video.Path), map[string]string{
		"access_token": cred.AccessToken,
		"title":        meta.Title,
		"description":  clients.AppendHashtags(meta.Description, meta.Hashtags),
	})
	// Closing the reader unblocks the writer goroutine on every exit path.
	defer body.Close()
	endpoint := fmt.Sprintf("%s/%s/%s/videos", a.cfg.VideoURL, a.cfg.GraphVersion, pageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, model.NewRejectedError(model.PlatformFacebook, "build upload request", err)
	}
	req.Header.Set("Content-Type", contentType)

	var out struct {
		ID string `json:"id"`
	}
	if err := a.do(req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, model.NewRejectedError(model.PlatformFacebook, "upload response without video id", nil)
	}
	logger.GetLogger().WithField("page_id", pageID).WithField("video_id", out.ID).Info("Facebook video uploaded")
	return &model.PublishOutcome{
		PlatformID:   model.PlatformFacebook,
		RemotePostID: out.ID,
		RemoteURL:    fmt.Sprintf("https://www.facebook.com/%s/videos/%s", pageID, out.ID),
	}, nil
}

// multipartBody streams fields and the video file without buffering the file in memory.
func multipartBody(file io.Reader, fileName string, fields map[string]string) (*io.PipeReader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		for k, v := range fields {
			if err := mw.WriteField(k, v); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		part, err := mw.CreateFormFile("source", fileName)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()
	return pr, mw.FormDataContentType()
}

func (a *Adapter) UploadStatus(ctx context.Context, cred *model.CredentialRecord, remoteID string) (*model.UploadStatus, error) {
	if cred == nil || cred.AccessToken == "" {
		return nil, model.NewAuthError(model.PlatformFacebook, model.AuthReasonMissing, nil)
	}
	v, _ := query.Values(struct {
		AccessToken string `url:"access_token"`
		Fields      string `url:"fields"`
	}{AccessToken: cred.AccessToken, Fields: "status"})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.graph("/"+remoteID)+"?"+v.Encode(), nil)
	if err != nil {
		return nil, model.NewRejectedError(model.PlatformFacebook, "build status request", err)
	}
	var out struct {
		Status struct {
			VideoStatus     string `json:"video_status"`
			ProcessingPhase struct {
				Status string `json:"status"`
			} `json:"processing_phase"`
		} `json:"status"`
	}
	if err := a.do(req, &out); err != nil {
		return nil, err
	}
	return &model.UploadStatus{
		PlatformID: model.PlatformFacebook,
		RemoteID:   remoteID,
		State:      out.Status.VideoStatus,
		Detail:     out.Status.ProcessingPhase.Status,
	}, nil
}

func (a *Adapter) graph(path string) string {
	return a.cfg.GraphURL + "/" + a.cfg.GraphVersion + path
}

// do sends req and decodes a 2xx JSON body into out. Graph errors are classified
// by their error code first and the HTTP status second.
func (a *Adapter) do(req *http.Request, out any) error {
	resp, err := a.hc.Do(req)
	if err != nil {
		return clients.ClassifyTransport(model.PlatformFacebook, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return clients.ClassifyTransport(model.PlatformFacebook, err)
	}
	if resp.StatusCode >= 300 {
		return classify(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return model.NewRejectedError(model.PlatformFacebook, "unexpected response body", err)
	}
	return nil
}

func classify(status int, body []byte) error {
	var ge graphError
	if err := json.Unmarshal(body, &ge); err != nil || ge.Error.Code == 0 {
		return clients.ClassifyStatus(model.PlatformFacebook, status, strings.TrimSpace(string(body)))
	}
	err := fmt.Errorf("graph error %d/%d: %s", ge.Error.Code, ge.Error.ErrorSubcode, ge.Error.Message)
	switch {
	case ge.Error.Code == 190 || ge.Error.Code == 102:
		return model.NewAuthError(model.PlatformFacebook, model.AuthReasonRevoked, err)
	case transientCodes[ge.Error.Code] || status >= 500:
		return model.NewTransientError(model.PlatformFacebook, err)
	default:
		return model.NewRejectedError(model.PlatformFacebook, ge.Error.Message, err)
	}
}
