package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"multipost/domain/model"
	"multipost/infrastructure/clients"
	"multipost/infrastructure/logger"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const watchURL = "https://www.youtube.com/watch?v="

// Config represents YouTube API configuration
type Config struct {
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	CategoryID    string
	PrivacyStatus string
	// Endpoint overrides the API base URL (tests, emulators).
	Endpoint string
	// OAuthEndpoint overrides google.Endpoint.
	OAuthEndpoint *oauth2.Endpoint
	HTTPClient    *http.Client
	// HTTPTimeout applies when HTTPClient is nil.
	HTTPTimeout time.Duration
}

// Adapter publishes to YouTube through the Data API v3.
type Adapter struct {
	cfg   Config
	oauth *oauth2.Config
}

func NewAdapter(cfg Config) *Adapter {
	if cfg.CategoryID == "" {
		cfg.CategoryID = "22"
	}
	if cfg.PrivacyStatus == "" {
		cfg.PrivacyStatus = "private"
	}
	cfg.HTTPClient = clients.NewHTTPClient(cfg.HTTPClient, cfg.HTTPTimeout)
	endpoint := google.Endpoint
	if cfg.OAuthEndpoint != nil {
		endpoint = *cfg.OAuthEndpoint
	}
	return &Adapter{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope},
			Endpoint:     endpoint,
		},
	}
}

func (a *Adapter) Descriptor() model.PlatformDescriptor {
	return model.PlatformDescriptor{
		ID:          model.PlatformYouTube,
		DisplayName: "YouTube",
		Capabilities: model.Capabilities{
			SupportsVideo:        true,
			SupportsScheduling:   true,
			MaxTitleLength:       100,
			MaxDescriptionLength: 5000,
			MaxHashtags:          15,
			TruncateTitle:        false,
			DisallowedTitleChars: "<>",
			SupportedFormats:     []string{".mp4", ".mov", ".avi", ".wmv", ".flv", ".webm", ".mkv"},
		},
	}
}

func (a *Adapter) AuthCodeURL(state string) string {
	return a.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (a *Adapter) Exchange(ctx context.Context, code string) (*model.CredentialRecord, error) {
	tok, err := a.oauth.Exchange(clients.WithHTTPClient(ctx, a.cfg.HTTPClient), code)
	if err != nil {
		return nil, clients.ClassifyTokenError(model.PlatformYouTube, err)
	}
	rec := recordFromToken(tok)
	rec.Scopes = strings.Join(a.oauth.Scopes, " ")
	if channelID, err := a.channelID(ctx, rec); err != nil {
		logger.GetLogger().WithField("error", err).Warn("Could not resolve YouTube channel id")
	} else if channelID != "" {
		rec.Identifiers = map[string]string{model.IdentifierChannelID: channelID}
	}
	return rec, nil
}

func (a *Adapter) RefreshCredential(ctx context.Context, rec *model.CredentialRecord) (*model.CredentialRecord, error) {
	if !rec.Refreshable() {
		return nil, model.NewAuthError(model.PlatformYouTube, model.AuthReasonExpiredUnrefreshable, nil)
	}
	// An expired token forces the source to hit the token endpoint.
	src := a.oauth.TokenSource(clients.WithHTTPClient(ctx, a.cfg.HTTPClient), &oauth2.Token{
		RefreshToken: rec.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	})
	tok, err := src.Token()
	if err != nil {
		return nil, clients.ClassifyTokenError(model.PlatformYouTube, err)
	}
	return recordFromToken(tok), nil
}

func (a *Adapter) IsAuthenticated(rec *model.CredentialRecord) bool {
	return rec != nil && (rec.AccessToken != "" || rec.Refreshable())
}

func (a *Adapter) UploadVideo(ctx context.Context, cred *model.CredentialRecord, video model.Video, meta model.Metadata) (*model.PublishOutcome, error) {
	meta, err := a.Descriptor().Validate(meta)
	if err != nil {
		return nil, err
	}
	if cred == nil || cred.AccessToken == "" {
		return nil, model.NewAuthError(model.PlatformYouTube, model.AuthReasonMissing, nil)
	}
	file, _, err := clients.OpenVideo(model.PlatformYouTube, video)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	svc, err := a.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	upload := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: clients.AppendHashtags(meta.Description, meta.Hashtags),
			CategoryId:  a.cfg.CategoryID,
			Tags:        tagsFrom(meta.Hashtags),
		},
		Status: &youtube.VideoStatus{PrivacyStatus: a.cfg.PrivacyStatus},
	}
	if v := meta.Extra["category_id"]; v != "" {
		upload.Snippet.CategoryId = v
	}
	if v := meta.Extra["privacy"]; v != "" {
		upload.Status.PrivacyStatus = v
	}

	resp, err := svc.Videos.Insert([]string{"snippet", "status"}, upload).Media(file).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	return &model.PublishOutcome{
		PlatformID:   model.PlatformYouTube,
		RemotePostID: resp.Id,
		RemoteURL:    watchURL + resp.Id,
	}, nil
}

// UploadStatus reports the upload and processing state of an uploaded video.
func (a *Adapter) UploadStatus(ctx context.Context, cred *model.CredentialRecord, remoteID string) (*model.UploadStatus, error) {
	svc, err := a.service(ctx, cred)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Videos.List([]string{"status", "processingDetails"}).Id(remoteID).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Items) == 0 {
		return nil, model.NewRejectedError(model.PlatformYouTube, "video not found", nil)
	}
	item := resp.Items[0]
	st := &model.UploadStatus{PlatformID: model.PlatformYouTube, RemoteID: remoteID}
	if item.Status != nil {
		st.State = item.Status.UploadStatus
		st.PrivacyStatus = item.Status.PrivacyStatus
		if item.Status.FailureReason != "" {
			st.Detail = item.Status.FailureReason
		} else if item.Status.RejectionReason != "" {
			st.Detail = item.Status.RejectionReason
		}
	}
	if st.Detail == "" && item.ProcessingDetails != nil {
		st.Detail = item.ProcessingDetails.ProcessingStatus
	}
	return st, nil
}

func (a *Adapter) channelID(ctx context.Context, rec *model.CredentialRecord) (string, error) {
	svc, err := a.service(ctx, rec)
	if err != nil {
		return "", err
	}
	resp, err := svc.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", nil
	}
	return resp.Items[0].Id, nil
}

func (a *Adapter) service(ctx context.Context, cred *model.CredentialRecord) (*youtube.Service, error) {
	tok := &oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"}
	httpClient := oauth2.NewClient(clients.WithHTTPClient(ctx, a.cfg.HTTPClient), oauth2.StaticTokenSource(tok))
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if a.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.cfg.Endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, model.NewRejectedError(model.PlatformYouTube, "failed to create YouTube service", err)
	}
	return svc, nil
}

func recordFromToken(tok *oauth2.Token) *model.CredentialRecord {
	rec := &model.CredentialRecord{
		PlatformID:   model.PlatformYouTube,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		rec.ExpiresAt = &exp
	}
	return rec
}

// classify maps Data API failures. Quota and policy errors come back as 403
// and are permanent for this request.
func classify(err error) error {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return clients.ClassifyTransport(model.PlatformYouTube, err)
	}
	reason := gErr.Message
	if len(gErr.Errors) > 0 && gErr.Errors[0].Reason != "" {
		reason = gErr.Errors[0].Reason
	}
	switch {
	case gErr.Code == http.StatusUnauthorized:
		return model.NewAuthError(model.PlatformYouTube, model.AuthReasonRevoked, err)
	case gErr.Code == http.StatusForbidden && (reason == "youtubeSignupRequired" || reason == "insufficientPermissions"):
		return model.NewAuthError(model.PlatformYouTube, model.AuthReasonRevoked, err)
	case gErr.Code == http.StatusTooManyRequests, gErr.Code >= 500:
		return model.NewTransientError(model.PlatformYouTube, err)
	default:
		return model.NewRejectedError(model.PlatformYouTube, reason, fmt.Errorf("youtube api: %w", err))
	}
}

func tagsFrom(hashtags []string) []string {
	if len(hashtags) == 0 {
		return nil
	}
	out := make([]string, 0, len(hashtags))
	for _, h := range hashtags {
		out = append(out, strings.TrimPrefix(h, "#"))
	}
	return out
}
