package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"multipost/domain/dto"
	"multipost/domain/model"
	"multipost/infrastructure/logger"
	"multipost/usecase"
)

const stateTTL = 10 * time.Minute

type IOAuthHandler interface {
	GetAuthURL(ctx *gin.Context)
	Callback(ctx *gin.Context)
}

// OAuthHandler drives the browser authorization flow for any registered
// platform. Issued states are single use and expire after ten minutes.
type OAuthHandler struct {
	creds  usecase.ICredentialManager
	states *stateStore
}

func NewOAuthHandler(creds usecase.ICredentialManager) IOAuthHandler {
	return &OAuthHandler{creds: creds, states: newStateStore(stateTTL, time.Now)}
}

// GetAuthURL handles GET /auth/:platform. With ?redirect=true the caller is
// sent straight to the consent page.
func (h *OAuthHandler) GetAuthURL(ctx *gin.Context) {
	p := model.ParsePlatformID(ctx.Param("platform"))
	state := usecase.NewState()
	authURL, err := h.creds.AuthCodeURL(p, state)
	if err != nil {
		abortErr(ctx, err)
		return
	}
	h.states.put(state, p)
	if ctx.Query("redirect") == "true" {
		ctx.Redirect(http.StatusFound, authURL)
		return
	}
	ctx.JSON(http.StatusOK, dto.AuthURLResponse{Platform: string(p), AuthURL: authURL, State: state})
}

// Callback handles GET /auth/:platform/callback
func (h *OAuthHandler) Callback(ctx *gin.Context) {
	p := model.ParsePlatformID(ctx.Param("platform"))
	if errorParam := ctx.Query("error"); errorParam != "" {
		abort(ctx, http.StatusBadRequest, "OAuth error: "+errorParam+" "+ctx.Query("error_description"))
		return
	}
	state := ctx.Query("state")
	if state == "" || !h.states.consume(state, p) {
		abort(ctx, http.StatusBadRequest, "invalid or expired state, visit /auth/"+string(p)+" to start over")
		return
	}
	code := ctx.Query("code")
	if code == "" {
		abort(ctx, http.StatusBadRequest, "authorization code not found")
		return
	}
	rec, err := h.creds.CompleteAuthorization(ctx.Request.Context(), p, code)
	if err != nil {
		logger.GetLogger().WithField("platform", p).WithField("error", err.Error()).Warn("OAuth callback failed")
		abortErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"platform":      p,
		"authenticated": true,
		"expires_at":    rec.ExpiresAt,
		"identifiers":   rec.Identifiers,
	})
}

type pendingState struct {
	platform model.PlatformID
	expires  time.Time
}

type stateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	pending map[string]pendingState
}

func newStateStore(ttl time.Duration, now func() time.Time) *stateStore {
	return &stateStore{ttl: ttl, now: now, pending: make(map[string]pendingState)}
}

func (s *stateStore) put(state string, p model.PlatformID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, v := range s.pending {
		if now.After(v.expires) {
			delete(s.pending, k)
		}
	}
	s.pending[state] = pendingState{platform: p, expires: now.Add(s.ttl)}
}

// consume reports whether state was issued for p and has not expired. A state
// is removed on first use.
func (s *stateStore) consume(state string, p model.PlatformID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.pending[state]
	if !ok {
		return false
	}
	delete(s.pending, state)
	return v.platform == p && !s.now().After(v.expires)
}
