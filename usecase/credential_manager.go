package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"multipost/domain/model"
	"multipost/domain/repository"
	"multipost/infrastructure/logger"
	"multipost/infrastructure/retry"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

var ErrUnknownPlatform = errors.New("unknown platform")

type ICredentialManager interface {
	GetValidCredential(ctx context.Context, platform model.PlatformID) (*model.CredentialRecord, error)
	AuthCodeURL(platform model.PlatformID, state string) (string, error)
	Authorize(ctx context.Context, platform model.PlatformID, flow repository.IAuthorizationFlow) (*model.CredentialRecord, error)
	CompleteAuthorization(ctx context.Context, platform model.PlatformID, code string) (*model.CredentialRecord, error)
	Invalidate(ctx context.Context, platform model.PlatformID, reason string) error
	IsAuthenticated(ctx context.Context, platform model.PlatformID) bool
	Credential(ctx context.Context, platform model.PlatformID) (*model.CredentialRecord, error)
	Status(ctx context.Context, platform model.PlatformID) (model.PlatformStatus, error)
	RegisterProvider(adapter repository.IPlatformAdapter)
}

// DefaultRefreshTimeout bounds one refresh, retries included.
const DefaultRefreshTimeout = time.Minute

// CredentialManager owns the OAuth lifecycle and is the only writer of the
// credential store. Refreshes for one platform are collapsed into a single
// in-flight call bounded by the refresh timeout; writes for one platform are
// serialized and persisted with compare-and-swap on the record version.
type CredentialManager struct {
	store          repository.ICredentialStore
	margin         time.Duration
	refreshTimeout time.Duration
	retry          *retry.Policy
	now            func() time.Time

	providersMu sync.RWMutex
	providers   map[model.PlatformID]repository.IPlatformAdapter

	flights singleflight.Group
	locksMu sync.Mutex
	locks   map[model.PlatformID]*semaphore.Weighted
}

func NewCredentialManager(store repository.ICredentialStore, refreshMargin time.Duration, policy *retry.Policy) *CredentialManager {
	if policy == nil {
		policy = retry.NewPolicy(retry.DefaultConfig())
	}
	return &CredentialManager{
		store:          store,
		margin:         refreshMargin,
		refreshTimeout: DefaultRefreshTimeout,
		retry:          policy,
		now:            time.Now,
		providers:      make(map[model.PlatformID]repository.IPlatformAdapter),
		locks:          make(map[model.PlatformID]*semaphore.Weighted),
	}
}

// WithRefreshTimeout bounds each refresh. Non-positive values keep the default.
func (m *CredentialManager) WithRefreshTimeout(d time.Duration) *CredentialManager {
	if d > 0 {
		m.refreshTimeout = d
	}
	return m
}

// WithClock replaces the time source.
func (m *CredentialManager) WithClock(now func() time.Time) *CredentialManager {
	m.now = now
	return m
}

func (m *CredentialManager) RegisterProvider(adapter repository.IPlatformAdapter) {
	m.providersMu.Lock()
	defer m.providersMu.Unlock()
	m.providers[adapter.Descriptor().ID] = adapter
}

func (m *CredentialManager) provider(p model.PlatformID) (repository.IPlatformAdapter, error) {
	m.providersMu.RLock()
	defer m.providersMu.RUnlock()
	a, ok := m.providers[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, p)
	}
	return a, nil
}

// lock takes the per-platform write lock or gives up when ctx ends.
func (m *CredentialManager) lock(ctx context.Context, p model.PlatformID) (func(), error) {
	m.locksMu.Lock()
	l, ok := m.locks[p]
	if !ok {
		l = semaphore.NewWeighted(1)
		m.locks[p] = l
	}
	m.locksMu.Unlock()
	if err := l.Acquire(ctx, 1); err != nil {
		return nil, model.NewTimeoutError(p, fmt.Errorf("wait for credential lock: %w", err))
	}
	return func() { l.Release(1) }, nil
}

func (m *CredentialManager) load(ctx context.Context, p model.PlatformID) (*model.CredentialRecord, error) {
	rec, err := m.store.Get(ctx, p)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		return nil, model.NewAuthError(p, model.AuthReasonMissing, nil)
	}
	if err != nil {
		return nil, model.NewTransientError(p, fmt.Errorf("load credential: %w", err))
	}
	return rec, nil
}

// usableNow decides whether rec can be returned without a refresh. It returns
// an AuthError when the record can never be used again without re-authorization.
func (m *CredentialManager) usableNow(rec *model.CredentialRecord) (bool, error) {
	now := m.now()
	if rec.Invalidated {
		return false, model.NewAuthError(rec.PlatformID, model.AuthReasonInvalidated, errors.New(rec.InvalidReason))
	}
	if rec.AccessToken != "" && !rec.ExpiresWithin(now, m.margin) {
		return true, nil
	}
	if rec.Refreshable() {
		return false, nil
	}
	if rec.AccessToken != "" && !rec.Expired(now) {
		// inside the margin but nothing to refresh with; still valid for now
		return true, nil
	}
	return false, model.NewAuthError(rec.PlatformID, model.AuthReasonExpiredUnrefreshable, nil)
}

// GetValidCredential returns a record usable for an immediate API call,
// refreshing it first when it is expired or about to expire.
func (m *CredentialManager) GetValidCredential(ctx context.Context, p model.PlatformID) (*model.CredentialRecord, error) {
	rec, err := m.load(ctx, p)
	if err != nil {
		return nil, err
	}
	ok, err := m.usableNow(rec)
	if err != nil {
		return nil, err
	}
	if ok {
		return rec.Clone(), nil
	}

	// The flight outlives any single caller but never the refresh timeout.
	ch := m.flights.DoChan(string(p), func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.refresh(rctx, p)
	})
	select {
	case <-ctx.Done():
		return nil, model.NewTimeoutError(p, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.CredentialRecord).Clone(), nil
	}
}

func (m *CredentialManager) refresh(ctx context.Context, p model.PlatformID) (*model.CredentialRecord, error) {
	unlock, err := m.lock(ctx, p)
	if err != nil {
		return nil, err
	}
	defer unlock()

	lg := logger.GetLogger().WithField("platform", p)

	// Re-read under the lock: another writer may have refreshed already.
	rec, err := m.load(ctx, p)
	if err != nil {
		return nil, err
	}
	ok, err := m.usableNow(rec)
	if err != nil {
		return nil, err
	}
	if ok {
		return rec, nil
	}

	adapter, err := m.provider(p)
	if err != nil {
		return nil, err
	}

	var fresh *model.CredentialRecord
	attempts, err := m.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		var rErr error
		fresh, rErr = adapter.RefreshCredential(ctx, rec.Clone())
		return rErr
	})
	if err != nil {
		if ctx.Err() != nil && model.KindOf(err) != model.ErrorKindAuth {
			err = model.NewTimeoutError(p, fmt.Errorf("refresh exceeded %s: %w", m.refreshTimeout, err))
		}
		lg = lg.WithField("attempts", attempts).WithField("error_kind", model.KindOf(err))
		if model.KindOf(err) == model.ErrorKindAuth {
			lg.WithField("error", err).Warn("Credential refresh rejected, invalidating")
			if invErr := m.invalidateLocked(ctx, p, "refresh rejected: "+err.Error()); invErr != nil {
				lg.WithField("error", invErr).Error("Failed to invalidate credential")
			}
			return nil, model.NewAuthError(p, model.AuthReasonRevoked, err)
		}
		lg.WithField("error", err).Error("Credential refresh failed")
		return nil, err
	}

	if fresh == nil {
		return nil, model.NewRejectedError(p, "refresh returned no credential", nil)
	}
	next := mergeRefreshed(rec, fresh, m.now())
	if err := m.store.CompareAndSwap(ctx, next, rec.Version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			// Someone else wrote in between (another process or an authorize); use theirs.
			latest, lErr := m.load(ctx, p)
			if lErr != nil {
				return nil, lErr
			}
			ok, uErr := m.usableNow(latest)
			if uErr != nil {
				return nil, uErr
			}
			if ok {
				return latest, nil
			}
		}
		return nil, model.NewTransientError(p, fmt.Errorf("persist refreshed credential: %w", err))
	}
	lg.WithField("attempts", attempts).WithField("version", next.Version).Info("Credential refreshed")
	return next, nil
}

// mergeRefreshed keeps identity fields from the stored record and the old refresh
// token when the platform does not rotate it.
func mergeRefreshed(old, fresh *model.CredentialRecord, now time.Time) *model.CredentialRecord {
	next := old.Clone()
	next.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		next.RefreshToken = fresh.RefreshToken
	}
	next.ExpiresAt = fresh.ExpiresAt
	if fresh.Scopes != "" {
		next.Scopes = fresh.Scopes
	}
	if fresh.TokenType != "" {
		next.TokenType = fresh.TokenType
	}
	for k, v := range fresh.Identifiers {
		if next.Identifiers == nil {
			next.Identifiers = make(map[string]string)
		}
		next.Identifiers[k] = v
	}
	next.UpdatedAt = now
	return next
}

func (m *CredentialManager) AuthCodeURL(p model.PlatformID, state string) (string, error) {
	adapter, err := m.provider(p)
	if err != nil {
		return "", err
	}
	return adapter.AuthCodeURL(state), nil
}

// Authorize runs the interactive flow and stores the resulting record,
// replacing any previous record for the platform.
func (m *CredentialManager) Authorize(ctx context.Context, p model.PlatformID, flow repository.IAuthorizationFlow) (*model.CredentialRecord, error) {
	adapter, err := m.provider(p)
	if err != nil {
		return nil, err
	}
	state := NewState()
	code, err := flow.Run(ctx, p, adapter.AuthCodeURL(state), state)
	if err != nil {
		return nil, model.NewAuthError(p, model.AuthReasonMissing, fmt.Errorf("authorization flow: %w", err))
	}
	return m.CompleteAuthorization(ctx, p, code)
}

func (m *CredentialManager) CompleteAuthorization(ctx context.Context, p model.PlatformID, code string) (*model.CredentialRecord, error) {
	adapter, err := m.provider(p)
	if err != nil {
		return nil, err
	}
	rec, err := adapter.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	now := m.now()
	rec.PlatformID = p
	rec.Invalidated = false
	rec.InvalidReason = ""
	rec.CreatedAt = now
	rec.UpdatedAt = now

	unlock, err := m.lock(ctx, p)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err := m.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}
	logger.GetLogger().WithField("platform", p).WithField("version", rec.Version).Info("Platform authorized")
	return rec.Clone(), nil
}

// Invalidate flags the stored record unusable. The record is kept.
func (m *CredentialManager) Invalidate(ctx context.Context, p model.PlatformID, reason string) error {
	unlock, err := m.lock(ctx, p)
	if err != nil {
		return err
	}
	defer unlock()
	return m.invalidateLocked(ctx, p, reason)
}

func (m *CredentialManager) invalidateLocked(ctx context.Context, p model.PlatformID, reason string) error {
	for i := 0; i < 3; i++ {
		rec, err := m.store.Get(ctx, p)
		if err != nil {
			return err
		}
		expected := rec.Version
		rec.Invalidated = true
		rec.InvalidReason = reason
		rec.UpdatedAt = m.now()
		err = m.store.CompareAndSwap(ctx, rec, expected)
		if err == nil {
			logger.GetLogger().WithField("platform", p).WithField("reason", reason).Warn("Credential invalidated")
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
	}
	return repository.ErrVersionConflict
}

func (m *CredentialManager) Credential(ctx context.Context, p model.PlatformID) (*model.CredentialRecord, error) {
	return m.store.Get(ctx, p)
}

func (m *CredentialManager) IsAuthenticated(ctx context.Context, p model.PlatformID) bool {
	adapter, err := m.provider(p)
	if err != nil {
		return false
	}
	rec, err := m.store.Get(ctx, p)
	if err != nil || rec.Invalidated || !adapter.IsAuthenticated(rec) {
		return false
	}
	return rec.Usable(m.now()) || rec.Refreshable()
}

// Status summarizes the stored record for platform without refreshing it.
func (m *CredentialManager) Status(ctx context.Context, p model.PlatformID) (model.PlatformStatus, error) {
	adapter, err := m.provider(p)
	if err != nil {
		return model.PlatformStatus{}, err
	}
	st := model.PlatformStatus{Descriptor: adapter.Descriptor()}
	rec, err := m.store.Get(ctx, p)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.Invalidated = rec.Invalidated
	st.InvalidReason = rec.InvalidReason
	st.Refreshable = rec.Refreshable()
	if rec.ExpiresAt != nil {
		exp := rec.ExpiresAt.UTC().Format(time.RFC3339)
		st.ExpiresAt = &exp
	}
	st.Authenticated = !rec.Invalidated && adapter.IsAuthenticated(rec) && (rec.Usable(m.now()) || rec.Refreshable())
	return st, nil
}

// NewState returns a random OAuth state value.
func NewState() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
