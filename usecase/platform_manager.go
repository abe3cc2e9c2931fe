package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"multipost/domain/model"
	"multipost/domain/repository"
	"multipost/infrastructure/logger"
	"multipost/infrastructure/retry"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var ErrRequestExists = errors.New("publish request already has outcomes")

type IPlatformManager interface {
	Register(adapter repository.IPlatformAdapter)
	Descriptors() []model.PlatformDescriptor
	Publish(ctx context.Context, req *model.PublishRequest) (*model.PublishReport, error)
	Status(ctx context.Context) ([]model.PlatformStatus, error)
	UploadStatus(ctx context.Context, platform model.PlatformID, remoteID string) (*model.UploadStatus, error)
}

type PlatformManagerOptions struct {
	// PlatformTimeout bounds one platform's whole pipeline. Zero disables it.
	PlatformTimeout time.Duration
	// GeneratorTimeout bounds a single content generator call.
	GeneratorTimeout time.Duration
	Retry            *retry.Policy
}

// PlatformManager fans a publish request out to one independent pipeline per
// target platform and collects exactly one outcome per platform.
type PlatformManager struct {
	creds     ICredentialManager
	tracker   IResultTracker
	generator repository.IContentGenerator
	notifiers []repository.IPublishNotifier
	opts      PlatformManagerOptions
	now       func() time.Time

	mu       sync.RWMutex
	adapters map[model.PlatformID]repository.IPlatformAdapter

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

func NewPlatformManager(creds ICredentialManager, tracker IResultTracker, generator repository.IContentGenerator, opts PlatformManagerOptions, notifiers ...repository.IPublishNotifier) *PlatformManager {
	if opts.Retry == nil {
		opts.Retry = retry.NewPolicy(retry.DefaultConfig())
	}
	if opts.GeneratorTimeout <= 0 {
		opts.GeneratorTimeout = 30 * time.Second
	}
	return &PlatformManager{
		creds:     creds,
		tracker:   tracker,
		generator: generator,
		notifiers: notifiers,
		opts:      opts,
		now:       time.Now,
		adapters:  make(map[model.PlatformID]repository.IPlatformAdapter),
		inflight:  make(map[string]struct{}),
	}
}

func (m *PlatformManager) WithClock(now func() time.Time) *PlatformManager {
	m.now = now
	return m
}

// Register makes adapter available for publishing and authorization.
func (m *PlatformManager) Register(adapter repository.IPlatformAdapter) {
	m.mu.Lock()
	m.adapters[adapter.Descriptor().ID] = adapter
	m.mu.Unlock()
	m.creds.RegisterProvider(adapter)
}

func (m *PlatformManager) adapter(p model.PlatformID) (repository.IPlatformAdapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.adapters[p]
	return a, ok
}

func (m *PlatformManager) Descriptors() []model.PlatformDescriptor {
	m.mu.RLock()
	out := make([]model.PlatformDescriptor, 0, len(m.adapters))
	for _, a := range m.adapters {
		out = append(out, a.Descriptor())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *PlatformManager) Status(ctx context.Context) ([]model.PlatformStatus, error) {
	descs := m.Descriptors()
	out := make([]model.PlatformStatus, 0, len(descs))
	for _, d := range descs {
		st, err := m.creds.Status(ctx, d.ID)
		if err != nil {
			return nil, fmt.Errorf("status %s: %w", d.ID, err)
		}
		out = append(out, st)
	}
	return out, nil
}

func (m *PlatformManager) UploadStatus(ctx context.Context, p model.PlatformID, remoteID string) (*model.UploadStatus, error) {
	a, ok := m.adapter(p)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, p)
	}
	if strings.TrimSpace(remoteID) == "" {
		return nil, model.NewValidationError(p, "remote id is required")
	}
	cred, err := m.creds.GetValidCredential(ctx, p)
	if err != nil {
		return nil, err
	}
	return a.UploadStatus(ctx, cred, remoteID)
}

// ValidatePublishRequest checks the parts of a request that make it unusable
// as a whole and returns its target platforms with duplicates removed.
func ValidatePublishRequest(req *model.PublishRequest) ([]model.PlatformID, error) {
	if req == nil || strings.TrimSpace(req.Video.Path) == "" {
		return nil, model.NewValidationError("", "video path is required")
	}
	platforms := dedupePlatforms(req.Platforms)
	if len(platforms) == 0 {
		return nil, model.NewValidationError("", "at least one platform is required")
	}
	return platforms, nil
}

// Publish runs every targeted platform concurrently and returns once each has
// reached a terminal state. The returned error covers only malformed requests;
// per-platform failures are reported as outcomes. in is not modified; the
// request ID used is in the report.
func (m *PlatformManager) Publish(ctx context.Context, in *model.PublishRequest) (*model.PublishReport, error) {
	platforms, err := ValidatePublishRequest(in)
	if err != nil {
		return nil, err
	}
	req := in.Clone()
	req.Platforms = platforms
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	release, err := m.reserve(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	defer release()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = m.now()
	}

	lg := logger.GetLogger().WithField("request_id", req.RequestID)
	lg.WithField("platforms", platforms).WithField("video", req.Video.Path).Info("Publish request dispatched")

	outcomes := make([]model.PublishOutcome, len(platforms))
	var g errgroup.Group
	for i, p := range platforms {
		g.Go(func() error {
			outcomes[i] = *m.run(ctx, req, p)
			return nil
		})
	}
	_ = g.Wait()

	report := &model.PublishReport{RequestID: req.RequestID, Outcomes: outcomes}
	report.Sort()
	lg.WithField("summary", report.Summary()).
		WithField("succeeded", report.Succeeded()).
		WithField("failed", report.Failed()).
		WithField("skipped", report.Skipped()).
		Info("Publish request completed")
	return report, nil
}

// reserve claims requestID for this process until release is called. A request
// ID that is in flight or already has recorded outcomes is refused.
func (m *PlatformManager) reserve(ctx context.Context, requestID string) (release func(), err error) {
	m.inflightMu.Lock()
	if _, busy := m.inflight[requestID]; busy {
		m.inflightMu.Unlock()
		return nil, fmt.Errorf("%w: %s is in progress", ErrRequestExists, requestID)
	}
	m.inflight[requestID] = struct{}{}
	m.inflightMu.Unlock()

	release = func() {
		m.inflightMu.Lock()
		delete(m.inflight, requestID)
		m.inflightMu.Unlock()
	}
	prior, err := m.tracker.HistoryByRequest(ctx, requestID)
	if err != nil {
		logger.GetLogger().WithField("request_id", requestID).WithField("error", err).Warn("Could not check request history")
	} else if len(prior) > 0 {
		release()
		return nil, fmt.Errorf("%w: %s", ErrRequestExists, requestID)
	}
	return release, nil
}

func dedupePlatforms(in []model.PlatformID) []model.PlatformID {
	seen := make(map[model.PlatformID]struct{}, len(in))
	out := make([]model.PlatformID, 0, len(in))
	for _, p := range in {
		p = model.ParsePlatformID(string(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// pipeline tracks one platform's progress. Once a terminal state is emitted
// later transitions from an abandoned (timed out) pipeline are dropped.
type pipeline struct {
	m         *PlatformManager
	requestID string
	platform  model.PlatformID
	attempts  atomic.Int32

	mu       sync.Mutex
	terminal bool
}

func (pl *pipeline) transition(ctx context.Context, s model.PipelineState) bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.terminal {
		return false
	}
	if s.Terminal() {
		pl.terminal = true
	}
	change := model.StateChange{RequestID: pl.requestID, PlatformID: pl.platform, State: s, At: pl.m.now()}
	for _, n := range pl.m.notifiers {
		n.StateChanged(ctx, change)
	}
	return true
}

// run drives one platform to a terminal outcome, records it and notifies.
func (m *PlatformManager) run(ctx context.Context, req *model.PublishRequest, p model.PlatformID) *model.PublishOutcome {
	pl := &pipeline{m: m, requestID: req.RequestID, platform: p}
	pl.transition(ctx, model.StatePending)

	var outcome *model.PublishOutcome
	if a, ok := m.adapter(p); !ok {
		outcome = m.skipped(req, p, model.NewValidationError(p, "platform is not registered"))
	} else {
		outcome = m.runWithTimeout(ctx, req, a, pl)
	}

	final := model.StateFailed
	if outcome.Succeeded() {
		final = model.StateSucceeded
	}
	persistCtx := context.WithoutCancel(ctx)
	pl.transition(persistCtx, final)

	lg := logger.GetLogger().WithField("request_id", req.RequestID).WithField("platform", p)
	if err := m.tracker.Record(persistCtx, outcome); err != nil {
		lg.WithField("error", err).Error("Failed to record outcome")
		outcome.Warnings = append(outcome.Warnings, "outcome not recorded: "+err.Error())
	}
	for _, n := range m.notifiers {
		n.OutcomeRecorded(persistCtx, *outcome)
	}
	entry := lg.WithField("status", outcome.Status).WithField("attempts", outcome.Attempts)
	if outcome.ErrorKind != "" {
		entry.WithField("error_kind", outcome.ErrorKind).WithField("error", outcome.ErrorMessage).Warn("Platform publish finished")
	} else {
		entry.WithField("remote_post_id", outcome.RemotePostID).Info("Platform publish finished")
	}
	return outcome
}

func (m *PlatformManager) runWithTimeout(ctx context.Context, req *model.PublishRequest, a repository.IPlatformAdapter, pl *pipeline) *model.PublishOutcome {
	if m.opts.PlatformTimeout <= 0 {
		return m.execute(ctx, req, a, pl)
	}
	pctx, cancel := context.WithTimeout(ctx, m.opts.PlatformTimeout)
	defer cancel()

	done := make(chan *model.PublishOutcome, 1)
	go func() { done <- m.execute(pctx, req, a, pl) }()

	select {
	case o := <-done:
		return o
	case <-pctx.Done():
		// An adapter ignoring its context keeps running; its result lands in the
		// buffered channel and is discarded.
		return m.failed(req, pl.platform, int(pl.attempts.Load()), nil,
			model.NewTimeoutError(pl.platform, fmt.Errorf("pipeline exceeded %s: %w", m.opts.PlatformTimeout, pctx.Err())))
	}
}

// execute walks METADATA_RESOLVING -> CREDENTIAL_CHECK -> UPLOADING.
func (m *PlatformManager) execute(ctx context.Context, req *model.PublishRequest, a repository.IPlatformAdapter, pl *pipeline) *model.PublishOutcome {
	p := pl.platform
	desc := a.Descriptor()

	pl.transition(ctx, model.StateMetadataResolving)
	meta, warnings := m.resolveMetadata(ctx, req, p)
	meta, err := desc.Validate(meta)
	if err != nil {
		return m.failed(req, p, 0, warnings, err)
	}

	pl.transition(ctx, model.StateCredentialCheck)
	cred, err := m.creds.GetValidCredential(ctx, p)
	if err != nil {
		// A revoked refresh was already invalidated by the credential manager.
		if model.AuthReason(err) != model.AuthReasonRevoked {
			m.invalidateOnAuth(ctx, p, err)
		}
		return m.failed(req, p, 0, warnings, err)
	}

	pl.transition(ctx, model.StateUploading)
	var result *model.PublishOutcome
	attempts, err := m.opts.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		pl.attempts.Store(int32(attempt))
		var uErr error
		result, uErr = a.UploadVideo(ctx, cred, req.Video, meta)
		if uErr == nil && result == nil {
			uErr = model.NewRejectedError(p, "upload returned no outcome", nil)
		}
		return uErr
	})
	if err != nil {
		if ctx.Err() != nil && model.KindOf(err) != model.ErrorKindAuth {
			err = model.NewTimeoutError(p, err)
		}
		m.invalidateOnAuth(ctx, p, err)
		return m.failed(req, p, attempts, warnings, err)
	}

	out := *result
	out.RequestID = req.RequestID
	out.PlatformID = p
	out.Status = model.OutcomeSuccess
	out.ErrorKind = ""
	out.ErrorMessage = ""
	out.Attempts = attempts
	out.Warnings = append(warnings, result.Warnings...)
	out.CompletedAt = m.now()
	return &out
}

// resolveMetadata returns the metadata to publish with and any degradation warnings.
// The generator is consulted only when the user left fields empty, and its failure
// never fails the pipeline.
func (m *PlatformManager) resolveMetadata(ctx context.Context, req *model.PublishRequest, p model.PlatformID) (model.Metadata, []string) {
	user := req.MetadataFor(p)
	var warnings []string
	if !user.Complete() && m.generator != nil {
		gctx, cancel := context.WithTimeout(ctx, m.opts.GeneratorTimeout)
		vc := model.VideoContext{FileName: req.Video.Name(), Hints: user.Extra["hints"]}
		generated, err := m.generator.Generate(gctx, p, vc, user)
		cancel()
		if err != nil {
			logger.GetLogger().WithField("platform", p).WithField("error", err).Warn("Content generation failed, using fallback metadata")
			warnings = append(warnings, "content generation failed: "+err.Error())
		} else {
			user = user.Merge(generated)
		}
	}
	return user.Merge(model.Metadata{Title: req.Video.Name()}), warnings
}

// invalidateOnAuth marks the credential unusable after an AuthError so later
// requests fail fast. Missing and already invalidated records are left alone.
func (m *PlatformManager) invalidateOnAuth(ctx context.Context, p model.PlatformID, err error) {
	if model.KindOf(err) != model.ErrorKindAuth {
		return
	}
	switch model.AuthReason(err) {
	case model.AuthReasonMissing, model.AuthReasonInvalidated:
		return
	}
	if invErr := m.creds.Invalidate(context.WithoutCancel(ctx), p, err.Error()); invErr != nil {
		logger.GetLogger().WithField("platform", p).WithField("error", invErr).Error("Failed to invalidate credential")
	}
}

func (m *PlatformManager) failed(req *model.PublishRequest, p model.PlatformID, attempts int, warnings []string, err error) *model.PublishOutcome {
	return &model.PublishOutcome{
		RequestID:    req.RequestID,
		PlatformID:   p,
		Status:       model.OutcomeFailed,
		ErrorKind:    model.KindOf(err),
		ErrorMessage: err.Error(),
		Warnings:     warnings,
		Attempts:     attempts,
		CompletedAt:  m.now(),
	}
}

func (m *PlatformManager) skipped(req *model.PublishRequest, p model.PlatformID, err error) *model.PublishOutcome {
	o := m.failed(req, p, 0, nil, err)
	o.Status = model.OutcomeSkipped
	return o
}
