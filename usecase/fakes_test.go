package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
	"multipost/domain/model"
	"multipost/infrastructure/retry"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func fastRetry(attempts int) *retry.Policy {
	return retry.NewPolicy(retry.Config{MaxAttempts: attempts}).WithSleeper(noSleep)
}

func descriptor(p model.PlatformID, maxTitle int, truncate bool) model.PlatformDescriptor {
	return model.PlatformDescriptor{
		ID:          p,
		DisplayName: string(p),
		Capabilities: model.Capabilities{
			SupportsVideo:    true,
			MaxTitleLength:   maxTitle,
			TruncateTitle:    truncate,
			SupportedFormats: []string{".mp4"},
		},
	}
}

// fakeAdapter counts every call that would reach the network.
type fakeAdapter struct {
	desc model.PlatformDescriptor

	refreshFn func(ctx context.Context, rec *model.CredentialRecord) (*model.CredentialRecord, error)
	uploadFn  func(ctx context.Context, attempt int, meta model.Metadata) (*model.PublishOutcome, error)
	exchange  func(ctx context.Context, code string) (*model.CredentialRecord, error)

	refreshCalls atomic.Int32
	uploadCalls  atomic.Int32

	mu       sync.Mutex
	lastMeta model.Metadata
}

func newFakeAdapter(p model.PlatformID) *fakeAdapter {
	return &fakeAdapter{desc: descriptor(p, 100, false)}
}

func (f *fakeAdapter) Descriptor() model.PlatformDescriptor { return f.desc }

func (f *fakeAdapter) AuthCodeURL(state string) string {
	return fmt.Sprintf("https://auth.example/%s?state=%s", f.desc.ID, state)
}

func (f *fakeAdapter) Exchange(ctx context.Context, code string) (*model.CredentialRecord, error) {
	if f.exchange != nil {
		return f.exchange(ctx, code)
	}
	exp := testNow.Add(time.Hour)
	return &model.CredentialRecord{AccessToken: "access-" + code, RefreshToken: "refresh-" + code, ExpiresAt: &exp}, nil
}

func (f *fakeAdapter) RefreshCredential(ctx context.Context, rec *model.CredentialRecord) (*model.CredentialRecord, error) {
	f.refreshCalls.Add(1)
	if f.refreshFn != nil {
		return f.refreshFn(ctx, rec)
	}
	exp := testNow.Add(time.Hour)
	return &model.CredentialRecord{AccessToken: "refreshed", ExpiresAt: &exp}, nil
}

func (f *fakeAdapter) IsAuthenticated(rec *model.CredentialRecord) bool {
	return rec != nil && rec.AccessToken != ""
}

func (f *fakeAdapter) UploadVideo(ctx context.Context, cred *model.CredentialRecord, video model.Video, meta model.Metadata) (*model.PublishOutcome, error) {
	n := f.uploadCalls.Add(1)
	f.mu.Lock()
	f.lastMeta = meta
	f.mu.Unlock()
	if f.uploadFn != nil {
		return f.uploadFn(ctx, int(n), meta)
	}
	id := fmt.Sprintf("%s-post", f.desc.ID)
	return &model.PublishOutcome{RemotePostID: id, RemoteURL: "https://example/" + id}, nil
}

func (f *fakeAdapter) UploadStatus(ctx context.Context, cred *model.CredentialRecord, remoteID string) (*model.UploadStatus, error) {
	return &model.UploadStatus{PlatformID: f.desc.ID, RemoteID: remoteID, State: "processed"}, nil
}

func (f *fakeAdapter) metadata() model.Metadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastMeta
}

type MockContentGenerator struct {
	mock.Mock
}

func (m *MockContentGenerator) Generate(ctx context.Context, platform model.PlatformID, video model.VideoContext, hints model.Metadata) (model.Metadata, error) {
	args := m.Called(ctx, platform, video, hints)
	return args.Get(0).(model.Metadata), args.Error(1)
}

type MockAuthorizationFlow struct {
	mock.Mock
}

func (m *MockAuthorizationFlow) Run(ctx context.Context, platform model.PlatformID, authURL, state string) (string, error) {
	args := m.Called(ctx, platform, authURL, state)
	return args.String(0), args.Error(1)
}

// recordingNotifier keeps every event in arrival order.
type recordingNotifier struct {
	mu       sync.Mutex
	changes  []model.StateChange
	outcomes []model.PublishOutcome
}

func (n *recordingNotifier) StateChanged(ctx context.Context, change model.StateChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
}

func (n *recordingNotifier) OutcomeRecorded(ctx context.Context, outcome model.PublishOutcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, outcome)
}

func (n *recordingNotifier) states(p model.PlatformID) []model.PipelineState {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []model.PipelineState
	for _, c := range n.changes {
		if c.PlatformID == p {
			out = append(out, c.State)
		}
	}
	return out
}

func ptrTime(t time.Time) *time.Time { return &t }
