package http_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"multipost/domain/model"
	"multipost/domain/repository"
)

type MockPlatformManager struct{ mock.Mock }

func (m *MockPlatformManager) Register(adapter repository.IPlatformAdapter) { m.Called(adapter) }

func (m *MockPlatformManager) Descriptors() []model.PlatformDescriptor {
	args := m.Called()
	return args.Get(0).([]model.PlatformDescriptor)
}

func (m *MockPlatformManager) Publish(ctx context.Context, req *model.PublishRequest) (*model.PublishReport, error) {
	args := m.Called(ctx, req)
	report, _ := args.Get(0).(*model.PublishReport)
	return report, args.Error(1)
}

func (m *MockPlatformManager) Status(ctx context.Context) ([]model.PlatformStatus, error) {
	args := m.Called(ctx)
	st, _ := args.Get(0).([]model.PlatformStatus)
	return st, args.Error(1)
}

func (m *MockPlatformManager) UploadStatus(ctx context.Context, p model.PlatformID, remoteID string) (*model.UploadStatus, error) {
	args := m.Called(ctx, p, remoteID)
	st, _ := args.Get(0).(*model.UploadStatus)
	return st, args.Error(1)
}

type MockCredentialManager struct{ mock.Mock }

func (m *MockCredentialManager) GetValidCredential(ctx context.Context, p model.PlatformID) (*model.CredentialRecord, error) {
	args := m.Called(ctx, p)
	rec, _ := args.Get(0).(*model.CredentialRecord)
	return rec, args.Error(1)
}

func (m *MockCredentialManager) AuthCodeURL(p model.PlatformID, state string) (string, error) {
	args := m.Called(p, state)
	return args.String(0), args.Error(1)
}

func (m *MockCredentialManager) Authorize(ctx context.Context, p model.PlatformID, flow repository.IAuthorizationFlow) (*model.CredentialRecord, error) {
	args := m.Called(ctx, p, flow)
	rec, _ := args.Get(0).(*model.CredentialRecord)
	return rec, args.Error(1)
}

func (m *MockCredentialManager) CompleteAuthorization(ctx context.Context, p model.PlatformID, code string) (*model.CredentialRecord, error) {
	args := m.Called(ctx, p, code)
	rec, _ := args.Get(0).(*model.CredentialRecord)
	return rec, args.Error(1)
}

func (m *MockCredentialManager) Invalidate(ctx context.Context, p model.PlatformID, reason string) error {
	return m.Called(ctx, p, reason).Error(0)
}

func (m *MockCredentialManager) IsAuthenticated(ctx context.Context, p model.PlatformID) bool {
	return m.Called(ctx, p).Bool(0)
}

func (m *MockCredentialManager) Credential(ctx context.Context, p model.PlatformID) (*model.CredentialRecord, error) {
	args := m.Called(ctx, p)
	rec, _ := args.Get(0).(*model.CredentialRecord)
	return rec, args.Error(1)
}

func (m *MockCredentialManager) Status(ctx context.Context, p model.PlatformID) (model.PlatformStatus, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(model.PlatformStatus), args.Error(1)
}

func (m *MockCredentialManager) RegisterProvider(adapter repository.IPlatformAdapter) { m.Called(adapter) }

type MockResultTracker struct{ mock.Mock }

func (m *MockResultTracker) Record(ctx context.Context, outcome *model.PublishOutcome) error {
	return m.Called(ctx, outcome).Error(0)
}

func (m *MockResultTracker) HistoryByRequest(ctx context.Context, requestID string) ([]*model.PublishOutcome, error) {
	args := m.Called(ctx, requestID)
	out, _ := args.Get(0).([]*model.PublishOutcome)
	return out, args.Error(1)
}

func (m *MockResultTracker) HistoryByPlatform(ctx context.Context, p model.PlatformID) ([]*model.PublishOutcome, error) {
	args := m.Called(ctx, p)
	out, _ := args.Get(0).([]*model.PublishOutcome)
	return out, args.Error(1)
}
