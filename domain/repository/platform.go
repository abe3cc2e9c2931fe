package repository

import (
	"context"

	"multipost/domain/model"
)

// IPlatformAdapter translates the uniform publish contract into one platform's API.
//
// AuthCodeURL and Exchange together form the interactive authentication step;
// IsAuthenticated is a local check of a stored record. UploadVideo must validate
// metadata against Descriptor before touching the network and must classify every
// failure as a *model.PublishError.
type IPlatformAdapter interface {
	Descriptor() model.PlatformDescriptor
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*model.CredentialRecord, error)
	RefreshCredential(ctx context.Context, rec *model.CredentialRecord) (*model.CredentialRecord, error)
	IsAuthenticated(rec *model.CredentialRecord) bool
	UploadVideo(ctx context.Context, cred *model.CredentialRecord, video model.Video, meta model.Metadata) (*model.PublishOutcome, error)
	UploadStatus(ctx context.Context, cred *model.CredentialRecord, remoteID string) (*model.UploadStatus, error)
}

// IAuthorizationFlow runs the user-facing half of OAuth: show authURL, wait for the
// redirect and return the authorization code.
type IAuthorizationFlow interface {
	Run(ctx context.Context, platform model.PlatformID, authURL, state string) (string, error)
}

// IContentGenerator suggests platform-specific metadata. It is best-effort.
type IContentGenerator interface {
	Generate(ctx context.Context, platform model.PlatformID, video model.VideoContext, hints model.Metadata) (model.Metadata, error)
}
