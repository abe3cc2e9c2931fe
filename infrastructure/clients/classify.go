// Package clients holds helpers shared by the platform adapters.
package clients

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"multipost/domain/model"

	"golang.org/x/oauth2"
)

// ClassifyStatus maps an HTTP status from a platform API to an error kind.
func ClassifyStatus(p model.PlatformID, status int, detail string) error {
	err := fmt.Errorf("http %d: %s", status, detail)
	switch {
	case status == http.StatusUnauthorized:
		return model.NewAuthError(p, model.AuthReasonRevoked, err)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return model.NewTransientError(p, err)
	default:
		return model.NewRejectedError(p, detail, err)
	}
}

// ClassifyTransport classifies errors raised before a response was read.
// Context expiry is a timeout; network failures are transient.
func ClassifyTransport(p model.PlatformID, err error) error {
	if err == nil {
		return nil
	}
	var pe *model.PublishError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.NewTimeoutError(p, err)
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return model.NewTransientError(p, err)
	}
	return model.NewRejectedError(p, "request failed", err)
}

// ClassifyTokenError classifies a failure from an OAuth token endpoint. An
// invalid_grant or a 400/401 means the grant is gone and needs re-authorization.
func ClassifyTokenError(p model.PlatformID, err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return ClassifyTransport(p, err)
	}
	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	switch {
	case re.ErrorCode == "invalid_grant", re.ErrorCode == "invalid_client", status == http.StatusBadRequest, status == http.StatusUnauthorized:
		return model.NewAuthError(p, model.AuthReasonRevoked, err)
	case status == http.StatusTooManyRequests, status >= 500:
		return model.NewTransientError(p, err)
	default:
		return model.NewRejectedError(p, "token endpoint rejected the request", err)
	}
}

// OpenVideo opens the local file; a missing file is a validation failure.
func OpenVideo(p model.PlatformID, v model.Video) (*os.File, os.FileInfo, error) {
	f, err := os.Open(v.Path)
	if err != nil {
		return nil, nil, model.NewValidationError(p, "cannot open video: "+err.Error())
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, model.NewValidationError(p, "cannot stat video: "+err.Error())
	}
	if info.IsDir() || info.Size() == 0 {
		_ = f.Close()
		return nil, nil, model.NewValidationError(p, "video is empty or a directory")
	}
	return f, info, nil
}

// DefaultHTTPTimeout bounds one platform HTTP exchange, request body included.
const DefaultHTTPTimeout = 10 * time.Minute

// NewHTTPClient returns hc when set, otherwise a client bounded by timeout.
func NewHTTPClient(hc *http.Client, timeout time.Duration) *http.Client {
	if hc != nil {
		return hc
	}
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// WithHTTPClient makes oauth2 use hc for token requests.
func WithHTTPClient(ctx context.Context, hc *http.Client) context.Context {
	if hc == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, hc)
}
