// Package channels provides the interface every chat platform integration implements.
package channels

import (
	"context"

	"github.com/hrygo/picsave/plugin/chat_apps"
)

// ChatChannel is a running connection to one chat platform.
type ChatChannel interface {
	// Name returns the platform name.
	Name() chat_apps.Platform

	// Run receives and handles updates until ctx is done.
	Run(ctx context.Context) error
}

// Errors
var (
	ErrMediaDownloadFailed = &ChannelError{Code: "MEDIA_FAILED", Message: "failed to download media"}
	ErrMediaTooLarge       = &ChannelError{Code: "MEDIA_TOO_LARGE", Message: "media exceeds download limit"}
	ErrUnsupportedMedia    = &ChannelError{Code: "UNSUPPORTED_MEDIA", Message: "media is not a raster image"}
)

// ChannelError represents an error in channel operations.
type ChannelError struct {
	Code    string
	Message string
	Err     error
}

func (e *ChannelError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the operation can be retried.
func (e *ChannelError) IsRetryable() bool {
	return e.Code == "MEDIA_FAILED"
}
