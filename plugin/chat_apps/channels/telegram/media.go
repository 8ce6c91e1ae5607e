package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/picsave/plugin/chat_apps"
	"github.com/hrygo/picsave/plugin/chat_apps/channels"
	"github.com/hrygo/picsave/server/service/media"
	"github.com/hrygo/picsave/store"
)

// ParseMedia classifies msg and extracts its media identifiers.
func ParseMedia(msg *tgbotapi.Message) *chat_apps.IncomingMedia {
	switch {
	case len(msg.Photo) > 0:
		// Sizes are sorted ascending; the last one is the original.
		largest := msg.Photo[len(msg.Photo)-1]
		return &chat_apps.IncomingMedia{
			Type:       chat_apps.MessageTypePhoto,
			FileID:     largest.FileID,
			UniqueID:   largest.FileUniqueID,
			DownloadID: largest.FileID,
		}

	case msg.Sticker != nil:
		in := &chat_apps.IncomingMedia{
			Type:       chat_apps.MessageTypeSticker,
			FileID:     msg.Sticker.FileID,
			UniqueID:   msg.Sticker.FileUniqueID,
			DownloadID: msg.Sticker.FileID,
		}
		if msg.Sticker.IsAnimated {
			in.Type = chat_apps.MessageTypeUnsupportedSticker
		}
		return in

	case msg.Video != nil:
		in := &chat_apps.IncomingMedia{
			Type:     chat_apps.MessageTypeVideo,
			FileID:   msg.Video.FileID,
			UniqueID: msg.Video.FileUniqueID,
		}
		if msg.Video.Thumbnail == nil {
			in.Type = chat_apps.MessageTypeOther
			return in
		}
		in.DownloadID = msg.Video.Thumbnail.FileID
		return in

	case msg.IsCommand():
		return &chat_apps.IncomingMedia{Type: chat_apps.MessageTypeCommand}

	case msg.Text != "":
		return &chat_apps.IncomingMedia{Type: chat_apps.MessageTypeText}

	default:
		return &chat_apps.IncomingMedia{Type: chat_apps.MessageTypeOther}
	}
}

// mediaKind maps a media message type to the stored kind.
func mediaKind(t chat_apps.MessageType) store.MediaKind {
	switch t {
	case chat_apps.MessageTypeSticker:
		return store.MediaKindSticker
	case chat_apps.MessageTypeVideo:
		return store.MediaKindVideo
	default:
		return store.MediaKindPhoto
	}
}

// FetchMedia downloads a saved record's media again. Videos are embedded
// from a preview whose file id is not stored, so they cannot be fetched.
func (c *Client) FetchMedia(ctx context.Context, summary *store.MediaSummary) ([]byte, error) {
	if summary.Kind == store.MediaKindVideo {
		return nil, fmt.Errorf("record %d: %w", summary.ID, media.ErrNotRefetchable)
	}
	return c.fetch(ctx, summary.ContentRef, summary.Kind)
}

// fetch downloads fileID and refuses stickers that are not still images.
// Video stickers are not flagged by the API, so the bytes are sniffed.
func (c *Client) fetch(ctx context.Context, fileID string, kind store.MediaKind) ([]byte, error) {
	data, err := c.Download(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if kind == store.MediaKindSticker && !isRaster(data) {
		return nil, channels.ErrUnsupportedMedia
	}
	return data, nil
}

// Download fetches a file by id through the Bot API file endpoint.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	fileURL, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		slog.Error("telegram: failed to get file info", "file_id", fileID, "error", err)
		return nil, &channels.ChannelError{Code: channels.ErrMediaDownloadFailed.Code, Message: channels.ErrMediaDownloadFailed.Message, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		// The URL embeds the bot token; do not log it.
		slog.Error("telegram: failed to download file", "file_id", fileID, "error", err)
		return nil, &channels.ChannelError{Code: channels.ErrMediaDownloadFailed.Code, Message: channels.ErrMediaDownloadFailed.Message, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("telegram: non-200 status downloading file", "file_id", fileID, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", channels.ErrMediaDownloadFailed, resp.StatusCode)
	}

	const limit = MaxDownloadSizeMB << 20
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > limit {
		return nil, channels.ErrMediaTooLarge
	}

	slog.Debug("telegram: downloaded media", "file_id", fileID, "size", len(data))
	return data, nil
}

// isRaster reports whether data sniffs as a still image.
func isRaster(data []byte) bool {
	mimeType := http.DetectContentType(data)
	return strings.HasPrefix(mimeType, "image/") && mimeType != "image/gif"
}
