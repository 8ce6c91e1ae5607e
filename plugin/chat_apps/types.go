// Package chat_apps holds the platform-neutral shapes chat channels convert
// their updates into before handing them to the media service.
package chat_apps

// MessageType classifies an incoming chat message.
type MessageType int

const (
	MessageTypeText MessageType = iota
	MessageTypeCommand
	MessageTypePhoto
	MessageTypeSticker
	MessageTypeVideo
	// MessageTypeUnsupportedSticker is an animated or video sticker.
	MessageTypeUnsupportedSticker
	MessageTypeOther
)

// String returns the string representation of MessageType.
func (m MessageType) String() string {
	switch m {
	case MessageTypeText:
		return "text"
	case MessageTypeCommand:
		return "command"
	case MessageTypePhoto:
		return "photo"
	case MessageTypeSticker:
		return "sticker"
	case MessageTypeVideo:
		return "video"
	case MessageTypeUnsupportedSticker:
		return "unsupported_sticker"
	default:
		return "other"
	}
}

// IsMedia reports whether the message carries media that can be saved.
func (m MessageType) IsMedia() bool {
	return m == MessageTypePhoto || m == MessageTypeSticker || m == MessageTypeVideo
}

// Platform represents a supported chat platform.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
)

// IncomingMedia is the media part of a chat message.
type IncomingMedia struct {
	Type MessageType
	// FileID re-delivers the media on the platform.
	FileID string
	// UniqueID is stable across deliveries of the same media.
	UniqueID string
	// DownloadID names the file to embed. It differs from FileID when only
	// a preview of the media can be embedded.
	DownloadID string
}
