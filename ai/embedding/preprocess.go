package embedding

import (
	"bytes"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
	// Stickers arrive as WebP.
	_ "golang.org/x/image/webp"
)

// Downscale shrinks an image so its longer side is at most maxSide pixels.
// Images already small enough, maxSide <= 0, and input that cannot be
// decoded are returned unchanged; the provider then sees the original bytes.
// Formats that may carry transparency are re-encoded as PNG, others as JPEG.
func Downscale(data []byte, maxSide int) []byte {
	if maxSide <= 0 {
		return data
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		slog.Debug("image not decodable, sending as is", "error", err)
		return data
	}
	if cfg.Width <= maxSide && cfg.Height <= maxSide {
		return data
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		slog.Debug("image not decodable, sending as is", "format", format, "error", err)
		return data
	}
	resized := imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)

	outFormat := imaging.JPEG
	if format == "png" || format == "webp" || format == "gif" {
		outFormat = imaging.PNG
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, outFormat, imaging.JPEGQuality(90)); err != nil {
		slog.Warn("failed to encode downscaled image, sending original", "format", format, "error", err)
		return data
	}
	return buf.Bytes()
}
