// Package embedding turns media bytes and text into vectors through an
// external embedding provider, bounding how many requests reach it at once.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/hrygo/picsave/ai/metrics"
)

// Gateway is the only path to the embedding provider.
type Gateway struct {
	transport  Transport
	serializer *Serializer
	metrics    *metrics.PrometheusExporter
	dim        int
	maxSide    int
}

// Config configures a Gateway.
type Config struct {
	// Dimension every returned vector must have; 0 skips the check.
	Dimension int
	// Concurrency is the number of submissions allowed in flight; 1 by default.
	Concurrency int
	// MaxImageSide downscales larger images before upload; 0 disables.
	MaxImageSide int
	Metrics      *metrics.PrometheusExporter
}

// NewGateway creates a gateway over transport.
func NewGateway(transport Transport, cfg Config) *Gateway {
	return &Gateway{
		transport:  transport,
		serializer: NewSerializer(cfg.Concurrency),
		metrics:    cfg.Metrics,
		dim:        cfg.Dimension,
		maxSide:    cfg.MaxImageSide,
	}
}

// EmbedMedia returns one vector per blob, in input order.
func (g *Gateway) EmbedMedia(ctx context.Context, blobs [][]byte) ([][]float32, error) {
	if len(blobs) == 0 {
		return nil, nil
	}
	prepared := make([][]byte, len(blobs))
	for i, blob := range blobs {
		prepared[i] = Downscale(blob, g.maxSide)
	}
	return g.embed(ctx, "image", len(blobs), func() (Pending, error) {
		return g.transport.SubmitImages(ctx, prepared)
	})
}

// EmbedText returns one vector per text, in input order.
func (g *Gateway) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return g.embed(ctx, "text", len(texts), func() (Pending, error) {
		return g.transport.SubmitTexts(ctx, texts)
	})
}

// embed holds a serializer slot only while the request is submitted; the
// response body is decoded after the slot is released.
func (g *Gateway) embed(ctx context.Context, kind string, want int, submit func() (Pending, error)) ([][]float32, error) {
	start := time.Now()
	var pending Pending
	wait, err := g.serializer.Do(ctx, func() error {
		var err error
		pending, err = submit()
		return err
	})
	g.metrics.RecordEmbeddingWait(wait)
	if err != nil {
		g.metrics.RecordEmbeddingRequest(kind, time.Since(start), false)
		return nil, err
	}

	vectors, err := pending.Decode()
	if err == nil {
		err = g.check(vectors, want)
	}
	g.metrics.RecordEmbeddingRequest(kind, time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func (g *Gateway) check(vectors [][]float32, want int) error {
	if len(vectors) == 0 {
		return ErrEmptyResult
	}
	if len(vectors) != want {
		return &ProtocolError{Reason: fmt.Sprintf("got %d vectors for %d inputs", len(vectors), want)}
	}
	for i, v := range vectors {
		if g.dim > 0 && len(v) != g.dim {
			return &ProtocolError{Reason: fmt.Sprintf("vector %d has dimension %d, want %d", i, len(v), g.dim)}
		}
	}
	return nil
}
