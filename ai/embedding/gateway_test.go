package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/picsave/ai/metrics"
)

func vectors(n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
		out[i][0] = float32(i + 1)
	}
	return out
}

func newProvider(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n int
		switch r.URL.Path {
		case "/images":
			if !assert.NoError(t, r.ParseMultipartForm(10<<20)) {
				http.Error(w, "bad form", http.StatusBadRequest)
				return
			}
			n = len(r.MultipartForm.File["files"])
		case "/texts":
			var req textsRequest
			if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
			n = len(req.Texts)
		default:
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(embeddingsResponse{Embeddings: vectors(n, dim)})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGatewayHTTP(t *testing.T) {
	srv := newProvider(t, 4)
	gw := NewGateway(NewHTTPTransport(srv.URL+"/", time.Second), Config{Dimension: 4, Metrics: metrics.NewPrometheusExporter(metrics.DefaultConfig())})
	ctx := context.Background()

	t.Run("media", func(t *testing.T) {
		got, err := gw.EmbedMedia(ctx, [][]byte{[]byte("a"), []byte("b")})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, float32(1), got[0][0])
		assert.Equal(t, float32(2), got[1][0])
	})

	t.Run("text", func(t *testing.T) {
		got, err := gw.EmbedText(ctx, []string{"a cat on a sofa"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Len(t, got[0], 4)
	})

	t.Run("empty input", func(t *testing.T) {
		got, err := gw.EmbedText(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestGatewayErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("non-2xx is a provider error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gpu on fire", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewGateway(NewHTTPTransport(srv.URL, time.Second), Config{}).EmbedText(ctx, []string{"x"})
		var providerErr *ProviderError
		require.ErrorAs(t, err, &providerErr)
		assert.Equal(t, http.StatusServiceUnavailable, providerErr.StatusCode)
		assert.Contains(t, providerErr.Body, "gpu on fire")
	})

	t.Run("unreachable is a provider error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewGateway(NewHTTPTransport(url, time.Second), Config{}).EmbedText(ctx, []string{"x"})
		var providerErr *ProviderError
		require.ErrorAs(t, err, &providerErr)
		assert.Equal(t, 0, providerErr.StatusCode)
	})

	t.Run("malformed body is a protocol error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"embeddings": "nope"`)
		}))
		defer srv.Close()

		_, err := NewGateway(NewHTTPTransport(srv.URL, time.Second), Config{}).EmbedText(ctx, []string{"x"})
		var protocolErr *ProtocolError
		assert.ErrorAs(t, err, &protocolErr)
	})

	t.Run("no vectors is an empty result", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"embeddings": []}`)
		}))
		defer srv.Close()

		_, err := NewGateway(NewHTTPTransport(srv.URL, time.Second), Config{}).EmbedMedia(ctx, [][]byte{[]byte("x")})
		assert.ErrorIs(t, err, ErrEmptyResult)
	})

	t.Run("wrong dimension is a protocol error", func(t *testing.T) {
		srv := newProvider(t, 3)
		_, err := NewGateway(NewHTTPTransport(srv.URL, time.Second), Config{Dimension: 4}).EmbedText(ctx, []string{"x"})
		var protocolErr *ProtocolError
		assert.ErrorAs(t, err, &protocolErr)
	})

	t.Run("count mismatch is a protocol error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(embeddingsResponse{Embeddings: vectors(1, 2)})
		}))
		defer srv.Close()

		_, err := NewGateway(NewHTTPTransport(srv.URL, time.Second), Config{}).EmbedText(ctx, []string{"a", "b"})
		var protocolErr *ProtocolError
		assert.ErrorAs(t, err, &protocolErr)
	})
}

// countingTransport tracks how many submissions overlap.
type countingTransport struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (c *countingTransport) enter() {
	n := c.inFlight.Add(1)
	for {
		m := c.maxSeen.Load()
		if n <= m || c.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	c.calls.Add(1)
	time.Sleep(2 * time.Millisecond)
	c.inFlight.Add(-1)
}

func (c *countingTransport) SubmitImages(_ context.Context, blobs [][]byte) (Pending, error) {
	c.enter()
	return staticPending(vectors(len(blobs), 2)), nil
}

func (c *countingTransport) SubmitTexts(_ context.Context, texts []string) (Pending, error) {
	c.enter()
	return staticPending(vectors(len(texts), 2)), nil
}

type staticPending [][]float32

func (p staticPending) Decode() ([][]float32, error) { return p, nil }

func TestGatewaySingleFlight(t *testing.T) {
	transport := &countingTransport{}
	gw := NewGateway(transport, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = gw.EmbedMedia(context.Background(), [][]byte{{byte(i)}})
			} else {
				_, err = gw.EmbedText(context.Background(), []string{"q"})
			}
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(20), transport.calls.Load())
	assert.Equal(t, int32(1), transport.maxSeen.Load(), "more than one submission was in flight")
}

func TestGatewayConcurrencyN(t *testing.T) {
	transport := &countingTransport{}
	gw := NewGateway(transport, Config{Concurrency: 3})

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gw.EmbedText(context.Background(), []string{"q"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, transport.maxSeen.Load(), int32(3))
}

// blockingTransport returns a pending whose Decode blocks until released.
type blockingTransport struct {
	submitted chan struct{}
	decoding  chan struct{}
	release   chan struct{}
	first     atomic.Bool
}

func (b *blockingTransport) SubmitImages(ctx context.Context, blobs [][]byte) (Pending, error) {
	return b.SubmitTexts(ctx, nil)
}

func (b *blockingTransport) SubmitTexts(_ context.Context, _ []string) (Pending, error) {
	if b.first.CompareAndSwap(false, true) {
		return &blockingPending{b: b}, nil
	}
	close(b.submitted)
	return staticPending(vectors(1, 2)), nil
}

type blockingPending struct{ b *blockingTransport }

func (p *blockingPending) Decode() ([][]float32, error) {
	close(p.b.decoding)
	<-p.b.release
	return vectors(1, 2), nil
}

func TestGatewayReleasesSlotBeforeDecode(t *testing.T) {
	transport := &blockingTransport{
		submitted: make(chan struct{}),
		decoding:  make(chan struct{}),
		release:   make(chan struct{}),
	}
	gw := NewGateway(transport, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := gw.EmbedText(context.Background(), []string{"slow"})
		done <- err
	}()
	<-transport.decoding

	go func() {
		_, _ = gw.EmbedText(context.Background(), []string{"fast"})
	}()

	select {
	case <-transport.submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("second submission waited for the first response body")
	}

	close(transport.release)
	require.NoError(t, <-done)
}

func TestSerializerContextCancel(t *testing.T) {
	s := NewSerializer(1)
	hold := make(chan struct{})
	go func() {
		_, _ = s.Do(context.Background(), func() error {
			<-hold
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Do(ctx, func() error { return nil })
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	close(hold)
	assert.Equal(t, 1, s.Limit())
}

func TestDownscale(t *testing.T) {
	encode := func(w, h int, format imaging.Format) []byte {
		img := imaging.New(w, h, color.NRGBA{R: 200, A: 255})
		var buf bytes.Buffer
		require.NoError(t, imaging.Encode(&buf, img, format))
		return buf.Bytes()
	}

	t.Run("large png is fitted", func(t *testing.T) {
		out := Downscale(encode(2000, 1000, imaging.PNG), 500)
		cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, "png", format)
		assert.Equal(t, 500, cfg.Width)
		assert.Equal(t, 250, cfg.Height)
	})

	t.Run("large jpeg stays jpeg", func(t *testing.T) {
		out := Downscale(encode(600, 1200, imaging.JPEG), 300)
		cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, 300, cfg.Height)
	})

	t.Run("small image untouched", func(t *testing.T) {
		in := encode(100, 100, imaging.PNG)
		assert.Equal(t, in, Downscale(in, 500))
	})

	t.Run("garbage untouched", func(t *testing.T) {
		in := []byte("not an image")
		assert.Equal(t, in, Downscale(in, 500))
	})

	t.Run("disabled", func(t *testing.T) {
		in := encode(2000, 2000, imaging.PNG)
		assert.Equal(t, in, Downscale(in, 0))
	})
}
