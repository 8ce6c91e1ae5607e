package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Transport submits requests to the embedding provider. Submit methods
// return as soon as the provider has answered with a status line and
// headers; the body is read later through Pending.Decode, outside any
// serialization slot.
type Transport interface {
	SubmitImages(ctx context.Context, blobs [][]byte) (Pending, error)
	SubmitTexts(ctx context.Context, texts []string) (Pending, error)
}

// Pending is an accepted response whose body has not been read yet.
type Pending interface {
	Decode() ([][]float32, error)
}

type embeddingsResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type textsRequest struct {
	Texts []string `json:"texts"`
}

// HTTPTransport talks to a CLIP style embedding service exposing
// POST /images (multipart, one "files" part per image) and
// POST /texts (JSON {"texts": [...]}).
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport creates a transport for the service at baseURL.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) SubmitImages(ctx context.Context, blobs [][]byte) (Pending, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for i, blob := range blobs {
		part, err := writer.CreateFormFile("files", fmt.Sprintf("image-%d", i))
		if err != nil {
			return nil, fmt.Errorf("failed to build multipart body: %w", err)
		}
		if _, err := part.Write(blob); err != nil {
			return nil, fmt.Errorf("failed to build multipart body: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/images", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return t.submit(req)
}

func (t *HTTPTransport) SubmitTexts(ctx context.Context, texts []string) (Pending, error) {
	payload, err := json.Marshal(textsRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/texts", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return t.submit(req)
}

func (t *HTTPTransport) submit(req *http.Request) (Pending, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return &httpPending{body: resp.Body}, nil
}

type httpPending struct {
	body io.ReadCloser
}

func (p *httpPending) Decode() ([][]float32, error) {
	defer p.body.Close()
	var out embeddingsResponse
	if err := json.NewDecoder(p.body).Decode(&out); err != nil {
		return nil, &ProtocolError{Reason: "malformed response body", Err: err}
	}
	return out.Embeddings, nil
}
