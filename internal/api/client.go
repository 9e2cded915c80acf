package api

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

	"github.com/sirupsen/logrus"
)

// Client is the shared HTTP client for the interview backend. Every call is
// bounded by the configured timeout; callers never hang on the backend.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	log *logrus.Entry
}

// New constructs a backend client with a bounded-timeout transport.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		log:        logrus.WithField("component", "api"),
	}
}

// errorBody matches the backend's {"detail": "..."} failure envelope.
type errorBody struct {
	Detail string `json:"detail"`
}

// PostJSON sends body as JSON and decodes a 2xx response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return &Error{Kind: KindNetwork, Detail: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return &Error{Kind: KindNetwork, Detail: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// PostMultipart uploads a single binary attachment plus form fields and
// decodes a 2xx response into out.
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, fileField, fileName, contentType string, file []byte, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return &Error{Kind: KindNetwork, Detail: "write form field", Err: err}
		}
	}
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, fileName)}
	hdr["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(hdr)
	if err != nil {
		return &Error{Kind: KindNetwork, Detail: "create form part", Err: err}
	}
	if _, err := part.Write(file); err != nil {
		return &Error{Kind: KindNetwork, Detail: "write attachment", Err: err}
	}
	if err := w.Close(); err != nil {
		return &Error{Kind: KindNetwork, Detail: "finalize form", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, &buf)
	if err != nil {
		return &Error{Kind: KindNetwork, Detail: "build request", Err: err}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, out)
}

// Get decodes a 2xx response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return &Error{Kind: KindNetwork, Detail: "build request", Err: err}
	}
	return c.do(req, out)
}

// Delete issues a DELETE and returns the response status. A transport
// failure returns status 0 with a typed error.
func (c *Client) Delete(ctx context.Context, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+path, nil)
	if err != nil {
		return 0, &Error{Kind: KindNetwork, Detail: "build request", Err: err}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, &Error{Kind: KindNetwork, Detail: "request failed", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Detail: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		var eb errorBody
		detail := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &eb) == nil && eb.Detail != "" {
			detail = eb.Detail
		}
		return &Error{Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode, Detail: detail}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindNetwork, Detail: "decode response", Err: err}
	}
	return nil
}

// ProviderStatus describes one voice provider's availability.
type ProviderStatus struct {
	Available bool   `json:"available"`
	Provider  string `json:"provider"`
}

// VoiceStatus reports voice service availability per provider.
type VoiceStatus struct {
	VoiceEnabled bool           `json:"voice_enabled"`
	TTS          ProviderStatus `json:"tts"`
	STT          ProviderStatus `json:"stt"`
	GPULatencyMS float64        `json:"gpu_latency_ms,omitempty"`
}

// GetVoiceStatus probes /api/voice/status. Any failure is reported as fully
// unavailable rather than an error.
func (c *Client) GetVoiceStatus(ctx context.Context) VoiceStatus {
	var vs VoiceStatus
	if err := c.Get(ctx, "/api/voice/status", &vs); err != nil {
		c.log.WithError(err).Debug("voice status probe failed, treating as unavailable")
		return VoiceStatus{
			TTS: ProviderStatus{Provider: "none"},
			STT: ProviderStatus{Provider: "none"},
		}
	}
	return vs
}

// Healthy reports whether the backend answers its health check.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
