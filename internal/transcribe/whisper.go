// Package transcribe provides audio-to-text transcription via a
// Whisper-compatible API. The core never captures audio itself; it only
// accepts finished recordings pushed by callers.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Client calls a Whisper-compatible transcription endpoint.
// Supports OpenAI-compatible endpoints (OpenAI, Groq, etc.).
type Client struct {
	client *http.Client
	url    string
	apiKey string
	model  string
}

// Option configures a Client.
type Option func(*Client)

// WithURL sets the transcription endpoint.
func WithURL(url string) Option {
	return func(c *Client) { c.url = url }
}

// WithModel sets the Whisper model.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// New creates a transcription client.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		client: &http.Client{Timeout: 120 * time.Second},
		url:    "https://api.groq.com/openai/v1/audio/transcriptions",
		apiKey: apiKey,
		model:  "whisper-large-v3-turbo",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the client has credentials to call the API.
func (c *Client) Configured() bool { return c.apiKey != "" }

// Transcribe uploads an audio recording and returns the transcript text.
// filename is used for the multipart form; its extension hints the format.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("transcribe: not configured")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("transcribe: build form: %w", err)
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return "", fmt.Errorf("transcribe: copy audio: %w", err)
	}
	w.WriteField("model", c.model)
	w.WriteField("response_format", "json")
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &buf)
	if err != nil {
		return "", fmt.Errorf("transcribe: create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("transcribe: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcribe: whisper API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result whisperResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("transcribe: parse response: %w", err)
	}
	return result.Text, nil
}

type whisperResponse struct {
	Text string `json:"text"`
}
