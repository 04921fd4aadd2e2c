package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
)

const (
	maxFetchSize = 200 * 1024 // transcripts run long
	fetchTimeout = 30 * time.Second
)

// FetchTranscript downloads a shared transcript page (meeting notes exports,
// pasted docs) and extracts its readable text. Plain-text responses pass
// through untouched.
func FetchTranscript(ctx context.Context, rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("ingest: invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("ingest: %w", err)
	}
	req.Header.Set("User-Agent", "scrumpilot/1.0")

	client := &http.Client{Timeout: fetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ingest: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ingest: fetch: HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") {
		body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxFetchSize)))
		if err != nil {
			return "", fmt.Errorf("ingest: read: %w", err)
		}
		return string(body), nil
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return "", fmt.Errorf("ingest: parse: %w", err)
	}

	var textBuf bytes.Buffer
	if err := article.RenderText(&textBuf); err != nil {
		return "", fmt.Errorf("ingest: render: %w", err)
	}

	text := textBuf.String()
	if len(text) > maxFetchSize {
		text = text[:maxFetchSize]
	}
	return text, nil
}
