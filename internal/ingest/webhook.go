// Package ingest receives transcript fragments pushed by external meeting
// platforms and assembles them into complete transcripts for processing.
package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// SegmentPayload is one pushed transcript fragment. Final marks the last
// fragment of a session; receiving it flushes the assembled transcript.
type SegmentPayload struct {
	SessionID string `json:"sessionId"`
	Speaker   string `json:"speaker,omitempty"`
	Text      string `json:"text"`
	Final     bool   `json:"final,omitempty"`
}

// ProcessFunc receives the assembled transcript once a session completes.
type ProcessFunc func(sessionID, transcript string)

// EndpointConfig describes one webhook source.
type EndpointConfig struct {
	Source string `json:"source"`
	// Secret enables HMAC-SHA256 signature verification when set.
	Secret string `json:"secret,omitempty"`
	// Token enables bearer-token verification when set.
	Token string `json:"token,omitempty"`
}

// Receiver accepts pushed segments, buffers them per session, and hands
// finished transcripts to the process callback.
type Receiver struct {
	endpoints map[string]EndpointConfig
	process   ProcessFunc
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionBuffer
}

type sessionBuffer struct {
	lines []string
}

func (b *sessionBuffer) append(p SegmentPayload) {
	line := p.Text
	if p.Speaker != "" {
		line = fmt.Sprintf("Speaker %s: %s", p.Speaker, p.Text)
	}
	b.lines = append(b.lines, line)
}

func (b *sessionBuffer) transcript() string {
	return strings.Join(b.lines, "\n")
}

// NewReceiver creates a webhook receiver for the configured endpoints.
func NewReceiver(endpoints []EndpointConfig, process ProcessFunc, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]EndpointConfig, len(endpoints))
	for _, ep := range endpoints {
		byName[ep.Source] = ep
	}
	return &Receiver{
		endpoints: byName,
		process:   process,
		logger:    logger,
		sessions:  make(map[string]*sessionBuffer),
	}
}

// Handle processes one webhook POST for the named source. It returns an
// HTTP status and an error message suitable for the response body.
func (r *Receiver) Handle(source string, req *http.Request) (int, string) {
	ep, ok := r.endpoints[source]
	if !ok {
		return http.StatusNotFound, "unknown webhook source"
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	if err != nil {
		return http.StatusBadRequest, "unreadable body"
	}

	if !r.authorized(ep, req, body) {
		return http.StatusUnauthorized, "signature verification failed"
	}

	var payload SegmentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return http.StatusBadRequest, "invalid payload"
	}
	if payload.SessionID == "" {
		return http.StatusBadRequest, "sessionId is required"
	}

	r.ingest(source, payload)
	return http.StatusAccepted, ""
}

func (r *Receiver) ingest(source string, p SegmentPayload) {
	key := source + "/" + p.SessionID

	r.mu.Lock()
	buf, ok := r.sessions[key]
	if !ok {
		buf = &sessionBuffer{}
		r.sessions[key] = buf
	}
	if p.Text != "" {
		buf.append(p)
	}
	var finished string
	if p.Final {
		finished = buf.transcript()
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	if p.Final {
		r.logger.Info("session complete", "source", source, "session", p.SessionID, "lines", len(buf.lines))
		if finished != "" && r.process != nil {
			r.process(p.SessionID, finished)
		}
	}
}

// authorized verifies the request against the endpoint's credentials. An
// endpoint with neither secret nor token accepts everything.
func (r *Receiver) authorized(ep EndpointConfig, req *http.Request, body []byte) bool {
	if ep.Secret != "" {
		sig := strings.TrimPrefix(req.Header.Get("X-Hub-Signature-256"), "sha256=")
		mac := hmac.New(sha256.New, []byte(ep.Secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))
		return hmac.Equal([]byte(sig), []byte(expected))
	}
	if ep.Token != "" {
		got := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		return subtle.ConstantTimeCompare([]byte(got), []byte(ep.Token)) == 1
	}
	return true
}

// Pending returns the number of in-flight sessions, for health reporting.
func (r *Receiver) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
