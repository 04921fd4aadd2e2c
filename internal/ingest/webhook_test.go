package ingest

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
)

func postSegment(t *testing.T, body []byte, headers map[string]string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/meet", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHandle_AssemblesSession(t *testing.T) {
	var gotSession, gotTranscript string
	r := NewReceiver([]EndpointConfig{{Source: "meet"}}, func(session, transcript string) {
		gotSession, gotTranscript = session, transcript
	}, nil)

	segments := [][]byte{
		[]byte(`{"sessionId": "s1", "speaker": "Aman", "text": "finished #202"}`),
		[]byte(`{"sessionId": "s1", "speaker": "Riya", "text": "blocked on #120"}`),
		[]byte(`{"sessionId": "s1", "final": true}`),
	}
	for _, seg := range segments {
		status, msg := r.Handle("meet", postSegment(t, seg, nil))
		if status != http.StatusAccepted {
			t.Fatalf("status = %d (%s)", status, msg)
		}
	}

	if gotSession != "s1" {
		t.Errorf("session = %q", gotSession)
	}
	want := "Speaker Aman: finished #202\nSpeaker Riya: blocked on #120"
	if gotTranscript != want {
		t.Errorf("transcript = %q, want %q", gotTranscript, want)
	}
	if r.Pending() != 0 {
		t.Errorf("pending = %d after flush", r.Pending())
	}
}

func TestHandle_UnknownSource(t *testing.T) {
	r := NewReceiver(nil, nil, nil)
	status, _ := r.Handle("zoom", postSegment(t, []byte(`{"sessionId":"s1"}`), nil))
	if status != http.StatusNotFound {
		t.Errorf("status = %d", status)
	}
}

func TestHandle_HMACVerification(t *testing.T) {
	r := NewReceiver([]EndpointConfig{{Source: "meet", Secret: "hush"}}, nil, nil)
	body := []byte(`{"sessionId": "s1", "text": "hello"}`)

	status, _ := r.Handle("meet", postSegment(t, body, map[string]string{
		"X-Hub-Signature-256": sign("hush", body),
	}))
	if status != http.StatusAccepted {
		t.Errorf("valid signature rejected: %d", status)
	}

	status, _ = r.Handle("meet", postSegment(t, body, map[string]string{
		"X-Hub-Signature-256": sign("wrong", body),
	}))
	if status != http.StatusUnauthorized {
		t.Errorf("bad signature accepted: %d", status)
	}

	status, _ = r.Handle("meet", postSegment(t, body, nil))
	if status != http.StatusUnauthorized {
		t.Errorf("missing signature accepted: %d", status)
	}
}

func TestHandle_BearerVerification(t *testing.T) {
	r := NewReceiver([]EndpointConfig{{Source: "meet", Token: "tok"}}, nil, nil)
	body := []byte(`{"sessionId": "s1", "text": "hi"}`)

	status, _ := r.Handle("meet", postSegment(t, body, map[string]string{"Authorization": "Bearer tok"}))
	if status != http.StatusAccepted {
		t.Errorf("valid token rejected: %d", status)
	}

	status, _ = r.Handle("meet", postSegment(t, body, map[string]string{"Authorization": "Bearer nope"}))
	if status != http.StatusUnauthorized {
		t.Errorf("bad token accepted: %d", status)
	}
}

func TestHandle_InvalidPayload(t *testing.T) {
	r := NewReceiver([]EndpointConfig{{Source: "meet"}}, nil, nil)

	status, _ := r.Handle("meet", postSegment(t, []byte(`not json`), nil))
	if status != http.StatusBadRequest {
		t.Errorf("status = %d for bad json", status)
	}

	status, _ = r.Handle("meet", postSegment(t, []byte(`{"text": "no session"}`), nil))
	if status != http.StatusBadRequest {
		t.Errorf("status = %d for missing session", status)
	}
}

func TestHandle_EmptyFinalSessionNotProcessed(t *testing.T) {
	called := false
	r := NewReceiver([]EndpointConfig{{Source: "meet"}}, func(string, string) { called = true }, nil)

	status, _ := r.Handle("meet", postSegment(t, []byte(`{"sessionId": "s1", "final": true}`), nil))
	if status != http.StatusAccepted {
		t.Fatalf("status = %d", status)
	}
	if called {
		t.Error("empty transcript should not be processed")
	}
}

func TestHandle_SessionsAreIndependent(t *testing.T) {
	var transcripts []string
	r := NewReceiver([]EndpointConfig{{Source: "meet"}}, func(_, tr string) {
		transcripts = append(transcripts, tr)
	}, nil)

	r.Handle("meet", postSegment(t, []byte(`{"sessionId": "a", "text": "from a"}`), nil))
	r.Handle("meet", postSegment(t, []byte(`{"sessionId": "b", "text": "from b"}`), nil))
	if r.Pending() != 2 {
		t.Errorf("pending = %d", r.Pending())
	}

	r.Handle("meet", postSegment(t, []byte(`{"sessionId": "a", "final": true}`), nil))
	if len(transcripts) != 1 || transcripts[0] != "from a" {
		t.Errorf("transcripts = %v", transcripts)
	}
	if r.Pending() != 1 {
		t.Errorf("pending = %d, session b should remain", r.Pending())
	}
}
