package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicComplete(t *testing.T) {
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		w.Write([]byte(`{"content":[{"type":"text","text":"[{"},{"type":"text","text":"}]"}]}`))
	}))
	defer srv.Close()

	c := NewAnthropic("ant-test", WithAnthropicBaseURL(srv.URL))
	out, err := c.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "[{}]" {
		t.Errorf("output = %q, want concatenated text blocks", out)
	}
	if gotKey != "ant-test" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotVersion != anthropicAPIVersion {
		t.Errorf("anthropic-version = %q", gotVersion)
	}
}

func TestAnthropicComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"type":"authentication_error"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewAnthropic("bad-key", WithAnthropicBaseURL(srv.URL))
	if _, err := c.Complete(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for 401 response")
	}
}
