package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTranscribe(t *testing.T) {
	var gotModel, gotFile, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		gotFile = hdr.Filename
		io.ReadAll(f)
		w.Write([]byte(`{"text":"Speaker Aman: I completed issue 202."}`))
	}))
	defer srv.Close()

	c := New("gsk-test", WithURL(srv.URL), WithModel("whisper-large-v3-turbo"))
	text, err := c.Transcribe(context.Background(), strings.NewReader("fake-ogg-bytes"), "standup.ogg")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "Speaker Aman: I completed issue 202." {
		t.Errorf("text = %q", text)
	}
	if gotAuth != "Bearer gsk-test" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotModel != "whisper-large-v3-turbo" {
		t.Errorf("model = %q", gotModel)
	}
	if gotFile != "standup.ogg" {
		t.Errorf("filename = %q", gotFile)
	}
}

func TestTranscribe_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New("gsk-test", WithURL(srv.URL))
	if _, err := c.Transcribe(context.Background(), strings.NewReader("x"), "a.ogg"); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestTranscribe_NotConfigured(t *testing.T) {
	c := New("")
	if c.Configured() {
		t.Error("empty key should not be configured")
	}
	if _, err := c.Transcribe(context.Background(), strings.NewReader("x"), "a.ogg"); err == nil {
		t.Fatal("expected error when not configured")
	}
}
