package gitlab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/scrumpilot-io/scrumpilot/pkg/protocol"
)

func newTestClient(t *testing.T, token string, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Token: token, ProjectID: "42"})
}

func TestAuthHeader_PrivateToken(t *testing.T) {
	var gotPrivate, gotBearer string
	c := newTestClient(t, "glpat-abc123", func(w http.ResponseWriter, r *http.Request) {
		gotPrivate = r.Header.Get("PRIVATE-TOKEN")
		gotBearer = r.Header.Get("Authorization")
		w.Write([]byte(`{"id":42,"name":"demo","path_with_namespace":"team/demo"}`))
	})

	if _, err := c.ValidateProject(context.Background()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if gotPrivate != "glpat-abc123" {
		t.Errorf("PRIVATE-TOKEN = %q", gotPrivate)
	}
	if gotBearer != "" {
		t.Errorf("unexpected Authorization header %q", gotBearer)
	}
}

func TestAuthHeader_Bearer(t *testing.T) {
	var gotBearer string
	c := newTestClient(t, "oauth-token", func(w http.ResponseWriter, r *http.Request) {
		gotBearer = r.Header.Get("Authorization")
		w.Write([]byte(`{"id":42}`))
	})

	if _, err := c.ValidateProject(context.Background()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if gotBearer != "Bearer oauth-token" {
		t.Errorf("Authorization = %q", gotBearer)
	}
}

func TestValidateProject_ErrorClasses(t *testing.T) {
	cases := []struct {
		status int
		check  func(*APIError) bool
		name   string
	}{
		{http.StatusUnauthorized, (*APIError).InvalidCredentials, "401 invalid credentials"},
		{http.StatusForbidden, (*APIError).InvalidCredentials, "403 invalid credentials"},
		{http.StatusNotFound, (*APIError).NotFound, "404 not found"},
		{http.StatusTooManyRequests, (*APIError).RateLimited, "429 rate limited"},
		{http.StatusBadGateway, (*APIError).ServerError, "502 server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, "glpat-x", func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tc.status)
			})
			_, err := c.ValidateProject(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			apiErr, ok := AsAPIError(err)
			if !ok {
				t.Fatalf("expected *APIError, got %T", err)
			}
			if !tc.check(apiErr) {
				t.Errorf("status %d not classified as %s", apiErr.StatusCode, tc.name)
			}
		})
	}
}

func TestCreateIssueNote(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	c := newTestClient(t, "glpat-x", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":99,"body":"hello"}`))
	})

	note, err := c.CreateIssueNote(context.Background(), "202", "hello")
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	if note.ID != 99 {
		t.Errorf("note id = %d", note.ID)
	}
	if gotPath != "/api/v4/projects/42/issues/202/notes" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["body"] != "hello" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestUpdateIssueState(t *testing.T) {
	var gotMethod string
	var gotBody map[string]string
	c := newTestClient(t, "glpat-x", func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"iid":202,"state":"closed"}`))
	})

	err := c.UpdateIssueState(context.Background(), "202", protocol.StateTransition{Event: "close"})
	if err != nil {
		t.Fatalf("update state: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %q", gotMethod)
	}
	if gotBody["state_event"] != "close" {
		t.Errorf("state_event = %q", gotBody["state_event"])
	}
	if _, ok := gotBody["add_labels"]; ok {
		t.Error("add_labels should be omitted when empty")
	}
}

func TestUpdateIssueState_WithLabels(t *testing.T) {
	var gotBody map[string]string
	c := newTestClient(t, "glpat-x", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	})

	transition := protocol.StateTransition{Event: "reopen", AddLabels: []string{"blocked"}}
	if err := c.UpdateIssueState(context.Background(), "120", transition); err != nil {
		t.Fatalf("update state: %v", err)
	}
	if gotBody["state_event"] != "reopen" {
		t.Errorf("state_event = %q", gotBody["state_event"])
	}
	if gotBody["add_labels"] != "blocked" {
		t.Errorf("add_labels = %q", gotBody["add_labels"])
	}
}

func TestListIssues(t *testing.T) {
	c := newTestClient(t, "glpat-x", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("state"); got != "all" {
			t.Errorf("state = %q", got)
		}
		w.Write([]byte(`[{"iid":1,"title":"One","state":"opened"},{"iid":2,"title":"Two","state":"closed"}]`))
	})

	issues, err := c.ListIssues(context.Background(), "all")
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("got %d issues", len(issues))
	}
	if issues[0].Title != "One" {
		t.Errorf("first title = %q", issues[0].Title)
	}
}

func TestFetchStatuses(t *testing.T) {
	c := newTestClient(t, "glpat-x", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	})

	statuses, err := c.FetchStatuses(context.Background())
	if err != nil {
		t.Fatalf("fetch statuses: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	if statuses[0].NativeState != "opened" || statuses[1].NativeState != "closed" {
		t.Errorf("statuses = %+v", statuses)
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	cases := map[string]string{
		"":                                  "https://gitlab.com",
		"https://gitlab.com/":               "https://gitlab.com",
		"https://git.corp.io/group/project": "https://git.corp.io",
		"  https://gitlab.com  ":            "https://gitlab.com",
	}
	for in, want := range cases {
		if got := normalizeBaseURL(in); got != want {
			t.Errorf("normalizeBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConfigured(t *testing.T) {
	if NewClient(Config{Token: "", ProjectID: "42"}).Configured() {
		t.Error("missing token should not be configured")
	}
	if NewClient(Config{Token: "glpat-x", ProjectID: ""}).Configured() {
		t.Error("missing project should not be configured")
	}
	if !NewClient(Config{Token: "glpat-x", ProjectID: "42"}).Configured() {
		t.Error("complete config should be configured")
	}
}
