package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/scrumpilot-io/scrumpilot/pkg/protocol"
)

// stubOracle returns canned output and counts calls.
type stubOracle struct {
	output string
	err    error
	calls  int
}

func (s *stubOracle) Complete(_ context.Context, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.output, nil
}

func (s *stubOracle) Name() string { return "stub" }

func defaultStatuses() []protocol.StatusDescriptor {
	return []protocol.StatusDescriptor{
		{ID: "opened", Name: "In Progress", NativeState: "opened"},
		{ID: "closed", Name: "Done", NativeState: "closed"},
	}
}

func TestExtract_FullUpdate(t *testing.T) {
	o := &stubOracle{output: `[
		{"issueId": "202", "action": "finished the login flow", "status": "closed",
		 "shouldChangeStatus": true, "shouldAddComment": true, "confidence": 0.95}
	]`}
	e := New(o, nil)

	intents, err := e.Extract(context.Background(), "Speaker Aman: finished #202", "Aman", defaultStatuses())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(intents) != 1 {
		t.Fatalf("got %d intents", len(intents))
	}
	in := intents[0]
	if in.IssueID != "#202" {
		t.Errorf("issue id = %q", in.IssueID)
	}
	if in.Speaker != "Aman" {
		t.Errorf("speaker = %q", in.Speaker)
	}
	if !in.ShouldChangeStatus || in.TargetStatus != "closed" {
		t.Errorf("status fields = %v %q", in.ShouldChangeStatus, in.TargetStatus)
	}
	if in.Confidence != 0.95 {
		t.Errorf("confidence = %v", in.Confidence)
	}
	if in.ID == "" {
		t.Error("expected an assigned id")
	}
}

func TestExtract_Defaults(t *testing.T) {
	// Only issueId and action present: comment defaults on, status change
	// stays off, confidence defaults to 0.8.
	o := &stubOracle{output: `[{"issueId": 7, "action": "still investigating"}]`}
	e := New(o, nil)

	intents, err := e.Extract(context.Background(), "some transcript", "", defaultStatuses())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(intents) != 1 {
		t.Fatalf("got %d intents", len(intents))
	}
	in := intents[0]
	if in.IssueID != "#7" {
		t.Errorf("numeric issue id = %q", in.IssueID)
	}
	if !in.ShouldAddComment || in.ShouldChangeStatus {
		t.Errorf("flags = comment:%v status:%v", in.ShouldAddComment, in.ShouldChangeStatus)
	}
	if in.Confidence != 0.8 {
		t.Errorf("confidence = %v", in.Confidence)
	}
	if in.Speaker != "User" {
		t.Errorf("speaker fallback = %q", in.Speaker)
	}
}

func TestExtract_NullStatusClearsChangeFlag(t *testing.T) {
	o := &stubOracle{output: `[
		{"issueId": "5", "action": "talked about it", "status": null,
		 "shouldChangeStatus": true, "shouldAddComment": true}
	]`}
	e := New(o, nil)

	intents, err := e.Extract(context.Background(), "t", "", defaultStatuses())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if intents[0].ShouldChangeStatus {
		t.Error("change flag should be cleared when status is null")
	}
}

func TestExtract_DropsNonActionable(t *testing.T) {
	o := &stubOracle{output: `[
		{"issueId": "9", "action": "nothing", "shouldChangeStatus": false, "shouldAddComment": false},
		{"action": "no issue id at all", "shouldAddComment": true},
		{"issueId": "3", "action": "real update", "shouldAddComment": true}
	]`}
	e := New(o, nil)

	intents, err := e.Extract(context.Background(), "t", "", defaultStatuses())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(intents) != 1 || intents[0].IssueID != "#3" {
		t.Errorf("intents = %+v", intents)
	}
}

func TestExtract_CodeFencedOutput(t *testing.T) {
	o := &stubOracle{output: "```json\n[{\"issueId\": \"1\", \"action\": \"x\", \"shouldAddComment\": true}]\n```"}
	e := New(o, nil)

	intents, err := e.Extract(context.Background(), "t", "", defaultStatuses())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(intents) != 1 {
		t.Errorf("got %d intents from fenced output", len(intents))
	}
}

func TestExtract_MalformedOutputIsEmptySet(t *testing.T) {
	o := &stubOracle{output: `I could not find any updates in this transcript.`}
	e := New(o, nil)

	intents, err := e.Extract(context.Background(), "t", "", defaultStatuses())
	if err != nil {
		t.Fatalf("malformed output must not be an error, got %v", err)
	}
	if len(intents) != 0 {
		t.Errorf("got %d intents", len(intents))
	}
}

func TestExtract_OracleFailure(t *testing.T) {
	o := &stubOracle{err: errors.New("connection refused")}
	e := New(o, nil)

	_, err := e.Extract(context.Background(), "t", "", defaultStatuses())
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
}

func TestExtract_EmptyTranscript(t *testing.T) {
	o := &stubOracle{output: `[]`}
	e := New(o, nil)

	_, err := e.Extract(context.Background(), "   \n ", "", defaultStatuses())
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("err = %v, want ErrEmptyTranscript", err)
	}
	if o.calls != 0 {
		t.Errorf("oracle should not be called for empty transcripts, calls = %d", o.calls)
	}
}

func TestExtract_ConfidenceClamped(t *testing.T) {
	o := &stubOracle{output: `[{"issueId": "1", "action": "x", "shouldAddComment": true, "confidence": 3.5}]`}
	e := New(o, nil)

	intents, err := e.Extract(context.Background(), "t", "", defaultStatuses())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if intents[0].Confidence != 1 {
		t.Errorf("confidence = %v, want clamped to 1", intents[0].Confidence)
	}
}
