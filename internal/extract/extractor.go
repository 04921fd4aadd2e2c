// Package extract turns free-form standup transcripts into structured issue
// update intents by asking an oracle to read them.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrumpilot-io/scrumpilot/internal/oracle"
	"github.com/scrumpilot-io/scrumpilot/pkg/protocol"
)

var (
	// ErrEmptyTranscript means the input had no content to extract from.
	ErrEmptyTranscript = errors.New("extract: empty transcript")
	// ErrExtraction wraps oracle transport failures. Malformed oracle output
	// is NOT an extraction error; it degrades to an empty intent set.
	ErrExtraction = errors.New("extract: oracle call failed")
)

// Extractor derives update intents from transcripts.
type Extractor struct {
	oracle oracle.Oracle
	logger *slog.Logger
	now    func() time.Time
}

// New creates an extractor backed by the given oracle.
func New(o oracle.Oracle, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{oracle: o, logger: logger, now: time.Now}
}

// rawCandidate is one element of the oracle's JSON array, decoded leniently:
// the oracle sometimes emits issue ids as numbers and omits optional fields.
type rawCandidate struct {
	IssueID            any      `json:"issueId"`
	Action             string   `json:"action"`
	Status             *string  `json:"status"`
	ShouldChangeStatus *bool    `json:"shouldChangeStatus"`
	ShouldAddComment   *bool    `json:"shouldAddComment"`
	Confidence         *float64 `json:"confidence"`
}

// Extract asks the oracle to read the transcript and returns the update
// intents it found. speaker attributes all intents when the transcript has
// no diarization of its own. A transcript with no recognizable updates
// yields an empty slice and a nil error.
func (e *Extractor) Extract(ctx context.Context, transcript, speaker string, statuses []protocol.StatusDescriptor) ([]protocol.UpdateIntent, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, ErrEmptyTranscript
	}
	if speaker == "" {
		speaker = "User"
	}

	raw, err := e.oracle.Complete(ctx, buildPrompt(transcript, statuses))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	candidates, ok := decodeCandidates(raw)
	if !ok {
		e.logger.Warn("oracle returned unparseable extraction output",
			"oracle", e.oracle.Name(), "output_len", len(raw))
		return []protocol.UpdateIntent{}, nil
	}

	intents := make([]protocol.UpdateIntent, 0, len(candidates))
	for _, c := range candidates {
		intent, ok := e.normalize(c, transcript, speaker)
		if !ok {
			continue
		}
		intents = append(intents, intent)
	}

	e.logger.Info("transcript extracted", "oracle", e.oracle.Name(),
		"candidates", len(candidates), "intents", len(intents))
	return intents, nil
}

// normalize applies the defaulting rules to one candidate and reports
// whether it survives as an actionable intent.
func (e *Extractor) normalize(c rawCandidate, transcript, speaker string) (protocol.UpdateIntent, bool) {
	issueID := coerceIssueID(c.IssueID)
	if issueID == "" {
		return protocol.UpdateIntent{}, false
	}

	intent := protocol.UpdateIntent{
		ID:               uuid.NewString(),
		Speaker:          speaker,
		IssueID:          "#" + issueID,
		Action:           c.Action,
		ShouldAddComment: true,
		Confidence:       0.8,
		RawText:          transcript,
		CreatedAt:        e.now(),
	}
	if intent.Action == "" {
		intent.Action = "No action specified"
	}
	if c.ShouldAddComment != nil {
		intent.ShouldAddComment = *c.ShouldAddComment
	}
	if c.ShouldChangeStatus != nil {
		intent.ShouldChangeStatus = *c.ShouldChangeStatus
	}
	if c.Status != nil && *c.Status != "" {
		intent.TargetStatus = *c.Status
	} else {
		// No target status means no status change, whatever the flag said.
		intent.ShouldChangeStatus = false
	}
	if c.Confidence != nil {
		intent.Confidence = clamp(*c.Confidence, 0, 1)
	}

	return intent, intent.Actionable()
}

// decodeCandidates parses the oracle output into candidates, tolerating
// markdown code fences around the array. A payload that is not a JSON array
// returns ok=false.
func decodeCandidates(raw string) ([]rawCandidate, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var candidates []rawCandidate
	if err := json.Unmarshal([]byte(cleaned), &candidates); err != nil {
		return nil, false
	}
	return candidates, true
}

// coerceIssueID accepts the id as a string or a JSON number and strips any
// leading display marker.
func coerceIssueID(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimPrefix(strings.TrimSpace(id), "#")
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return ""
	}
}

func buildPrompt(transcript string, statuses []protocol.StatusDescriptor) string {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = fmt.Sprintf("%s (%s)", s.Name, s.NativeState)
	}

	var b strings.Builder
	b.WriteString("You are an expert at parsing voice transcripts from software development teams discussing GitLab issues.\n\n")
	b.WriteString("Available statuses: " + strings.Join(names, ", ") + "\n\n")
	b.WriteString(`Analyze this voice transcript and extract all GitLab issue updates mentioned. For each update found:
1. Extract the issue ID (look for #1, ticket 1, issue 1, etc.)
2. Determine if the user wants to CHANGE STATUS (look for keywords like "change status", "update to", "move to", "set to", "completed", "done", "finished", "in progress", "working on", "blocked", "stuck")
3. Determine if the user wants to ADD COMMENT (look for keywords like "add comment", "note that", "mention", "say that", "log", "record", "comment")
4. Extract the status they want to change to (if applicable)
5. Extract what action/comment they want to add (if applicable)
6. Assess confidence (0-1) based on how clearly the intent and issue are mentioned

Rules:
- If they mention completing/finishing, map to "closed"
- If they mention working/in progress, map to "opened"
- If they mention blocked/stuck, map to "blocked"
- Only set shouldChangeStatus=true if they explicitly want to change the status
- Only set shouldAddComment=true if they mention adding a comment or if they only mention an action without changing status
- Default shouldAddComment to true only if neither status change nor comment was explicitly mentioned but there's still relevant content

Transcript: "`)
	b.WriteString(transcript)
	b.WriteString(`"

Return a JSON array with objects like:
[
  {
    "issueId": "1",
    "action": "the full description or comment text",
    "status": "opened or closed or blocked or null",
    "shouldChangeStatus": true/false,
    "shouldAddComment": true/false,
    "confidence": 0.95
  }
]

If no valid issue updates are found, return an empty array [].
Return ONLY the JSON array, no other text.`)
	return b.String()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
