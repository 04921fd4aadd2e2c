package protocol

import (
	"strings"
	"time"
)

// UpdateIntent is an extracted, not-yet-applied issue update derived from a
// meeting transcript. Intents are created only by the extractor and applied
// exactly once by the sync engine.
type UpdateIntent struct {
	ID      string `json:"id"`
	Speaker string `json:"speaker"`
	// IssueID is the display form of the issue identifier ("#202").
	IssueID string `json:"issueId"`
	// Action is the free text to post as a comment on the issue.
	Action string `json:"action"`
	// TargetStatus is a tracker-native state token ("opened", "closed") or
	// empty when no status change was requested.
	TargetStatus       string  `json:"status,omitempty"`
	ShouldChangeStatus bool    `json:"shouldChangeStatus"`
	ShouldAddComment   bool    `json:"shouldAddComment"`
	Confidence         float64 `json:"confidence"`
	// RawText is the verbatim transcript the intent was derived from.
	RawText   string    `json:"rawText"`
	CreatedAt time.Time `json:"createdAt"`
}

// IssueNumber returns the bare tracker identifier with the display marker
// stripped, as the tracker API expects it.
func (u UpdateIntent) IssueNumber() string {
	return strings.TrimPrefix(u.IssueID, "#")
}

// Actionable reports whether the intent carries at least one instruction.
func (u UpdateIntent) Actionable() bool {
	return u.ShouldAddComment || u.ShouldChangeStatus
}
