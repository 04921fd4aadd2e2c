package protocol

import "time"

// SyncResult records the outcome of applying one UpdateIntent against the
// tracker. The comment and status sub-operations succeed or fail
// independently; Success is true only if every requested sub-operation
// succeeded.
type SyncResult struct {
	IssueID        string `json:"issueId"`
	CommentApplied bool   `json:"commentAdded"`
	StatusApplied  bool   `json:"statusChanged"`
	Success        bool   `json:"success"`
	// Synced reports that the intent fully applied to the tracker and needs
	// no retry.
	Synced      bool      `json:"synced"`
	ErrorDetail string    `json:"errorDetail,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
