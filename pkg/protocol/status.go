package protocol

// Domain status vocabulary, as spoken in standups. The tracker itself only
// knows the binary opened/closed model; see StateTransition.
const (
	StatusCompleted  = "completed"
	StatusInProgress = "in-progress"
	StatusBlocked    = "blocked"
)

// StatusDescriptor describes a tracker-native status.
type StatusDescriptor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// NativeState is the literal state token the tracker API expects.
	NativeState string `json:"gitlabState"`
	Color       string `json:"color"`
}

// StateTransition is a resolved tracker state change: the state event verb
// plus any labels applied alongside it. Blocked issues stay open but carry a
// "blocked" label so they remain distinguishable from active work.
type StateTransition struct {
	Event     string   `json:"event"` // "close" or "reopen"
	AddLabels []string `json:"addLabels,omitempty"`
}
