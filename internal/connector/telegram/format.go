package telegram

import (
	"fmt"
	"strings"

	"github.com/scrumpilot-io/scrumpilot/pkg/protocol"
)

// FormatResults renders extraction and sync outcomes as Telegram HTML.
func FormatResults(intents []protocol.UpdateIntent, results []protocol.SyncResult) string {
	if len(intents) == 0 {
		return "No issue updates found in that message."
	}

	byIssue := make(map[string]protocol.SyncResult, len(results))
	for _, r := range results {
		byIssue[r.IssueID] = r
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d update(s):\n", len(intents))
	for _, in := range intents {
		b.WriteString("\n• <b>")
		b.WriteString(EscapeHTML(in.IssueID))
		b.WriteString("</b>")
		if in.TargetStatus != "" && in.ShouldChangeStatus {
			fmt.Fprintf(&b, " → %s", EscapeHTML(in.TargetStatus))
		}
		if in.Action != "" {
			fmt.Fprintf(&b, "\n  <i>%s</i>", EscapeHTML(in.Action))
		}
		if r, ok := byIssue[in.IssueID]; ok {
			if r.Success {
				b.WriteString("\n  ✅ synced")
			} else {
				fmt.Fprintf(&b, "\n  ⚠️ sync failed: %s", EscapeHTML(r.ErrorDetail))
			}
		}
	}
	return b.String()
}

// EscapeHTML escapes the characters Telegram's HTML parse mode reserves.
func EscapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
