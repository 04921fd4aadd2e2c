package protocol

import "time"

// Meeting is one processed transcript submission.
type Meeting struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"projectId"`
	Date          time.Time `json:"date"`
	Duration      int       `json:"duration"` // seconds, 0 if unknown
	AttendeeCount int       `json:"attendeeCount"`
	Transcript    string    `json:"transcript"`
	Summary       string    `json:"summary"`
}

// UpdateRecord is the persisted form of an extracted update, kept only to
// prevent duplicate synchronization.
type UpdateRecord struct {
	ID        string    `json:"id"`
	MeetingID string    `json:"meetingId"`
	Speaker   string    `json:"speaker"`
	IssueID   string    `json:"issueId"`
	Status    string    `json:"status"`
	Comment   string    `json:"comment"`
	Synced    bool      `json:"synced"`
	CreatedAt time.Time `json:"createdAt"`
}

// MeetingStats aggregates stored meetings and updates.
type MeetingStats struct {
	Meetings       int `json:"meetings"`
	Updates        int `json:"updates"`
	SyncedUpdates  int `json:"syncedUpdates"`
	TotalAttendees int `json:"totalAttendees"`
}
