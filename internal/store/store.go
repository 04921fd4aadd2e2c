// Package store persists processed meetings and their extracted updates.
// The update records exist to keep syncs idempotent: an update marked synced
// is never pushed to the tracker again.
package store

import "github.com/scrumpilot-io/scrumpilot/pkg/protocol"

// Store is the persistence contract for meetings and updates.
type Store interface {
	CreateMeeting(m *protocol.Meeting) error
	GetMeeting(id string) (*protocol.Meeting, error)
	ListMeetings(projectID string) ([]*protocol.Meeting, error)
	Stats() (*protocol.MeetingStats, error)

	CreateUpdate(u *protocol.UpdateRecord) error
	ListUpdatesByMeeting(meetingID string) ([]*protocol.UpdateRecord, error)
	ListUnsynced() ([]*protocol.UpdateRecord, error)
	MarkSynced(updateID string) error

	Close() error
}
