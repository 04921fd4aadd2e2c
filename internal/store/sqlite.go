package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/scrumpilot-io/scrumpilot/pkg/protocol"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS meetings (
			id             TEXT PRIMARY KEY,
			project_id     TEXT NOT NULL DEFAULT '',
			date           TEXT NOT NULL,
			duration       INTEGER NOT NULL DEFAULT 0,
			attendee_count INTEGER NOT NULL DEFAULT 0,
			transcript     TEXT NOT NULL DEFAULT '',
			summary        TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS updates (
			id         TEXT PRIMARY KEY,
			meeting_id TEXT NOT NULL REFERENCES meetings(id),
			speaker    TEXT NOT NULL DEFAULT '',
			issue_id   TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT '',
			comment    TEXT NOT NULL DEFAULT '',
			synced     INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_updates_meeting ON updates(meeting_id);
		CREATE INDEX IF NOT EXISTS idx_updates_synced ON updates(synced);
		CREATE INDEX IF NOT EXISTS idx_meetings_project ON meetings(project_id);
	`)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateMeeting(m *protocol.Meeting) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Date.IsZero() {
		m.Date = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO meetings (id, project_id, date, duration, attendee_count, transcript, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ProjectID, m.Date.Format(time.RFC3339), m.Duration, m.AttendeeCount, m.Transcript, m.Summary)
	if err != nil {
		return fmt.Errorf("store: create meeting: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMeeting(id string) (*protocol.Meeting, error) {
	row := s.db.QueryRow(`SELECT id, project_id, date, duration, attendee_count, transcript, summary FROM meetings WHERE id = ?`, id)
	m, err := scanMeeting(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("meeting %q not found", id)
		}
		return nil, fmt.Errorf("store: get meeting: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) ListMeetings(projectID string) ([]*protocol.Meeting, error) {
	query := `SELECT id, project_id, date, duration, attendee_count, transcript, summary FROM meetings`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY date DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list meetings: %w", err)
	}
	defer rows.Close()

	var meetings []*protocol.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

func (s *SQLiteStore) Stats() (*protocol.MeetingStats, error) {
	var stats protocol.MeetingStats
	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(attendee_count), 0) FROM meetings`).
		Scan(&stats.Meetings, &stats.TotalAttendees)
	if err != nil {
		return nil, fmt.Errorf("store: stats meetings: %w", err)
	}
	err = s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(synced), 0) FROM updates`).
		Scan(&stats.Updates, &stats.SyncedUpdates)
	if err != nil {
		return nil, fmt.Errorf("store: stats updates: %w", err)
	}
	return &stats, nil
}

func (s *SQLiteStore) CreateUpdate(u *protocol.UpdateRecord) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO updates (id, meeting_id, speaker, issue_id, status, comment, synced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.MeetingID, u.Speaker, u.IssueID, u.Status, u.Comment, boolToInt(u.Synced), u.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: create update: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListUpdatesByMeeting(meetingID string) ([]*protocol.UpdateRecord, error) {
	return s.listUpdates(`SELECT id, meeting_id, speaker, issue_id, status, comment, synced, created_at FROM updates WHERE meeting_id = ? ORDER BY created_at`, meetingID)
}

func (s *SQLiteStore) ListUnsynced() ([]*protocol.UpdateRecord, error) {
	return s.listUpdates(`SELECT id, meeting_id, speaker, issue_id, status, comment, synced, created_at FROM updates WHERE synced = 0 ORDER BY created_at`)
}

func (s *SQLiteStore) MarkSynced(updateID string) error {
	result, err := s.db.Exec(`UPDATE updates SET synced = 1 WHERE id = ?`, updateID)
	if err != nil {
		return fmt.Errorf("store: mark synced: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("update %q not found", updateID)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- helpers ---

func (s *SQLiteStore) listUpdates(query string, args ...any) ([]*protocol.UpdateRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list updates: %w", err)
	}
	defer rows.Close()

	var updates []*protocol.UpdateRecord
	for rows.Next() {
		var u protocol.UpdateRecord
		var synced int
		var createdAt string
		if err := rows.Scan(&u.ID, &u.MeetingID, &u.Speaker, &u.IssueID, &u.Status, &u.Comment, &synced, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan update: %w", err)
		}
		u.Synced = synced != 0
		u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		updates = append(updates, &u)
	}
	return updates, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMeeting(row scannable) (*protocol.Meeting, error) {
	var m protocol.Meeting
	var date string
	err := row.Scan(&m.ID, &m.ProjectID, &date, &m.Duration, &m.AttendeeCount, &m.Transcript, &m.Summary)
	if err != nil {
		return nil, err
	}
	m.Date, _ = time.Parse(time.RFC3339, date)
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
