package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one recorded policy or lifecycle override.
type AuditEntry struct {
	ID        string
	CourseID  int64
	Action    string
	Reason    string
	CreatedAt time.Time
}

// recordAudit appends an override record inside the caller's transaction.
// Every force flag and manual attempt pin lands here.
func recordAudit(tx *sql.Tx, courseID int64, action, reason string) error {
	_, err := tx.Exec(
		"INSERT INTO override_audit (id, course_id, action, reason) VALUES (?, ?, ?, ?)",
		uuid.NewString(), courseID, action, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// AuditTrail returns the override history for a course, newest first.
func (s *Store) AuditTrail(shortName string) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := getCourse(s.db, shortName)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, course_id, action, reason, created_at
		 FROM override_audit WHERE course_id = ? ORDER BY created_at DESC, id`,
		c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit trail: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.CourseID, &e.Action, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
