/*
snapshot.go - Session snapshots for history entries

PURPOSE:
  History entries store a before and after snapshot of the session as JSON.
  The snapshot is a versioned, explicit field map (not a dump of the struct)
  so the diff engine's canonical order and normalization table stay in sync
  with the entity's real shape.
*/
package engine

import (
	"bytes"
	"encoding/json"
	"time"
)

// snapshotVersion guards future shape changes; readers of old rows can
// branch on it.
const snapshotVersion = 1

// SessionSnapshot builds the canonical key-value snapshot of a session.
// Extra carries transition-only fields (e.g. reject_reason) that live in
// history rather than on the session row.
func SessionSnapshot(s *Session, extra map[string]any) map[string]any {
	snap := map[string]any{
		"_v":               snapshotVersion,
		"status":           string(s.Status),
		"date":             s.Date.Format("2006-01-02"),
		"start_time":       s.StartTime.String(),
		"end_time":         s.EndTime.String(),
		"tutor_id":         string(s.TutorID),
		"student_id":       string(s.StudentID),
		"assignment_id":    string(s.AssignmentID),
		"duration_minutes": s.DurationMinutes(),
		"mode":             s.Mode,
		"location":         s.Location,
		"notes":            s.Notes,
	}
	if s.ApprovedBy != nil {
		snap["approved_by"] = *s.ApprovedBy
	}
	if s.ApprovedAt != nil {
		snap["approved_at"] = s.ApprovedAt.Format(time.RFC3339)
	}
	for k, v := range extra {
		snap[k] = v
	}
	return snap
}

// MarshalSnapshot encodes a snapshot for history storage.
func MarshalSnapshot(snap map[string]any) []byte {
	b, _ := json.Marshal(snap)
	return b
}

// UnmarshalSnapshot decodes a stored snapshot. Numbers decode as
// json.Number so the diff engine can normalize them without float drift.
func UnmarshalSnapshot(data []byte) (map[string]any, error) {
	var snap map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&snap); err != nil {
		return nil, err
	}
	return snap, nil
}
