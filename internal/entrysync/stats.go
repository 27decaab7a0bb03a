package entrysync

import "fmt"

// SyncStats summarizes one directory sync run.
type SyncStats struct {
	// RunID identifies the run in logs.
	RunID string `json:"run_id"`
	// Processed is the number of documents found in the journal.
	Processed int `json:"processed"`
	// Created is the number of new entries.
	Created int `json:"created"`
	// Updated is the number of entries re-applied from a changed file.
	Updated int `json:"updated"`
	// Unchanged is the number of files whose hash matched the stored entry.
	Unchanged int `json:"unchanged"`
	// Restored is the number of soft-deleted entries whose file reappeared.
	Restored int `json:"restored"`
	// Deleted is the number of entries soft-deleted because their file vanished.
	Deleted int `json:"deleted"`
	// Failed is the number of files that could not be read, parsed or stored.
	Failed int `json:"failed"`
	// Conflicts is the number of association adds blocked by tombstones.
	Conflicts int `json:"conflicts"`
}

// Changed reports whether the run modified the store.
func (s *SyncStats) Changed() bool {
	return s.Created+s.Updated+s.Restored+s.Deleted > 0
}

// Err returns an error when any file failed.
func (s *SyncStats) Err() error {
	if s.Failed == 0 {
		return nil
	}
	return fmt.Errorf("sync completed with %d failed of %d documents", s.Failed, s.Processed)
}

// LogAttrs returns the stats as slog key/value pairs.
func (s *SyncStats) LogAttrs() []any {
	return []any{
		"run_id", s.RunID,
		"processed", s.Processed,
		"created", s.Created,
		"updated", s.Updated,
		"unchanged", s.Unchanged,
		"restored", s.Restored,
		"deleted", s.Deleted,
		"failed", s.Failed,
		"conflicts", s.Conflicts,
	}
}
