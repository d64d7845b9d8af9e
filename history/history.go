// Package history persists the session's command-result records as a JSON
// array: loaded at session start, rewritten on every append, trimmed to a
// configured maximum.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"

	"opsagent/agent"
)

// DefaultMax bounds the persisted history length.
const DefaultMax = 100

// Store is a file-backed, append-only history of command results.
type Store struct {
	path    string
	max     int
	records []agent.CommandResult
}

// Open loads the history file, creating an empty store when it is missing.
func Open(path string, max int) (*Store, error) {
	if max <= 0 {
		max = DefaultMax
	}
	st := &Store{path: path, max: max}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return nil, serr.Wrap(err, "failed to read history file", "path", path)
	}
	if err := json.Unmarshal(data, &st.records); err != nil {
		// A corrupt history file should not block the session.
		logger.Warn("History file is unreadable, starting empty", "path", path, "error", err.Error())
		st.records = nil
	}
	return st, nil
}

// Append adds a record and rewrites the file.
func (s *Store) Append(record agent.CommandResult) error {
	s.records = append(s.records, record)
	if len(s.records) > s.max {
		s.records = s.records[len(s.records)-s.max:]
	}
	return s.flush()
}

// Records returns a copy of the stored records, oldest first.
func (s *Store) Records() []agent.CommandResult {
	out := make([]agent.CommandResult, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return len(s.records)
}

func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return serr.Wrap(err, "failed to marshal history")
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return serr.Wrap(err, "failed to create history directory", "dir", dir)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return serr.Wrap(err, "failed to write history file", "path", s.path)
	}
	return nil
}
