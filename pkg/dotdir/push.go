package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	pushFile = "push.json"
)

// PushState records the last push of each local table to a remote backend.
type PushState struct {
	Tables map[string]TablePush `json:"tables"`
}

// TablePush is the outcome of the last push of one table.
type TablePush struct {
	Backend  string    `json:"backend"`
	PushedAt time.Time `json:"pushed_at"`

	// Records is the number of records synced by the last push.
	Records int `json:"records"`
}

// Record stores the result of pushing table to backend.
func (s *PushState) Record(table, backend string, records int, at time.Time) {
	if s.Tables == nil {
		s.Tables = make(map[string]TablePush)
	}
	s.Tables[table] = TablePush{Backend: backend, PushedAt: at.UTC(), Records: records}
}

// LoadPushState loads the push state from a target .observers/push.json.
// Returns an empty state if nothing was pushed yet.
func (m *Manager) LoadPushState(overrideDir string) (*PushState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, pushFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &PushState{Tables: map[string]TablePush{}}, nil
		}
		return nil, fmt.Errorf("reading push state: %w", err)
	}

	state := &PushState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing push state: %w", err)
	}
	if state.Tables == nil {
		state.Tables = map[string]TablePush{}
	}

	return state, nil
}

// SavePushState persists the push state to a target .observers/push.json.
func (m *Manager) SavePushState(state *PushState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil push state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling push state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, pushFile), data, 0o600); err != nil {
		return fmt.Errorf("writing push state: %w", err)
	}

	return nil
}
