package vpn

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/ocguard/ocguard/common"
)

// State is the persisted connection descriptor. It exists only while a
// connection is believed established; disconnect and cleanup remove it.
type State struct {
	IP          string    `json:"ip"`
	Device      string    `json:"device"`
	ConnectedAt time.Time `json:"connected_at"`
	PID         int32     `json:"pid"`
	Session     string    `json:"session"`
}

// StateStore persists the connection descriptor to a well-known path.
type StateStore struct {
	path string
}

// NewStateStore creates a store using the default data directory.
func NewStateStore() (*StateStore, error) {
	dataDir, err := common.GetDataDir()
	if err != nil {
		return nil, err
	}
	return NewStateStoreAt(filepath.Join(dataDir, common.StateFileName)), nil
}

// NewStateStoreAt creates a store at an explicit path.
func NewStateStoreAt(path string) *StateStore {
	return &StateStore{path: path}
}

// Save writes the descriptor atomically. A crash mid-write must never
// leave a truncated state file, so the write goes through a temp file
// followed by rename.
func (s *StateStore) Save(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return common.WrapError(err, "error serializing connection state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return common.WrapError(err, "error writing connection state")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return common.WrapError(err, "error replacing connection state")
	}
	return nil
}

// Load reads the descriptor. Returns nil with no error when no state
// exists.
func (s *StateStore) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, common.WrapError(err, "error reading connection state")
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, common.WrapError(err, "error parsing connection state")
	}
	return &state, nil
}

// Clear removes the descriptor. Missing state is not an error.
func (s *StateStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return common.WrapError(err, "error removing connection state")
	}
	return nil
}

// Exists reports whether a descriptor is present.
func (s *StateStore) Exists() bool {
	return common.FileExists(s.path)
}

// Verify checks a loaded descriptor against the live process table.
// A state record whose process is gone is stale and should be cleared.
func (st *State) Verify() bool {
	if st == nil || st.PID <= 0 {
		return false
	}
	alive, err := process.PidExists(st.PID)
	if err != nil {
		return false
	}
	return alive
}
