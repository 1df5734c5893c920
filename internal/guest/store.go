// Package guest persists the unauthenticated user's tasks and projects in
// client-side storage.
package guest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sandeepkv93/optixflow/internal/model"
)

// RecordKey is the storage key of the guest record.
const RecordKey = "optix-flow-guest-data"

type Snapshot struct {
	Tasks    []model.Task    `json:"tasks"`
	Projects []model.Project `json:"projects"`
}

func (s Snapshot) IsEmpty() bool {
	return len(s.Tasks) == 0 && len(s.Projects) == 0
}

type Store struct {
	kv     KeyValue
	key    string
	logger *slog.Logger
}

func NewStore(kv KeyValue, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{kv: kv, key: RecordKey, logger: logger}
}

// Save overwrites the guest record with a full snapshot. Guest storage is
// the only copy of guest data, so failures are returned to the caller.
func (s *Store) Save(snap Snapshot) error {
	if snap.Tasks == nil {
		snap.Tasks = []model.Task{}
	}
	if snap.Projects == nil {
		snap.Projects = []model.Project{}
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("guest: encode record: %w", err)
	}
	if err := s.kv.Set(s.key, payload); err != nil {
		return fmt.Errorf("guest: write record: %w", err)
	}
	return nil
}

// Load returns the stored snapshot. A missing, unreadable or malformed
// record reads as empty.
func (s *Store) Load() Snapshot {
	raw, ok, err := s.kv.Get(s.key)
	if err != nil {
		s.logger.Warn("guest record unreadable", "key", s.key, "err", err)
		return Snapshot{}
	}
	if !ok || strings.TrimSpace(string(raw)) == "" {
		return Snapshot{}
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.logger.Warn("guest record malformed, treating as empty", "key", s.key, "err", err)
		return Snapshot{}
	}
	return snap
}

func (s *Store) Clear() error {
	if err := s.kv.Remove(s.key); err != nil {
		return fmt.Errorf("guest: clear record: %w", err)
	}
	return nil
}
