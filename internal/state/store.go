package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"ipmon/internal/types"
)

// Store persists the last-known public IP to a single JSON file.
// The monitor loop is the only writer, so no locking is needed.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore creates a new state store
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:   path,
		logger: logger,
	}
}

// Load returns the persisted IP and its observation time. Any read or
// parse error is logged and treated as "no prior state".
func (s *Store) Load() (string, time.Time) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read state file",
				zap.String("path", s.path),
				zap.Error(err))
		}
		return "", time.Time{}
	}

	var st types.IPState
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("Failed to parse state file",
			zap.String("path", s.path),
			zap.Error(err))
		return "", time.Time{}
	}

	return st.IP, st.Timestamp
}

// Save overwrites the state file with the given IP and the current time
func (s *Store) Save(ip string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(types.IPState{
		IP:        ip,
		Timestamp: time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Write through a temp file so a crash mid-write never leaves a
	// truncated state file behind.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.logger.Info("Saved IP state",
		zap.String("path", s.path),
		zap.String("ip", ip))
	return nil
}
