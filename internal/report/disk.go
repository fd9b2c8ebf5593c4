package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// DiskStore writes records as JSON files to a lazily created directory.
type DiskStore struct {
	mu  sync.Mutex
	dir string
}

// NewDiskStore creates a DiskStore rooted at dir. An empty dir means a
// temporary directory created on first use.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

// Save writes record to disk.
func (s *DiskStore) Save(record *Record) error {
	if _, err := uuid.Parse(record.ID); err != nil {
		return fmt.Errorf("saving record: invalid run id %q: %w", record.ID, err)
	}
	dir, err := s.ensureDir()
	if err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshalling record %s: %w", record.ID, err)
	}
	path := filepath.Join(dir, record.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing record %s: %w", record.ID, err)
	}
	return nil
}

// Load reads a record from disk.
func (s *DiskStore) Load(runID string) (*Record, error) {
	// Run IDs become file names; anything but a UUID could escape dir.
	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	dir, err := s.ensureDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, runID+".json"))
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", runID, err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshalling record %s: %w", runID, err)
	}
	return &record, nil
}

// Dir returns the directory records are written to, creating it if needed.
func (s *DiskStore) Dir() (string, error) {
	return s.ensureDir()
}

func (s *DiskStore) ensureDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return "", fmt.Errorf("creating record directory: %w", err)
		}
		return s.dir, nil
	}
	dir, err := os.MkdirTemp("", "cpptext-runs-*")
	if err != nil {
		return "", fmt.Errorf("creating record directory: %w", err)
	}
	s.dir = dir
	return dir, nil
}
