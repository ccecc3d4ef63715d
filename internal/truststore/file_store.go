package truststore

import (
	"path/filepath"
	"sync"

	"trustkit/internal/domain"
)

const recordsFilename = "trust_records.json"

// FileStore keeps trust records in a JSON file under dir.
//
// The file holds the full append-only history. Record never rewrites an
// existing entry except to flip its Superseded flag when a newer record for
// the same device lands, so a re-verified device keeps its audit trail. A
// restart loses nothing: every lookup reads from disk.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Record appends rec and marks any older live record for the same device as
// superseded.
func (s *FileStore) Record(rec domain.TrustRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, recordsFilename)
	var records []domain.TrustRecord
	if err := readJSON(path, &records); err != nil {
		return err
	}
	for i := range records {
		if records[i].UserID == rec.UserID && records[i].DeviceID == rec.DeviceID {
			records[i].Superseded = true
		}
	}
	rec.Superseded = false
	records = append(records, rec)
	return writeJSON(path, records, 0o600)
}

// IsVerified reports whether a non-superseded record exists for the device.
func (s *FileStore) IsVerified(user domain.UserID, device domain.DeviceID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.load()
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.UserID == user && r.DeviceID == device && !r.Superseded {
			return true, nil
		}
	}
	return false, nil
}

// ListVerified returns the newest record per device, most recent last.
func (s *FileStore) ListVerified() ([]domain.TrustRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []domain.TrustRecord
	for _, r := range records {
		if !r.Superseded {
			out = append(out, r)
		}
	}
	return out, nil
}

// History returns every record ever written for the device, oldest first.
func (s *FileStore) History(user domain.UserID, device domain.DeviceID) ([]domain.TrustRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []domain.TrustRecord
	for _, r := range records {
		if r.UserID == user && r.DeviceID == device {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *FileStore) load() ([]domain.TrustRecord, error) {
	var records []domain.TrustRecord
	if err := readJSON(filepath.Join(s.dir, recordsFilename), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Compile-time assertion that FileStore implements domain.TrustStore.
var _ domain.TrustStore = (*FileStore)(nil)
