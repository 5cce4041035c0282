package permission

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/privarion/privarion/internal/perr"
)

// Store is the PermissionStore contract: read-only by
// default, with optional write access and snapshot/restore for tests and
// operational backup.
type Store interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Enumerate(ctx context.Context) ([]Permission, error)
	GetStatus(ctx context.Context, bundleID, service string) (AuthValue, bool, error)

	ConnectRW(ctx context.Context) error
	Grant(ctx context.Context, bundleID, service string, value AuthValue) error
	Revoke(ctx context.Context, bundleID, service string) error

	Snapshot(ctx context.Context, path string) error
	RestoreFrom(ctx context.Context, path string) error
}

// FileStore is a PermissionStore backed by a JSON file, standing in for a
// host TCC database. It supports optional write access gated by ConnectRW.
type FileStore struct {
	path string

	mu          sync.RWMutex
	connected   bool
	writable    bool
	permissions map[string]Permission // key: client+"\x00"+service
}

// NewFileStore creates a FileStore rooted at path. The file is created
// lazily on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, permissions: make(map[string]Permission)}
}

func key(client, service string) string { return client + "\x00" + service }

func (s *FileStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	s.connected = true
	return nil
}

func (s *FileStore) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.writable = false
	return nil
}

func (s *FileStore) ConnectRW(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		if err := s.load(); err != nil {
			return err
		}
		s.connected = true
	}
	s.writable = true
	return nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return perr.Wrap(perr.CodeCorruptedData, "failed to read permission store", s.path, err)
	}
	var rows []Permission
	if err := json.Unmarshal(data, &rows); err != nil {
		return perr.Wrap(perr.CodeCorruptedData, "failed to parse permission store", s.path, err)
	}
	for _, r := range rows {
		s.permissions[key(r.Client, r.Service)] = r
	}
	return nil
}

func (s *FileStore) persist() error {
	rows := make([]Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		rows = append(rows, p)
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return perr.Wrap(perr.CodeWriteFailed, "failed to marshal permission store", s.path, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return perr.Wrap(perr.CodeWriteFailed, "failed to write permission store", s.path, err)
	}
	return os.Rename(tmp, s.path)
}

// Enumerate returns every permission record. Target latency < 50ms
//; a file-backed store of realistic size comfortably meets
// this without special-casing.
func (s *FileStore) Enumerate(ctx context.Context) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		rows = append(rows, p)
	}
	return rows, nil
}

func (s *FileStore) GetStatus(ctx context.Context, bundleID, service string) (AuthValue, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permissions[key(bundleID, service)]
	if !ok {
		return 0, false, nil
	}
	return p.AuthValue, true, nil
}

func (s *FileStore) Grant(ctx context.Context, bundleID, service string, value AuthValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable {
		return perr.New(perr.CodeWriteNotSupported, "permission store is not connected read-write")
	}
	p := s.permissions[key(bundleID, service)]
	p.Client = bundleID
	p.Service = service
	p.AuthValue = value
	s.permissions[key(bundleID, service)] = p
	return s.persist()
}

func (s *FileStore) Revoke(ctx context.Context, bundleID, service string) error {
	return s.Grant(ctx, bundleID, service, AuthDenied)
}

func (s *FileStore) Snapshot(ctx context.Context, path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		rows = append(rows, p)
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (s *FileStore) RestoreFrom(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return perr.Wrap(perr.CodeCorruptedData, "failed to read snapshot", path, err)
	}
	var rows []Permission
	if err := json.Unmarshal(data, &rows); err != nil {
		return perr.Wrap(perr.CodeCorruptedData, "failed to parse snapshot", path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions = make(map[string]Permission, len(rows))
	for _, r := range rows {
		s.permissions[key(r.Client, r.Service)] = r
	}
	return s.persist()
}
