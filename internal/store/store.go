// Package store persists runtime state as a single namespaced JSON
// document with atomic, durable writes.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/ManuGH/aes67-nmos/internal/log"
)

// IdentityNamespace holds the persistent node/device/receiver UUIDs.
const IdentityNamespace = "identity"

// Store is a durable JSON document partitioned into named namespaces.
// All operations are serialized by a single mutex; an in-memory cache
// backs reads and is refreshed from the serialized bytes on every write.
type Store struct {
	mu    sync.Mutex
	path  string
	cache map[string]json.RawMessage // nil until first read
}

// New creates a store backed by the given file path. The parent
// directory is created if needed.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{path: path}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// ReadNamespace decodes the named namespace into a fresh map. An absent
// namespace yields an empty map.
func (s *Store) ReadNamespace(name string) (map[string]any, error) {
	out := map[string]any{}
	if err := s.ReadNamespaceInto(name, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadNamespaceInto decodes the named namespace into v. An absent
// namespace leaves v untouched. The round trip through JSON guarantees
// the caller never aliases the cache.
func (s *Store) ReadNamespaceInto(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	raw, ok := s.cache[name]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode namespace %s: %w", name, err)
	}
	return nil
}

// WriteNamespace replaces the named namespace with v and persists the
// whole document atomically.
func (s *Store) WriteNamespace(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode namespace %s: %w", name, err)
	}
	s.cache[name] = raw
	return s.persistLocked()
}

// GetOrCreateUUID returns the v4 UUID stored under name in the identity
// namespace, generating and persisting a new one on first use.
func (s *Store) GetOrCreateUUID(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return "", err
	}

	identity := map[string]string{}
	if raw, ok := s.cache[IdentityNamespace]; ok {
		if err := json.Unmarshal(raw, &identity); err != nil {
			return "", fmt.Errorf("decode identity namespace: %w", err)
		}
	}
	if id, ok := identity[name]; ok {
		return id, nil
	}

	id := uuid.NewString()
	identity[name] = id
	raw, err := json.Marshal(identity)
	if err != nil {
		return "", fmt.Errorf("encode identity namespace: %w", err)
	}
	s.cache[IdentityNamespace] = raw
	if err := s.persistLocked(); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) ensureLoaded() error {
	if s.cache != nil {
		return nil
	}
	doc, err := s.loadFromDisk()
	if err != nil {
		return err
	}
	s.cache = doc
	return nil
}

// loadFromDisk reads the document, quarantining a corrupt file as a
// ".corrupt" sibling rather than crashing the node.
func (s *Store) loadFromDisk() (map[string]json.RawMessage, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		corrupt := s.path + ".corrupt"
		logger := log.WithComponent("store")
		logger.Warn().
			Str("event", "store.corrupt").
			Str("path", s.path).
			Str("quarantine", corrupt).
			Msg("state file is not valid JSON, quarantining and starting empty")
		if renameErr := os.Rename(s.path, corrupt); renameErr != nil {
			return nil, fmt.Errorf("quarantine corrupt state file: %w", renameErr)
		}
		return map[string]json.RawMessage{}, nil
	}
	return doc, nil
}

func (s *Store) persistLocked() error {
	serialized, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state document: %w", err)
	}

	pending, err := renameio.NewPendingFile(s.path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending state file: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()
	if _, err := pending.Write(serialized); err != nil {
		return fmt.Errorf("write state document: %w", err)
	}
	// CloseAtomicallyReplace: fsync + rename (durable + atomic).
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace state file: %w", err)
	}

	// Refresh the cache from the serialized bytes so reads always see
	// exactly what a restart would load.
	refreshed := map[string]json.RawMessage{}
	if err := json.Unmarshal(serialized, &refreshed); err != nil {
		return fmt.Errorf("reload state document: %w", err)
	}
	s.cache = refreshed
	return nil
}
