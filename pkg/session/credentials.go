package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"wagate/pkg/wire"
)

const credentialsFile = "creds.json"

// CredentialStore persists session credentials in a directory, surviving
// restarts. Writes are atomic (temp file + rename) so a crash mid-save
// never leaves a truncated credentials file for the next connect to read.
type CredentialStore struct {
	dir string
}

// NewCredentialStore ensures the directory exists and returns a store.
func NewCredentialStore(dir string) (*CredentialStore, error) {
	if dir == "" {
		return nil, errors.New("credential directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential directory: %w", err)
	}

	return &CredentialStore{dir: dir}, nil
}

// Load returns stored credentials, or nil when none exist yet. A nil result
// with nil error means the pairing flow is required.
func (s *CredentialStore) Load() (*wire.Credentials, error) {
	content, err := os.ReadFile(filepath.Join(s.dir, credentialsFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var creds wire.Credentials
	if err := json.Unmarshal(content, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	return &creds, nil
}

// Save durably writes a credentials delta. Missing fields in the delta keep
// their stored values, mirroring how the network sends partial updates.
func (s *CredentialStore) Save(delta wire.Credentials) error {
	current, err := s.Load()
	if err != nil {
		return err
	}
	if current == nil {
		current = &wire.Credentials{}
	}

	if len(delta.Registration) > 0 {
		current.Registration = delta.Registration
	}
	if len(delta.Keys) > 0 {
		current.Keys = delta.Keys
	}
	current.UpdatedAt = time.Now().UTC()

	// Compact encoding keeps the raw credential payloads byte-identical
	// across a save/load round trip.
	content, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	target := filepath.Join(s.dir, credentialsFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("commit credentials: %w", err)
	}

	return nil
}
