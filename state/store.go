// Package state persists the ACME directory, account and account key between
// runs as JSON documents in a local directory.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// DefaultDir is the state directory, relative to the user's home directory.
const DefaultDir = "~/.acme"

// Key names a persisted document.
type Key string

const (
	Directory  Key = "directory"
	Account    Key = "account"
	AccountKey Key = "account-key"
)

var fileNames = map[Key]string{
	Directory:  "directory.json",
	Account:    "account.json",
	AccountKey: "account_key.json",
}

// Store reads and writes state documents under Dir.
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir, expanding a leading "~". An empty
// dir selects DefaultDir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving state directory %q: %w", dir, err)
	}
	return &Store{Dir: expanded}, nil
}

// Path returns the file path backing key.
func (s *Store) Path(key Key) (string, error) {
	name, ok := fileNames[key]
	if !ok {
		return "", fmt.Errorf("unknown state key %q", key)
	}
	return filepath.Join(s.Dir, name), nil
}

// Load reads the document stored under key into a T. The bool result is false,
// with a nil error, when nothing has been stored yet.
func Load[T any](s *Store, key Key) (T, bool, error) {
	var v T
	path, err := s.Path(key)
	if err != nil {
		return v, false, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return v, false, nil
	} else if err != nil {
		return v, false, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decoding %s: %w", path, err)
	}
	return v, true, nil
}

// Save writes value as the document for key, creating the state directory
// if needed.
func Save[T any](s *Store, key Key, value T) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+fileNames[key]+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
