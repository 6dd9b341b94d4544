// Package session mints and persists the opaque per-listener token used
// as the rating store's partition key.
package session

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	configDirName   = "radio-calico"
	sessionFileName = "session.json"

	// storageKey is the slot holding the listener token, mirroring the
	// browser player's localStorage key.
	storageKey = "radiocalico_user_session"

	tokenRandLen = 9
)

// Store is a persistent key-to-string map with no TTL or eviction.
type Store interface {
	// Get returns the value for key; absence yields ("", nil).
	Get(key string) (string, error)

	// Set writes the value for key, creating storage as needed.
	Set(key, value string) error
}

// FileStore persists values as a JSON object on disk.
type FileStore struct {
	path string
}

// DefaultFileStore returns a FileStore at the default location:
// <user config dir>/radio-calico/session.json
func DefaultFileStore() (*FileStore, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("getting user config dir: %w", err)
	}
	return NewFileStore(filepath.Join(configDir, configDirName, sessionFileName)), nil
}

// NewFileStore creates a FileStore with a custom path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file path backing the store.
func (s *FileStore) Path() string {
	return s.path
}

// Get reads the value for key from disk.
func (s *FileStore) Get(key string) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading session file: %w", err)
	}

	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return "", fmt.Errorf("parsing session file: %w", err)
	}
	return values[key], nil
}

// Set writes the value for key, creating the parent directory if needed.
func (s *FileStore) Set(key, value string) error {
	values := map[string]string{}
	if data, err := os.ReadFile(s.path); err == nil {
		// Corrupt content is replaced rather than failing the write.
		_ = json.Unmarshal(data, &values)
	}
	values[key] = value

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session file: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}

// Provider hands out the listener token. The storage read (or mint)
// happens exactly once per process lifetime; every later call returns
// the identical in-memory token.
type Provider struct {
	store Store

	once  sync.Once
	token string
	err   error
}

// NewProvider creates a Provider over the given store.
func NewProvider(store Store) *Provider {
	return &Provider{store: store}
}

// Token returns the listener token, minting and persisting one when the
// store has none.
func (p *Provider) Token() (string, error) {
	p.once.Do(func() {
		token, err := p.store.Get(storageKey)
		if err != nil {
			p.err = err
			return
		}
		if token != "" {
			p.token = token
			return
		}

		token, err = mintToken()
		if err != nil {
			p.err = err
			return
		}
		// Persist before returning so a parallel process observes the
		// same token rather than minting its own.
		if err := p.store.Set(storageKey, token); err != nil {
			p.err = err
			return
		}
		p.token = token
	})
	return p.token, p.err
}

// mintToken builds a token of the form user_<random>_<epoch-ms>.
func mintToken() (string, error) {
	random, err := randomBase36(tokenRandLen)
	if err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return fmt.Sprintf("user_%s_%d", random, time.Now().UnixMilli()), nil
}

// randomBase36 returns n random base36 characters.
func randomBase36(n int) (string, error) {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
