// Package auth holds the local credential store for the hermes API.
//
// Credentials are an [oauth2.Token] pair: a short-lived access token with an
// expiry and a longer-lived refresh token. One store file is shared by every
// hermesctl process; only login, refresh, and logout mutate it.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/hermesdl/hermesctl/internal/shared"
	"golang.org/x/oauth2"
)

const credentialsFile = "credentials.json"

// Store holds the current token pair, mirrored to a file under the state
// directory. A corrupt or missing file reads as "not authenticated" rather
// than an error.
type Store struct {
	mu     sync.RWMutex
	path   string
	token  *oauth2.Token
	logger *log.Logger
}

// NewStore creates a credential store persisted under dir.
// An existing credentials file is loaded eagerly.
func NewStore(dir string, logger *log.Logger) *Store {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	s := &Store{
		path:   filepath.Join(dir, credentialsFile),
		logger: logger,
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug("failed to read credentials file", "path", s.path, "error", err)
		}
		return
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		s.logger.Debug("corrupt credentials file, treating as logged out", "path", s.path, "error", err)
		return
	}

	s.token = &token
}

// Token returns the current token pair.
func (s *Store) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == nil || s.token.AccessToken == "" {
		return nil, shared.ErrNotAuthenticated
	}
	return s.token, nil
}

// AccessToken returns the current access token, with false when logged out.
// An expired access token is still returned: the server's 401 drives the
// refresh path, the client does not pre-empt it.
func (s *Store) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == nil || s.token.AccessToken == "" {
		return "", false
	}
	return s.token.AccessToken, true
}

// RefreshToken returns the current refresh token. Its absence is a hard
// failure for the refresh operation, never retried.
func (s *Store) RefreshToken() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == nil || s.token.RefreshToken == "" {
		return "", shared.ErrNoRefreshToken
	}
	return s.token.RefreshToken, nil
}

// Set replaces the stored token pair and persists it.
// Persistence failure degrades to in-memory credentials for this process.
func (s *Store) Set(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: token missing access token", shared.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token

	if err := s.persist(token); err != nil {
		s.logger.Warn("failed to persist credentials, keeping them in memory", "error", err)
	}
	return nil
}

func (s *Store) persist(token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to rename credentials file: %w", err)
	}

	return nil
}

// Clear forgets the stored credentials and removes the file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = nil

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials file: %w", err)
	}
	return nil
}
