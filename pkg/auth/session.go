// Package auth stores the Fantia session cookie across runs. Storage is a
// fallback chain: system keychain, then an encrypted file, then environment
// variables.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Session holds the credentials of one logged-in Fantia session. SessionID
// is the value of the _session_id browser cookie; CSRF tokens are scraped
// per post and never stored.
type Session struct {
	Label        string    `json:"label"`
	SessionID    string    `json:"session_id"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// SessionStore is the interface for persisting sessions
type SessionStore interface {
	// Store saves the session under its label
	Store(session *Session) error

	// Retrieve gets the session stored under label
	Retrieve(label string) (*Session, error)

	// List returns all stored sessions
	List() ([]*Session, error)

	// Delete removes the session stored under label
	Delete(label string) error

	// Exists checks whether a session is stored under label
	Exists(label string) bool
}

// DefaultLabel names the session used when no label is given
const DefaultLabel = "default"

// Manager handles session storage with fallback mechanisms
type Manager struct {
	stores []SessionStore
}

// NewManager creates a session manager with the available storage backends
func NewManager() (*Manager, error) {
	var stores []SessionStore

	// System keychain first, when one is reachable
	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "sessions.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	// Environment variables as last resort, read-only
	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// Store saves the session using the first store that accepts it
func (m *Manager) Store(session *Session) error {
	if session.SessionID == "" {
		return errors.New("session ID is required")
	}
	if session.Label == "" {
		session.Label = DefaultLabel
	}
	session.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(session); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store session: %w", lastErr)
	}
	return errors.New("no available session stores")
}

// Retrieve gets the session from the first store that has it
func (m *Manager) Retrieve(label string) (*Session, error) {
	if label == "" {
		label = DefaultLabel
	}
	for _, store := range m.stores {
		if session, err := store.Retrieve(label); err == nil && session != nil {
			return session, nil
		}
	}
	return nil, fmt.Errorf("no session stored under label %q", label)
}

// RetrieveDefault gets the default session, preferring environment variables
func (m *Manager) RetrieveDefault() (*Session, error) {
	if envStore, ok := m.stores[len(m.stores)-1].(*EnvironmentStore); ok {
		if session, err := envStore.Retrieve(""); err == nil && session != nil {
			return session, nil
		}
	}

	if session, err := m.Retrieve(DefaultLabel); err == nil {
		return session, nil
	}

	sessions, err := m.List()
	if err == nil && len(sessions) > 0 {
		return sessions[0], nil
	}

	return nil, errors.New("no stored session found")
}

// List returns all sessions across stores, most recently modified winning
// on label collisions
func (m *Manager) List() ([]*Session, error) {
	sessionMap := make(map[string]*Session)

	for _, store := range m.stores {
		sessions, err := store.List()
		if err != nil {
			continue
		}
		for _, session := range sessions {
			if existing, ok := sessionMap[session.Label]; !ok || session.LastModified.After(existing.LastModified) {
				sessionMap[session.Label] = session
			}
		}
	}

	var result []*Session
	for _, session := range sessionMap {
		result = append(result, session)
	}
	return result, nil
}

// Delete removes the session from all stores
func (m *Manager) Delete(label string) error {
	if label == "" {
		label = DefaultLabel
	}

	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(label); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete session: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("no session stored under label %q", label)
	}
	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "fantiadl")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "fantiadl")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "fantiadl")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "fantiadl")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// SanitizeSession returns a copy with the session ID masked for display
func SanitizeSession(session *Session) *Session {
	if session == nil {
		return nil
	}
	return &Session{
		Label:        session.Label,
		SessionID:    maskString(session.SessionID),
		UserAgent:    session.UserAgent,
		LastModified: session.LastModified,
	}
}

func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSession   = errors.New("invalid session")
	ErrStoreUnavailable = errors.New("session store unavailable")
)
