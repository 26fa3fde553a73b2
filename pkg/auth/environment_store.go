package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements SessionStore using environment variables.
// It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates an environment-based session store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(session *Session) error {
	return ErrStoreUnavailable
}

// Retrieve gets the session from FANTIADL_SESSION_ID
func (e *EnvironmentStore) Retrieve(label string) (*Session, error) {
	sessionID := os.Getenv("FANTIADL_SESSION_ID")
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	if label == "" {
		label = DefaultLabel
	}

	return &Session{
		Label:        label,
		SessionID:    sessionID,
		UserAgent:    os.Getenv("FANTIADL_USER_AGENT"),
		LastModified: time.Now(),
	}, nil
}

// List returns the environment session when one is set
func (e *EnvironmentStore) List() ([]*Session, error) {
	session, err := e.Retrieve("")
	if err != nil {
		return []*Session{}, nil
	}
	return []*Session{session}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(label string) error {
	return ErrStoreUnavailable
}

// Exists checks whether the environment session is set
func (e *EnvironmentStore) Exists(label string) bool {
	return os.Getenv("FANTIADL_SESSION_ID") != ""
}
