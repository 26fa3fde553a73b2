package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// PromptSessionID interactively asks for the session cookie value without
// echoing it. It fails when stdin is not a terminal.
func PromptSessionID() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("cannot prompt for session cookie: stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "Fantia _session_id cookie: ")
	value, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read session cookie: %w", err)
	}

	sessionID := strings.TrimSpace(string(value))
	if sessionID == "" {
		return "", errors.New("empty session cookie")
	}
	return sessionID, nil
}
