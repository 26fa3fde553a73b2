package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

const sessionCookieName = "_session_id"

// ResolveSessionValue interprets a session argument: a path to a Netscape
// cookies.txt export when such a file exists, otherwise the raw cookie value.
func ResolveSessionValue(value string) (string, error) {
	if value == "" {
		return "", ErrInvalidSession
	}
	if info, err := os.Stat(value); err == nil && info.Mode().IsRegular() {
		return ParseCookiesFile(value)
	}
	return value, nil
}

// ParseCookiesFile extracts the Fantia session cookie from a Netscape-format
// cookies.txt file
func ParseCookiesFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open cookies file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()

		// HttpOnly cookies are exported with a marker prefix on the comment
		line = strings.TrimPrefix(line, "#HttpOnly_")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// domain, include-subdomains, path, secure, expiry, name, value
		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}
		if !strings.Contains(fields[0], "fantia.jp") {
			continue
		}
		if fields[5] == sessionCookieName {
			return strings.TrimSpace(fields[6]), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read cookies file: %w", err)
	}

	return "", fmt.Errorf("no %s cookie for fantia.jp in %s", sessionCookieName, path)
}
