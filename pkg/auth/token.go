package auth

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ReadPassword prompts on w and reads one line from r as the two-factor
// password. An empty line yields ErrPasswordRequired.
func ReadPassword(r io.Reader, w io.Writer) (string, error) {
	fmt.Fprintln(w, "Two-factor authentication is enabled for this account.")
	fmt.Fprint(w, "Password> ")

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return "", ErrPasswordRequired
	}

	password := strings.TrimSpace(scanner.Text())
	if password == "" {
		return "", ErrPasswordRequired
	}
	return password, nil
}
