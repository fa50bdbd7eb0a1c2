// Package clipboard copies transcript text to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"strings"

	cb "github.com/atotto/clipboard"

	"murmur/session"
)

var ErrUnsupported = errors.New("clipboard: no clipboard utility available")

// Text joins a group's utterances, one per line, skipping empty ones.
func Text(g session.Group) string {
	lines := make([]string, 0, len(g.Utterances))
	for _, u := range g.Utterances {
		if t := strings.TrimSpace(u.Text); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}

func Copy(text string) error {
	if cb.Unsupported {
		return ErrUnsupported
	}
	if err := cb.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	return nil
}

// CopyGroup copies the group transcript and returns what was copied.
func CopyGroup(g session.Group) (string, error) {
	text := Text(g)
	if text == "" {
		return "", nil
	}
	return text, Copy(text)
}

// Available reports whether a clipboard utility was found.
func Available() bool { return !cb.Unsupported }
