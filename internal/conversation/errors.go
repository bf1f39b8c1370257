package conversation

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSessionNotFound is returned by session stores for unknown or evicted keys.
	ErrSessionNotFound = errors.New("conversation: session not found")
	ErrUnknownTenant   = errors.New("conversation: unknown tenant")
)

// ValidationError reports a required session value that is missing or
// malformed. Handlers recover by re-prompting for it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("conversation: invalid %s", e.Field)
	}
	return fmt.Sprintf("conversation: invalid %s: %s", e.Field, e.Reason)
}

// AmbiguousInputError is recorded when input resolved to no unique choice.
type AmbiguousInputError struct {
	Input string
	State StateID
}

func (e *AmbiguousInputError) Error() string {
	return fmt.Sprintf("conversation: no unique choice for %q in state %s", e.Input, e.State)
}

// SessionExpiredError marks a session whose inactivity exceeded the TTL.
type SessionExpiredError struct {
	LastActivity time.Time
	TTL          time.Duration
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("conversation: session idle since %s exceeded %s", e.LastActivity.Format(time.RFC3339), e.TTL)
}
