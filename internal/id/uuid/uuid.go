// Package uuid mints session identifiers for crawl processes.
package uuid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session identifies one process working on a run. Restarting a run yields a
// new Session while the run id stays the same.
type Session struct {
	ID      string
	Started time.Time
}

// NewSession returns a Session backed by a version 7 UUID. Started is read
// back from the UUID timestamp so the two always agree.
func NewSession() (Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}
	return Session{ID: id.String(), Started: startedAt(id)}, nil
}

// ParseSession recovers a Session from a previously issued id.
func ParseSession(raw string) (Session, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return Session{}, fmt.Errorf("parse session id: %w", err)
	}
	if id.Version() != 7 {
		return Session{}, fmt.Errorf("session id %q is version %d, want 7", raw, id.Version())
	}
	return Session{ID: id.String(), Started: startedAt(id)}, nil
}

func startedAt(id uuid.UUID) time.Time {
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec).UTC()
}
