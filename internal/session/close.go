package session

import (
	"context"
	"errors"

	"github.com/synccore/authcore/internal/model"
)

// ErrSessionNotFound is returned when an operation targets a session id
// that isn't (or is no longer) active.
var ErrSessionNotFound = errors.New("session: no such session")

// CloseSession implements spec §4.6's close protocol.
func (m *Manager) CloseSession(ctx context.Context, id model.InternalSessionID) error {
	m.mu.Lock()
	s, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}

	s.mu.Lock()
	m.auth.RemoveAuthenticationToken(s.userID, s.token.ID)
	s.waitingForTermination = true
	rec := s.toRecord()
	addedToDB := s.addedToDB
	s.mu.Unlock()

	delete(m.active, id)
	m.unindexLocked(s)
	m.mu.Unlock()

	if addedToDB && m.cfg.CommitPolicy.persistsOn(eventClose) && m.store != nil {
		if err := m.store.Update(ctx, rec); err != nil {
			m.log.Error("persisting closed session", "error", err, "session_id", id)
		}
	}

	return nil
}
