package session

import (
	"context"

	"github.com/synccore/authcore/internal/model"
)

func (m *Manager) lookup(id model.InternalSessionID) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.active[id]
	return s, ok
}

// AddDataSent / AddDataReceived implement spec §4.6's counter updates for
// Data sessions. Calling these against a Command session fails
// LogicError (spec §8 "Session-counter typing").
func (m *Manager) AddDataSent(ctx context.Context, id model.InternalSessionID, n uint64) error {
	return m.addCounter(ctx, id, model.SessionData, func(s *session) { s.dataSent += n })
}

func (m *Manager) AddDataReceived(ctx context.Context, id model.InternalSessionID, n uint64) error {
	return m.addCounter(ctx, id, model.SessionData, func(s *session) { s.dataReceived += n })
}

// AddCommandsSent / AddCommandsReceived are AddDataSent/Received's
// Command-session counterparts.
func (m *Manager) AddCommandsSent(ctx context.Context, id model.InternalSessionID, n uint64) error {
	return m.addCounter(ctx, id, model.SessionCommand, func(s *session) { s.commandsSent += n })
}

func (m *Manager) AddCommandsReceived(ctx context.Context, id model.InternalSessionID, n uint64) error {
	return m.addCounter(ctx, id, model.SessionCommand, func(s *session) { s.commandsReceived += n })
}

func (m *Manager) addCounter(ctx context.Context, id model.InternalSessionID, expectedKind model.SessionKind, apply func(*session)) error {
	s, ok := m.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	if s.kind != expectedKind {
		s.mu.Unlock()
		return ErrLogicError
	}
	if s.waitingForTermination {
		s.mu.Unlock()
		return ErrSessionNotFound
	}

	apply(s)
	s.lastActivityAt = m.now()
	rec := s.toRecord()
	addedToDB := s.addedToDB
	s.mu.Unlock()

	if addedToDB && m.cfg.CommitPolicy.persistsOn(eventCounterUpdate) && m.store != nil {
		if err := m.store.Update(ctx, rec); err != nil {
			m.log.Error("persisting session counter update", "error", err, "session_id", id)
		}
	}

	return nil
}
