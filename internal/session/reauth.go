package session

import (
	"context"

	"github.com/synccore/authcore/internal/model"
	"github.com/synccore/authcore/internal/security"
)

// ReauthenticateUserSession implements spec §4.6's re-authentication
// protocol for a user-bound session.
func (m *Manager) ReauthenticateUserSession(ctx context.Context, id model.InternalSessionID, username, password string) error {
	s, err := m.beginReauthLocked(id)
	if err != nil {
		return err
	}

	future := m.auth.PostAuthenticationRequestUser(ctx, security.UserAuthenticationRequest{
		Username:   username,
		Password:   password,
		SourceKind: m.cfg.SourceKind,
	})
	token, err := future.Get(ctx)
	if err != nil {
		return err
	}

	return m.finishReauth(ctx, s, token)
}

// ReauthenticateDeviceSession is ReauthenticateUserSession's device
// counterpart.
func (m *Manager) ReauthenticateDeviceSession(ctx context.Context, id model.InternalSessionID, deviceID model.DeviceID, password string) error {
	s, err := m.beginReauthLocked(id)
	if err != nil {
		return err
	}

	future := m.auth.PostAuthenticationRequestDevice(ctx, security.DeviceAuthenticationRequest{
		DeviceID:   deviceID,
		Password:   password,
		SourceKind: m.cfg.SourceKind,
	})
	token, err := future.Get(ctx)
	if err != nil {
		return err
	}

	return m.finishReauth(ctx, s, token)
}

// beginReauthLocked finds the session and enforces spec §4.6's
// precondition: "the session must be in the waiting_for_reauth state.
// Otherwise fail LogicError" — and discards the old token from the Core
// before the new authentication request goes out, per protocol.
func (m *Manager) beginReauthLocked(id model.InternalSessionID) (*session, error) {
	m.mu.Lock()
	s, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.waitingForReauth {
		return nil, ErrLogicError
	}

	m.auth.RemoveAuthenticationToken(s.userID, s.token.ID)

	return s, nil
}

func (m *Manager) finishReauth(ctx context.Context, s *session, token model.AuthenticationToken) error {
	s.mu.Lock()
	s.token = token
	s.tokenExpirationAt = token.ExpirationAt
	s.waitingForReauth = false
	s.lastActivityAt = m.now()
	rec := s.toRecord()
	addedToDB := s.addedToDB
	s.mu.Unlock()

	if addedToDB && m.cfg.CommitPolicy.persistsOn(eventReauth) && m.store != nil {
		if err := m.store.Update(ctx, rec); err != nil {
			m.log.Error("persisting reauthenticated session", "error", err, "session_id", s.id)
		}
	}

	m.rescheduleSweep()

	return nil
}
