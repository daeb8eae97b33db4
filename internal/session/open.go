package session

import (
	"context"

	"github.com/synccore/authcore/internal/model"
	"github.com/synccore/authcore/internal/security"
)

// OpenUserSessionRequest is spec §4.6's open_user_session.
type OpenUserSessionRequest struct {
	Username   string
	Password   string
	Kind       model.SessionKind
	Persistent bool
}

// OpenDeviceSessionRequest is spec §4.6's open_device_session.
type OpenDeviceSessionRequest struct {
	DeviceID   model.DeviceID
	Password   string
	Kind       model.SessionKind
	Persistent bool
}

// OpenUserSession implements spec §4.6's opening protocol for a
// user-based session.
func (m *Manager) OpenUserSession(ctx context.Context, req OpenUserSessionRequest) (model.InternalSessionID, error) {
	future := m.auth.PostAuthenticationRequestUser(ctx, security.UserAuthenticationRequest{
		Username:   req.Username,
		Password:   req.Password,
		SourceKind: m.cfg.SourceKind,
	})
	token, err := future.Get(ctx)
	if err != nil {
		return model.NilSessionID, err
	}

	return m.finishOpen(ctx, token, req.Kind, req.Persistent)
}

// OpenDeviceSession implements spec §4.6's opening protocol for a
// device-based session.
func (m *Manager) OpenDeviceSession(ctx context.Context, req OpenDeviceSessionRequest) (model.InternalSessionID, error) {
	future := m.auth.PostAuthenticationRequestDevice(ctx, security.DeviceAuthenticationRequest{
		DeviceID:   req.DeviceID,
		Password:   req.Password,
		SourceKind: m.cfg.SourceKind,
	})
	token, err := future.Get(ctx)
	if err != nil {
		return model.NilSessionID, err
	}

	return m.finishOpen(ctx, token, req.Kind, req.Persistent)
}

// finishOpen runs steps 2-5 of spec §4.6's opening protocol, common to
// both user- and device-based sessions once a token is in hand.
func (m *Manager) finishOpen(ctx context.Context, token model.AuthenticationToken, kind model.SessionKind, persistent bool) (model.InternalSessionID, error) {
	m.mu.Lock()

	if m.cfg.MaxSessionsPerUser > 0 && uint32(len(m.byUser[token.UserID])) >= m.cfg.MaxSessionsPerUser {
		m.mu.Unlock()
		m.auth.RemoveAuthenticationToken(token.UserID, token.ID)
		return model.NilSessionID, ErrTooManyUserSessions
	}
	if token.DeviceID != model.NilDeviceID && m.cfg.MaxSessionsPerDevice > 0 && uint32(len(m.byDevice[token.DeviceID])) >= m.cfg.MaxSessionsPerDevice {
		m.mu.Unlock()
		m.auth.RemoveAuthenticationToken(token.UserID, token.ID)
		return model.NilSessionID, ErrTooManyDeviceSessions
	}

	s := &session{
		id:                newSessionID(),
		kind:              kind,
		userID:            token.UserID,
		deviceID:          token.DeviceID,
		token:             token,
		tokenExpirationAt: token.ExpirationAt,
		persistent:        persistent,
		lastActivityAt:    m.now(),
	}

	m.active[s.id] = s
	m.indexByUserLocked(s)
	if s.deviceID != model.NilDeviceID {
		m.indexByDeviceLocked(s)
	}

	m.mu.Unlock()

	if m.cfg.CommitPolicy.persistsOn(eventOpen) && m.store != nil {
		s.mu.Lock()
		rec := s.toRecord()
		s.addedToDB = true
		s.mu.Unlock()
		if err := m.store.Add(ctx, rec); err != nil {
			m.log.Error("persisting new session", "error", err, "session_id", s.id)
		}
	}

	m.rescheduleSweep()

	return s.id, nil
}

func (m *Manager) indexByUserLocked(s *session) {
	set, ok := m.byUser[s.userID]
	if !ok {
		set = make(map[model.InternalSessionID]struct{})
		m.byUser[s.userID] = set
	}
	set[s.id] = struct{}{}
}

func (m *Manager) indexByDeviceLocked(s *session) {
	set, ok := m.byDevice[s.deviceID]
	if !ok {
		set = make(map[model.InternalSessionID]struct{})
		m.byDevice[s.deviceID] = set
	}
	set[s.id] = struct{}{}
}

func (m *Manager) unindexLocked(s *session) {
	if set, ok := m.byUser[s.userID]; ok {
		delete(set, s.id)
		if len(set) == 0 {
			delete(m.byUser, s.userID)
		}
	}
	if s.deviceID != model.NilDeviceID {
		if set, ok := m.byDevice[s.deviceID]; ok {
			delete(set, s.id)
			if len(set) == 0 {
				delete(m.byDevice, s.deviceID)
			}
		}
	}
}
