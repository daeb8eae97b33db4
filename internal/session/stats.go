package session

import "github.com/synccore/authcore/internal/model"

// Stats is a read-only operational snapshot of the Session Manager,
// grounded on the same original SecurityManagement-style debug
// accessors as security.Core.Stats — the original SessionManager's
// debugGetStateHandler reports live session counts per state.
type Stats struct {
	ActiveSessions        int
	WaitingForReauth      int
	WaitingForTermination int
	CommandSessions       int
	DataSessions          int
	DistinctUsers         int
	DistinctDevices       int
}

// Stats returns a snapshot of the Session Manager's current live state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		ActiveSessions:  len(m.active),
		DistinctUsers:   len(m.byUser),
		DistinctDevices: len(m.byDevice),
	}

	for _, sess := range m.active {
		sess.mu.Lock()
		if sess.waitingForReauth {
			s.WaitingForReauth++
		}
		if sess.waitingForTermination {
			s.WaitingForTermination++
		}
		switch sess.kind {
		case model.SessionCommand:
			s.CommandSessions++
		case model.SessionData:
			s.DataSessions++
		}
		sess.mu.Unlock()
	}

	return s
}
