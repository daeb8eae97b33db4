package session

import "time"

// rescheduleSweep is spec §4.6 open-protocol step 5 / re-auth's
// "if persistence policy is OnReauth (or finer), persist" sibling
// scheduling step: "Schedule the next run of the expiration handler at
// min(token.expiration_at, now + inactivity_timeout)." Only moves the
// timer earlier, never later — a session opened or reauthenticated after
// the next scheduled sweep doesn't push that sweep out.
func (m *Manager) rescheduleSweep() {
	m.mu.Lock()
	candidate, ok := m.earliestDeadlineLocked()
	m.mu.Unlock()

	if !ok {
		return
	}

	if next, pending := m.timer.Pending(); !pending || candidate.Before(next) {
		m.timer.ScheduleAt(candidate)
	}
}

func (m *Manager) earliestDeadlineLocked() (time.Time, bool) {
	var earliest time.Time
	found := false

	for _, s := range m.active {
		s.mu.Lock()
		if s.waitingForTermination {
			s.mu.Unlock()
			continue
		}
		deadline := s.tokenExpirationAt
		if m.cfg.InactivityTimeout > 0 && !s.persistent {
			if inactivityDeadline := s.lastActivityAt.Add(m.cfg.InactivityTimeout); inactivityDeadline.Before(deadline) {
				deadline = inactivityDeadline
			}
		}
		s.mu.Unlock()

		if !found || deadline.Before(earliest) {
			earliest = deadline
			found = true
		}
	}

	return earliest, found
}

// sweep is the expiration handler spec §4.6 runs "on the session
// manager's dedicated timer thread." It is the Timer's fire callback, so
// it always runs on its own goroutine, never under a caller's lock.
func (m *Manager) sweep() {
	now := m.now()

	var forReauth, forTermination []*session

	m.mu.Lock()
	for _, s := range m.active {
		s.mu.Lock()

		if s.waitingForTermination {
			s.mu.Unlock()
			continue
		}

		if m.cfg.InactivityTimeout > 0 && !s.persistent && !s.lastActivityAt.Add(m.cfg.InactivityTimeout).After(now) {
			s.waitingForTermination = true
			forTermination = append(forTermination, s)
			s.mu.Unlock()
			continue
		}

		if !s.tokenExpirationAt.After(now) {
			if !s.waitingForReauth && m.cfg.UnauthGrace > 0 {
				s.waitingForReauth = true
				s.tokenExpirationAt = s.tokenExpirationAt.Add(m.cfg.UnauthGrace)
				forReauth = append(forReauth, s)
			} else {
				s.waitingForTermination = true
				forTermination = append(forTermination, s)
			}
		}

		s.mu.Unlock()
	}

	for _, s := range forTermination {
		m.auth.RemoveAuthenticationToken(s.userID, s.token.ID)
		delete(m.active, s.id)
		m.unindexLocked(s)
	}

	next, ok := m.earliestDeadlineLocked()
	m.mu.Unlock()

	if ok {
		m.timer.ScheduleAt(next)
	} else {
		m.timer.Stop()
	}

	for _, s := range forReauth {
		m.fireReauthRequired(s.id)
	}
	for _, s := range forTermination {
		m.fireSessionExpired(s.id)
	}
}
