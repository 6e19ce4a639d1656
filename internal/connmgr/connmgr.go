// Package connmgr implements the Connection Manager (spec.md §4.4):
// in-memory bidirectional maps between transport connections, users, and
// sessions. Grounded on the teacher's gateway/websocket.Hub's
// mutex-guarded client/subscription maps, generalized from a single
// task-subscription map to the four maps spec.md §4.4 names.
package connmgr

import "sync"

// Manager tracks which users and sessions each transport connection
// belongs to. All operations are safe for concurrent use; queries on
// absent keys return the zero value, never an error.
type Manager struct {
	mu sync.RWMutex

	connToUser  map[string]string
	userToConns map[string]map[string]struct{}
	connToSess  map[string]map[string]struct{}
	sessToConns map[string]map[string]struct{}
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{
		connToUser:  make(map[string]string),
		userToConns: make(map[string]map[string]struct{}),
		connToSess:  make(map[string]map[string]struct{}),
		sessToConns: make(map[string]map[string]struct{}),
	}
}

// AddConnection registers connId as belonging to userId. Re-adding the
// same pair is a no-op; re-adding connId under a different userId
// replaces the mapping and moves connId out of the old userId's set.
func (m *Manager) AddConnection(connID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.connToUser[connID]; ok {
		if existing == userID {
			return
		}
		m.removeFromUserSet(existing, connID)
	}

	m.connToUser[connID] = userID
	if _, ok := m.userToConns[userID]; !ok {
		m.userToConns[userID] = make(map[string]struct{})
	}
	m.userToConns[userID][connID] = struct{}{}
}

// RemoveConnection removes connId and every membership it holds
// (user mapping, reverse map, and all session memberships). Absent connId
// is a no-op.
func (m *Manager) RemoveConnection(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.connToUser[connID]
	if !ok {
		return
	}
	delete(m.connToUser, connID)
	m.removeFromUserSet(userID, connID)

	for sessID := range m.connToSess[connID] {
		if conns, ok := m.sessToConns[sessID]; ok {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(m.sessToConns, sessID)
			}
		}
	}
	delete(m.connToSess, connID)
}

func (m *Manager) removeFromUserSet(userID, connID string) {
	if conns, ok := m.userToConns[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(m.userToConns, userID)
		}
	}
}

// AddUserToSession adds connId's membership in sessionId. Returns false if
// connId is not a registered connection.
func (m *Manager) AddUserToSession(connID, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connToUser[connID]; !ok {
		return false
	}

	if _, ok := m.connToSess[connID]; !ok {
		m.connToSess[connID] = make(map[string]struct{})
	}
	m.connToSess[connID][sessionID] = struct{}{}

	if _, ok := m.sessToConns[sessionID]; !ok {
		m.sessToConns[sessionID] = make(map[string]struct{})
	}
	m.sessToConns[sessionID][connID] = struct{}{}
	return true
}

// RemoveUserFromSession removes connId's membership in sessionId. Returns
// false if the membership did not exist.
func (m *Manager) RemoveUserFromSession(connID, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.connToSess[connID]
	if !ok {
		return false
	}
	if _, ok := conns[sessionID]; !ok {
		return false
	}
	delete(conns, sessionID)
	if len(conns) == 0 {
		delete(m.connToSess, connID)
	}

	if sessConns, ok := m.sessToConns[sessionID]; ok {
		delete(sessConns, connID)
		if len(sessConns) == 0 {
			delete(m.sessToConns, sessionID)
		}
	}
	return true
}

// GetUserId returns the user a connection belongs to, and whether it is
// registered at all.
func (m *Manager) GetUserId(connID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	userID, ok := m.connToUser[connID]
	return userID, ok
}

// GetConnectionIds returns every connection registered under userId.
func (m *Manager) GetConnectionIds(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return keys(m.userToConns[userID])
}

// IsUserOnline reports whether userId has at least one live connection.
func (m *Manager) IsUserOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.userToConns[userID]) > 0
}

// GetUserSessions returns every session connId currently belongs to.
func (m *Manager) GetUserSessions(connID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return keys(m.connToSess[connID])
}

// GetSessionUsers returns every connection currently a member of sessionId.
func (m *Manager) GetSessionUsers(sessionID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return keys(m.sessToConns[sessionID])
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
