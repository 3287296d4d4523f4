// Package peer provides the client session domain entity.
package peer

import "time"

// Transport identifies how a session is connected.
type Transport string

const (
	TransportWebSocket Transport = "ws"
	TransportConnect   Transport = "connect"
)

// Session is one connected client (control UI, overlay or renderer).
// It carries no playback authority; it only receives state.
type Session struct {
	ID          string    // UUID
	Transport   Transport // Connection kind
	RemoteAddr  string    // Peer address as seen by the server
	ConnectedAt time.Time // Connect time
	LastSeenAt  time.Time // Last inbound message time
	Sent        uint64    // Messages delivered
}

// NewSession creates a new client session.
func NewSession(id string, transport Transport, remoteAddr string) *Session {
	now := time.Now()
	return &Session{
		ID:          id,
		Transport:   transport,
		RemoteAddr:  remoteAddr,
		ConnectedAt: now,
		LastSeenAt:  now,
	}
}

// Touch records inbound activity.
func (s *Session) Touch(at time.Time) {
	if at.After(s.LastSeenAt) {
		s.LastSeenAt = at
	}
}

// Delivered counts one outbound message.
func (s *Session) Delivered() {
	s.Sent++
}

// Idle reports whether nothing was heard from the session for at least d.
func (s *Session) Idle(now time.Time, d time.Duration) bool {
	return now.Sub(s.LastSeenAt) >= d
}
