// Package session keeps the server-held wizard of each open booking or
// reschedule screen, scoped to the bearer token that opened it.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// ErrNotFound is returned for unknown, expired, or foreign sessions.
var ErrNotFound = errors.New("session: not found")

const (
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Session is one open wizard.
type Session struct {
	ID            string
	Kind          booking.Kind
	AppointmentID int
	Wizard        *booking.Wizard
	Events        *Hub
	CreatedAt     time.Time

	owner       string
	lastSeen    time.Time
	unsubscribe func()
}

// Store holds sessions in memory with idle expiry.
type Store struct {
	ttl     time.Duration
	now     func() time.Time
	logger  *logging.Logger
	metrics *metrics.BookingMetrics

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore(ttl time.Duration, logger *logging.Logger, m *metrics.BookingMetrics) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{ttl: ttl, now: time.Now, logger: logger, metrics: m, sessions: make(map[string]*Session)}
}

// Fingerprint derives the owner key of a bearer token.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create registers w for the token's owner and wires its snapshots to the
// session's event hub.
func (s *Store) Create(ownerToken string, w *booking.Wizard, appointmentID int) *Session {
	now := s.now()
	sess := &Session{
		ID:            uuid.NewString(),
		Kind:          w.Kind(),
		AppointmentID: appointmentID,
		Wizard:        w,
		Events:        NewHub(),
		CreatedAt:     now,
		owner:         Fingerprint(ownerToken),
		lastSeen:      now,
	}
	sess.unsubscribe = w.Subscribe(sess.Events.Publish)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SetActiveSessions(n)
	s.logger.Info("session opened", "session_id", sess.ID, "kind", sess.Kind, "appointment_id", appointmentID)
	return sess
}

// Get returns the session when it exists, is fresh, and belongs to ownerToken.
func (s *Store) Get(id, ownerToken string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.owner != Fingerprint(ownerToken) {
		return nil, ErrNotFound
	}
	now := s.now()
	if now.Sub(sess.lastSeen) >= s.ttl {
		return nil, ErrNotFound
	}
	sess.lastSeen = now
	return sess, nil
}

// Delete closes the session.
func (s *Store) Delete(id, ownerToken string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok || sess.owner != Fingerprint(ownerToken) {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	s.close(sess)
	s.metrics.SetActiveSessions(n)
	return nil
}

// Len reports the number of sessions held, including expired ones not yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops idle sessions and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	var expired []*Session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) >= s.ttl {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range expired {
		s.close(sess)
	}
	if len(expired) > 0 {
		s.metrics.SetActiveSessions(n)
		s.logger.Debug("expired sessions swept", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps on every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) close(sess *Session) {
	if sess.unsubscribe != nil {
		sess.unsubscribe()
	}
	sess.Events.Close()
}
