package slots

import (
	"sync"

	"github.com/wolfman30/clinic-booking/internal/calendar"
)

// Ticket identifies one slot fetch.
type Ticket struct {
	Generation uint64
	DoctorID   int
	Date       calendar.Date
}

// Tracker orders slot fetches: only the most recently begun fetch may apply
// its result. Every selection change bumps the generation.
type Tracker struct {
	mu         sync.Mutex
	generation uint64
}

// Begin starts a fetch for the pair and supersedes every earlier ticket.
func (t *Tracker) Begin(doctorID int, date calendar.Date) Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	return Ticket{Generation: t.generation, DoctorID: doctorID, Date: date}
}

// Invalidate supersedes every outstanding ticket.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
}

// IsCurrent reports whether ticket's result may still be applied.
func (t *Tracker) IsCurrent(ticket Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ticket.Generation == t.generation
}

func (t *Tracker) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}
