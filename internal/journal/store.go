// Package journal records every appointment mutation attempt (create,
// reschedule, cancel) in Postgres. Recording is best-effort.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-booking/internal/calendar"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxReasonLength  = 500
)

// Entry is one mutation attempt.
type Entry struct {
	ID            uuid.UUID          `json:"id"`
	Kind          string             `json:"kind"`
	AppointmentID int                `json:"appointmentId,omitempty"`
	DoctorID      int                `json:"doctorId,omitempty"`
	SlotDate      calendar.Date      `json:"slotDate"`
	SlotTime      calendar.TimeOfDay `json:"slotTime"`
	Succeeded     bool               `json:"succeeded"`
	FailureReason string             `json:"failureReason,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Reader lists entries for one appointment, newest first.
type Reader interface {
	ListForAppointment(ctx context.Context, appointmentID, limit int) ([]Entry, error)
}

// Journal records and lists entries.
type Journal interface {
	Recorder
	Reader
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store is the Postgres journal.
type Store struct {
	pool rowQuerier
	now  func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("journal: pgx pool required")
	}
	return &Store{pool: pool, now: time.Now}
}

func newStoreWithExec(exec rowQuerier) *Store {
	if exec == nil {
		panic("journal: exec required")
	}
	return &Store{pool: exec, now: time.Now}
}

// Record inserts entry, assigning an id and timestamp when missing.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	reason := entry.FailureReason
	if len([]rune(reason)) > maxReasonLength {
		reason = string([]rune(reason)[:maxReasonLength])
	}
	query := `
		INSERT INTO booking_submissions (id, kind, appointment_id, doctor_id, slot_date, slot_time, succeeded, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		entry.ID,
		entry.Kind,
		nullableInt(entry.AppointmentID),
		nullableInt(entry.DoctorID),
		nullableString(entry.SlotDate.IsZero(), entry.SlotDate.String()),
		nullableString(entry.SlotTime.IsZero(), entry.SlotTime.String()),
		entry.Succeeded,
		reason,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("journal: insert submission: %w", err)
	}
	return nil
}

// ListForAppointment returns the newest entries for appointmentID.
func (s *Store) ListForAppointment(ctx context.Context, appointmentID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := `
		SELECT id::text, kind, appointment_id, doctor_id, slot_date::text, slot_time, succeeded, failure_reason, created_at
		FROM booking_submissions
		WHERE appointment_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, appointmentID, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list submissions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e             Entry
			id            string
			apptID, docID *int32
			date, clock   *string
		)
		if err := rows.Scan(&id, &e.Kind, &apptID, &docID, &date, &clock, &e.Succeeded, &e.FailureReason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan submission: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("journal: parse submission id: %w", err)
		}
		if apptID != nil {
			e.AppointmentID = int(*apptID)
		}
		if docID != nil {
			e.DoctorID = int(*docID)
		}
		if date != nil && *date != "" {
			if e.SlotDate, err = calendar.ParseDate(*date); err != nil {
				return nil, fmt.Errorf("journal: parse slot date: %w", err)
			}
		}
		if clock != nil && *clock != "" {
			if e.SlotTime, err = calendar.ParseTimeOfDay(*clock); err != nil {
				return nil, fmt.Errorf("journal: parse slot time: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: list submissions: %w", err)
	}
	return entries, nil
}

func nullableInt(v int) *int32 {
	if v <= 0 {
		return nil
	}
	n := int32(v)
	return &n
}

func nullableString(empty bool, v string) *string {
	if empty {
		return nil
	}
	return &v
}

// NopRecorder discards entries. It is used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Entry) error { return nil }

func (NopRecorder) ListForAppointment(context.Context, int, int) ([]Entry, error) {
	return []Entry{}, nil
}
