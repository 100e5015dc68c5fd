package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/calendar"
	"github.com/wolfman30/clinic-booking/internal/clinicapi"
	"github.com/wolfman30/clinic-booking/internal/slots"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

type emptyCatalog struct{}

func (emptyCatalog) LoadSpecialties(context.Context) ([]clinicapi.Specialty, error) {
	return []clinicapi.Specialty{}, nil
}

func (emptyCatalog) LoadDoctors(context.Context, int) ([]clinicapi.Doctor, error) {
	return []clinicapi.Doctor{}, nil
}

func (emptyCatalog) LoadServices(context.Context) ([]clinicapi.Service, error) {
	return []clinicapi.Service{}, nil
}

type idleResolver struct{}

func (idleResolver) Resolve(_ context.Context, doctorID int, date calendar.Date) slots.Result {
	return slots.Result{DoctorID: doctorID, Date: date, State: slots.StateNoShift}
}

func (idleResolver) UpcomingDates(context.Context, int) ([]calendar.Date, error) { return nil, nil }

func (idleResolver) Today() calendar.Date { return calendar.NewDate(2025, time.March, 1) }

type noopSubmitter struct{}

func (noopSubmitter) Kind() booking.Kind { return booking.KindCreate }

func (noopSubmitter) Submit(context.Context, booking.Selection) (booking.Receipt, error) {
	return booking.Receipt{}, nil
}

func newWizard() *booking.Wizard {
	return booking.NewWizard(emptyCatalog{}, idleResolver{}, noopSubmitter{}, logging.Discard())
}

func newTestStore(ttl time.Duration) (*Store, *time.Time) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	store := NewStore(ttl, logging.Discard(), nil)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestStore_CreateAndGet(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	sess := store.Create("token-a", newWizard(), 0)

	require.NotEmpty(t, sess.ID)
	assert.Equal(t, booking.KindCreate, sess.Kind)

	got, err := store.Get(sess.ID, "token-a")
	require.NoError(t, err)
	assert.Same(t, sess, got)
	assert.Equal(t, 1, store.Len())
}

func TestStore_ForeignTokenSeesNotFound(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	sess := store.Create("token-a", newWizard(), 0)

	_, err := store.Get(sess.ID, "token-b")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(sess.ID, "token-b"), ErrNotFound)
	assert.Equal(t, 1, store.Len())
}

func TestStore_IdleSessionsExpire(t *testing.T) {
	store, now := newTestStore(time.Minute)
	sess := store.Create("token-a", newWizard(), 0)

	*now = now.Add(50 * time.Second)
	_, err := store.Get(sess.ID, "token-a")
	require.NoError(t, err, "access refreshes the idle timer")

	*now = now.Add(50 * time.Second)
	_, err = store.Get(sess.ID, "token-a")
	require.NoError(t, err)

	*now = now.Add(time.Minute)
	_, err = store.Get(sess.ID, "token-a")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 0, store.Len())
}

func TestStore_DeleteClosesEvents(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	sess := store.Create("token-a", newWizard(), 0)
	events, cancel := sess.Events.Subscribe()
	defer cancel()

	require.NoError(t, store.Delete(sess.ID, "token-a"))

	_, open := <-events
	assert.False(t, open)
	_, err := store.Get(sess.ID, "token-a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_WizardChangesReachSubscribers(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	w := newWizard()
	sess := store.Create("token-a", w, 0)
	events, cancel := sess.Events.Subscribe()
	defer cancel()

	require.NoError(t, w.SetNotes("đau ngực"))

	select {
	case snap := <-events:
		assert.Equal(t, "đau ngực", snap.Selection.Notes)
	case <-time.After(time.Second):
		t.Fatal("expected a snapshot after the wizard changed")
	}
}

func TestStore_RunStopsWithContext(t *testing.T) {
	store := NewStore(time.Millisecond, logging.Discard(), nil)
	store.Create("token-a", newWizard(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("abc"), Fingerprint("abc"))
	assert.NotEqual(t, Fingerprint("abc"), Fingerprint("abd"))
	assert.Len(t, Fingerprint("abc"), 64)
}
