package appointments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veritahealth/clinic-platform/internal/schedule"
	"github.com/veritahealth/clinic-platform/pkg/logging"
)

// fakeStore enforces the same slot uniqueness the partial index does,
// under a mutex, so race behavior can be exercised without a database.
type fakeStore struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*Appointment
	slots map[string]uuid.UUID

	existsErr error
	insertErr error
	beginErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:  make(map[uuid.UUID]*Appointment),
		slots: make(map[string]uuid.UUID),
	}
}

func slotKey(clinicID, staffID uuid.UUID, date time.Time, start int) string {
	return fmt.Sprintf("%s/%s/%s/%d", clinicID, staffID, date.Format("2006-01-02"), start)
}

// fakeTx satisfies pgx.Tx by embedding; only the lifecycle methods the
// service calls are overridden.
type fakeTx struct {
	pgx.Tx
	commitErr error
}

func (tx *fakeTx) Commit(context.Context) error   { return tx.commitErr }
func (tx *fakeTx) Rollback(context.Context) error { return nil }

func (f *fakeStore) Begin(ctx context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &fakeTx{}, nil
}

func (f *fakeStore) ExistsAt(ctx context.Context, clinicID, staffID uuid.UUID, date time.Time, start int) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, taken := f.slots[slotKey(clinicID, staffID, date, start)]
	return taken, nil
}

func (f *fakeStore) InsertIfFree(ctx context.Context, q Querier, appt Appointment) (*Appointment, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := slotKey(appt.ClinicID, appt.StaffID, appt.Date, appt.StartMinutes)
	if _, taken := f.slots[key]; taken {
		return nil, fmt.Errorf("%w: staff %s", ErrSlotConflict, appt.StaffID)
	}
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	appt.Status = StatusBooked
	appt.CreatedAt = time.Now().UTC()
	f.slots[key] = appt.ID
	f.byID[appt.ID] = &appt
	return &appt, nil
}

func (f *fakeStore) GetForClinic(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appt, ok := f.byID[id]
	if !ok || appt.ClinicID != clinicID {
		return nil, fmt.Errorf("%w: appointment %s", ErrNotFound, id)
	}
	copied := *appt
	return &copied, nil
}

func (f *fakeStore) MarkRescheduled(ctx context.Context, q Querier, clinicID, id, supersededBy uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	appt, ok := f.byID[id]
	if !ok || appt.ClinicID != clinicID || appt.Status != StatusBooked {
		return fmt.Errorf("%w: appointment %s not in %s state", ErrNotFound, id, StatusBooked)
	}
	appt.Status = StatusRescheduled
	appt.SupersededBy = &supersededBy
	delete(f.slots, slotKey(appt.ClinicID, appt.StaffID, appt.Date, appt.StartMinutes))
	return nil
}

func (f *fakeStore) Cancel(ctx context.Context, clinicID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	appt, ok := f.byID[id]
	if !ok || appt.ClinicID != clinicID || appt.Status != StatusBooked {
		return fmt.Errorf("%w: appointment %s not in %s state", ErrNotFound, id, StatusBooked)
	}
	appt.Status = StatusCancelled
	delete(f.slots, slotKey(appt.ClinicID, appt.StaffID, appt.Date, appt.StartMinutes))
	return nil
}

func newTestService(store *fakeStore) *Service {
	return NewService(store, nil, logging.New("error"))
}

func reserveReq(clinicID, staffID uuid.UUID) ReserveRequest {
	return ReserveRequest{
		ClinicID:     clinicID,
		StaffID:      staffID,
		PatientRef:   "patient-1",
		Date:         time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		StartMinutes: 600,
		EndMinutes:   630,
	}
}

func TestReserveSlot(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	appt, err := svc.ReserveSlot(context.Background(), reserveReq(uuid.New(), uuid.New()))
	if err != nil {
		t.Fatalf("ReserveSlot: %v", err)
	}
	if appt.Status != StatusBooked {
		t.Errorf("status = %s, want booked", appt.Status)
	}
}

func TestReserveSlotValidation(t *testing.T) {
	svc := newTestService(newFakeStore())

	cases := []struct {
		name   string
		mutate func(*ReserveRequest)
	}{
		{"missing staff", func(r *ReserveRequest) { r.StaffID = uuid.Nil }},
		{"inverted window", func(r *ReserveRequest) { r.StartMinutes, r.EndMinutes = 630, 600 }},
		{"zero length", func(r *ReserveRequest) { r.EndMinutes = r.StartMinutes }},
		{"past midnight", func(r *ReserveRequest) { r.StartMinutes, r.EndMinutes = 1430, 1470 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := reserveReq(uuid.New(), uuid.New())
			tc.mutate(&req)
			if _, err := svc.ReserveSlot(context.Background(), req); !errors.Is(err, schedule.ErrInvalidRange) {
				t.Fatalf("err = %v, want ErrInvalidRange", err)
			}
		})
	}
}

func TestReserveSlotTakenSlotConflicts(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	req := reserveReq(uuid.New(), uuid.New())

	if _, err := svc.ReserveSlot(context.Background(), req); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if _, err := svc.ReserveSlot(context.Background(), req); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("err = %v, want ErrSlotConflict", err)
	}
}

// Concurrent reservations for one (staff, date, start) must resolve to
// exactly one booking, everyone else seeing a slot conflict.
func TestReserveSlotConcurrent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	req := reserveReq(uuid.New(), uuid.New())

	const callers = 32
	errs := make(chan error, callers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < callers; i++ {
		go func() {
			start.Wait()
			_, err := svc.ReserveSlot(context.Background(), req)
			errs <- err
		}()
	}
	start.Done()

	var booked, conflicted int
	for i := 0; i < callers; i++ {
		switch err := <-errs; {
		case err == nil:
			booked++
		case errors.Is(err, ErrSlotConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if booked != 1 || conflicted != callers-1 {
		t.Fatalf("booked = %d, conflicted = %d; want 1 and %d", booked, conflicted, callers-1)
	}
}

func TestReserveSlotPrecheckFailure(t *testing.T) {
	store := newFakeStore()
	store.existsErr = errors.New("connection refused")
	svc := newTestService(store)

	_, err := svc.ReserveSlot(context.Background(), reserveReq(uuid.New(), uuid.New()))
	if err == nil || errors.Is(err, ErrSlotConflict) {
		t.Fatalf("err = %v, want the store error passed through", err)
	}
}

func TestReschedule(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	clinicID, staffID := uuid.New(), uuid.New()

	original, err := svc.ReserveSlot(context.Background(), reserveReq(clinicID, staffID))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	newDate := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
	replacement, err := svc.Reschedule(context.Background(), clinicID, original.ID, newDate, 540, 570)
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if replacement.ID == original.ID {
		t.Error("replacement must be a new row")
	}
	if replacement.StaffID != staffID || replacement.PatientRef != original.PatientRef {
		t.Errorf("replacement lost identity: %+v", replacement)
	}

	moved, err := store.GetForClinic(context.Background(), clinicID, original.ID)
	if err != nil {
		t.Fatalf("load original: %v", err)
	}
	if moved.Status != StatusRescheduled {
		t.Errorf("original status = %s, want rescheduled", moved.Status)
	}
	if moved.SupersededBy == nil || *moved.SupersededBy != replacement.ID {
		t.Errorf("superseded_by = %v, want %s", moved.SupersededBy, replacement.ID)
	}
}

func TestRescheduleIntoTakenSlot(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	clinicID, staffID := uuid.New(), uuid.New()

	first, err := svc.ReserveSlot(context.Background(), reserveReq(clinicID, staffID))
	if err != nil {
		t.Fatalf("reserve first: %v", err)
	}
	second := reserveReq(clinicID, staffID)
	second.StartMinutes, second.EndMinutes = 660, 690
	if _, err := svc.ReserveSlot(context.Background(), second); err != nil {
		t.Fatalf("reserve second: %v", err)
	}

	// Moving the first appointment onto the second's slot must fail and
	// leave the first untouched.
	_, err = svc.Reschedule(context.Background(), clinicID, first.ID, second.Date, 660, 690)
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("err = %v, want ErrSlotConflict", err)
	}
	kept, err := store.GetForClinic(context.Background(), clinicID, first.ID)
	if err != nil {
		t.Fatalf("load original: %v", err)
	}
	if kept.Status != StatusBooked {
		t.Errorf("original status = %s, want booked", kept.Status)
	}
}

func TestRescheduleNotBooked(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	clinicID, staffID := uuid.New(), uuid.New()

	original, err := svc.ReserveSlot(context.Background(), reserveReq(clinicID, staffID))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	newDate := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
	if _, err = svc.Reschedule(context.Background(), clinicID, original.ID, newDate, 540, 570); err != nil {
		t.Fatalf("first reschedule: %v", err)
	}

	// The original is now terminal; a second reschedule of it must fail.
	_, err = svc.Reschedule(context.Background(), clinicID, original.ID, newDate, 600, 630)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCancelReleasesSlot(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	clinicID, staffID := uuid.New(), uuid.New()
	req := reserveReq(clinicID, staffID)

	appt, err := svc.ReserveSlot(context.Background(), req)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := svc.Cancel(context.Background(), clinicID, appt.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	// The slot is free again for a new booking.
	if _, err := svc.ReserveSlot(context.Background(), req); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
	// A second cancel of the same row is rejected.
	if err := svc.Cancel(context.Background(), clinicID, appt.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRescheduleUnknownAppointment(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.Reschedule(context.Background(), uuid.New(), uuid.New(),
		time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC), 540, 570)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRescheduleInvertedWindow(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.Reschedule(context.Background(), uuid.New(), uuid.New(),
		time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC), 570, 540)
	if !errors.Is(err, schedule.ErrInvalidRange) {
		t.Fatalf("err = %v, want ErrInvalidRange", err)
	}
}
