package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fieldserve/booking-core/internal/model"
	"github.com/fieldserve/booking-core/internal/repository"
	"github.com/fieldserve/booking-core/pkg/reqctx"
)

func bookingFilterForTech(id uuid.UUID) repository.BookingFilter {
	return repository.BookingFilter{TechnicianID: &id}
}

type bookingFixture struct {
	e          *env
	businessID uuid.UUID
	locationID uuid.UUID
	svc        *model.BookableService
	tech       *model.Technician
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	e := newEnv(t)
	e.setNow(testDay.Add(6 * time.Hour))

	businessID := uuid.New()
	locationID := uuid.New()
	e.seedOpenAllWeek(t, businessID, locationID)

	return &bookingFixture{
		e:          e,
		businessID: businessID,
		locationID: locationID,
		svc:        e.seedService(t, businessID, "AC repair", 120),
		tech:       e.seedTechnician(t, businessID, locationID, "Sarah", 0),
	}
}

func (f *bookingFixture) createRequest(start time.Time) CreateBookingRequest {
	return CreateBookingRequest{
		ServiceID:      f.svc.ID,
		TechnicianID:   f.tech.ID,
		StartsAt:       start,
		CustomerName:   "Jane Dow",
		CustomerPhone:  "+1555123",
		IdempotencyKey: uuid.NewString(),
	}
}

func TestBookingCreate_PendingHoldsTheSlot(t *testing.T) {
	f := newBookingFixture(t)
	ctx := reqctx.WithActor(context.Background(), "dispatcher-1")

	start := testDay.Add(10 * time.Hour)
	b, err := f.e.booking.Create(ctx, f.businessID, f.createRequest(start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != model.BookingStatusPending {
		t.Fatalf("new booking must be pending, got %s", b.Status)
	}
	if b.ScheduledAt == nil || !b.ScheduledAt.Equal(start) {
		t.Fatalf("pending booking must hold the requested time, got %v", b.ScheduledAt)
	}
	if b.ScheduledEndAt == nil || !b.ScheduledEndAt.Equal(start.Add(2*time.Hour)) {
		t.Fatalf("derived end must be start+duration, got %v", b.ScheduledEndAt)
	}

	// Exactly one audit event with the actor from context.
	events, err := f.e.events.ListByBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one creation event, got %d", len(events))
	}
	if events[0].NewStatus != model.BookingStatusPending || events[0].Actor != "dispatcher-1" {
		t.Fatalf("unexpected creation event: %+v", events[0])
	}

	// A second customer hits the same window while the first is pending.
	_, err = f.e.booking.Create(ctx, f.businessID, f.createRequest(start.Add(time.Hour)))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("overlapping request must fail with ErrSlotUnavailable, got %v", err)
	}
}

func TestBookingCreate_Idempotency(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	req := f.createRequest(testDay.Add(10 * time.Hour))

	first, err := f.e.booking.Create(ctx, f.businessID, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Same key, same payload: replay of the original booking, no error.
	second, err := f.e.booking.Create(ctx, f.businessID, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay must return the original booking, got %s and %s", first.ID, second.ID)
	}

	// Same key, different payload: conflict.
	changed := req
	changed.CustomerName = "Someone Else"
	if _, err := f.e.booking.Create(ctx, f.businessID, changed); !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}

	// Exactly one booking row exists.
	var count int64
	if err := f.e.db.Model(&model.Booking{}).Count(&count).Error; err != nil {
		t.Fatalf("count bookings: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single booking, got %d", count)
	}
}

func TestBookingCreate_Validation(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	req := f.createRequest(testDay.Add(10 * time.Hour))
	req.IdempotencyKey = ""
	if _, err := f.e.booking.Create(ctx, f.businessID, req); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing idempotency key must fail validation, got %v", err)
	}

	req = f.createRequest(testDay.Add(10 * time.Hour))
	req.CustomerName = ""
	if _, err := f.e.booking.Create(ctx, f.businessID, req); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing customer name must fail validation, got %v", err)
	}

	req = f.createRequest(testDay.Add(10 * time.Hour))
	req.ServiceID = uuid.New() // unknown service
	if _, err := f.e.booking.Create(ctx, f.businessID, req); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown service must fail with ErrNotFound, got %v", err)
	}

	// The clock is pinned at 06:00; a start earlier than that is in the
	// past even though the service has no lead time configured.
	req = f.createRequest(testDay.Add(5 * time.Hour))
	if _, err := f.e.booking.Create(ctx, f.businessID, req); !errors.Is(err, ErrValidation) {
		t.Fatalf("start in the past must fail validation, got %v", err)
	}
}

func TestBookingLifecycle(t *testing.T) {
	f := newBookingFixture(t)
	ctx := reqctx.WithActor(context.Background(), "dispatcher-1")

	start := testDay.Add(10 * time.Hour)
	b, err := f.e.booking.Create(ctx, f.businessID, f.createRequest(start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Confirm onto a different time the same day.
	confirmedStart := testDay.Add(14 * time.Hour)
	b, err = f.e.booking.Confirm(ctx, f.businessID, b.ID, confirmedStart, nil)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if b.Status != model.BookingStatusConfirmed || !b.ScheduledAt.Equal(confirmedStart) {
		t.Fatalf("unexpected state after confirm: %s at %v", b.Status, b.ScheduledAt)
	}

	if b, err = f.e.booking.Start(ctx, f.businessID, b.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if b.Status != model.BookingStatusInProgress {
		t.Fatalf("expected in_progress, got %s", b.Status)
	}

	// Completing before the scheduled start is rejected.
	if _, err := f.e.booking.Complete(ctx, f.businessID, b.ID, confirmedStart.Add(-time.Hour)); !errors.Is(err, ErrValidation) {
		t.Fatalf("completion before start must fail validation, got %v", err)
	}

	doneAt := confirmedStart.Add(2 * time.Hour)
	if b, err = f.e.booking.Complete(ctx, f.businessID, b.ID, doneAt); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if b.Status != model.BookingStatusCompleted || b.CompletedAt == nil {
		t.Fatalf("unexpected state after complete: %+v", b)
	}

	// Terminal: no further transitions.
	if _, err := f.e.booking.Cancel(ctx, f.businessID, b.ID, "too late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancelling a completed booking must fail, got %v", err)
	}

	// Four audit events: created, confirmed, started, completed.
	events, err := f.e.events.ListByBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	wantNew := []model.BookingStatus{
		model.BookingStatusPending,
		model.BookingStatusConfirmed,
		model.BookingStatusInProgress,
		model.BookingStatusCompleted,
	}
	for i, want := range wantNew {
		if events[i].NewStatus != want {
			t.Fatalf("event %d: expected %s, got %s", i, want, events[i].NewStatus)
		}
	}
}

func TestBookingConfirm_Validation(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	b, err := f.e.booking.Create(ctx, f.businessID, f.createRequest(testDay.Add(10*time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// scheduled_at must not precede requested_at.
	if _, err := f.e.booking.Confirm(ctx, f.businessID, b.ID, b.RequestedAt.Add(-time.Hour), nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	// Confirming a slot held by another technician's booking is a conflict.
	other := f.e.seedTechnician(t, f.businessID, f.locationID, "Mike", 0)
	f.e.seedBooking(t, f.businessID, f.svc, other, model.BookingStatusConfirmed, testDay.Add(14*time.Hour))

	if _, err := f.e.booking.Confirm(ctx, f.businessID, b.ID, testDay.Add(15*time.Hour), &other.ID); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestBookingConfirm_RevalidatesAllAssignedTechnicians(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	// The assist already holds a confirmed 14:00-16:00 job.
	assist := f.e.seedTechnician(t, f.businessID, f.locationID, "Mike", 0)
	f.e.seedBooking(t, f.businessID, f.svc, assist, model.BookingStatusConfirmed, testDay.Add(14*time.Hour))

	req := f.createRequest(testDay.Add(10 * time.Hour))
	req.AdditionalTechnicianIDs = []uuid.UUID{assist.ID}
	b, err := f.e.booking.Create(ctx, f.businessID, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Moving the whole crew onto 15:00 collides with the assist's job,
	// even though the primary technician is free there.
	if _, err := f.e.booking.Confirm(ctx, f.businessID, b.ID, testDay.Add(15*time.Hour), nil); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("assist conflict must fail the confirm, got %v", err)
	}

	// A clear window confirms and keeps both assignment rows.
	b, err = f.e.booking.Confirm(ctx, f.businessID, b.ID, testDay.Add(11*time.Hour), nil)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	rows, err := f.e.bookings.ListTechnicians(ctx, b.ID)
	if err != nil {
		t.Fatalf("list technicians: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("crew must stay assigned, got %+v", rows)
	}
}

func TestBookingConfirm_PromotesAssistToPrimary(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	mike := f.e.seedTechnician(t, f.businessID, f.locationID, "Mike", 0)

	req := f.createRequest(testDay.Add(10 * time.Hour))
	req.AdditionalTechnicianIDs = []uuid.UUID{mike.ID}
	b, err := f.e.booking.Create(ctx, f.businessID, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The new primary already has an assist row on this booking.
	b, err = f.e.booking.Confirm(ctx, f.businessID, b.ID, testDay.Add(10*time.Hour), &mike.ID)
	if err != nil {
		t.Fatalf("promoting the assist must succeed: %v", err)
	}
	if b.PrimaryTechnicianID != mike.ID {
		t.Fatalf("primary technician must change, got %s", b.PrimaryTechnicianID)
	}

	rows, err := f.e.bookings.ListTechnicians(ctx, b.ID)
	if err != nil {
		t.Fatalf("list technicians: %v", err)
	}
	if len(rows) != 1 || rows[0].TechnicianID != mike.ID || rows[0].Role != "primary" {
		t.Fatalf("expected a single primary row for the promoted assist, got %+v", rows)
	}
}

func TestBookingConfirm_ReassignsPrimaryTechnician(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	mike := f.e.seedTechnician(t, f.businessID, f.locationID, "Mike", 0)

	b, err := f.e.booking.Create(ctx, f.businessID, f.createRequest(testDay.Add(10*time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	b, err = f.e.booking.Confirm(ctx, f.businessID, b.ID, testDay.Add(10*time.Hour), &mike.ID)
	if err != nil {
		t.Fatalf("confirm with reassignment: %v", err)
	}
	if b.PrimaryTechnicianID != mike.ID {
		t.Fatalf("primary technician must change, got %s", b.PrimaryTechnicianID)
	}

	rows, err := f.e.bookings.ListTechnicians(ctx, b.ID)
	if err != nil {
		t.Fatalf("list technicians: %v", err)
	}
	if len(rows) != 1 || rows[0].TechnicianID != mike.ID || rows[0].Role != "primary" {
		t.Fatalf("assignment rows must follow the reassignment, got %+v", rows)
	}

	// The original technician is free again at the old time.
	ids, err := f.e.engine.FindAvailableTechniciansAt(ctx, f.businessID, f.svc.ID, testDay.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("find available: %v", err)
	}
	for _, id := range ids {
		if id == f.tech.ID {
			return
		}
	}
	t.Fatalf("original technician must be released, free list: %v", ids)
}

func TestBookingCancel_FreesTheSlotImmediately(t *testing.T) {
	f := newBookingFixture(t)
	ctx := reqctx.WithActor(context.Background(), "customer")

	start := testDay.Add(10 * time.Hour)
	b, err := f.e.booking.Create(ctx, f.businessID, f.createRequest(start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	b, err = f.e.booking.Cancel(ctx, f.businessID, b.ID, "changed plans")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if b.Status != model.BookingStatusCancelled || b.CancelReason != "changed plans" || b.CancelledBy != "customer" {
		t.Fatalf("unexpected state after cancel: %+v", b)
	}

	// The very next request for the same window succeeds.
	if _, err := f.e.booking.Create(ctx, f.businessID, f.createRequest(start)); err != nil {
		t.Fatalf("slot must be free right after cancellation: %v", err)
	}
}

func TestBookingNoShow(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	b, err := f.e.booking.Create(ctx, f.businessID, f.createRequest(testDay.Add(10*time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// no_show is only reachable from confirmed.
	if _, err := f.e.booking.NoShow(ctx, f.businessID, b.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("no-show from pending must fail, got %v", err)
	}

	if _, err := f.e.booking.Confirm(ctx, f.businessID, b.ID, testDay.Add(10*time.Hour), nil); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	b, err = f.e.booking.NoShow(ctx, f.businessID, b.ID)
	if err != nil {
		t.Fatalf("no-show: %v", err)
	}
	if b.Status != model.BookingStatusNoShow {
		t.Fatalf("expected no_show, got %s", b.Status)
	}
}

func TestBookingList_FiltersAndPaginates(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		start := testDay.AddDate(0, 0, i).Add(10 * time.Hour)
		if _, err := f.e.booking.Create(ctx, f.businessID, f.createRequest(start)); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	page, err := f.e.booking.List(ctx, f.businessID, bookingFilterForTech(f.tech.ID), 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 || page.Total != 3 || !page.HasNext {
		t.Fatalf("unexpected page: %d items, total %d, hasNext %v", len(page.Items), page.Total, page.HasNext)
	}

	// Foreign tenant sees nothing.
	other, err := f.e.booking.List(ctx, uuid.New(), bookingFilterForTech(f.tech.ID), 1, 10)
	if err != nil {
		t.Fatalf("list foreign tenant: %v", err)
	}
	if len(other.Items) != 0 {
		t.Fatalf("tenant isolation broken: %d items", len(other.Items))
	}
}
