package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fieldserve/booking-core/internal/model"
	"github.com/fieldserve/booking-core/pkg/reqctx"
)

func TestTimeOffLifecycle(t *testing.T) {
	e := newEnv(t)
	e.setNow(testDay.Add(6 * time.Hour))
	ctx := reqctx.WithActor(context.Background(), "manager-7")

	businessID := uuid.New()
	locationID := uuid.New()
	tech := e.seedTechnician(t, businessID, locationID, "Sarah", 0)

	to, err := e.timeOffSvc.Request(ctx, businessID, TimeOffRequest{
		TechnicianID: tech.ID,
		StartsAt:     testDay.AddDate(0, 0, 7),
		EndsAt:       testDay.AddDate(0, 0, 9),
		Type:         model.TimeOffTypeVacation,
		Reason:       "family trip",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if to.Status != model.TimeOffStatusPending {
		t.Fatalf("new request must be pending, got %s", to.Status)
	}

	approved, err := e.timeOffSvc.Approve(ctx, businessID, to.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != model.TimeOffStatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}
	if approved.DecidedBy != "manager-7" || approved.DecidedAt == nil {
		t.Fatalf("decision metadata missing: %+v", approved)
	}

	// Deciding twice is an invalid transition.
	if _, err := e.timeOffSvc.Deny(ctx, businessID, to.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("re-deciding must fail, got %v", err)
	}
}

func TestTimeOffApprove_RejectsOverlap(t *testing.T) {
	e := newEnv(t)
	e.setNow(testDay.Add(6 * time.Hour))
	ctx := context.Background()

	businessID := uuid.New()
	locationID := uuid.New()
	tech := e.seedTechnician(t, businessID, locationID, "Sarah", 0)

	first, err := e.timeOffSvc.Request(ctx, businessID, TimeOffRequest{
		TechnicianID: tech.ID,
		StartsAt:     testDay.AddDate(0, 0, 7),
		EndsAt:       testDay.AddDate(0, 0, 10),
		Type:         model.TimeOffTypeVacation,
	})
	if err != nil {
		t.Fatalf("first request: %v", err)
	}

	// A second pending request over the same window is fine to file...
	second, err := e.timeOffSvc.Request(ctx, businessID, TimeOffRequest{
		TechnicianID: tech.ID,
		StartsAt:     testDay.AddDate(0, 0, 9),
		EndsAt:       testDay.AddDate(0, 0, 12),
		Type:         model.TimeOffTypeSick,
	})
	if err != nil {
		t.Fatalf("second request: %v", err)
	}

	if _, err := e.timeOffSvc.Approve(ctx, businessID, first.ID); err != nil {
		t.Fatalf("approve first: %v", err)
	}

	// ...but approving it would create two overlapping approved intervals.
	if _, err := e.timeOffSvc.Approve(ctx, businessID, second.ID); !errors.Is(err, ErrTimeOffOverlap) {
		t.Fatalf("expected ErrTimeOffOverlap, got %v", err)
	}

	// A new request over the approved window is rejected up front.
	_, err = e.timeOffSvc.Request(ctx, businessID, TimeOffRequest{
		TechnicianID: tech.ID,
		StartsAt:     testDay.AddDate(0, 0, 8),
		EndsAt:       testDay.AddDate(0, 0, 9),
		Type:         model.TimeOffTypeTraining,
	})
	if !errors.Is(err, ErrTimeOffOverlap) {
		t.Fatalf("expected ErrTimeOffOverlap on request, got %v", err)
	}

	// Adjacent to the approved interval is fine: [start, end) math.
	if _, err := e.timeOffSvc.Request(ctx, businessID, TimeOffRequest{
		TechnicianID: tech.ID,
		StartsAt:     testDay.AddDate(0, 0, 10),
		EndsAt:       testDay.AddDate(0, 0, 11),
		Type:         model.TimeOffTypeTraining,
	}); err != nil {
		t.Fatalf("adjacent request must pass: %v", err)
	}
}

func TestTimeOffRequest_Validation(t *testing.T) {
	e := newEnv(t)
	e.setNow(testDay.Add(6 * time.Hour))
	ctx := context.Background()

	businessID := uuid.New()
	tech := e.seedTechnician(t, businessID, uuid.New(), "Sarah", 0)

	// Inverted interval.
	_, err := e.timeOffSvc.Request(ctx, businessID, TimeOffRequest{
		TechnicianID: tech.ID,
		StartsAt:     testDay.AddDate(0, 0, 9),
		EndsAt:       testDay.AddDate(0, 0, 7),
		Type:         model.TimeOffTypeVacation,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("inverted interval must fail validation, got %v", err)
	}

	// Unknown type.
	_, err = e.timeOffSvc.Request(ctx, businessID, TimeOffRequest{
		TechnicianID: tech.ID,
		StartsAt:     testDay.AddDate(0, 0, 7),
		EndsAt:       testDay.AddDate(0, 0, 9),
		Type:         "sabbatical",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown type must fail validation, got %v", err)
	}

	// Unknown technician.
	_, err = e.timeOffSvc.Request(ctx, businessID, TimeOffRequest{
		TechnicianID: uuid.New(),
		StartsAt:     testDay.AddDate(0, 0, 7),
		EndsAt:       testDay.AddDate(0, 0, 9),
		Type:         model.TimeOffTypeVacation,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown technician must fail with ErrNotFound, got %v", err)
	}
}
