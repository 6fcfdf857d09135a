package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fieldserve/booking-core/internal/model"
)

func TestTechnicianCreateAndList(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	businessID := uuid.New()
	locationID := uuid.New()

	if _, err := e.roster.Create(ctx, businessID, CreateTechnicianRequest{LocationID: locationID}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing display name must fail validation, got %v", err)
	}
	if _, err := e.roster.Create(ctx, businessID, CreateTechnicianRequest{DisplayName: "Sarah"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing location must fail validation, got %v", err)
	}

	for _, name := range []string{"Sarah", "Mike", "Lena"} {
		if _, err := e.roster.Create(ctx, businessID, CreateTechnicianRequest{
			DisplayName: name,
			LocationID:  locationID,
		}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	page, err := e.roster.List(ctx, businessID, true, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 || page.Total != 3 || !page.HasNext {
		t.Fatalf("unexpected page: %d items, total %d", len(page.Items), page.Total)
	}
}

func TestTechnicianAssignSkill(t *testing.T) {
	e := newEnv(t)
	e.setNow(testDay.Add(6 * time.Hour))
	ctx := context.Background()

	businessID := uuid.New()
	locationID := uuid.New()
	e.seedOpenAllWeek(t, businessID, locationID)

	svc := e.seedService(t, businessID, "furnace install", 60)
	tech := e.seedTechnician(t, businessID, locationID, "Sarah", 0)
	skill := e.seedSkill(t, businessID, svc, nil, nil)

	// Without the skill the technician does not qualify.
	ids, err := e.engine.FindAvailableTechniciansAt(ctx, businessID, svc.ID, testDay.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("find available: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("unskilled technician must not qualify, got %v", ids)
	}

	if err := e.roster.AssignSkill(ctx, businessID, tech.ID, AssignSkillRequest{SkillID: skill.ID, Proficiency: 4}); err != nil {
		t.Fatalf("assign skill: %v", err)
	}

	ids, err = e.engine.FindAvailableTechniciansAt(ctx, businessID, svc.ID, testDay.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("find available: %v", err)
	}
	if len(ids) != 1 || ids[0] != tech.ID {
		t.Fatalf("skilled technician must qualify, got %v", ids)
	}
}

func TestUpsertHours(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	businessID := uuid.New()
	locationID := uuid.New()

	if _, err := e.roster.UpsertHours(ctx, businessID, model.BusinessHours{
		LocationID:  locationID,
		Weekday:     1,
		OpensAtMin:  10 * 60,
		ClosesAtMin: 9 * 60,
	}); !errors.Is(err, ErrValidation) {
		t.Fatalf("inverted window must fail validation, got %v", err)
	}

	saved, err := e.roster.UpsertHours(ctx, businessID, model.BusinessHours{
		ID:          uuid.New(),
		LocationID:  locationID,
		Weekday:     1,
		OpensAtMin:  9 * 60,
		ClosesAtMin: 17 * 60,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Same key updates in place.
	saved.OpensAtMin = 8 * 60
	if _, err := e.roster.UpsertHours(ctx, businessID, *saved); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	week, err := e.roster.ListHours(ctx, businessID, locationID)
	if err != nil {
		t.Fatalf("list hours: %v", err)
	}
	if len(week) != 1 || week[0].OpensAtMin != 8*60 {
		t.Fatalf("upsert must update the existing row, got %+v", week)
	}
}
