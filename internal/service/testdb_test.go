package service

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fieldserve/booking-core/internal/model"
	"github.com/fieldserve/booking-core/internal/repository"
)

// openTestDB builds an in-memory sqlite with a minimal schema covering
// the query/update logic (sqlite-friendly types).
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Every pooled connection to :memory: is a separate database, so
	// the pool is pinned to one connection. This also makes any stray
	// non-transactional query inside a transaction block instead of
	// silently reading other state.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	schema := []string{
		`CREATE TABLE technicians (
			id TEXT PRIMARY KEY,
			business_id TEXT NOT NULL,
			display_name TEXT NOT NULL,
			email TEXT,
			phone TEXT,
			location_id TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			can_be_booked BOOLEAN NOT NULL DEFAULT 1,
			default_buffer_min INTEGER NOT NULL DEFAULT 0,
			max_daily_hours INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME,
			updated_at DATETIME
		);`,
		`CREATE TABLE skills (
			id TEXT PRIMARY KEY,
			business_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			requires_cert BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME,
			updated_at DATETIME
		);`,
		`CREATE TABLE technician_skills (
			technician_id TEXT NOT NULL,
			skill_id TEXT NOT NULL,
			proficiency INTEGER NOT NULL DEFAULT 1,
			certified_at DATETIME,
			cert_expires_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME,
			PRIMARY KEY (technician_id, skill_id)
		);`,
		`CREATE TABLE bookable_services (
			id TEXT PRIMARY KEY,
			business_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			duration_min INTEGER NOT NULL,
			min_technicians INTEGER NOT NULL DEFAULT 1,
			max_technicians INTEGER NOT NULL DEFAULT 1,
			lead_time_hours INTEGER NOT NULL DEFAULT 0,
			max_advance_days INTEGER NOT NULL DEFAULT 0,
			allow_outside_hours BOOLEAN NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME,
			updated_at DATETIME
		);`,
		`CREATE TABLE service_skills (
			service_id TEXT NOT NULL,
			skill_id TEXT NOT NULL,
			created_at DATETIME,
			PRIMARY KEY (service_id, skill_id)
		);`,
		`CREATE TABLE bookings (
			id TEXT PRIMARY KEY,
			business_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			duration_min INTEGER NOT NULL,
			primary_technician_id TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			customer_phone TEXT,
			customer_email TEXT,
			service_address TEXT,
			requested_at DATETIME NOT NULL,
			scheduled_at DATETIME,
			scheduled_end_at DATETIME,
			completed_at DATETIME,
			status TEXT NOT NULL,
			idempotency_key TEXT NOT NULL UNIQUE,
			request_hash TEXT NOT NULL,
			cancel_reason TEXT,
			cancelled_by TEXT,
			cancelled_at DATETIME,
			comment TEXT,
			created_at DATETIME,
			updated_at DATETIME
		);`,
		`CREATE TABLE booking_technicians (
			booking_id TEXT NOT NULL,
			technician_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'assist',
			created_at DATETIME,
			PRIMARY KEY (booking_id, technician_id)
		);`,
		`CREATE TABLE booking_events (
			id TEXT PRIMARY KEY,
			booking_id TEXT NOT NULL,
			business_id TEXT NOT NULL,
			old_status TEXT,
			new_status TEXT NOT NULL,
			diff TEXT,
			actor TEXT,
			created_at DATETIME
		);`,
		`CREATE TABLE time_offs (
			id TEXT PRIMARY KEY,
			technician_id TEXT NOT NULL,
			starts_at DATETIME NOT NULL,
			ends_at DATETIME NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			reason TEXT,
			decided_by TEXT,
			decided_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		);`,
		`CREATE TABLE business_hours (
			id TEXT PRIMARY KEY,
			business_id TEXT NOT NULL,
			location_id TEXT NOT NULL,
			weekday INTEGER NOT NULL,
			opens_at_min INTEGER NOT NULL DEFAULT 0,
			closes_at_min INTEGER NOT NULL DEFAULT 0,
			break_start_min INTEGER NOT NULL DEFAULT 0,
			break_end_min INTEGER NOT NULL DEFAULT 0,
			is_emergency_only BOOLEAN NOT NULL DEFAULT 0,
			is_closed BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME,
			updated_at DATETIME
		);`,
		`CREATE TABLE availability_cache_entries (
			id TEXT PRIMARY KEY,
			business_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			date DATE NOT NULL,
			payload TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			created_at DATETIME
		);`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// env bundles the full service stack over one in-memory database.
type env struct {
	db *gorm.DB

	technicians repository.TechnicianRepository
	services    repository.ServiceRepository
	bookings    repository.BookingRepository
	timeOff     repository.TimeOffRepository
	hours       repository.BusinessHoursRepository
	events      repository.EventRepository

	engine     *AvailabilityService
	cache      *AvailabilityCacheService
	booking    *BookingService
	timeOffSvc *TimeOffService
	roster     *TechnicianService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := openTestDB(t)
	log := testLogger()

	technicians := repository.NewGormTechnicianRepository(db)
	services := repository.NewGormServiceRepository(db)
	bookings := repository.NewGormBookingRepository(db)
	timeOff := repository.NewGormTimeOffRepository(db)
	hours := repository.NewGormBusinessHoursRepository(db)
	events := repository.NewGormEventRepository(db)

	engine := NewAvailabilityService(technicians, services, bookings, timeOff, hours)
	cache := NewAvailabilityCacheService(repository.NewGormCacheRepository(db), engine, 15*time.Minute, log)
	booking := NewBookingService(db, bookings, events, services, engine, cache,
		repository.NewTechnicianLocks(), log)
	timeOffSvc := NewTimeOffService(db, timeOff, technicians, cache, log)
	roster := NewTechnicianService(technicians, hours, cache, log)

	return &env{
		db:          db,
		technicians: technicians,
		services:    services,
		bookings:    bookings,
		timeOff:     timeOff,
		hours:       hours,
		events:      events,
		engine:      engine,
		cache:       cache,
		booking:     booking,
		timeOffSvc:  timeOffSvc,
		roster:      roster,
	}
}

// setNow pins the clock of every service to a fixed moment.
func (e *env) setNow(now time.Time) {
	clock := func() time.Time { return now }
	e.engine.now = clock
	e.cache.now = clock
	e.booking.now = clock
	e.timeOffSvc.now = clock
}

// seedTechnician inserts an active, bookable technician.
func (e *env) seedTechnician(t *testing.T, businessID, locationID uuid.UUID, name string, bufferMin int) *model.Technician {
	t.Helper()
	tech := &model.Technician{
		ID:               uuid.New(),
		BusinessID:       businessID,
		DisplayName:      name,
		LocationID:       locationID,
		IsActive:         true,
		CanBeBooked:      true,
		DefaultBufferMin: bufferMin,
	}
	if err := e.db.Create(tech).Error; err != nil {
		t.Fatalf("seed technician: %v", err)
	}
	return tech
}

// seedService inserts an active bookable service.
func (e *env) seedService(t *testing.T, businessID uuid.UUID, name string, durationMin int) *model.BookableService {
	t.Helper()
	svc := &model.BookableService{
		ID:             uuid.New(),
		BusinessID:     businessID,
		Name:           name,
		DurationMin:    durationMin,
		MinTechnicians: 1,
		MaxTechnicians: 2,
		IsActive:       true,
	}
	if err := e.db.Create(svc).Error; err != nil {
		t.Fatalf("seed service: %v", err)
	}
	return svc
}

// seedBooking inserts a booking occupying [start, start+duration) and
// its technician assignment row.
func (e *env) seedBooking(
	t *testing.T,
	businessID uuid.UUID,
	svc *model.BookableService,
	tech *model.Technician,
	status model.BookingStatus,
	start time.Time,
) *model.Booking {
	t.Helper()
	end := start.Add(time.Duration(svc.DurationMin) * time.Minute)
	b := &model.Booking{
		ID:                  uuid.New(),
		BusinessID:          businessID,
		ServiceID:           svc.ID,
		DurationMin:         svc.DurationMin,
		PrimaryTechnicianID: tech.ID,
		CustomerName:        "seed customer",
		RequestedAt:         start.Add(-24 * time.Hour),
		ScheduledAt:         &start,
		ScheduledEndAt:      &end,
		Status:              status,
		IdempotencyKey:      uuid.NewString(),
		RequestHash:         "seed",
	}
	if err := e.db.Create(b).Error; err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	row := &model.BookingTechnician{BookingID: b.ID, TechnicianID: tech.ID, Role: "primary"}
	if err := e.db.Create(row).Error; err != nil {
		t.Fatalf("seed booking technician: %v", err)
	}
	return b
}

// seedSkill inserts a skill, requires it for the service and assigns it
// to the technician with the given certificate expiry.
func (e *env) seedSkill(
	t *testing.T,
	businessID uuid.UUID,
	svc *model.BookableService,
	tech *model.Technician,
	certExpiresAt *time.Time,
) *model.Skill {
	t.Helper()
	skill := &model.Skill{ID: uuid.New(), BusinessID: businessID, Name: "hvac", RequiresCert: certExpiresAt != nil}
	if err := e.db.Create(skill).Error; err != nil {
		t.Fatalf("seed skill: %v", err)
	}
	if err := e.db.Create(&model.ServiceSkill{ServiceID: svc.ID, SkillID: skill.ID}).Error; err != nil {
		t.Fatalf("seed service skill: %v", err)
	}
	if tech != nil {
		ts := &model.TechnicianSkill{
			TechnicianID:  tech.ID,
			SkillID:       skill.ID,
			Proficiency:   3,
			CertExpiresAt: certExpiresAt,
		}
		if err := e.db.Create(ts).Error; err != nil {
			t.Fatalf("seed technician skill: %v", err)
		}
	}
	return skill
}

// seedOpenAllWeek inserts 8:00-18:00 hours for every weekday.
func (e *env) seedOpenAllWeek(t *testing.T, businessID, locationID uuid.UUID) {
	t.Helper()
	for wd := 0; wd < 7; wd++ {
		bh := &model.BusinessHours{
			ID:          uuid.New(),
			BusinessID:  businessID,
			LocationID:  locationID,
			Weekday:     wd,
			OpensAtMin:  8 * 60,
			ClosesAtMin: 18 * 60,
		}
		if err := e.db.Create(bh).Error; err != nil {
			t.Fatalf("seed business hours: %v", err)
		}
	}
}
