package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldserve/booking-core/internal/calendar"
	"github.com/fieldserve/booking-core/internal/model"
	"github.com/fieldserve/booking-core/internal/repository"
)

// CreateTechnicianRequest — регистрация техника в ростере.
type CreateTechnicianRequest struct {
	DisplayName      string    `json:"display_name"`
	Email            string    `json:"email,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	LocationID       uuid.UUID `json:"location_id"`
	CanBeBooked      *bool     `json:"can_be_booked,omitempty"`
	DefaultBufferMin int       `json:"default_buffer_min,omitempty"`
	MaxDailyHours    int       `json:"max_daily_hours,omitempty"`
}

// AssignSkillRequest — назначение навыка технику.
type AssignSkillRequest struct {
	SkillID       uuid.UUID  `json:"skill_id"`
	Proficiency   int        `json:"proficiency,omitempty"`
	CertifiedAt   *time.Time `json:"certified_at,omitempty"`
	CertExpiresAt *time.Time `json:"cert_expires_at,omitempty"`
}

// TechnicianService — ростер техников и рабочие часы локаций.
// Деактивация и смена часов бьют по кэшу на весь горизонт вперёд.
type TechnicianService struct {
	technicians repository.TechnicianRepository
	hours       repository.BusinessHoursRepository
	cache       *AvailabilityCacheService
	log         *slog.Logger
}

func NewTechnicianService(
	technicians repository.TechnicianRepository,
	hours repository.BusinessHoursRepository,
	cache *AvailabilityCacheService,
	log *slog.Logger,
) *TechnicianService {
	return &TechnicianService{
		technicians: technicians,
		hours:       hours,
		cache:       cache,
		log:         log,
	}
}

func (s *TechnicianService) Create(ctx context.Context, businessID uuid.UUID, req CreateTechnicianRequest) (*model.Technician, error) {
	if req.DisplayName == "" {
		return nil, fmt.Errorf("%w: display_name is required", ErrValidation)
	}
	if req.LocationID == uuid.Nil {
		return nil, fmt.Errorf("%w: location_id is required", ErrValidation)
	}
	if req.DefaultBufferMin < 0 || req.MaxDailyHours < 0 {
		return nil, fmt.Errorf("%w: buffer and daily hours must be non-negative", ErrValidation)
	}

	canBeBooked := true
	if req.CanBeBooked != nil {
		canBeBooked = *req.CanBeBooked
	}

	t := &model.Technician{
		ID:               uuid.New(),
		BusinessID:       businessID,
		DisplayName:      req.DisplayName,
		Email:            req.Email,
		Phone:            req.Phone,
		LocationID:       req.LocationID,
		IsActive:         true,
		CanBeBooked:      canBeBooked,
		DefaultBufferMin: req.DefaultBufferMin,
		MaxDailyHours:    req.MaxDailyHours,
	}
	if err := s.technicians.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create technician: %w", err)
	}
	return t, nil
}

func (s *TechnicianService) GetByID(ctx context.Context, businessID, id uuid.UUID) (*model.Technician, error) {
	t, err := s.technicians.GetByID(ctx, businessID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: technician %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get technician: %w", err)
	}
	return t, nil
}

func (s *TechnicianService) List(
	ctx context.Context,
	businessID uuid.UUID,
	onlyActive bool,
	page, perPage int,
) (calendar.Page[model.Technician], error) {
	page, perPage = calendar.NormalizePage(page, perPage, 20, 100)

	items, total, err := s.technicians.List(ctx, businessID, onlyActive, perPage, (page-1)*perPage)
	if err != nil {
		return calendar.Page[model.Technician]{}, fmt.Errorf("list technicians: %w", err)
	}
	return calendar.PageOf(items, page, perPage, total), nil
}

// SetActive деактивирует (или возвращает в строй) техника. История
// броней остаётся; из будущей выдачи доступности техник исчезает сразу.
func (s *TechnicianService) SetActive(ctx context.Context, businessID, id uuid.UUID, active bool) error {
	if err := s.technicians.SetActive(ctx, businessID, id, active); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: technician %s", ErrNotFound, id)
		}
		return fmt.Errorf("set active: %w", err)
	}

	s.cache.InvalidateHorizon(ctx, businessID)

	s.log.Info("technician active flag changed",
		"technician_id", id, "business_id", businessID, "active", active)
	return nil
}

// AssignSkill назначает (или обновляет) навык техника.
func (s *TechnicianService) AssignSkill(ctx context.Context, businessID, technicianID uuid.UUID, req AssignSkillRequest) error {
	if req.SkillID == uuid.Nil {
		return fmt.Errorf("%w: skill_id is required", ErrValidation)
	}
	if req.Proficiency < 0 || req.Proficiency > 5 {
		return fmt.Errorf("%w: proficiency must be within 1..5", ErrValidation)
	}
	if _, err := s.GetByID(ctx, businessID, technicianID); err != nil {
		return err
	}

	proficiency := req.Proficiency
	if proficiency == 0 {
		proficiency = 1
	}
	ts := &model.TechnicianSkill{
		TechnicianID:  technicianID,
		SkillID:       req.SkillID,
		Proficiency:   proficiency,
		CertifiedAt:   req.CertifiedAt,
		CertExpiresAt: req.CertExpiresAt,
	}
	if err := s.technicians.AssignSkill(ctx, ts); err != nil {
		return fmt.Errorf("assign skill: %w", err)
	}

	// Квалификация техника поменялась — слоты по услугам тоже.
	s.cache.InvalidateHorizon(ctx, businessID)
	return nil
}

// UpsertHours задаёт рабочие часы локации на день недели.
func (s *TechnicianService) UpsertHours(ctx context.Context, businessID uuid.UUID, bh model.BusinessHours) (*model.BusinessHours, error) {
	if bh.LocationID == uuid.Nil {
		return nil, fmt.Errorf("%w: location_id is required", ErrValidation)
	}
	if bh.Weekday < 0 || bh.Weekday > 6 {
		return nil, fmt.Errorf("%w: weekday must be within 0..6", ErrValidation)
	}
	if !bh.IsClosed {
		if bh.OpensAtMin < 0 || bh.ClosesAtMin > 24*60 || bh.OpensAtMin >= bh.ClosesAtMin {
			return nil, fmt.Errorf("%w: opening window is malformed", ErrValidation)
		}
		if bh.BreakEndMin < bh.BreakStartMin {
			return nil, fmt.Errorf("%w: break window is malformed", ErrValidation)
		}
	}

	bh.BusinessID = businessID
	if err := s.hours.Upsert(ctx, &bh); err != nil {
		return nil, fmt.Errorf("upsert business hours: %w", err)
	}

	// Часы действуют на каждый будущий день этой недели.
	s.cache.InvalidateHorizon(ctx, businessID)
	return &bh, nil
}

// ListHours — расписание локации на всю неделю.
func (s *TechnicianService) ListHours(ctx context.Context, businessID, locationID uuid.UUID) ([]model.BusinessHours, error) {
	return s.hours.ListByLocation(ctx, businessID, locationID)
}
