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
	"github.com/fieldserve/booking-core/pkg/reqctx"
)

// TimeOffRequest — заявка техника на отсутствие.
type TimeOffRequest struct {
	TechnicianID uuid.UUID         `json:"technician_id"`
	StartsAt     time.Time         `json:"starts_at"`
	EndsAt       time.Time         `json:"ends_at"`
	Type         model.TimeOffType `json:"type"`
	Reason       string            `json:"reason,omitempty"`
}

// TimeOffService — заявки на отсутствие и их жизненный цикл
// pending → approved | denied. Эксклюзивность approved-интервалов
// одного техника проверяется в той же транзакции, что и approve.
type TimeOffService struct {
	db          *gorm.DB
	timeOff     repository.TimeOffRepository
	technicians repository.TechnicianRepository
	cache       *AvailabilityCacheService
	log         *slog.Logger

	now func() time.Time
}

func NewTimeOffService(
	db *gorm.DB,
	timeOff repository.TimeOffRepository,
	technicians repository.TechnicianRepository,
	cache *AvailabilityCacheService,
	log *slog.Logger,
) *TimeOffService {
	return &TimeOffService{
		db:          db,
		timeOff:     timeOff,
		technicians: technicians,
		cache:       cache,
		log:         log,
		now:         time.Now,
	}
}

var validTimeOffTypes = map[model.TimeOffType]bool{
	model.TimeOffTypeVacation: true,
	model.TimeOffTypeSick:     true,
	model.TimeOffTypeTraining: true,
	model.TimeOffTypeBreak:    true,
}

// Request создаёт заявку в статусе pending. Пересечение с уже
// approved-интервалом отклоняется сразу: такую заявку утвердить
// всё равно нельзя.
func (s *TimeOffService) Request(ctx context.Context, businessID uuid.UUID, req TimeOffRequest) (*model.TimeOff, error) {
	if req.TechnicianID == uuid.Nil {
		return nil, fmt.Errorf("%w: technician_id is required", ErrValidation)
	}
	if !validTimeOffTypes[req.Type] {
		return nil, fmt.Errorf("%w: unknown time off type %q", ErrValidation, req.Type)
	}
	if _, err := calendar.NewTimeRange(req.StartsAt, req.EndsAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if _, err := s.technicians.GetByID(ctx, businessID, req.TechnicianID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: technician %s", ErrNotFound, req.TechnicianID)
		}
		return nil, fmt.Errorf("get technician: %w", err)
	}

	overlaps, err := s.timeOff.HasApprovedOverlap(ctx, req.TechnicianID, req.StartsAt, req.EndsAt, nil)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	if overlaps {
		return nil, ErrTimeOffOverlap
	}

	to := &model.TimeOff{
		ID:           uuid.New(),
		TechnicianID: req.TechnicianID,
		StartsAt:     req.StartsAt,
		EndsAt:       req.EndsAt,
		Type:         req.Type,
		Status:       model.TimeOffStatusPending,
		Reason:       req.Reason,
	}
	if err := s.timeOff.Create(ctx, to); err != nil {
		return nil, fmt.Errorf("create time off: %w", err)
	}
	return to, nil
}

// Approve утверждает pending-заявку. Пересечение перепроверяется под
// транзакцией: между подачей и утверждением мог появиться другой
// approved-интервал.
func (s *TimeOffService) Approve(ctx context.Context, businessID, id uuid.UUID) (*model.TimeOff, error) {
	return s.decide(ctx, businessID, id, model.TimeOffStatusApproved)
}

// Deny отклоняет pending-заявку.
func (s *TimeOffService) Deny(ctx context.Context, businessID, id uuid.UUID) (*model.TimeOff, error) {
	return s.decide(ctx, businessID, id, model.TimeOffStatusDenied)
}

func (s *TimeOffService) decide(
	ctx context.Context,
	businessID, id uuid.UUID,
	status model.TimeOffStatus,
) (*model.TimeOff, error) {
	var decided *model.TimeOff

	err := s.db.Transaction(func(tx *gorm.DB) error {
		txRepo := s.timeOff.WithTx(tx)

		to, err := txRepo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: time off %s", ErrNotFound, id)
			}
			return fmt.Errorf("get time off: %w", err)
		}
		if _, err := s.technicians.WithTx(tx).GetByID(ctx, businessID, to.TechnicianID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: time off %s", ErrNotFound, id)
			}
			return fmt.Errorf("get technician: %w", err)
		}
		if to.Status != model.TimeOffStatusPending {
			return fmt.Errorf("%w: time off is %s, only pending can be decided", ErrInvalidTransition, to.Status)
		}

		if status == model.TimeOffStatusApproved {
			overlaps, err := txRepo.HasApprovedOverlap(ctx, to.TechnicianID, to.StartsAt, to.EndsAt, &to.ID)
			if err != nil {
				return fmt.Errorf("check overlap: %w", err)
			}
			if overlaps {
				return ErrTimeOffOverlap
			}
		}

		decidedAt := s.now()
		if err := txRepo.SetStatus(ctx, to.ID, status, reqctx.Actor(ctx), decidedAt); err != nil {
			return fmt.Errorf("set status: %w", err)
		}

		to.Status = status
		to.DecidedBy = reqctx.Actor(ctx)
		to.DecidedAt = &decidedAt
		decided = to
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Approved-интервал выводит техника из выдачи на эти даты.
	if status == model.TimeOffStatusApproved {
		s.cache.InvalidateInterval(ctx, businessID, calendar.TimeRange{
			Start: decided.StartsAt,
			End:   decided.EndsAt,
		})
	}

	s.log.Info("time off decided",
		"time_off_id", decided.ID, "technician_id", decided.TechnicianID,
		"status", decided.Status)
	return decided, nil
}

// ListByTechnician — заявки техника, пересекающие [from, to).
func (s *TimeOffService) ListByTechnician(
	ctx context.Context,
	businessID, technicianID uuid.UUID,
	from, to time.Time,
) ([]model.TimeOff, error) {
	if _, err := s.technicians.GetByID(ctx, businessID, technicianID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: technician %s", ErrNotFound, technicianID)
		}
		return nil, fmt.Errorf("get technician: %w", err)
	}
	return s.timeOff.ListByTechnician(ctx, technicianID, from, to)
}
