package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fieldserve/booking-core/internal/calendar"
	"github.com/fieldserve/booking-core/internal/model"
	"github.com/fieldserve/booking-core/internal/repository"
	"github.com/fieldserve/booking-core/pkg/reqctx"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// CreateBookingRequest — запрос на создание брони. Поле IdempotencyKey
// обязательно: повтор с тем же ключом и тем же payload безопасен.
type CreateBookingRequest struct {
	ServiceID               uuid.UUID   `json:"service_id"`
	TechnicianID            uuid.UUID   `json:"technician_id"`
	AdditionalTechnicianIDs []uuid.UUID `json:"additional_technician_ids,omitempty"`

	// Запрошенное клиентом начало. Бронь создаётся pending с мягким
	// холдом на это время; подтверждение может время сменить.
	StartsAt time.Time `json:"starts_at"`

	CustomerName   string `json:"customer_name"`
	CustomerPhone  string `json:"customer_phone,omitempty"`
	CustomerEmail  string `json:"customer_email,omitempty"`
	ServiceAddress string `json:"service_address,omitempty"`
	Comment        string `json:"comment,omitempty"`

	IdempotencyKey string `json:"-"`
}

// fingerprint — отпечаток payload для сравнения при повторе ключа.
func (r CreateBookingRequest) fingerprint() string {
	raw, _ := json.Marshal(r)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// errIdempotentReplay — внутренний сигнал «ключ уже отработал»,
// наружу не выходит.
var errIdempotentReplay = errors.New("idempotent replay")

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// BookingService — журнал броней: машина состояний, идемпотентное
// создание, аудит-события и синхронная инвалидация кэша. Критическая
// секция «проверить доступность и записать» атомарна: процессный замок
// на техника + advisory-замок в транзакции Postgres.
type BookingService struct {
	db           *gorm.DB
	bookings     repository.BookingRepository
	events       repository.EventRepository
	services     repository.ServiceRepository
	availability *AvailabilityService
	cache        *AvailabilityCacheService
	locks        *repository.TechnicianLocks
	log          *slog.Logger

	now func() time.Time
}

func NewBookingService(
	db *gorm.DB,
	bookings repository.BookingRepository,
	events repository.EventRepository,
	services repository.ServiceRepository,
	availability *AvailabilityService,
	cache *AvailabilityCacheService,
	locks *repository.TechnicianLocks,
	log *slog.Logger,
) *BookingService {
	return &BookingService{
		db:           db,
		bookings:     bookings,
		events:       events,
		services:     services,
		availability: availability,
		cache:        cache,
		locks:        locks,
		log:          log,
		now:          time.Now,
	}
}

// Create создаёт бронь в статусе pending.
//
// Повтор ключа идемпотентности с тем же payload возвращает исходную
// бронь; с другим payload — ErrIdempotencyConflict. Доступность
// перепроверяется движком напрямую (кэшу на коммите не верим).
func (s *BookingService) Create(ctx context.Context, businessID uuid.UUID, req CreateBookingRequest) (*model.Booking, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	hash := req.fingerprint()

	// Быстрый путь: ключ уже известен.
	if existing, err := s.replayOrConflict(ctx, businessID, req.IdempotencyKey, hash); err != nil || existing != nil {
		return existing, err
	}

	svc, err := s.availability.getService(ctx, businessID, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if err := s.availability.ValidateWindow(svc, req.StartsAt); err != nil {
		return nil, err
	}
	// Lead time может быть нулевым, но прошлое недоступно всегда:
	// scheduled_at не бывает раньше requested_at.
	if req.StartsAt.Before(s.now()) {
		return nil, fmt.Errorf("%w: starts_at is in the past", ErrValidation)
	}

	interval := calendar.TimeRange{
		Start: req.StartsAt,
		End:   req.StartsAt.Add(time.Duration(svc.DurationMin) * time.Minute),
	}

	techIDs := assignedTechnicians(req)
	if len(techIDs) < svc.MinTechnicians {
		return nil, fmt.Errorf("%w: service requires at least %d technicians", ErrValidation, svc.MinTechnicians)
	}
	if svc.MaxTechnicians > 0 && len(techIDs) > svc.MaxTechnicians {
		return nil, fmt.Errorf("%w: service allows at most %d technicians", ErrValidation, svc.MaxTechnicians)
	}

	// Замки в стабильном порядке, чтобы не взаимоблокироваться.
	for _, unlock := range s.lockAll(techIDs) {
		defer unlock()
	}

	requestedAt := s.now()
	scheduledEnd := interval.End
	booking := &model.Booking{
		ID:                  uuid.New(),
		BusinessID:          businessID,
		ServiceID:           svc.ID,
		DurationMin:         svc.DurationMin,
		PrimaryTechnicianID: req.TechnicianID,
		CustomerName:        req.CustomerName,
		CustomerPhone:       req.CustomerPhone,
		CustomerEmail:       req.CustomerEmail,
		ServiceAddress:      req.ServiceAddress,
		Comment:             req.Comment,
		RequestedAt:         requestedAt,
		ScheduledAt:         &interval.Start,
		ScheduledEndAt:      &scheduledEnd,
		Status:              model.BookingStatusPending,
		IdempotencyKey:      req.IdempotencyKey,
		RequestHash:         hash,
	}

	var replay *model.Booking
	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, id := range techIDs {
			if err := repository.AcquireTechnicianTxLock(tx, id); err != nil {
				return fmt.Errorf("advisory lock: %w", err)
			}
		}

		txBookings := s.bookings.WithTx(tx)

		// Пере-проверка идемпотентности уже под замком.
		existing, err := txBookings.GetByIdempotencyKey(ctx, businessID, req.IdempotencyKey)
		if err != nil {
			return fmt.Errorf("idempotency lookup: %w", err)
		}
		if existing != nil {
			if existing.RequestHash != hash {
				return ErrIdempotencyConflict
			}
			replay = existing
			return errIdempotentReplay
		}

		// Авторитетная проверка каждого назначенного техника — внутри
		// транзакции, чтобы видеть её снимок.
		txAvail := s.availability.WithTx(tx)
		for _, id := range techIDs {
			if err := txAvail.CheckTechnician(ctx, businessID, svc, id, interval, nil); err != nil {
				return err
			}
		}

		if err := txBookings.Create(ctx, booking, techIDs); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}

		return s.appendEvent(ctx, tx, booking, "", model.BookingStatusPending, map[string][]any{
			"status":       {nil, string(model.BookingStatusPending)},
			"scheduled_at": {nil, interval.Start},
		})
	})

	switch {
	case errors.Is(err, errIdempotentReplay):
		return replay, nil
	case err != nil:
		return nil, err
	}

	// Синхронная инвалидация до возврата вызывающему.
	s.cache.InvalidateDates(ctx, businessID, interval.Start)

	s.log.Info("booking created",
		"booking_id", booking.ID, "business_id", businessID,
		"technician_id", req.TechnicianID, "starts_at", interval.Start)
	return booking, nil
}

// Confirm подтверждает бронь на время scheduledAt (и, опционально,
// другого техника), с повторной авторитетной проверкой доступности.
func (s *BookingService) Confirm(
	ctx context.Context,
	businessID, bookingID uuid.UUID,
	scheduledAt time.Time,
	technicianID *uuid.UUID,
) (*model.Booking, error) {
	b, err := s.getBooking(ctx, businessID, bookingID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(b.Status, model.BookingStatusConfirmed) {
		return nil, fmt.Errorf("%w: %s → confirmed", ErrInvalidTransition, b.Status)
	}
	if scheduledAt.Before(b.RequestedAt) {
		return nil, fmt.Errorf("%w: scheduled_at must not precede requested_at", ErrValidation)
	}

	svc, err := s.availability.getService(ctx, businessID, b.ServiceID)
	if err != nil {
		return nil, err
	}
	if err := s.availability.ValidateWindow(svc, scheduledAt); err != nil {
		return nil, err
	}

	tech := b.PrimaryTechnicianID
	if technicianID != nil {
		tech = *technicianID
	}

	interval := calendar.TimeRange{
		Start: scheduledAt,
		End:   scheduledAt.Add(time.Duration(b.DurationMin) * time.Minute),
	}

	// Переносится вся бригада: перепроверить на новом интервале нужно
	// каждого назначенного техника, не только основного.
	assigned, err := s.bookings.ListTechnicians(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("list assigned technicians: %w", err)
	}
	techIDs := []uuid.UUID{tech}
	seen := map[uuid.UUID]bool{tech: true}
	for _, row := range assigned {
		// Старый основной при переназначении уходит с брони.
		if tech != b.PrimaryTechnicianID && row.TechnicianID == b.PrimaryTechnicianID {
			continue
		}
		if seen[row.TechnicianID] {
			continue
		}
		seen[row.TechnicianID] = true
		techIDs = append(techIDs, row.TechnicianID)
	}

	for _, unlock := range s.lockAll(techIDs) {
		defer unlock()
	}

	oldScheduled := b.ScheduledAt
	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, id := range techIDs {
			if err := repository.AcquireTechnicianTxLock(tx, id); err != nil {
				return fmt.Errorf("advisory lock: %w", err)
			}
		}

		txAvail := s.availability.WithTx(tx)
		for _, id := range techIDs {
			if err := txAvail.CheckTechnician(ctx, businessID, svc, id, interval, &b.ID); err != nil {
				return err
			}
		}

		fields := map[string]any{
			"status":           model.BookingStatusConfirmed,
			"scheduled_at":     interval.Start,
			"scheduled_end_at": interval.End,
		}
		diff := map[string][]any{
			"status":       {string(b.Status), string(model.BookingStatusConfirmed)},
			"scheduled_at": {b.ScheduledAt, interval.Start},
		}
		if tech != b.PrimaryTechnicianID {
			fields["primary_technician_id"] = tech
			diff["primary_technician_id"] = []any{b.PrimaryTechnicianID, tech}

			// Переназначение в join-таблице: старый основной уходит,
			// возможная assist-строка нового снимается перед вставкой,
			// иначе повышение ассистента упрётся в дубль ключа.
			if err := tx.Where("booking_id = ? AND technician_id IN ?",
				b.ID, []uuid.UUID{b.PrimaryTechnicianID, tech}).
				Delete(&model.BookingTechnician{}).Error; err != nil {
				return fmt.Errorf("unassign technician: %w", err)
			}
			row := model.BookingTechnician{BookingID: b.ID, TechnicianID: tech, Role: "primary"}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("assign technician: %w", err)
			}
		}

		if err := s.bookings.WithTx(tx).Update(ctx, b.ID, fields); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		return s.appendEvent(ctx, tx, b, b.Status, model.BookingStatusConfirmed, diff)
	})
	if err != nil {
		return nil, err
	}

	dates := []time.Time{interval.Start}
	if oldScheduled != nil {
		dates = append(dates, *oldScheduled)
	}
	s.cache.InvalidateDates(ctx, businessID, dates...)

	return s.getBooking(ctx, businessID, bookingID)
}

// Start переводит подтверждённую бронь в работу.
func (s *BookingService) Start(ctx context.Context, businessID, bookingID uuid.UUID) (*model.Booking, error) {
	return s.transition(ctx, businessID, bookingID, model.BookingStatusInProgress, nil, nil)
}

// Complete завершает бронь; допустим только из in_progress.
func (s *BookingService) Complete(
	ctx context.Context,
	businessID, bookingID uuid.UUID,
	completedAt time.Time,
) (*model.Booking, error) {
	b, err := s.getBooking(ctx, businessID, bookingID)
	if err != nil {
		return nil, err
	}
	if b.ScheduledAt != nil && completedAt.Before(*b.ScheduledAt) {
		return nil, fmt.Errorf("%w: completed_at must not precede scheduled_at", ErrValidation)
	}
	return s.transition(ctx, businessID, bookingID, model.BookingStatusCompleted,
		map[string]any{"completed_at": completedAt},
		map[string][]any{"completed_at": {b.CompletedAt, completedAt}})
}

// Cancel отменяет бронь из pending или confirmed. Техник освобождается
// сразу: инвалидация кэша синхронная, последующие запросы доступности
// видят его свободным.
func (s *BookingService) Cancel(
	ctx context.Context,
	businessID, bookingID uuid.UUID,
	reason string,
) (*model.Booking, error) {
	cancelledAt := s.now()
	actor := reqctx.Actor(ctx)
	return s.transition(ctx, businessID, bookingID, model.BookingStatusCancelled,
		map[string]any{
			"cancel_reason": reason,
			"cancelled_by":  actor,
			"cancelled_at":  cancelledAt,
		},
		map[string][]any{
			"cancel_reason": {nil, reason},
			"cancelled_by":  {nil, actor},
		})
}

// NoShow — клиент не появился; допустим только из confirmed.
func (s *BookingService) NoShow(ctx context.Context, businessID, bookingID uuid.UUID) (*model.Booking, error) {
	return s.transition(ctx, businessID, bookingID, model.BookingStatusNoShow, nil, nil)
}

func (s *BookingService) GetByID(ctx context.Context, businessID, bookingID uuid.UUID) (*model.Booking, error) {
	return s.getBooking(ctx, businessID, bookingID)
}

// ListEvents — аудит-события брони в хронологическом порядке.
func (s *BookingService) ListEvents(ctx context.Context, businessID, bookingID uuid.UUID) ([]model.BookingEvent, error) {
	if _, err := s.getBooking(ctx, businessID, bookingID); err != nil {
		return nil, err
	}
	return s.events.ListByBooking(ctx, bookingID)
}

// List — брони тенанта с фильтрами и пагинацией.
func (s *BookingService) List(
	ctx context.Context,
	businessID uuid.UUID,
	f repository.BookingFilter,
	page, perPage int,
) (calendar.Page[model.Booking], error) {
	page, perPage = calendar.NormalizePage(page, perPage, 20, 100)
	f.Limit = perPage
	f.Offset = (page - 1) * perPage

	items, total, err := s.bookings.List(ctx, businessID, f)
	if err != nil {
		return calendar.Page[model.Booking]{}, fmt.Errorf("list bookings: %w", err)
	}
	return calendar.PageOf(items, page, perPage, total), nil
}

// ---------------------------------------------------------------------------
// Внутреннее
// ---------------------------------------------------------------------------

func validateCreate(req CreateBookingRequest) error {
	switch {
	case req.IdempotencyKey == "":
		return fmt.Errorf("%w: idempotency key is required", ErrValidation)
	case req.ServiceID == uuid.Nil:
		return fmt.Errorf("%w: service_id is required", ErrValidation)
	case req.TechnicianID == uuid.Nil:
		return fmt.Errorf("%w: technician_id is required", ErrValidation)
	case req.CustomerName == "":
		return fmt.Errorf("%w: customer_name is required", ErrValidation)
	case req.StartsAt.IsZero():
		return fmt.Errorf("%w: starts_at is required", ErrValidation)
	}
	return nil
}

// replayOrConflict проверяет ключ идемпотентности до входа в замок.
func (s *BookingService) replayOrConflict(
	ctx context.Context,
	businessID uuid.UUID,
	key, hash string,
) (*model.Booking, error) {
	existing, err := s.bookings.GetByIdempotencyKey(ctx, businessID, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	if existing.RequestHash != hash {
		return nil, ErrIdempotencyConflict
	}
	return existing, nil
}

func assignedTechnicians(req CreateBookingRequest) []uuid.UUID {
	seen := map[uuid.UUID]bool{req.TechnicianID: true}
	ids := []uuid.UUID{req.TechnicianID}
	for _, id := range req.AdditionalTechnicianIDs {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// lockAll берёт процессные замки в порядке возрастания ID.
func (s *BookingService) lockAll(techIDs []uuid.UUID) []func() {
	sorted := make([]uuid.UUID, len(techIDs))
	copy(sorted, techIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	unlocks := make([]func(), 0, len(sorted))
	for _, id := range sorted {
		unlocks = append(unlocks, s.locks.Lock(id))
	}
	return unlocks
}

func (s *BookingService) getBooking(ctx context.Context, businessID, bookingID uuid.UUID) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, businessID, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: booking %s", ErrNotFound, bookingID)
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// transition — общий путь простых переходов: загрузка, проверка машины
// состояний, обновление, событие, инвалидация кэша.
func (s *BookingService) transition(
	ctx context.Context,
	businessID, bookingID uuid.UUID,
	to model.BookingStatus,
	extraFields map[string]any,
	extraDiff map[string][]any,
) (*model.Booking, error) {
	var invalidate *time.Time

	err := s.db.Transaction(func(tx *gorm.DB) error {
		txBookings := s.bookings.WithTx(tx)

		b, err := txBookings.GetByID(ctx, businessID, bookingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: booking %s", ErrNotFound, bookingID)
			}
			return fmt.Errorf("get booking: %w", err)
		}
		if !CanTransition(b.Status, to) {
			return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, b.Status, to)
		}

		fields := map[string]any{"status": to}
		diff := map[string][]any{"status": {string(b.Status), string(to)}}
		for k, v := range extraFields {
			fields[k] = v
		}
		for k, v := range extraDiff {
			diff[k] = v
		}

		if err := txBookings.Update(ctx, b.ID, fields); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		if err := s.appendEvent(ctx, tx, b, b.Status, to, diff); err != nil {
			return err
		}

		invalidate = b.ScheduledAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	if invalidate != nil {
		s.cache.InvalidateDates(ctx, businessID, *invalidate)
	}
	return s.getBooking(ctx, businessID, bookingID)
}

// appendEvent пишет ровно одно аудит-событие перехода в той же
// транзакции, что и мутация.
func (s *BookingService) appendEvent(
	ctx context.Context,
	tx *gorm.DB,
	b *model.Booking,
	old, new model.BookingStatus,
	diff map[string][]any,
) error {
	payload, err := json.Marshal(diff)
	if err != nil {
		return fmt.Errorf("encode event diff: %w", err)
	}

	e := &model.BookingEvent{
		ID:         uuid.New(),
		BookingID:  b.ID,
		BusinessID: b.BusinessID,
		OldStatus:  old,
		NewStatus:  new,
		Diff:       datatypes.JSON(payload),
		Actor:      reqctx.Actor(ctx),
	}
	if err := s.events.WithTx(tx).Append(ctx, e); err != nil {
		return fmt.Errorf("append booking event: %w", err)
	}
	return nil
}
