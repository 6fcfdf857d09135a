package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/fieldserve/booking-core/internal/calendar"
	"github.com/fieldserve/booking-core/internal/model"
	"github.com/fieldserve/booking-core/internal/repository"
)

// Горизонт инвалидации для событий без конкретной даты
// (деактивация техника, смена рабочих часов).
const invalidationHorizonDays = 30

// AvailabilityCacheService — ленивый кэш результатов движка с TTL.
// Оптимизация, не источник истины: любая ошибка хранилища — это промах
// с прямым пересчётом, наружу как ошибка брони не выходит никогда.
type AvailabilityCacheService struct {
	store  repository.AvailabilityCacheStore
	engine *AvailabilityService
	ttl    time.Duration
	log    *slog.Logger

	now func() time.Time
}

func NewAvailabilityCacheService(
	store repository.AvailabilityCacheStore,
	engine *AvailabilityService,
	ttl time.Duration,
	log *slog.Logger,
) *AvailabilityCacheService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &AvailabilityCacheService{
		store:  store,
		engine: engine,
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}
}

// GetOrCompute возвращает расклад дня из кэша либо пересчитывает и
// кладёт с TTL.
func (s *AvailabilityCacheService) GetOrCompute(
	ctx context.Context,
	businessID, serviceID uuid.UUID,
	date time.Time,
) (*model.AvailabilityDay, error) {
	entry, err := s.store.Get(ctx, businessID, serviceID, date)
	if err != nil {
		s.log.Warn("availability cache read failed, recomputing",
			"business_id", businessID, "service_id", serviceID, "error", err)
		entry = nil
	}

	if entry != nil && entry.ExpiresAt.After(s.now()) {
		var day model.AvailabilityDay
		if err := json.Unmarshal(entry.Payload, &day); err == nil {
			return &day, nil
		}
		s.log.Warn("availability cache entry is corrupt, recomputing",
			"business_id", businessID, "service_id", serviceID)
	}

	return s.computeAndStore(ctx, businessID, serviceID, date)
}

// ComputeDirect — принудительный пересчёт мимо кэша. Для сверки
// прозрачности кэша и для авторитетных путей.
func (s *AvailabilityCacheService) ComputeDirect(
	ctx context.Context,
	businessID, serviceID uuid.UUID,
	date time.Time,
) (*model.AvailabilityDay, error) {
	return s.engine.DaySlots(ctx, businessID, serviceID, date)
}

func (s *AvailabilityCacheService) computeAndStore(
	ctx context.Context,
	businessID, serviceID uuid.UUID,
	date time.Time,
) (*model.AvailabilityDay, error) {
	day, err := s.engine.DaySlots(ctx, businessID, serviceID, date)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(day)
	if err != nil {
		return nil, fmt.Errorf("encode availability day: %w", err)
	}

	entry := &model.AvailabilityCacheEntry{
		BusinessID: businessID,
		ServiceID:  serviceID,
		Date:       datatypes.Date(calendar.DayStart(date)),
		Payload:    datatypes.JSON(payload),
		ExpiresAt:  s.now().Add(s.ttl),
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	// Ошибка записи — не повод ломать ответ: кэш переживёт.
	if err := s.store.Put(ctx, entry); err != nil {
		s.log.Warn("availability cache write failed",
			"business_id", businessID, "service_id", serviceID, "error", err)
	}
	return day, nil
}

// InvalidateDates синхронно удаляет записи тенанта за указанные даты
// (по всем услугам: бронь техника влияет на каждую услугу, для которой
// он квалифицирован, так что надмножество — безопасный выбор).
// Вызывается ДО возврата из мутирующей операции.
func (s *AvailabilityCacheService) InvalidateDates(
	ctx context.Context,
	businessID uuid.UUID,
	dates ...time.Time,
) {
	seen := map[string]bool{}
	for _, d := range dates {
		day := calendar.DayStart(d)
		key := day.Format("2006-01-02")
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := s.store.Delete(ctx, businessID, nil, day); err != nil {
			s.log.Warn("availability cache invalidation failed",
				"business_id", businessID, "date", key, "error", err)
		}
	}
}

// InvalidateHorizon — инвалидация на горизонт вперёд: деактивация
// техника или смена рабочих часов касаются всех будущих дат.
func (s *AvailabilityCacheService) InvalidateHorizon(ctx context.Context, businessID uuid.UUID) {
	start := calendar.DayStart(s.now())
	dates := make([]time.Time, 0, invalidationHorizonDays)
	for i := 0; i < invalidationHorizonDays; i++ {
		dates = append(dates, start.AddDate(0, 0, i))
	}
	s.InvalidateDates(ctx, businessID, dates...)
}

// InvalidateInterval — инвалидация всех дат, покрытых интервалом.
func (s *AvailabilityCacheService) InvalidateInterval(
	ctx context.Context,
	businessID uuid.UUID,
	interval calendar.TimeRange,
) {
	var dates []time.Time
	for d := calendar.DayStart(interval.Start); d.Before(interval.End); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	s.InvalidateDates(ctx, businessID, dates...)
}

// EvictExpired удаляет протухшие записи из хранилища.
func (s *AvailabilityCacheService) EvictExpired(ctx context.Context) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		s.log.Warn("availability cache eviction failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Debug("availability cache evicted", "entries", n)
	}
}

// Run — фоновая чистка протухших записей. Оптимизация, не требование
// корректности; останавливается по ctx.
func (s *AvailabilityCacheService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.EvictExpired(ctx)
		}
	}
}
