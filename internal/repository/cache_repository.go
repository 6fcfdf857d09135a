package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fieldserve/booking-core/internal/calendar"
	"github.com/fieldserve/booking-core/internal/model"
)

// AvailabilityCacheStore — хранилище кэша доступности. Две реализации:
// таблица в БД (по умолчанию) и Redis (internal/cache). Кэш одноразовый:
// любая ошибка хранилища трактуется как промах.
type AvailabilityCacheStore interface {
	// Запись по ключу (тенант, услуга, дата); nil — промах.
	Get(ctx context.Context, businessID, serviceID uuid.UUID, date time.Time) (*model.AvailabilityCacheEntry, error)
	Put(ctx context.Context, entry *model.AvailabilityCacheEntry) error
	// Синхронная инвалидация: удалить записи тенанта за дату.
	// serviceID == nil — по всем услугам даты.
	Delete(ctx context.Context, businessID uuid.UUID, serviceID *uuid.UUID, date time.Time) error
	// Удалить протухшие записи; возвращает количество.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Реализация на GORM (таблица availability_cache_entries).
type GormCacheRepository struct {
	db *gorm.DB
}

func NewGormCacheRepository(db *gorm.DB) *GormCacheRepository {
	return &GormCacheRepository{db: db}
}

// cacheDate нормализует дату так же, как она пишется в колонку:
// сравнение по типизированному значению, а не по строке.
func cacheDate(date time.Time) datatypes.Date {
	return datatypes.Date(calendar.DayStart(date))
}

func (r *GormCacheRepository) Get(
	ctx context.Context,
	businessID, serviceID uuid.UUID,
	date time.Time,
) (*model.AvailabilityCacheEntry, error) {
	var entry model.AvailabilityCacheEntry
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND service_id = ? AND date = ?", businessID, serviceID, cacheDate(date)).
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *GormCacheRepository) Put(ctx context.Context, entry *model.AvailabilityCacheEntry) error {
	// Перезапись по ключу: старую запись сносим, новую пишем.
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND service_id = ? AND date = ?",
			entry.BusinessID, entry.ServiceID, entry.Date).
		Delete(&model.AvailabilityCacheEntry{}).Error
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *GormCacheRepository) Delete(
	ctx context.Context,
	businessID uuid.UUID,
	serviceID *uuid.UUID,
	date time.Time,
) error {
	q := r.db.WithContext(ctx).
		Where("business_id = ? AND date = ?", businessID, cacheDate(date))
	if serviceID != nil {
		q = q.Where("service_id = ?", *serviceID)
	}
	return q.Delete(&model.AvailabilityCacheEntry{}).Error
}

func (r *GormCacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&model.AvailabilityCacheEntry{})
	return res.RowsAffected, res.Error
}
