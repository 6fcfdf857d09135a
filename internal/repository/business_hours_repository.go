package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldserve/booking-core/internal/model"
)

type BusinessHoursRepository interface {
	// Копия репозитория, привязанная к транзакции tx.
	WithTx(tx *gorm.DB) BusinessHoursRepository

	// Часы локации на конкретный день недели; nil — запись не заведена.
	GetFor(ctx context.Context, businessID, locationID uuid.UUID, weekday int) (*model.BusinessHours, error)
	// Вся неделя локации.
	ListByLocation(ctx context.Context, businessID, locationID uuid.UUID) ([]model.BusinessHours, error)
	// Создать или обновить запись (ключ: локация + день недели).
	Upsert(ctx context.Context, bh *model.BusinessHours) error
}

type GormBusinessHoursRepository struct {
	db *gorm.DB
}

func NewGormBusinessHoursRepository(db *gorm.DB) *GormBusinessHoursRepository {
	return &GormBusinessHoursRepository{db: db}
}

func (r *GormBusinessHoursRepository) WithTx(tx *gorm.DB) BusinessHoursRepository {
	return &GormBusinessHoursRepository{db: tx}
}

func (r *GormBusinessHoursRepository) GetFor(
	ctx context.Context,
	businessID, locationID uuid.UUID,
	weekday int,
) (*model.BusinessHours, error) {
	var bh model.BusinessHours
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND location_id = ? AND weekday = ?", businessID, locationID, weekday).
		First(&bh).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &bh, nil
}

func (r *GormBusinessHoursRepository) ListByLocation(
	ctx context.Context,
	businessID, locationID uuid.UUID,
) ([]model.BusinessHours, error) {
	var items []model.BusinessHours
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND location_id = ?", businessID, locationID).
		Order("weekday ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormBusinessHoursRepository) Upsert(ctx context.Context, bh *model.BusinessHours) error {
	var existing model.BusinessHours
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND location_id = ? AND weekday = ?", bh.BusinessID, bh.LocationID, bh.Weekday).
		First(&existing).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		return r.db.WithContext(ctx).Create(bh).Error
	case err != nil:
		return err
	}

	bh.ID = existing.ID
	return r.db.WithContext(ctx).
		Model(&model.BusinessHours{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"opens_at_min":      bh.OpensAtMin,
			"closes_at_min":     bh.ClosesAtMin,
			"break_start_min":   bh.BreakStartMin,
			"break_end_min":     bh.BreakEndMin,
			"is_emergency_only": bh.IsEmergencyOnly,
			"is_closed":         bh.IsClosed,
		}).Error
}
