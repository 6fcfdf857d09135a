package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldserve/booking-core/internal/model"
)

type TimeOffRepository interface {
	// Копия репозитория, привязанная к транзакции tx.
	WithTx(tx *gorm.DB) TimeOffRepository

	Create(ctx context.Context, to *model.TimeOff) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.TimeOff, error)
	// Зафиксировать решение по заявке.
	SetStatus(ctx context.Context, id uuid.UUID, status model.TimeOffStatus, decidedBy string, decidedAt time.Time) error
	// Есть ли у техника approved-интервал, пересекающий [from, to).
	// excludeID исключает саму заявку при повторной проверке на approve.
	HasApprovedOverlap(ctx context.Context, technicianID uuid.UUID, from, to time.Time, excludeID *uuid.UUID) (bool, error)
	// Заявки техника за период.
	ListByTechnician(ctx context.Context, technicianID uuid.UUID, from, to time.Time) ([]model.TimeOff, error)
}

type GormTimeOffRepository struct {
	db *gorm.DB
}

func NewGormTimeOffRepository(db *gorm.DB) *GormTimeOffRepository {
	return &GormTimeOffRepository{db: db}
}

func (r *GormTimeOffRepository) WithTx(tx *gorm.DB) TimeOffRepository {
	return &GormTimeOffRepository{db: tx}
}

func (r *GormTimeOffRepository) Create(ctx context.Context, to *model.TimeOff) error {
	return r.db.WithContext(ctx).Create(to).Error
}

func (r *GormTimeOffRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TimeOff, error) {
	var to model.TimeOff
	if err := r.db.WithContext(ctx).First(&to, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &to, nil
}

func (r *GormTimeOffRepository) SetStatus(
	ctx context.Context,
	id uuid.UUID,
	status model.TimeOffStatus,
	decidedBy string,
	decidedAt time.Time,
) error {
	res := r.db.WithContext(ctx).
		Model(&model.TimeOff{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"decided_by": decidedBy,
			"decided_at": decidedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormTimeOffRepository) HasApprovedOverlap(
	ctx context.Context,
	technicianID uuid.UUID,
	from, to time.Time,
	excludeID *uuid.UUID,
) (bool, error) {
	// Полуоткрытые интервалы [StartsAt, EndsAt): пересечение есть,
	// когда starts_at < to && ends_at > from.
	q := r.db.WithContext(ctx).
		Model(&model.TimeOff{}).
		Where("technician_id = ?", technicianID).
		Where("status = ?", model.TimeOffStatusApproved).
		Where("starts_at < ? AND ends_at > ?", to, from)
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormTimeOffRepository) ListByTechnician(
	ctx context.Context,
	technicianID uuid.UUID,
	from, to time.Time,
) ([]model.TimeOff, error) {
	var items []model.TimeOff
	err := r.db.WithContext(ctx).
		Where("technician_id = ?", technicianID).
		Where("starts_at < ? AND ends_at > ?", to, from).
		Order("starts_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
