package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldserve/booking-core/internal/model"
)

// EventRepository — append-only журнал событий брони.
// Обновления и удаления не предусмотрены намеренно.
type EventRepository interface {
	WithTx(tx *gorm.DB) EventRepository

	Append(ctx context.Context, e *model.BookingEvent) error
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]model.BookingEvent, error)
}

type GormEventRepository struct {
	db *gorm.DB
}

func NewGormEventRepository(db *gorm.DB) *GormEventRepository {
	return &GormEventRepository{db: db}
}

func (r *GormEventRepository) WithTx(tx *gorm.DB) EventRepository {
	return &GormEventRepository{db: tx}
}

func (r *GormEventRepository) Append(ctx context.Context, e *model.BookingEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *GormEventRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]model.BookingEvent, error) {
	var events []model.BookingEvent
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
