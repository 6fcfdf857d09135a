package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldserve/booking-core/internal/model"
)

// Статусы, занимающие календарь. Pending держит мягкий холд, пока у него
// назначено время (scheduled_at IS NOT NULL — см. ListOccupying).
var occupyingStatuses = []model.BookingStatus{
	model.BookingStatusPending,
	model.BookingStatusConfirmed,
	model.BookingStatusInProgress,
}

// BookingFilter — параметры листинга броней.
type BookingFilter struct {
	TechnicianID *uuid.UUID
	Status       *model.BookingStatus
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

type BookingRepository interface {
	// Копия репозитория, привязанная к транзакции tx.
	WithTx(tx *gorm.DB) BookingRepository

	// Создать бронь вместе со строками назначения техников.
	Create(ctx context.Context, b *model.Booking, technicianIDs []uuid.UUID) error
	GetByID(ctx context.Context, businessID, id uuid.UUID) (*model.Booking, error)
	// Поиск по ключу идемпотентности; nil — ключ ещё не использован.
	GetByIdempotencyKey(ctx context.Context, businessID uuid.UUID, key string) (*model.Booking, error)
	// Частичное обновление полей брони.
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	// Брони, занимающие календарь техника и пересекающие [from, to).
	ListOccupying(ctx context.Context, technicianID uuid.UUID, from, to time.Time, excludeID *uuid.UUID) ([]model.Booking, error)
	// Сколько занятых броней у техника в сутках, начинающихся dayStart.
	CountOccupyingOnDay(ctx context.Context, technicianID uuid.UUID, dayStart time.Time) (int64, error)
	// Назначенные техники брони.
	ListTechnicians(ctx context.Context, bookingID uuid.UUID) ([]model.BookingTechnician, error)
	List(ctx context.Context, businessID uuid.UUID, f BookingFilter) ([]model.Booking, int64, error)
}

// Реализация на GORM.
type GormBookingRepository struct {
	db *gorm.DB
}

func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

func (r *GormBookingRepository) WithTx(tx *gorm.DB) BookingRepository {
	return &GormBookingRepository{db: tx}
}

func (r *GormBookingRepository) Create(ctx context.Context, b *model.Booking, technicianIDs []uuid.UUID) error {
	if err := r.db.WithContext(ctx).Create(b).Error; err != nil {
		return err
	}

	rows := make([]model.BookingTechnician, 0, len(technicianIDs))
	for _, techID := range technicianIDs {
		role := "assist"
		if techID == b.PrimaryTechnicianID {
			role = "primary"
		}
		rows = append(rows, model.BookingTechnician{
			BookingID:    b.ID,
			TechnicianID: techID,
			Role:         role,
		})
	}
	if len(rows) == 0 {
		rows = append(rows, model.BookingTechnician{
			BookingID:    b.ID,
			TechnicianID: b.PrimaryTechnicianID,
			Role:         "primary",
		})
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *GormBookingRepository) GetByID(ctx context.Context, businessID, id uuid.UUID) (*model.Booking, error) {
	var b model.Booking
	err := r.db.WithContext(ctx).
		First(&b, "id = ? AND business_id = ?", id, businessID).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *GormBookingRepository) GetByIdempotencyKey(
	ctx context.Context,
	businessID uuid.UUID,
	key string,
) (*model.Booking, error) {
	var b model.Booking
	err := r.db.WithContext(ctx).
		First(&b, "idempotency_key = ? AND business_id = ?", key, businessID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *GormBookingRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormBookingRepository) ListOccupying(
	ctx context.Context,
	technicianID uuid.UUID,
	from, to time.Time,
	excludeID *uuid.UUID,
) ([]model.Booking, error) {
	q := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Joins("JOIN booking_technicians bt ON bt.booking_id = bookings.id").
		Where("bt.technician_id = ?", technicianID).
		Where("bookings.status IN ?", occupyingStatuses).
		Where("bookings.scheduled_at IS NOT NULL").
		// Полуоткрытые интервалы [scheduled_at, scheduled_end_at).
		Where("bookings.scheduled_at < ? AND bookings.scheduled_end_at > ?", to, from)
	if excludeID != nil {
		q = q.Where("bookings.id <> ?", *excludeID)
	}

	var bookings []model.Booking
	if err := q.Order("bookings.scheduled_at ASC").Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *GormBookingRepository) CountOccupyingOnDay(
	ctx context.Context,
	technicianID uuid.UUID,
	dayStart time.Time,
) (int64, error) {
	dayEnd := dayStart.AddDate(0, 0, 1)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Joins("JOIN booking_technicians bt ON bt.booking_id = bookings.id").
		Where("bt.technician_id = ?", technicianID).
		Where("bookings.status IN ?", occupyingStatuses).
		Where("bookings.scheduled_at >= ? AND bookings.scheduled_at < ?", dayStart, dayEnd).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GormBookingRepository) ListTechnicians(ctx context.Context, bookingID uuid.UUID) ([]model.BookingTechnician, error) {
	var rows []model.BookingTechnician
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("role DESC"). // primary раньше assist
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *GormBookingRepository) List(
	ctx context.Context,
	businessID uuid.UUID,
	f BookingFilter,
) ([]model.Booking, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("business_id = ?", businessID)

	if f.TechnicianID != nil {
		q = q.Where("primary_technician_id = ?", *f.TechnicianID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.From != nil {
		q = q.Where("requested_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("requested_at < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}

	var bookings []model.Booking
	if err := q.Order("created_at DESC").Find(&bookings).Error; err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}
