package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldserve/booking-core/internal/model"
)

// ServiceRepository — read-only взгляд ядра на каталог услуг.
// Записи каталога создаёт внешний коллаборатор; здесь только чтение
// (плюс Create для миграций и тестов).
type ServiceRepository interface {
	// Копия репозитория, привязанная к транзакции tx.
	WithTx(tx *gorm.DB) ServiceRepository

	GetByID(ctx context.Context, businessID, id uuid.UUID) (*model.BookableService, error)
	// ID требуемых навыков услуги.
	RequiredSkillIDs(ctx context.Context, serviceID uuid.UUID) ([]uuid.UUID, error)
	List(ctx context.Context, businessID uuid.UUID, onlyActive bool, limit, offset int) ([]model.BookableService, int64, error)
	Create(ctx context.Context, s *model.BookableService) error
}

type GormServiceRepository struct {
	db *gorm.DB
}

func NewGormServiceRepository(db *gorm.DB) *GormServiceRepository {
	return &GormServiceRepository{db: db}
}

func (r *GormServiceRepository) WithTx(tx *gorm.DB) ServiceRepository {
	return &GormServiceRepository{db: tx}
}

func (r *GormServiceRepository) GetByID(ctx context.Context, businessID, id uuid.UUID) (*model.BookableService, error) {
	var s model.BookableService
	err := r.db.WithContext(ctx).
		First(&s, "id = ? AND business_id = ?", id, businessID).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormServiceRepository) RequiredSkillIDs(ctx context.Context, serviceID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Table("service_skills").
		Select("skill_id").
		Where("service_id = ?", serviceID).
		Order("skill_id ASC").
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *GormServiceRepository) List(
	ctx context.Context,
	businessID uuid.UUID,
	onlyActive bool,
	limit, offset int,
) ([]model.BookableService, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&model.BookableService{}).
		Where("business_id = ?", businessID)
	if onlyActive {
		q = q.Where("is_active = ?", true)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	var services []model.BookableService
	if err := q.Order("name ASC").Find(&services).Error; err != nil {
		return nil, 0, err
	}
	return services, total, nil
}

func (r *GormServiceRepository) Create(ctx context.Context, s *model.BookableService) error {
	return r.db.WithContext(ctx).Create(s).Error
}
