package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldserve/booking-core/internal/model"
)

type TechnicianRepository interface {
	// Копия репозитория, привязанная к транзакции tx.
	WithTx(tx *gorm.DB) TechnicianRepository

	// Создать техника.
	Create(ctx context.Context, t *model.Technician) error
	// Получить техника по ID в рамках тенанта.
	GetByID(ctx context.Context, businessID, id uuid.UUID) (*model.Technician, error)
	// Список техников тенанта с пагинацией.
	List(ctx context.Context, businessID uuid.UUID, onlyActive bool, limit, offset int) ([]model.Technician, int64, error)
	// Включить/выключить техника (мягкая деактивация при увольнении).
	SetActive(ctx context.Context, businessID, id uuid.UUID, active bool) error
	// Квалифицированные техники: активен, бронируем, держит все
	// requiredSkillIDs, ни один сертификат не истёк на asOf.
	ListQualified(ctx context.Context, businessID uuid.UUID, requiredSkillIDs []uuid.UUID, asOf time.Time) ([]model.Technician, error)
	// Назначить навык технику (идемпотентно по паре ключей).
	AssignSkill(ctx context.Context, ts *model.TechnicianSkill) error
}

// Реализация на GORM.
type GormTechnicianRepository struct {
	db *gorm.DB
}

func NewGormTechnicianRepository(db *gorm.DB) *GormTechnicianRepository {
	return &GormTechnicianRepository{db: db}
}

func (r *GormTechnicianRepository) WithTx(tx *gorm.DB) TechnicianRepository {
	return &GormTechnicianRepository{db: tx}
}

func (r *GormTechnicianRepository) Create(ctx context.Context, t *model.Technician) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *GormTechnicianRepository) GetByID(ctx context.Context, businessID, id uuid.UUID) (*model.Technician, error) {
	var t model.Technician
	err := r.db.WithContext(ctx).
		First(&t, "id = ? AND business_id = ?", id, businessID).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *GormTechnicianRepository) List(
	ctx context.Context,
	businessID uuid.UUID,
	onlyActive bool,
	limit, offset int,
) ([]model.Technician, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&model.Technician{}).
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

	var techs []model.Technician
	if err := q.Order("display_name ASC").Find(&techs).Error; err != nil {
		return nil, 0, err
	}
	return techs, total, nil
}

func (r *GormTechnicianRepository) SetActive(ctx context.Context, businessID, id uuid.UUID, active bool) error {
	res := r.db.WithContext(ctx).
		Model(&model.Technician{}).
		Where("id = ? AND business_id = ?", id, businessID).
		Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormTechnicianRepository) ListQualified(
	ctx context.Context,
	businessID uuid.UUID,
	requiredSkillIDs []uuid.UUID,
	asOf time.Time,
) ([]model.Technician, error) {
	base := r.db.WithContext(ctx).
		Model(&model.Technician{}).
		Where("technicians.business_id = ?", businessID).
		Where("technicians.is_active = ?", true).
		Where("technicians.can_be_booked = ?", true)

	// Услуга без требований к навыкам: годится любой активный техник.
	if len(requiredSkillIDs) == 0 {
		var techs []model.Technician
		if err := base.Order("technicians.id ASC").Find(&techs).Error; err != nil {
			return nil, err
		}
		return techs, nil
	}

	var techs []model.Technician
	err := base.
		Joins("JOIN technician_skills ts ON ts.technician_id = technicians.id").
		Where("ts.skill_id IN ?", requiredSkillIDs).
		Where("ts.cert_expires_at IS NULL OR ts.cert_expires_at > ?", asOf).
		Group("technicians.id").
		Having("COUNT(DISTINCT ts.skill_id) = ?", len(requiredSkillIDs)).
		Order("technicians.id ASC").
		Find(&techs).Error
	if err != nil {
		return nil, err
	}
	return techs, nil
}

func (r *GormTechnicianRepository) AssignSkill(ctx context.Context, ts *model.TechnicianSkill) error {
	return r.db.WithContext(ctx).Save(ts).Error
}
