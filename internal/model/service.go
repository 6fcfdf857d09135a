package model

import (
	"time"

	"github.com/google/uuid"
)

// bookable_services — каталог бронируемых услуг.
// Ядро читает каталог, но не владеет им: записи создаёт внешний
// сервис-коллаборатор (e-commerce/каталог).
type BookableService struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`

	BusinessID uuid.UUID `gorm:"type:uuid;not null;index"`

	Name        string `gorm:"type:varchar(255);not null"`
	Description string `gorm:"type:text"`

	// Оценка длительности, минуты.
	DurationMin int `gorm:"not null"`

	// Сколько техников нужно на выезд.
	MinTechnicians int `gorm:"not null;default:1"`
	MaxTechnicians int `gorm:"not null;default:1"`

	// Минимальный срок до начала и максимальный горизонт брони.
	LeadTimeHours  int `gorm:"not null;default:0"`
	MaxAdvanceDays int `gorm:"not null;default:0"`

	// Можно ли бронировать вне рабочих часов (аварийные услуги).
	AllowOutsideHours bool `gorm:"not null;default:false"`

	IsActive bool `gorm:"not null;default:true;index"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	// Навигация many2many
	RequiredSkills []Skill `gorm:"many2many:service_skills;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// service_skills — требуемые навыки услуги.
type ServiceSkill struct {
	ServiceID uuid.UUID `gorm:"type:uuid;primaryKey"`
	SkillID   uuid.UUID `gorm:"type:uuid;primaryKey"`

	CreatedAt time.Time `gorm:"not null;default:now()"`

	Service *BookableService `gorm:"foreignKey:ServiceID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Skill   *Skill           `gorm:"foreignKey:SkillID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}
