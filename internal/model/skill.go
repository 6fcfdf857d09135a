package model

import (
	"time"

	"github.com/google/uuid"
)

// skills
type Skill struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`

	BusinessID uuid.UUID `gorm:"type:uuid;not null;index"`

	Name        string `gorm:"type:varchar(255);not null"`
	Description string `gorm:"type:text"`

	// Требуется ли сертификат для этого навыка.
	RequiresCert bool `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

// technician_skills — кастомная join-таблица многие-ко-многим.
// Техник "квалифицирован" для услуги, только если держит ВСЕ её навыки
// и ни один сертификат не истёк на момент бронирования.
type TechnicianSkill struct {
	TechnicianID uuid.UUID `gorm:"type:uuid;primaryKey"`
	SkillID      uuid.UUID `gorm:"type:uuid;primaryKey"`

	// Уровень владения: 1..5.
	Proficiency int `gorm:"not null;default:1"`

	CertifiedAt   *time.Time `gorm:"type:timestamp with time zone"`
	CertExpiresAt *time.Time `gorm:"type:timestamp with time zone;index"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Technician *Technician `gorm:"foreignKey:TechnicianID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Skill      *Skill      `gorm:"foreignKey:SkillID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}
