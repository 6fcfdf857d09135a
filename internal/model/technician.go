package model

import (
	"time"

	"github.com/google/uuid"
)

// Technician — выездной специалист бизнеса (мастер, инженер и т.п.).
// При увольнении запись не удаляется, а деактивируется (IsActive=false),
// пока на неё ссылаются бронирования.
type Technician struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`

	// Тенант-владелец.
	BusinessID uuid.UUID `gorm:"type:uuid;not null;index"`

	DisplayName string `gorm:"type:varchar(255);not null"`
	Email       string `gorm:"type:varchar(255)"`
	Phone       string `gorm:"type:varchar(32)"`

	// Локация, по которой проверяются рабочие часы.
	LocationID uuid.UUID `gorm:"type:uuid;not null;index"`

	IsActive    bool `gorm:"not null;default:true;index"`
	CanBeBooked bool `gorm:"not null;default:true"`

	// Обязательный зазор вокруг каждого бронирования, минуты.
	DefaultBufferMin int `gorm:"not null;default:0"`
	// Максимум рабочих часов в день (0 — без ограничения).
	MaxDailyHours int `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	// Навигационные поля (опционально, удобно для Preload).
	Skills []Skill `gorm:"many2many:technician_skills;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}
