package model

import (
	"time"

	"github.com/google/uuid"
)

// Тип отсутствия техника.
type TimeOffType string

const (
	TimeOffTypeVacation TimeOffType = "vacation"
	TimeOffTypeSick     TimeOffType = "sick"
	TimeOffTypeTraining TimeOffType = "training"
	TimeOffTypeBreak    TimeOffType = "break"
)

// Статус заявки на отсутствие.
type TimeOffStatus string

const (
	TimeOffStatusPending  TimeOffStatus = "pending"
	TimeOffStatusApproved TimeOffStatus = "approved"
	TimeOffStatusDenied   TimeOffStatus = "denied"
)

// time_offs — интервалы отсутствия [StartsAt, EndsAt).
// Инвариант: у одного техника два approved-интервала не пересекаются.
// Проверяется на уровне хранилища в той же транзакции, что и запись.
type TimeOff struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`

	TechnicianID uuid.UUID `gorm:"type:uuid;not null;index"`

	StartsAt time.Time `gorm:"type:timestamp with time zone;not null;index"`
	EndsAt   time.Time `gorm:"type:timestamp with time zone;not null"`

	Type   TimeOffType   `gorm:"type:varchar(32);not null"`
	Status TimeOffStatus `gorm:"type:varchar(32);not null;default:'pending';index"`

	Reason string `gorm:"type:text"`

	// Кто и когда решил судьбу заявки.
	DecidedBy string     `gorm:"type:varchar(255)"`
	DecidedAt *time.Time `gorm:"type:timestamp with time zone"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Technician *Technician `gorm:"foreignKey:TechnicianID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}
