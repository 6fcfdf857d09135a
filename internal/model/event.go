package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// booking_events — append-only аудит переходов брони.
// Каждая мутация Booking пишет ровно одно событие; события никогда
// не обновляются и не удаляются. Отдельного лога изменений брони нет —
// это единственный механизм аудита.
type BookingEvent struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`

	BookingID  uuid.UUID `gorm:"type:uuid;not null;index"`
	BusinessID uuid.UUID `gorm:"type:uuid;not null;index"`

	OldStatus BookingStatus `gorm:"type:varchar(32)"`
	NewStatus BookingStatus `gorm:"type:varchar(32);not null"`

	// Диф изменённых полей: {"field": [old, new], ...}.
	Diff datatypes.JSON `gorm:"type:jsonb"`

	// Кто инициировал переход (из контекста запроса).
	Actor string `gorm:"type:varchar(255)"`

	CreatedAt time.Time `gorm:"not null;default:now();index"`

	Booking *Booking `gorm:"foreignKey:BookingID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}
