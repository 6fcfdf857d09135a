package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// availability_cache_entries — производный кэш результатов движка
// доступности. Одноразовый: его можно целиком снести в любой момент,
// пострадает только латентность. На коммите брони кэшу не верим —
// всегда живой пересчёт.
type AvailabilityCacheEntry struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`

	BusinessID uuid.UUID      `gorm:"type:uuid;not null;index:idx_avail_cache_key"`
	ServiceID  uuid.UUID      `gorm:"type:uuid;not null;index:idx_avail_cache_key"`
	Date       datatypes.Date `gorm:"type:date;not null;index:idx_avail_cache_key"`

	// Сериализованный AvailabilityDay.
	Payload datatypes.JSON `gorm:"type:jsonb;not null"`

	ExpiresAt time.Time `gorm:"type:timestamp with time zone;not null;index"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

// AvailabilityDay — полезная нагрузка кэша: расклад дня по слотам.
type AvailabilityDay struct {
	BusinessID uuid.UUID          `json:"business_id"`
	ServiceID  uuid.UUID          `json:"service_id"`
	Date       string             `json:"date"` // YYYY-MM-DD
	Available  []AvailabilitySlot `json:"available_slots"`
	Booked     []AvailabilitySlot `json:"booked_slots"`
	// Техники, свободные хотя бы в одном слоте дня.
	TechnicianIDs []uuid.UUID `json:"available_technician_ids"`
}

// AvailabilitySlot — один дискретный слот дня.
type AvailabilitySlot struct {
	StartsAt      time.Time   `json:"starts_at"`
	EndsAt        time.Time   `json:"ends_at"`
	TechnicianIDs []uuid.UUID `json:"technician_ids"`
}
