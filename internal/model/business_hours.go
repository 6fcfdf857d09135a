package model

import (
	"time"

	"github.com/google/uuid"
)

// business_hours — рабочие часы локации по дням недели.
// Времена храним в минутах от полуночи локального дня, чтобы не
// завязываться на конкретную дату.
type BusinessHours struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`

	BusinessID uuid.UUID `gorm:"type:uuid;not null;index:idx_business_hours_loc_day"`
	LocationID uuid.UUID `gorm:"type:uuid;not null;index:idx_business_hours_loc_day"`

	// 0 = воскресенье ... 6 = суббота (как time.Weekday).
	Weekday int `gorm:"not null;index:idx_business_hours_loc_day"`

	OpensAtMin  int `gorm:"not null;default:0"`
	ClosesAtMin int `gorm:"not null;default:0"`

	// Обеденный перерыв; 0/0 — перерыва нет.
	BreakStartMin int `gorm:"not null;default:0"`
	BreakEndMin   int `gorm:"not null;default:0"`

	// День только для аварийных выездов: обычные услуги не бронируются.
	IsEmergencyOnly bool `gorm:"not null;default:false"`
	IsClosed        bool `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}
