package model

import (
	"time"

	"github.com/google/uuid"
)

// Статус бронирования. Машина состояний:
//
//	pending → confirmed → in_progress → completed
//	pending|confirmed → cancelled
//	confirmed → no_show
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusInProgress BookingStatus = "in_progress"
	BookingStatusCompleted  BookingStatus = "completed"
	BookingStatusCancelled  BookingStatus = "cancelled"
	BookingStatusNoShow     BookingStatus = "no_show"
)

// IsTerminal — терминальные статусы, из которых переходов нет.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCancelled, BookingStatusNoShow:
		return true
	}
	return false
}

// bookings — основной агрегат ядра.
//
// Занятый интервал [ScheduledAt, ScheduledEndAt) не должен пересекаться
// с интервалом другой активной брони того же техника. ScheduledEndAt —
// производное поле (ScheduledAt + DurationMin), пересчитывается в коде,
// а не в БД.
type Booking struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`

	BusinessID uuid.UUID `gorm:"type:uuid;not null;index"`

	ServiceID uuid.UUID `gorm:"type:uuid;not null;index"`
	// Снимок длительности услуги на момент создания брони.
	DurationMin int `gorm:"not null"`

	PrimaryTechnicianID uuid.UUID `gorm:"type:uuid;not null;index"`

	// Денормализованный снимок клиента: не FK в CRM, чтобы история
	// броней переживала изменение/удаление контакта.
	CustomerName  string `gorm:"type:varchar(255);not null"`
	CustomerPhone string `gorm:"type:varchar(32)"`
	CustomerEmail string `gorm:"type:varchar(255)"`

	ServiceAddress string `gorm:"type:text"`

	// Когда клиент попросил / на когда подтверждено / когда завершено.
	RequestedAt    time.Time  `gorm:"type:timestamp with time zone;not null"`
	ScheduledAt    *time.Time `gorm:"type:timestamp with time zone;index"`
	ScheduledEndAt *time.Time `gorm:"type:timestamp with time zone"`
	CompletedAt    *time.Time `gorm:"type:timestamp with time zone"`

	Status BookingStatus `gorm:"type:varchar(32);not null;index"`

	// Ключ идемпотентности от вызывающей стороны + отпечаток запроса.
	IdempotencyKey string `gorm:"type:varchar(128);not null;uniqueIndex"`
	RequestHash    string `gorm:"type:varchar(64);not null"`

	CancelReason string     `gorm:"type:text"`
	CancelledBy  string     `gorm:"type:varchar(255)"`
	CancelledAt  *time.Time `gorm:"type:timestamp with time zone"`

	Comment string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	// Навигационные поля.
	Service     *BookableService    `gorm:"foreignKey:ServiceID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Technicians []BookingTechnician `gorm:"foreignKey:BookingID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// Occupies — занимает ли бронь календарь. Pending с назначенным временем
// держит мягкий холд; pending без времени календарь не трогает.
func (b *Booking) Occupies() bool {
	switch b.Status {
	case BookingStatusConfirmed, BookingStatusInProgress:
		return b.ScheduledAt != nil
	case BookingStatusPending:
		return b.ScheduledAt != nil
	}
	return false
}

// booking_technicians — все назначенные на бронь техники (включая
// основного). Join-таблица вместо массива uuid: ссылочная целостность
// структурная, а не проверочная функция.
type BookingTechnician struct {
	BookingID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	TechnicianID uuid.UUID `gorm:"type:uuid;primaryKey;index"`

	// primary | assist
	Role string `gorm:"type:varchar(16);not null;default:'assist'"`

	CreatedAt time.Time `gorm:"not null;default:now()"`

	Booking    *Booking    `gorm:"foreignKey:BookingID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Technician *Technician `gorm:"foreignKey:TechnicianID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}
