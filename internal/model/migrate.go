package model

import "gorm.io/gorm"

// AutoMigrate выполняет миграцию всех сущностей ядра бронирования.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Technician{},
		&Skill{},
		&TechnicianSkill{},
		&BookableService{},
		&ServiceSkill{},
		&BusinessHours{},
		&TimeOff{},
		&Booking{},
		&BookingTechnician{},
		&BookingEvent{},
		&AvailabilityCacheEntry{},
	)
}
