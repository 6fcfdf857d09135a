package service

import "github.com/fieldserve/booking-core/internal/model"

// Таблица переходов машины состояний брони.
// pending — единственный начальный статус; completed, cancelled и
// no_show — терминальные.
var bookingTransitions = map[model.BookingStatus][]model.BookingStatus{
	model.BookingStatusPending: {
		model.BookingStatusConfirmed,
		model.BookingStatusCancelled,
	},
	model.BookingStatusConfirmed: {
		model.BookingStatusInProgress,
		model.BookingStatusCancelled,
		model.BookingStatusNoShow,
	},
	model.BookingStatusInProgress: {
		model.BookingStatusCompleted,
	},
}

// CanTransition отвечает, разрешён ли переход from → to.
func CanTransition(from, to model.BookingStatus) bool {
	for _, allowed := range bookingTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
