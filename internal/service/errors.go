package service

import "errors"

// Таксономия ошибок ядра. Хендлеры HTTP мапят их на статусы;
// ни одна не глотается молча. Единственный внутренне поглощаемый
// случай — идемпотентный повтор (тот же ключ, тот же payload),
// который возвращает исходную бронь без ошибки.
var (
	// Некорректный запрос; не ретраится.
	ErrValidation = errors.New("validation failed")
	// Неизвестная бронь / техник / услуга.
	ErrNotFound = errors.New("not found")
	// Проверка доступности на коммите не прошла; клиент перезапрашивает слоты.
	ErrSlotUnavailable = errors.New("slot is unavailable")
	// Заявка на отсутствие пересекается с approved-интервалом.
	ErrTimeOffOverlap = errors.New("time off overlaps an approved interval")
	// Повтор ключа идемпотентности с другим payload.
	ErrIdempotencyConflict = errors.New("idempotency key reused with different payload")
	// Переход машины состояний из недопустимого статуса.
	ErrInvalidTransition = errors.New("invalid status transition")
)
