package calendar

import (
	"errors"
	"time"
)

var (
	ErrInvalidTimeRange = errors.New("invalid time range")
	ErrSlotDuration     = errors.New("slot duration must be positive")
)

// TimeRange представляет временной интервал [Start, End).
// Вся интервальная математика ядра работает с полуоткрытыми
// интервалами: смежные брони (одна кончается ровно там, где начинается
// другая) конфликтом не считаются.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange создаёт интервал и делает простую валидацию.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if start.IsZero() || end.IsZero() {
		return TimeRange{}, ErrInvalidTimeRange
	}
	if !end.After(start) {
		return TimeRange{}, ErrInvalidTimeRange
	}
	return TimeRange{Start: start, End: end}, nil
}

// Duration — длительность интервала.
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// ExpandBy расширяет интервал на buffer в обе стороны.
// Буфер техника применяется к его кандидатуре индивидуально.
func (tr TimeRange) ExpandBy(buffer time.Duration) TimeRange {
	if buffer <= 0 {
		return tr
	}
	return TimeRange{Start: tr.Start.Add(-buffer), End: tr.End.Add(buffer)}
}

// Overlaps проверяет пересечение полуоткрытых интервалов [Start, End).
func (tr TimeRange) Overlaps(other TimeRange) bool {
	return tr.Start.Before(other.End) && other.Start.Before(tr.End)
}

// SameDay — лежит ли интервал целиком в пределах одних календарных суток
// (в часовом поясе начала интервала).
func (tr TimeRange) SameDay() bool {
	y1, m1, d1 := tr.Start.Date()
	// Конец в полночь следующего дня — ещё «тот же день» для [Start, End).
	end := tr.End.Add(-time.Nanosecond)
	y2, m2, d2 := end.In(tr.Start.Location()).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// SplitToSlots разбивает интервал на слоты фиксированной длительности.
// "Хвост" меньшей длительности, чем slotDuration, отбрасывается.
func SplitToSlots(tr TimeRange, slotDuration time.Duration) ([]TimeRange, error) {
	if slotDuration <= 0 {
		return nil, ErrSlotDuration
	}
	if !tr.End.After(tr.Start) {
		return []TimeRange{}, nil
	}

	var slots []TimeRange
	for cur := tr.Start; !cur.Add(slotDuration).After(tr.End); cur = cur.Add(slotDuration) {
		slots = append(slots, TimeRange{Start: cur, End: cur.Add(slotDuration)})
	}
	return slots, nil
}

// MinutesOfDay — минуты от полуночи для момента t (в его поясе).
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// DayStart — полночь суток, которым принадлежит t.
func DayStart(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
