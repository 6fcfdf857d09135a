package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldserve/booking-core/internal/calendar"
	"github.com/fieldserve/booking-core/internal/model"
	"github.com/fieldserve/booking-core/internal/repository"
)

// AvailabilityService — движок доступности: отвечает, кто из техников
// свободен для услуги в заданном окне. Чистые чтения, без блокировок;
// за атомарность «проверить и записать» отвечает BookingService.
type AvailabilityService struct {
	technicians repository.TechnicianRepository
	services    repository.ServiceRepository
	bookings    repository.BookingRepository
	timeOff     repository.TimeOffRepository
	hours       repository.BusinessHoursRepository

	// Подменяется в тестах.
	now func() time.Time
}

func NewAvailabilityService(
	technicians repository.TechnicianRepository,
	services repository.ServiceRepository,
	bookings repository.BookingRepository,
	timeOff repository.TimeOffRepository,
	hours repository.BusinessHoursRepository,
) *AvailabilityService {
	return &AvailabilityService{
		technicians: technicians,
		services:    services,
		bookings:    bookings,
		timeOff:     timeOff,
		hours:       hours,
		now:         time.Now,
	}
}

// WithTx возвращает копию движка, читающую через транзакцию tx.
// Авторитетные проверки на коммите брони обязаны видеть её снимок,
// а не отдельное пуловое соединение.
func (s *AvailabilityService) WithTx(tx *gorm.DB) *AvailabilityService {
	c := *s
	c.technicians = s.technicians.WithTx(tx)
	c.services = s.services.WithTx(tx)
	c.bookings = s.bookings.WithTx(tx)
	c.timeOff = s.timeOff.WithTx(tx)
	c.hours = s.hours.WithTx(tx)
	return &c
}

// FindAvailableTechnicians возвращает ID техников, свободных для услуги
// в интервале. Порядок детерминированный: меньше занятых броней в этот
// день, затем по ID.
func (s *AvailabilityService) FindAvailableTechnicians(
	ctx context.Context,
	businessID, serviceID uuid.UUID,
	interval calendar.TimeRange,
) ([]uuid.UUID, error) {
	svc, err := s.getService(ctx, businessID, serviceID)
	if err != nil {
		return nil, err
	}

	free, err := s.freeTechnicians(ctx, businessID, svc, interval, nil)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(free))
	for _, t := range free {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// FindAvailableTechniciansAt — как FindAvailableTechnicians, но конец
// интервала выводится из длительности услуги.
func (s *AvailabilityService) FindAvailableTechniciansAt(
	ctx context.Context,
	businessID, serviceID uuid.UUID,
	startsAt time.Time,
) ([]uuid.UUID, error) {
	svc, err := s.getService(ctx, businessID, serviceID)
	if err != nil {
		return nil, err
	}
	interval := calendar.TimeRange{
		Start: startsAt,
		End:   startsAt.Add(time.Duration(svc.DurationMin) * time.Minute),
	}
	return s.FindAvailableTechnicians(ctx, businessID, serviceID, interval)
}

// CheckTechnician — авторитетная проверка конкретного техника для
// интервала. Используется на коммите брони; кэш здесь не участвует.
// excludeBookingID исключает собственную бронь при подтверждении.
func (s *AvailabilityService) CheckTechnician(
	ctx context.Context,
	businessID uuid.UUID,
	svc *model.BookableService,
	technicianID uuid.UUID,
	interval calendar.TimeRange,
	excludeBookingID *uuid.UUID,
) error {
	requiredSkills, err := s.services.RequiredSkillIDs(ctx, svc.ID)
	if err != nil {
		return fmt.Errorf("required skills: %w", err)
	}

	qualified, err := s.technicians.ListQualified(ctx, businessID, requiredSkills, interval.Start)
	if err != nil {
		return fmt.Errorf("list qualified: %w", err)
	}

	var tech *model.Technician
	for i := range qualified {
		if qualified[i].ID == technicianID {
			tech = &qualified[i]
			break
		}
	}
	if tech == nil {
		return fmt.Errorf("%w: technician is not qualified or not bookable", ErrSlotUnavailable)
	}

	ok, err := s.technicianFree(ctx, tech, svc, interval, excludeBookingID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSlotUnavailable
	}
	return nil
}

// ValidateWindow проверяет границы бронирования услуги: минимальный
// срок до начала (lead time) и максимальный горизонт.
func (s *AvailabilityService) ValidateWindow(svc *model.BookableService, start time.Time) error {
	now := s.now()
	if svc.LeadTimeHours > 0 && start.Before(now.Add(time.Duration(svc.LeadTimeHours)*time.Hour)) {
		return fmt.Errorf("%w: start violates service lead time of %dh", ErrValidation, svc.LeadTimeHours)
	}
	if svc.MaxAdvanceDays > 0 && start.After(now.AddDate(0, 0, svc.MaxAdvanceDays)) {
		return fmt.Errorf("%w: start beyond advance-booking horizon of %dd", ErrValidation, svc.MaxAdvanceDays)
	}
	return nil
}

// DaySlots считает расклад дня: рабочие часы локации режутся на слоты
// длительностью услуги, для каждого слота — свободные техники.
// Это полезная нагрузка, которую материализует кэш доступности.
func (s *AvailabilityService) DaySlots(
	ctx context.Context,
	businessID, serviceID uuid.UUID,
	date time.Time,
) (*model.AvailabilityDay, error) {
	svc, err := s.getService(ctx, businessID, serviceID)
	if err != nil {
		return nil, err
	}

	requiredSkills, err := s.services.RequiredSkillIDs(ctx, svc.ID)
	if err != nil {
		return nil, fmt.Errorf("required skills: %w", err)
	}

	dayStart := calendar.DayStart(date)
	candidates, err := s.technicians.ListQualified(ctx, businessID, requiredSkills, dayStart)
	if err != nil {
		return nil, fmt.Errorf("list qualified: %w", err)
	}

	day := &model.AvailabilityDay{
		BusinessID: businessID,
		ServiceID:  serviceID,
		Date:       dayStart.Format("2006-01-02"),
		Available:  []model.AvailabilitySlot{},
		Booked:     []model.AvailabilitySlot{},
	}
	if len(candidates) == 0 {
		return day, nil
	}

	slots, err := s.daySlotRanges(ctx, businessID, svc, candidates, dayStart)
	if err != nil {
		return nil, err
	}

	freeTechs := map[uuid.UUID]bool{}
	for _, slot := range slots {
		var slotTechs []uuid.UUID
		for i := range candidates {
			ok, err := s.technicianFree(ctx, &candidates[i], svc, slot, nil)
			if err != nil {
				return nil, err
			}
			if ok {
				slotTechs = append(slotTechs, candidates[i].ID)
				freeTechs[candidates[i].ID] = true
			}
		}

		info := model.AvailabilitySlot{StartsAt: slot.Start, EndsAt: slot.End, TechnicianIDs: slotTechs}
		if len(slotTechs) >= svc.MinTechnicians {
			day.Available = append(day.Available, info)
		} else {
			day.Booked = append(day.Booked, info)
		}
	}

	for id := range freeTechs {
		day.TechnicianIDs = append(day.TechnicianIDs, id)
	}
	sort.Slice(day.TechnicianIDs, func(i, j int) bool {
		return day.TechnicianIDs[i].String() < day.TechnicianIDs[j].String()
	})

	return day, nil
}

// ---------------------------------------------------------------------------
// Внутреннее
// ---------------------------------------------------------------------------

func (s *AvailabilityService) getService(ctx context.Context, businessID, serviceID uuid.UUID) (*model.BookableService, error) {
	svc, err := s.services.GetByID(ctx, businessID, serviceID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: service %s", ErrNotFound, serviceID)
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	if !svc.IsActive {
		return nil, fmt.Errorf("%w: service %s is inactive", ErrNotFound, serviceID)
	}
	return svc, nil
}

// freeTechnicians — квалифицированные техники, прошедшие все проверки
// интервала, в детерминированном порядке.
func (s *AvailabilityService) freeTechnicians(
	ctx context.Context,
	businessID uuid.UUID,
	svc *model.BookableService,
	interval calendar.TimeRange,
	excludeBookingID *uuid.UUID,
) ([]model.Technician, error) {
	requiredSkills, err := s.services.RequiredSkillIDs(ctx, svc.ID)
	if err != nil {
		return nil, fmt.Errorf("required skills: %w", err)
	}

	candidates, err := s.technicians.ListQualified(ctx, businessID, requiredSkills, interval.Start)
	if err != nil {
		return nil, fmt.Errorf("list qualified: %w", err)
	}

	type scored struct {
		tech  model.Technician
		count int64
	}
	var free []scored

	dayStart := calendar.DayStart(interval.Start)
	for i := range candidates {
		ok, err := s.technicianFree(ctx, &candidates[i], svc, interval, excludeBookingID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		count, err := s.bookings.CountOccupyingOnDay(ctx, candidates[i].ID, dayStart)
		if err != nil {
			return nil, fmt.Errorf("count day bookings: %w", err)
		}
		free = append(free, scored{tech: candidates[i], count: count})
	}

	sort.Slice(free, func(i, j int) bool {
		if free[i].count != free[j].count {
			return free[i].count < free[j].count
		}
		return free[i].tech.ID.String() < free[j].tech.ID.String()
	})

	result := make([]model.Technician, 0, len(free))
	for _, f := range free {
		result = append(result, f.tech)
	}
	return result, nil
}

// technicianFree — проверки одного кандидата для интервала.
// Интервал расширяется персональным буфером техника с обеих сторон.
func (s *AvailabilityService) technicianFree(
	ctx context.Context,
	tech *model.Technician,
	svc *model.BookableService,
	interval calendar.TimeRange,
	excludeBookingID *uuid.UUID,
) (bool, error) {
	buffered := interval.ExpandBy(time.Duration(tech.DefaultBufferMin) * time.Minute)

	// (a) пересечение с активной бронёй.
	overlapping, err := s.bookings.ListOccupying(ctx, tech.ID, buffered.Start, buffered.End, excludeBookingID)
	if err != nil {
		return false, fmt.Errorf("list occupying bookings: %w", err)
	}
	if len(overlapping) > 0 {
		return false, nil
	}

	// (b) approved-отсутствие.
	off, err := s.timeOff.HasApprovedOverlap(ctx, tech.ID, buffered.Start, buffered.End, nil)
	if err != nil {
		return false, fmt.Errorf("check time off: %w", err)
	}
	if off {
		return false, nil
	}

	// (c) рабочие часы локации, если услуга не разрешена вне часов.
	if !svc.AllowOutsideHours {
		within, err := s.withinBusinessHours(ctx, tech.BusinessID, tech.LocationID, interval)
		if err != nil {
			return false, err
		}
		if !within {
			return false, nil
		}
	}

	// (d) дневной лимит часов техника.
	if tech.MaxDailyHours > 0 {
		booked, err := s.bookedMinutesOnDay(ctx, tech.ID, calendar.DayStart(interval.Start))
		if err != nil {
			return false, err
		}
		if booked+int(interval.Duration().Minutes()) > tech.MaxDailyHours*60 {
			return false, nil
		}
	}

	return true, nil
}

// IsWithinBusinessHours — публичная версия проверки рабочих часов
// (контракт календарной подложки).
func (s *AvailabilityService) IsWithinBusinessHours(
	ctx context.Context,
	businessID, locationID uuid.UUID,
	interval calendar.TimeRange,
) (bool, error) {
	return s.withinBusinessHours(ctx, businessID, locationID, interval)
}

// HasApprovedTimeOff — контракт календарной подложки.
func (s *AvailabilityService) HasApprovedTimeOff(
	ctx context.Context,
	technicianID uuid.UUID,
	interval calendar.TimeRange,
) (bool, error) {
	return s.timeOff.HasApprovedOverlap(ctx, technicianID, interval.Start, interval.End, nil)
}

func (s *AvailabilityService) withinBusinessHours(
	ctx context.Context,
	businessID, locationID uuid.UUID,
	interval calendar.TimeRange,
) (bool, error) {
	// Многодневные интервалы в рабочие часы не вписываются по определению.
	if !interval.SameDay() {
		return false, nil
	}

	bh, err := s.hours.GetFor(ctx, businessID, locationID, int(interval.Start.Weekday()))
	if err != nil {
		return false, fmt.Errorf("get business hours: %w", err)
	}
	// Нет записи — локация в этот день не работает.
	if bh == nil || bh.IsClosed || bh.IsEmergencyOnly {
		return false, nil
	}

	startMin := calendar.MinutesOfDay(interval.Start)
	endMin := startMin + int(interval.Duration().Minutes())

	if startMin < bh.OpensAtMin || endMin > bh.ClosesAtMin {
		return false, nil
	}
	// Перерыв: интервал не должен его пересекать.
	if bh.BreakEndMin > bh.BreakStartMin {
		if startMin < bh.BreakEndMin && bh.BreakStartMin < endMin {
			return false, nil
		}
	}
	return true, nil
}

func (s *AvailabilityService) bookedMinutesOnDay(
	ctx context.Context,
	technicianID uuid.UUID,
	dayStart time.Time,
) (int, error) {
	dayEnd := dayStart.AddDate(0, 0, 1)
	bookings, err := s.bookings.ListOccupying(ctx, technicianID, dayStart, dayEnd, nil)
	if err != nil {
		return 0, fmt.Errorf("list day bookings: %w", err)
	}
	total := 0
	for _, b := range bookings {
		total += b.DurationMin
	}
	return total, nil
}

// daySlotRanges — слоты дня по рабочим часам. Для услуг «вне часов»
// берём весь день. Длительность слота = длительность услуги.
func (s *AvailabilityService) daySlotRanges(
	ctx context.Context,
	businessID uuid.UUID,
	svc *model.BookableService,
	candidates []model.Technician,
	dayStart time.Time,
) ([]calendar.TimeRange, error) {
	slotDur := time.Duration(svc.DurationMin) * time.Minute

	if svc.AllowOutsideHours {
		full := calendar.TimeRange{Start: dayStart, End: dayStart.AddDate(0, 0, 1)}
		return calendar.SplitToSlots(full, slotDur)
	}

	// Локации кандидатов могут отличаться; берём объединение окон.
	seen := map[uuid.UUID]bool{}
	var ranges []calendar.TimeRange
	for i := range candidates {
		loc := candidates[i].LocationID
		if seen[loc] {
			continue
		}
		seen[loc] = true

		bh, err := s.hours.GetFor(ctx, businessID, loc, int(dayStart.Weekday()))
		if err != nil {
			return nil, fmt.Errorf("get business hours: %w", err)
		}
		if bh == nil || bh.IsClosed || bh.IsEmergencyOnly {
			continue
		}

		window := calendar.TimeRange{
			Start: dayStart.Add(time.Duration(bh.OpensAtMin) * time.Minute),
			End:   dayStart.Add(time.Duration(bh.ClosesAtMin) * time.Minute),
		}
		slots, err := calendar.SplitToSlots(window, slotDur)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, slots...)
	}

	// Дедупликация и сортировка для детерминизма.
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start.Before(ranges[j].Start) })
	out := ranges[:0]
	for i, r := range ranges {
		if i > 0 && r.Start.Equal(ranges[i-1].Start) && r.End.Equal(ranges[i-1].End) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
