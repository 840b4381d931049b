// Package schedule вычисляет график создания заказов и поставок по настройкам визитов поставщиков.
package schedule

import (
	"github.com/mmeshcher/supplier-orders/internal/calendar"
	"github.com/mmeshcher/supplier-orders/internal/model"
)

// IntervalWeeks возвращает номинальный интервал повторения в неделях.
// MONTHLY и EVERY_22_DAYS приближены фиксированным числом недель, как в исходном бизнес-процессе.
func IntervalWeeks(f model.Frequency) int {
	switch f {
	case model.FrequencyBiweekly:
		return 2
	case model.FrequencyEvery22Days:
		return 3
	case model.FrequencyMonthly:
		return 4
	default:
		return 1
	}
}

// AppliesToWeek сообщает, активен ли поставщик в неделе, начинающейся с candidateWeekStart.
func AppliesToWeek(cfg *model.VisitConfig, candidateWeekStart calendar.Key) bool {
	if cfg == nil {
		return false
	}

	interval := IntervalWeeks(cfg.Frequency)
	if interval == 1 {
		return true
	}

	// Настройки, созданные до появления якорной даты, применяются каждую неделю.
	if cfg.AnchorDate == nil {
		return true
	}

	anchorWeek := calendar.WeekStart(*cfg.AnchorDate)
	diff := calendar.WeeksBetween(anchorWeek, candidateWeekStart)

	return ((diff%interval)+interval)%interval == 0
}
