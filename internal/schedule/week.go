package schedule

import (
	"sort"

	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/mmeshcher/supplier-orders/internal/calendar"
	"github.com/mmeshcher/supplier-orders/internal/model"
)

// DeliveryLookaheadDays ограничивает поиск дня поставки после дня заказа.
const DeliveryLookaheadDays = 14

// Builder строит модель недели. Безопасен для конкурентного использования.
type Builder struct {
	logger *zap.Logger
	lang   language.Tag
}

// NewBuilder создаёт построитель модели недели; lang задаёт правила сортировки имён поставщиков.
func NewBuilder(logger *zap.Logger, lang language.Tag) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		logger: logger,
		lang:   lang,
	}
}

// daySet: множество кодов поставщиков, уже добавленных в список дня.
type daySet map[string]struct{}

func (s daySet) add(code string) bool {
	if _, ok := s[code]; ok {
		return false
	}
	s[code] = struct{}{}
	return true
}

// Build возвращает модель недели, содержащей weekStart, для переданных поставщиков.
func (b *Builder) Build(weekStart calendar.Key, providers []model.Provider) model.WeekModel {
	weekStart = calendar.WeekStart(weekStart)

	week := model.WeekModel{WeekStart: weekStart}
	for i, k := range calendar.WeekDays(weekStart) {
		week.Days[i] = model.DayModel{
			Date:        k,
			Day:         calendar.VisitDays[i],
			CreateList:  []model.SupplierRef{},
			ReceiveList: []model.SupplierRef{},
		}
	}

	var createSeen, receiveSeen [calendar.DaysPerWeek]daySet
	for i := range createSeen {
		createSeen[i] = daySet{}
		receiveSeen[i] = daySet{}
	}

	for _, p := range providers {
		if !p.Scheduled() {
			continue
		}
		b.createPass(&week, createSeen[:], p)
		b.receivePass(&week, receiveSeen[:], p)
	}

	col := collate.New(b.lang, collate.IgnoreCase)
	for i := range week.Days {
		sortRefs(col, week.Days[i].CreateList)
		sortRefs(col, week.Days[i].ReceiveList)
	}

	return week
}

func (b *Builder) createPass(week *model.WeekModel, seen []daySet, p model.Provider) {
	cfg := p.VisitConfig
	if !AppliesToWeek(cfg, week.WeekStart) {
		return
	}

	for _, d := range cfg.CreateOrderDays {
		idx := d.Index()
		if idx < 0 {
			b.logConfigError(&ConfigurationError{ProviderCode: p.Code, Reason: "unknown create day " + string(d)})
			continue
		}
		if seen[idx].add(p.Code) {
			week.Days[idx].CreateList = append(week.Days[idx].CreateList, p.Ref())
		}
	}
}

// receivePass учитывает заказы, созданные в целевой неделе и в предыдущей.
func (b *Builder) receivePass(week *model.WeekModel, seen []daySet, p model.Provider) {
	cfg := p.VisitConfig
	if !cfg.CanDeliver() {
		return
	}

	for _, offsetWeeks := range []int{0, -1} {
		candidateWeek := calendar.AddDays(week.WeekStart, offsetWeeks*calendar.DaysPerWeek)
		if !AppliesToWeek(cfg, candidateWeek) {
			continue
		}

		for _, createDay := range cfg.CreateOrderDays {
			idx := createDay.Index()
			if idx < 0 {
				continue
			}
			createDate := calendar.AddDays(candidateWeek, idx)

			delivery, ok := DeliveryDate(createDate, cfg.ReceiveOrderDays, containsDay(cfg.ReceiveOrderDays, createDay))
			if !ok {
				b.logConfigError(&ConfigurationError{
					ProviderCode: p.Code,
					CreateDate:   createDate,
					Reason:       "no receive day within lookahead",
				})
				continue
			}

			if !calendar.InWeek(delivery, week.WeekStart) {
				continue
			}

			day := delivery.Weekday()
			if seen[day].add(p.Code) {
				week.Days[day].ReceiveList = append(week.Days[day].ReceiveList, p.Ref())
			}
		}
	}
}

func (b *Builder) logConfigError(err *ConfigurationError) {
	b.logger.Warn("supplier skipped in week model",
		zap.String("provider", err.ProviderCode),
		zap.Error(err),
	)
}

// DeliveryDate ищет первый день поставки после createDate в пределах DeliveryLookaheadDays.
// При inclusive сам день заказа тоже может быть днём поставки.
func DeliveryDate(createDate calendar.Key, receiveDays []calendar.VisitDay, inclusive bool) (calendar.Key, bool) {
	start := 1
	if inclusive {
		start = 0
	}

	for i := start; i <= DeliveryLookaheadDays; i++ {
		candidate := calendar.AddDays(createDate, i)
		if containsDay(receiveDays, calendar.VisitDayOf(candidate)) {
			return candidate, true
		}
	}

	return 0, false
}

func containsDay(days []calendar.VisitDay, d calendar.VisitDay) bool {
	for _, v := range days {
		if v == d {
			return true
		}
	}
	return false
}

func sortRefs(col *collate.Collator, refs []model.SupplierRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		if c := col.CompareString(refs[i].Name, refs[j].Name); c != 0 {
			return c < 0
		}
		return refs[i].Code < refs[j].Code
	})
}
