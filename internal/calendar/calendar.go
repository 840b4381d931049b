// Package calendar содержит ключи календарных дней и арифметику по ним.
package calendar

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

const (
	// DaysPerWeek: количество дней в неделе.
	DaysPerWeek = 7

	msPerWeek = int64(DaysPerWeek * 24 * time.Hour / time.Millisecond)

	dateLayout = "2006-01-02"
)

var location atomic.Pointer[time.Location]

func init() {
	location.Store(time.Local)
}

// SetLocation задаёт часовой пояс, в котором вычисляется локальная полночь.
// Вызывается один раз при старте сервиса.
func SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	location.Store(loc)
}

// Location возвращает текущий часовой пояс календаря.
func Location() *time.Location {
	return location.Load()
}

// Key: календарный день, представленный миллисекундами Unix локальной полуночи.
type Key int64

// FromTime отбрасывает время суток и возвращает ключ дня в часовом поясе календаря.
func FromTime(t time.Time) Key {
	t = t.In(Location())
	return Key(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Location()).UnixMilli())
}

// Date возвращает ключ для указанной даты.
func Date(year int, month time.Month, day int) Key {
	return Key(time.Date(year, month, day, 0, 0, 0, 0, Location()).UnixMilli())
}

// Today возвращает ключ текущего дня.
func Today() Key {
	return FromTime(time.Now())
}

// Parse разбирает дату в формате YYYY-MM-DD.
func Parse(s string) (Key, error) {
	t, err := time.ParseInLocation(dateLayout, s, Location())
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", s, err)
	}
	return FromTime(t), nil
}

// Time возвращает момент локальной полуночи дня.
func (k Key) Time() time.Time {
	return time.UnixMilli(int64(k)).In(Location())
}

// String форматирует ключ как YYYY-MM-DD.
func (k Key) String() string {
	return k.Time().Format(dateLayout)
}

// Valid сообщает, что ключ положителен и указывает ровно на локальную полночь.
func (k Key) Valid() bool {
	return k > 0 && FromTime(k.Time()) == k
}

// Weekday возвращает индекс дня недели: воскресенье = 0 … суббота = 6.
func (k Key) Weekday() int {
	return int(k.Time().Weekday())
}

// AddDays сдвигает ключ на n календарных дней с учётом границ месяцев, лет и перехода на летнее время.
func AddDays(k Key, n int) Key {
	return FromTime(k.Time().AddDate(0, 0, n))
}

// WeekStart возвращает воскресенье недели, содержащей k.
func WeekStart(k Key) Key {
	return AddDays(k, -k.Weekday())
}

// WeekDays возвращает семь ключей недели начиная с воскресенья.
func WeekDays(weekStart Key) [DaysPerWeek]Key {
	var days [DaysPerWeek]Key
	for i := range days {
		days[i] = AddDays(weekStart, i)
	}
	return days
}

// WeeksBetween возвращает знаковое число недель от from до to.
// Округление до ближайшего целого поглощает сдвиг из-за летнего времени.
func WeeksBetween(from, to Key) int {
	return int(math.Round(float64(int64(to)-int64(from)) / float64(msPerWeek)))
}

// InWeek сообщает, попадает ли k в неделю, начинающуюся с weekStart.
func InWeek(k, weekStart Key) bool {
	return k >= weekStart && k <= AddDays(weekStart, DaysPerWeek-1)
}
