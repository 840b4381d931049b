package calendar

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// VisitDay: код дня недели, используемый в настройках визитов поставщиков.
type VisitDay string

const (
	Sunday    VisitDay = "SUNDAY"
	Monday    VisitDay = "MONDAY"
	Tuesday   VisitDay = "TUESDAY"
	Wednesday VisitDay = "WEDNESDAY"
	Thursday  VisitDay = "THURSDAY"
	Friday    VisitDay = "FRIDAY"
	Saturday  VisitDay = "SATURDAY"
)

// VisitDays перечисляет коды в порядке индексов дней недели.
var VisitDays = [DaysPerWeek]VisitDay{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// VisitDayOf возвращает код дня недели для ключа.
func VisitDayOf(k Key) VisitDay {
	return VisitDays[k.Weekday()]
}

// VisitDayFromWeekday преобразует time.Weekday в код.
func VisitDayFromWeekday(wd time.Weekday) VisitDay {
	return VisitDays[int(wd)%DaysPerWeek]
}

// Index возвращает индекс дня (воскресенье = 0) или -1 для неизвестного кода.
func (d VisitDay) Index() int {
	for i, v := range VisitDays {
		if v == d {
			return i
		}
	}
	return -1
}

// Valid сообщает, является ли код одним из семи известных.
func (d VisitDay) Valid() bool {
	return d.Index() >= 0
}

// ParseVisitDay разбирает код без учёта регистра.
func ParseVisitDay(s string) (VisitDay, error) {
	d := VisitDay(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown visit day %q", s)
	}
	return d, nil
}

// UnmarshalJSON принимает коды в любом регистре. Неизвестный код сохраняется как есть:
// ошибка одной записи справочника не должна ломать разбор всего списка.
func (d *VisitDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*d = VisitDay(strings.ToUpper(strings.TrimSpace(s)))
	return nil
}
