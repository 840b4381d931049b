// Package model содержит доменные сущности графика визитов поставщиков и журнала заказов.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/supplier-orders/internal/calendar"
)

// Frequency описывает класс периодичности визитов поставщика.
type Frequency string

const (
	FrequencyWeekly      Frequency = "WEEKLY"
	FrequencyBiweekly    Frequency = "BIWEEKLY"
	FrequencyMonthly     Frequency = "MONTHLY"
	FrequencyEvery22Days Frequency = "EVERY_22_DAYS"
)

// ProviderType описывает вид записи в справочнике поставщиков.
type ProviderType string

const (
	// ProviderTypeGoods: поставщик товаров, для которого формируются заказы.
	ProviderTypeGoods ProviderType = "GOODS"
	// ProviderTypeServices: поставщик услуг, в графике не участвует.
	ProviderTypeServices ProviderType = "SERVICES"
)

// VisitConfig содержит настройки повторяющихся визитов поставщика.
type VisitConfig struct {
	CreateOrderDays  []calendar.VisitDay `json:"createOrderDays"`
	ReceiveOrderDays []calendar.VisitDay `json:"receiveOrderDays"`
	Frequency        Frequency           `json:"frequency"`
	AnchorDate       *calendar.Key       `json:"anchorDate,omitempty"`
}

// CanDeliver сообщает, что по настройке можно вычислить дату поставки.
func (c *VisitConfig) CanDeliver() bool {
	return c != nil && len(c.CreateOrderDays) > 0 && len(c.ReceiveOrderDays) > 0
}

// Provider: запись внешнего справочника поставщиков.
type Provider struct {
	Code        string       `json:"code"`
	Name        string       `json:"name"`
	Type        ProviderType `json:"type"`
	VisitConfig *VisitConfig `json:"visitConfig,omitempty"`
}

// Scheduled сообщает, участвует ли поставщик в расчёте графика.
func (p Provider) Scheduled() bool {
	return p.Type == ProviderTypeGoods && p.VisitConfig != nil
}

// Ref возвращает ссылку на поставщика для списков недели.
func (p Provider) Ref() SupplierRef {
	return SupplierRef{Code: p.Code, Name: p.Name}
}

// SupplierRef идентифицирует поставщика в списках дня.
type SupplierRef struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// DayModel содержит поставщиков, которым в этот день создаётся заказ, и тех, от кого ожидается поставка.
type DayModel struct {
	Date        calendar.Key      `json:"date"`
	Day         calendar.VisitDay `json:"day"`
	CreateList  []SupplierRef     `json:"createList"`
	ReceiveList []SupplierRef     `json:"receiveList"`
}

// WeekModel: вычисляемая модель недели с воскресенья по субботу. Не сохраняется.
type WeekModel struct {
	WeekStart calendar.Key                   `json:"weekStart"`
	Days      [calendar.DaysPerWeek]DayModel `json:"days"`
}

// Day возвращает модель дня по ключу даты.
func (w *WeekModel) Day(k calendar.Key) (*DayModel, bool) {
	for i := range w.Days {
		if w.Days[i].Date == k {
			return &w.Days[i], true
		}
	}
	return nil, false
}

// NewEntry: данные заказа до сохранения в журнал.
type NewEntry struct {
	ProviderCode string          `json:"providerCode"`
	ProviderName string          `json:"providerName"`
	CreateDate   calendar.Key    `json:"createDateKey"`
	ReceiveDate  calendar.Key    `json:"receiveDateKey"`
	Amount       decimal.Decimal `json:"amount"`
}

// OrderEntry: сохранённая запись журнала заказов. После создания не изменяется.
type OrderEntry struct {
	ID           string          `json:"id"`
	ProviderCode string          `json:"providerCode"`
	ProviderName string          `json:"providerName"`
	CreateDate   calendar.Key    `json:"createDateKey"`
	ReceiveDate  calendar.Key    `json:"receiveDateKey"`
	Amount       decimal.Decimal `json:"amount"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// PartitionKey идентифицирует раздел журнала: компания и неделя получения.
type PartitionKey struct {
	Company   string
	WeekStart calendar.Key
}

// PartitionKeyFor возвращает раздел, в котором хранится заказ с указанной датой получения.
func PartitionKeyFor(company string, receiveDate calendar.Key) PartitionKey {
	return PartitionKey{Company: company, WeekStart: calendar.WeekStart(receiveDate)}
}

// String используется в логах и ошибках.
func (k PartitionKey) String() string {
	return k.Company + "/" + k.WeekStart.String()
}

// Partition: сохраняемая единица журнала. Version равен нулю, если раздела ещё нет.
type Partition struct {
	Company   string       `json:"company"`
	WeekStart calendar.Key `json:"weekStartKey"`
	Entries   []OrderEntry `json:"entries"`
	Version   int64        `json:"-"`
}

// Key возвращает ключ раздела.
func (p Partition) Key() PartitionKey {
	return PartitionKey{Company: p.Company, WeekStart: p.WeekStart}
}

// SupplierTotal: сумма зафиксированных заказов поставщика за день.
type SupplierTotal struct {
	SupplierRef
	Total     decimal.Decimal `json:"total"`
	Entries   int             `json:"entries"`
	Scheduled bool            `json:"scheduled"`
}

// DaySummary сопоставляет ожидаемые поставки дня с записями журнала.
type DaySummary struct {
	Date     calendar.Key      `json:"date"`
	Day      calendar.VisitDay `json:"day"`
	Receive  []SupplierTotal   `json:"receive"`
	DayTotal decimal.Decimal   `json:"dayTotal"`
}

// WeekSummary: свод недели по дням получения.
type WeekSummary struct {
	WeekStart calendar.Key                     `json:"weekStart"`
	Days      [calendar.DaysPerWeek]DaySummary `json:"days"`
	Total     decimal.Decimal                  `json:"total"`
}
