// Package service связывает справочник поставщиков, график визитов и журнал заказов.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mmeshcher/supplier-orders/internal/calendar"
	"github.com/mmeshcher/supplier-orders/internal/model"
	"github.com/mmeshcher/supplier-orders/internal/schedule"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	cacheEvictionPeriod = time.Minute
)

// Directory описывает источник справочника поставщиков.
type Directory interface {
	ListProviders(ctx context.Context, company string) ([]model.Provider, error)
}

// Ledger описывает контракт журнала заказов, используемый сервисом.
type Ledger interface {
	AddEntry(ctx context.Context, company string, e model.NewEntry) (model.OrderEntry, error)
	DeleteByProviderAndReceiveDate(ctx context.Context, company, providerCode string, receiveDate calendar.Key) (int, error)
	GetWeek(ctx context.Context, company string, weekStart calendar.Key) ([]model.OrderEntry, error)
	SubscribeWeek(company string, weekStart calendar.Key, onValue func([]model.OrderEntry), onError func(error)) func()
}

// Config задаёт параметры сервиса.
type Config struct {
	// CacheTTL: время жизни закэшированного справочника компании.
	CacheTTL time.Duration
	Now      func() time.Time
}

type cacheEntry struct {
	providers []model.Provider
	expires   time.Time
}

// Service содержит бизнес-логику планирования заказов.
type Service struct {
	directory Directory
	ledger    Ledger
	builder   *schedule.Builder
	logger    *zap.Logger

	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
	// fetches объединяет одновременные запросы справочника одной компании.
	fetches singleflight.Group
}

// NewService создаёт сервис поверх справочника, журнала и построителя недели.
func NewService(directory Directory, ledger Ledger, builder *schedule.Builder, logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		directory: directory,
		ledger:    ledger,
		builder:   builder,
		logger:    logger,
		ttl:       cfg.CacheTTL,
		now:       cfg.Now,
		cache:     make(map[string]cacheEntry),
	}
}

// Providers возвращает справочник компании, по возможности из кэша.
// Если справочник недоступен, отдаётся устаревшая копия, когда она есть.
func (s *Service) Providers(ctx context.Context, company string) ([]model.Provider, error) {
	now := s.now()

	s.mu.Lock()
	cached, ok := s.cache[company]
	s.mu.Unlock()

	if ok && now.Before(cached.expires) {
		return cached.providers, nil
	}

	v, err, _ := s.fetches.Do(company, func() (any, error) {
		providers, err := s.directory.ListProviders(ctx, company)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.cache[company] = cacheEntry{providers: providers, expires: now.Add(s.ttl)}
		s.mu.Unlock()

		return providers, nil
	})
	if err != nil {
		if ok {
			s.logger.Warn("directory unavailable, serving stale providers",
				zap.String("company", company),
				zap.Error(err),
			)
			return cached.providers, nil
		}
		return nil, fmt.Errorf("list providers: %w", err)
	}

	return v.([]model.Provider), nil
}

// InvalidateProviders сбрасывает кэш справочника компании.
func (s *Service) InvalidateProviders(company string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, company)
}

// StartCacheEviction запускает фоновую очистку устаревших записей кэша справочника.
func (s *Service) StartCacheEviction(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cacheEvictionPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.evictExpired()
			}
		}
	}()
}

func (s *Service) evictExpired() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for company, e := range s.cache {
		if !now.Before(e.expires) {
			delete(s.cache, company)
		}
	}
}

// WeekModel строит модель недели компании.
func (s *Service) WeekModel(ctx context.Context, company string, week calendar.Key) (model.WeekModel, error) {
	providers, err := s.Providers(ctx, company)
	if err != nil {
		return model.WeekModel{}, err
	}
	return s.builder.Build(week, providers), nil
}

// WeekSummary сопоставляет ожидаемые поставки недели с заказами журнала.
// Заказы поставщиков, не ожидаемых в день получения, попадают в свод с Scheduled = false.
func (s *Service) WeekSummary(ctx context.Context, company string, week calendar.Key) (model.WeekSummary, error) {
	wm, err := s.WeekModel(ctx, company, week)
	if err != nil {
		return model.WeekSummary{}, err
	}

	entries, err := s.ledger.GetWeek(ctx, company, wm.WeekStart)
	if err != nil {
		return model.WeekSummary{}, err
	}

	return Summarize(wm, entries), nil
}

// Summarize строит свод недели по готовой модели и записям журнала.
func Summarize(wm model.WeekModel, entries []model.OrderEntry) model.WeekSummary {
	summary := model.WeekSummary{WeekStart: wm.WeekStart, Total: decimal.Zero}

	for i, day := range wm.Days {
		ds := model.DaySummary{
			Date:     day.Date,
			Day:      day.Day,
			Receive:  make([]model.SupplierTotal, 0, len(day.ReceiveList)),
			DayTotal: decimal.Zero,
		}

		index := make(map[string]int, len(day.ReceiveList))
		for _, ref := range day.ReceiveList {
			index[ref.Code] = len(ds.Receive)
			ds.Receive = append(ds.Receive, model.SupplierTotal{SupplierRef: ref, Total: decimal.Zero, Scheduled: true})
		}

		for _, e := range entries {
			if e.ReceiveDate != day.Date {
				continue
			}

			pos, ok := index[e.ProviderCode]
			if !ok {
				pos = len(ds.Receive)
				index[e.ProviderCode] = pos
				ds.Receive = append(ds.Receive, model.SupplierTotal{
					SupplierRef: model.SupplierRef{Code: e.ProviderCode, Name: e.ProviderName},
					Total:       decimal.Zero,
				})
			}

			ds.Receive[pos].Total = ds.Receive[pos].Total.Add(e.Amount)
			ds.Receive[pos].Entries++
			ds.DayTotal = ds.DayTotal.Add(e.Amount)
		}

		summary.Days[i] = ds
		summary.Total = summary.Total.Add(ds.DayTotal)
	}

	return summary
}

// AddEntry добавляет заказ в журнал.
func (s *Service) AddEntry(ctx context.Context, company string, e model.NewEntry) (model.OrderEntry, error) {
	return s.ledger.AddEntry(ctx, company, e)
}

// DeleteOrders удаляет заказы поставщика с указанной датой получения.
func (s *Service) DeleteOrders(ctx context.Context, company, providerCode string, receiveDate calendar.Key) (int, error) {
	return s.ledger.DeleteByProviderAndReceiveDate(ctx, company, providerCode, receiveDate)
}

// GetWeek возвращает заказы недели.
func (s *Service) GetWeek(ctx context.Context, company string, week calendar.Key) ([]model.OrderEntry, error) {
	return s.ledger.GetWeek(ctx, company, calendar.WeekStart(week))
}

// SubscribeWeek подписывает на изменения заказов недели.
func (s *Service) SubscribeWeek(company string, week calendar.Key, onValue func([]model.OrderEntry), onError func(error)) func() {
	return s.ledger.SubscribeWeek(company, calendar.WeekStart(week), onValue, onError)
}
