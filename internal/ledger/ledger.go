// Package ledger реализует журнал заказов поставщикам, разбитый на разделы по компании и неделе получения.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-orders/internal/calendar"
	"github.com/mmeshcher/supplier-orders/internal/model"
	"github.com/mmeshcher/supplier-orders/internal/repository"
	"github.com/mmeshcher/supplier-orders/internal/validation"
)

const (
	defaultMaxAttempts    = 10
	defaultRetryBaseDelay = 20 * time.Millisecond
	maxRetryDelay         = time.Second
)

// Store описывает хранилище разделов журнала.
type Store interface {
	// Load возвращает раздел; отсутствующий раздел возвращается пустым с Version = 0.
	Load(ctx context.Context, key model.PartitionKey) (model.Partition, error)
	// Save записывает раздел, только если его версия не изменилась с момента чтения.
	// При конкурентном изменении возвращает repository.ErrConflict.
	Save(ctx context.Context, p model.Partition) error
	// Watch удерживает живое соединение с разделом до отмены ctx.
	// changed вызывается после установки соединения и после каждого изменения раздела.
	Watch(ctx context.Context, key model.PartitionKey, changed func()) error
}

// Config задаёт параметры журнала.
type Config struct {
	// MaxAttempts ограничивает число попыток транзакции при конфликтах.
	MaxAttempts int
	// RetryBaseDelay: начальная пауза экспоненциального отката.
	RetryBaseDelay time.Duration
	// Now подменяется в тестах.
	Now func() time.Time
}

// Ledger: журнал заказов.
type Ledger struct {
	store  Store
	hub    *Hub
	logger *zap.Logger

	maxAttempts int
	baseDelay   time.Duration
	now         func() time.Time
}

// New создаёт журнал поверх хранилища; подписки обслуживаются переданным hub.
func New(store Store, hub *Hub, logger *zap.Logger, cfg Config) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Ledger{
		store:       store,
		hub:         hub,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.RetryBaseDelay,
		now:         cfg.Now,
	}
}

// AddEntry проверяет и добавляет заказ в раздел его недели получения.
// Повторный вызов после StorageError может создать дубликат: исход первой попытки неизвестен.
func (l *Ledger) AddEntry(ctx context.Context, company string, e model.NewEntry) (model.OrderEntry, error) {
	if err := validation.ValidateEntry(e); err != nil {
		return model.OrderEntry{}, err
	}

	entry := model.OrderEntry{
		ID:           uuid.NewString(),
		ProviderCode: e.ProviderCode,
		ProviderName: e.ProviderName,
		CreateDate:   e.CreateDate,
		ReceiveDate:  e.ReceiveDate,
		Amount:       e.Amount,
		CreatedAt:    l.now().UTC(),
	}

	key := model.PartitionKeyFor(company, e.ReceiveDate)
	err := l.transact(ctx, "add entry", key, func(entries []model.OrderEntry) ([]model.OrderEntry, bool) {
		return append(entries, entry), true
	})
	if err != nil {
		return model.OrderEntry{}, err
	}

	l.logger.Debug("order entry added",
		zap.String("partition", key.String()),
		zap.String("id", entry.ID),
		zap.String("provider", entry.ProviderCode),
	)
	return entry, nil
}

// DeleteByProviderAndReceiveDate удаляет все заказы поставщика с указанной датой получения
// и возвращает их число. Отсутствие раздела или совпадений ошибкой не считается.
func (l *Ledger) DeleteByProviderAndReceiveDate(ctx context.Context, company, providerCode string, receiveDate calendar.Key) (int, error) {
	key := model.PartitionKeyFor(company, receiveDate)

	var removed int
	err := l.transact(ctx, "delete entries", key, func(entries []model.OrderEntry) ([]model.OrderEntry, bool) {
		removed = 0
		kept := make([]model.OrderEntry, 0, len(entries))
		for _, e := range entries {
			if e.ProviderCode == providerCode && e.ReceiveDate == receiveDate {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		return kept, removed > 0
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// GetWeek однократно читает раздел недели.
func (l *Ledger) GetWeek(ctx context.Context, company string, weekStart calendar.Key) ([]model.OrderEntry, error) {
	key := model.PartitionKey{Company: company, WeekStart: calendar.WeekStart(weekStart)}

	p, err := l.store.Load(ctx, key)
	if err != nil {
		return nil, &StorageError{Op: "get week", Key: key, Err: err}
	}

	return cloneEntries(p.Entries), nil
}

// SubscribeWeek подписывает на изменения раздела недели. Возвращаемую функцию можно вызывать многократно.
func (l *Ledger) SubscribeWeek(company string, weekStart calendar.Key, onValue func([]model.OrderEntry), onError func(error)) func() {
	key := model.PartitionKey{Company: company, WeekStart: calendar.WeekStart(weekStart)}
	return l.hub.Subscribe(key, onValue, onError)
}

// mutateFunc получает копию записей раздела и возвращает новое содержимое и признак изменения.
type mutateFunc func(entries []model.OrderEntry) ([]model.OrderEntry, bool)

// transact выполняет оптимистичную транзакцию чтение-изменение-запись над одним разделом.
func (l *Ledger) transact(ctx context.Context, op string, key model.PartitionKey, fn mutateFunc) error {
	backoff := retry.NewExponential(l.baseDelay)
	backoff = retry.WithCappedDuration(maxRetryDelay, backoff)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithMaxRetries(uint64(l.maxAttempts-1), backoff)

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++

		p, err := l.store.Load(ctx, key)
		if err != nil {
			return err
		}

		entries, changed := fn(cloneEntries(p.Entries))
		if !changed {
			return nil
		}

		p.Company = key.Company
		p.WeekStart = key.WeekStart
		p.Entries = entries

		if err := l.store.Save(ctx, p); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				l.logger.Debug("partition changed concurrently, retrying",
					zap.String("op", op),
					zap.String("partition", key.String()),
					zap.Int("attempt", attempts),
				)
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		l.logger.Warn("ledger transaction failed",
			zap.String("op", op),
			zap.String("partition", key.String()),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return &StorageError{Op: op, Key: key, Attempts: attempts, Err: err}
	}

	return nil
}

func cloneEntries(entries []model.OrderEntry) []model.OrderEntry {
	out := make([]model.OrderEntry, len(entries))
	copy(out, entries)
	return out
}
