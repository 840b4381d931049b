package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/mmeshcher/supplier-orders/internal/model"
)

// MemoryRepository хранит разделы журнала в памяти процесса.
// Используется в тестах и когда адрес базы данных не задан.
type MemoryRepository struct {
	mu         sync.Mutex
	partitions map[model.PartitionKey]model.Partition
	watchers   map[model.PartitionKey]map[chan struct{}]struct{}
	providers  map[string][]model.Provider
}

// NewMemoryRepository создаёт пустое хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		partitions: make(map[model.PartitionKey]model.Partition),
		watchers:   make(map[model.PartitionKey]map[chan struct{}]struct{}),
		providers:  make(map[string][]model.Provider),
	}
}

// Load возвращает копию раздела; отсутствующий раздел возвращается пустым с нулевой версией.
func (r *MemoryRepository) Load(ctx context.Context, key model.PartitionKey) (model.Partition, error) {
	if err := ctx.Err(); err != nil {
		return model.Partition{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.partitions[key]
	if !ok {
		return model.Partition{Company: key.Company, WeekStart: key.WeekStart}, nil
	}

	p.Entries = append([]model.OrderEntry(nil), p.Entries...)
	return p, nil
}

// Save записывает раздел, если его версия совпадает с сохранённой.
func (r *MemoryRepository) Save(ctx context.Context, p model.Partition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := p.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.partitions[key]
	if current.Version != p.Version {
		return fmt.Errorf("%w: %s expected version %d, got %d", ErrConflict, key, p.Version, current.Version)
	}

	p.Entries = append([]model.OrderEntry(nil), p.Entries...)
	p.Version++
	r.partitions[key] = p

	for ch := range r.watchers[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}

	return nil
}

// Watch вызывает changed сразу и после каждой записи раздела, пока ctx не отменён.
func (r *MemoryRepository) Watch(ctx context.Context, key model.PartitionKey, changed func()) error {
	ch := make(chan struct{}, 1)

	r.mu.Lock()
	if r.watchers[key] == nil {
		r.watchers[key] = make(map[chan struct{}]struct{})
	}
	r.watchers[key][ch] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.watchers[key], ch)
		if len(r.watchers[key]) == 0 {
			delete(r.watchers, key)
		}
		r.mu.Unlock()
	}()

	changed()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			changed()
		}
	}
}

// Watchers возвращает число открытых соединений с разделом.
func (r *MemoryRepository) Watchers(key model.PartitionKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers[key])
}

// PutProviders заменяет справочник поставщиков компании.
func (r *MemoryRepository) PutProviders(company string, providers []model.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[company] = append([]model.Provider(nil), providers...)
}

// ListProviders возвращает справочник поставщиков компании.
func (r *MemoryRepository) ListProviders(ctx context.Context, company string) ([]model.Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Provider(nil), r.providers[company]...), nil
}
