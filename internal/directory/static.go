package directory

import (
	"context"
	"sync"

	"github.com/mmeshcher/supplier-orders/internal/model"
)

// Static: справочник в памяти, заполняемый при старте или в тестах.
type Static struct {
	mu        sync.RWMutex
	companies map[string][]model.Provider
}

// NewStatic создаёт справочник из готового набора поставщиков по компаниям.
func NewStatic(companies map[string][]model.Provider) *Static {
	s := &Static{companies: make(map[string][]model.Provider, len(companies))}
	for company, providers := range companies {
		s.companies[company] = append([]model.Provider(nil), providers...)
	}
	return s
}

// Put заменяет поставщиков компании.
func (s *Static) Put(company string, providers []model.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies[company] = append([]model.Provider(nil), providers...)
}

// ListProviders возвращает копию списка поставщиков компании.
func (s *Static) ListProviders(_ context.Context, company string) ([]model.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Provider{}, s.companies[company]...), nil
}
