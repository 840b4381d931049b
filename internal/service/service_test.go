package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/mmeshcher/supplier-orders/internal/calendar"
	"github.com/mmeshcher/supplier-orders/internal/directory"
	"github.com/mmeshcher/supplier-orders/internal/ledger"
	"github.com/mmeshcher/supplier-orders/internal/model"
	"github.com/mmeshcher/supplier-orders/internal/repository"
	"github.com/mmeshcher/supplier-orders/internal/schedule"
)

func TestMain(m *testing.M) {
	calendar.SetLocation(time.UTC)
	os.Exit(m.Run())
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) ListProviders(ctx context.Context, company string) ([]model.Provider, error) {
	args := m.Called(ctx, company)
	providers, _ := args.Get(0).([]model.Provider)
	return providers, args.Error(1)
}

// clock: управляемые часы для проверки TTL кэша.
type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func june(day int) calendar.Key {
	return calendar.Date(2024, time.June, day)
}

func dairy() model.Provider {
	return model.Provider{
		Code: "P1",
		Name: "Dairy",
		Type: model.ProviderTypeGoods,
		VisitConfig: &model.VisitConfig{
			CreateOrderDays:  []calendar.VisitDay{calendar.Friday},
			ReceiveOrderDays: []calendar.VisitDay{calendar.Tuesday},
			Frequency:        model.FrequencyWeekly,
		},
	}
}

func newTestService(t *testing.T, dir Directory, c *clock) *Service {
	t.Helper()

	store := repository.NewMemoryRepository()
	hub := ledger.NewHub(store, zap.NewNop())
	t.Cleanup(hub.Close)

	l := ledger.New(store, hub, zap.NewNop(), ledger.Config{RetryBaseDelay: time.Millisecond})
	cfg := Config{CacheTTL: time.Minute}
	if c != nil {
		cfg.Now = c.now
	}
	return NewService(dir, l, schedule.NewBuilder(zap.NewNop(), language.English), zap.NewNop(), cfg)
}

func TestProviders_CachedUntilTTL(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("ListProviders", mock.Anything, "acme").Return([]model.Provider{dairy()}, nil).Twice()

	c := &clock{t: time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)}
	svc := newTestService(t, dir, c)

	for i := 0; i < 3; i++ {
		_, err := svc.Providers(context.Background(), "acme")
		require.NoError(t, err)
	}
	dir.AssertNumberOfCalls(t, "ListProviders", 1)

	c.t = c.t.Add(2 * time.Minute)
	_, err := svc.Providers(context.Background(), "acme")
	require.NoError(t, err)
	dir.AssertNumberOfCalls(t, "ListProviders", 2)
}

func TestProviders_ConcurrentMissesShareOneFetch(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("ListProviders", mock.Anything, "acme").
		Return([]model.Provider{dairy()}, nil).
		After(100 * time.Millisecond)

	svc := newTestService(t, dir, nil)

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			providers, err := svc.Providers(context.Background(), "acme")
			if err == nil && len(providers) != 1 {
				err = errors.New("unexpected providers")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	dir.AssertNumberOfCalls(t, "ListProviders", 1)
}

func TestInvalidateProviders(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("ListProviders", mock.Anything, "acme").Return([]model.Provider{dairy()}, nil).Twice()

	svc := newTestService(t, dir, nil)

	_, err := svc.Providers(context.Background(), "acme")
	require.NoError(t, err)

	svc.InvalidateProviders("acme")

	_, err = svc.Providers(context.Background(), "acme")
	require.NoError(t, err)
	dir.AssertNumberOfCalls(t, "ListProviders", 2)
}

func TestProviders_ServesStaleOnDirectoryFailure(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("ListProviders", mock.Anything, "acme").Return([]model.Provider{dairy()}, nil).Once()
	dir.On("ListProviders", mock.Anything, "acme").Return(nil, errors.New("directory down"))

	c := &clock{t: time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)}
	svc := newTestService(t, dir, c)

	_, err := svc.Providers(context.Background(), "acme")
	require.NoError(t, err)

	c.t = c.t.Add(time.Hour)
	got, err := svc.Providers(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, []model.Provider{dairy()}, got)
}

func TestProviders_FailureWithoutCache(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("ListProviders", mock.Anything, "acme").Return(nil, errors.New("directory down"))

	svc := newTestService(t, dir, nil)

	_, err := svc.WeekModel(context.Background(), "acme", june(9))
	require.Error(t, err)
}

func TestEvictExpired(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("ListProviders", mock.Anything, mock.Anything).Return([]model.Provider{dairy()}, nil)

	c := &clock{t: time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)}
	svc := newTestService(t, dir, c)

	_, _ = svc.Providers(context.Background(), "acme")
	c.t = c.t.Add(30 * time.Second)
	_, _ = svc.Providers(context.Background(), "globex")

	c.t = c.t.Add(45 * time.Second)
	svc.evictExpired()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.NotContains(t, svc.cache, "acme")
	assert.Contains(t, svc.cache, "globex")
}

func TestWeekModel(t *testing.T) {
	dir := directory.NewStatic(map[string][]model.Provider{"acme": {dairy()}})

	svc := newTestService(t, dir, nil)

	wm, err := svc.WeekModel(context.Background(), "acme", june(12))
	require.NoError(t, err)
	assert.Equal(t, june(9), wm.WeekStart)
	assert.Equal(t, "P1", wm.Days[calendar.Tuesday.Index()].ReceiveList[0].Code)
	assert.Equal(t, "P1", wm.Days[calendar.Friday.Index()].CreateList[0].Code)
}

func TestWeekSummary(t *testing.T) {
	ctx := context.Background()
	dir := &mockDirectory{}
	dir.On("ListProviders", mock.Anything, "acme").Return([]model.Provider{dairy()}, nil)

	svc := newTestService(t, dir, nil)

	add := func(code, name string, receive calendar.Key, amount string) {
		t.Helper()
		_, err := svc.AddEntry(ctx, "acme", model.NewEntry{
			ProviderCode: code,
			ProviderName: name,
			CreateDate:   june(7),
			ReceiveDate:  receive,
			Amount:       decimal.RequireFromString(amount),
		})
		require.NoError(t, err)
	}
	add("P1", "Dairy", june(11), "100.25")
	add("P1", "Dairy", june(11), "50")
	add("X9", "Ad hoc", june(11), "10")
	add("P1", "Dairy", june(13), "5")

	summary, err := svc.WeekSummary(ctx, "acme", june(9))
	require.NoError(t, err)

	tuesday := summary.Days[calendar.Tuesday.Index()]
	require.Len(t, tuesday.Receive, 2)
	assert.Equal(t, "P1", tuesday.Receive[0].Code)
	assert.True(t, tuesday.Receive[0].Scheduled)
	assert.Equal(t, 2, tuesday.Receive[0].Entries)
	assert.True(t, decimal.RequireFromString("150.25").Equal(tuesday.Receive[0].Total))
	assert.Equal(t, "X9", tuesday.Receive[1].Code)
	assert.False(t, tuesday.Receive[1].Scheduled)
	assert.True(t, decimal.RequireFromString("160.25").Equal(tuesday.DayTotal))

	thursday := summary.Days[calendar.Thursday.Index()]
	require.Len(t, thursday.Receive, 1)
	assert.False(t, thursday.Receive[0].Scheduled)

	assert.True(t, decimal.RequireFromString("165.25").Equal(summary.Total))
}

func TestSummarize_ScheduledWithoutOrders(t *testing.T) {
	b := schedule.NewBuilder(zap.NewNop(), language.English)
	wm := b.Build(june(9), []model.Provider{dairy()})

	summary := Summarize(wm, nil)

	tuesday := summary.Days[calendar.Tuesday.Index()]
	require.Len(t, tuesday.Receive, 1)
	assert.True(t, tuesday.Receive[0].Scheduled)
	assert.Equal(t, 0, tuesday.Receive[0].Entries)
	assert.True(t, tuesday.Receive[0].Total.IsZero())
	assert.True(t, summary.Total.IsZero())
}

func TestDeleteOrdersAndGetWeek(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &mockDirectory{}, nil)

	_, err := svc.AddEntry(ctx, "acme", model.NewEntry{
		ProviderCode: "P1",
		ProviderName: "Dairy",
		CreateDate:   june(7),
		ReceiveDate:  june(11),
		Amount:       decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	entries, err := svc.GetWeek(ctx, "acme", june(14))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	removed, err := svc.DeleteOrders(ctx, "acme", "P1", june(11))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
