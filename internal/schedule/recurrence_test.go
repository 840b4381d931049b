package schedule

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mmeshcher/supplier-orders/internal/calendar"
	"github.com/mmeshcher/supplier-orders/internal/model"
)

func TestMain(m *testing.M) {
	calendar.SetLocation(time.UTC)
	weekJune2 = calendar.Date(2024, time.June, 2)
	weekJune9 = calendar.Date(2024, time.June, 9)
	os.Exit(m.Run())
}

func anchored(f model.Frequency, anchor calendar.Key) *model.VisitConfig {
	return &model.VisitConfig{
		CreateOrderDays:  []calendar.VisitDay{calendar.Monday},
		ReceiveOrderDays: []calendar.VisitDay{calendar.Wednesday},
		Frequency:        f,
		AnchorDate:       &anchor,
	}
}

func TestIntervalWeeks(t *testing.T) {
	assert.Equal(t, 1, IntervalWeeks(model.FrequencyWeekly))
	assert.Equal(t, 2, IntervalWeeks(model.FrequencyBiweekly))
	assert.Equal(t, 3, IntervalWeeks(model.FrequencyEvery22Days))
	assert.Equal(t, 4, IntervalWeeks(model.FrequencyMonthly))
	assert.Equal(t, 1, IntervalWeeks(model.Frequency("")))
}

func TestAppliesToWeek_WeeklyAlwaysApplies(t *testing.T) {
	cfg := anchored(model.FrequencyWeekly, calendar.Date(2024, time.June, 5))
	week := calendar.Date(2024, time.June, 2)

	for i := -10; i <= 10; i++ {
		assert.True(t, AppliesToWeek(cfg, calendar.AddDays(week, i*7)), "week offset %d", i)
	}
}

func TestAppliesToWeek_Biweekly(t *testing.T) {
	// якорь в середине недели: нулевой считается неделя, которая его содержит
	cfg := anchored(model.FrequencyBiweekly, calendar.Date(2024, time.June, 5))
	w := calendar.Date(2024, time.June, 2)

	tests := []struct {
		offset int
		want   bool
	}{
		{offset: 0, want: true},
		{offset: 1, want: false},
		{offset: 2, want: true},
		{offset: 3, want: false},
		{offset: 4, want: true},
		{offset: -1, want: false},
		{offset: -2, want: true},
		{offset: -3, want: false},
	}

	for _, tt := range tests {
		got := AppliesToWeek(cfg, calendar.AddDays(w, tt.offset*7))
		assert.Equal(t, tt.want, got, "W%+d", tt.offset)
	}
}

func TestAppliesToWeek_MonthlyAndEvery22Days(t *testing.T) {
	w := calendar.Date(2024, time.June, 2)

	monthly := anchored(model.FrequencyMonthly, w)
	every22 := anchored(model.FrequencyEvery22Days, w)

	for i := -12; i <= 12; i++ {
		candidate := calendar.AddDays(w, i*7)
		assert.Equal(t, i%4 == 0, AppliesToWeek(monthly, candidate), "monthly W%+d", i)
		assert.Equal(t, i%3 == 0, AppliesToWeek(every22, candidate), "every 22 days W%+d", i)
	}
}

func TestAppliesToWeek_MissingAnchorIsPermissive(t *testing.T) {
	cfg := &model.VisitConfig{Frequency: model.FrequencyMonthly}

	assert.True(t, AppliesToWeek(cfg, calendar.Date(2024, time.June, 2)))
	assert.True(t, AppliesToWeek(cfg, calendar.Date(2024, time.June, 9)))
	assert.False(t, AppliesToWeek(nil, calendar.Date(2024, time.June, 9)))
}

func TestAppliesToWeek_AcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	calendar.SetLocation(loc)
	t.Cleanup(func() { calendar.SetLocation(time.UTC) })

	anchor := calendar.Date(2024, time.March, 17)
	cfg := anchored(model.FrequencyBiweekly, anchor)

	assert.True(t, AppliesToWeek(cfg, calendar.Date(2024, time.March, 31)))
	assert.False(t, AppliesToWeek(cfg, calendar.Date(2024, time.April, 7)))
	assert.True(t, AppliesToWeek(cfg, calendar.Date(2024, time.October, 27)))
}
