package schedule

import (
	"errors"
	"fmt"

	"github.com/mmeshcher/supplier-orders/internal/calendar"
)

// ErrMisconfigured: базовая ошибка некорректной настройки визитов.
var ErrMisconfigured = errors.New("supplier visit config cannot produce a delivery")

// ConfigurationError описывает поставщика, пропущенного при построении недели.
// Не возвращается вызывающему: построитель только логирует её.
type ConfigurationError struct {
	ProviderCode string
	CreateDate   calendar.Key
	Reason       string
}

func (e *ConfigurationError) Error() string {
	if e.CreateDate != 0 {
		return fmt.Sprintf("provider %s: %s (order day %s)", e.ProviderCode, e.Reason, e.CreateDate)
	}
	return fmt.Sprintf("provider %s: %s", e.ProviderCode, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrMisconfigured
}
