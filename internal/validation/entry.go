// Package validation содержит проверки входных данных журнала заказов.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mmeshcher/supplier-orders/internal/model"
)

// ErrInvalidEntry: базовая ошибка для всех отклонённых записей журнала.
var ErrInvalidEntry = errors.New("invalid order entry")

// ValidationError описывает поле, не прошедшее проверку.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidEntry
}

// ValidateEntry проверяет заказ до любого обращения к хранилищу.
func ValidateEntry(e model.NewEntry) error {
	if strings.TrimSpace(e.ProviderCode) == "" {
		return &ValidationError{Field: "providerCode", Reason: "must not be empty"}
	}
	if strings.TrimSpace(e.ProviderName) == "" {
		return &ValidationError{Field: "providerName", Reason: "must not be empty"}
	}
	if !e.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if !e.CreateDate.Valid() {
		return &ValidationError{Field: "createDateKey", Reason: "is not a calendar day"}
	}
	if !e.ReceiveDate.Valid() {
		return &ValidationError{Field: "receiveDateKey", Reason: "is not a calendar day"}
	}
	if e.ReceiveDate < e.CreateDate {
		return &ValidationError{Field: "receiveDateKey", Reason: "must not be before createDateKey"}
	}
	return nil
}
