package ledger

import (
	"errors"
	"fmt"

	"github.com/mmeshcher/supplier-orders/internal/model"
	"github.com/mmeshcher/supplier-orders/internal/repository"
	"github.com/mmeshcher/supplier-orders/internal/validation"
)

// StorageError возвращается, когда хранилище недоступно или транзакция исчерпала попытки.
type StorageError struct {
	Op  string
	Key model.PartitionKey
	// Attempts: число попыток транзакции. Для чтений равно нулю: повторы чтения выполняет хранилище.
	Attempts int
	Err      error
}

func (e *StorageError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s %s: after %d attempts: %v", e.Op, e.Key, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsValidation сообщает, что ошибка вызвана некорректными входными данными.
func IsValidation(err error) bool {
	return errors.Is(err, validation.ErrInvalidEntry)
}

// IsStorage сообщает, что операция не дошла до хранилища или не была зафиксирована.
func IsStorage(err error) bool {
	var serr *StorageError
	return errors.As(err, &serr)
}

// IsConflict сообщает, что раздел менялся конкурентно чаще, чем позволяет бюджет повторов.
func IsConflict(err error) bool {
	return errors.Is(err, repository.ErrConflict)
}
