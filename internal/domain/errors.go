package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound — документ не найден.
	ErrDocumentNotFound = errors.New("документ не найден")
	// ErrAnnotationNotFound — аннотация не найдена.
	ErrAnnotationNotFound = errors.New("аннотация не найдена")
	// ErrForbidden — у инициатора нет прав на операцию.
	ErrForbidden = errors.New("операция запрещена")
)

// ValidationError описывает некорректный ввод. Всегда отдаётся вызывающему
// и никогда не ретраится.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("валидация %s: %s", e.Field, e.Reason)
}

// IsValidation сообщает, является ли ошибка ошибкой валидации.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// IsNotFound сообщает, является ли ошибка отсутствием сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound) || errors.Is(err, ErrAnnotationNotFound)
}
