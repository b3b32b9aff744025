package settlement

import (
	"errors"
	"net/http"
)

// Kind — класс ошибки бизнес-логики. Обработчики HTTP отображают его в
// код ответа, не разбирая текст.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindForbidden
	KindNotFound
	KindConflict
	KindInternal
)

// Error — структурированная ошибка операции. Текст показывается клиенту,
// поэтому не должен содержать внутренних деталей.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Invalid — ошибка валидации входных данных (400)
func Invalid(msg string) *Error { return &Error{Kind: KindValidation, Msg: msg} }

// Forbidden — операция недоступна этой стороне сделки (403)
func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Msg: msg} }

// NotFound — запись не найдена или предусловие не выполнено (404)
func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Msg: msg} }

// Conflict — состояние уже изменено другим вызовом (409)
func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Msg: msg} }

// Internal — неожиданная ошибка; клиенту уходит общий текст (500)
func Internal(msg string) *Error { return &Error{Kind: KindInternal, Msg: msg} }

// ErrNotFound — сигнальная ошибка хранилищ: запись отсутствует. Реализации
// поверх pgx транслируют в неё pgx.ErrNoRows.
var ErrNotFound = errors.New("запись не найдена")

// ErrCodeInUse — сигнальная ошибка хранилища встреч: код проверки занят
// другой живой встречей. Вызывающая сторона генерирует новый код и
// повторяет вставку.
var ErrCodeInUse = errors.New("код проверки уже используется")

// StatusOf возвращает HTTP-код для ошибки операции.
func StatusOf(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ClientMessage возвращает текст ошибки для клиента. Для внутренних ошибок
// детали остаются в логах.
func ClientMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Msg
	}
	return "Внутренняя ошибка сервера"
}
