package service

import (
	"errors"
	"time"
)

// Ошибки сервиса. SyncError разворачивается в них через errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrAccountNotFound     = errors.New("mt5 account not found")
	ErrCredentialInvalid   = errors.New("mt5 credentials rejected")
	ErrDecryption          = errors.New("stored credentials cannot be decrypted")
	ErrProviderUnavailable = errors.New("mt5 provider unavailable")
	ErrRepository          = errors.New("repository failure")
	ErrUserNotFound        = errors.New("user not found")
	ErrForecaster          = errors.New("forecaster failure")
)

// ErrorKind - вид ошибки, уходит клиенту в поле code
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation_error"
	KindRateLimited         ErrorKind = "rate_limited"
	KindAccountNotFound     ErrorKind = "account_not_found"
	KindCredentialInvalid   ErrorKind = "credential_invalid"
	KindDecryption          ErrorKind = "decryption_error"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindRepository          ErrorKind = "repository_error"
	KindUserNotFound        ErrorKind = "user_not_found"
	KindForecaster          ErrorKind = "forecaster_error"
	KindInternal            ErrorKind = "internal_error"
)

var kindSentinels = map[ErrorKind]error{
	KindValidation:          ErrValidation,
	KindRateLimited:         ErrRateLimited,
	KindAccountNotFound:     ErrAccountNotFound,
	KindCredentialInvalid:   ErrCredentialInvalid,
	KindDecryption:          ErrDecryption,
	KindProviderUnavailable: ErrProviderUnavailable,
	KindRepository:          ErrRepository,
	KindUserNotFound:        ErrUserNotFound,
	KindForecaster:          ErrForecaster,
}

// Сообщения для пользователя
const (
	MsgRateLimited       = "Rate limit exceeded. Try again later."
	MsgAccountNotFound   = "No MT5 account found for user."
	MsgDecryption        = "Failed to decrypt credentials."
	MsgCredentialInvalid = "Invalid MT5 credentials or MT5 not available. Re-enter details."
	MsgProviderDown      = "MT5 provider is not reachable. Try again later."
	MsgRepository        = "Failed to save trades."
	MsgUserNotFound      = "User not found"
	MsgForecaster        = "Forecast service is not available."
)

// SyncError - структурированная ошибка пайплайна: вид, сообщение и причина
type SyncError struct {
	Kind    ErrorKind
	Message string
	// RetryAfter - когда можно повторить (только для KindRateLimited)
	RetryAfter time.Duration
	// Details - ошибки по полям запроса (только для KindValidation)
	Details map[string]string
	Err     error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

// Unwrap отдаёт и sentinel вида, и исходную причину
func (e *SyncError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind ErrorKind, message string, cause error) *SyncError {
	return &SyncError{Kind: kind, Message: message, Err: cause}
}

// KindOf возвращает вид ошибки; для ошибок вне таксономии - KindInternal
func KindOf(err error) ErrorKind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}
