package utils

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Ошибки валидации
var (
	ErrInvalidServer   = errors.New("invalid MT5 server name")
	ErrInvalidLogin    = errors.New("invalid MT5 login")
	ErrInvalidPassword = errors.New("invalid investor password")
	ErrInvalidUserID   = errors.New("invalid user id")
	ErrInvalidPair     = errors.New("invalid currency pair")
)

const (
	MaxUserIDLength   = 128
	MaxServerLength   = 64
	MinPasswordLength = 4
	// bcrypt обрезает вход после 72 байт
	MaxPasswordLength = 72
)

var (
	// Имя сервера брокера: "MetaQuotes-Demo", "ICMarketsSC-Live07", "Broker.Server 2"
	serverRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._\-]{1,63}$`)
	// Инструмент: EURUSD, XAUUSD, BTCUSD.m, US30
	pairRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._#\-]{1,19}$`)
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator возвращает общий экземпляр validator.Validate с зарегистрированными правилами:
//   - mtserver: имя торгового сервера MT5
//   - mtpair: символ инструмента
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("mtserver", func(fl validator.FieldLevel) bool {
			return serverRegex.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("mtpair", func(fl validator.FieldLevel) bool {
			return pairRegex.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// ValidateStruct проверяет struct-теги `validate` и превращает ошибки в ValidationErrors
func ValidateStruct(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	var errs ValidationErrors
	for _, fe := range fieldErrs {
		errs.Add(jsonFieldName(fe), describeTag(fe))
	}
	return errs
}

func jsonFieldName(fe validator.FieldError) string {
	if name := fe.Field(); name != "" {
		return name
	}
	return fe.StructField()
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "mtserver":
		return "must be a valid MT5 server name"
	case "mtpair":
		return "must be a valid symbol"
	case "gt", "gte", "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte", "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// ============ Проверки отдельных значений ============

// ValidateServer проверяет имя сервера брокера
func ValidateServer(server string) error {
	if !serverRegex.MatchString(strings.TrimSpace(server)) {
		return ErrInvalidServer
	}
	return nil
}

// ValidateLogin проверяет номер счёта MT5 (положительное целое)
func ValidateLogin(login int64) error {
	if login <= 0 {
		return ErrInvalidLogin
	}
	return nil
}

// ValidatePassword проверяет длину инвесторского пароля
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}

// ValidateUserID проверяет идентификатор пользователя
func ValidateUserID(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || len(userID) > MaxUserIDLength {
		return ErrInvalidUserID
	}
	return nil
}

// ValidatePair проверяет символ инструмента для прогноза
func ValidatePair(pair string) error {
	if !pairRegex.MatchString(pair) {
		return ErrInvalidPair
	}
	return nil
}

// NormalizePair приводит символ к верхнему регистру без разделителей: "eur/usd" -> "EURUSD"
func NormalizePair(pair string) string {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	return strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(pair)
}

// ============ Накопление ошибок ============

// FieldError - ошибка конкретного поля
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors - набор ошибок валидации
type ValidationErrors []FieldError

func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

func (e *ValidationErrors) AddError(field string, err error) {
	if err != nil {
		e.Add(field, err.Error())
	}
}

func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return strings.Join(parts, "; ")
}

// Fields возвращает ошибки в виде map поле -> сообщение (для details в ответе API)
func (e ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(e))
	for _, fe := range e {
		out[fe.Field] = fe.Message
	}
	return out
}
