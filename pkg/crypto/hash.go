package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки хеширования
var (
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordMismatch = errors.New("password does not match hash")
	ErrInvalidHash      = errors.New("invalid password hash format")
	ErrPasswordTooLong  = errors.New("password exceeds maximum length of 72 bytes")
)

// Стоимость bcrypt
const (
	DefaultCost = 12
	MinCost     = bcrypt.MinCost
	MaxCost     = bcrypt.MaxCost
)

// MaxPasswordLength - bcrypt учитывает только первые 72 байта
const MaxPasswordLength = 72

// HashPasswordWithCost хеширует пароль bcrypt.
// cost приводится к диапазону [bcrypt.MinCost, bcrypt.MaxCost].
func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}

	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword сравнивает пароль с хешем за постоянное время
func VerifyPassword(password, hash string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return ErrInvalidHash
	}
	return nil
}

// ============ Контрольный хеш хранилища ============

// IntegrityHash возвращает bcrypt-хеш пароля (password_hash).
// Хранится рядом с шифртекстом и проверяется после расшифровки.
func (v *Vault) IntegrityHash(plaintext string) (string, error) {
	hash, err := HashPasswordWithCost(plaintext, v.hashCost)
	if err != nil {
		return "", &CryptoError{Op: "hash", Err: err}
	}
	return hash, nil
}

// VerifyIntegrity проверяет, что расшифрованный пароль соответствует сохранённому хешу.
// Пустой hash (старые записи) считается отсутствием проверки.
func (v *Vault) VerifyIntegrity(plaintext, hash string) error {
	if hash == "" {
		return nil
	}
	if err := VerifyPassword(plaintext, hash); err != nil {
		return &CryptoError{Op: "verify", Err: err}
	}
	return nil
}
