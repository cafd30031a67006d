package models

import "time"

// Account - привязанный к пользователю счёт MT5 с зашифрованным инвесторским паролем
type Account struct {
	ID            int64      `json:"id" db:"id"`
	UserID        string     `json:"user_id" db:"user_id"`
	Server        string     `json:"server" db:"server"`
	Login         int64      `json:"login" db:"login"`
	PasswordEnc   []byte     `json:"-" db:"password_enc"`   // AES-256-GCM шифртекст с тегом
	PasswordNonce []byte     `json:"-" db:"password_nonce"` // 12 байт, уникален для каждого шифрования
	PasswordHash  string     `json:"-" db:"password_hash"`  // bcrypt, контроль после расшифровки
	LastSync      *time.Time `json:"last_sync,omitempty" db:"last_sync"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// HasWatermark - была ли хотя бы одна успешная синхронизация
func (a *Account) HasWatermark() bool {
	return a.LastSync != nil && !a.LastSync.IsZero()
}
