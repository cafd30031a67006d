package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KeySize - длина ключа AES-256
	KeySize = 32
	// NonceSize - длина nonce GCM (96 бит)
	NonceSize = 12
)

// Ошибки шифрования
var (
	ErrInvalidKeyLength = errors.New("encryption key must be exactly 32 bytes for AES-256")
	ErrInvalidKeyFormat = errors.New("encryption key must be base64 encoded")
	ErrMissingKey       = errors.New("MT5_CRED_KEY is not set")
	ErrInvalidNonce     = errors.New("nonce must be 12 bytes")
	ErrDecryptionFailed = errors.New("decryption failed: authentication error")
)

// CryptoError - ошибка операции хранилища с названием операции
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// Vault шифрует инвесторские пароли AES-256-GCM.
// Nonce и шифртекст хранятся раздельно: (password_nonce, password_enc).
type Vault struct {
	aead     cipher.AEAD
	hashCost int
}

// NewVault создаёт хранилище с 32-байтовым ключом.
// hashCost <= 0 означает DefaultCost.
func NewVault(key []byte, hashCost int) (*Vault, error) {
	if len(key) != KeySize {
		return nil, &CryptoError{Op: "init", Err: ErrInvalidKeyLength}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &CryptoError{Op: "init", Err: err}
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &CryptoError{Op: "init", Err: err}
	}

	if hashCost <= 0 {
		hashCost = DefaultCost
	}

	return &Vault{aead: aead, hashCost: hashCost}, nil
}

// Encrypt шифрует plaintext со свежим случайным nonce.
// GCM добавляет тег аутентификации в конец шифртекста.
func (v *Vault) Encrypt(plaintext string) (nonce, ciphertext []byte, err error) {
	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, &CryptoError{Op: "encrypt", Err: err}
	}

	ciphertext = v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return nonce, ciphertext, nil
}

// Decrypt расшифровывает и проверяет аутентичность.
// При любой ошибке аутентификации возвращает ErrDecryptionFailed без частичного результата.
func (v *Vault) Decrypt(nonce, ciphertext []byte) (string, error) {
	if len(nonce) != NonceSize {
		return "", &CryptoError{Op: "decrypt", Err: ErrInvalidNonce}
	}

	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &CryptoError{Op: "decrypt", Err: ErrDecryptionFailed}
	}

	return string(plaintext), nil
}

// ============ Ключи ============

// GenerateKey генерирует криптографически стойкий ключ AES-256
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// ParseKey декодирует base64-ключ (стандартный или URL-safe алфавит, с padding или без)
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrMissingKey
	}

	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	for _, enc := range encodings {
		key, err := enc.DecodeString(encoded)
		if err != nil {
			continue
		}
		if len(key) != KeySize {
			return nil, ErrInvalidKeyLength
		}
		return key, nil
	}

	return nil, ErrInvalidKeyFormat
}

// LoadKey разбирает ключ из конфигурации.
// Если ключ не задан и allowEphemeral == true (dev), генерирует временный ключ:
// сохранённые с ним пароли не расшифруются после перезапуска.
func LoadKey(encoded string, allowEphemeral bool) (key []byte, ephemeral bool, err error) {
	key, err = ParseKey(encoded)
	if err == nil {
		return key, false, nil
	}

	if !errors.Is(err, ErrMissingKey) || !allowEphemeral {
		return nil, false, &CryptoError{Op: "load key", Err: err}
	}

	key, err = GenerateKey()
	if err != nil {
		return nil, false, &CryptoError{Op: "load key", Err: err}
	}
	return key, true, nil
}
