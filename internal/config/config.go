package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradesync/pkg/crypto"
)

// Окружения
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Env        string
	Server     ServerConfig
	Database   DatabaseConfig
	Security   SecurityConfig
	Providers  ProvidersConfig
	Sync       SyncConfig
	Forecaster ForecasterConfig
	Logging    LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string // CORS_ALLOWED_ORIGINS через запятую
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	CredentialKey string // MT5_CRED_KEY, base64 от 32 байт
	BcryptCost    int
	JWTSecret     string // пустой - аутентификация запросов выключена
}

// ProvidersConfig - источники истории
type ProvidersConfig struct {
	TerminalURL string
	TerminalKey string
	CloudURL    string
	CloudToken  string // пустой - резервный облачный источник выключен
	CloudRPS    float64
	Timeout     time.Duration
}

// SyncConfig - параметры пайплайна синхронизации
type SyncConfig struct {
	RateLimit       int
	RateWindow      time.Duration
	DefaultLookback time.Duration
	Timeout         time.Duration
	PruneInterval   time.Duration // очистка простаивающих ключей лимитера
}

// ForecasterConfig - внешний сервис прогнозов
type ForecasterConfig struct {
	URL          string
	APIKey       string
	Timeout      time.Duration
	PlanCacheTTL time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// LoadEnvFile подгружает переменные из .env файлов (по умолчанию ./.env).
// Отсутствие файла не ошибка: возвращается loaded=false.
// Уже заданные переменные окружения не перезаписываются.
func LoadEnvFile(files ...string) (bool, error) {
	err := godotenv.Load(files...)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("load env file: %w", err)
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Env: strings.ToLower(getEnv("ENV", EnvDevelopment)),
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			Name:         getEnv("DB_NAME", "tradesync"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnLifetime: getEnvAsDuration("DB_CONN_LIFETIME", 5*time.Minute),
		},
		Security: SecurityConfig{
			CredentialKey: getEnv("MT5_CRED_KEY", ""),
			BcryptCost:    getEnvAsInt("BCRYPT_COST", crypto.DefaultCost),
			JWTSecret:     getEnv("JWT_SECRET", ""),
		},
		Providers: ProvidersConfig{
			TerminalURL: getEnv("TERMINAL_BRIDGE_URL", "http://localhost:8090"),
			TerminalKey: getEnv("TERMINAL_BRIDGE_KEY", ""),
			CloudURL:    getEnv("METAAPI_URL", ""),
			CloudToken:  getEnv("METAAPI_TOKEN", ""),
			CloudRPS:    getEnvAsFloat("CLOUD_API_RPS", 5),
			Timeout:     getEnvAsDuration("PROVIDER_TIMEOUT", 30*time.Second),
		},
		Sync: SyncConfig{
			RateLimit:       getEnvAsInt("SYNC_RATE_LIMIT", 10),
			RateWindow:      getEnvAsDuration("SYNC_RATE_WINDOW", time.Hour),
			DefaultLookback: getEnvAsDuration("SYNC_DEFAULT_LOOKBACK", 90*24*time.Hour),
			Timeout:         getEnvAsDuration("SYNC_TIMEOUT", 60*time.Second),
			PruneInterval:   getEnvAsDuration("SYNC_PRUNE_INTERVAL", 10*time.Minute),
		},
		Forecaster: ForecasterConfig{
			URL:          getEnv("FORECASTER_URL", "http://localhost:8000"),
			APIKey:       getEnv("FORECASTER_API_KEY", ""),
			Timeout:      getEnvAsDuration("FORECASTER_TIMEOUT", 15*time.Second),
			PlanCacheTTL: getEnvAsDuration("PLAN_CACHE_TTL", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction - боевое окружение: ключ шифрования обязателен
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// AuthEnabled - проверка JWT на входящих запросах включена
func (c *Config) AuthEnabled() bool {
	return c.Security.JWTSecret != ""
}

// CloudEnabled - задан токен облачного API
func (c *Config) CloudEnabled() bool {
	return c.Providers.CloudToken != ""
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	switch c.Env {
	case EnvDevelopment, EnvProduction, "test":
	default:
		return fmt.Errorf("ENV must be one of development, production, test, got %q", c.Env)
	}

	// В production без ключа сохранённые пароли невозможно расшифровать после рестарта
	if c.Security.CredentialKey == "" && c.IsProduction() {
		return fmt.Errorf("MT5_CRED_KEY is required in production")
	}
	if c.Security.CredentialKey != "" {
		if _, err := crypto.ParseKey(c.Security.CredentialKey); err != nil {
			return fmt.Errorf("MT5_CRED_KEY: %w", err)
		}
	}

	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters for security")
	}

	if c.Security.BcryptCost < crypto.MinCost || c.Security.BcryptCost > crypto.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", crypto.MinCost, crypto.MaxCost, c.Security.BcryptCost)
	}

	if c.IsProduction() {
		for _, origin := range c.Server.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS_ALLOWED_ORIGINS must not contain * in production")
			}
		}
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Sync.RateLimit < 1 {
		return fmt.Errorf("SYNC_RATE_LIMIT must be positive, got %d", c.Sync.RateLimit)
	}

	// Таймауты и окна должны быть положительными
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"SYNC_RATE_WINDOW", c.Sync.RateWindow},
		{"SYNC_DEFAULT_LOOKBACK", c.Sync.DefaultLookback},
		{"SYNC_TIMEOUT", c.Sync.Timeout},
		{"SYNC_PRUNE_INTERVAL", c.Sync.PruneInterval},
		{"PROVIDER_TIMEOUT", c.Providers.Timeout},
		{"FORECASTER_TIMEOUT", c.Forecaster.Timeout},
		{"PLAN_CACHE_TTL", c.Forecaster.PlanCacheTTL},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", d.name, d.value)
		}
	}

	// Один зависший вызов провайдера не должен съедать весь бюджет синхронизации
	if c.Providers.Timeout > c.Sync.Timeout {
		return fmt.Errorf("PROVIDER_TIMEOUT (%v) must not exceed SYNC_TIMEOUT (%v)", c.Providers.Timeout, c.Sync.Timeout)
	}

	if c.Providers.CloudRPS <= 0 {
		return fmt.Errorf("CLOUD_API_RPS must be positive, got %v", c.Providers.CloudRPS)
	}

	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive, got %d", c.Database.MaxOpenConns)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
