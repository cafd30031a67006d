package service

import (
	"context"
	"strings"

	"tradesync/internal/models"
	"tradesync/internal/provider"
	"tradesync/pkg/utils"
)

// ConnectRequest - данные для привязки счёта MT5
type ConnectRequest struct {
	UserID   string
	Server   string
	Login    int64
	Password string // инвесторский пароль
}

// AccountService - привязка счетов MT5
type AccountService struct {
	accounts AccountRepositoryInterface
	vault    CredentialVault
	terminal provider.HistoryProvider
}

// NewAccountService создает новый экземпляр сервиса
func NewAccountService(accounts AccountRepositoryInterface, vault CredentialVault, terminal provider.HistoryProvider) *AccountService {
	return &AccountService{
		accounts: accounts,
		vault:    vault,
		terminal: terminal,
	}
}

// Connect проверяет пароль на терминале и сохраняет счёт.
// Выполняет:
// 1. Валидацию полей
// 2. Вход в терминал (облако не проверяется: там нужен отдельный провижининг)
// 3. Шифрование пароля и bcrypt хэш для контроля целостности
// 4. Сохранение в БД
// Каждый вызов добавляет новую строку; синхронизация берёт самую свежую.
func (s *AccountService) Connect(ctx context.Context, req ConnectRequest) (*models.Account, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Server = strings.TrimSpace(req.Server)
	log := utils.L().WithComponent("connect").WithUser(req.UserID).WithAccount(req.Login)

	// 1. Валидация, до любых побочных эффектов
	var verrs utils.ValidationErrors
	verrs.AddError("user_id", utils.ValidateUserID(req.UserID))
	verrs.AddError("server", utils.ValidateServer(req.Server))
	verrs.AddError("login", utils.ValidateLogin(req.Login))
	verrs.AddError("investor_password", utils.ValidatePassword(req.Password))
	if verrs.HasErrors() {
		se := newError(KindValidation, "Invalid request.", verrs)
		se.Details = verrs.Fields()
		return nil, se
	}

	// 2. Живая проверка пароля
	creds := provider.Credentials{Server: req.Server, Login: req.Login, Password: req.Password}
	ok, err := s.terminal.Authenticate(ctx, creds)
	if err != nil {
		log.Warn("terminal authentication failed", utils.Err(err))
		return nil, newError(KindProviderUnavailable, MsgProviderDown, err)
	}
	if !ok {
		log.Info("mt5 credentials rejected")
		return nil, newError(KindCredentialInvalid, MsgCredentialInvalid, nil)
	}

	// 3. Шифрование
	nonce, ciphertext, err := s.vault.Encrypt(req.Password)
	if err != nil {
		return nil, newError(KindInternal, "Failed to secure credentials.", err)
	}
	hash, err := s.vault.IntegrityHash(req.Password)
	if err != nil {
		return nil, newError(KindInternal, "Failed to secure credentials.", err)
	}

	// 4. Сохранение
	account := &models.Account{
		UserID:        req.UserID,
		Server:        req.Server,
		Login:         req.Login,
		PasswordEnc:   ciphertext,
		PasswordNonce: nonce,
		PasswordHash:  hash,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		log.Error("failed to store mt5 account", utils.Err(err))
		return nil, newError(KindRepository, "Failed to store MT5 account.", err)
	}

	log.Info("mt5 account connected", utils.Int64("account_id", account.ID), utils.Server(account.Server))
	return account, nil
}
