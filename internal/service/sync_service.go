package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradesync/internal/metrics"
	"tradesync/internal/models"
	"tradesync/internal/normalizer"
	"tradesync/internal/provider"
	"tradesync/internal/repository"
	"tradesync/pkg/utils"
)

// Значения по умолчанию для SyncConfig
const (
	DefaultSyncRateLimit  = 10
	DefaultSyncRateWindow = time.Hour
	DefaultSyncTimeout    = 60 * time.Second
)

// SyncConfig - параметры пайплайна синхронизации
type SyncConfig struct {
	RateLimit  int           // запусков на пользователя за окно
	RateWindow time.Duration // окно ограничения
	Timeout    time.Duration // верхняя граница всего пайплайна
}

// SyncService - оркестратор синхронизации сделок MT5
type SyncService struct {
	accounts AccountRepositoryInterface
	trades   TradeRepositoryInterface
	vault    CredentialVault
	limiter  RateLimiter

	terminal provider.HistoryProvider
	cloud    provider.HistoryProvider // nil, если облако не настроено

	cfg SyncConfig
	now func() time.Time
}

// NewSyncService создает новый экземпляр сервиса
func NewSyncService(
	accounts AccountRepositoryInterface,
	trades TradeRepositoryInterface,
	vault CredentialVault,
	limiter RateLimiter,
	terminal, cloud provider.HistoryProvider,
	cfg SyncConfig,
) *SyncService {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultSyncRateLimit
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = DefaultSyncRateWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSyncTimeout
	}
	return &SyncService{
		accounts: accounts,
		trades:   trades,
		vault:    vault,
		limiter:  limiter,
		terminal: terminal,
		cloud:    cloud,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Sync выполняет одну синхронизацию счёта пользователя.
// Шаги:
// 1. Проверка лимита запусков
// 2. Поиск последнего привязанного счёта (login сужает поиск)
// 3. Расшифровка пароля и проверка целостности
// 4. Загрузка истории: терминал, затем облако
// 5. Нормализация, битые записи пропускаются
// 6. Upsert по (user_id, тикет)
// 7. Сдвиг watermark
func (s *SyncService) Sync(ctx context.Context, userID string, login *int64) (*models.SyncSummary, error) {
	start := time.Now()
	log := utils.L().WithComponent("sync").WithUser(userID)

	run := newSyncRun(func(st SyncState) {
		log.Debug("sync state", utils.State(string(st)))
	})

	summary, err := s.sync(ctx, run, log, userID, login)
	if err != nil {
		run.fail()
		kind := KindOf(err)
		metrics.RecordSync(string(kind), "", 0, 0, time.Since(start))
		if kind == KindRateLimited || kind == KindValidation || kind == KindAccountNotFound {
			log.Info("sync rejected", utils.String("kind", string(kind)))
		} else {
			log.Error("sync failed", utils.String("kind", string(kind)), utils.Err(err))
		}
		return nil, err
	}

	metrics.RecordSync("ok", summary.Source, summary.Imported, summary.Skipped, time.Since(start))
	log.Info("sync completed",
		utils.Provider(summary.Source),
		utils.Int("imported", summary.Imported),
		utils.Int("skipped", summary.Skipped),
		utils.Int("positions", summary.Positions),
		utils.Latency(float64(time.Since(start).Milliseconds())),
	)
	return summary, nil
}

func (s *SyncService) sync(ctx context.Context, run *syncRun, log *utils.Logger, userID string, login *int64) (*models.SyncSummary, error) {
	if err := validateSyncRequest(userID, login); err != nil {
		return nil, err
	}

	// 1. Лимит: при отказе никаких побочных эффектов
	if err := run.advance(StateRateCheck); err != nil {
		return nil, err
	}
	if !s.limiter.Allow(userID, s.cfg.RateLimit, s.cfg.RateWindow) {
		metrics.RecordRateLimited()
		se := newError(KindRateLimited, MsgRateLimited, nil)
		se.RetryAfter = s.limiter.RetryAfter(userID, s.cfg.RateLimit, s.cfg.RateWindow)
		se.Details = map[string]string{"retry_after": utils.FormatDuration(se.RetryAfter)}
		return nil, se
	}
	remaining := s.limiter.Remaining(userID, s.cfg.RateLimit, s.cfg.RateWindow)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	// 2. Счёт
	if err := run.advance(StateAccountLookup); err != nil {
		return nil, err
	}
	account, err := s.accounts.FindLatest(ctx, userID, login)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, newError(KindAccountNotFound, MsgAccountNotFound, err)
		}
		return nil, newError(KindRepository, "Failed to load MT5 account.", err)
	}
	log = log.WithAccount(account.Login)

	// 3. Пароль
	if err := run.advance(StateCredentialDecrypt); err != nil {
		return nil, err
	}
	password, err := s.vault.Decrypt(account.PasswordNonce, account.PasswordEnc)
	if err != nil {
		return nil, newError(KindDecryption, MsgDecryption, err)
	}
	if account.PasswordHash != "" {
		if err := s.vault.VerifyIntegrity(password, account.PasswordHash); err != nil {
			return nil, newError(KindDecryption, MsgDecryption, err)
		}
	}

	// 4. История. Время запуска станет новым watermark:
	// следующая выборка перекроет окно загрузки, upsert это поглотит.
	if err := run.advance(StateProviderFetch); err != nil {
		return nil, err
	}
	syncedAt := s.now().UTC()
	creds := provider.Credentials{Server: account.Server, Login: account.Login, Password: password}
	var since *time.Time
	if account.HasWatermark() {
		since = account.LastSync
	}
	history, err := s.fetch(ctx, log, creds, since)
	if err != nil {
		return nil, err
	}

	// 5. Нормализация
	if err := run.advance(StateNormalize); err != nil {
		return nil, err
	}
	batch := normalizeHistory(log, history, userID, account.Login)

	// 6. Upsert
	if err := run.advance(StateUpsert); err != nil {
		return nil, err
	}
	imported, err := s.trades.Upsert(ctx, batch.trades)
	if err != nil {
		return nil, newError(KindRepository, MsgRepository, err)
	}

	// 7. Watermark сдвигается и при пустом импорте
	if err := run.advance(StateWatermarkAdvance); err != nil {
		return nil, err
	}
	if err := s.accounts.UpdateWatermark(ctx, account.ID, syncedAt); err != nil {
		return nil, newError(KindRepository, "Failed to update sync watermark.", err)
	}
	account.LastSync = &syncedAt

	if err := run.advance(StateDone); err != nil {
		return nil, err
	}

	analysis := Analyze(batch.trades)
	return &models.SyncSummary{
		Imported:      imported,
		Skipped:       batch.skipped,
		Positions:     batch.positions,
		TotalTrades:   analysis.TotalTrades,
		WinRate:       analysis.WinRate,
		Source:        history.Provider,
		Message:       syncMessage(imported, analysis),
		RateRemaining: &remaining,
	}, nil
}

// fetch выбирает источник истории.
// Терминал основной. Облако пробуется, если терминал вернул пустую историю
// или недоступен. Непустые сделки облака побеждают, при равенстве остаётся терминал.
func (s *SyncService) fetch(ctx context.Context, log *utils.Logger, creds provider.Credentials, since *time.Time) (*provider.History, error) {
	history, termErr := s.terminal.FetchSince(ctx, creds, since)
	if termErr != nil {
		if errors.Is(termErr, provider.ErrInvalidCredentials) {
			return nil, newError(KindCredentialInvalid, MsgCredentialInvalid, termErr)
		}
		if ctx.Err() != nil || s.cloud == nil {
			return nil, newError(KindProviderUnavailable, MsgProviderDown, termErr)
		}
		log.Warn("terminal unavailable, trying cloud", utils.Err(termErr))
	} else if !history.Empty() || s.cloud == nil {
		return ensureHistory(history, s.terminal.Name()), nil
	}

	cloudHistory, cloudErr := s.cloud.FetchSince(ctx, creds, since)
	if cloudErr == nil && !cloudHistory.Empty() {
		return cloudHistory, nil
	}

	if termErr != nil {
		if cloudErr != nil {
			return nil, newError(KindProviderUnavailable, MsgProviderDown, errors.Join(termErr, cloudErr))
		}
		return nil, newError(KindProviderUnavailable, MsgProviderDown, termErr)
	}
	if cloudErr != nil {
		log.Warn("cloud fallback failed", utils.Err(cloudErr))
	}
	return ensureHistory(history, s.terminal.Name()), nil
}

func ensureHistory(h *provider.History, name string) *provider.History {
	if h == nil {
		return &provider.History{Provider: name}
	}
	return h
}

// normalizedBatch - результат нормализации одной истории
type normalizedBatch struct {
	trades    []*models.Trade
	skipped   int
	positions int
}

func normalizeHistory(log *utils.Logger, h *provider.History, userID string, login int64) normalizedBatch {
	deals, dealErrs := normalizer.NormalizeBatch(h.Deals, h.DealSource)
	positions, posErrs := normalizer.NormalizeBatch(h.Positions, h.PositionSource)

	batch := normalizedBatch{
		trades:    make([]*models.Trade, 0, len(deals)+len(positions)),
		skipped:   len(dealErrs) + len(posErrs),
		positions: len(positions),
	}
	batch.trades = append(batch.trades, deals...)
	batch.trades = append(batch.trades, positions...)
	for _, t := range batch.trades {
		t.UserID = userID
		t.AccountLogin = login
	}

	for _, nerr := range append(dealErrs, posErrs...) {
		log.Debug("record skipped", utils.Source(string(nerr.Source)), utils.Int("index", nerr.Index), utils.Err(nerr))
	}
	if batch.skipped > 0 {
		log.Warn("records skipped during normalization", utils.Count(batch.skipped))
	}
	return batch
}

// UpsertTrades импортирует сделки, присланные клиентом, минуя провайдеров.
// Лимит запусков не применяется; login необязателен.
func (s *SyncService) UpsertTrades(ctx context.Context, userID string, login *int64, records []models.RawRecord) (*models.SyncSummary, error) {
	start := time.Now()
	log := utils.L().WithComponent("import").WithUser(userID)

	if err := validateSyncRequest(userID, login); err != nil {
		return nil, err
	}

	var accountLogin int64
	if login != nil {
		accountLogin = *login
	}

	trades, errs := normalizer.NormalizeBatch(records, models.SourceClient)
	for _, t := range trades {
		t.UserID = userID
		t.AccountLogin = accountLogin
	}
	if len(errs) > 0 {
		log.Warn("records skipped during normalization", utils.Count(len(errs)))
	}

	imported, err := s.trades.Upsert(ctx, trades)
	if err != nil {
		log.Error("client import failed", utils.Err(err))
		return nil, newError(KindRepository, MsgRepository, err)
	}

	metrics.RecordSync("ok", string(models.SourceClient), imported, len(errs), time.Since(start))
	log.Info("client trades upserted", utils.Int("imported", imported), utils.Int("skipped", len(errs)))

	analysis := Analyze(trades)
	return &models.SyncSummary{
		Imported:    imported,
		Skipped:     len(errs),
		TotalTrades: analysis.TotalTrades,
		WinRate:     analysis.WinRate,
		Source:      string(models.SourceClient),
		Message:     fmt.Sprintf("Upserted %d trades.", imported),
	}, nil
}

func validateSyncRequest(userID string, login *int64) error {
	var verrs utils.ValidationErrors
	verrs.AddError("user_id", utils.ValidateUserID(userID))
	if login != nil {
		verrs.AddError("login", utils.ValidateLogin(*login))
	}
	if verrs.HasErrors() {
		se := newError(KindValidation, "Invalid request.", verrs)
		se.Details = verrs.Fields()
		return se
	}
	return nil
}

func syncMessage(imported int, a Analysis) string {
	return fmt.Sprintf("Imported %d trades. Win rate: %g%% of %d trades.", imported, a.WinRate, a.TotalTrades)
}
