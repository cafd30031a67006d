package service

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"

	"tradesync/internal/repository"
	"tradesync/pkg/utils"
)

// DefaultPlanCacheTTL - срок жизни тарифа в кэше
const DefaultPlanCacheTTL = 5 * time.Minute

const planCacheKeyPrefix = "plan:"

// PredictService проксирует запросы прогноза с тарифом пользователя
type PredictService struct {
	users      UserRepositoryInterface
	forecaster Forecaster
	planCache  *cache.Cache
}

// NewPredictService создает новый экземпляр сервиса.
// planCache можно передать общий; при nil создаётся свой с DefaultPlanCacheTTL.
func NewPredictService(users UserRepositoryInterface, forecaster Forecaster, planCache *cache.Cache) *PredictService {
	if planCache == nil {
		planCache = cache.New(DefaultPlanCacheTTL, 2*DefaultPlanCacheTTL)
	}
	return &PredictService{
		users:      users,
		forecaster: forecaster,
		planCache:  planCache,
	}
}

// Predict возвращает прогноз по инструменту как JSON сервиса прогнозов
func (s *PredictService) Predict(ctx context.Context, userID, pair string) ([]byte, error) {
	pair = utils.NormalizePair(pair)

	var verrs utils.ValidationErrors
	verrs.AddError("user_id", utils.ValidateUserID(userID))
	verrs.AddError("pair", utils.ValidatePair(pair))
	if verrs.HasErrors() {
		se := newError(KindValidation, "Invalid request.", verrs)
		se.Details = verrs.Fields()
		return nil, se
	}

	plan, err := s.plan(ctx, userID)
	if err != nil {
		return nil, err
	}

	body, err := s.forecaster.Predict(ctx, pair, plan)
	if err != nil {
		utils.L().WithComponent("predict").WithUser(userID).Warn("forecast request failed",
			utils.Symbol(pair), utils.String("plan", plan), utils.Err(err))
		return nil, newError(KindForecaster, MsgForecaster, err)
	}
	return body, nil
}

// plan читает тариф пользователя, сначала из кэша
func (s *PredictService) plan(ctx context.Context, userID string) (string, error) {
	key := planCacheKeyPrefix + userID
	if cached, found := s.planCache.Get(key); found {
		if plan, ok := cached.(string); ok {
			return plan, nil
		}
	}

	plan, err := s.users.GetPlan(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", newError(KindUserNotFound, MsgUserNotFound, err)
		}
		return "", newError(KindRepository, "Failed to load user plan.", err)
	}

	s.planCache.Set(key, plan, cache.DefaultExpiration)
	return plan, nil
}

// InvalidatePlan сбрасывает кэшированный тариф (после смены подписки)
func (s *PredictService) InvalidatePlan(userID string) {
	s.planCache.Delete(planCacheKeyPrefix + userID)
}
