package service

import "fmt"

// SyncState - шаг пайплайна синхронизации
type SyncState string

const (
	StateIdle              SyncState = "idle"
	StateRateCheck         SyncState = "rate_check"
	StateAccountLookup     SyncState = "account_lookup"
	StateCredentialDecrypt SyncState = "credential_decrypt"
	StateProviderFetch     SyncState = "provider_fetch"
	StateNormalize         SyncState = "normalize"
	StateUpsert            SyncState = "upsert"
	StateWatermarkAdvance  SyncState = "watermark_advance"
	StateDone              SyncState = "done"
	StateFailed            SyncState = "failed"
)

// ValidTransitions определяет допустимые переходы между состояниями.
// Failed достижим из любого рабочего шага; Done и Failed конечные.
var ValidTransitions = map[SyncState][]SyncState{
	StateIdle:              {StateRateCheck, StateFailed},
	StateRateCheck:         {StateAccountLookup, StateFailed},
	StateAccountLookup:     {StateCredentialDecrypt, StateFailed},
	StateCredentialDecrypt: {StateProviderFetch, StateFailed},
	StateProviderFetch:     {StateNormalize, StateFailed},
	StateNormalize:         {StateUpsert, StateFailed},
	StateUpsert:            {StateWatermarkAdvance, StateFailed},
	StateWatermarkAdvance:  {StateDone, StateFailed},
	StateDone:              {},
	StateFailed:            {},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to SyncState) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal - пайплайн завершён
func IsTerminal(s SyncState) bool {
	return s == StateDone || s == StateFailed
}

// syncRun - состояние одного запуска пайплайна
type syncRun struct {
	state   SyncState
	history []SyncState
	onEnter func(SyncState)
}

func newSyncRun(onEnter func(SyncState)) *syncRun {
	return &syncRun{state: StateIdle, history: []SyncState{StateIdle}, onEnter: onEnter}
}

// advance переводит пайплайн в следующее состояние
func (r *syncRun) advance(to SyncState) error {
	if !CanTransition(r.state, to) {
		return fmt.Errorf("invalid sync transition %s -> %s", r.state, to)
	}
	r.state = to
	r.history = append(r.history, to)
	if r.onEnter != nil {
		r.onEnter(to)
	}
	return nil
}

// fail переводит в Failed из любого нетерминального состояния
func (r *syncRun) fail() {
	if IsTerminal(r.state) {
		return
	}
	_ = r.advance(StateFailed)
}
