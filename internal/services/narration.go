package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fintel/internal/cache"
	"fintel/internal/core"
	"fintel/internal/llm"
	"fintel/internal/log"
	"fintel/internal/storage"
)

// NarrationStore is the persistence surface for generated narrations.
type NarrationStore interface {
	SaveNarration(ctx context.Context, rec storage.NarrationRecord) error
	GetNarration(ctx context.Context, cacheKey string) (*storage.NarrationRecord, error)
}

// NarrationService memoizes LLM narrations in two tiers: an in-process
// TTL cache in front of the narrations table. The model is only called
// when neither tier has a narration for the report's fingerprint.
type NarrationService struct {
	store    NarrationStore
	narrator llm.Narrator
	memo     *cache.TTLCache[*llm.Narration]
	logger   *log.Logger
}

func NewNarrationService(store NarrationStore, narrator llm.Narrator, memo *cache.TTLCache[*llm.Narration], logger *log.Logger) *NarrationService {
	return &NarrationService{
		store:    store,
		narrator: narrator,
		memo:     memo,
		logger:   logger.WithComponent("narration-service"),
	}
}

// Narrate returns the narration for a report, generating one if needed.
// A (nil, nil) return means no narration is available right now; the
// report is still served.
func (s *NarrationService) Narrate(ctx context.Context, userID string, ins *core.Insights) (*llm.Narration, error) {
	if s.narrator == nil {
		return nil, nil
	}

	key := NarrationKey(userID, ins.Period, ins.PeriodKey, Fingerprint(ins))

	if n, ok := s.memo.Get(key); ok {
		return n, nil
	}

	if rec, err := s.store.GetNarration(ctx, key); err != nil {
		s.logger.Warn("Narration lookup failed", "key", key, "error", err)
	} else if rec != nil {
		var n llm.Narration
		if decodeErr := json.Unmarshal(rec.Payload, &n); decodeErr != nil {
			s.logger.Warn("Discarding undecodable stored narration", "key", key, "error", decodeErr)
		} else {
			s.memo.Set(key, &n)
			return &n, nil
		}
	}

	n, err := s.narrator.Summarize(ctx, ins)
	if err != nil {
		return nil, fmt.Errorf("generate narration: %w", err)
	}
	if n == nil {
		return nil, nil
	}

	s.remember(ctx, userID, ins, key, n)
	return n, nil
}

// remember writes a fresh narration into both tiers. Persistence errors
// are logged only: the narration is already in hand.
func (s *NarrationService) remember(ctx context.Context, userID string, ins *core.Insights, key string, n *llm.Narration) {
	s.memo.Set(key, n)

	payload, err := json.Marshal(n)
	if err != nil {
		s.logger.Error("Narration encode failed", "key", key, "error", err)
		return
	}
	rec := storage.NarrationRecord{
		CacheKey:    key,
		UserID:      userID,
		Period:      ins.Period,
		PeriodKey:   ins.PeriodKey,
		Fingerprint: Fingerprint(ins),
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.SaveNarration(ctx, rec); err != nil {
		s.logger.Warn("Narration persist failed", "key", key, "error", err)
	}
}
