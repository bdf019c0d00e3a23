package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dreddmarket/engine/market"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MarketStore implements market.Store against the GORM models in this
// package, retrying transient transaction failures through PoolManager.
type MarketStore struct {
	pool       *PoolManager
	maxRetries int
}

// NewMarketStore wraps pool as a market.Store.
func NewMarketStore(pool *PoolManager, maxRetries int) *MarketStore {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &MarketStore{pool: pool, maxRetries: maxRetries}
}

func (s *MarketStore) UpsertThread(ctx context.Context, chatID int64) (*market.Thread, error) {
	var row ThreadModel
	err := s.pool.WithTransactionRetry(ctx, s.maxRetries, func(tx *gorm.DB) error {
		err := tx.Where("chat_id = ?", chatID).First(&row).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		row = ThreadModel{ID: uuid.New(), ChatID: chatID}
		return tx.Create(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return threadFromModel(row), nil
}

func (s *MarketStore) CreateRun(ctx context.Context, threadID uuid.UUID, question string) (*market.Run, error) {
	row := RunModel{
		ID:       uuid.New(),
		ThreadID: threadID,
		Question: question,
		Status:   string(market.RunInProgress),
	}
	err := s.pool.WithTransactionRetry(ctx, s.maxRetries, func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &market.Run{
		ID:        row.ID,
		ThreadID:  row.ThreadID,
		Question:  row.Question,
		Status:    market.RunInProgress,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (s *MarketStore) SaveAnswer(ctx context.Context, answer *market.ProviderAnswer) error {
	row := ProviderAnswerModel{
		ID:           uuid.New(),
		RunID:        answer.RunID,
		Round:        answer.Round,
		Provider:     string(answer.Provider),
		Model:        answer.Model,
		Status:       string(answer.Status),
		Answer:       answer.Answer,
		Confidence:   answer.Confidence,
		KeyClaims:    answer.KeyClaims,
		Assumptions:  answer.Assumptions,
		InputTokens:  answer.Usage.InputTokens,
		OutputTokens: answer.Usage.OutputTokens,
		TotalTokens:  answer.Usage.TotalTokens,
		CostUSD:      answer.Usage.CostUSD,
		LatencyMS:    answer.LatencyMS,
		RawResponse:  answer.RawResponse,
	}
	if citations, err := json.Marshal(answer.Citations); err == nil {
		row.Citations = citations
	}
	if answer.Err != nil {
		row.ErrorKind = string(answer.Err.Kind)
		row.ErrorMessage = answer.Err.Message
	}
	answer.ID = row.ID
	return s.pool.WithTransactionRetry(ctx, s.maxRetries, func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
}

func (s *MarketStore) SaveArbiterOutput(ctx context.Context, output *market.ArbiterOutput) error {
	row := ArbiterOutputModel{
		ID:                uuid.New(),
		RunID:             output.RunID,
		ArbiterProvider:   string(output.ArbiterProvider),
		ArbiterModel:      output.ArbiterModel,
		FinalAnswer:       output.FinalAnswer,
		Agreements:        output.Agreements,
		NextQuestions:     output.NextQuestions,
		OverallConfidence: output.OverallConfidence,
		ArbiterFailed:     output.ArbiterFailed,
		LatencyMS:         output.LatencyMS,
		CostUSD:           output.CostUSD,
	}
	if conflicts, err := json.Marshal(output.Conflicts); err == nil {
		row.Conflicts = conflicts
	}
	if facts, err := json.Marshal(output.FactTable); err == nil {
		row.FactTable = facts
	}
	output.ID = row.ID
	return s.pool.WithTransactionRetry(ctx, s.maxRetries, func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
}

func (s *MarketStore) CompleteRun(ctx context.Context, runID uuid.UUID, roundsCompleted int, convergenceAchieved bool, totalLatencyMS int64, totalCostUSD float64) error {
	return s.pool.WithTransactionRetry(ctx, s.maxRetries, func(tx *gorm.DB) error {
		return tx.Model(&RunModel{}).Where("id = ?", runID).Updates(map[string]any{
			"status":               string(market.RunCompleted),
			"rounds_completed":     roundsCompleted,
			"convergence_achieved": convergenceAchieved,
			"total_latency_ms":     totalLatencyMS,
			"total_cost_usd":       totalCostUSD,
			"updated_at":           time.Now(),
		}).Error
	})
}

func (s *MarketStore) FailRun(ctx context.Context, runID uuid.UUID) error {
	return s.pool.WithTransactionRetry(ctx, s.maxRetries, func(tx *gorm.DB) error {
		return tx.Model(&RunModel{}).Where("id = ?", runID).Updates(map[string]any{
			"status":     string(market.RunFailed),
			"updated_at": time.Now(),
		}).Error
	})
}

func threadFromModel(row ThreadModel) *market.Thread {
	return &market.Thread{
		ID:                   row.ID,
		ChatID:               row.ChatID,
		ArbiterOverrideTag:   market.ProviderTag(row.ArbiterOverrideTag),
		ArbiterOverrideModel: row.ArbiterOverrideModel,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}
}
