package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/voicelead/calltrack/internal/model"
)

// InsertAnalysis persists a completed analysis. The call_sid unique
// constraint makes re-analysis attempts surface ErrDuplicate.
func (s *PostgresStore) InsertAnalysis(ctx context.Context, analysis model.AIAnalysis) (*model.AIAnalysis, error) {
	analysis.ID = uuid.New().String()
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = time.Now().UTC()
	}

	tagsJSON, err := json.Marshal(analysis.Tags)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal analysis tags")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO ai_analysis (id, call_sid, transcription, summary, sentiment, tags, fallback, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		analysis.ID, analysis.CallSID, analysis.Transcription, analysis.Summary,
		string(analysis.Sentiment), tagsJSON, analysis.Fallback, analysis.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, eris.Wrapf(ErrDuplicate, "analysis for call %s", analysis.CallSID)
		}
		return nil, eris.Wrapf(err, "postgres: insert analysis %s", analysis.CallSID)
	}
	return &analysis, nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, callSID string) (*model.AIAnalysis, error) {
	var a model.AIAnalysis
	var tagsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, call_sid, transcription, summary, sentiment, tags, fallback, created_at
		 FROM ai_analysis WHERE call_sid = $1`,
		callSID,
	).Scan(&a.ID, &a.CallSID, &a.Transcription, &a.Summary, &a.Sentiment, &tagsJSON, &a.Fallback, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "analysis for call %s", callSID)
		}
		return nil, eris.Wrapf(err, "postgres: get analysis %s", callSID)
	}
	if err := json.Unmarshal(tagsJSON, &a.Tags); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal analysis tags")
	}
	return &a, nil
}
