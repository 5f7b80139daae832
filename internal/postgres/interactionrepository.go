// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MadsRC/sixlab"
)

var _ sixlab.InteractionRepository = (*InteractionRepository)(nil)

// CreateInteraction stores a new interaction record
func (r *InteractionRepository) CreateInteraction(ctx context.Context, record *sixlab.InteractionRecord) error {
	query := `
		INSERT INTO ai_interactions (
			id, provider_type, interaction_type, model,
			request_data, response_data,
			tokens_used, input_tokens, output_tokens, cost_usd,
			response_time_ms, status, error_message, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.options.Db.Exec(ctx, query,
		record.ID,
		record.Provider,
		string(record.InteractionType),
		record.Model,
		nullableJSON(record.RequestData),
		nullableJSON(record.ResponseData),
		record.TokensUsed,
		record.InputTokens,
		record.OutputTokens,
		record.CostUSD,
		record.ResponseTimeMs,
		record.Status,
		record.ErrorMessage,
		record.Timestamp,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sixlab.ErrDuplicateEntry
		}
		r.options.Logger.Error("Failed to create interaction record", "error", err, "interactionId", record.ID)
		return err
	}
	return nil
}

// ListInteractionsByProvider retrieves the interaction records of a provider, newest first
func (r *InteractionRepository) ListInteractionsByProvider(ctx context.Context, providerType string, limit, offset int) ([]*sixlab.InteractionRecord, error) {
	query := `
		SELECT id, provider_type, interaction_type, model,
			request_data, response_data,
			tokens_used, input_tokens, output_tokens, cost_usd,
			response_time_ms, status, error_message, created_at
		FROM ai_interactions
		WHERE provider_type = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.options.Db.Query(ctx, query, providerType, limit, offset)
	if err != nil {
		r.options.Logger.Error("Failed to list interaction records", "error", err, "provider", providerType)
		return nil, err
	}
	defer rows.Close()

	var records []*sixlab.InteractionRecord
	for rows.Next() {
		var (
			rec             sixlab.InteractionRecord
			interactionType string
			requestData     []byte
			responseData    []byte
		)
		err := rows.Scan(
			&rec.ID,
			&rec.Provider,
			&interactionType,
			&rec.Model,
			&requestData,
			&responseData,
			&rec.TokensUsed,
			&rec.InputTokens,
			&rec.OutputTokens,
			&rec.CostUSD,
			&rec.ResponseTimeMs,
			&rec.Status,
			&rec.ErrorMessage,
			&rec.Timestamp,
		)
		if err != nil {
			r.options.Logger.Error("Failed to scan interaction record", "error", err)
			return nil, err
		}
		rec.InteractionType = sixlab.Operation(interactionType)
		rec.RequestData = json.RawMessage(requestData)
		rec.ResponseData = json.RawMessage(responseData)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		r.options.Logger.Error("Error iterating interaction records", "error", err)
		return nil, err
	}
	return records, nil
}

func nullableJSON(data json.RawMessage) []byte {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}
