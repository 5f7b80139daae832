// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/MadsRC/sixlab"
)

var _ sixlab.ConfigStore = (*OptionRepository)(nil)

// GetOption retrieves the JSON value stored under key
func (r *OptionRepository) GetOption(ctx context.Context, key string) (json.RawMessage, error) {
	query := `SELECT value FROM options WHERE key = $1`

	var value []byte
	err := r.options.Db.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sixlab.ErrNotFound
	}
	if err != nil {
		r.options.Logger.Error("Failed to get option", "error", err, "key", key)
		return nil, err
	}
	return json.RawMessage(value), nil
}

// SetOption stores value under key, replacing any previous value
func (r *OptionRepository) SetOption(ctx context.Context, key string, value json.RawMessage) error {
	query := `
		INSERT INTO options (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	_, err := r.options.Db.Exec(ctx, query, key, []byte(value))
	if err != nil {
		r.options.Logger.Error("Failed to set option", "error", err, "key", key)
		return err
	}
	return nil
}
