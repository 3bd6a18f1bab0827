// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/analog-engine/internal/match"
)

// LoadCheckpoint implements match.Checkpointer. The header and its units
// are read in one transaction. A batch without a stored checkpoint yields
// nil.
func (s *Store) LoadCheckpoint(ctx context.Context, batchID string) (*match.Checkpoint, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	cp := &match.Checkpoint{BatchID: batchID, Units: make(map[int]match.UnitResult)}
	err = tx.QueryRowContext(ctx,
		`SELECT fingerprint FROM checkpoints WHERE batch_id = ?`, batchID,
	).Scan(&cp.Fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT unit_index, result FROM checkpoint_units WHERE batch_id = ? ORDER BY unit_index`, batchID)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint units: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			idx  int
			data string
			u    match.UnitResult
		)
		if err := rows.Scan(&idx, &data); err != nil {
			return nil, fmt.Errorf("scanning checkpoint unit: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			return nil, fmt.Errorf("decoding checkpoint unit %d: %w", idx, err)
		}
		cp.Units[idx] = u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing checkpoint read: %w", err)
	}
	cp.LastIndex = match.LastContiguous(cp.Units)
	return cp, nil
}

// SaveUnit implements match.Checkpointer. The unit is written in one
// transaction. A new fingerprint discards units saved under the old one.
func (s *Store) SaveUnit(ctx context.Context, batchID, fingerprint string, unit match.UnitResult) error {
	data, err := json.Marshal(unit)
	if err != nil {
		return fmt.Errorf("encoding checkpoint unit: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var stored string
	err = tx.QueryRowContext(ctx, `SELECT fingerprint FROM checkpoints WHERE batch_id = ?`, batchID).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("reading checkpoint: %w", err)
	case stored != fingerprint:
		if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoint_units WHERE batch_id = ?`, batchID); err != nil {
			return fmt.Errorf("discarding stale checkpoint units: %w", err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (batch_id, fingerprint, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(batch_id) DO UPDATE SET fingerprint=excluded.fingerprint, updated_at=excluded.updated_at`,
		batchID, fingerprint, now,
	); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO checkpoint_units (batch_id, unit_index, result) VALUES (?, ?, ?)`,
		batchID, unit.Index, string(data),
	); err != nil {
		return fmt.Errorf("writing checkpoint unit %d: %w", unit.Index, err)
	}
	return tx.Commit()
}

// ClearCheckpoint implements match.Checkpointer.
func (s *Store) ClearCheckpoint(ctx context.Context, batchID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE batch_id = ?`, batchID); err != nil {
		return fmt.Errorf("clearing checkpoint: %w", err)
	}
	return nil
}

var _ match.Checkpointer = (*Store)(nil)
