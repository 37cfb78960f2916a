package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"scriptreel/internal/services"
)

// ListScenes returns a generation's scenes in number order.
func (s *Store) ListScenes(ctx context.Context, generationID string) ([]SceneRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT generation_id, scene_number, heading, description, data_json
        FROM scenes WHERE generation_id = ? ORDER BY scene_number`), generationID)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	defer rows.Close()
	var out []SceneRecord
	for rows.Next() {
		var (
			rec     SceneRecord
			heading sql.NullString
			desc    sql.NullString
			data    sql.NullString
		)
		if err := rows.Scan(&rec.GenerationID, &rec.Number, &heading, &desc, &data); err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		rec.Heading, rec.Description = heading.String, desc.String
		if data.Valid {
			rec.Data = []byte(data.String)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CreateMergeOperation records a pending merge for a generation.
func (s *Store) CreateMergeOperation(ctx context.Context, generationID string) (*MergeOperation, error) {
	now := s.now()
	op := &MergeOperation{
		ID:           uuid.NewString(),
		GenerationID: generationID,
		Status:       MergePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.execWithRetry(ctx, `INSERT INTO merge_operations (`+mergeColumns+`)
        VALUES (?, ?, ?, 0, NULL, NULL, ?, ?)`,
		op.ID, op.GenerationID, op.Status, formatTime(now), formatTime(now),
	); err != nil {
		return nil, fmt.Errorf("create merge operation: %w", err)
	}
	return op, nil
}

// GetMergeOperation fetches a merge operation. It returns nil, nil when absent.
func (s *Store) GetMergeOperation(ctx context.Context, id string) (*MergeOperation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+mergeColumns+" FROM merge_operations WHERE id = ?"), id)
	op, err := scanMerge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get merge operation: %w", err)
	}
	return op, nil
}

// LatestMergeOperation returns the newest merge operation of a generation.
func (s *Store) LatestMergeOperation(ctx context.Context, generationID string) (*MergeOperation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+mergeColumns+
		" FROM merge_operations WHERE generation_id = ? ORDER BY created_at DESC, id DESC LIMIT 1"), generationID)
	op, err := scanMerge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest merge operation: %w", err)
	}
	return op, nil
}

// UpdateMergeProgress moves an active merge operation to PROCESSING and
// raises its progress. Progress never decreases and is clamped to [0,1].
func (s *Store) UpdateMergeProgress(ctx context.Context, id string, progress float64) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	res, err := s.execWithRetry(ctx, `UPDATE merge_operations
        SET status = ?, progress = `+s.dialect.greatest+`(progress, ?), updated_at = ?
        WHERE id = ? AND status IN (?, ?)`,
		MergeProcessing, progress, s.timestamp(), id, MergePending, MergeProcessing,
	)
	if err != nil {
		return fmt.Errorf("update merge progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrTerminal, "queue", "merge progress", "merge operation "+id+" is not active", nil)
	}
	return nil
}

// FinishMergeOperation moves an active merge operation to a terminal status.
// Completion pins progress at 1.
func (s *Store) FinishMergeOperation(ctx context.Context, id string, status MergeStatus, outputURL, errMsg string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("finish merge operation: %s is not terminal", status)
	}
	query := "UPDATE merge_operations SET status = ?, output_url = ?, error = ?, updated_at = ?"
	if status == MergeCompleted {
		query += ", progress = 1"
	}
	query += " WHERE id = ? AND status IN (?, ?)"
	res, err := s.execWithRetry(ctx, query,
		status, nullableString(outputURL), nullableString(errMsg), s.timestamp(), id, MergePending, MergeProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("finish merge operation: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
