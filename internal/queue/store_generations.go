package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"scriptreel/internal/services"
)

// CreateGeneration persists a pending generation together with its scenes
// and planned assets. Missing IDs are assigned.
func (s *Store) CreateGeneration(ctx context.Context, g *Generation, scenes []SceneRecord, assets []*Asset) error {
	if g == nil {
		return errors.New("queue: generation is required")
	}
	if strings.TrimSpace(g.ScriptText) == "" {
		return services.Wrap(services.ErrValidation, "queue", "create generation", "script text is empty", nil)
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.QualityTier == "" {
		g.QualityTier = TierStandard
	}
	now := s.now()
	g.Status = StatusPending
	g.CreatedAt, g.UpdatedAt = now, now
	characters, err := marshalJSON(g.Characters)
	if err != nil {
		return fmt.Errorf("encode characters: %w", err)
	}
	stageData := ""
	if len(g.StageData) > 0 {
		if stageData, err = marshalJSON(g.StageData); err != nil {
			return fmt.Errorf("encode stage data: %w", err)
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO generations
            (id, script_ref, script_text, characters_json, quality_tier, status, resume_status, pipeline_retries,
             stage_data_json, error_message, progress_stage, progress_percent, progress_message, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, NULL, 0, ?, NULL, ?, 0, NULL, ?, ?)`),
			g.ID, nullableString(g.ScriptRef), g.ScriptText, characters, g.QualityTier, g.Status,
			nullableString(stageData), "Queued", formatTime(now), formatTime(now),
		); err != nil {
			return fmt.Errorf("insert generation: %w", err)
		}
		for _, scene := range scenes {
			if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO scenes
                (generation_id, scene_number, heading, description, data_json) VALUES (?, ?, ?, ?, ?)`),
				g.ID, scene.Number, nullableString(scene.Heading), nullableString(scene.Description), nullableString(string(scene.Data)),
			); err != nil {
				return fmt.Errorf("insert scene %d: %w", scene.Number, err)
			}
		}
		for _, asset := range assets {
			asset.GenerationID = g.ID
			if err := s.insertAsset(ctx, tx, asset); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetGeneration fetches a generation by ID. It returns nil, nil when absent.
func (s *Store) GetGeneration(ctx context.Context, id string) (*Generation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+generationColumns+" FROM generations WHERE id = ?"), id)
	g, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get generation: %w", err)
	}
	return g, nil
}

// ListGenerations returns generations in creation order, optionally filtered
// by status.
func (s *Store) ListGenerations(ctx context.Context, statuses ...Status) ([]*Generation, error) {
	query := "SELECT " + generationColumns + " FROM generations"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += " ORDER BY created_at, id"
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var out []*Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Transition describes an update-if-status-matches on a generation.
type Transition struct {
	From Status
	To   Status
	// ErrorMessage is recorded when non-empty.
	ErrorMessage string
	// ReleaseLease clears the owner and heartbeat.
	ReleaseLease bool
}

// UpdateGenerationIfStatus applies t when the generation is still in t.From.
// A lost race returns false with a nil error. Terminal generations return
// services.ErrTerminal and are left untouched.
func (s *Store) UpdateGenerationIfStatus(ctx context.Context, id string, t Transition) (bool, error) {
	if t.From.IsTerminal() {
		return false, services.Wrap(services.ErrTerminal, "queue", "transition", "generation "+id+" is "+string(t.From), nil)
	}
	now := s.timestamp()
	query := "UPDATE generations SET status = ?, stage_started_at = ?, updated_at = ?"
	args := []any{t.To, now, now}
	if t.ErrorMessage != "" {
		query += ", error_message = ?"
		args = append(args, t.ErrorMessage)
	}
	if t.ReleaseLease || t.To.IsTerminal() {
		query += ", owner = NULL, last_heartbeat = NULL"
	}
	query += " WHERE id = ? AND status = ?"
	args = append(args, id, t.From)

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition generation %s -> %s: %w", t.From, t.To, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	return false, s.conflict(ctx, id, "transition")
}

// conflict explains why a guarded update touched no rows. It returns nil when
// the generation simply moved on to another non-terminal status.
func (s *Store) conflict(ctx context.Context, id, operation string) error {
	g, err := s.GetGeneration(ctx, id)
	if err != nil {
		return err
	}
	if g == nil {
		return services.Wrap(services.ErrNotFound, "queue", operation, "generation "+id+" not found", nil)
	}
	if g.Status.IsTerminal() {
		return services.Wrap(services.ErrTerminal, "queue", operation, "generation "+id+" is "+string(g.Status), nil)
	}
	return nil
}

// RetryStage moves a generation from a failing stage into retrying while
// retries remain under limit. Non-completed assets of kind are reset to
// pending with a fresh retry budget. It returns false when retries are
// exhausted or the status no longer matches.
func (s *Store) RetryStage(ctx context.Context, id string, from Status, kind AssetKind, limit int) (bool, error) {
	applied := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		applied = false
		now := s.timestamp()
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE generations
            SET status = ?, resume_status = ?, pipeline_retries = pipeline_retries + 1,
                owner = NULL, last_heartbeat = NULL, progress_stage = ?, updated_at = ?
            WHERE id = ? AND status = ? AND pipeline_retries < ?`),
			StatusRetrying, from, "Retrying "+string(from), now, id, from, limit,
		)
		if err != nil {
			return fmt.Errorf("enter retrying: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		applied = true
		if kind == "" {
			return nil
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE assets
            SET status = ?, retry_count = 0, error = NULL, owner = NULL, lease_expires_at = NULL,
                next_attempt_at = NULL, updated_at = ?
            WHERE generation_id = ? AND kind = ? AND status <> ?`),
			AssetPending, now, id, kind, AssetCompleted,
		); err != nil {
			return fmt.Errorf("reset stage assets: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		return true, nil
	}
	return false, s.conflict(ctx, id, "retry stage")
}

// ResumeGeneration moves a retrying generation back to its resume status.
// Merge stages resume at video_completed so the merge lane claims them again.
func (s *Store) ResumeGeneration(ctx context.Context, id string) (bool, error) {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx, `UPDATE generations
        SET status = CASE WHEN resume_status IN (?, ?, ?) THEN ? ELSE resume_status END,
            resume_status = NULL, stage_started_at = ?, updated_at = ?
        WHERE id = ? AND status = ? AND resume_status IS NOT NULL`,
		mergeStatuses[0], mergeStatuses[1], mergeStatuses[2], StatusVideoCompleted,
		now, now, id, StatusRetrying,
	)
	if err != nil {
		return false, fmt.Errorf("resume generation: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	return false, s.conflict(ctx, id, "resume")
}

// SetQualityTier changes the tier of a generation that is still pending.
func (s *Store) SetQualityTier(ctx context.Context, id string, tier QualityTier) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE generations SET quality_tier = ?, updated_at = ? WHERE id = ? AND status = ?",
		tier, s.timestamp(), id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("set quality tier: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if err := s.conflict(ctx, id, "set quality tier"); err != nil {
		return err
	}
	return services.Wrap(services.ErrStatusConflict, "queue", "set quality tier", "quality tier is locked once generation leaves pending", nil)
}

// UpdateProgress records the progress columns of a non-terminal generation.
func (s *Store) UpdateProgress(ctx context.Context, id, stage string, percent float64, message string) error {
	query := `UPDATE generations
        SET progress_stage = ?, progress_percent = ?, progress_message = ?, updated_at = ?
        WHERE id = ? AND status NOT IN (?, ?, ?, ?)`
	args := append([]any{nullableString(stage), percent, nullableString(message), s.timestamp(), id}, terminalStatusArgs()...)
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	return s.conflict(ctx, id, "update progress")
}

// SetStageData stores value as JSON under key in the generation's stage data.
func (s *Store) SetStageData(ctx context.Context, id, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode stage data %s: %w", key, err)
	}
	var terminal bool
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		terminal = false
		var (
			status string
			raw    sql.NullString
		)
		row := tx.QueryRowContext(ctx, s.rebind("SELECT status, stage_data_json FROM generations WHERE id = ?"), id)
		if err := row.Scan(&status, &raw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return services.Wrap(services.ErrNotFound, "queue", "set stage data", "generation "+id+" not found", nil)
			}
			return err
		}
		if Status(status).IsTerminal() {
			terminal = true
			return nil
		}
		data := map[string]json.RawMessage{}
		if raw.String != "" {
			if err := json.Unmarshal([]byte(raw.String), &data); err != nil {
				return fmt.Errorf("decode stage data: %w", err)
			}
		}
		data[key] = encoded
		merged, err := marshalJSON(data)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.rebind("UPDATE generations SET stage_data_json = ?, updated_at = ? WHERE id = ?"), merged, s.timestamp(), id)
		return err
	})
	if err != nil {
		return err
	}
	if terminal {
		return services.Wrap(services.ErrTerminal, "queue", "set stage data", "generation "+id+" is terminal", nil)
	}
	return nil
}

// ClaimGeneration leases the oldest generation in from by moving it to to.
// It returns nil, nil when nothing is waiting.
func (s *Store) ClaimGeneration(ctx context.Context, from, to Status, owner string) (*Generation, error) {
	var claimed string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = ""
		var id string
		row := tx.QueryRowContext(ctx, s.rebind("SELECT id FROM generations WHERE status = ? ORDER BY updated_at, id LIMIT 1"), from)
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		now := s.timestamp()
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE generations
            SET status = ?, owner = ?, stage_started_at = ?, last_heartbeat = ?, updated_at = ?
            WHERE id = ? AND status = ?`),
			to, owner, now, now, now, id, from,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			claimed = id
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim generation: %w", err)
	}
	if claimed == "" {
		return nil, nil
	}
	return s.GetGeneration(ctx, claimed)
}

// UpdateGenerationHeartbeat renews the lease held by owner.
func (s *Store) UpdateGenerationHeartbeat(ctx context.Context, id, owner string) error {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		"UPDATE generations SET last_heartbeat = ? WHERE id = ? AND owner = ? AND status IN (?, ?, ?)",
		now, id, owner, mergeStatuses[0], mergeStatuses[1], mergeStatuses[2],
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrStatusConflict, "queue", "heartbeat", "lease on "+id+" is no longer held", nil)
	}
	return nil
}

// ReclaimStaleGenerations returns merge-stage generations whose heartbeat is
// older than cutoff to video_completed so another worker can pick them up.
// Their in-flight merge operations are failed.
func (s *Store) ReclaimStaleGenerations(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		stale := "status IN (?, ?, ?) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?"
		staleArgs := []any{mergeStatuses[0], mergeStatuses[1], mergeStatuses[2], formatTime(cutoff)}

		args := append([]any{MergeFailed, "stale: merge lease expired", now, MergePending, MergeProcessing}, staleArgs...)
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE merge_operations
            SET status = ?, error = ?, updated_at = ?
            WHERE status IN (?, ?) AND generation_id IN (SELECT id FROM generations WHERE `+stale+`)`), args...); err != nil {
			return fmt.Errorf("fail stale merges: %w", err)
		}

		args = append([]any{StatusVideoCompleted, "Reclaimed from stale processing", now}, staleArgs...)
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE generations
            SET status = ?, owner = NULL, last_heartbeat = NULL, stage_started_at = NULL,
                progress_stage = ?, progress_percent = 0, progress_message = NULL, updated_at = ?
            WHERE `+stale), args...)
		if err != nil {
			return fmt.Errorf("reclaim generations: %w", err)
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}

// ResetStuckProcessing is run at daemon start. Work that was in flight when
// the previous process exited is returned to its resting state: merge-stage
// generations go back to video_completed and processing assets to pending.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	var total int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		total = 0
		now := s.timestamp()
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE merge_operations SET status = ?, error = ?, updated_at = ?
            WHERE status IN (?, ?)`), MergeFailed, "interrupted by daemon restart", now, MergePending, MergeProcessing); err != nil {
			return fmt.Errorf("fail interrupted merges: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE generations
            SET status = ?, owner = NULL, last_heartbeat = NULL, stage_started_at = NULL,
                progress_stage = ?, progress_percent = 0, progress_message = NULL, updated_at = ?
            WHERE status IN (?, ?, ?)`),
			StatusVideoCompleted, "Reset from stuck processing", now, mergeStatuses[0], mergeStatuses[1], mergeStatuses[2],
		)
		if err != nil {
			return fmt.Errorf("reset generations: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
		res, err = tx.ExecContext(ctx, s.rebind(`UPDATE assets
            SET status = ?, owner = NULL, lease_expires_at = NULL, updated_at = ?
            WHERE status = ?`), AssetPending, now, AssetProcessing)
		if err != nil {
			return fmt.Errorf("reset assets: %w", err)
		}
		n, _ = res.RowsAffected()
		total += n
		return nil
	})
	return total, err
}

// CancelGeneration moves a non-terminal generation to cancelled, fails its
// active assets and cancels its active merge operation.
func (s *Store) CancelGeneration(ctx context.Context, id string) error {
	applied := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		applied = false
		now := s.timestamp()
		args := append([]any{StatusCancelled, now, id}, terminalStatusArgs()...)
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE generations
            SET status = ?, owner = NULL, last_heartbeat = NULL, updated_at = ?
            WHERE id = ? AND status NOT IN (?, ?, ?, ?)`), args...)
		if err != nil {
			return fmt.Errorf("cancel generation: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		applied = true
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE assets
            SET status = ?, error = ?, owner = NULL, lease_expires_at = NULL, updated_at = ?
            WHERE generation_id = ? AND status IN (?, ?)`),
			AssetFailed, CancelledAssetError, now, id, AssetPending, AssetProcessing,
		); err != nil {
			return fmt.Errorf("fail active assets: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE merge_operations
            SET status = ?, updated_at = ?
            WHERE generation_id = ? AND status IN (?, ?)`),
			MergeCancelled, now, id, MergePending, MergeProcessing,
		); err != nil {
			return fmt.Errorf("cancel merge operation: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	if err := s.conflict(ctx, id, "cancel"); err != nil {
		return err
	}
	return services.Wrap(services.ErrStatusConflict, "queue", "cancel", "generation "+id+" changed during cancel", nil)
}

// FirstAssetError returns the error of the first failed required asset,
// ordered by scene number then creation time. An empty kind spans all kinds.
func (s *Store) FirstAssetError(ctx context.Context, generationID string, kind AssetKind) (string, error) {
	query := "SELECT error FROM assets WHERE generation_id = ? AND status = ? AND required = 1"
	args := []any{generationID, AssetFailed}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY CASE WHEN owner_scene_number IS NULL THEN 1 ELSE 0 END, owner_scene_number, created_at, id LIMIT 1"
	var msg sql.NullString
	if err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&msg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("first asset error: %w", err)
	}
	return msg.String, nil
}
