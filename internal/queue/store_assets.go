package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"scriptreel/internal/services"
)

func (s *Store) insertAsset(ctx context.Context, tx *sql.Tx, a *Asset) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Source == "" {
		a.Source = SourceGenerated
	}
	if a.Status == "" {
		a.Status = AssetPending
		if a.Source == SourceImported && a.URL != "" {
			a.Status = AssetCompleted
		}
	}
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	metadata, err := marshalJSON(a.Metadata)
	if err != nil {
		return fmt.Errorf("encode asset metadata: %w", err)
	}
	tags, err := marshalJSON(a.Tags)
	if err != nil {
		return fmt.Errorf("encode asset tags: %w", err)
	}
	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO assets (`+assetColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.GenerationID, a.Kind, a.Category, nullableInt(a.OwnerSceneNumber), nullableString(a.SceneID),
		nullableString(a.Character), nullableString(a.Description), nullableString(a.Prompt), metadata,
		a.Status, nullableString(a.URL), a.RetryCount, nullableString(a.Error), a.Source,
		nullableString(a.ReusedFrom), boolToInt(a.Required), tags, nullableString(a.Owner),
		nullableTime(a.LeaseExpiresAt), nullableTime(a.NextAttemptAt), formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// AddAssets persists additional assets for an existing generation.
func (s *Store) AddAssets(ctx context.Context, generationID string, assets ...*Asset) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, a := range assets {
			a.GenerationID = generationID
			if err := s.insertAsset(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetAsset fetches one asset. It returns nil, nil when absent.
func (s *Store) GetAsset(ctx context.Context, id string) (*Asset, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+assetColumns+" FROM assets WHERE id = ?"), id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

// ListAssets returns a generation's assets ordered by scene then creation
// time. An empty kind returns every kind.
func (s *Store) ListAssets(ctx context.Context, generationID string, kind AssetKind) ([]*Asset, error) {
	query := "SELECT " + assetColumns + " FROM assets WHERE generation_id = ?"
	args := []any{generationID}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY CASE WHEN owner_scene_number IS NULL THEN 1 ELSE 0 END, owner_scene_number, created_at, id"
	return s.queryAssets(ctx, query, args...)
}

func (s *Store) queryAssets(ctx context.Context, query string, args ...any) ([]*Asset, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()
	var out []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ClaimNextAsset leases the next due pending asset of kind whose generation
// is producing that kind. It returns nil, nil when no work is due.
func (s *Store) ClaimNextAsset(ctx context.Context, kind AssetKind, owner string, now time.Time, lease time.Duration) (*Asset, error) {
	var claimed string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = ""
		var id string
		row := tx.QueryRowContext(ctx, s.rebind(`SELECT a.id FROM assets a
            JOIN generations g ON g.id = a.generation_id
            WHERE a.kind = ? AND a.status = ? AND (a.next_attempt_at IS NULL OR a.next_attempt_at <= ?)
              AND g.status = ?
            ORDER BY a.created_at, a.id LIMIT 1`),
			kind, AssetPending, formatTime(now), GeneratingStatus(kind),
		)
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE assets
            SET status = ?, owner = ?, lease_expires_at = ?, updated_at = ?
            WHERE id = ? AND status = ?`),
			AssetProcessing, owner, formatTime(now.Add(lease)), formatTime(now), id, AssetPending,
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
		return nil, fmt.Errorf("claim asset: %w", err)
	}
	if claimed == "" {
		return nil, nil
	}
	return s.GetAsset(ctx, claimed)
}

// RenewAssetLease extends the lease held by owner.
func (s *Store) RenewAssetLease(ctx context.Context, id, owner string, until time.Time) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE assets SET lease_expires_at = ? WHERE id = ? AND owner = ? AND status = ?",
		formatTime(until), id, owner, AssetProcessing,
	)
	if err != nil {
		return fmt.Errorf("renew asset lease: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrStatusConflict, "queue", "renew lease", "asset "+id+" is no longer leased by "+owner, nil)
	}
	return nil
}

// Completion is the successful outcome of an asset.
type Completion struct {
	URL        string
	Source     AssetSource
	ReusedFrom string
	Tags       []string
	Metadata   map[string]any
}

// CompleteAsset marks a leased asset completed. It returns false when owner
// no longer holds the lease.
func (s *Store) CompleteAsset(ctx context.Context, id, owner string, c Completion) (bool, error) {
	if c.Source == "" {
		c.Source = SourceGenerated
	}
	query := `UPDATE assets
        SET status = ?, url = ?, source = ?, reused_from = ?, error = NULL, owner = NULL,
            lease_expires_at = NULL, next_attempt_at = NULL, updated_at = ?`
	args := []any{AssetCompleted, c.URL, c.Source, nullableString(c.ReusedFrom), s.timestamp()}
	if c.Tags != nil {
		tags, err := marshalJSON(c.Tags)
		if err != nil {
			return false, err
		}
		query += ", tags_json = ?"
		args = append(args, tags)
	}
	if c.Metadata != nil {
		metadata, err := marshalJSON(c.Metadata)
		if err != nil {
			return false, err
		}
		query += ", metadata_json = ?"
		args = append(args, metadata)
	}
	query += " WHERE id = ? AND owner = ? AND status = ?"
	args = append(args, id, owner, AssetProcessing)
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("complete asset: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// FailAsset marks a leased asset failed with msg.
func (s *Store) FailAsset(ctx context.Context, id, owner, msg string) (bool, error) {
	res, err := s.execWithRetry(ctx, `UPDATE assets
        SET status = ?, error = ?, owner = NULL, lease_expires_at = NULL, next_attempt_at = NULL, updated_at = ?
        WHERE id = ? AND owner = ? AND status = ?`,
		AssetFailed, msg, s.timestamp(), id, owner, AssetProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("fail asset: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ReleaseAsset returns a leased asset to pending without spending a retry.
func (s *Store) ReleaseAsset(ctx context.Context, id, owner string) (bool, error) {
	res, err := s.execWithRetry(ctx, `UPDATE assets
        SET status = ?, owner = NULL, lease_expires_at = NULL, updated_at = ?
        WHERE id = ? AND owner = ? AND status = ?`,
		AssetPending, s.timestamp(), id, owner, AssetProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("release asset: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RetryOutcome reports what RecordTransientFailure persisted.
type RetryOutcome struct {
	Applied    bool
	Status     AssetStatus
	RetryCount int
	NextAt     *time.Time
}

// RecordTransientFailure increments the persisted retry count of a leased
// asset. While the count stays within maxRetries the asset returns to pending
// and becomes due after backoff(count); otherwise it fails.
func (s *Store) RecordTransientFailure(ctx context.Context, id, owner, msg string, maxRetries int, backoff func(retryCount int) time.Duration) (RetryOutcome, error) {
	var out RetryOutcome
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		out = RetryOutcome{}
		var count int
		row := tx.QueryRowContext(ctx, s.rebind("SELECT retry_count FROM assets WHERE id = ? AND owner = ? AND status = ?"), id, owner, AssetProcessing)
		if err := row.Scan(&count); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		count++
		now := s.now()
		out = RetryOutcome{Applied: true, RetryCount: count, Status: AssetFailed}
		var next any
		if count <= maxRetries {
			at := now.Add(backoff(count))
			out.Status, out.NextAt, next = AssetPending, &at, formatTime(at)
		}
		_, err := tx.ExecContext(ctx, s.rebind(`UPDATE assets
            SET status = ?, retry_count = ?, error = ?, next_attempt_at = ?, owner = NULL,
                lease_expires_at = NULL, updated_at = ?
            WHERE id = ?`),
			out.Status, count, msg, next, formatTime(now), id,
		)
		return err
	})
	if err != nil {
		return RetryOutcome{}, fmt.Errorf("record transient failure: %w", err)
	}
	return out, nil
}

// FindReusable looks for a completed asset that can stand in for target.
// The description match spans every generation; the secondary keys are
// scoped to target's generation.
func (s *Store) FindReusable(ctx context.Context, target *Asset) (*Asset, error) {
	hit, err := s.findByDescription(ctx, target)
	if err != nil || hit != nil {
		return hit, err
	}

	base := "SELECT " + assetColumns + " FROM assets a WHERE a.generation_id = ? AND a.kind = ? AND a.status = ? AND a.id <> ? AND a.url IS NOT NULL"
	args := []any{target.GenerationID, target.Kind, AssetCompleted, target.ID}
	switch target.Kind {
	case KindImage:
		if target.Character == "" {
			return nil, nil
		}
		base += " AND a.category = ? AND LOWER(a.character_name) = ?"
		args = append(args, target.Category, strings.ToLower(target.Character))
	case KindAudio:
		if target.Character == "" {
			return nil, nil
		}
		base += ` AND a.category = ? AND LOWER(a.character_name) = ? AND a.source = ?
            AND NOT EXISTS (SELECT 1 FROM assets r WHERE r.reused_from = a.id)`
		args = append(args, target.Category, strings.ToLower(target.Character), SourceImported)
	case KindVideo:
		if target.OwnerSceneNumber == nil {
			return nil, nil
		}
		base += " AND a.owner_scene_number = ?"
		args = append(args, *target.OwnerSceneNumber)
	default:
		return nil, nil
	}
	hits, err := s.queryAssets(ctx, base+" ORDER BY a.created_at, a.id LIMIT 1", args...)
	if err != nil || len(hits) == 0 {
		return nil, err
	}
	return hits[0], nil
}

// findByDescription matches scene visuals when the stored description
// contains the target's. Other categories need the same character and the
// same text, so a line is never served another speaker's recording. Videos
// only match generations rendered at the same quality tier.
func (s *Store) findByDescription(ctx context.Context, target *Asset) (*Asset, error) {
	desc := strings.ToLower(strings.TrimSpace(target.Description))
	if desc == "" {
		return nil, nil
	}
	query := "SELECT " + assetColumns + ` FROM assets
            WHERE kind = ? AND category = ? AND status = ? AND id <> ? AND url IS NOT NULL`
	args := []any{target.Kind, target.Category, AssetCompleted, target.ID}
	if target.Category == CategoryScene {
		query += ` AND LOWER(description) LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(desc)+"%")
	} else {
		query += " AND LOWER(TRIM(description)) = ? AND LOWER(COALESCE(character_name, '')) = ?"
		args = append(args, desc, strings.ToLower(strings.TrimSpace(target.Character)))
	}
	if target.Kind == KindVideo {
		query += ` AND generation_id IN (SELECT id FROM generations
              WHERE quality_tier = (SELECT quality_tier FROM generations WHERE id = ?))`
		args = append(args, target.GenerationID)
	}
	hits, err := s.queryAssets(ctx, query+" ORDER BY created_at, id LIMIT 1", args...)
	if err != nil || len(hits) == 0 {
		return nil, err
	}
	return hits[0], nil
}

// SweepStaleAssets fails processing assets whose lease expired more than
// threshold before now, and pending assets older than threshold whose
// generation is terminal. Only active rows are touched, so repeated sweeps
// are no-ops.
func (s *Store) SweepStaleAssets(ctx context.Context, now time.Time, threshold time.Duration) (int64, error) {
	cutoff := formatTime(now.Add(-threshold))
	stamp := formatTime(now)
	var total int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		total = 0
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE assets
            SET status = ?, error = ?, owner = NULL, lease_expires_at = NULL, updated_at = ?
            WHERE status = ? AND COALESCE(lease_expires_at, updated_at) < ?`),
			AssetFailed, StaleAssetError, stamp, AssetProcessing, cutoff,
		)
		if err != nil {
			return fmt.Errorf("sweep processing assets: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n

		args := append([]any{AssetFailed, StaleAssetError, stamp, AssetPending, cutoff}, terminalStatusArgs()...)
		res, err = tx.ExecContext(ctx, s.rebind(`UPDATE assets
            SET status = ?, error = ?, updated_at = ?
            WHERE status = ? AND created_at < ?
              AND generation_id IN (SELECT id FROM generations WHERE status IN (?, ?, ?, ?))`), args...)
		if err != nil {
			return fmt.Errorf("sweep orphaned assets: %w", err)
		}
		n, _ = res.RowsAffected()
		total += n
		return nil
	})
	return total, err
}

// KindBarrier aggregates a generation's assets of kind in one query.
func (s *Store) KindBarrier(ctx context.Context, generationID string, kind AssetKind) (BarrierSummary, error) {
	var b BarrierSummary
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT
            COALESCE(SUM(CASE WHEN required = 1 THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN required = 1 AND status = ? THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN required = 1 AND status = ? THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN required = 0 THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN required = 0 AND status IN (?, ?) THEN 1 ELSE 0 END), 0)
        FROM assets WHERE generation_id = ? AND kind = ?`),
		AssetCompleted, AssetFailed, AssetCompleted, AssetFailed, generationID, kind,
	)
	if err := row.Scan(&b.RequiredTotal, &b.RequiredCompleted, &b.RequiredFailed, &b.OptionalTotal, &b.OptionalTerminal); err != nil {
		return BarrierSummary{}, fmt.Errorf("barrier %s: %w", kind, err)
	}
	return b, nil
}
