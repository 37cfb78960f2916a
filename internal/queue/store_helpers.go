package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"scriptreel/internal/roster"
)

// timeLayout is fixed width so timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

const generationColumns = "id, script_ref, script_text, characters_json, quality_tier, status, resume_status, pipeline_retries, stage_data_json, error_message, progress_stage, progress_percent, progress_message, stage_started_at, owner, last_heartbeat, created_at, updated_at"

const assetColumns = "id, generation_id, kind, category, owner_scene_number, scene_id, character_name, description, prompt, metadata_json, status, url, retry_count, error, source, reused_from, required, tags_json, owner, lease_expires_at, next_attempt_at, created_at, updated_at"

const mergeColumns = "id, generation_id, status, progress, output_url, error, created_at, updated_at"

type scanner interface{ Scan(dest ...any) error }

func scanGeneration(row scanner) (*Generation, error) {
	var (
		g             Generation
		scriptRef     sql.NullString
		characters    sql.NullString
		tier          string
		status        string
		resume        sql.NullString
		stageData     sql.NullString
		errorMessage  sql.NullString
		progressStage sql.NullString
		progressMsg   sql.NullString
		stageStarted  sql.NullString
		owner         sql.NullString
		lastHeartbeat sql.NullString
		createdRaw    string
		updatedRaw    string
	)
	if err := row.Scan(
		&g.ID,
		&scriptRef,
		&g.ScriptText,
		&characters,
		&tier,
		&status,
		&resume,
		&g.PipelineRetries,
		&stageData,
		&errorMessage,
		&progressStage,
		&g.ProgressPercent,
		&progressMsg,
		&stageStarted,
		&owner,
		&lastHeartbeat,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	g.ScriptRef = scriptRef.String
	g.QualityTier = QualityTier(tier)
	g.Status = Status(status)
	g.ResumeStatus = Status(resume.String)
	g.ErrorMessage = errorMessage.String
	g.ProgressStage = progressStage.String
	g.ProgressMessage = progressMsg.String
	g.Owner = owner.String
	g.StageStartedAt = parseNullTime(stageStarted)
	g.LastHeartbeat = parseNullTime(lastHeartbeat)
	g.CreatedAt, _ = parseTimeString(createdRaw)
	g.UpdatedAt, _ = parseTimeString(updatedRaw)

	g.Characters = []roster.Character{}
	if characters.String != "" {
		if err := json.Unmarshal([]byte(characters.String), &g.Characters); err != nil {
			return nil, err
		}
	}
	g.StageData = map[string]json.RawMessage{}
	if stageData.String != "" {
		if err := json.Unmarshal([]byte(stageData.String), &g.StageData); err != nil {
			return nil, err
		}
	}
	return &g, nil
}

func scanAsset(row scanner) (*Asset, error) {
	var (
		a          Asset
		kind       string
		sceneNum   sql.NullInt64
		sceneID    sql.NullString
		character  sql.NullString
		desc       sql.NullString
		prompt     sql.NullString
		metadata   sql.NullString
		status     string
		url        sql.NullString
		errMsg     sql.NullString
		source     string
		reusedFrom sql.NullString
		required   int
		tags       sql.NullString
		owner      sql.NullString
		lease      sql.NullString
		next       sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := row.Scan(
		&a.ID,
		&a.GenerationID,
		&kind,
		&a.Category,
		&sceneNum,
		&sceneID,
		&character,
		&desc,
		&prompt,
		&metadata,
		&status,
		&url,
		&a.RetryCount,
		&errMsg,
		&source,
		&reusedFrom,
		&required,
		&tags,
		&owner,
		&lease,
		&next,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	a.Kind = AssetKind(kind)
	if sceneNum.Valid {
		n := int(sceneNum.Int64)
		a.OwnerSceneNumber = &n
	}
	a.SceneID = sceneID.String
	a.Character = character.String
	a.Description = desc.String
	a.Prompt = prompt.String
	a.Status = AssetStatus(status)
	a.URL = url.String
	a.Error = errMsg.String
	a.Source = AssetSource(source)
	a.ReusedFrom = reusedFrom.String
	a.Required = required != 0
	a.Owner = owner.String
	a.LeaseExpiresAt = parseNullTime(lease)
	a.NextAttemptAt = parseNullTime(next)
	a.CreatedAt, _ = parseTimeString(createdRaw)
	a.UpdatedAt, _ = parseTimeString(updatedRaw)

	a.Metadata = map[string]any{}
	if metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &a.Metadata); err != nil {
			return nil, err
		}
	}
	a.Tags = []string{}
	if tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &a.Tags); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func scanMerge(row scanner) (*MergeOperation, error) {
	var (
		op         MergeOperation
		status     string
		output     sql.NullString
		errMsg     sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := row.Scan(&op.ID, &op.GenerationID, &status, &op.Progress, &output, &errMsg, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	op.Status = MergeStatus(status)
	op.OutputURL = output.String
	op.Error = errMsg.String
	op.CreatedAt, _ = parseTimeString(createdRaw)
	op.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &op, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func marshalJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseNullTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

// escapeLike escapes LIKE wildcards so the value matches literally with
// ESCAPE '\'.
func escapeLike(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(value)
}

func terminalStatusArgs() []any {
	return []any{StatusCompleted, StatusFailed, StatusRetrievalFailed, StatusCancelled}
}
