package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"scriptreel/internal/config"
	"scriptreel/internal/logging"
	"scriptreel/internal/progress"
	"scriptreel/internal/queue"
	"scriptreel/internal/script"
	"scriptreel/internal/services"
	"scriptreel/internal/stage"
)

// StageDataParseWarnings is the stage data key holding parser warnings.
const StageDataParseWarnings = "parse_warnings"

// Workflow is the part of the workflow manager the service drives.
type Workflow interface {
	Cancel(ctx context.Context, id string) error
	Signal(id string)
	Hub() *progress.Hub
}

// PipelineService implements the generation entry points.
type PipelineService struct {
	store     *queue.Store
	workflow  Workflow
	parse     script.Options
	segmenter script.Segmenter
	plan      stage.PlanOptions
	logger    *slog.Logger
}

// NewPipelineService wires the service to its store and workflow.
func NewPipelineService(cfg *config.Config, store *queue.Store, wf Workflow, logger *slog.Logger) *PipelineService {
	svc := &PipelineService{
		store:    store,
		workflow: wf,
		logger:   logging.NewComponentLogger(logger, "pipeline-service"),
	}
	if cfg != nil {
		svc.parse = script.Options{UnknownSpeaker: script.SpeakerPolicy(cfg.Script.UnknownSpeakerPolicy)}
		svc.segmenter = script.Segmenter{FallbackThreshold: cfg.Script.FallbackDialogueThreshold}
		svc.plan = stage.PlanOptions{Sound: cfg.Vendor.SoundEnabled}
	}
	return svc
}

// Start parses and segments the script, persists the generation pending
// with its scenes, planned assets and imported assets, and returns its id.
func (s *PipelineService) Start(ctx context.Context, req StartRequest) (string, error) {
	if strings.TrimSpace(req.Script) == "" {
		return "", services.Wrap(services.ErrValidation, "api", "start", "script is empty", nil)
	}
	tier, ok := queue.ParseQualityTier(strings.TrimSpace(req.QualityTier))
	if !ok {
		return "", services.Wrap(services.ErrValidation, "api", "start", fmt.Sprintf("unknown quality tier %q", req.QualityTier), nil)
	}
	cast := ToRoster(req.Characters)
	if err := cast.Validate(); err != nil {
		return "", err
	}

	parsed := script.ParseWithOptions(req.Script, cast.Names(), s.parse)
	scenes := s.segmenter.Segment(parsed)
	if len(scenes) == 0 {
		return "", services.Wrap(services.ErrValidation, "api", "start", "script has no content", nil)
	}
	imported, err := importedAssets(req.Assets)
	if err != nil {
		return "", err
	}
	records, err := sceneRecords(scenes)
	if err != nil {
		return "", err
	}
	assets := append(stage.PlanAssets(scenes, cast, s.plan), imported...)

	g := &queue.Generation{
		ScriptRef:   strings.TrimSpace(req.ScriptRef),
		ScriptText:  req.Script,
		Characters:  cast.Characters,
		QualityTier: tier,
	}
	if len(parsed.Warnings) > 0 {
		raw, err := json.Marshal(parsed.Warnings)
		if err != nil {
			return "", fmt.Errorf("encode parse warnings: %w", err)
		}
		g.StageData = map[string]json.RawMessage{StageDataParseWarnings: raw}
	}
	if err := s.store.CreateGeneration(ctx, g, records, assets); err != nil {
		return "", err
	}

	logger := logging.WithContext(services.WithGenerationID(ctx, g.ID), s.logger)
	for _, w := range parsed.Warnings {
		logging.WarnWithContext(logger, "script line parsed by fallback", "parse_ambiguity",
			logging.Int("line", w.Line),
			logging.String("text", w.Text),
			logging.String("reason", w.Reason),
			logging.String(logging.FieldErrorHint, "add the speaker to the cast or use a standard cue"),
			logging.String(logging.FieldImpact, "line kept as action text"),
		)
	}
	logger.Info("generation created",
		logging.Int("scenes", len(scenes)),
		logging.Int("assets", len(assets)),
		logging.Int("imported", len(imported)),
		logging.String("quality_tier", string(tier)),
		logging.String(logging.FieldEventType, "generation_created"),
	)
	if s.workflow != nil {
		s.workflow.Signal(g.ID)
	}
	return g.ID, nil
}

// GetStatus returns the generation with id.
func (s *PipelineService) GetStatus(ctx context.Context, id string) (*queue.Generation, error) {
	g, err := s.store.GetGeneration(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", "status", "generation "+id+" not found", nil)
	}
	return g, nil
}

// Cancel stops a non-terminal generation. Terminal generations return
// services.ErrTerminal.
func (s *PipelineService) Cancel(ctx context.Context, id string) error {
	if s.workflow == nil {
		return services.Wrap(services.ErrConfiguration, "api", "cancel", "workflow not running", nil)
	}
	return s.workflow.Cancel(ctx, id)
}

// List returns generations, optionally filtered by status.
func (s *PipelineService) List(ctx context.Context, statuses ...queue.Status) ([]*queue.Generation, error) {
	return s.store.ListGenerations(ctx, statuses...)
}

// Stats returns generation counts keyed by status.
func (s *PipelineService) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// Assets returns the assets of a generation. An empty kind returns all.
func (s *PipelineService) Assets(ctx context.Context, id string, kind queue.AssetKind) ([]*queue.Asset, error) {
	if _, err := s.GetStatus(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListAssets(ctx, id, kind)
}

// SetQualityTier changes the tier of a pending generation.
func (s *PipelineService) SetQualityTier(ctx context.Context, id, tier string) error {
	parsed, ok := queue.ParseQualityTier(strings.TrimSpace(tier))
	if !ok || strings.TrimSpace(tier) == "" {
		return services.Wrap(services.ErrValidation, "api", "set quality tier", fmt.Sprintf("unknown quality tier %q", tier), nil)
	}
	if err := s.store.SetQualityTier(ctx, id, parsed); err != nil {
		return err
	}
	s.logger.Info("quality tier changed",
		logging.String(logging.FieldGenerationID, id),
		logging.String("quality_tier", string(parsed)),
		logging.String(logging.FieldEventType, "quality_tier_changed"),
	)
	return nil
}

// Subscribe streams progress events for a generation. A generation that
// already finished yields its final event and a closed channel.
func (s *PipelineService) Subscribe(ctx context.Context, id string) (<-chan progress.Event, func(), error) {
	g, err := s.GetStatus(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if g.Status.IsTerminal() || s.workflow == nil {
		ch := make(chan progress.Event, 1)
		ch <- snapshotEvent(g)
		close(ch)
		return ch, func() {}, nil
	}
	events, cancel := s.workflow.Hub().Subscribe(id)
	return events, cancel, nil
}

func snapshotEvent(g *queue.Generation) progress.Event {
	message := g.ProgressMessage
	if g.ErrorMessage != "" {
		message = g.ErrorMessage
	}
	if out := FromGeneration(g).OutputURL; out != "" && g.Status == queue.StatusCompleted {
		message = out
	}
	return progress.Event{
		GenerationID: g.ID,
		Status:       string(g.Status),
		Stage:        g.ProgressStage,
		Percent:      g.ProgressPercent,
		Message:      message,
		Final:        g.Status.IsTerminal(),
		Timestamp:    g.UpdatedAt,
	}
}

func sceneRecords(scenes []script.Scene) ([]queue.SceneRecord, error) {
	out := make([]queue.SceneRecord, 0, len(scenes))
	for _, sc := range scenes {
		data, err := json.Marshal(sc)
		if err != nil {
			return nil, fmt.Errorf("encode scene %d: %w", sc.Number, err)
		}
		out = append(out, queue.SceneRecord{Number: sc.Number, Heading: sc.Heading, Description: sc.Description, Data: data})
	}
	return out, nil
}

func importedAssets(in []ImportedAsset) ([]*queue.Asset, error) {
	out := make([]*queue.Asset, 0, len(in))
	for i, a := range in {
		kind := queue.AssetKind(strings.TrimSpace(a.Kind))
		switch kind {
		case queue.KindAudio, queue.KindImage, queue.KindVideo:
		default:
			return nil, services.Wrap(services.ErrValidation, "api", "start", fmt.Sprintf("asset %d: unknown kind %q", i+1, a.Kind), nil)
		}
		if strings.TrimSpace(a.URL) == "" {
			return nil, services.Wrap(services.ErrValidation, "api", "start", fmt.Sprintf("asset %d: url is required", i+1), nil)
		}
		asset := &queue.Asset{
			Kind:        kind,
			Category:    strings.TrimSpace(a.Category),
			SceneID:     strings.TrimSpace(a.SceneID),
			Character:   strings.TrimSpace(a.Character),
			Description: strings.TrimSpace(a.Description),
			URL:         strings.TrimSpace(a.URL),
			Source:      queue.SourceImported,
			Tags:        a.Tags,
			Metadata:    a.Metadata,
		}
		switch {
		case a.SceneNumber > 0:
			n := a.SceneNumber
			asset.OwnerSceneNumber = &n
		case asset.SceneID != "":
			if n, ok := script.ParseSceneID(asset.SceneID); ok {
				asset.OwnerSceneNumber = &n
			}
		}
		out = append(out, asset)
	}
	return out, nil
}
