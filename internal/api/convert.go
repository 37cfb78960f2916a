package api

import (
	"encoding/json"
	"slices"
	"strings"

	"scriptreel/internal/deps"
	"scriptreel/internal/logging"
	"scriptreel/internal/queue"
	"scriptreel/internal/roster"
	"scriptreel/internal/stage"
	"scriptreel/internal/workflow"
)

// FromGeneration converts a generation record to its API representation.
func FromGeneration(g *queue.Generation) Generation {
	if g == nil {
		return Generation{}
	}
	dto := Generation{
		ID:          g.ID,
		ScriptRef:   g.ScriptRef,
		Status:      string(g.Status),
		QualityTier: string(g.QualityTier),
		Progress: GenerationProgress{
			Stage:   g.ProgressStage,
			Percent: g.ProgressPercent,
			Message: g.ProgressMessage,
		},
		PipelineRetries: g.PipelineRetries,
		ResumeStatus:    string(g.ResumeStatus),
		ErrorMessage:    g.ErrorMessage,
		StageData:       g.StageData,
	}
	if raw, ok := g.StageData[workflow.StageDataOutput]; ok {
		var out workflow.MergeResult
		if err := json.Unmarshal(raw, &out); err == nil {
			dto.OutputURL = out.URL
		}
	}
	if !g.CreatedAt.IsZero() {
		dto.CreatedAt = g.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !g.UpdatedAt.IsZero() {
		dto.UpdatedAt = g.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromGenerations converts a slice of generation records.
func FromGenerations(gens []*queue.Generation) []Generation {
	out := make([]Generation, 0, len(gens))
	for _, g := range gens {
		out = append(out, FromGeneration(g))
	}
	return out
}

// FromAsset converts an asset record.
func FromAsset(a *queue.Asset) Asset {
	if a == nil {
		return Asset{}
	}
	dto := Asset{
		ID:          a.ID,
		Kind:        string(a.Kind),
		Category:    a.Category,
		SceneNumber: a.OwnerSceneNumber,
		SceneID:     a.SceneID,
		Character:   a.Character,
		Description: a.Description,
		Status:      string(a.Status),
		Source:      string(a.Source),
		Required:    a.Required,
		URL:         a.URL,
		ReusedFrom:  a.ReusedFrom,
		RetryCount:  a.RetryCount,
		Error:       a.Error,
		Tags:        a.Tags,
		Metadata:    a.Metadata,
	}
	if !a.UpdatedAt.IsZero() {
		dto.UpdatedAt = a.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromAssets converts a slice of asset records.
func FromAssets(assets []*queue.Asset) []Asset {
	out := make([]Asset, 0, len(assets))
	for _, a := range assets {
		out = append(out, FromAsset(a))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	wf := WorkflowStatus{
		Running:     summary.Running,
		Workers:     summary.Workers,
		MergeLane:   summary.MergeLane,
		QueueStats:  MergeQueueStats(summary.QueueStats),
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
	if summary.LastGeneration != nil {
		last := FromGeneration(summary.LastGeneration)
		wf.LastGeneration = &last
	}
	return wf
}

// MergeQueueStats produces a string-keyed representation of queue stats.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// StageHealthSlice converts generator health into a slice ordered by name.
func StageHealthSlice(health []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	slices.SortFunc(out, func(a, b StageHealth) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// ToRoster converts request characters into a roster.
func ToRoster(chars []Character) roster.Roster {
	r := roster.Roster{Characters: make([]roster.Character, 0, len(chars))}
	for _, c := range chars {
		r.Characters = append(r.Characters, roster.Character{
			Name:        strings.TrimSpace(c.Name),
			Aliases:     c.Aliases,
			VoiceID:     c.VoiceID,
			Emotion:     c.Emotion,
			ImageStyle:  c.ImageStyle,
			Description: c.Description,
		})
	}
	return r
}

// FromRoster converts a roster into request characters.
func FromRoster(r roster.Roster) []Character {
	out := make([]Character, 0, len(r.Characters))
	for _, c := range r.Characters {
		out = append(out, Character{
			Name:        c.Name,
			Aliases:     c.Aliases,
			VoiceID:     c.VoiceID,
			Emotion:     c.Emotion,
			ImageStyle:  c.ImageStyle,
			Description: c.Description,
		})
	}
	return out
}

// FromLogEvents converts streamed log events for transport.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:     evt.Sequence,
			Timestamp:    evt.Timestamp.UTC().Format(dateTimeFormat),
			Level:        evt.Level,
			Message:      evt.Message,
			Component:    evt.Component,
			GenerationID: evt.GenerationID,
			AssetID:      evt.AssetID,
			Stage:        evt.Stage,
			Worker:       evt.Worker,
			Fields:       evt.Fields,
		})
	}
	return out
}

// FromDependencies converts dependency checks to their API representation.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}
