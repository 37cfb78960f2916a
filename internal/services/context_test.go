package services_test

import (
	"context"
	"testing"

	"scriptreel/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithGenerationID(ctx, "gen-42")
	ctx = services.WithAssetID(ctx, "asset-7")
	ctx = services.WithStage(ctx, "generating_audio")
	ctx = services.WithWorker(ctx, "worker-1")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.GenerationIDFromContext(ctx); !ok || id != "gen-42" {
		t.Fatalf("unexpected generation id: %v %v", id, ok)
	}
	if id, ok := services.AssetIDFromContext(ctx); !ok || id != "asset-7" {
		t.Fatalf("unexpected asset id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "generating_audio" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if worker, ok := services.WorkerFromContext(ctx); !ok || worker != "worker-1" {
		t.Fatalf("unexpected worker: %v %v", worker, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithGenerationID(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.GenerationIDFromContext(ctx); ok {
		t.Fatal("expected no generation value")
	}
}
