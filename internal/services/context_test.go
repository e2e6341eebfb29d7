package services_test

import (
	"context"
	"testing"

	"courtclip/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithAsset(ctx, "Arena_Court1_SideA_20250101_120000.mp4")
	ctx = services.WithStage(ctx, "brand")
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithRequestID(ctx, "req-123")

	if name, ok := services.AssetFromContext(ctx); !ok || name != "Arena_Court1_SideA_20250101_120000.mp4" {
		t.Fatalf("unexpected asset: %v %v", name, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "brand" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
