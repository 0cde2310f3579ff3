package services_test

import (
	"context"
	"testing"

	"audiobook/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSessionID(ctx, "sess_001")
	ctx = services.WithStation(ctx, "4.5")
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "sess_001" {
		t.Fatalf("unexpected session id: %v %v", id, ok)
	}
	if station, ok := services.StationFromContext(ctx); !ok || station != "4.5" {
		t.Fatalf("unexpected station: %v %v", station, ok)
	}
	if run, ok := services.RunIDFromContext(ctx); !ok || run != "run-1" {
		t.Fatalf("unexpected run id: %v %v", run, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStationBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStation(ctx, "")
	if _, ok := services.StationFromContext(ctx); ok {
		t.Fatal("expected no station value")
	}
	ctx = services.WithSessionID(ctx, "")
	if _, ok := services.SessionIDFromContext(ctx); ok {
		t.Fatal("expected no session value")
	}
}
