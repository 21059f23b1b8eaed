package tenancy

import (
	"context"
	"testing"
)

func TestClinicIDRoundTrip(t *testing.T) {
	ctx := WithClinicID(context.Background(), "clinic-123")
	got, ok := ClinicIDFromContext(ctx)
	if !ok || got != "clinic-123" {
		t.Fatalf("ClinicIDFromContext = %q, %v; want clinic-123, true", got, ok)
	}
}

func TestClinicIDMissing(t *testing.T) {
	if _, ok := ClinicIDFromContext(context.Background()); ok {
		t.Fatal("expected ok=false on bare context")
	}
}

func TestClinicIDEmptyValue(t *testing.T) {
	ctx := WithClinicID(context.Background(), "")
	if _, ok := ClinicIDFromContext(ctx); ok {
		t.Fatal("expected ok=false for empty clinic id")
	}
}
