package services

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestContextHelpersRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithRunID(ctx, "run-1")
	ctx = WithJobID(ctx, "job-1")
	ctx = WithAssetID(ctx, "asset-1")
	ctx = WithStage(ctx, "UPLOADING")
	ctx = WithRequestID(ctx, "req-1")

	checks := []struct {
		name string
		get  func(context.Context) (string, bool)
		want string
	}{
		{"run", RunIDFromContext, "run-1"},
		{"job", JobIDFromContext, "job-1"},
		{"asset", AssetIDFromContext, "asset-1"},
		{"stage", StageFromContext, "UPLOADING"},
		{"request", RequestIDFromContext, "req-1"},
	}
	for _, tc := range checks {
		got, ok := tc.get(ctx)
		if !ok || got != tc.want {
			t.Fatalf("%s: got %q (%v), want %q", tc.name, got, ok, tc.want)
		}
	}
}

func TestContextHelpersIgnoreEmptyValues(t *testing.T) {
	ctx := WithStage(context.Background(), "")
	if _, ok := StageFromContext(ctx); ok {
		t.Fatal("expected empty stage to be ignored")
	}
	if _, ok := JobIDFromContext(context.Background()); ok {
		t.Fatal("expected missing job id")
	}
}

func TestWrapPreservesMarkerAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(ErrTransient, "DOWNLOADING", "fetch original", "http get", cause)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be wrapped, got %v", err)
	}
	if !strings.Contains(err.Error(), "DOWNLOADING: fetch original: http get") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !Retryable(err) {
		t.Fatal("expected transient error to be retryable")
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := Wrap(nil, "", "", "", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected default transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestHint(t *testing.T) {
	if got := Hint(Wrap(ErrAuth, "", "", "401", nil)); !strings.Contains(got, "api_key") {
		t.Fatalf("unexpected auth hint %q", got)
	}
	if Hint(nil) != "" {
		t.Fatal("expected empty hint for nil error")
	}
	if Retryable(Wrap(ErrValidation, "", "", "bad", nil)) {
		t.Fatal("validation errors must not be retryable")
	}
}
