package logger

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestInitAndGet(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	l := Get()
	if l == nil {
		t.Fatal("Get returned nil after Init")
	}

	// Init is idempotent; the global instance must not be replaced.
	if err := Init(); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}
	if Get() != l {
		t.Error("second Init replaced the global logger")
	}

	ctx := context.Background()
	l.Info(ctx, "info message", String("key", "value"))
	l.Debug(ctx, "debug message", Int("count", 3))
	l.Warn(ctx, "warn message", Float64("ratio", 0.5))
	l.Error(ctx, "error message", Bool("flag", true))
}

func TestNamed(t *testing.T) {
	named := Named("stream")
	if named == nil {
		t.Fatal("Named returned nil")
	}
	named.Info(context.Background(), "named logger message", Duration("elapsed", 250*time.Millisecond))
}

func TestFieldConstructors(t *testing.T) {
	cases := []struct {
		field Field
		key   string
	}{
		{String("s", "v"), "s"},
		{Int("i", 1), "i"},
		{Float64("f", 1.5), "f"},
		{Bool("b", true), "b"},
		{Duration("d", time.Second), "d"},
		{Any("a", struct{}{}), "a"},
		{Error(context.Canceled), "error"},
	}
	for _, c := range cases {
		if c.field.Key != c.key {
			t.Errorf("field key = %q, want %q", c.field.Key, c.key)
		}
	}

	if d := Duration("d", 1500*time.Millisecond); d.Value != "1.5s" {
		t.Errorf("Duration value = %v, want 1.5s", d.Value)
	}
}

func TestSetLevelString(t *testing.T) {
	valid := []string{"debug", "info", "warn", "warning", "error", "DEBUG", " info ", ""}
	for _, level := range valid {
		if err := SetLevelString(level); err != nil {
			t.Errorf("SetLevelString(%q) returned error: %v", level, err)
		}
	}

	if err := SetLevelString("loud"); err == nil {
		t.Error("SetLevelString accepted an unknown level")
	}

	// Restore the default for other tests.
	SetLevel(slog.LevelInfo)
}
