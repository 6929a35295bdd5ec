package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	if cfg.Addr != ":8080" {
		t.Fatalf("want :8080, got %q", cfg.Addr)
	}
	if cfg.Room.HistoryLimit != 200 {
		t.Fatalf("want history limit 200, got %d", cfg.Room.HistoryLimit)
	}
	if cfg.Room.Rules.MinPlayers != 5 || cfg.Room.Rules.MaxPlayers != 20 || cfg.Room.Rules.DaySeconds != 60 {
		t.Fatalf("unexpected default rules: %+v", cfg.Room.Rules)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ADDR", ":0")
	t.Setenv("DAY_SECONDS", "5")
	t.Setenv("HISTORY_LIMIT", "nonsense")

	cfg := Load()
	if cfg.Addr != ":0" {
		t.Fatalf("want :0, got %q", cfg.Addr)
	}
	if cfg.Room.Rules.DaySeconds != 5 {
		t.Fatalf("want 5, got %d", cfg.Room.Rules.DaySeconds)
	}
	// Unparseable values keep the default.
	if cfg.Room.HistoryLimit != 200 {
		t.Fatalf("want 200, got %d", cfg.Room.HistoryLimit)
	}
}
