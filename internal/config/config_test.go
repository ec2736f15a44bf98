package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func withTempHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadWritesDefaultsWhenMissing(t *testing.T) {
	home := withTempHome(t)
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(home, ".b4n", "config.yaml")); err != nil {
		t.Fatalf("expected config.yaml to be written, got %v", err)
	}
	if s.Config().Theme != "default" {
		t.Fatalf("expected default theme, got %q", s.Config().Theme)
	}
}

func TestSaveConfigSuppressesSelfReload(t *testing.T) {
	withTempHome(t)
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer s.Close()

	reloaded := make(chan struct{}, 1)
	s.OnReload = func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	}

	cfg := s.Config()
	cfg.Mouse = false
	if err := s.SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	select {
	case <-reloaded:
		t.Fatal("self-write should not trigger OnReload")
	case <-time.After(150 * time.Millisecond):
	}
	if s.Config().Mouse {
		t.Fatal("expected Mouse=false to stick after SaveConfig")
	}
}

func TestHistoryPushRingCapsAt20(t *testing.T) {
	h := &History{}
	for i := 0; i < 25; i++ {
		h.PushFilter("ctx-a", string(rune('a'+i%26)))
	}
	if len(h.FilterHistory["ctx-a"]) > HistoryCap {
		t.Fatalf("expected ring capped at %d, got %d", HistoryCap, len(h.FilterHistory["ctx-a"]))
	}
}
