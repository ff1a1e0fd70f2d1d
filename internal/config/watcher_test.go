package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/constitutional/internal/engine"
)

type applied struct {
	mu   sync.Mutex
	cfgs []engine.Config
}

func (a *applied) apply(c engine.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfgs = append(a.cfgs, c)
	return nil
}

func (a *applied) snapshot() []engine.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]engine.Config(nil), a.cfgs...)
}

func startWatcher(t *testing.T, file string, apply ApplyFunc) {
	t.Helper()
	w, err := NewWatcher(Source{File: file, Lookup: lookupFrom(nil)}, apply, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestNewWatcher_RequiresFile(t *testing.T) {
	if _, err := NewWatcher(Source{}, func(engine.Config) error { return nil }, nil); err == nil {
		t.Error("expected error without a file")
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	file := writeFile(t, t.TempDir(), "config.yaml", "engine:\n  strict_mode: false\n")
	var got applied
	startWatcher(t, file, got.apply)

	if err := os.WriteFile(file, []byte("engine:\n  strict_mode: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cfgs := got.snapshot(); len(cfgs) > 0 {
			if !cfgs[len(cfgs)-1].StrictMode {
				t.Errorf("reloaded config should have strict mode on")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("config was not reloaded")
}

func TestWatcher_IgnoresInvalidReload(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "config.yaml", "engine:\n  strict_mode: false\n")
	var got applied
	startWatcher(t, file, got.apply)

	if err := os.WriteFile(file, []byte("engine:\n  min_compliance_score: 500\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// unrelated file in the same directory
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if n := len(got.snapshot()); n != 0 {
		t.Errorf("applied %d configs, want 0", n)
	}
}
