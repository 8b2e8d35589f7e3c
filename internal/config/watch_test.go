package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watchedConfig = `
server:
  http_port: %d
ingest:
  sources:
    - run: exp
      endpoint: "http://localhost:8888/metrics"
      metrics:
        loss: training_loss
`

// startWatch writes an initial config, starts Watch, and returns the
// file path plus the channel onChange feeds.
func startWatch(t *testing.T) (path string, reloads <-chan *Config) {
	t.Helper()
	path = filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, 8080)

	ch := make(chan *Config, 8)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := Watch(ctx, path, func(cfg *Config) { ch <- cfg }); err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()

	// Let the watcher register before the test writes.
	time.Sleep(50 * time.Millisecond)
	return path, ch
}

func writeConfig(t *testing.T, path string, port int) {
	t.Helper()
	if err := os.WriteFile(path, []byte(fmt.Sprintf(watchedConfig, port)), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path, reloads := startWatch(t)

	writeConfig(t, path, 9090)

	select {
	case cfg := <-reloads:
		if cfg.Server.HTTPPort != 9090 {
			t.Errorf("reloaded http_port = %d, want 9090", cfg.Server.HTTPPort)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatch_CoalescesWriteBursts(t *testing.T) {
	path, reloads := startWatch(t)

	// An editor-style burst: several writes in quick succession must
	// collapse into one reload carrying the final content.
	for port := 9001; port <= 9005; port++ {
		writeConfig(t, path, port)
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case cfg := <-reloads:
		if cfg.Server.HTTPPort != 9005 {
			t.Errorf("reload saw port %d, want the final 9005", cfg.Server.HTTPPort)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after burst")
	}

	select {
	case cfg := <-reloads:
		t.Errorf("burst produced a second reload (port %d)", cfg.Server.HTTPPort)
	case <-time.After(3 * reloadDebounce):
	}
}

func TestWatch_InvalidReloadKeepsPrevious(t *testing.T) {
	path, reloads := startWatch(t)

	if err := os.WriteFile(path, []byte("engine:\n  smoothing_factor: 2.0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	select {
	case cfg := <-reloads:
		t.Errorf("invalid config was delivered: %+v", cfg)
	case <-time.After(5 * reloadDebounce):
	}

	// A subsequent valid write still reloads — the watcher survived.
	writeConfig(t, path, 9191)
	select {
	case cfg := <-reloads:
		if cfg.Server.HTTPPort != 9191 {
			t.Errorf("reloaded http_port = %d, want 9191", cfg.Server.HTTPPort)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after recovering from invalid config")
	}
}
