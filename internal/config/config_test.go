package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marklab/marksync/internal/bookmark"
	"github.com/marklab/marksync/internal/ratelimit"
	"github.com/marklab/marksync/internal/retry"
)

// writeConfig writes a YAML config file into a temp dir.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "marksync.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const sampleConfig = `
checkpoint_path: /tmp/cp.db
daemon:
  sync_interval: 2m
  sweep_interval: 30s
notifications:
  enabled: true
  on_success: false
  on_error: true
sources:
  - name: gh-prs
    type: static
    enabled: true
    folder_id: folder-1
    folder_title: Pull Requests
    sort_order: updated
    filters:
      exclude: ["wip"]
    rate_limit:
      max_requests: 10
      window: 1m
      strategy: SLIDING_WINDOW
    retry:
      max_retries: 5
      initial_delay: 200ms
      strategy: LINEAR
    settings:
      path: /tmp/items.json
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.CheckpointPath != "/tmp/cp.db" {
		t.Errorf("unexpected checkpoint path: %s", cfg.CheckpointPath)
	}
	if cfg.Daemon.SyncInterval != 2*time.Minute {
		t.Errorf("unexpected sync interval: %v", cfg.Daemon.SyncInterval)
	}
	if cfg.NotifyOnSuccess() {
		t.Error("on_success should be disabled")
	}
	if !cfg.NotifyOnError() {
		t.Error("on_error should be enabled")
	}

	src, ok := cfg.Source("gh-prs")
	if !ok {
		t.Fatal("source gh-prs not found")
	}
	if src.FolderID != "folder-1" || src.Settings["path"] != "/tmp/items.json" {
		t.Errorf("unexpected source: %+v", src)
	}
	if cfg.SortOrder("gh-prs") != bookmark.SortUpdated {
		t.Errorf("unexpected sort order: %v", cfg.SortOrder("gh-prs"))
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "sources: []\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Daemon.SyncInterval != 5*time.Minute {
		t.Errorf("expected default sync interval, got %v", cfg.Daemon.SyncInterval)
	}
	if !cfg.NotificationsEnabled() {
		t.Error("notifications should default to enabled")
	}
	if cfg.CheckpointPath == "" {
		t.Error("checkpoint path should have a default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "sources:\n  - type: static\n",
			wantErr: "name is required",
		},
		{
			name:    "missing type",
			content: "sources:\n  - name: a\n",
			wantErr: "type is required",
		},
		{
			name:    "duplicate names",
			content: "sources:\n  - {name: a, type: static}\n  - {name: a, type: static}\n",
			wantErr: "duplicate source name",
		},
		{
			name:    "bad sort order",
			content: "sources:\n  - {name: a, type: static, sort_order: zalphabetical}\n",
			wantErr: "unknown sort_order",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFilterMatch(t *testing.T) {
	f := FilterConfig{Include: []string{"open"}, Exclude: []string{"wip", "draft"}}

	tests := []struct {
		title string
		want  bool
	}{
		{"#1 open", true},
		{"#2 OPEN", true},
		{"#3 WIP: open", false},
		{"#4 Draft open", false},
		{"#5 closed", false},
	}
	for _, tt := range tests {
		if got := f.Match(tt.title); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.title, got, tt.want)
		}
	}

	// Empty include admits everything not excluded.
	open := FilterConfig{Exclude: []string{"noise"}}
	if !open.Match("anything") || open.Match("some noise here") {
		t.Error("empty include list should admit all non-excluded titles")
	}
}

func TestSourceConversions(t *testing.T) {
	src := SourceConfig{
		RateLimit: RateLimitConfig{MaxRequests: 3, Window: time.Second, Strategy: "sliding_window"},
		Retry:     RetryConfig{MaxRetries: 7, InitialDelay: 50 * time.Millisecond, Strategy: "constant"},
	}

	rl := src.RateLimitFor()
	if rl.MaxRequests != 3 || rl.Window != time.Second || rl.Strategy != ratelimit.SlidingWindow {
		t.Errorf("unexpected rate limit config: %+v", rl)
	}

	rp := src.RetryPolicy()
	if rp.MaxRetries != 7 || rp.InitialDelay != 50*time.Millisecond || rp.Strategy != retry.BackoffConstant {
		t.Errorf("unexpected retry policy: %+v", rp)
	}

	// Zero values fall back to package defaults.
	empty := SourceConfig{}
	if empty.RateLimitFor().MaxRequests != ratelimit.DefaultConfig().MaxRequests {
		t.Error("empty rate limit should fall back to defaults")
	}
	if empty.RetryPolicy().MaxRetries != retry.DefaultPolicy().MaxRetries {
		t.Error("empty retry should fall back to defaults")
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML failed: %v", err)
	}
	if !strings.Contains(out, "gh-prs") || !strings.Contains(out, "folder-1") {
		t.Errorf("rendered config missing fields:\n%s", out)
	}
}
