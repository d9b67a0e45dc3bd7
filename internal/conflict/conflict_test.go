package conflict

import (
	"testing"
	"time"

	"github.com/marklab/marksync/internal/remote"
)

func testItem(id, title, url string, lastModified time.Time) *remote.Item {
	return &remote.Item{
		ID:           id,
		Title:        title,
		URL:          url,
		LastModified: lastModified,
	}
}

func TestDetect(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		local  *remote.Item
		remote *remote.Item
		want   Type
		none   bool
	}{
		{
			name:   "nil local",
			remote: testItem("1", "X", "https://x/1", base),
			none:   true,
		},
		{
			name:  "nil remote",
			local: testItem("1", "X", "https://x/1", base),
			none:  true,
		},
		{
			name:   "identical",
			local:  testItem("1", "X", "https://x/1", base),
			remote: testItem("1", "X", "https://x/1", base),
			none:   true,
		},
		{
			name:   "timestamp drift only",
			local:  testItem("1", "X", "https://x/1", base),
			remote: testItem("1", "X", "https://x/1", base.Add(time.Hour)),
			none:   true,
		},
		{
			name:   "titles differ same url",
			local:  testItem("1", "X", "https://x/1", base),
			remote: testItem("1", "Y", "https://x/1", base),
			want:   TypeMetadata,
		},
		{
			name:   "same title urls differ",
			local:  testItem("1", "X", "https://x/1", base),
			remote: testItem("1", "X", "https://x/2", base),
			want:   TypeURLMismatch,
		},
		{
			name:   "both differ",
			local:  testItem("1", "X", "https://x/1", base),
			remote: testItem("1", "Y", "https://x/2", base),
			want:   TypeMetadata,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector()
			c := d.Detect(tt.local, tt.remote, "gh")
			if tt.none {
				if c != nil {
					t.Fatalf("expected nil conflict, got %+v", c)
				}
				return
			}
			if c == nil {
				t.Fatal("expected a conflict, got nil")
			}
			if c.Type != tt.want {
				t.Errorf("expected type %s, got %s", tt.want, c.Type)
			}
			if c.ID != "gh-1" {
				t.Errorf("expected id gh-1, got %s", c.ID)
			}
		})
	}
}

func TestDetectDeterministic(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	local := testItem("1", "X", "https://x/1", base)
	remoteItem := testItem("1", "Y", "https://x/1", base)

	d := NewDetector()
	for i := 0; i < 5; i++ {
		c := d.Detect(local, remoteItem, "gh")
		if c == nil || c.Type != TypeMetadata {
			t.Fatalf("iteration %d: expected METADATA_CONFLICT, got %+v", i, c)
		}
	}

	// Repeated detection on the same pair overwrites, not duplicates.
	if n := len(d.Unresolved()); n != 1 {
		t.Errorf("expected 1 registered conflict, got %d", n)
	}
	// Counters still count every detection.
	if s := d.GetStats(); s.Total != 5 || s.ByProvider["gh"] != 5 || s.ByType[TypeMetadata] != 5 {
		t.Errorf("unexpected stats: %+v", d.GetStats())
	}
}

func TestDetectorRegistry(t *testing.T) {
	base := time.Now()
	d := NewDetector()

	d.Detect(testItem("1", "A", "https://x/1", base), testItem("1", "B", "https://x/1", base), "gh")
	d.Detect(testItem("2", "C", "https://x/2", base), testItem("2", "D", "https://x/2", base), "gl")

	if n := len(d.Unresolved()); n != 2 {
		t.Fatalf("expected 2 unresolved, got %d", n)
	}
	if got := d.ProviderConflicts("gh"); len(got) != 1 || got[0].ID != "gh-1" {
		t.Errorf("unexpected provider conflicts: %+v", got)
	}

	d.Clear()
	if n := len(d.Unresolved()); n != 0 {
		t.Errorf("expected empty registry after clear, got %d", n)
	}
	if s := d.GetStats(); s.Total != 0 {
		t.Errorf("expected zeroed stats after clear, got %+v", s)
	}
}

func TestResolveRemoteAndLocalWins(t *testing.T) {
	base := time.Now()
	d := NewDetector()
	r := NewResolver(d)

	c := d.Detect(testItem("1", "local", "https://x/1", base), testItem("1", "remote", "https://x/1", base), "gh")
	res := r.Resolve(c)
	if res.Strategy != StrategyRemoteWins || res.Resolved.Title != "remote" {
		t.Errorf("default should be remote_wins: %+v", res)
	}
	if n := len(d.Unresolved()); n != 0 {
		t.Errorf("resolved conflict should leave the registry, %d remain", n)
	}

	r.SetProviderStrategy("gh", StrategyLocalWins)
	c = d.Detect(testItem("1", "local", "https://x/1", base), testItem("1", "remote", "https://x/1", base), "gh")
	res = r.Resolve(c)
	if res.Strategy != StrategyLocalWins || res.Resolved.Title != "local" {
		t.Errorf("provider override should win: %+v", res)
	}
}

func TestResolveNewestWins(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	d := NewDetector()
	r := NewResolver(d)
	r.SetDefaultStrategy(StrategyNewestWins)

	c := d.Detect(testItem("1", "older", "https://x/1", t1), testItem("1", "newer", "https://x/1", t2), "gh")
	res := r.Resolve(c)
	if res.Resolved.Title != "newer" {
		t.Errorf("expected remote (newer) to win, got %q", res.Resolved.Title)
	}

	// Equal timestamps tie-break to remote.
	c = d.Detect(testItem("1", "local", "https://x/1", t1), testItem("1", "remote", "https://x/1", t1), "gh")
	res = r.Resolve(c)
	if res.Resolved.Title != "remote" {
		t.Errorf("expected tie to go to remote, got %q", res.Resolved.Title)
	}
}

func TestResolveMerge(t *testing.T) {
	older := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	local := testItem("1", "Local", "https://x/1", newer)
	remoteItem := testItem("1", "Remote", "https://x/1", older)
	remoteItem.Metadata = map[string]any{"description": "kept from remote"}

	d := NewDetector()
	r := NewResolver(d)
	r.SetDefaultStrategy(StrategyMerge)

	c := d.Detect(local, remoteItem, "gh")
	res := r.Resolve(c)

	if res.Resolved.Title != "Local" {
		t.Errorf("scalar fields should come from the newer side, got %q", res.Resolved.Title)
	}
	if res.Resolved.Metadata["description"] != "kept from remote" {
		t.Errorf("absent fields should be filled from the loser: %+v", res.Resolved.Metadata)
	}
}

func TestResolveManual(t *testing.T) {
	base := time.Now()
	d := NewDetector()
	r := NewResolver(d)
	r.SetDefaultStrategy(StrategyManual)

	c := d.Detect(testItem("1", "local", "https://x/1", base), testItem("1", "remote", "https://x/1", base), "gh")
	res := r.Resolve(c)

	if !res.RequiresUserConfirmation || res.Resolved != nil {
		t.Fatalf("manual strategy should defer: %+v", res)
	}
	if n := len(d.Unresolved()); n != 1 {
		t.Fatalf("manual conflict should stay unresolved, got %d", n)
	}

	final, err := r.ResolveManually(c.ID, ActionKeepLocal, nil)
	if err != nil {
		t.Fatalf("ResolveManually failed: %v", err)
	}
	if final.Resolved.Title != "local" {
		t.Errorf("keep_local should resolve to local, got %q", final.Resolved.Title)
	}
	if n := len(d.Unresolved()); n != 0 {
		t.Errorf("manually resolved conflict should leave the registry, %d remain", n)
	}

	if _, err := r.ResolveManually("gh-missing", ActionKeepRemote, nil); err == nil {
		t.Error("resolving an unknown conflict should fail")
	}
}

func TestResolveManualCustom(t *testing.T) {
	base := time.Now()
	d := NewDetector()
	r := NewResolver(d)
	r.SetDefaultStrategy(StrategyManual)

	c := d.Detect(testItem("1", "local", "https://x/1", base), testItem("1", "remote", "https://x/1", base), "gh")
	r.Resolve(c)

	if _, err := r.ResolveManually(c.ID, ActionCustom, nil); err == nil {
		t.Error("custom action without an item should fail")
	}

	custom := testItem("1", "hand-edited", "https://x/1", base)
	res, err := r.ResolveManually(c.ID, ActionCustom, custom)
	if err != nil {
		t.Fatalf("ResolveManually failed: %v", err)
	}
	if res.Resolved.Title != "hand-edited" {
		t.Errorf("custom resolution lost: %+v", res.Resolved)
	}
}
