package diff

import (
	"reflect"
	"testing"

	"github.com/marklab/marksync/internal/bookmark"
	"github.com/marklab/marksync/internal/remote"
)

func rec(id, url, title string) bookmark.Record {
	return bookmark.Record{BookmarkID: id, URL: url, Title: title}
}

func item(url, title string) remote.Item {
	return remote.Item{URL: url, Title: title}
}

func TestComputeAddDelete(t *testing.T) {
	local := []bookmark.Record{
		rec("bm-1", "https://x/a", "A"),
		rec("bm-2", "https://x/b", "B"),
	}
	remoteItems := []remote.Item{
		item("https://x/b", "B"),
		item("https://x/c", "C"),
	}

	d := Compute(local, remoteItems)

	if len(d.ToAdd) != 1 || d.ToAdd[0].URL != "https://x/c" {
		t.Errorf("expected toAdd=[C], got %+v", d.ToAdd)
	}
	if len(d.ToDelete) != 1 || d.ToDelete[0] != "bm-1" {
		t.Errorf("expected toDelete=[bm-1], got %+v", d.ToDelete)
	}
	if len(d.ToUpdate) != 0 {
		t.Errorf("expected no updates, got %+v", d.ToUpdate)
	}
}

func TestComputeTitleChange(t *testing.T) {
	local := []bookmark.Record{rec("bm-1", "https://x/1", "#1 open")}
	remoteItems := []remote.Item{item("https://x/1", "#1 closed")}

	d := Compute(local, remoteItems)

	if len(d.ToUpdate) != 1 {
		t.Fatalf("expected 1 update, got %d", len(d.ToUpdate))
	}
	u := d.ToUpdate[0]
	if u.BookmarkID != "bm-1" || u.OldTitle != "#1 open" || u.NewItem.Title != "#1 closed" {
		t.Errorf("unexpected update: %+v", u)
	}
	if len(d.ToAdd) != 0 || len(d.ToDelete) != 0 {
		t.Errorf("title change should not add or delete: %+v", d)
	}
}

func TestComputeDisjointLists(t *testing.T) {
	local := []bookmark.Record{
		rec("bm-1", "https://x/1", "old"),
		rec("bm-2", "https://x/2", "keep"),
	}
	remoteItems := []remote.Item{
		item("https://x/1", "new"),
		item("https://x/2", "keep"),
		item("https://x/3", "add"),
	}

	d := Compute(local, remoteItems)

	seen := make(map[string]int)
	for _, it := range d.ToAdd {
		seen[it.URL]++
	}
	for _, u := range d.ToUpdate {
		seen[u.NewItem.URL]++
	}
	byID := map[string]string{"bm-1": "https://x/1", "bm-2": "https://x/2"}
	for _, id := range d.ToDelete {
		seen[byID[id]]++
	}
	for url, n := range seen {
		if n > 1 {
			t.Errorf("url %s appears in %d lists", url, n)
		}
	}
}

func TestComputeIdempotent(t *testing.T) {
	local := []bookmark.Record{
		rec("bm-1", "https://x/1", "one"),
		rec("bm-2", "https://x/2", "stale"),
	}
	remoteItems := []remote.Item{
		item("https://x/1", "one renamed"),
		item("https://x/3", "three"),
	}

	first := Compute(local, remoteItems)
	second := Compute(local, remoteItems)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated compute diverged:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestComputeInSync(t *testing.T) {
	local := []bookmark.Record{rec("bm-1", "https://x/1", "same")}
	remoteItems := []remote.Item{item("https://x/1", "same")}

	d := Compute(local, remoteItems)
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
	if d.Total() != 0 {
		t.Errorf("expected total 0, got %d", d.Total())
	}
}

func TestComputeEmptyInputs(t *testing.T) {
	tests := []struct {
		name    string
		local   []bookmark.Record
		remote  []remote.Item
		adds    int
		deletes int
	}{
		{"both empty", nil, nil, 0, 0},
		{"fresh folder", nil, []remote.Item{item("https://x/1", "one")}, 1, 0},
		{"source drained", []bookmark.Record{rec("bm-1", "https://x/1", "one")}, nil, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Compute(tt.local, tt.remote)
			if len(d.ToAdd) != tt.adds {
				t.Errorf("expected %d adds, got %d", tt.adds, len(d.ToAdd))
			}
			if len(d.ToDelete) != tt.deletes {
				t.Errorf("expected %d deletes, got %d", tt.deletes, len(d.ToDelete))
			}
		})
	}
}
