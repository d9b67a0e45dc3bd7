package notify

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
)

type recordingSink struct {
	got []Notification
	err error
}

func (r *recordingSink) Notify(ctx context.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogNotifier(log.New(&buf, "[notify] ", 0))

	err := sink.Notify(context.Background(), Notification{
		Type:       TypeSuccess,
		Title:      "Sync complete",
		Message:    "+2 ~1 -0",
		ProviderID: "gh",
	})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"[notify]", "success", "[gh]", "Sync complete", "+2 ~1 -0"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestMultiFanOut(t *testing.T) {
	broken := &recordingSink{err: errors.New("sink down")}
	healthy := &recordingSink{}
	m := Multi{broken, healthy}

	n := Notification{Type: TypeError, ProviderID: "gh", Title: "Sync failed"}
	err := m.Notify(context.Background(), n)

	// First error is returned but later sinks still receive the message.
	if err == nil || err.Error() != "sink down" {
		t.Errorf("expected first sink error, got %v", err)
	}
	if len(healthy.got) != 1 || healthy.got[0].Title != "Sync failed" {
		t.Errorf("healthy sink not reached: %+v", healthy.got)
	}
	if len(broken.got) != 1 {
		t.Errorf("broken sink should still record: %+v", broken.got)
	}
}

func TestDiscard(t *testing.T) {
	if err := (Discard{}).Notify(context.Background(), Notification{Type: TypeConflict}); err != nil {
		t.Errorf("Discard returned error: %v", err)
	}
}
