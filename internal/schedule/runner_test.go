package schedule

import (
	"context"
	"testing"
	"time"
)

func TestRunner_InvalidSpec(t *testing.T) {
	r := New(context.Background(), nil)
	if _, err := r.Add("not a cron", func(context.Context) {}); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestRunner_DefaultSpec(t *testing.T) {
	r := New(context.Background(), nil)
	if _, err := r.Add(DefaultSpec, func(context.Context) {}); err != nil {
		t.Fatalf("Add(DefaultSpec): %v", err)
	}
	entries := r.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
}

func TestRunner_RunsJobWithBaseContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "base")

	got := make(chan any, 1)
	r := New(ctx, nil)
	if _, err := r.Add("@every 1s", func(jobCtx context.Context) {
		select {
		case got <- jobCtx.Value(key{}):
		default:
		}
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	r.Start()
	defer r.Stop()

	select {
	case v := <-got:
		if v != "base" {
			t.Errorf("job context value = %v, want base", v)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestRunner_RunNow(t *testing.T) {
	r := New(context.Background(), nil)
	runs := 0
	id, err := r.Add(DefaultSpec, func(context.Context) { runs++ })
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := r.RunNow(id); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}

	if err := r.RunNow(id + 100); err == nil {
		t.Error("expected error for unknown entry")
	}
}
