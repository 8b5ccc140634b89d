package cron

import (
	"context"
	"testing"
	"time"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	settle := &stubJob{name: "settlement"}
	retention := &stubJob{name: "outbox-retention"}
	registry := NewRegistry(settle, nil)
	registry.Every(time.Hour, retention)

	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != settle || jobs[1] != retention {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatal("Jobs leaked the internal slice")
	}
}

func TestRegistryDueHonoursCadence(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	settle := &stubJob{name: "settlement"}
	retention := &stubJob{name: "outbox-retention"}
	registry := NewRegistry(settle)
	registry.Every(24*time.Hour, retention)

	if due := registry.Due(start); len(due) != 2 {
		t.Fatalf("expected both jobs due before first run, got %d", len(due))
	}
	registry.MarkRan(settle, start)
	registry.MarkRan(retention, start)

	due := registry.Due(start.Add(time.Hour))
	if len(due) != 1 || due[0] != settle {
		t.Fatalf("expected only settlement due after an hour, got %v", due)
	}
	if due := registry.Due(start.Add(24 * time.Hour)); len(due) != 2 {
		t.Fatalf("expected retention due again after its cadence, got %d jobs", len(due))
	}
}
