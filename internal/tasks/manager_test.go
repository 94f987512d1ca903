package tasks

import (
	"context"
	"testing"
	"time"
)

func TestSpawnRunsTaskAndRemovesItOnCompletion(t *testing.T) {
	m := NewManager(nil)
	started := make(chan struct{})
	finish := make(chan struct{})

	name := m.Spawn(context.Background(), "worker", []Scope{ScopePlatform}, func(tc *TaskContext) {
		tc.SetAction("running")
		close(started)
		<-finish
	})

	<-started
	if len(m.List()) != 1 {
		t.Fatalf("expected exactly one live task, got %d", len(m.List()))
	}
	close(finish)

	deadline := time.After(time.Second)
	for {
		if len(m.List()) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected task %q to be removed after completion", name)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestShutdownCancelsOnlyMatchingScope(t *testing.T) {
	m := NewManager(nil)
	platformCancelled := make(chan struct{})
	providerCancelled := make(chan struct{})

	m.Spawn(context.Background(), "platform-task", []Scope{ScopePlatform}, func(tc *TaskContext) {
		<-tc.Done()
		close(platformCancelled)
	})
	m.Spawn(context.Background(), "provider-task", []Scope{ScopeProvider}, func(tc *TaskContext) {
		<-tc.Done()
		close(providerCancelled)
	})

	m.Shutdown(context.Background(), ScopePlatform, time.Second)

	select {
	case <-platformCancelled:
	case <-time.After(time.Second):
		t.Fatalf("expected the platform-scoped task to be cancelled")
	}

	select {
	case <-providerCancelled:
		t.Fatalf("expected the provider-scoped task to remain running")
	default:
	}

	m.Shutdown(context.Background(), ScopeProvider, time.Second)
	select {
	case <-providerCancelled:
	case <-time.After(time.Second):
		t.Fatalf("expected the provider-scoped task to be cancelled after its own shutdown")
	}
}

func TestTaskContextLogRingEvictsOldestLine(t *testing.T) {
	tc := &TaskContext{Context: context.Background()}
	for i := 0; i < logRingSize+5; i++ {
		tc.Log(string(rune('a' + i%26)))
	}
	lines := tc.LogLines()
	if len(lines) != logRingSize {
		t.Fatalf("expected ring buffer capped at %d lines, got %d", logRingSize, len(lines))
	}
	// The first 5 lines ("a".."e") are evicted; the oldest kept line is the
	// 6th written and the newest is the 69th (68 % 26 = 16, "q").
	if lines[0] != "f" || lines[len(lines)-1] != "q" {
		t.Fatalf("expected oldest kept line %q and newest %q, got %q and %q", "f", "q", lines[0], lines[len(lines)-1])
	}
}

func TestSpawnRecoversFromPanic(t *testing.T) {
	m := NewManager(nil)
	done := make(chan struct{})
	m.Spawn(context.Background(), "panicky", []Scope{ScopeApplication}, func(tc *TaskContext) {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected the panicking task to still run its deferred close")
	}

	deadline := time.After(time.Second)
	for {
		if len(m.List()) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected the panicked task to be removed from the live set")
		case <-time.After(time.Millisecond):
		}
	}
}
