package schedule

import (
	"context"
	"testing"
	"time"
)

func TestAdd_RejectsInvalidExpr(t *testing.T) {
	s := New()
	err := s.Add(Job{Name: "bad", Expr: "not a cron", Run: func(context.Context) error { return nil }})
	if err == nil {
		t.Error("Add() with invalid expression = nil")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if err := s.Add(Job{Name: "ok", Expr: "0 3 * * *", Run: func(context.Context) error { return nil }}); err != nil {
		t.Errorf("Add(0 3 * * *) = %v", err)
	}
}

func TestNext(t *testing.T) {
	ref := time.Date(2026, 1, 2, 10, 30, 0, 0, time.UTC)
	got, err := Next("0 3 * * *", ref)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 1, 3, 3, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := New()
	_ = s.Add(Job{Name: "daily", Expr: "0 3 * * *", Run: func(context.Context) error { return nil }})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
