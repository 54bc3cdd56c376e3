package plugins

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	saved  map[string]bool
	err    error
	loaded map[string]bool
}

func (f *fakeStore) SavePlugins(_ context.Context, m map[string]bool) error {
	if f.err != nil {
		return f.err
	}
	f.saved = m
	return nil
}

func (f *fakeStore) LoadPlugins(context.Context) (map[string]bool, error) {
	return f.loaded, f.err
}

func TestState_UnknownIsDisabled(t *testing.T) {
	s := NewState(map[string]bool{Keyword: true}, nil)
	if !s.IsEnabled(Keyword) {
		t.Error("IsEnabled(keyword) = false, want true")
	}
	if s.IsEnabled("weather") {
		t.Error("IsEnabled(weather) = true, want false")
	}
}

func TestState_SetEnabledPersists(t *testing.T) {
	st := &fakeStore{}
	s := NewState(map[string]bool{Keyword: true, Orange: true}, st)
	if err := s.SetEnabled(context.Background(), Orange, false); err != nil {
		t.Fatal(err)
	}
	if s.IsEnabled(Orange) {
		t.Error("IsEnabled(orange) = true after disable")
	}
	if st.saved[Orange] || !st.saved[Keyword] {
		t.Errorf("saved = %v", st.saved)
	}
}

func TestState_SetEnabledRollsBack(t *testing.T) {
	st := &fakeStore{err: errors.New("read-only")}
	s := NewState(map[string]bool{Keyword: true}, st)
	if err := s.SetEnabled(context.Background(), Keyword, false); err == nil {
		t.Fatal("SetEnabled() = nil, want error")
	}
	if !s.IsEnabled(Keyword) {
		t.Error("keyword disabled after failed save")
	}
}

func TestState_SetEnabledUnknown(t *testing.T) {
	s := NewState(map[string]bool{Keyword: true}, nil)
	if err := s.SetEnabled(context.Background(), "weather", true); !errors.Is(err, ErrUnknownPlugin) {
		t.Fatalf("SetEnabled(weather) = %v, want ErrUnknownPlugin", err)
	}
	if len(s.List()) != 1 {
		t.Errorf("List() = %v, want only keyword", s.List())
	}
}

func TestState_LoadOverlays(t *testing.T) {
	s := NewState(map[string]bool{Keyword: true, Orange: true}, nil)
	if err := s.Load(context.Background(), &fakeStore{loaded: map[string]bool{Orange: false}}); err != nil {
		t.Fatal(err)
	}
	got := s.List()
	want := []Status{{Keyword, true}, {Orange, false}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("List() = %v, want %v", got, want)
	}
}
