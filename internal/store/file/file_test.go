package file

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mikann-OMO/bot/internal/keyword"
)

func TestStore_MissingFilesLoadEmpty(t *testing.T) {
	st, err := New(t.TempDir()).LoadKeywords(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Exact) != 0 || len(st.Contains) != 0 || st.EnableGroups != nil || st.CooldownTime != 0 {
		t.Errorf("LoadKeywords() = %+v, want zero state", st)
	}
}

func TestStore_KeywordsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	want := keyword.State{
		Exact:        []keyword.Entry{{Pattern: "ping", Reply: "pong"}, {Pattern: "/^hi$/i", Reply: "hello"}},
		Contains:     []keyword.Entry{{Pattern: "猫", Reply: "喵"}},
		EnableGroups: []string{"-1", "123456"},
		CooldownTime: 60000,
	}
	if err := s.SaveKeywords(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadKeywords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadKeywords() = %+v, want %+v", got, want)
	}
}

func TestStore_ReadsLegacyLayout(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		path := filepath.Join(dir, filepath.FromSlash(name))
		_ = os.MkdirAll(filepath.Dir(path), 0o755)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(exactFile, `[{"keyword": "早安", "reply": "早上好"}]`)
	write(configFile, `{"enableGroups": [-1, 987654321], "cooldownTime": 180000}`)

	st, err := New(dir).LoadKeywords(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Exact) != 1 || st.Exact[0].Reply != "早上好" {
		t.Errorf("Exact = %+v", st.Exact)
	}
	if want := []string{"-1", "987654321"}; !reflect.DeepEqual(st.EnableGroups, want) {
		t.Errorf("EnableGroups = %v, want %v", st.EnableGroups, want)
	}
	if st.CooldownTime != 180000 {
		t.Errorf("CooldownTime = %d", st.CooldownTime)
	}
}

func TestStore_NumericGroupsWrittenAsNumbers(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := s.SaveKeywords(context.Background(), keyword.State{EnableGroups: []string{"-1", "42"}}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, configFile))
	if !strings.Contains(string(data), "-1,") || strings.Contains(string(data), `"42"`) {
		t.Errorf("config.json = %s", data)
	}
}

func TestStore_Plugins(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	if m, err := s.LoadPlugins(ctx); err != nil || m != nil {
		t.Fatalf("LoadPlugins() on empty dir = %v, %v", m, err)
	}
	want := map[string]bool{"keyword": true, "orange": false}
	if err := s.SavePlugins(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadPlugins(ctx)
	if err != nil || !reflect.DeepEqual(got, want) {
		t.Errorf("LoadPlugins() = %v, %v; want %v", got, err, want)
	}
}

func TestStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, filepath.FromSlash(containsFile))
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	_ = os.WriteFile(path, []byte("{not json"), 0o644)
	if _, err := New(dir).LoadKeywords(context.Background()); err == nil {
		t.Error("LoadKeywords() on corrupt file = nil error")
	}
}

func TestStore_WatchReloadsExternalEdits(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, func() { changed <- struct{}{} }) }()
	time.Sleep(100 * time.Millisecond)

	// Writes by the store itself are ignored.
	if err := s.SaveKeywords(ctx, keyword.State{Exact: []keyword.Entry{{Pattern: "a", Reply: "b"}}}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
		t.Fatal("own write triggered a reload")
	case <-time.After(3 * reloadDebounce):
	}

	path := filepath.Join(dir, filepath.FromSlash(exactFile))
	if err := os.WriteFile(path, []byte(`[{"keyword":"x","reply":"y"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("external edit did not trigger a reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() = %v", err)
	}
}
