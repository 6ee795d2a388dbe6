package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSettingsGet(t *testing.T) {
	s := NewSettings(map[string]any{"a": 1.0, "b": 2.0, "c": map[string]any{"d": map[string]any{"e": 3.0}}})

	v, err := s.Get("c.d.e")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v != 3.0 {
		t.Errorf("Get(c.d.e) = %v, expected 3", v)
	}

	for _, key := range []string{"x", "c.x", "a.b"} {
		if _, err := s.Get(key); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("Get(%s) error = %v, expected ErrKeyNotFound", key, err)
		}
	}
}

func TestSettingsSet(t *testing.T) {
	s := NewSettings(map[string]any{"a": 1.0, "b": 2.0})

	if err := s.Set("c.d.e", 3.0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	want := map[string]any{"a": 1.0, "b": 2.0, "c": map[string]any{"d": map[string]any{"e": 3.0}}}
	if diff := cmp.Diff(want, s.Data()); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}

	if err := s.Set("a.x", 1.0); !errors.Is(err, ErrNotAnObject) {
		t.Errorf("Set through a number error = %v, expected ErrNotAnObject", err)
	}
}

func TestSettingsAppend(t *testing.T) {
	s := NewSettings(map[string]any{"a": 1.0, "b": 2.0, "c": map[string]any{"d": map[string]any{"e": []any{2.0}}}})

	if err := s.Append("c.d.e", 3.0); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append("c.f", "x"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	want := map[string]any{"a": 1.0, "b": 2.0, "c": map[string]any{
		"d": map[string]any{"e": []any{2.0, 3.0}},
		"f": []any{"x"},
	}}
	if diff := cmp.Diff(want, s.Data()); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}

	if err := s.Append("a", 1.0); !errors.Is(err, ErrNotAList) {
		t.Errorf("Append to a number error = %v, expected ErrNotAList", err)
	}
}

func TestSettingsSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "home", "config.json")

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings of missing file failed: %v", err)
	}
	if len(s.Data()) != 0 {
		t.Errorf("expected empty settings, got %v", s.Data())
	}

	if err := s.Set("sync.mailboxes", []any{"banamex"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Append("sync.mailboxes", "heybanco"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	v, err := loaded.Get("sync.mailboxes")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if diff := cmp.Diff([]any{"banamex", "heybanco"}, v); diff != "" {
		t.Errorf("mailboxes mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only config.json after save, found %d entries", len(entries))
	}
}

func TestLoadSettingsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{"3", 3.0},
		{"true", true},
		{`["a"]`, []any{"a"}},
		{"abc", "abc"},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ParseValue(tt.raw)); diff != "" {
			t.Errorf("ParseValue(%q) mismatch (-want +got):\n%s", tt.raw, diff)
		}
	}
}
