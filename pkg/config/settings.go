package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrKeyNotFound is returned when a settings key does not exist.
	ErrKeyNotFound = errors.New("setting not found")

	// ErrNotAList is returned when appending to a value that is not a list.
	ErrNotAList = errors.New("setting is not a list")

	// ErrNotAnObject is returned when a key path crosses a non-object value.
	ErrNotAnObject = errors.New("setting is not an object")
)

// Settings is a JSON document addressed by dotted key paths such as "a.b.c".
type Settings struct {
	path string
	data map[string]any
}

// LoadSettings reads the settings file at path. A missing file yields empty
// settings.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{path: path, data: map[string]any{}}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(content, &s.data); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	return s, nil
}

// NewSettings wraps data, for callers that do not persist settings.
func NewSettings(data map[string]any) *Settings {
	if data == nil {
		data = map[string]any{}
	}
	return &Settings{data: data}
}

// Data returns the underlying document.
func (s *Settings) Data() map[string]any {
	return s.data
}

// Get returns the value stored at key.
func (s *Settings) Get(key string) (any, error) {
	var value any = s.data
	for _, k := range strings.Split(key, ".") {
		node, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		if value, ok = node[k]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
	}
	return value, nil
}

// Set stores value at key, creating intermediate objects as needed.
func (s *Settings) Set(key string, value any) error {
	parent, last, err := s.parent(key)
	if err != nil {
		return err
	}
	parent[last] = value
	return nil
}

// Append adds value to the list stored at key. A missing key starts a new list.
func (s *Settings) Append(key string, value any) error {
	parent, last, err := s.parent(key)
	if err != nil {
		return err
	}

	current, ok := parent[last]
	if !ok {
		parent[last] = []any{value}
		return nil
	}
	list, ok := current.([]any)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAList, key)
	}
	parent[last] = append(list, value)
	return nil
}

// parent walks to the object holding the last segment of key.
func (s *Settings) parent(key string) (map[string]any, string, error) {
	keys := strings.Split(key, ".")
	node := s.data
	for i, k := range keys[:len(keys)-1] {
		next, ok := node[k]
		if !ok {
			child := map[string]any{}
			node[k] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("%w: %s", ErrNotAnObject, strings.Join(keys[:i+1], "."))
		}
		node = child
	}
	return node, keys[len(keys)-1], nil
}

// Save writes the settings back to their file through a temporary file and
// a rename.
func (s *Settings) Save() error {
	if s.path == "" {
		return errors.New("settings have no file path")
	}

	content, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(content, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

// ParseValue interprets a command line value as JSON, falling back to the
// raw string: "3" is a number, "[1]" a list and "abc" a string.
func ParseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
