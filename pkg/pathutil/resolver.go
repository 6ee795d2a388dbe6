// Package pathutil provides centralized path management for the fintool home directory.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathResolver manages paths for collection files, the sync history database and settings.
type PathResolver struct {
	homeDir      string
	databasePath string
	settingsPath string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// HomeDir is the root directory for all collections (e.g., ~/.fintool)
	HomeDir string
	// DatabasePath is the path to the SQLite database file for sync history
	DatabasePath string
	// SettingsPath is the path to the JSON settings file
	SettingsPath string
}

// New creates a new PathResolver with the given configuration.
// A leading "~" in HomeDir is expanded to the user's home directory.
// If DatabasePath is empty, it defaults to {HomeDir}/.sync/sync.db
// If SettingsPath is empty, it defaults to {HomeDir}/config.json
func New(config Config) *PathResolver {
	homeDir := ExpandHome(config.HomeDir)

	dbPath := config.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(homeDir, ".sync", "sync.db")
	}

	settingsPath := config.SettingsPath
	if settingsPath == "" {
		settingsPath = filepath.Join(homeDir, "config.json")
	}

	return &PathResolver{
		homeDir:      homeDir,
		databasePath: ExpandHome(dbPath),
		settingsPath: ExpandHome(settingsPath),
	}
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// GetHomeDir returns the fintool home directory.
func (p *PathResolver) GetHomeDir() string {
	return p.homeDir
}

// GetDatabasePath returns the sync history database path.
func (p *PathResolver) GetDatabasePath() string {
	return p.databasePath
}

// GetSettingsPath returns the settings file path.
func (p *PathResolver) GetSettingsPath() string {
	return p.settingsPath
}

// GetCollectionPath returns the file path for a collection.
// Collection names may be namespaced with "/" (e.g., "transactions/2024/01").
// Example: ~/.fintool/transactions/2024/01.csv
func (p *PathResolver) GetCollectionPath(collection, ext string) (string, error) {
	if err := ValidateCollection(collection); err != nil {
		return "", err
	}
	return filepath.Join(p.homeDir, filepath.FromSlash(collection)+ext), nil
}

// GetNamespaceDir returns the directory that holds a collection namespace.
func (p *PathResolver) GetNamespaceDir(namespace string) string {
	return filepath.Join(p.homeDir, filepath.FromSlash(namespace))
}

// ValidateCollection rejects empty names and names that escape the home directory.
func ValidateCollection(collection string) error {
	if collection == "" {
		return fmt.Errorf("invalid collection name: empty")
	}
	for _, part := range strings.Split(collection, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid collection name: %s", collection)
		}
	}
	return nil
}

// EnsureDir creates a directory if it doesn't exist.
// It creates all parent directories as needed (like mkdir -p).
func (p *PathResolver) EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParentDir ensures the parent directory of a file exists.
func (p *PathResolver) EnsureParentDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return p.EnsureDir(dir)
}

// IsDir checks if a path is a directory.
func (p *PathResolver) IsDir(dirPath string) bool {
	info, err := os.Stat(dirPath)
	if err != nil {
		return false
	}
	return info.IsDir()
}
