package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/shunichi-ikebuchi/fintool/pkg/pathutil"
)

const (
	csvExt    = ".csv"
	tmpSuffix = ".tmp"
)

// CSVStore is a Store backed by one CSV file per collection.
// The first row of each file holds the column names.
type CSVStore struct {
	paths  *pathutil.PathResolver
	logger *slog.Logger
}

// NewCSVStore creates a CSVStore rooted at the resolver's home directory.
func NewCSVStore(paths *pathutil.PathResolver, logger *slog.Logger) (*CSVStore, error) {
	if err := paths.EnsureDir(paths.GetHomeDir()); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &CSVStore{
		paths:  paths,
		logger: orDefault(logger).With("component", "csv_store"),
	}, nil
}

// AddRecord appends a record to the collection file.
// It creates the file with a header row if it doesn't exist.
func (s *CSVStore) AddRecord(record Record, collection string) error {
	s.logger.Debug("Adding record", "collection", collection, "record", record)

	filePath, err := s.paths.GetCollectionPath(collection, csvExt)
	if err != nil {
		return err
	}

	columns, _, err := s.readFile(filePath, collection)
	switch {
	case errors.Is(err, ErrCollectionNotFound):
		columns = nil
	case err != nil:
		return err
	}

	writeHeader := columns == nil
	if writeHeader {
		columns = record.Columns()
		if err := s.paths.EnsureParentDir(filePath); err != nil {
			return err
		}
	} else if !record.matchesColumns(columns) {
		return schemaError(collection, columns, record)
	}

	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file for appending: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(columns); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	if err := w.Write(toRow(record, columns)); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	return nil
}

// GetRecords returns all records in the collection file.
func (s *CSVStore) GetRecords(collection string) ([]Record, error) {
	s.logger.Debug("Getting records", "collection", collection)

	filePath, err := s.paths.GetCollectionPath(collection, csvExt)
	if err != nil {
		return nil, err
	}

	_, records, err := s.readFile(filePath, collection)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// RemoveRecord rewrites the collection without the matching records.
func (s *CSVStore) RemoveRecord(idField, idValue, collection string) error {
	s.logger.Debug("Removing record", "collection", collection, idField, idValue)

	filePath, err := s.paths.GetCollectionPath(collection, csvExt)
	if err != nil {
		return err
	}

	columns, records, err := s.readFile(filePath, collection)
	if err != nil {
		return err
	}

	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if r[idField] != idValue {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return recordNotFound(idField, idValue, collection)
	}

	return s.rewrite(filePath, columns, kept)
}

// EditRecord rewrites the collection replacing the matching records with newRecord.
// The column header is left unchanged.
func (s *CSVStore) EditRecord(idField, idValue string, newRecord Record, collection string) error {
	s.logger.Debug("Editing record", "collection", collection, idField, idValue, "record", newRecord)

	filePath, err := s.paths.GetCollectionPath(collection, csvExt)
	if err != nil {
		return err
	}

	columns, records, err := s.readFile(filePath, collection)
	if err != nil {
		return err
	}
	if !newRecord.matchesColumns(columns) {
		return schemaError(collection, columns, newRecord)
	}

	found := false
	for i, r := range records {
		if r[idField] == idValue {
			records[i] = newRecord
			found = true
		}
	}
	if !found {
		return recordNotFound(idField, idValue, collection)
	}

	return s.rewrite(filePath, columns, records)
}

// ReplaceRecords writes records as the whole collection content.
func (s *CSVStore) ReplaceRecords(records []Record, collection string) error {
	s.logger.Debug("Replacing records", "collection", collection, "count", len(records))

	if len(records) == 0 {
		if err := s.RemoveCollection(collection); err != nil && !errors.Is(err, ErrCollectionNotFound) {
			return err
		}
		return nil
	}

	filePath, err := s.paths.GetCollectionPath(collection, csvExt)
	if err != nil {
		return err
	}

	columns := records[0].Columns()
	for _, r := range records[1:] {
		if !r.matchesColumns(columns) {
			return schemaError(collection, columns, r)
		}
	}

	if err := s.paths.EnsureParentDir(filePath); err != nil {
		return err
	}
	return s.rewrite(filePath, columns, records)
}

// RemoveCollection deletes the collection file.
func (s *CSVStore) RemoveCollection(collection string) error {
	s.logger.Debug("Removing collection", "collection", collection)

	filePath, err := s.paths.GetCollectionPath(collection, csvExt)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return collectionNotFound(collection)
		}
		return fmt.Errorf("failed to remove collection: %w", err)
	}
	return nil
}

// Collections lists collection names found below the namespace directory.
// Returns an empty slice if the namespace doesn't exist.
func (s *CSVStore) Collections(namespace string) ([]string, error) {
	root := s.paths.GetNamespaceDir(namespace)
	if !s.paths.IsDir(root) {
		return []string{}, nil
	}

	var collections []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(p) != csvExt {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.ToSlash(rel), csvExt)
		collections = append(collections, path.Join(namespace, name))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	return collections, nil
}

// Close is a no-op for CSVStore.
func (s *CSVStore) Close() error {
	return nil
}

// readFile reads the header and records of a collection file.
// An empty file yields nil columns.
func (s *CSVStore) readFile(filePath, collection string) ([]string, []Record, error) {
	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, collectionNotFound(collection)
		}
		return nil, nil, fmt.Errorf("failed to open collection: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	columns, err := r.Read()
	if err == io.EOF {
		return nil, []Record{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header of %s: %w", collection, err)
	}

	records := []Record{}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", collection, err)
		}

		record := make(Record, len(columns))
		for i, c := range columns {
			record[c] = row[i]
		}
		records = append(records, record)
	}

	return columns, records, nil
}

// rewrite writes the collection to a sibling temporary file and renames it
// over the collection file so a crash never leaves a half-written collection.
func (s *CSVStore) rewrite(filePath string, columns []string, records []Record) error {
	tmpPath := filePath + tmpSuffix

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	if err := writeRows(f, columns, records); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace collection file: %w", err)
	}
	return nil
}

func writeRows(w io.Writer, columns []string, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(toRow(r, columns)); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	return nil
}

func toRow(record Record, columns []string) []string {
	row := make([]string, len(columns))
	for i, c := range columns {
		row[i] = record[c]
	}
	return row
}
