// Package store provides a minimal embedded record store.
//
// A collection is an ordered sequence of records that all share the same
// column set. Collections are addressed by name and may be namespaced with
// "/" (e.g., "transactions/2024/01"). There is no indexing: every read scans
// the whole collection and every edit rewrites it.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/shunichi-ikebuchi/fintool/pkg/pathutil"
)

var (
	// ErrCollectionNotFound is returned when a collection has never been created.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrRecordNotFound is returned when no record matches the given id.
	ErrRecordNotFound = errors.New("record not found")

	// ErrSchemaMismatch is returned when a record's fields differ from the collection columns.
	ErrSchemaMismatch = errors.New("record fields do not match collection columns")

	// ErrUnsupportedStoreType is returned by New for unknown store types.
	ErrUnsupportedStoreType = errors.New("unsupported store type")
)

// Supported store types.
const (
	TypeCSV  = "csv"
	TypeBolt = "bolt"
)

// Record is a flat string-keyed record. Values are never type-coerced.
type Record map[string]string

// Store defines the record store behavior.
type Store interface {
	// AddRecord appends record to collection, creating it with the record's
	// fields as columns if it does not exist.
	AddRecord(record Record, collection string) error

	// GetRecords returns every record in collection in insertion order.
	GetRecords(collection string) ([]Record, error)

	// RemoveRecord removes the records whose idField equals idValue.
	RemoveRecord(idField, idValue, collection string) error

	// EditRecord replaces the records whose idField equals idValue with newRecord.
	EditRecord(idField, idValue string, newRecord Record, collection string) error

	// ReplaceRecords atomically replaces the whole content of collection.
	// An empty slice removes the collection.
	ReplaceRecords(records []Record, collection string) error

	// RemoveCollection deletes collection.
	RemoveCollection(collection string) error

	// Collections lists the collections stored under namespace.
	Collections(namespace string) ([]string, error)

	// Close releases resources held by the store.
	Close() error
}

// New creates the store matching storeType.
func New(storeType string, paths *pathutil.PathResolver, logger *slog.Logger) (Store, error) {
	switch storeType {
	case "", TypeCSV:
		return NewCSVStore(paths, logger)
	case TypeBolt:
		return NewBoltStore(filepath.Join(paths.GetHomeDir(), "fintool.db"), logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStoreType, storeType)
	}
}

// Columns returns the record's field names in lexical order. This is the
// column header used when a collection is created from record.
func (r Record) Columns() []string {
	columns := make([]string, 0, len(r))
	for k := range r {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}

// matchesColumns reports whether the record has exactly the given columns.
func (r Record) matchesColumns(columns []string) bool {
	if len(r) != len(columns) {
		return false
	}
	for _, c := range columns {
		if _, ok := r[c]; !ok {
			return false
		}
	}
	return true
}

func schemaError(collection string, columns []string, record Record) error {
	return fmt.Errorf("%w: collection %s has %v, record has %v", ErrSchemaMismatch, collection, columns, record.Columns())
}

func collectionNotFound(collection string) error {
	return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
}

func recordNotFound(idField, idValue, collection string) error {
	return fmt.Errorf("%w: %s=%s in %s", ErrRecordNotFound, idField, idValue, collection)
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
