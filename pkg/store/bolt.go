package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// schemaBucket maps each collection name to its JSON encoded column list.
const schemaBucket = "_schema"

// BoltStore is a Store backed by a single bbolt database file.
// Each collection is a bucket whose keys are insertion sequence numbers.
type BoltStore struct {
	db     *bolt.DB
	logger *slog.Logger
}

// NewBoltStore opens (or creates) the database at dbPath.
func NewBoltStore(dbPath string, logger *slog.Logger) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(schemaBucket)); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", schemaBucket, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{
		db:     db,
		logger: orDefault(logger).With("component", "bolt_store"),
	}, nil
}

// AddRecord appends a record to the collection bucket.
func (s *BoltStore) AddRecord(record Record, collection string) error {
	s.logger.Debug("Adding record", "collection", collection, "record", record)

	return s.db.Update(func(tx *bolt.Tx) error {
		columns, err := getColumns(tx, collection)
		if err != nil {
			return err
		}
		if columns == nil {
			if err := putColumns(tx, collection, record.Columns()); err != nil {
				return err
			}
		} else if !record.matchesColumns(columns) {
			return schemaError(collection, columns, record)
		}

		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", collection, err)
		}
		return appendRecord(b, record)
	})
}

// GetRecords returns all records in the collection bucket.
func (s *BoltStore) GetRecords(collection string) ([]Record, error) {
	s.logger.Debug("Getting records", "collection", collection)

	records := []Record{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return collectionNotFound(collection)
		}

		return b.ForEach(func(k, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			records = append(records, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// RemoveRecord deletes the matching records from the collection bucket.
func (s *BoltStore) RemoveRecord(idField, idValue, collection string) error {
	s.logger.Debug("Removing record", "collection", collection, idField, idValue)

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return collectionNotFound(collection)
		}

		keys, err := matchingKeys(b, idField, idValue)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return recordNotFound(idField, idValue, collection)
		}

		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("failed to delete record: %w", err)
			}
		}
		return nil
	})
}

// EditRecord overwrites the matching records, keeping their position.
func (s *BoltStore) EditRecord(idField, idValue string, newRecord Record, collection string) error {
	s.logger.Debug("Editing record", "collection", collection, idField, idValue, "record", newRecord)

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return collectionNotFound(collection)
		}

		columns, err := getColumns(tx, collection)
		if err != nil {
			return err
		}
		if !newRecord.matchesColumns(columns) {
			return schemaError(collection, columns, newRecord)
		}

		keys, err := matchingKeys(b, idField, idValue)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return recordNotFound(idField, idValue, collection)
		}

		data, err := json.Marshal(newRecord)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		for _, k := range keys {
			if err := b.Put(k, data); err != nil {
				return fmt.Errorf("failed to put record: %w", err)
			}
		}
		return nil
	})
}

// ReplaceRecords drops the collection bucket and refills it in one transaction.
func (s *BoltStore) ReplaceRecords(records []Record, collection string) error {
	s.logger.Debug("Replacing records", "collection", collection, "count", len(records))

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := dropCollection(tx, collection); err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		columns := records[0].Columns()
		for _, r := range records[1:] {
			if !r.matchesColumns(columns) {
				return schemaError(collection, columns, r)
			}
		}
		if err := putColumns(tx, collection, columns); err != nil {
			return err
		}

		b, err := tx.CreateBucket([]byte(collection))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", collection, err)
		}
		for _, r := range records {
			if err := appendRecord(b, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveCollection deletes the collection bucket and its schema entry.
func (s *BoltStore) RemoveCollection(collection string) error {
	s.logger.Debug("Removing collection", "collection", collection)

	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(collection)) == nil {
			return collectionNotFound(collection)
		}
		return dropCollection(tx, collection)
	})
}

// Collections lists bucket names below namespace.
func (s *BoltStore) Collections(namespace string) ([]string, error) {
	prefix := namespace + "/"
	collections := []string{}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			n := string(name)
			if n != schemaBucket && strings.HasPrefix(n, prefix) {
				collections = append(collections, n)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	sort.Strings(collections)
	return collections, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func getColumns(tx *bolt.Tx, collection string) ([]string, error) {
	data := tx.Bucket([]byte(schemaBucket)).Get([]byte(collection))
	if data == nil {
		return nil, nil
	}
	var columns []string
	if err := json.Unmarshal(data, &columns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal columns of %s: %w", collection, err)
	}
	return columns, nil
}

func putColumns(tx *bolt.Tx, collection string, columns []string) error {
	data, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("failed to marshal columns: %w", err)
	}
	return tx.Bucket([]byte(schemaBucket)).Put([]byte(collection), data)
}

func dropCollection(tx *bolt.Tx, collection string) error {
	if tx.Bucket([]byte(collection)) != nil {
		if err := tx.DeleteBucket([]byte(collection)); err != nil {
			return fmt.Errorf("failed to delete bucket %s: %w", collection, err)
		}
	}
	return tx.Bucket([]byte(schemaBucket)).Delete([]byte(collection))
}

func appendRecord(b *bolt.Bucket, record Record) error {
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return b.Put(itob(seq), data)
}

// matchingKeys collects keys first since a bucket must not be modified inside ForEach.
func matchingKeys(b *bolt.Bucket, idField, idValue string) ([][]byte, error) {
	var keys [][]byte
	err := b.ForEach(func(k, v []byte) error {
		var r Record
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		if r[idField] == idValue {
			copied := make([]byte, len(k))
			copy(copied, k)
			keys = append(keys, copied)
		}
		return nil
	})
	return keys, err
}

// itob converts a sequence number to a big endian key so ForEach keeps insertion order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
