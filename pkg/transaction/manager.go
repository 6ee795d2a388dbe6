package transaction

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/shunichi-ikebuchi/fintool/pkg/store"
	"github.com/shunichi-ikebuchi/fintool/pkg/tagset"
)

// Namespace is the collection prefix for transaction partitions.
const Namespace = "transactions"

// Filters maps a field name to the value it must match. A transaction is
// kept when it matches ANY of the filters. For tags the value is a label set
// and matches when it intersects the transaction's tags.
type Filters map[string]string

// Manager persists transactions into monthly partitions of the record store.
type Manager struct {
	store  store.Store
	logger *slog.Logger
}

// NewManager creates a new transaction manager.
func NewManager(s store.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  s,
		logger: logger.With("component", "transaction_manager"),
	}
}

// CollectionFromDate returns the "YYYY/MM" partition key of date.
func CollectionFromDate(date time.Time) string {
	return fmt.Sprintf("%04d/%02d", date.Year(), int(date.Month()))
}

// CollectionsFromDateRange returns every partition key from the month of
// from up to the month of to, inclusive. It is empty when to precedes from.
func CollectionsFromDateRange(from, to time.Time) []string {
	cur := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)

	var collections []string
	for !cur.After(end) {
		collections = append(collections, CollectionFromDate(cur))
		cur = cur.AddDate(0, 1, 0)
	}
	return collections
}

// NeedsMove reports whether a transaction dated oldDate must change
// partition when its date becomes newDate.
func NeedsMove(oldDate, newDate time.Time) bool {
	return oldDate.Year() != newDate.Year() || oldDate.Month() != newDate.Month()
}

func collectionPath(partition string) string {
	return path.Join(Namespace, partition)
}

// Save stores tx in its partition. A transaction carrying an email id that
// is already present in the partition is not stored; Save returns a
// *DuplicateError naming the stored transaction instead.
func (m *Manager) Save(tx *Transaction) error {
	if tx == nil {
		return ErrInvalidTransaction
	}
	collection := collectionPath(CollectionFromDate(tx.Date))

	if tx.EmailID != "" {
		records, err := m.store.GetRecords(collection)
		if err != nil && !errors.Is(err, store.ErrCollectionNotFound) {
			return fmt.Errorf("failed to read partition %s: %w", collection, err)
		}
		for _, r := range records {
			if r[FieldEmailID] == tx.EmailID {
				m.logger.Info("Skipping duplicate transaction", "email_id", tx.EmailID, "collection", collection)
				return &DuplicateError{EmailID: tx.EmailID, ExistingID: r[FieldID]}
			}
		}
	}

	if err := m.store.AddRecord(tx.Record(), collection); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	m.logger.Debug("Saved transaction", "id", tx.ID, "collection", collection)
	return nil
}

// List returns the transactions dated within the months of from and to that
// match filters. Missing partitions are treated as empty.
func (m *Manager) List(from, to time.Time, filters Filters) ([]*Transaction, error) {
	partitions := CollectionsFromDateRange(from, to)
	collections := make([]string, len(partitions))
	for i, p := range partitions {
		collections[i] = collectionPath(p)
	}
	return m.load(collections, filters)
}

// ListAll returns every stored transaction matching filters.
func (m *Manager) ListAll(filters Filters) ([]*Transaction, error) {
	collections, err := m.store.Collections(Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	return m.load(collections, filters)
}

func (m *Manager) load(collections []string, filters Filters) ([]*Transaction, error) {
	var result []*Transaction
	for _, collection := range collections {
		records, err := m.store.GetRecords(collection)
		if errors.Is(err, store.ErrCollectionNotFound) {
			m.logger.Debug("Partition not found, skipping", "collection", collection)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read partition %s: %w", collection, err)
		}

		for _, r := range records {
			tx, err := FromMap(r)
			if err != nil {
				return nil, fmt.Errorf("failed to load transaction from %s: %w", collection, err)
			}
			if filters.Match(tx) {
				result = append(result, tx)
			}
		}
	}
	return result, nil
}

// Remove deletes the transaction with id from the partition of date.
func (m *Manager) Remove(date time.Time, id string) error {
	collection := collectionPath(CollectionFromDate(date))
	if err := m.store.RemoveRecord(FieldID, id, collection); err != nil {
		return fmt.Errorf("failed to remove transaction %s: %w", id, err)
	}
	m.logger.Debug("Removed transaction", "id", id, "collection", collection)
	return nil
}

// Update replaces the transaction with tx.ID stored under oldDate. The
// record moves to a new partition when the month changes.
func (m *Manager) Update(oldDate time.Time, tx *Transaction) error {
	if tx == nil {
		return ErrInvalidTransaction
	}

	if NeedsMove(oldDate, tx.Date) {
		if err := m.Remove(oldDate, tx.ID); err != nil {
			return err
		}
		if err := m.store.AddRecord(tx.Record(), collectionPath(CollectionFromDate(tx.Date))); err != nil {
			return fmt.Errorf("failed to save moved transaction: %w", err)
		}
		m.logger.Debug("Moved transaction", "id", tx.ID, "from", CollectionFromDate(oldDate), "to", CollectionFromDate(tx.Date))
		return nil
	}

	collection := collectionPath(CollectionFromDate(oldDate))
	if err := m.store.EditRecord(FieldID, tx.ID, tx.Record(), collection); err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", tx.ID, err)
	}
	return nil
}

// Match reports whether tx satisfies at least one filter. An empty filter
// set matches everything. Unknown fields and unparseable values never match.
func (f Filters) Match(tx *Transaction) bool {
	if len(f) == 0 {
		return true
	}
	for field, value := range f {
		if matchField(tx, field, value) {
			return true
		}
	}
	return false
}

func matchField(tx *Transaction, field, value string) bool {
	switch field {
	case FieldTags:
		return tx.Tags.Intersects(tagset.Parse(value))
	case FieldID:
		return tx.ID == value
	case FieldType:
		return string(tx.Type) == value
	case FieldEmailID:
		return tx.EmailID == value
	case FieldDate:
		d, err := ParseDate(value)
		return err == nil && d.Equal(tx.Date)
	case FieldAmount:
		a, err := ParseAmount(value)
		return err == nil && a.Equal(tx.Amount)
	default:
		return false
	}
}
