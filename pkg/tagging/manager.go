package tagging

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shunichi-ikebuchi/fintool/pkg/store"
	"github.com/shunichi-ikebuchi/fintool/pkg/tagset"
)

// Collection is the record store collection holding every tag.
const Collection = "tags"

// Manager provides CRUD over tag rules and concept lookup.
// Tags are cached after the first lookup and reloaded after any mutation.
type Manager struct {
	store  store.Store
	logger *slog.Logger
	cache  []*Tag
}

// NewManager creates a new tag manager.
func NewManager(s store.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  s,
		logger: logger.With("component", "tag_manager"),
	}
}

// Add stores a new tag.
func (m *Manager) Add(tag *Tag) error {
	if tag == nil {
		return ErrMissingTagArgument
	}
	m.logger.Debug("Adding tag", "id", tag.ID, "concept", tag.Concept)

	if err := m.store.AddRecord(tag.Record(), Collection); err != nil {
		return fmt.Errorf("failed to add tag: %w", err)
	}
	m.invalidate()
	return nil
}

// Update overwrites the stored tag with the same id.
func (m *Manager) Update(tag *Tag) error {
	if tag == nil {
		return ErrMissingTagArgument
	}
	m.logger.Debug("Updating tag", "id", tag.ID)

	if err := m.store.EditRecord(FieldID, tag.ID, tag.Record(), Collection); err != nil {
		return m.notFound(tag.ID, err)
	}
	m.invalidate()
	return nil
}

// Delete removes the tag with id.
func (m *Manager) Delete(id string) error {
	m.logger.Debug("Removing tag", "id", id)

	if err := m.store.RemoveRecord(FieldID, id, Collection); err != nil {
		return m.notFound(id, err)
	}
	m.invalidate()
	return nil
}

// List returns every stored tag. It is empty when no tag was ever added.
func (m *Manager) List() ([]*Tag, error) {
	records, err := m.store.GetRecords(Collection)
	if errors.Is(err, store.ErrCollectionNotFound) {
		return []*Tag{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tags: %w", err)
	}

	tags := make([]*Tag, 0, len(records))
	for _, r := range records {
		tag, err := FromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("failed to load tag %s: %w", r[FieldID], err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// Get returns the tag with id, or nil if there is none.
func (m *Manager) Get(id string) (*Tag, error) {
	tags, err := m.List()
	if err != nil {
		return nil, err
	}
	for _, tag := range tags {
		if tag.ID == id {
			return tag, nil
		}
	}
	return nil, nil
}

// MatchConcept returns the labels of the first tag whose concept equals
// concept exactly, or nil when no tag matches. It returns ErrNoTags when
// there are no tags at all.
func (m *Manager) MatchConcept(concept string) (tagset.Set, error) {
	if m.cache == nil {
		tags, err := m.List()
		if err != nil {
			return nil, err
		}
		m.cache = tags
	}
	if len(m.cache) == 0 {
		return nil, ErrNoTags
	}

	for _, tag := range m.cache {
		if tag.Concept == concept {
			return tag.Tags, nil
		}
	}
	return nil, nil
}

func (m *Manager) invalidate() {
	m.cache = nil
}

func (m *Manager) notFound(id string, err error) error {
	if errors.Is(err, store.ErrRecordNotFound) || errors.Is(err, store.ErrCollectionNotFound) {
		return fmt.Errorf("%w: %s", ErrTagNotFound, id)
	}
	return fmt.Errorf("failed to write tag %s: %w", id, err)
}
