// Package tagging manages the concept to labels rules used to tag transactions.
package tagging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shunichi-ikebuchi/fintool/pkg/store"
	"github.com/shunichi-ikebuchi/fintool/pkg/tagset"
)

var (
	// ErrMissingTagArgument is returned when a tag lacks its concept or tags.
	ErrMissingTagArgument = errors.New("missing tag argument")

	// ErrTagNotFound is returned when updating or deleting an unknown tag.
	ErrTagNotFound = errors.New("tag not found")

	// ErrNoTags is returned by MatchConcept when no tag rule exists at all.
	ErrNoTags = errors.New("no tags defined")
)

// Record field names.
const (
	FieldID      = "id"
	FieldConcept = "concept"
	FieldTags    = "tags"
)

// Tag maps a transaction concept to the labels it should receive.
type Tag struct {
	ID      string
	Concept string
	Tags    tagset.Set
}

// New validates concept and tags and builds a Tag. A new id is generated
// when id is empty.
func New(id, concept string, tags tagset.Set) (*Tag, error) {
	if concept == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingTagArgument, FieldConcept)
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingTagArgument, FieldTags)
	}
	if id == "" {
		id = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return &Tag{ID: id, Concept: concept, Tags: tags}, nil
}

// FromRecord builds a Tag from a stored or user supplied record.
func FromRecord(r store.Record) (*Tag, error) {
	return New(r[FieldID], r[FieldConcept], tagset.Parse(r[FieldTags]))
}

// Record serializes the tag for the record store.
func (t *Tag) Record() store.Record {
	return store.Record{
		FieldID:      t.ID,
		FieldConcept: t.Concept,
		FieldTags:    t.Tags.String(),
	}
}

func (t *Tag) String() string {
	return fmt.Sprintf("%s\t%s\t%s", t.ID, t.Concept, t.Tags)
}
