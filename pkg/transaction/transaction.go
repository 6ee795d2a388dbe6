// Package transaction provides the transaction model and its date partitioned persistence.
package transaction

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/fintool/pkg/store"
	"github.com/shunichi-ikebuchi/fintool/pkg/tagset"
)

var (
	// ErrMissingField is returned when a required input key is absent.
	ErrMissingField = errors.New("missing field")

	// ErrInvalidFieldValue is returned when a field value fails validation.
	ErrInvalidFieldValue = errors.New("invalid field value")

	// ErrInvalidTransaction is returned when an operation receives no transaction.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrDuplicateEmail is returned when a partition already holds a
	// transaction created from the same email.
	ErrDuplicateEmail = errors.New("duplicate email transaction")
)

// Field names used in records and filters.
const (
	FieldID      = "id"
	FieldType    = "type"
	FieldDate    = "date"
	FieldAmount  = "amount"
	FieldTags    = "tags"
	FieldEmailID = "email_id"
)

// DateLayout is the on-disk and CLI date format.
const DateLayout = "2006-01-02"

// Type is the direction of a transaction.
type Type string

const (
	TypeIncome  Type = "income"
	TypeOutcome Type = "outcome"
)

// ParseType validates a transaction type string.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeIncome, TypeOutcome:
		return t, nil
	default:
		return "", &FieldError{Field: FieldType, Value: s, Err: ErrInvalidFieldValue}
	}
}

// FieldError describes which field failed validation.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if errors.Is(e.Err, ErrMissingField) {
		return fmt.Sprintf("%v: %s", e.Err, e.Field)
	}
	return fmt.Sprintf("%v %q for transaction %s", e.Err, e.Value, e.Field)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// DuplicateError names the stored transaction that already carries EmailID.
type DuplicateError struct {
	EmailID    string
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%v: email %s is stored as transaction %s", ErrDuplicateEmail, e.EmailID, e.ExistingID)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicateEmail
}

// Transaction is a single income or outcome entry.
type Transaction struct {
	ID      string
	Type    Type
	Date    time.Time
	Amount  decimal.Decimal
	Tags    tagset.Set
	EmailID string // provider message id, empty for manual entries
}

// New validates the given values and builds a Transaction.
// A new id is generated when id is empty.
func New(id string, txType Type, date time.Time, amount decimal.Decimal, tags tagset.Set, emailID string) (*Transaction, error) {
	if _, err := ParseType(string(txType)); err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, &FieldError{Field: FieldTags, Value: tags.String(), Err: ErrInvalidFieldValue}
	}
	if id == "" {
		id = NewID()
	}

	return &Transaction{
		ID:      id,
		Type:    txType,
		Date:    time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		Amount:  amount,
		Tags:    tags,
		EmailID: emailID,
	}, nil
}

// NewID returns a new opaque transaction id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FromMap builds a Transaction from untrusted string input such as CLI
// flags, a parsed email or a stored record. type, date, amount and tags are
// required; id and email_id are optional.
func FromMap(data map[string]string) (*Transaction, error) {
	get := func(field string) (string, error) {
		v, ok := data[field]
		if !ok {
			return "", &FieldError{Field: field, Err: ErrMissingField}
		}
		return v, nil
	}

	rawType, err := get(FieldType)
	if err != nil {
		return nil, err
	}
	rawDate, err := get(FieldDate)
	if err != nil {
		return nil, err
	}
	rawAmount, err := get(FieldAmount)
	if err != nil {
		return nil, err
	}
	rawTags, err := get(FieldTags)
	if err != nil {
		return nil, err
	}

	txType, err := ParseType(rawType)
	if err != nil {
		return nil, err
	}
	date, err := ParseDate(rawDate)
	if err != nil {
		return nil, err
	}
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return nil, err
	}

	return New(data[FieldID], txType, date, amount, tagset.Parse(rawTags), data[FieldEmailID])
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &FieldError{Field: FieldDate, Value: s, Err: ErrInvalidFieldValue}
	}
	return d, nil
}

// ParseAmount parses a finite decimal amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, &FieldError{Field: FieldAmount, Value: s, Err: ErrInvalidFieldValue}
	}
	return d, nil
}

// Record serializes the transaction for the record store.
func (t *Transaction) Record() store.Record {
	return store.Record{
		FieldID:      t.ID,
		FieldType:    string(t.Type),
		FieldDate:    t.DateString(),
		FieldAmount:  t.Amount.String(),
		FieldTags:    t.Tags.String(),
		FieldEmailID: t.EmailID,
	}
}

// DateString returns the date as YYYY-MM-DD.
func (t *Transaction) DateString() string {
	return t.Date.Format(DateLayout)
}

// Equal compares every field, amounts by value.
func (t *Transaction) Equal(other *Transaction) bool {
	return t.ID == other.ID &&
		t.Type == other.Type &&
		t.Date.Equal(other.Date) &&
		t.Amount.Equal(other.Amount) &&
		t.Tags.Equal(other.Tags) &&
		t.EmailID == other.EmailID
}

func (t *Transaction) String() string {
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%s", t.ID, t.Type, t.DateString(), t.Amount.StringFixed(2), t.Tags)
}
