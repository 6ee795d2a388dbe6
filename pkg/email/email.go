// Package email fetches bank notification emails and parses them into
// candidate transactions.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/fintool/pkg/store"
	"github.com/shunichi-ikebuchi/fintool/pkg/tagset"
)

var (
	// ErrUnsupportedEmailProvider is returned by BuildClient for unknown providers.
	ErrUnsupportedEmailProvider = errors.New("unsupported email provider")

	// ErrUnsupportedEmailType is returned by BuildParser for unknown email types.
	ErrUnsupportedEmailType = errors.New("unsupported email type")

	// ErrMissingField is returned when a required field is absent from an
	// email or a stored record.
	ErrMissingField = errors.New("missing field")

	// ErrInvalidDate is returned when a date string has an unexpected format.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidAmount is returned when an amount cannot be parsed.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Supported providers.
const ProviderGmail = "gmail"

// Record field names of TransactionEmail.
const (
	FieldConcept = "concept"
	FieldDate    = "date"
	FieldAmount  = "amount"
	FieldEmailID = "email_id"
	FieldTags    = "tags"
)

// DateLayout is the normalized date format of parsed emails.
const DateLayout = "2006-01-02"

// Email is a raw message returned by a provider.
type Email struct {
	UID     string
	Content string // HTML body
}

// EmailFromMap builds an Email from a uid/content map.
func EmailFromMap(data map[string]string) (Email, error) {
	uid, ok := data["uid"]
	if !ok {
		return Email{}, fmt.Errorf("%w: uid", ErrMissingField)
	}
	content, ok := data["content"]
	if !ok {
		return Email{}, fmt.Errorf("%w: content", ErrMissingField)
	}
	return Email{UID: uid, Content: content}, nil
}

// Client fetches emails from a provider.
type Client interface {
	// FetchEmails returns the messages of mailboxes received after
	// fromTimestamp (unix seconds, 0 for no lower bound).
	FetchEmails(ctx context.Context, mailboxes []string, fromTimestamp int64) ([]Email, error)
}

// ClientBuilder creates the client for a provider name.
type ClientBuilder func(ctx context.Context, provider string) (Client, error)

// NewClientBuilder returns a ClientBuilder that creates provider clients
// from cfg.
func NewClientBuilder(cfg GmailConfig, logger *slog.Logger) ClientBuilder {
	return func(ctx context.Context, provider string) (Client, error) {
		return BuildClient(ctx, provider, cfg, logger)
	}
}

// BuildClient creates the client for provider.
func BuildClient(ctx context.Context, provider string, cfg GmailConfig, logger *slog.Logger) (Client, error) {
	switch provider {
	case ProviderGmail:
		return NewGmailClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEmailProvider, provider)
	}
}

// TransactionEmail is a transaction parsed from an email, before it is
// committed. Tags is empty until a tag rule matches its concept.
type TransactionEmail struct {
	Concept string
	Date    time.Time
	Amount  decimal.Decimal
	EmailID string
	Tags    tagset.Set
}

// Record serializes the transaction email for the record store.
func (t *TransactionEmail) Record() store.Record {
	return store.Record{
		FieldConcept: t.Concept,
		FieldDate:    t.Date.Format(DateLayout),
		FieldAmount:  t.Amount.String(),
		FieldEmailID: t.EmailID,
		FieldTags:    t.Tags.String(),
	}
}

// TransactionEmailFromMap builds a TransactionEmail from parsed fields or a
// stored record. concept, date, amount and email_id are required; tags is
// optional.
func TransactionEmailFromMap(data map[string]string) (*TransactionEmail, error) {
	for _, field := range []string{FieldConcept, FieldDate, FieldAmount, FieldEmailID} {
		if _, ok := data[field]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, field)
		}
	}

	date, err := time.Parse(DateLayout, data[FieldDate])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, data[FieldDate])
	}
	amount, err := decimal.NewFromString(data[FieldAmount])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, data[FieldAmount])
	}

	return &TransactionEmail{
		Concept: strings.TrimSpace(data[FieldConcept]),
		Date:    date,
		Amount:  amount,
		EmailID: data[FieldEmailID],
		Tags:    tagset.Parse(data[FieldTags]),
	}, nil
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
