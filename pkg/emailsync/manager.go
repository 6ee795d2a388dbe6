// Package emailsync synchronizes transactions from bank notification emails.
//
// Parsed emails move through three stages: untagged (no tag rule matched
// their concept), pending (tagged, waiting for commit) and committed (saved
// as transactions).
package emailsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shunichi-ikebuchi/fintool/pkg/db"
	"github.com/shunichi-ikebuchi/fintool/pkg/email"
	"github.com/shunichi-ikebuchi/fintool/pkg/store"
	"github.com/shunichi-ikebuchi/fintool/pkg/tagging"
	"github.com/shunichi-ikebuchi/fintool/pkg/tagset"
	"github.com/shunichi-ikebuchi/fintool/pkg/transaction"
)

// Collections used by the sync pipeline.
const (
	PendingCollection  = "pending"
	UntaggedCollection = "untagged"
	LastSyncCollection = "lastsync"
)

// Last sync record fields.
const (
	FieldLastSync = "last_sync"
	FieldTarget   = "target"
)

// ErrInvalidLastSync is returned when a stored checkpoint cannot be read.
var ErrInvalidLastSync = errors.New("invalid last sync record")

// Details identifies what to synchronize.
type Details struct {
	Provider  string
	EmailType string
	Mailboxes []string
}

// Target is the checkpoint key of d. Mailbox order does not matter.
func (d Details) Target() string {
	mailboxes := append([]string(nil), d.Mailboxes...)
	sort.Strings(mailboxes)
	return fmt.Sprintf("%s,%s,%s", d.Provider, d.EmailType, strings.Join(mailboxes, tagset.Separator))
}

// TaggedTransaction is a parsed email whose concept matched a tag rule.
type TaggedTransaction = email.TransactionEmail

// LastSync is the checkpoint of a target, in unix seconds.
type LastSync struct {
	LastSync int64
	Target   string
}

func (l LastSync) record() store.Record {
	return store.Record{
		FieldLastSync: strconv.FormatInt(l.LastSync, 10),
		FieldTarget:   l.Target,
	}
}

// Result summarizes a sync run.
type Result struct {
	Fetched    int
	Skipped    int
	Pending    int
	Untagged   int
	Checkpoint int64
}

// History records sync runs and commits.
type History interface {
	RecordRun(run db.SyncRun) error
	RecordCommits(commits []db.CommittedEmail) error
	IsCommitted(emailID string) (bool, error)
	SetMetadata(key, value string) error
}

// Manager runs the sync pipeline.
type Manager struct {
	store        store.Store
	tags         *tagging.Manager
	transactions *transaction.Manager
	clients      email.ClientBuilder
	history      History
	logger       *slog.Logger
	now          func() time.Time
}

// NewManager creates a new sync manager. history may be nil.
func NewManager(s store.Store, tags *tagging.Manager, transactions *transaction.Manager, clients email.ClientBuilder, history History, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:        s,
		tags:         tags,
		transactions: transactions,
		clients:      clients,
		history:      history,
		logger:       logger.With("component", "sync_manager"),
		now:          time.Now,
	}
}

// SyncTransactions fetches the emails received since the last sync of d,
// parses and tags them, and stores each one as pending or untagged.
// Emails that cannot be parsed are skipped.
func (m *Manager) SyncTransactions(ctx context.Context, d Details) (*Result, error) {
	parser, err := email.BuildParser(d.EmailType)
	if err != nil {
		return nil, err
	}
	client, err := m.clients(ctx, d.Provider)
	if err != nil {
		return nil, err
	}

	last, err := m.GetLastSync(d)
	if err != nil {
		return nil, err
	}
	var from int64
	if last != nil {
		from = last.LastSync
	}

	// emails received while fetching are picked up by the next run
	checkpoint := m.now().Unix()

	emails, err := client.FetchEmails(ctx, d.Mailboxes, from)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch emails: %w", err)
	}
	result := &Result{Fetched: len(emails), Checkpoint: checkpoint}

	known, err := m.knownEmailIDs()
	if err != nil {
		return nil, err
	}

	var parsed []*email.TransactionEmail
	for _, e := range emails {
		te, err := parser.Parse(e)
		if err != nil {
			m.logger.Warn("Skipping unparseable email", "uid", e.UID, "error", err)
			result.Skipped++
			continue
		}
		seen, err := m.alreadySeen(te.EmailID, known)
		if err != nil {
			return nil, err
		}
		if seen {
			m.logger.Info("Skipping already synced email", "uid", te.EmailID)
			result.Skipped++
			continue
		}
		known[te.EmailID] = true
		parsed = append(parsed, te)
	}

	tagged, untagged, err := m.tagTransactionEmails(parsed)
	if err != nil {
		return nil, err
	}
	if err := m.saveTransactionEmails(tagged, PendingCollection); err != nil {
		return nil, err
	}
	if err := m.saveTransactionEmails(untagged, UntaggedCollection); err != nil {
		return nil, err
	}
	result.Pending, result.Untagged = len(tagged), len(untagged)

	if err := m.updateLastSync(LastSync{LastSync: checkpoint, Target: d.Target()}); err != nil {
		return nil, err
	}

	if m.history != nil {
		err := m.history.RecordRun(db.SyncRun{
			Provider:   d.Provider,
			EmailType:  d.EmailType,
			Mailboxes:  strings.Join(d.Mailboxes, tagset.Separator),
			Fetched:    result.Fetched,
			Skipped:    result.Skipped,
			Pending:    result.Pending,
			Untagged:   result.Untagged,
			Checkpoint: checkpoint,
		})
		if err != nil {
			return nil, err
		}
	}

	m.logger.Info("Sync finished", "target", d.Target(), "fetched", result.Fetched,
		"pending", result.Pending, "untagged", result.Untagged, "skipped", result.Skipped)
	return result, nil
}

// TagTransactions retries tagging every untagged email. Matches move to
// pending and the untagged collection is rewritten with the rest. It
// returns the number of emails moved.
func (m *Manager) TagTransactions() (int, error) {
	untagged, err := m.LoadUntaggedTransactions()
	if err != nil {
		return 0, err
	}
	if len(untagged) == 0 {
		return 0, nil
	}

	tagged, remaining, err := m.tagTransactionEmails(untagged)
	if err != nil {
		return 0, err
	}
	if len(tagged) == 0 {
		return 0, nil
	}

	if err := m.saveTransactionEmails(tagged, PendingCollection); err != nil {
		return 0, err
	}

	records := make([]store.Record, len(remaining))
	for i, te := range remaining {
		records[i] = te.Record()
	}
	if err := m.store.ReplaceRecords(records, UntaggedCollection); err != nil {
		return 0, fmt.Errorf("failed to rewrite untagged transactions: %w", err)
	}

	m.logger.Info("Tagged transactions", "tagged", len(tagged), "untagged", len(remaining))
	return len(tagged), nil
}

// CommitTransactions saves every pending email as an outcome transaction
// and clears the pending collection. An email already stored as a
// transaction is not saved again and its history row keeps the stored id.
// It returns the number of transactions saved.
func (m *Manager) CommitTransactions() (int, error) {
	pending, err := m.LoadPendingTransactions()
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	txs := make([]*transaction.Transaction, len(pending))
	for i, p := range pending {
		tx, err := transaction.New("", transaction.TypeOutcome, p.Date, p.Amount, p.Tags, p.EmailID)
		if err != nil {
			return 0, fmt.Errorf("invalid pending transaction %s: %w", p.EmailID, err)
		}
		txs[i] = tx
	}

	commits := make([]db.CommittedEmail, 0, len(txs))
	saved := 0
	for i, tx := range txs {
		txID := tx.ID
		err := m.transactions.Save(tx)
		var dup *transaction.DuplicateError
		switch {
		case errors.As(err, &dup):
			txID = dup.ExistingID
		case err != nil:
			return 0, err
		default:
			saved++
		}
		commits = append(commits, db.CommittedEmail{
			EmailID:         tx.EmailID,
			TransactionID:   txID,
			TransactionDate: tx.DateString(),
			Amount:          tx.Amount.String(),
			Concept:         pending[i].Concept,
		})
	}

	if err := m.store.RemoveCollection(PendingCollection); err != nil && !errors.Is(err, store.ErrCollectionNotFound) {
		return 0, fmt.Errorf("failed to clear pending transactions: %w", err)
	}

	if m.history != nil {
		if err := m.history.RecordCommits(commits); err != nil {
			return 0, err
		}
		if err := m.history.SetMetadata(db.MetadataLastCommit, m.now().UTC().Format(time.RFC3339)); err != nil {
			return 0, err
		}
	}

	m.logger.Info("Committed transactions", "count", saved, "duplicates", len(txs)-saved)
	return saved, nil
}

// LoadPendingTransactions returns the tagged emails waiting for commit.
func (m *Manager) LoadPendingTransactions() ([]*TaggedTransaction, error) {
	return m.loadTransactionEmails(PendingCollection)
}

// LoadUntaggedTransactions returns the emails no tag rule matched.
func (m *Manager) LoadUntaggedTransactions() ([]*email.TransactionEmail, error) {
	return m.loadTransactionEmails(UntaggedCollection)
}

// CreateConceptsSet returns the distinct concepts of untagged emails in
// lexical order.
func (m *Manager) CreateConceptsSet() ([]string, error) {
	untagged, err := m.LoadUntaggedTransactions()
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	concepts := []string{}
	for _, te := range untagged {
		if !seen[te.Concept] {
			seen[te.Concept] = true
			concepts = append(concepts, te.Concept)
		}
	}
	sort.Strings(concepts)
	return concepts, nil
}

// GetLastSync returns the checkpoint of d, or nil before the first sync.
func (m *Manager) GetLastSync(d Details) (*LastSync, error) {
	records, err := m.store.GetRecords(LastSyncCollection)
	if errors.Is(err, store.ErrCollectionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last sync: %w", err)
	}

	target := d.Target()
	for _, r := range records {
		if r[FieldTarget] != target {
			continue
		}
		ts, err := strconv.ParseInt(r[FieldLastSync], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidLastSync, r[FieldLastSync])
		}
		return &LastSync{LastSync: ts, Target: target}, nil
	}
	return nil, nil
}

func (m *Manager) updateLastSync(l LastSync) error {
	err := m.store.EditRecord(FieldTarget, l.Target, l.record(), LastSyncCollection)
	if errors.Is(err, store.ErrRecordNotFound) || errors.Is(err, store.ErrCollectionNotFound) {
		err = m.store.AddRecord(l.record(), LastSyncCollection)
	}
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	m.logger.Debug("Updated last sync", "target", l.Target, "last_sync", l.LastSync)
	return nil
}

// tagTransactionEmails splits emails into tagged and untagged ones. When no
// tag rule exists every email is untagged.
func (m *Manager) tagTransactionEmails(emails []*email.TransactionEmail) (tagged, untagged []*email.TransactionEmail, err error) {
	for _, te := range emails {
		tags, matchErr := m.tags.MatchConcept(te.Concept)
		if errors.Is(matchErr, tagging.ErrNoTags) {
			m.logger.Debug("No tags defined, all transactions are untagged")
			return nil, emails, nil
		}
		if matchErr != nil {
			return nil, nil, fmt.Errorf("failed to match concept of email %s: %w", te.EmailID, matchErr)
		}

		if tags == nil {
			untagged = append(untagged, te)
			continue
		}
		te.Tags = tags
		tagged = append(tagged, te)
	}
	return tagged, untagged, nil
}

func (m *Manager) saveTransactionEmails(emails []*email.TransactionEmail, collection string) error {
	for _, te := range emails {
		if err := m.store.AddRecord(te.Record(), collection); err != nil {
			return fmt.Errorf("failed to save email %s to %s: %w", te.EmailID, collection, err)
		}
	}
	return nil
}

func (m *Manager) loadTransactionEmails(collection string) ([]*email.TransactionEmail, error) {
	records, err := m.store.GetRecords(collection)
	if errors.Is(err, store.ErrCollectionNotFound) {
		return []*email.TransactionEmail{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", collection, err)
	}

	emails := make([]*email.TransactionEmail, 0, len(records))
	for _, r := range records {
		te, err := email.TransactionEmailFromMap(r)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s record: %w", collection, err)
		}
		emails = append(emails, te)
	}
	return emails, nil
}

// knownEmailIDs returns the ids of emails already waiting in pending or
// untagged.
func (m *Manager) knownEmailIDs() (map[string]bool, error) {
	known := map[string]bool{}
	for _, collection := range []string{PendingCollection, UntaggedCollection} {
		emails, err := m.loadTransactionEmails(collection)
		if err != nil {
			return nil, err
		}
		for _, te := range emails {
			known[te.EmailID] = true
		}
	}
	return known, nil
}

func (m *Manager) alreadySeen(emailID string, known map[string]bool) (bool, error) {
	if known[emailID] {
		return true, nil
	}
	if m.history == nil {
		return false, nil
	}
	return m.history.IsCommitted(emailID)
}
