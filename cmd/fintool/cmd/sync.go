package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/fintool/pkg/email"
	"github.com/shunichi-ikebuchi/fintool/pkg/emailsync"
)

var (
	syncProvider  string
	syncEmailType string
	syncMailboxes []string
	syncRunsLimit int
)

// syncCmd groups the email sync commands.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync transactions from bank notification emails",
	Long: `Sync transactions from bank notification emails.

Synced emails are parsed and tagged with the tag rules. Tagged emails wait
in pending until they are committed as outcome transactions; emails whose
concept matches no rule wait in untagged until a rule is added and
"sync tag" runs again.

Example:
  fintool sync run --email-type banamex --mailbox banamex
  fintool sync concepts
  fintool tag add --concept "OXXO" --tags groceries
  fintool sync tag
  fintool sync commit`,
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch and parse new emails",
	Long: `Fetch the emails received since the last sync of the same provider,
email type and mailboxes, parse them and store them as pending or untagged.

This command:
1. Fetches new emails from the mailboxes
2. Parses them with the parser of --email-type
3. Skips emails already pending, untagged or committed
4. Tags them with the tag rules
5. Records the checkpoint and the run in the sync history`,
	Run: runSyncRun,
}

var syncPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show tagged emails waiting for commit",
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()
		defer w.Close()

		pending, err := newSyncManager(w, nil).LoadPendingTransactions()
		exitOnError(err, "failed to load pending transactions")
		printTransactionEmails(pending)
	},
}

var syncUntaggedCmd = &cobra.Command{
	Use:   "untagged",
	Short: "Show emails no tag rule matched",
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()
		defer w.Close()

		untagged, err := newSyncManager(w, nil).LoadUntaggedTransactions()
		exitOnError(err, "failed to load untagged transactions")
		printTransactionEmails(untagged)
	},
}

var syncConceptsCmd = &cobra.Command{
	Use:   "concepts",
	Short: "List the concepts of untagged emails",
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()
		defer w.Close()

		concepts, err := newSyncManager(w, nil).CreateConceptsSet()
		exitOnError(err, "failed to collect concepts")
		for _, c := range concepts {
			fmt.Println(c)
		}
	},
}

var syncTagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Tag untagged emails with the current tag rules",
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()
		defer w.Close()

		moved, err := newSyncManager(w, nil).TagTransactions()
		exitOnError(err, "failed to tag transactions")
		fmt.Printf("Tagged %d transactions\n", moved)
	},
}

var syncCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Save pending emails as transactions",
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()
		defer w.Close()

		history := openHistory()
		defer history.Close()

		committed, err := newSyncManager(w, history).CommitTransactions()
		exitOnError(err, "failed to commit transactions")
		fmt.Printf("Committed %d transactions\n", committed)
	},
}

var syncStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display sync statistics",
	Long: `Display statistics about sync runs and committed emails.

Shows:
- Total number of sync runs and fetched emails
- Total number of committed emails
- Last sync and last commit timestamps
- The most recent runs`,
	Run: runSyncStats,
}

func init() {
	syncRunCmd.Flags().StringVar(&syncProvider, "provider", email.ProviderGmail, "Email provider")
	syncRunCmd.Flags().StringVar(&syncEmailType, "email-type", "", "Email type: banamex or heybanco (required)")
	syncRunCmd.Flags().StringSliceVar(&syncMailboxes, "mailbox", nil, "Mailbox (label) to read, repeatable (required)")
	syncRunCmd.MarkFlagRequired("email-type")
	syncRunCmd.MarkFlagRequired("mailbox")

	syncStatsCmd.Flags().IntVar(&syncRunsLimit, "runs", 5, "Number of recent runs to show")

	syncCmd.AddCommand(syncRunCmd, syncPendingCmd, syncUntaggedCmd, syncConceptsCmd, syncTagCmd, syncCommitCmd, syncStatsCmd)
}

func newSyncManager(w *workspace, history emailsync.History) *emailsync.Manager {
	clients := email.NewClientBuilder(email.GmailConfig{
		CredentialsPath: cfg.Gmail.CredentialsPath,
		TokenPath:       cfg.Gmail.TokenPath,
		APIEndpoint:     cfg.Gmail.APIEndpoint,
		AccessToken:     cfg.Gmail.AccessToken,
		FetchDelay:      cfg.Gmail.FetchDelay,
		RequestTimeout:  cfg.Gmail.RequestTimeout,
		PageSize:        cfg.Gmail.PageSize,
	}, slog.Default())

	return emailsync.NewManager(w.store, w.tags, w.transactions, clients, history, slog.Default())
}

func runSyncRun(cmd *cobra.Command, args []string) {
	slog.Info("Starting sync", "provider", syncProvider, "email_type", syncEmailType, "mailboxes", syncMailboxes)

	if syncProvider == email.ProviderGmail && cfg.Gmail.APIEndpoint == "" {
		exitOnError(cfg.Validate([]string{"gmail", "credentialsPath"}, []string{"gmail", "tokenPath"}), "invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := openWorkspace()
	defer w.Close()

	history := openHistory()
	defer history.Close()

	result, err := newSyncManager(w, history).SyncTransactions(ctx, emailsync.Details{
		Provider:  syncProvider,
		EmailType: syncEmailType,
		Mailboxes: syncMailboxes,
	})
	exitOnError(err, "failed to sync transactions")

	fmt.Println("\n=== Sync Result ===")
	fmt.Printf("Fetched:   %d\n", result.Fetched)
	fmt.Printf("Skipped:   %d\n", result.Skipped)
	fmt.Printf("Pending:   %d\n", result.Pending)
	fmt.Printf("Untagged:  %d\n", result.Untagged)
	fmt.Println()
}

func runSyncStats(cmd *cobra.Command, args []string) {
	history := openHistory()
	defer history.Close()

	stats, err := history.GetStats()
	exitOnError(err, "failed to get statistics")

	fmt.Println("\n=== Sync Statistics ===")
	fmt.Printf("Total sync runs:       %d\n", stats.TotalRuns)
	fmt.Printf("Total fetched emails:  %d\n", stats.TotalFetched)
	fmt.Printf("Total committed:       %d\n", stats.TotalCommitted)

	if stats.LastSync.Valid {
		fmt.Printf("Last sync:             %s\n", stats.LastSync.String)
	} else {
		fmt.Printf("Last sync:             (never)\n")
	}
	if stats.LastCommit != "" {
		fmt.Printf("Last commit:           %s\n", stats.LastCommit)
	} else {
		fmt.Printf("Last commit:           (never)\n")
	}

	runs, err := history.ListRuns(syncRunsLimit)
	exitOnError(err, "failed to list sync runs")
	if len(runs) > 0 {
		fmt.Println("\n=== Recent Runs ===")
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SYNCED AT\tTYPE\tMAILBOXES\tFETCHED\tPENDING\tUNTAGGED\tSKIPPED")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
				r.SyncedAt.Format("2006-01-02 15:04:05"), r.EmailType, r.Mailboxes, r.Fetched, r.Pending, r.Untagged, r.Skipped)
		}
		tw.Flush()
	}

	fmt.Println()
}

func printTransactionEmails(emails []*email.TransactionEmail) {
	if len(emails) == 0 {
		fmt.Println("Nothing to show")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL ID\tDATE\tAMOUNT\tCONCEPT\tTAGS")
	for _, e := range emails {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.EmailID, e.Date.Format(email.DateLayout), e.Amount.StringFixed(2), e.Concept, e.Tags)
	}
	tw.Flush()
}
