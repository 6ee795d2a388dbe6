package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/fintool/pkg/transaction"
)

var (
	txID      string
	txType    string
	txDate    string
	txAmount  string
	txTags    string
	txEmailID string
	txOldDate string
	txFrom    string
	txTo      string
)

// txCmd groups the transaction commands.
var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Manage income and outcome transactions",
}

var txAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a transaction",
	Long: `Add a transaction to the partition of its month.

Example:
  fintool tx add --type income --date 2022-01-01 --amount 12.3 --tags "a|b|c"`,
	Run: runTxAdd,
}

var txListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transactions",
	Long: `List transactions, optionally within the months of --from and --to.

Filter flags are combined with OR: a transaction is listed when it matches
any of them. --tags matches transactions sharing at least one tag.

Example:
  fintool tx list --from 2022-01-01 --to 2022-03-31 --tags food`,
	Run: runTxList,
}

var txRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a transaction",
	Run:   runTxRemove,
}

var txEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit a transaction",
	Long: `Edit the transaction --id stored under --old-date. Fields that are not
given keep their current value. Changing the month moves the transaction to
the new partition.

Example:
  fintool tx edit --id 3f2a... --old-date 2022-02-02 --date 2022-01-01`,
	Run: runTxEdit,
}

func init() {
	txAddCmd.Flags().StringVar(&txID, "id", "", "Transaction id (generated if empty)")
	txAddCmd.Flags().StringVar(&txType, "type", "", "income or outcome (required)")
	txAddCmd.Flags().StringVar(&txDate, "date", "", "Date (YYYY-MM-DD) (required)")
	txAddCmd.Flags().StringVar(&txAmount, "amount", "", "Amount (required)")
	txAddCmd.Flags().StringVar(&txTags, "tags", "", `Tags separated by "|" (required)`)
	txAddCmd.MarkFlagRequired("type")
	txAddCmd.MarkFlagRequired("date")
	txAddCmd.MarkFlagRequired("amount")
	txAddCmd.MarkFlagRequired("tags")

	txListCmd.Flags().StringVar(&txFrom, "from", "", "Start date (YYYY-MM-DD)")
	txListCmd.Flags().StringVar(&txTo, "to", "", "End date (YYYY-MM-DD)")
	txListCmd.Flags().StringVar(&txID, "id", "", "Filter by id")
	txListCmd.Flags().StringVar(&txType, "type", "", "Filter by type")
	txListCmd.Flags().StringVar(&txDate, "date", "", "Filter by date")
	txListCmd.Flags().StringVar(&txAmount, "amount", "", "Filter by amount")
	txListCmd.Flags().StringVar(&txTags, "tags", "", "Filter by tags")
	txListCmd.Flags().StringVar(&txEmailID, "email-id", "", "Filter by email id")

	txRemoveCmd.Flags().StringVar(&txID, "id", "", "Transaction id (required)")
	txRemoveCmd.Flags().StringVar(&txDate, "date", "", "Transaction date (YYYY-MM-DD) (required)")
	txRemoveCmd.MarkFlagRequired("id")
	txRemoveCmd.MarkFlagRequired("date")

	txEditCmd.Flags().StringVar(&txID, "id", "", "Transaction id (required)")
	txEditCmd.Flags().StringVar(&txOldDate, "old-date", "", "Current date of the transaction (required)")
	txEditCmd.Flags().StringVar(&txType, "type", "", "New type")
	txEditCmd.Flags().StringVar(&txDate, "date", "", "New date")
	txEditCmd.Flags().StringVar(&txAmount, "amount", "", "New amount")
	txEditCmd.Flags().StringVar(&txTags, "tags", "", "New tags")
	txEditCmd.MarkFlagRequired("id")
	txEditCmd.MarkFlagRequired("old-date")

	txCmd.AddCommand(txAddCmd, txListCmd, txRemoveCmd, txEditCmd)
}

func runTxAdd(cmd *cobra.Command, args []string) {
	tx, err := transaction.FromMap(map[string]string{
		transaction.FieldID:     txID,
		transaction.FieldType:   txType,
		transaction.FieldDate:   txDate,
		transaction.FieldAmount: txAmount,
		transaction.FieldTags:   txTags,
	})
	exitOnError(err, "invalid transaction")

	w := openWorkspace()
	defer w.Close()

	exitOnError(w.transactions.Save(tx), "failed to save transaction")
	slog.Info("Transaction added", "id", tx.ID)
	fmt.Println(tx.ID)
}

func runTxList(cmd *cobra.Command, args []string) {
	filters := transaction.Filters{}
	for flag, field := range map[string]string{
		"id":       transaction.FieldID,
		"type":     transaction.FieldType,
		"date":     transaction.FieldDate,
		"amount":   transaction.FieldAmount,
		"tags":     transaction.FieldTags,
		"email-id": transaction.FieldEmailID,
	} {
		if cmd.Flags().Changed(flag) {
			value, _ := cmd.Flags().GetString(flag)
			filters[field] = value
		}
	}

	w := openWorkspace()
	defer w.Close()

	txs, err := listTransactions(w.transactions, txFrom, txTo, filters)
	exitOnError(err, "failed to list transactions")

	printTransactions(txs)
}

// listTransactions lists the months between from and to, or every stored
// transaction when both are empty.
func listTransactions(m *transaction.Manager, from, to string, filters transaction.Filters) ([]*transaction.Transaction, error) {
	if from == "" && to == "" {
		return m.ListAll(filters)
	}
	if from == "" || to == "" {
		return nil, fmt.Errorf("--from and --to must be given together")
	}

	fromDate, err := transaction.ParseDate(from)
	if err != nil {
		return nil, err
	}
	toDate, err := transaction.ParseDate(to)
	if err != nil {
		return nil, err
	}
	return m.List(fromDate, toDate, filters)
}

func runTxRemove(cmd *cobra.Command, args []string) {
	date, err := transaction.ParseDate(txDate)
	exitOnError(err, "invalid date")

	w := openWorkspace()
	defer w.Close()

	exitOnError(w.transactions.Remove(date, txID), "failed to remove transaction")
	slog.Info("Transaction removed", "id", txID)
}

func runTxEdit(cmd *cobra.Command, args []string) {
	oldDate, err := transaction.ParseDate(txOldDate)
	exitOnError(err, "invalid old date")

	w := openWorkspace()
	defer w.Close()

	current, err := findTransaction(w.transactions, oldDate, txID)
	exitOnError(err, "failed to load transaction")

	fields := current.Record()
	for flag, value := range map[string]string{
		transaction.FieldType:   txType,
		transaction.FieldDate:   txDate,
		transaction.FieldAmount: txAmount,
		transaction.FieldTags:   txTags,
	} {
		if cmd.Flags().Changed(flag) {
			fields[flag] = value
		}
	}

	updated, err := transaction.FromMap(fields)
	exitOnError(err, "invalid transaction")

	exitOnError(w.transactions.Update(oldDate, updated), "failed to update transaction")
	slog.Info("Transaction updated", "id", updated.ID, "date", updated.DateString())
}

func findTransaction(m *transaction.Manager, date time.Time, id string) (*transaction.Transaction, error) {
	txs, err := m.List(date, date, transaction.Filters{transaction.FieldID: id})
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("transaction %s not found in %s", id, transaction.CollectionFromDate(date))
	}
	return txs[0], nil
}

func printTransactions(txs []*transaction.Transaction) {
	if len(txs) == 0 {
		fmt.Println("No transactions found")
		return
	}
	writeTransactions(os.Stdout, txs)
}

// writeTransactions prints txs as a table. AMOUNT is the last column and is
// padded before colouring, so escape codes never reach tabwriter's widths.
func writeTransactions(out io.Writer, txs []*transaction.Transaction) {
	income := color.New(color.FgGreen).SprintFunc()
	outcome := color.New(color.FgRed).SprintFunc()

	amounts := make([]string, len(txs))
	width := len("AMOUNT")
	for i, tx := range txs {
		amounts[i] = tx.Amount.StringFixed(2)
		if tx.Type != transaction.TypeIncome {
			amounts[i] = "-" + amounts[i]
		}
		width = max(width, len(amounts[i]))
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tDATE\tTYPE\tTAGS\t%*s\n", width, "AMOUNT")
	for i, tx := range txs {
		amount := fmt.Sprintf("%*s", width, amounts[i])
		if tx.Type == transaction.TypeIncome {
			amount = income(amount)
		} else {
			amount = outcome(amount)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", tx.ID, tx.DateString(), tx.Type, tx.Tags, amount)
	}
	tw.Flush()
}
