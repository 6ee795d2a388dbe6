package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/fintool/pkg/stats"
	"github.com/shunichi-ikebuchi/fintool/pkg/transaction"
)

var (
	statsFrom      string
	statsTo        string
	statsTxType    string
	statsChartType string
)

// statsCmd groups the statistics commands.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize transactions per month and tag",
}

var statsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the total per tag of every month",
	Long: `Show, for every month, the number of transactions and the total amount
per tag. A transaction counts toward each of its tags.

Example:
  fintool stats summary --from 2022-01-01 --to 2022-12-31`,
	Run: runStatsSummary,
}

var statsChartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Print chart data",
	Long: `Print the data of a bar, multiline or pie chart.

Bar and multiline charts have one column per month and one series per tag.
Pie charts have one column per tag with its total.

Example:
  fintool stats chart --type pie --from 2022-01-01 --to 2022-12-31`,
	Run: runStatsChart,
}

func init() {
	for _, c := range []*cobra.Command{statsSummaryCmd, statsChartCmd} {
		c.Flags().StringVar(&statsFrom, "from", "", "Start date (YYYY-MM-DD)")
		c.Flags().StringVar(&statsTo, "to", "", "End date (YYYY-MM-DD)")
		c.Flags().StringVar(&statsTxType, "tx-type", string(transaction.TypeOutcome), "Transaction type to summarize")
	}
	statsChartCmd.Flags().StringVar(&statsChartType, "type", string(stats.ChartBar), "Chart type: bar, multiline or pie")

	statsCmd.AddCommand(statsSummaryCmd, statsChartCmd)
}

func loadSummary() stats.OverallSummary {
	_, err := transaction.ParseType(statsTxType)
	exitOnError(err, "invalid transaction type")

	w := openWorkspace()
	defer w.Close()

	txs, err := listTransactions(w.transactions, statsFrom, statsTo, transaction.Filters{transaction.FieldType: statsTxType})
	exitOnError(err, "failed to list transactions")

	return stats.Summarize(txs)
}

func runStatsSummary(cmd *cobra.Command, args []string) {
	summary := loadSummary()

	periods := summary.Periods()
	if len(periods) == 0 {
		fmt.Println("No transactions found")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tTRANSACTIONS\tTAG\tTOTAL")
	for _, p := range periods {
		ms := summary.Month(p)
		fmt.Fprintf(tw, "%s\t%d\t\t\n", p.Label(), len(ms.Transactions))
		for _, tag := range summary.Tags() {
			if total, ok := ms.TotalPerTag[tag]; ok {
				fmt.Fprintf(tw, "\t\t%s\t%s\n", tag, total.StringFixed(2))
			}
		}
	}
	tw.Flush()
}

func runStatsChart(cmd *cobra.Command, args []string) {
	chartType, err := stats.ParseChartType(statsChartType)
	exitOnError(err, "invalid chart type")

	data, err := stats.BuildChart(chartType, loadSummary())
	exitOnError(err, "failed to build chart")

	fmt.Printf("\n=== %s (%s) ===\n", data.Title, data.Type)
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s\t%s\t\n", data.YLabel, strings.Join(data.Labels, "\t"))
	for _, s := range data.Series {
		values := make([]string, len(s.Values))
		for i, v := range s.Values {
			values[i] = v.StringFixed(2)
		}
		fmt.Fprintf(tw, "%s\t%s\t\n", s.Name, strings.Join(values, "\t"))
	}
	tw.Flush()
	fmt.Println()
}
