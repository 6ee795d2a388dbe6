// Package stats aggregates transactions into monthly summaries and chart data.
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/fintool/pkg/transaction"
)

// MonthSummary holds the transactions of one month and the amount spent per tag.
type MonthSummary struct {
	Transactions []*transaction.Transaction
	TotalPerTag  map[string]decimal.Decimal
}

// OverallSummary groups month summaries by year and month.
type OverallSummary map[int]map[time.Month]*MonthSummary

// Summarize builds the overall summary of txs. A transaction adds its amount
// to the total of each of its tags.
func Summarize(txs []*transaction.Transaction) OverallSummary {
	summary := OverallSummary{}
	for _, tx := range txs {
		year, month := tx.Date.Year(), tx.Date.Month()
		months, ok := summary[year]
		if !ok {
			months = map[time.Month]*MonthSummary{}
			summary[year] = months
		}
		ms, ok := months[month]
		if !ok {
			ms = &MonthSummary{TotalPerTag: map[string]decimal.Decimal{}}
			months[month] = ms
		}

		ms.Transactions = append(ms.Transactions, tx)
		for _, tag := range tx.Tags.Slice() {
			ms.TotalPerTag[tag] = ms.TotalPerTag[tag].Add(tx.Amount)
		}
	}
	return summary
}

// Period is a calendar month present in a summary.
type Period struct {
	Year  int
	Month time.Month
}

// Label formats the period as YYYY-MM.
func (p Period) Label() string {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

// Periods returns the months of the summary in chronological order.
func (s OverallSummary) Periods() []Period {
	var periods []Period
	for year, months := range s {
		for month := range months {
			periods = append(periods, Period{Year: year, Month: month})
		}
	}
	sort.Slice(periods, func(i, j int) bool {
		if periods[i].Year != periods[j].Year {
			return periods[i].Year < periods[j].Year
		}
		return periods[i].Month < periods[j].Month
	})
	return periods
}

// Month returns the summary of a period, or nil if it has no transactions.
func (s OverallSummary) Month(p Period) *MonthSummary {
	return s[p.Year][p.Month]
}

// Tags returns every tag in the summary in lexical order.
func (s OverallSummary) Tags() []string {
	seen := map[string]bool{}
	var tags []string
	for _, months := range s {
		for _, ms := range months {
			for tag := range ms.TotalPerTag {
				if !seen[tag] {
					seen[tag] = true
					tags = append(tags, tag)
				}
			}
		}
	}
	sort.Strings(tags)
	return tags
}

// TotalPerTag sums the per tag totals over every month.
func (s OverallSummary) TotalPerTag() map[string]decimal.Decimal {
	totals := map[string]decimal.Decimal{}
	for _, months := range s {
		for _, ms := range months {
			for tag, amount := range ms.TotalPerTag {
				totals[tag] = totals[tag].Add(amount)
			}
		}
	}
	return totals
}
