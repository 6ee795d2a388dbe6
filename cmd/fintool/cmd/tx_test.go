package cmd

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"

	"github.com/shunichi-ikebuchi/fintool/pkg/transaction"
)

var ansiCode = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func TestWriteTransactionsAlignsColouredAmounts(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = noColor })

	var txs []*transaction.Transaction
	for _, data := range []map[string]string{
		{"id": "a1", "type": "outcome", "date": "2022-03-01", "amount": "10", "tags": "food"},
		{"id": "b22", "type": "income", "date": "2022-03-02", "amount": "1234.5", "tags": "salary|work"},
		{"id": "c333", "type": "outcome", "date": "2022-03-03", "amount": "7.25", "tags": "x"},
	} {
		tx, err := transaction.FromMap(data)
		if err != nil {
			t.Fatalf("FromMap failed: %v", err)
		}
		txs = append(txs, tx)
	}

	var buf bytes.Buffer
	writeTransactions(&buf, txs)

	if !ansiCode.MatchString(buf.String()) {
		t.Fatalf("expected coloured output, got %q", buf.String())
	}

	plain := strings.Split(strings.TrimRight(ansiCode.ReplaceAllString(buf.String(), ""), "\n"), "\n")
	want := []string{
		"ID    DATE        TYPE     TAGS          AMOUNT",
		"a1    2022-03-01  outcome  food          -10.00",
		"b22   2022-03-02  income   salary|work  1234.50",
		"c333  2022-03-03  outcome  x              -7.25",
	}
	if diff := cmp.Diff(want, plain); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}
