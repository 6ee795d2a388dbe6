package email

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func readFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return string(data)
}

func TestParseFixtures(t *testing.T) {
	tests := []struct {
		emailType string
		fixture   string
		concept   string
		date      string
		amount    string
	}{
		{TypeBanamex, "banamex.html", "UBER EATS", "2022-03-05", "1234.50"},
		{TypeHeyBanco, "heybanco.html", "OXXO CENTRO", "2021-07-01", "1089"},
	}

	for _, tt := range tests {
		t.Run(tt.emailType, func(t *testing.T) {
			parser, err := BuildParser(tt.emailType)
			if err != nil {
				t.Fatalf("BuildParser failed: %v", err)
			}

			got, err := parser.Parse(Email{UID: "msg-1", Content: readFixture(t, tt.fixture)})
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}

			if got.Concept != tt.concept {
				t.Errorf("Concept = %q, expected %q", got.Concept, tt.concept)
			}
			if d := got.Date.Format(DateLayout); d != tt.date {
				t.Errorf("Date = %s, expected %s", d, tt.date)
			}
			if !got.Amount.Equal(decimal.RequireFromString(tt.amount)) {
				t.Errorf("Amount = %s, expected %s", got.Amount, tt.amount)
			}
			if got.EmailID != "msg-1" {
				t.Errorf("EmailID = %q, expected msg-1", got.EmailID)
			}
			if len(got.Tags) != 0 {
				t.Errorf("Tags = %v, expected none", got.Tags)
			}
		})
	}
}

func TestParseIsReentrant(t *testing.T) {
	parser, err := BuildParser(TypeBanamex)
	if err != nil {
		t.Fatalf("BuildParser failed: %v", err)
	}
	content := readFixture(t, "banamex.html")

	first, err := parser.Parse(Email{UID: "a", Content: content})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, err := parser.Parse(Email{UID: "b", Content: "<p>nothing here</p>"}); err == nil {
		t.Fatal("expected an error for an unrelated email")
	}
	second, err := parser.Parse(Email{UID: "c", Content: content})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if first.Concept != second.Concept || !first.Date.Equal(second.Date) || !first.Amount.Equal(second.Amount) {
		t.Errorf("parses differ: %+v vs %+v", first, second)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name      string
		emailType string
		content   string
		wantErr   error
	}{
		{
			name:      "banamex without purchase marker",
			emailType: TypeBanamex,
			content:   `<td>Establecimiento:</td><td>UBER</td><td>$10.00</td><td>Fecha y hora:</td><td>05/03/22</td>`,
			wantErr:   ErrMissingField,
		},
		{
			name:      "banamex missing date",
			emailType: TypeBanamex,
			content:   `<b>Retiro/Compra</b><td>Establecimiento:</td><td>UBER</td><td>$10.00</td>`,
			wantErr:   ErrMissingField,
		},
		{
			name:      "banamex bad date",
			emailType: TypeBanamex,
			content:   `<b>Retiro/Compra</b><td>Establecimiento:</td><td>UBER</td><td>$10.00</td><td>Fecha y hora:</td><td>ayer</td>`,
			wantErr:   ErrInvalidDate,
		},
		{
			name:      "heybanco labels outside h4",
			emailType: TypeHeyBanco,
			content:   `<p>Comercio en donde se hizo la compra</p><p>OXXO</p>`,
			wantErr:   ErrMissingField,
		},
		{
			name:      "heybanco bad amount",
			emailType: TypeHeyBanco,
			content: `<h4>Comercio en donde se hizo la compra</h4><h4>OXXO</h4>` +
				`<h4>Monto de compra</h4><h4>$abc</h4>` +
				`<h4>Fecha y hora de la transacción</h4><h4>01/07/2021 - 20:29 hrs</h4>`,
			wantErr: ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser, err := BuildParser(tt.emailType)
			if err != nil {
				t.Fatalf("BuildParser failed: %v", err)
			}
			if _, err := parser.Parse(Email{UID: "x", Content: tt.content}); !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse error = %v, expected %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildParserUnsupported(t *testing.T) {
	if _, err := BuildParser("santander"); !errors.Is(err, ErrUnsupportedEmailType) {
		t.Errorf("BuildParser error = %v, expected ErrUnsupportedEmailType", err)
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"05/03/22 14:31", "2022-03-05", false},
		{"01/07/2021 - 20:29 hrs", "2021-07-01", false},
		{"2023/12/31", "2023-12-31", false},
		{"31/02/2021", "", true},
		{"2021-07-01", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := normalizeDate(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDate) {
					t.Errorf("normalizeDate(%q) error = %v, expected ErrInvalidDate", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeDate(%q) failed: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("normalizeDate(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"$1,234.50", "1234.50"},
		{"$ 89.00", "89.00"},
		{"Importe $2,000 MXN", "2000"},
		{"15.5", "15.5"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := normalizeAmount(tt.input)
			if err != nil {
				t.Fatalf("normalizeAmount(%q) failed: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("normalizeAmount(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTransactionEmailFromMap(t *testing.T) {
	te, err := TransactionEmailFromMap(map[string]string{
		"concept":  "UBER",
		"date":     "2022-03-05",
		"amount":   "10.5",
		"email_id": "m1",
		"tags":     "food|delivery",
	})
	if err != nil {
		t.Fatalf("TransactionEmailFromMap failed: %v", err)
	}
	if !te.Date.Equal(time.Date(2022, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", te.Date)
	}
	if te.Record()["tags"] != "delivery|food" {
		t.Errorf("serialized tags = %q", te.Record()["tags"])
	}

	if _, err := TransactionEmailFromMap(map[string]string{"concept": "UBER"}); !errors.Is(err, ErrMissingField) {
		t.Errorf("error = %v, expected ErrMissingField", err)
	}
}

func TestEmailFromMap(t *testing.T) {
	e, err := EmailFromMap(map[string]string{"uid": "1", "content": "<p>x</p>"})
	if err != nil {
		t.Fatalf("EmailFromMap failed: %v", err)
	}
	if e.UID != "1" {
		t.Errorf("UID = %q", e.UID)
	}
	if _, err := EmailFromMap(map[string]string{"uid": "1"}); !errors.Is(err, ErrMissingField) {
		t.Errorf("error = %v, expected ErrMissingField", err)
	}
}
