package transaction

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/fintool/pkg/tagset"
)

func TestFromMap(t *testing.T) {
	valid := func() map[string]string {
		return map[string]string{
			"type":   "income",
			"date":   "2022-01-01",
			"amount": "12.3",
			"tags":   "a|b|c",
		}
	}

	tests := []struct {
		name      string
		mutate    func(map[string]string)
		wantErr   error
		wantField string
	}{
		{"valid", func(map[string]string) {}, nil, ""},
		{"missing type", func(m map[string]string) { delete(m, "type") }, ErrMissingField, "type"},
		{"missing date", func(m map[string]string) { delete(m, "date") }, ErrMissingField, "date"},
		{"missing amount", func(m map[string]string) { delete(m, "amount") }, ErrMissingField, "amount"},
		{"missing tags", func(m map[string]string) { delete(m, "tags") }, ErrMissingField, "tags"},
		{"bad type", func(m map[string]string) { m["type"] = "transfer" }, ErrInvalidFieldValue, "type"},
		{"bad date", func(m map[string]string) { m["date"] = "01/01/2022" }, ErrInvalidFieldValue, "date"},
		{"empty date", func(m map[string]string) { m["date"] = "" }, ErrInvalidFieldValue, "date"},
		{"first calendar day", func(m map[string]string) { m["date"] = "0001-01-01" }, nil, ""},
		{"bad amount", func(m map[string]string) { m["amount"] = "twelve" }, ErrInvalidFieldValue, "amount"},
		{"empty tags", func(m map[string]string) { m["tags"] = " | " }, ErrInvalidFieldValue, "tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := valid()
			tt.mutate(data)

			tx, err := FromMap(data)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("FromMap failed: %v", err)
				}
				if tx.ID == "" {
					t.Error("expected a generated id")
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("FromMap error = %v, expected %v", err, tt.wantErr)
			}
			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("expected *FieldError, got %T", err)
			}
			if fieldErr.Field != tt.wantField {
				t.Errorf("FieldError.Field = %q, expected %q", fieldErr.Field, tt.wantField)
			}
		})
	}
}

func TestRecordRoundTrip(t *testing.T) {
	date := time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC)
	tx, err := New("abc", TypeOutcome, date, decimal.RequireFromString("99.95"), tagset.New("food", "uber"), "msg-1")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	record := tx.Record()
	if record["tags"] != "food|uber" {
		t.Errorf("tags = %q, expected food|uber", record["tags"])
	}
	if record["date"] != "2023-03-14" {
		t.Errorf("date = %q, expected 2023-03-14", record["date"])
	}

	back, err := FromMap(record)
	if err != nil {
		t.Fatalf("FromMap failed: %v", err)
	}
	if !back.Equal(tx) {
		t.Errorf("round trip mismatch: got %v, expected %v", back, tx)
	}
}

func TestNewKeepsGivenID(t *testing.T) {
	tx, err := New("given", TypeIncome, time.Now(), decimal.NewFromInt(1), tagset.New("x"), "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tx.ID != "given" {
		t.Errorf("ID = %q, expected given", tx.ID)
	}
	if NewID() == NewID() {
		t.Error("NewID returned the same id twice")
	}
}

func TestFirstCalendarDayPartition(t *testing.T) {
	tx, err := FromMap(map[string]string{"type": "outcome", "date": "0001-01-01", "amount": "1", "tags": "x"})
	if err != nil {
		t.Fatalf("FromMap failed: %v", err)
	}
	if got := tx.DateString(); got != "0001-01-01" {
		t.Errorf("DateString = %q, expected 0001-01-01", got)
	}
	if got := CollectionFromDate(tx.Date); got != "0001/01" {
		t.Errorf("CollectionFromDate = %q, expected 0001/01", got)
	}
}
