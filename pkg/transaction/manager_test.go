package transaction

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shunichi-ikebuchi/fintool/pkg/pathutil"
	"github.com/shunichi-ikebuchi/fintool/pkg/store"
	"github.com/shunichi-ikebuchi/fintool/pkg/tagset"
)

func newTestManager(t *testing.T) (*Manager, store.Store) {
	t.Helper()
	s, err := store.New(store.TypeCSV, pathutil.New(pathutil.Config{HomeDir: t.TempDir()}), nil)
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewManager(s, nil), s
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q) failed: %v", s, err)
	}
	return d
}

func mustTx(t *testing.T, data map[string]string) *Transaction {
	t.Helper()
	tx, err := FromMap(data)
	if err != nil {
		t.Fatalf("FromMap(%v) failed: %v", data, err)
	}
	return tx
}

func TestCollectionFromDate(t *testing.T) {
	tests := []struct {
		date     string
		expected string
	}{
		{"2022-01-01", "2022/01"},
		{"2021-12-31", "2021/12"},
		{"1999-07-15", "1999/07"},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			if got := CollectionFromDate(mustDate(t, tt.date)); got != tt.expected {
				t.Errorf("CollectionFromDate(%s) = %q, expected %q", tt.date, got, tt.expected)
			}
		})
	}
}

func TestCollectionsFromDateRange(t *testing.T) {
	t.Run("same day", func(t *testing.T) {
		d := mustDate(t, "2022-05-10")
		got := CollectionsFromDateRange(d, d)
		if diff := cmp.Diff([]string{"2022/05"}, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("year rollover", func(t *testing.T) {
		got := CollectionsFromDateRange(mustDate(t, "2021-11-30"), mustDate(t, "2022-02-01"))
		want := []string{"2021/11", "2021/12", "2022/01", "2022/02"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("multi year", func(t *testing.T) {
		got := CollectionsFromDateRange(mustDate(t, "2020-04-01"), mustDate(t, "2022-04-01"))
		if len(got) != 25 {
			t.Fatalf("got %d partitions, expected 25", len(got))
		}
		if got[0] != "2020/04" || got[24] != "2022/04" {
			t.Errorf("bounds = %s..%s, expected 2020/04..2022/04", got[0], got[24])
		}
		if !sort.StringsAreSorted(got) {
			t.Error("partitions are not ordered")
		}
	})

	t.Run("reversed", func(t *testing.T) {
		if got := CollectionsFromDateRange(mustDate(t, "2022-04-01"), mustDate(t, "2022-03-01")); len(got) != 0 {
			t.Errorf("got %v, expected no partitions", got)
		}
	})
}

func TestNeedsMove(t *testing.T) {
	tests := []struct {
		oldDate  string
		newDate  string
		expected bool
	}{
		{"2022-02-02", "2022-02-28", false},
		{"2022-02-02", "2022-01-01", true},
		{"2022-02-02", "2023-02-02", true},
	}
	for _, tt := range tests {
		t.Run(tt.oldDate+"->"+tt.newDate, func(t *testing.T) {
			if got := NeedsMove(mustDate(t, tt.oldDate), mustDate(t, tt.newDate)); got != tt.expected {
				t.Errorf("NeedsMove = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestSaveAndList(t *testing.T) {
	m, _ := newTestManager(t)

	tx := mustTx(t, map[string]string{"type": "income", "date": "2022-01-01", "amount": "12.3", "tags": "a|b|c"})
	if err := m.Save(tx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := m.ListAll(nil)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d transactions, expected 1", len(got))
	}
	if got[0].ID == "" {
		t.Error("expected a generated id")
	}
	if !got[0].Tags.Equal(tagset.New("a", "b", "c")) {
		t.Errorf("tags = %v, expected a|b|c", got[0].Tags)
	}
	if !got[0].Equal(tx) {
		t.Errorf("stored transaction = %v, expected %v", got[0], tx)
	}
}

func TestListToleratesMissingPartitions(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.Save(mustTx(t, map[string]string{"type": "outcome", "date": "2022-03-05", "amount": "1", "tags": "x"})); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := m.List(mustDate(t, "2021-01-01"), mustDate(t, "2022-12-31"), nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d transactions, expected 1", len(got))
	}

	none, err := m.List(mustDate(t, "2010-01-01"), mustDate(t, "2010-02-01"), nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d transactions, expected 0", len(none))
	}
}

func TestListFilters(t *testing.T) {
	m, _ := newTestManager(t)

	first := mustTx(t, map[string]string{"id": "1", "type": "income", "date": "2022-01-01", "amount": "10", "tags": "a|b|c"})
	second := mustTx(t, map[string]string{"id": "2", "type": "outcome", "date": "2022-01-02", "amount": "20.50", "tags": "d|e|f"})
	third := mustTx(t, map[string]string{"id": "3", "type": "outcome", "date": "2022-02-01", "amount": "5", "tags": "a"})
	for _, tx := range []*Transaction{first, second, third} {
		if err := m.Save(tx); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	tests := []struct {
		name    string
		filters Filters
		want    []string
	}{
		{"no filters", nil, []string{"1", "2", "3"}},
		{"tag intersection", Filters{"tags": "f"}, []string{"2"}},
		{"any tag of set", Filters{"tags": "a|z"}, []string{"1", "3"}},
		{"type", Filters{"type": "outcome"}, []string{"2", "3"}},
		{"amount by value", Filters{"amount": "20.5"}, []string{"2"}},
		{"date", Filters{"date": "2022-02-01"}, []string{"3"}},
		{"or across keys", Filters{"type": "income", "tags": "f"}, []string{"1", "2"}},
		{"no match", Filters{"id": "42"}, nil},
		{"unknown field", Filters{"concept": "x"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.List(mustDate(t, "2022-01-01"), mustDate(t, "2022-02-28"), tt.filters)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			var ids []string
			for _, tx := range got {
				ids = append(ids, tx.ID)
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSaveDeduplicatesEmailID(t *testing.T) {
	m, s := newTestManager(t)

	first := mustTx(t, map[string]string{"id": "first", "type": "outcome", "date": "2022-01-10", "amount": "3", "tags": "x", "email_id": "msg-1"})
	if err := m.Save(first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	second := mustTx(t, map[string]string{"id": "second", "type": "outcome", "date": "2022-01-20", "amount": "3", "tags": "x", "email_id": "msg-1"})
	err := m.Save(second)
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("Save error = %v, expected %v", err, ErrDuplicateEmail)
	}
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected *DuplicateError, got %T", err)
	}
	if diff := cmp.Diff(DuplicateError{EmailID: "msg-1", ExistingID: "first"}, *dup); diff != "" {
		t.Errorf("DuplicateError mismatch (-want +got):\n%s", diff)
	}

	records, err := s.GetRecords("transactions/2022/01")
	if err != nil {
		t.Fatalf("GetRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, expected 1", len(records))
	}
}

func TestUpdate(t *testing.T) {
	t.Run("move on edit", func(t *testing.T) {
		m, s := newTestManager(t)

		tx := mustTx(t, map[string]string{"id": "t1", "type": "income", "date": "2022-02-02", "amount": "1", "tags": "x"})
		if err := m.Save(tx); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		moved := mustTx(t, map[string]string{"id": "t1", "type": "income", "date": "2022-01-01", "amount": "1", "tags": "x"})
		if err := m.Update(mustDate(t, "2022-02-02"), moved); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		old, err := s.GetRecords("transactions/2022/02")
		if err != nil {
			t.Fatalf("GetRecords failed: %v", err)
		}
		if len(old) != 0 {
			t.Errorf("old partition still holds %d records", len(old))
		}

		got, err := m.List(mustDate(t, "2022-01-01"), mustDate(t, "2022-01-31"), nil)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != 1 || !got[0].Equal(moved) {
			t.Errorf("got %v, expected only the moved transaction", got)
		}
	})

	t.Run("edit in place", func(t *testing.T) {
		m, _ := newTestManager(t)

		if err := m.Save(mustTx(t, map[string]string{"id": "t1", "type": "income", "date": "2022-02-02", "amount": "1", "tags": "x"})); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		edited := mustTx(t, map[string]string{"id": "t1", "type": "outcome", "date": "2022-02-20", "amount": "7", "tags": "y"})
		if err := m.Update(mustDate(t, "2022-02-02"), edited); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		got, err := m.ListAll(nil)
		if err != nil {
			t.Fatalf("ListAll failed: %v", err)
		}
		if len(got) != 1 || !got[0].Equal(edited) {
			t.Errorf("got %v, expected only the edited transaction", got)
		}
	})

	t.Run("nil transaction", func(t *testing.T) {
		m, _ := newTestManager(t)
		if err := m.Update(time.Now(), nil); !errors.Is(err, ErrInvalidTransaction) {
			t.Errorf("Update(nil) error = %v, expected ErrInvalidTransaction", err)
		}
	})

	t.Run("missing record", func(t *testing.T) {
		m, _ := newTestManager(t)
		if err := m.Save(mustTx(t, map[string]string{"id": "t1", "type": "income", "date": "2022-02-02", "amount": "1", "tags": "x"})); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		other := mustTx(t, map[string]string{"id": "t2", "type": "income", "date": "2022-02-02", "amount": "1", "tags": "x"})
		if err := m.Update(mustDate(t, "2022-02-02"), other); !errors.Is(err, store.ErrRecordNotFound) {
			t.Errorf("Update error = %v, expected ErrRecordNotFound", err)
		}
	})
}

func TestRemove(t *testing.T) {
	m, _ := newTestManager(t)

	tx := mustTx(t, map[string]string{"id": "t1", "type": "income", "date": "2022-02-02", "amount": "1", "tags": "x"})
	if err := m.Save(tx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := m.Remove(tx.Date, tx.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := m.Remove(tx.Date, tx.ID); !errors.Is(err, store.ErrRecordNotFound) {
		t.Errorf("second Remove error = %v, expected ErrRecordNotFound", err)
	}
}
