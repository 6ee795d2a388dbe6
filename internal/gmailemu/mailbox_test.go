package gmailemu

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/api/gmail/v1"
)

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "banamex"), 0755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(dir, "banamex", "compra.html")
	if err := os.WriteFile(file, []byte("<p>compra</p>"), 0644); err != nil {
		t.Fatal(err)
	}
	received := time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := os.Chtimes(file, received, received); err != nil {
		t.Fatal(err)
	}

	m, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	labels := m.Labels()
	if len(labels) != 1 || labels[0][1] != "banamex" {
		t.Fatalf("Labels = %v", labels)
	}

	msg, err := m.Get("banamex-compra")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if msg.HTML != "<p>compra</p>" || !msg.ReceivedAt.Equal(received) {
		t.Errorf("message = %+v", msg)
	}
	if _, err := m.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, expected ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	m := NewMailbox()
	base := time.Unix(1_600_000_000, 0)
	m.AddMessage(Message{ID: "late", LabelIDs: []string{"A"}, ReceivedAt: base.Add(time.Hour)})
	m.AddMessage(Message{ID: "early", LabelIDs: []string{"A", "B"}, ReceivedAt: base})

	tests := []struct {
		name   string
		labels []string
		after  int64
		want   []string
	}{
		{"all", nil, 0, []string{"early", "late"}},
		{"label", []string{"B"}, 0, []string{"early"}},
		{"every label required", []string{"A", "B"}, 0, []string{"early"}},
		{"after is exclusive", []string{"A"}, base.Unix(), []string{"late"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, msg := range m.List(tt.labels, tt.after) {
				got = append(got, msg.ID)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List = %v, expected %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("List = %v, expected %v", got, tt.want)
				}
			}
		})
	}
}

func TestGetMessageNotFound(t *testing.T) {
	server := httptest.NewServer(NewRouter(NewMailbox(), "", nil))
	defer server.Close()

	resp, err := http.Get(server.URL + "/gmail/v1/users/me/messages/missing")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, expected 404", resp.StatusCode)
	}
}

func TestListMessagesPagination(t *testing.T) {
	m := NewMailbox()
	for _, id := range []string{"a", "b", "c"} {
		m.AddMessage(Message{ID: id, ReceivedAt: time.Now()})
	}
	server := httptest.NewServer(NewRouter(m, "", nil))
	defer server.Close()

	resp, err := http.Get(server.URL + "/gmail/v1/users/me/messages?maxResults=2")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var page gmail.ListMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(page.Messages) != 2 || page.NextPageToken != "2" {
		t.Errorf("page = %d messages, token %q", len(page.Messages), page.NextPageToken)
	}
}
