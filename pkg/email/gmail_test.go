package email

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shunichi-ikebuchi/fintool/internal/gmailemu"
)

func newEmulator(t *testing.T, apiKey string) (*gmailemu.Mailbox, string) {
	t.Helper()

	mailbox := gmailemu.NewMailbox()
	mailbox.AddLabel("Label_1", "banamex")
	mailbox.AddLabel("Label_2", "heybanco")

	server := httptest.NewServer(gmailemu.NewRouter(mailbox, apiKey, nil))
	t.Cleanup(server.Close)
	return mailbox, server.URL
}

func newTestClient(t *testing.T, endpoint, accessToken string, pageSize int64) *GmailClient {
	t.Helper()
	client, err := NewGmailClient(context.Background(), GmailConfig{
		APIEndpoint: endpoint,
		AccessToken: accessToken,
		FetchDelay:  time.Millisecond,
		PageSize:    pageSize,
	}, nil)
	if err != nil {
		t.Fatalf("NewGmailClient failed: %v", err)
	}
	return client
}

func TestGmailFetchEmails(t *testing.T) {
	mailbox, endpoint := newEmulator(t, "")
	base := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		mailbox.AddMessage(gmailemu.Message{
			ID:         fmt.Sprintf("b%d", i),
			LabelIDs:   []string{"Label_1"},
			ReceivedAt: base.Add(time.Duration(i) * time.Hour),
			HTML:       fmt.Sprintf("<p>banamex %d</p>", i),
			Multipart:  i%2 == 1,
		})
	}
	mailbox.AddMessage(gmailemu.Message{
		ID:         "h0",
		LabelIDs:   []string{"Label_2"},
		ReceivedAt: base,
		HTML:       "<p>heybanco</p>",
	})

	// a page size smaller than the result set forces pagination
	client := newTestClient(t, endpoint, "", 2)

	emails, err := client.FetchEmails(context.Background(), []string{"banamex"}, 0)
	if err != nil {
		t.Fatalf("FetchEmails failed: %v", err)
	}

	var uids []string
	for _, e := range emails {
		uids = append(uids, e.UID)
	}
	if diff := cmp.Diff([]string{"b0", "b1", "b2", "b3", "b4"}, uids); diff != "" {
		t.Errorf("uids mismatch (-want +got):\n%s", diff)
	}
	if emails[1].Content != "<p>banamex 1</p>" {
		t.Errorf("multipart content = %q", emails[1].Content)
	}

	after := base.Add(2 * time.Hour).Unix()
	recent, err := client.FetchEmails(context.Background(), []string{"banamex"}, after)
	if err != nil {
		t.Fatalf("FetchEmails failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("got %d emails after checkpoint, expected 2", len(recent))
	}
}

func TestGmailUnknownMailbox(t *testing.T) {
	_, endpoint := newEmulator(t, "")
	client := newTestClient(t, endpoint, "", 0)

	_, err := client.FetchEmails(context.Background(), []string{"santander"}, 0)
	if !errors.Is(err, ErrMailboxNotFound) {
		t.Errorf("FetchEmails error = %v, expected ErrMailboxNotFound", err)
	}
}

func TestGmailAPIKey(t *testing.T) {
	_, endpoint := newEmulator(t, "secret")

	if _, err := newTestClient(t, endpoint, "wrong", 0).FetchEmails(context.Background(), []string{"banamex"}, 0); err == nil {
		t.Error("expected an error with a wrong API key")
	}

	emails, err := newTestClient(t, endpoint, "secret", 0).FetchEmails(context.Background(), []string{"banamex"}, 0)
	if err != nil {
		t.Fatalf("FetchEmails failed: %v", err)
	}
	if len(emails) != 0 {
		t.Errorf("got %d emails, expected 0", len(emails))
	}
}

func TestGmailFetchCancelled(t *testing.T) {
	mailbox, endpoint := newEmulator(t, "")
	for i := 0; i < 3; i++ {
		mailbox.AddMessage(gmailemu.Message{ID: fmt.Sprintf("m%d", i), LabelIDs: []string{"Label_1"}, ReceivedAt: time.Now(), HTML: "<p>x</p>"})
	}

	client, err := NewGmailClient(context.Background(), GmailConfig{APIEndpoint: endpoint, FetchDelay: time.Hour}, nil)
	if err != nil {
		t.Fatalf("NewGmailClient failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := client.FetchEmails(ctx, []string{"banamex"}, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("FetchEmails error = %v, expected context.DeadlineExceeded", err)
	}
}

func TestBuildClientUnsupported(t *testing.T) {
	if _, err := BuildClient(context.Background(), "outlook", GmailConfig{}, nil); !errors.Is(err, ErrUnsupportedEmailProvider) {
		t.Errorf("BuildClient error = %v, expected ErrUnsupportedEmailProvider", err)
	}
}

func TestDecodeBase64URL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"PHA-aGk_PC9wPg==", "<p>hi?</p>"},
		{"PHA-aGk_PC9wPg", "<p>hi?</p>"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := decodeBase64URL(tt.input)
			if err != nil {
				t.Fatalf("decodeBase64URL failed: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("decodeBase64URL(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}
