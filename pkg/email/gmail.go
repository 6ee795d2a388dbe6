package email

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// ErrMailboxNotFound is returned when none of the requested mailboxes exist.
var ErrMailboxNotFound = errors.New("mailbox not found")

const (
	defaultFetchDelay     = 20 * time.Millisecond
	defaultRequestTimeout = 30 * time.Second
	defaultPageSize       = 500
)

// GmailConfig holds the Gmail client settings.
type GmailConfig struct {
	CredentialsPath string // OAuth client credentials from Google Cloud Console
	TokenPath       string // where the OAuth token is cached
	APIEndpoint     string // custom API endpoint, e.g. a local emulator
	AccessToken     string // sent as API key to a custom endpoint

	FetchDelay     time.Duration // pause between message fetches
	RequestTimeout time.Duration // bound for each API request
	PageSize       int64         // messages per list page
}

// GmailClient fetches HTML emails from Gmail labels.
type GmailClient struct {
	service *gmail.Service
	userID  string
	cfg     GmailConfig
	logger  *slog.Logger
}

// NewGmailClient creates a Gmail client. With an APIEndpoint set the OAuth
// flow is skipped.
func NewGmailClient(ctx context.Context, cfg GmailConfig, logger *slog.Logger) (*GmailClient, error) {
	if cfg.FetchDelay <= 0 {
		cfg.FetchDelay = defaultFetchDelay
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	var (
		service *gmail.Service
		err     error
	)
	if cfg.APIEndpoint != "" {
		service, err = newEndpointService(ctx, cfg)
	} else {
		service, err = newOAuthService(ctx, cfg, logger)
	}
	if err != nil {
		return nil, err
	}

	return &GmailClient{
		service: service,
		userID:  "me",
		cfg:     cfg,
		logger:  orDefault(logger).With("component", "gmail_client"),
	}, nil
}

func newOAuthService(ctx context.Context, cfg GmailConfig, logger *slog.Logger) (*gmail.Service, error) {
	credBytes, err := os.ReadFile(cfg.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	oauthConfig, err := google.ConfigFromJSON(credBytes, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	token, err := getToken(ctx, oauthConfig, cfg.TokenPath, orDefault(logger))
	if err != nil {
		return nil, fmt.Errorf("unable to get token: %w", err)
	}

	service, err := gmail.NewService(ctx, option.WithHTTPClient(oauthConfig.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return service, nil
}

func newEndpointService(ctx context.Context, cfg GmailConfig) (*gmail.Service, error) {
	endpoint := cfg.APIEndpoint
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	opts := []option.ClientOption{option.WithEndpoint(endpoint)}
	if cfg.AccessToken != "" {
		opts = append(opts, option.WithAPIKey(cfg.AccessToken))
	} else {
		opts = append(opts, option.WithHTTPClient(&http.Client{}), option.WithoutAuthentication())
	}

	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return service, nil
}

// FetchEmails returns the HTML messages in mailboxes received after
// fromTimestamp. Messages without an HTML part are skipped.
func (c *GmailClient) FetchEmails(ctx context.Context, mailboxes []string, fromTimestamp int64) ([]Email, error) {
	labelIDs, err := c.labelIDs(ctx, mailboxes)
	if err != nil {
		return nil, err
	}

	ids, err := c.listMessages(ctx, labelIDs, fromTimestamp)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Listed messages", "mailboxes", mailboxes, "count", len(ids))

	emails := make([]Email, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			if err := sleep(ctx, c.cfg.FetchDelay); err != nil {
				return nil, err
			}
		}

		content, err := c.messageHTML(ctx, id)
		if err != nil {
			return nil, err
		}
		if content == "" {
			c.logger.Debug("Message has no HTML part, skipping", "id", id)
			continue
		}
		emails = append(emails, Email{UID: id, Content: content})
	}
	return emails, nil
}

func (c *GmailClient) labelIDs(ctx context.Context, names []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	resp, err := c.service.Users.Labels.List(c.userID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	var ids []string
	for _, label := range resp.Labels {
		if wanted[label.Name] {
			ids = append(ids, label.Id)
			delete(wanted, label.Name)
		}
	}
	for name := range wanted {
		c.logger.Warn("Mailbox not found", "mailbox", name)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrMailboxNotFound, names)
	}
	return ids, nil
}

func (c *GmailClient) listMessages(ctx context.Context, labelIDs []string, after int64) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		call := c.service.Users.Messages.List(c.userID).LabelIds(labelIDs...).MaxResults(c.cfg.PageSize)
		if after > 0 {
			call = call.Q(fmt.Sprintf("after:%d", after))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		resp, err := call.Context(reqCtx).Do()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}

		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return ids, nil
		}
	}
}

func (c *GmailClient) messageHTML(ctx context.Context, id string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	msg, err := c.service.Users.Messages.Get(c.userID, id).Format("full").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get message %s: %w", id, err)
	}
	if msg.Payload == nil {
		return "", nil
	}
	return findHTMLPart(msg.Payload)
}

// findHTMLPart returns the decoded body of the first text/html part.
func findHTMLPart(part *gmail.MessagePart) (string, error) {
	if part.MimeType == "text/html" && part.Body != nil && part.Body.Data != "" {
		data, err := decodeBase64URL(part.Body.Data)
		if err != nil {
			return "", fmt.Errorf("failed to decode message body: %w", err)
		}
		return string(data), nil
	}

	for _, p := range part.Parts {
		content, err := findHTMLPart(p)
		if err != nil || content != "" {
			return content, err
		}
	}
	return "", nil
}

// decodeBase64URL decodes base64url data with or without padding.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// getToken loads the cached OAuth token or runs the browser flow.
func getToken(ctx context.Context, config *oauth2.Config, tokenPath string, logger *slog.Logger) (*oauth2.Token, error) {
	if token, err := loadToken(tokenPath); err == nil {
		return token, nil
	}

	token, err := getTokenFromWeb(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := saveToken(tokenPath, token); err != nil {
		logger.Warn("Unable to save token", "path", tokenPath, "error", err)
	}
	return token, nil
}

// getTokenFromWeb runs the OAuth flow with a localhost callback.
func getTokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	config.RedirectURL = "http://localhost:8090/callback"
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(os.Stderr, "Go to the following link in your browser:\n%v\n\n", authURL)

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no code in callback")
			return
		}
		fmt.Fprintf(w, "Authentication successful! You can close this window.")
		codeChan <- code
	})
	server := &http.Server{Addr: ":8090", Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	defer server.Shutdown(context.Background())

	var code string
	select {
	case code = <-codeChan:
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to exchange code: %w", err)
	}
	return token, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, err
	}
	return token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(token)
}
