package gmailemu

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"google.golang.org/api/gmail/v1"
)

const defaultMaxResults = 100

// Handler serves the emulated Gmail endpoints.
type Handler struct {
	mailbox *Mailbox
	logger  *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(mailbox *Mailbox, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{mailbox: mailbox, logger: logger}
}

// NewRouter builds the emulator router. When apiKey is set every request
// must carry it in the "key" query parameter.
func NewRouter(mailbox *Mailbox, apiKey string, logger *slog.Logger) http.Handler {
	h := NewHandler(mailbox, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/gmail/v1/users/{userID}", func(r chi.Router) {
		if apiKey != "" {
			r.Use(KeyMiddleware(apiKey))
		}
		r.Get("/labels", h.ListLabels)
		r.Get("/messages", h.ListMessages)
		r.Get("/messages/{id}", h.GetMessage)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return r
}

// KeyMiddleware rejects requests without the expected API key.
func KeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("key") != apiKey {
				writeJSONError(w, http.StatusUnauthorized, "API key not valid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ListLabels handles GET /gmail/v1/users/{userID}/labels.
func (h *Handler) ListLabels(w http.ResponseWriter, r *http.Request) {
	resp := &gmail.ListLabelsResponse{}
	for _, l := range h.mailbox.Labels() {
		resp.Labels = append(resp.Labels, &gmail.Label{Id: l[0], Name: l[1], Type: "user"})
	}
	writeJSON(w, resp)
}

// ListMessages handles GET /gmail/v1/users/{userID}/messages.
// Only the "after:<unix seconds>" search operator is understood.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	after, err := parseAfter(query.Get("q"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid query")
		return
	}
	maxResults := defaultMaxResults
	if v := query.Get("maxResults"); v != "" {
		if maxResults, err = strconv.Atoi(v); err != nil || maxResults <= 0 {
			writeJSONError(w, http.StatusBadRequest, "Invalid maxResults")
			return
		}
	}
	offset := 0
	if v := query.Get("pageToken"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			writeJSONError(w, http.StatusBadRequest, "Invalid pageToken")
			return
		}
	}

	messages := h.mailbox.List(query["labelIds"], after)
	h.logger.Debug("Listing messages", "labels", query["labelIds"], "after", after, "matched", len(messages))

	resp := &gmail.ListMessagesResponse{ResultSizeEstimate: int64(len(messages))}
	end := min(offset+maxResults, len(messages))
	for i := offset; i < end; i++ {
		resp.Messages = append(resp.Messages, &gmail.Message{Id: messages[i].ID, ThreadId: messages[i].ID})
	}
	if end < len(messages) {
		resp.NextPageToken = strconv.Itoa(end)
	}
	writeJSON(w, resp)
}

// GetMessage handles GET /gmail/v1/users/{userID}/messages/{id}.
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.mailbox.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "Requested entity was not found.")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "Failed to get message")
		return
	}

	htmlPart := &gmail.MessagePart{
		MimeType: "text/html",
		Body:     encodeBody(msg.HTML),
	}
	payload := htmlPart
	if msg.Multipart {
		payload = &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Body:     &gmail.MessagePartBody{},
			Parts: []*gmail.MessagePart{
				{PartId: "0", MimeType: "text/plain", Body: encodeBody("See the HTML version of this message.")},
				{PartId: "1", MimeType: htmlPart.MimeType, Body: htmlPart.Body},
			},
		}
	}

	writeJSON(w, &gmail.Message{
		Id:           msg.ID,
		ThreadId:     msg.ID,
		LabelIds:     msg.LabelIDs,
		InternalDate: msg.ReceivedAt.UnixMilli(),
		Payload:      payload,
	})
}

func encodeBody(s string) *gmail.MessagePartBody {
	return &gmail.MessagePartBody{
		Data: base64.URLEncoding.EncodeToString([]byte(s)),
		Size: int64(len(s)),
	}
}

func parseAfter(q string) (int64, error) {
	for _, term := range strings.Fields(q) {
		if v, ok := strings.CutPrefix(term, "after:"); ok {
			return strconv.ParseInt(v, 10, 64)
		}
	}
	return 0, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes an error in the Google API error format.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
		},
	})
}
