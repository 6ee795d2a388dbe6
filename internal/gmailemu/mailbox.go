// Package gmailemu is a local emulator for the subset of the Gmail API used
// by the fintool Gmail client: labels.list, messages.list and messages.get.
package gmailemu

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when a message does not exist.
var ErrNotFound = errors.New("not found")

// Message is a stored email.
type Message struct {
	ID         string
	LabelIDs   []string
	ReceivedAt time.Time
	HTML       string
	// Multipart wraps the HTML body in a multipart/alternative payload
	// next to a text/plain part.
	Multipart bool
}

// Mailbox holds labels and messages in memory.
type Mailbox struct {
	mu       sync.RWMutex
	labels   map[string]string // id -> name
	messages []Message
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{labels: make(map[string]string)}
}

// AddLabel registers a label.
func (m *Mailbox) AddLabel(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labels[id] = name
}

// AddMessage stores msg. Messages are kept in receive order.
func (m *Mailbox) AddMessage(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	sort.SliceStable(m.messages, func(i, j int) bool {
		return m.messages[i].ReceivedAt.Before(m.messages[j].ReceivedAt)
	})
}

// Labels returns the label ids and names sorted by id.
func (m *Mailbox) Labels() [][2]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	labels := make([][2]string, 0, len(m.labels))
	for id, name := range m.labels {
		labels = append(labels, [2]string{id, name})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i][0] < labels[j][0] })
	return labels
}

// List returns the messages carrying every label in labelIDs and received
// strictly after the unix second after (0 for no bound).
func (m *Mailbox) List(labelIDs []string, after int64) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Message
	for _, msg := range m.messages {
		if after > 0 && msg.ReceivedAt.Unix() <= after {
			continue
		}
		if hasLabels(msg, labelIDs) {
			result = append(result, msg)
		}
	}
	return result
}

// Get returns the message with id.
func (m *Mailbox) Get(id string) (Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, msg := range m.messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return Message{}, fmt.Errorf("%w: message %s", ErrNotFound, id)
}

func hasLabels(msg Message, labelIDs []string) bool {
	for _, want := range labelIDs {
		found := false
		for _, got := range msg.LabelIDs {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// LoadDir builds a mailbox from a directory tree. Every subdirectory is a
// label named after it and every .html file inside is a message received at
// the file's modification time. The message id is "<label>-<file name>".
func LoadDir(dir string) (*Mailbox, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read mailbox directory: %w", err)
	}

	m := NewMailbox()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label := entry.Name()
		labelID := "Label_" + label
		m.AddLabel(labelID, label)

		files, err := filepath.Glob(filepath.Join(dir, label, "*.html"))
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", label, err)
		}
		for _, file := range files {
			info, err := os.Stat(file)
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", file, err)
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", file, err)
			}
			m.AddMessage(Message{
				ID:         label + "-" + strings.TrimSuffix(filepath.Base(file), ".html"),
				LabelIDs:   []string{labelID},
				ReceivedAt: info.ModTime(),
				HTML:       string(data),
			})
		}
	}
	return m, nil
}
