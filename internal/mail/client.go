// Package mail implements Overstory's inter-agent messaging: addressing,
// broadcast pattern matching, and best-effort live-session notification
// on top of the session-registry-backed message store.
package mail

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/overstory-run/overstory/internal/model"
	"github.com/overstory-run/overstory/internal/store"
)

// notifier is the narrow nudge dependency a Client needs: tell a live
// recipient mail is waiting without resending the body over send-keys.
type notifier interface {
	Send(agentName, message, priority string) (delivered bool, reason string, err error)
}

// Client sends and resolves mail against the session registry and the
// append-only message store.
type Client struct {
	Messages *store.MailStore
	Sessions *store.SessionStore
	Notify   notifier // nil disables live notification (e.g. in tests)
}

// New returns a Client wired to the given stores.
func New(messages *store.MailStore, sessions *store.SessionStore) *Client {
	return &Client{Messages: messages, Sessions: sessions}
}

// Send resolves msg.To against the live session registry (expanding any
// broadcast pattern) and delivers one stored row per matched recipient.
// Self-mail (handoff notes to one's own future turn) is delivered but
// never triggers a live nudge.
func (c *Client) Send(msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Priority == "" {
		msg.Priority = model.PriorityNormal
	}

	recipients, err := c.resolve(msg.To)
	if err != nil {
		return fmt.Errorf("resolving recipient %q: %w", msg.To, err)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no live agent matches recipient %q", msg.To)
	}

	for _, to := range recipients {
		msgCopy := *msg
		msgCopy.ID = uuid.NewString()
		msgCopy.To = to
		if err := c.Messages.Send(&msgCopy); err != nil {
			return fmt.Errorf("storing message to %s: %w", to, err)
		}
		if c.Notify != nil && !isSelfMail(msgCopy.From, to) {
			preview := msgCopy.Subject
			if preview == "" {
				preview = msgCopy.Body
			}
			_, _, _ = c.Notify.Send(to, fmt.Sprintf("New mail from %s: %s", msgCopy.From, preview), msgCopy.Priority)
		}
	}
	return nil
}

// resolve expands a recipient address into concrete agent names.
// "*" alone addresses every currently live agent. A pattern ending in
// "*" (e.g. "builder-*") matches by prefix against live agent names.
// Anything else is returned as-is; the recipient is not checked against
// the registry, so mail to an unknown name is still stored.
func (c *Client) resolve(to string) ([]string, error) {
	if !strings.Contains(to, "*") {
		return []string{to}, nil
	}

	sessions, err := c.Sessions.GetActive()
	if err != nil {
		return nil, err
	}

	var matched []string
	for _, sess := range sessions {
		if matchPattern(to, sess.AgentName) {
			matched = append(matched, sess.AgentName)
		}
	}
	return matched, nil
}

// matchPattern reports whether a pattern (a lone "*" or a trailing "*"
// prefix match) matches a concrete agent name; a "*" elsewhere in the
// pattern is compared literally.
func matchPattern(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == name
}

func isSelfMail(from, to string) bool {
	return strings.TrimSuffix(from, "/") == strings.TrimSuffix(to, "/")
}

// Inbox returns an agent's messages, optionally filtered to unread.
func (c *Client) Inbox(agentName string, unreadOnly bool) ([]*model.Message, error) {
	return c.Messages.Inbox(agentName, unreadOnly)
}

// MarkRead marks a message as read.
func (c *Client) MarkRead(id string) error {
	return c.Messages.MarkRead(id)
}
