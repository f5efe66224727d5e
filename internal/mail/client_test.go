package mail

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/overstory-run/overstory/internal/model"
	"github.com/overstory-run/overstory/internal/store"
)

type fakeNotifier struct {
	sent []string
}

func (f *fakeNotifier) Send(agentName, message, priority string) (bool, string, error) {
	f.sent = append(f.sent, agentName)
	return true, "", nil
}

func newTestClient(t *testing.T) (*Client, *fakeNotifier) {
	t.Helper()
	dir := t.TempDir()
	sessions, _, err := store.OpenSessionStore(filepath.Join(dir, "sessions.db"), "")
	if err != nil {
		t.Fatalf("OpenSessionStore: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })
	msgs, err := store.OpenMailStore(filepath.Join(dir, "mail.db"))
	if err != nil {
		t.Fatalf("OpenMailStore: %v", err)
	}
	t.Cleanup(func() { msgs.Close() })

	notify := &fakeNotifier{}
	return &Client{Messages: msgs, Sessions: sessions, Notify: notify}, notify
}

func TestClientSendDirect(t *testing.T) {
	c, notify := newTestClient(t)

	if err := c.Send(&model.Message{From: "lead", To: "builder-1", Subject: "hi", Body: "go"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	inbox, err := c.Inbox("builder-1", false)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(inbox) != 1 {
		t.Fatalf("Inbox len = %d, want 1", len(inbox))
	}
	if len(notify.sent) != 1 || notify.sent[0] != "builder-1" {
		t.Errorf("notify.sent = %v, want [builder-1]", notify.sent)
	}
}

func TestClientSendSelfMailSkipsNotify(t *testing.T) {
	c, notify := newTestClient(t)

	if err := c.Send(&model.Message{From: "lead", To: "lead", Subject: "note to self"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(notify.sent) != 0 {
		t.Errorf("expected no notification for self-mail, got %v", notify.sent)
	}
}

func TestClientSendBroadcastPattern(t *testing.T) {
	c, _ := newTestClient(t)
	now := time.Now().UTC()
	for _, name := range []string{"builder-1", "builder-2", "reviewer-1"} {
		sess := &model.AgentSession{
			AgentName: name, Capability: "builder", TmuxSession: "proj-" + name, State: "working",
			StartedAt: now, LastActivity: now,
		}
		if err := c.Sessions.Upsert(sess); err != nil {
			t.Fatalf("Upsert %s: %v", name, err)
		}
	}

	if err := c.Send(&model.Message{From: "lead", To: "builder-*", Subject: "status check"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	for _, name := range []string{"builder-1", "builder-2"} {
		inbox, err := c.Inbox(name, false)
		if err != nil {
			t.Fatalf("Inbox(%s): %v", name, err)
		}
		if len(inbox) != 1 {
			t.Errorf("Inbox(%s) len = %d, want 1", name, len(inbox))
		}
	}
	inbox, err := c.Inbox("reviewer-1", false)
	if err != nil {
		t.Fatalf("Inbox(reviewer-1): %v", err)
	}
	if len(inbox) != 0 {
		t.Errorf("reviewer-1 should not match builder-* pattern, got %d messages", len(inbox))
	}
}

func TestClientSendNoMatchErrors(t *testing.T) {
	c, _ := newTestClient(t)
	if err := c.Send(&model.Message{From: "lead", To: "nobody-*", Subject: "x"}); err == nil {
		t.Fatal("expected error when broadcast pattern matches nobody")
	}
}
