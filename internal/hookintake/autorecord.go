package hookintake

import (
	"fmt"
	"strings"

	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/expertise"
	"github.com/overstory-run/overstory/internal/logging"
	"github.com/overstory-run/overstory/internal/model"
	"github.com/overstory-run/overstory/internal/store"
	"github.com/overstory-run/overstory/internal/vcs"
)

// sender is the narrow mail dependency auto-record needs.
type sender interface {
	Send(msg *model.Message) error
}

// AutoRecorder implements the post-session learning pass: after a
// non-persistent agent's session ends, derive what it touched and what
// it learned, and hand both to the things that care — the expertise
// advisor and the agent's parent.
type AutoRecorder struct {
	Events  *store.EventStore
	Advisor expertise.Lookuper
	Mail    sender
	Log     *logging.Logger
}

// NewAutoRecorder returns an AutoRecorder wired to the given
// dependencies. Advisor and Mail may be nil to disable the
// corresponding step (each step is independently non-fatal).
func NewAutoRecorder(events *store.EventStore, advisor expertise.Lookuper, mailer sender) *AutoRecorder {
	return &AutoRecorder{Events: events, Advisor: advisor, Mail: mailer, Log: logging.New("autorecord")}
}

// Run executes the auto-record flow for a session that just ended.
// Every step is independently non-fatal: a failure in one does not
// prevent the others from running.
func (a *AutoRecorder) Run(sess *model.AgentSession) error {
	a.Log.Discard("record_expertise", func() error { return a.recordExpertise(sess) })

	stats, err := a.Events.GetToolStats(sess.AgentName)
	var insightLines []string
	if err == nil {
		for _, s := range stats {
			insightLines = append(insightLines, fmt.Sprintf("%s x%d (%dms total)", s.ToolName, s.CallCount, s.TotalDuration))
		}
	}

	if a.Mail != nil {
		a.Log.Discard("send_summary_mail", func() error {
			return a.sendSummary(sess, insightLines)
		})
	}
	return nil
}

// recordExpertise asks the expertise advisor about this session's working
// copy and records one expertise_learned event for the single area the
// advisor returns, so a later agent working the same area can find it via
// the event log. Changed files are not passed to the advisor, and only
// one area is recorded per session.
func (a *AutoRecorder) recordExpertise(sess *model.AgentSession) error {
	if a.Advisor == nil {
		return nil
	}
	advice, err := a.Advisor.Lookup(sess.WorktreePath)
	if err != nil || advice == nil {
		return err
	}
	_, err = a.Events.Append(&model.Event{
		AgentName: sess.AgentName,
		EventType: "expertise_learned",
		Level:     "info",
		Data:      []byte(fmt.Sprintf(`{"area":%q,"summary":%q,"files":%d}`, advice.Area, advice.Summary, len(advice.Files))),
	})
	return err
}

func (a *AutoRecorder) sendSummary(sess *model.AgentSession, insightLines []string) error {
	parent := sess.ParentAgent
	to := constants.SentinelOrchestrator
	if parent != nil && *parent != "" {
		to = *parent
	}

	git := vcs.New(sess.WorktreePath)
	changed, _ := git.Status()

	body := fmt.Sprintf("Session %s (capability=%s, bead=%s) completed.\n\nTool usage:\n%s\n\nWorking-copy status:\n%s",
		sess.AgentName, sess.Capability, sess.BeadID, strings.Join(insightLines, "\n"), changed)

	return a.Mail.Send(&model.Message{
		From:    sess.AgentName,
		To:      to,
		Subject: fmt.Sprintf("%s session summary", sess.AgentName),
		Body:    body,
		Type:    model.MessageTypeResult,
	})
}
