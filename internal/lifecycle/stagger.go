package lifecycle

import (
	"time"

	"github.com/overstory-run/overstory/internal/model"
)

// calculateStaggerDelay implements sling step 9: cap the burst spawn rate
// without serializing every spawn behind the last one. If the most
// recently started active session began less than staggerMs ago, the
// caller should sleep the returned remainder before continuing.
func calculateStaggerDelay(active []*model.AgentSession, staggerMs int, now time.Time) time.Duration {
	if staggerMs <= 0 || len(active) == 0 {
		return 0
	}

	var mostRecent time.Time
	for _, sess := range active {
		if sess.StartedAt.After(mostRecent) {
			mostRecent = sess.StartedAt
		}
	}
	if mostRecent.IsZero() {
		return 0
	}

	elapsed := now.Sub(mostRecent)
	remaining := time.Duration(staggerMs)*time.Millisecond - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
