package service

import (
	"context"
	"time"

	"github.com/iliyamo/dac-governance/internal/repository"
	"github.com/iliyamo/dac-governance/internal/utils/logger"
)

// NotificationKind names the message a recipient receives.
type NotificationKind string

const (
	// NotifyNewDar tells the chairs of the requested datasets' DACs that a
	// request was submitted.
	NotifyNewDar NotificationKind = "new_dar"
	// NotifyNewCase tells voters that an election awaits their vote.
	NotifyNewCase NotificationKind = "new_case"
	// NotifyDarDecision tells a researcher the outcome of an access election.
	NotifyDarDecision NotificationKind = "dar_decision"
	// NotifyElectionCanceled tells voters an election was withdrawn.
	NotifyElectionCanceled NotificationKind = "election_canceled"
)

// Notifier delivers notifications.  Implementations may be slow or fail;
// callers never let a failure change the result of the operation that
// triggered the notification.
type Notifier interface {
	Send(ctx context.Context, kind NotificationKind, recipients []uint64, data map[string]string) error
}

// Matcher re-runs automated matching of a request or consent against
// dataset data use.
type Matcher interface {
	Reprocess(ctx context.Context, referenceID string) error
}

// Deps are the collaborators every service is built from.
type Deps struct {
	Store    repository.Store
	Notifier Notifier
	Matcher  Matcher
	Log      *logger.Logger
	// Now defaults to time.Now in UTC, truncated to seconds to match
	// DATETIME columns.
	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC().Truncate(time.Second) }
	}
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	return d
}

// notify sends and logs a failure.  It never returns an error.
func (d Deps) notify(ctx context.Context, kind NotificationKind, recipients []uint64, data map[string]string) {
	if d.Notifier == nil || len(recipients) == 0 {
		return
	}
	if err := d.Notifier.Send(ctx, kind, recipients, data); err != nil {
		d.Log.Warn("notification %s to %d recipients failed: %v", kind, len(recipients), err)
	}
}

// reprocess asks the matcher to re-run and logs a failure.
func (d Deps) reprocess(ctx context.Context, referenceID string) {
	if d.Matcher == nil {
		return
	}
	if err := d.Matcher.Reprocess(ctx, referenceID); err != nil {
		d.Log.Warn("match reprocess for %s failed: %v", referenceID, err)
	}
}
