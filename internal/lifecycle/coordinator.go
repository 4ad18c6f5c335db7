// Package lifecycle coordinates everything that happens when a call ends:
// summary generation first, then best-effort external follow-up actions.
//
// The summary is always generated and cached before anything else, so the
// caller gets it even when the lead record is incomplete. Calendar booking
// and CRM lead creation run concurrently and independently; a failure in one
// never cancels the other and neither changes the summary outcome.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/callsmith-ai/callsmith/internal/call"
	"github.com/callsmith-ai/callsmith/internal/entity"
	"github.com/callsmith-ai/callsmith/internal/summary"
	"github.com/callsmith-ai/callsmith/pkg/provider/calendar"
	"github.com/callsmith-ai/callsmith/pkg/provider/crm"
)

// Status values for Result.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// LeadSource labels leads created from finished calls.
const LeadSource = "AI Sales Call"

// Result is returned to the call-end caller.
type Result struct {
	Status  string
	Summary string
	Outcome call.Outcome

	// CalendarInvoked and CRMInvoked report whether the external actions
	// were attempted, regardless of whether they succeeded.
	CalendarInvoked bool
	CRMInvoked      bool
}

// Coordinator runs the end-of-call sequence. Safe for concurrent use.
type Coordinator struct {
	summaries *summary.Generator
	scheduler calendar.Scheduler
	leads     crm.Connector
	logger    *slog.Logger
}

// New builds a coordinator. scheduler and leads may be nil when the
// deployment has no calendar or CRM configured; the corresponding action is
// then skipped.
func New(summaries *summary.Generator, scheduler calendar.Scheduler, leads crm.Connector, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		summaries: summaries,
		scheduler: scheduler,
		leads:     leads,
		logger:    logger,
	}
}

// OnCallEnd generates the summary and, when the lead record qualifies, fires
// the follow-up actions. Only a summary generation failure produces an error
// status; action failures are logged and isolated.
func (c *Coordinator) OnCallEnd(ctx context.Context, sess *call.Session) Result {
	sum, err := c.summaries.Generate(ctx, sess)
	if err != nil {
		c.logger.Error("summary generation failed", "call_id", sess.ID, "error", err)
		latest := c.summaries.Latest(sess)
		return Result{Status: StatusError, Summary: latest.Summary}
	}
	res := Result{Status: StatusSuccess, Summary: sum.Text, Outcome: sum.Outcome}

	rec, blocked := snapshotEntities(sess)
	if blocked {
		c.logger.Info("follow-up actions blocked for this call", "call_id", sess.ID)
		return res
	}
	if missing := rec.Missing(); len(missing) > 0 {
		c.logger.Info("lead record incomplete, skipping follow-up actions",
			"call_id", sess.ID, "missing", missing)
		return res
	}
	email, ok := entity.SanitizeEmail(*rec.Email)
	if !ok {
		c.logger.Error("invalid email, skipping follow-up actions",
			"call_id", sess.ID, "email", *rec.Email)
		return res
	}

	var g errgroup.Group
	if c.scheduler != nil {
		res.CalendarInvoked = true
		g.Go(func() error {
			if err := c.bookMeeting(ctx, sess.ID, rec, email, sum.Text); err != nil {
				c.logger.Error("calendar booking failed", "call_id", sess.ID, "error", err)
			}
			return nil
		})
	}
	if c.leads != nil {
		res.CRMInvoked = true
		g.Go(func() error {
			if err := c.createLead(ctx, sess.ID, rec, email, sum.Text); err != nil {
				c.logger.Error("lead creation failed", "call_id", sess.ID, "error", err)
			}
			return nil
		})
	}
	g.Wait()
	return res
}

// snapshotEntities copies the lead record under the session lock.
func snapshotEntities(sess *call.Session) (entity.Record, bool) {
	sess.Lock()
	defer sess.Unlock()
	return sess.Entities.Clone(), sess.ActionsBlocked
}

// bookMeeting creates the one-hour consultation event.
func (c *Coordinator) bookMeeting(ctx context.Context, callID string, rec entity.Record, email, summaryText string) error {
	start, err := parseMeeting(*rec.MeetingDate, *rec.MeetingTime)
	if err != nil {
		return err
	}
	inv, err := c.scheduler.CreateEvent(ctx, calendar.Event{
		Title:         fmt.Sprintf("Consultation with %s (%s)", *rec.Name, *rec.CompanyName),
		Description:   summaryText,
		Start:         start,
		AttendeeEmail: email,
	})
	if err != nil {
		return err
	}
	c.logger.Info("meeting booked", "call_id", callID, "event_id", inv.EventID, "link", inv.Link)
	return nil
}

// createLead records the prospect in the CRM.
func (c *Coordinator) createLead(ctx context.Context, callID string, rec entity.Record, email, summaryText string) error {
	first, last := splitName(*rec.Name)
	id, err := c.leads.CreateLead(ctx, crm.Lead{
		FirstName:   first,
		LastName:    last,
		Company:     *rec.CompanyName,
		Email:       email,
		Description: summaryText,
		Source:      LeadSource,
	})
	if err != nil {
		return err
	}
	c.logger.Info("lead created", "call_id", callID, "lead_id", id)
	return nil
}

// splitName divides a spoken name into first and last. A single-word name
// becomes the last name so CRM backends that require one stay happy.
func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", "Unknown"
	case 1:
		return "", parts[0]
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// parseMeeting combines the captured date and time. The primary shape is
// DD-MM-YYYY with an ISO fallback for models that ignore the format rule.
func parseMeeting(date, clock string) (time.Time, error) {
	stamp := strings.TrimSpace(date) + " " + strings.TrimSpace(clock)
	for _, layout := range []string{"02-01-2006 15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, stamp, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("lifecycle: unparseable meeting slot %q", stamp)
}
