package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/callsmith-ai/callsmith/internal/call"
	"github.com/callsmith-ai/callsmith/internal/summary"
	"github.com/callsmith-ai/callsmith/pkg/provider/calendar"
	calmock "github.com/callsmith-ai/callsmith/pkg/provider/calendar/mock"
	"github.com/callsmith-ai/callsmith/pkg/provider/crm"
	crmmock "github.com/callsmith-ai/callsmith/pkg/provider/crm/mock"
	"github.com/callsmith-ai/callsmith/pkg/provider/llm"
	llmmock "github.com/callsmith-ai/callsmith/pkg/provider/llm/mock"
)

func reply(text string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Content: text}
}

func strp(s string) *string { return &s }

func completeSession() *call.Session {
	sess := call.NewSession("call-1", "system")
	sess.Lock()
	sess.AppendTurn("user", "book me in")
	sess.AppendTurn("assistant", "Done.")
	sess.Entities.Name = strp("Asha Rao")
	sess.Entities.Email = strp("asha@example.com")
	sess.Entities.CompanyName = strp("Acme")
	sess.Entities.MeetingDate = strp("12-09-2026")
	sess.Entities.MeetingTime = strp("14:30")
	sess.Unlock()
	return sess
}

func newCoordinator(model *llmmock.Provider, cal calendar.Scheduler, leads crm.Connector) *Coordinator {
	return New(summary.NewGenerator(model, nil), cal, leads, nil)
}

func TestOnCallEndInvokesBothActions(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: reply("Meeting booked. Outcome: Converted")}
	cal := &calmock.Scheduler{}
	leads := &crmmock.Connector{}
	c := newCoordinator(model, cal, leads)

	res := c.OnCallEnd(context.Background(), completeSession())
	if res.Status != StatusSuccess {
		t.Fatalf("status = %q", res.Status)
	}
	if res.Outcome != call.OutcomeConverted {
		t.Errorf("outcome = %v", res.Outcome)
	}
	if !res.CalendarInvoked || !res.CRMInvoked {
		t.Errorf("actions not invoked: %+v", res)
	}
	if len(cal.Calls) != 1 {
		t.Fatalf("calendar calls = %d", len(cal.Calls))
	}
	ev := cal.Calls[0]
	want := time.Date(2026, 9, 12, 14, 30, 0, 0, time.Local)
	if !ev.Start.Equal(want) {
		t.Errorf("event start = %v, want %v", ev.Start, want)
	}
	if ev.AttendeeEmail != "asha@example.com" {
		t.Errorf("attendee = %q", ev.AttendeeEmail)
	}
	if len(leads.Calls) != 1 {
		t.Fatalf("crm calls = %d", len(leads.Calls))
	}
	lead := leads.Calls[0]
	if lead.FirstName != "Asha" || lead.LastName != "Rao" {
		t.Errorf("name split = %q %q", lead.FirstName, lead.LastName)
	}
	if lead.Source != LeadSource || lead.Company != "Acme" {
		t.Errorf("lead = %+v", lead)
	}
}

func TestOnCallEndSkipsActionsWhenEntityMissing(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: reply("No meeting. Outcome: FollowUp")}
	cal := &calmock.Scheduler{}
	leads := &crmmock.Connector{}
	c := newCoordinator(model, cal, leads)

	sess := completeSession()
	sess.Lock()
	sess.Entities.MeetingDate = nil
	sess.Unlock()

	res := c.OnCallEnd(context.Background(), sess)
	if res.Status != StatusSuccess {
		t.Errorf("status = %q; incomplete record must not fail the call end", res.Status)
	}
	if res.Summary == "" {
		t.Error("summary missing despite skipped actions")
	}
	if len(cal.Calls) != 0 || len(leads.Calls) != 0 {
		t.Error("actions invoked with incomplete record")
	}
}

func TestOnCallEndSkipsActionsWhenEmailInvalid(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: reply("Summary. Outcome: FollowUp")}
	cal := &calmock.Scheduler{}
	leads := &crmmock.Connector{}
	c := newCoordinator(model, cal, leads)

	sess := completeSession()
	sess.Lock()
	sess.Entities.Email = strp("not-an-email")
	sess.Unlock()

	res := c.OnCallEnd(context.Background(), sess)
	if res.Status != StatusSuccess {
		t.Errorf("status = %q", res.Status)
	}
	if len(cal.Calls) != 0 || len(leads.Calls) != 0 {
		t.Error("actions invoked with invalid email")
	}
}

func TestOnCallEndHonoursActionsBlocked(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: reply("Summary. Outcome: Rejected")}
	cal := &calmock.Scheduler{}
	leads := &crmmock.Connector{}
	c := newCoordinator(model, cal, leads)

	sess := completeSession()
	sess.Lock()
	sess.ActionsBlocked = true
	sess.Unlock()

	c.OnCallEnd(context.Background(), sess)
	if len(cal.Calls) != 0 || len(leads.Calls) != 0 {
		t.Error("actions invoked on a blocked session")
	}
}

func TestActionFailuresAreIsolated(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: reply("Summary. Outcome: Converted")}
	cal := &calmock.Scheduler{Err: errors.New("calendar down")}
	leads := &crmmock.Connector{}
	c := newCoordinator(model, cal, leads)

	res := c.OnCallEnd(context.Background(), completeSession())
	if res.Status != StatusSuccess {
		t.Errorf("status = %q; action failure must not surface", res.Status)
	}
	if res.Outcome != call.OutcomeConverted {
		t.Errorf("outcome changed by action failure: %v", res.Outcome)
	}
	if len(leads.Calls) != 1 {
		t.Error("CRM skipped because calendar failed")
	}
}

func TestSummaryFailureReturnsErrorStatus(t *testing.T) {
	model := &llmmock.Provider{CompleteErr: errors.New("model down")}
	cal := &calmock.Scheduler{}
	leads := &crmmock.Connector{}
	c := newCoordinator(model, cal, leads)

	res := c.OnCallEnd(context.Background(), completeSession())
	if res.Status != StatusError {
		t.Errorf("status = %q, want error", res.Status)
	}
	if len(cal.Calls) != 0 || len(leads.Calls) != 0 {
		t.Error("actions invoked despite summary failure")
	}
}

func TestOnCallEndIsIdempotentAcrossRepeatedEvents(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: reply("Summary. Outcome: FollowUp")}
	c := newCoordinator(model, nil, nil)
	sess := completeSession()

	first := c.OnCallEnd(context.Background(), sess)
	second := c.OnCallEnd(context.Background(), sess)
	if first.Summary != second.Summary || first.Outcome != second.Outcome {
		t.Errorf("repeated call-end changed the summary: %+v vs %+v", first, second)
	}
	if len(model.CompleteCalls) != 1 {
		t.Errorf("summary regenerated: %d model calls", len(model.CompleteCalls))
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Asha Rao", "Asha", "Rao"},
		{"Asha", "", "Asha"},
		{"Asha Devi Rao", "Asha", "Devi Rao"},
		{"", "", "Unknown"},
	}
	for _, tt := range tests {
		first, last := splitName(tt.in)
		if first != tt.first || last != tt.last {
			t.Errorf("splitName(%q) = (%q, %q), want (%q, %q)", tt.in, first, last, tt.first, tt.last)
		}
	}
}

func TestParseMeetingFallback(t *testing.T) {
	if _, err := parseMeeting("2026-09-12", "09:00"); err != nil {
		t.Errorf("ISO fallback rejected: %v", err)
	}
	if _, err := parseMeeting("next tuesday", "morning"); err == nil {
		t.Error("garbage slot accepted")
	}
}
