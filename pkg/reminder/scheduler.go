// Package reminder decides whether a task gets a reminder and hands the
// reminder to the deferred job facility.
package reminder

import (
	"context"
	"strings"
	"time"

	"github.com/harrisonrobin/clarity/pkg/jobs"
	"github.com/harrisonrobin/clarity/pkg/logger"
	"github.com/harrisonrobin/clarity/pkg/model"
)

// DefaultLead is how long before the due date a reminder fires.
const DefaultLead = 30 * time.Minute

type SkipReason string

const (
	NoDueDate   SkipReason = "no_due_date"
	TooLate     SkipReason = "too_late"
	NoRecipient SkipReason = "no_recipient"
	Failed      SkipReason = "failed"
)

// Outcome is the result of one scheduling decision. Exactly one of
// Scheduled or Reason is set.
type Outcome struct {
	Scheduled bool
	FireAt    time.Time
	JobID     string
	Reason    SkipReason
	Err       error
}

func (o Outcome) String() string {
	if o.Scheduled {
		return "scheduled"
	}
	return "skipped"
}

// JobFacility is the part of the deferred job queue the scheduler needs.
type JobFacility interface {
	Schedule(ctx context.Context, fireAt time.Time, payload jobs.Payload) (string, error)
}

type Scheduler struct {
	jobs JobFacility
	lead time.Duration
	now  func() time.Time
}

func NewScheduler(facility JobFacility, lead time.Duration) *Scheduler {
	if lead <= 0 {
		lead = DefaultLead
	}
	return &Scheduler{jobs: facility, lead: lead, now: time.Now}
}

// WithClock returns a copy of the scheduler reading time from now.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	c := *s
	c.now = now
	return &c
}

// MaybeSchedule never returns an error; facility failures become a Failed
// outcome and the task stays committed.
func (s *Scheduler) MaybeSchedule(ctx context.Context, task *model.Task, ownerEmail string) Outcome {
	log := logger.FromContext(ctx).With("component", "reminder")
	if task == nil || task.DueDate == nil {
		return Outcome{Reason: NoDueDate}
	}

	fireAt := task.DueDate.UTC().Add(-s.lead)
	if !fireAt.After(s.now().UTC()) {
		return Outcome{Reason: TooLate, FireAt: fireAt}
	}
	ownerEmail = strings.TrimSpace(ownerEmail)
	if ownerEmail == "" {
		return Outcome{Reason: NoRecipient, FireAt: fireAt}
	}

	id, err := s.jobs.Schedule(ctx, fireAt, jobs.Payload{
		TaskID:     task.ID,
		OwnerEmail: ownerEmail,
		TaskTitle:  task.Title,
		DueDate:    task.DueDate.UTC(),
	})
	if err != nil {
		log.Error("Failed to schedule reminder", "task_id", task.ID, "fire_at", fireAt, "error", err)
		return Outcome{Reason: Failed, FireAt: fireAt, Err: err}
	}
	log.Debug("Scheduled reminder", "task_id", task.ID, "job_id", id, "fire_at", fireAt)
	return Outcome{Scheduled: true, FireAt: fireAt, JobID: id}
}
