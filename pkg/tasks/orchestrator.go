// Package tasks sequences task creation: persist first, then the reminder and
// calendar steps, neither of which can undo the committed task.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harrisonrobin/clarity/pkg/google"
	"github.com/harrisonrobin/clarity/pkg/logger"
	"github.com/harrisonrobin/clarity/pkg/model"
	"github.com/harrisonrobin/clarity/pkg/reminder"
	"github.com/harrisonrobin/clarity/pkg/store"
)

// DefaultEventDuration is the length of a mirrored calendar event.
const DefaultEventDuration = time.Hour

// ErrUninterpretable means free text produced no command. Nothing was stored.
var ErrUninterpretable = errors.New("could not interpret text as a task")

type State int

const (
	Received State = iota
	Persisted
	ReminderEvaluated
	CalendarEvaluated
	Completed
)

func (s State) String() string {
	switch s {
	case Received:
		return "received"
	case Persisted:
		return "persisted"
	case ReminderEvaluated:
		return "reminder_evaluated"
	case CalendarEvaluated:
		return "calendar_evaluated"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result carries the new task id and the best-effort outcomes. Calendar is
// nil when the step did not run.
type Result struct {
	TaskID   int64
	State    State
	Reminder reminder.Outcome
	Calendar *google.SyncOutcome
}

type TaskCreator interface {
	Create(ctx context.Context, ownerID string, cmd model.CreateCommand) (int64, error)
	Find(ctx context.Context, id int64, ownerID string) (*model.Task, error)
}

type OwnerFinder interface {
	FindOwnerByID(ctx context.Context, id string) (*model.Owner, error)
}

type ReminderScheduler interface {
	MaybeSchedule(ctx context.Context, task *model.Task, ownerEmail string) reminder.Outcome
}

type CalendarSyncer interface {
	SyncEvent(ctx context.Context, ownerID, title string, notes *string, start, end time.Time, opts ...google.SyncOption) google.SyncOutcome
}

type Normalizer interface {
	Normalize(ctx context.Context, text string) (*model.CreateCommand, error)
}

type Orchestrator struct {
	tasks         TaskCreator
	owners        OwnerFinder
	reminders     ReminderScheduler
	calendar      CalendarSyncer
	normalizer    Normalizer
	eventDuration time.Duration
	now           func() time.Time
}

type Option func(*Orchestrator)

func WithNormalizer(n Normalizer) Option {
	return func(o *Orchestrator) { o.normalizer = n }
}

func WithEventDuration(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.eventDuration = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(tasks TaskCreator, owners OwnerFinder, reminders ReminderScheduler, calendar CalendarSyncer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tasks:         tasks,
		owners:        owners,
		reminders:     reminders,
		calendar:      calendar,
		eventDuration: DefaultEventDuration,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateFromText interprets text and creates the resulting task.
func (o *Orchestrator) CreateFromText(ctx context.Context, ownerID, text string) (Result, error) {
	if o.normalizer == nil {
		return Result{State: Received}, fmt.Errorf("%w: no text interpreter configured", ErrUninterpretable)
	}
	cmd, err := o.normalizer.Normalize(ctx, text)
	if err != nil {
		return Result{State: Received}, fmt.Errorf("%w: %w", ErrUninterpretable, err)
	}
	if cmd == nil {
		return Result{State: Received}, fmt.Errorf("%w: interpreter returned no command", ErrUninterpretable)
	}
	return o.Create(ctx, ownerID, *cmd)
}

// Create validates and stores cmd, then runs the reminder and calendar steps.
// An error is returned only when nothing was stored.
func (o *Orchestrator) Create(ctx context.Context, ownerID string, cmd model.CreateCommand) (Result, error) {
	log := logger.FromContext(ctx).With("component", "orchestrator", "owner_id", ownerID)
	res := Result{State: Received}

	cmd.Normalize()
	if err := cmd.Validate(o.now()); err != nil {
		return res, err
	}

	id, err := o.tasks.Create(ctx, ownerID, cmd)
	if err != nil {
		return res, fmt.Errorf("persist task: %w", err)
	}
	res.TaskID = id
	res.State = Persisted
	log = log.With("task_id", id)
	log.Info("Task persisted", "title", cmd.Title, "has_due_date", cmd.DueDate != nil)

	task, err := o.tasks.Find(ctx, id, ownerID)
	if err != nil {
		// The row exists; fall back to what was submitted.
		log.Warn("Could not reload persisted task", "error", err)
		task = &model.Task{ID: id, OwnerID: ownerID, Title: cmd.Title, Notes: cmd.Notes, DueDate: cmd.DueDate}
	}

	if task.DueDate == nil {
		res.Reminder = reminder.Outcome{Reason: reminder.NoDueDate}
		logStep(log, "reminder", res.Reminder.String(), string(res.Reminder.Reason), nil)
		res.State = Completed
		return res, nil
	}

	var g errgroup.Group
	g.Go(func() error {
		res.Reminder = o.reminders.MaybeSchedule(ctx, task, o.ownerEmail(ctx, ownerID))
		return nil
	})
	g.Go(func() error {
		end := task.DueDate.Add(o.eventDuration)
		out := o.calendar.SyncEvent(ctx, ownerID, task.Title, task.Notes, *task.DueDate, end, google.WithTaskID(id))
		res.Calendar = &out
		return nil
	})
	_ = g.Wait()

	res.State = ReminderEvaluated
	logStep(log, "reminder", res.Reminder.String(), string(res.Reminder.Reason), res.Reminder.Err,
		"fire_at", res.Reminder.FireAt, "job_id", res.Reminder.JobID)
	res.State = CalendarEvaluated
	logStep(log, "calendar", res.Calendar.String(), string(res.Calendar.Reason), res.Calendar.Err,
		"event_id", res.Calendar.EventID)

	res.State = Completed
	return res, nil
}

func (o *Orchestrator) ownerEmail(ctx context.Context, ownerID string) string {
	owner, err := o.owners.FindOwnerByID(ctx, ownerID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.FromContext(ctx).Warn("Owner lookup failed", "owner_id", ownerID, "error", err)
		}
		return ""
	}
	return owner.Email
}

// logStep emits one structured line per best-effort step.
func logStep(log logger.Logger, step, outcome, reason string, err error, kv ...any) {
	fields := append([]any{"step", step, "outcome", outcome}, kv...)
	if reason != "" {
		fields = append(fields, "reason", reason)
	}
	if err != nil {
		fields = append(fields, "error", err)
		log.Warn("Task side effect skipped", fields...)
		return
	}
	log.Info("Task side effect evaluated", fields...)
}
