// Package worker fires due reminder jobs outside the request path.
package worker

import (
	"context"
	"time"

	"github.com/harrisonrobin/clarity/pkg/jobs"
	"github.com/harrisonrobin/clarity/pkg/logger"
	"github.com/harrisonrobin/clarity/pkg/notify"
)

type Queue interface {
	Claim(ctx context.Context, now time.Time, lease time.Duration, limit int64) ([]jobs.Job, error)
	Ack(ctx context.Context, id string) error
	Retry(ctx context.Context, job jobs.Job, at time.Time) error
}

type Config struct {
	Interval    time.Duration
	Lease       time.Duration
	BatchSize   int64
	RetryDelay  time.Duration
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		Interval:    5 * time.Second,
		Lease:       time.Minute,
		BatchSize:   50,
		RetryDelay:  time.Minute,
		MaxAttempts: 10,
	}
}

// Poller claims due jobs and hands them to a Sender. Delivery is at least
// once: a job is acked only after Send returns.
type Poller struct {
	queue  Queue
	sender notify.Sender
	cfg    Config
	now    func() time.Time
}

func NewPoller(queue Queue, sender notify.Sender, cfg Config) *Poller {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Poller{queue: queue, sender: sender, cfg: cfg, now: time.Now}
}

func (p *Poller) WithClock(now func() time.Time) *Poller {
	c := *p
	c.now = now
	return &c
}

// Run ticks until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	log := logger.FromContext(ctx).With("component", "worker")
	log.Info("Reminder worker started", "interval", p.cfg.Interval, "batch_size", p.cfg.BatchSize)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := p.Tick(ctx); err != nil {
			log.Error("Reminder sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			log.Info("Reminder worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one sweep and returns the number of reminders delivered.
func (p *Poller) Tick(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx).With("component", "worker")
	now := p.now().UTC()
	claimed, err := p.queue.Claim(ctx, now, p.cfg.Lease, p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, job := range claimed {
		pl := job.Payload
		if err := p.sender.Send(ctx, pl.OwnerEmail, pl.TaskTitle, pl.DueDate); err != nil {
			if job.Attempts+1 >= p.cfg.MaxAttempts {
				log.Error("Dropping reminder after repeated failures", "job_id", job.ID, "task_id", pl.TaskID, "attempts", job.Attempts+1, "error", err)
				if ackErr := p.queue.Ack(ctx, job.ID); ackErr != nil {
					log.Error("Failed to drop reminder", "job_id", job.ID, "error", ackErr)
				}
				continue
			}
			log.Warn("Reminder delivery failed, will retry", "job_id", job.ID, "task_id", pl.TaskID, "error", err)
			if rErr := p.queue.Retry(ctx, job, now.Add(p.cfg.RetryDelay)); rErr != nil {
				log.Error("Failed to reschedule reminder", "job_id", job.ID, "error", rErr)
			}
			continue
		}
		if err := p.queue.Ack(ctx, job.ID); err != nil {
			// Lease expiry will redeliver it.
			log.Error("Failed to ack reminder", "job_id", job.ID, "error", err)
		}
		sent++
	}
	if len(claimed) > 0 {
		log.Debug("Reminder sweep done", "claimed", len(claimed), "sent", sent)
	}
	return sent, nil
}
