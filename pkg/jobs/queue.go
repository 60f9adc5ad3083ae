// Package jobs is a durable deferred-job queue on Redis. Jobs live in a hash
// and their fire times in a sorted set, so they survive restarts of both the
// scheduling process and the worker.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/harrisonrobin/clarity/pkg/logger"
)

// Payload is the reminder invocation carried by a job.
type Payload struct {
	TaskID     int64     `json:"task_id"`
	OwnerEmail string    `json:"owner_email"`
	TaskTitle  string    `json:"task_title"`
	DueDate    time.Time `json:"due_date"`
}

type Job struct {
	ID       string    `json:"id"`
	FireAt   time.Time `json:"fire_at"`
	Payload  Payload   `json:"payload"`
	Attempts int       `json:"attempts"`
}

// claimScript moves due members forward by the lease so a crashed worker's
// jobs reappear once the lease runs out.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
for _, id in ipairs(ids) do
	redis.call('ZADD', KEYS[1], ARGV[2], id)
end
return ids
`)

type Queue struct {
	rdb     redis.UniversalClient
	dueKey  string
	jobsKey string
}

func NewQueue(rdb redis.UniversalClient, keyPrefix string) *Queue {
	if keyPrefix == "" {
		keyPrefix = "clarity"
	}
	return &Queue{
		rdb:     rdb,
		dueKey:  keyPrefix + ":reminders:due",
		jobsKey: keyPrefix + ":reminders:jobs",
	}
}

// Schedule stores payload to fire at fireAt and returns the job handle.
func (q *Queue) Schedule(ctx context.Context, fireAt time.Time, payload Payload) (string, error) {
	job := Job{ID: uuid.NewString(), FireAt: fireAt.UTC(), Payload: payload}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("jobs: encode job: %w", err)
	}
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobsKey, job.ID, data)
	pipe.ZAdd(ctx, q.dueKey, redis.Z{Score: score(job.FireAt), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("jobs: schedule: %w", err)
	}
	return job.ID, nil
}

// Claim returns up to limit jobs due at now and hides them for lease.
// A claimed job must be Acked or it fires again after the lease.
func (q *Queue) Claim(ctx context.Context, now time.Time, lease time.Duration, limit int64) ([]Job, error) {
	if limit <= 0 {
		limit = 1
	}
	ids, err := claimScript.Run(ctx, q.rdb, []string{q.dueKey},
		formatScore(now), formatScore(now.Add(lease)), limit).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("jobs: claim: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	raw, err := q.rdb.HMGet(ctx, q.jobsKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("jobs: load claimed: %w", err)
	}
	log := logger.FromContext(ctx).With("component", "jobs")
	out := make([]Job, 0, len(ids))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			// Orphaned schedule entry.
			if err := q.rdb.ZRem(ctx, q.dueKey, ids[i]).Err(); err != nil {
				log.Warn("Failed to remove orphaned job", "job_id", ids[i], "error", err)
			}
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(s), &job); err != nil {
			log.Error("Dropping undecodable job", "job_id", ids[i], "error", err)
			if err := q.Ack(ctx, ids[i]); err != nil {
				log.Warn("Failed to remove undecodable job", "job_id", ids[i], "error", err)
			}
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

// Ack removes a finished job.
func (q *Queue) Ack(ctx context.Context, id string) error {
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.dueKey, id)
	pipe.HDel(ctx, q.jobsKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobs: ack %s: %w", id, err)
	}
	return nil
}

// Retry records a failed attempt and makes the job due again at at.
func (q *Queue) Retry(ctx context.Context, job Job, at time.Time) error {
	job.Attempts++
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobs: encode job: %w", err)
	}
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobsKey, job.ID, data)
	pipe.ZAdd(ctx, q.dueKey, redis.Z{Score: score(at), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobs: retry %s: %w", job.ID, err)
	}
	return nil
}

// Get loads a job by handle.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	s, err := q.rdb.HGet(ctx, q.jobsKey, id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("jobs: %s not found", id)
		}
		return nil, fmt.Errorf("jobs: get %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal([]byte(s), &job); err != nil {
		return nil, fmt.Errorf("jobs: decode %s: %w", id, err)
	}
	return &job, nil
}

// Pending counts scheduled jobs, claimed ones included.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	n, err := q.rdb.ZCard(ctx, q.dueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("jobs: pending: %w", err)
	}
	return n, nil
}

// score rounds up to the next millisecond so a stored job never becomes
// claimable before its fire time.
func score(t time.Time) float64 {
	ms := t.UnixMilli()
	if t.Nanosecond()%int(time.Millisecond) != 0 {
		ms++
	}
	return float64(ms)
}

// formatScore rounds down; it bounds claim queries.
func formatScore(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
