package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/clarity/pkg/jobs"
)

type delivery struct {
	email string
	title string
	due   time.Time
}

type fakeSender struct {
	sent []delivery
	err  error
}

func (f *fakeSender) Send(_ context.Context, email, title string, due time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, delivery{email: email, title: title, due: due})
	return nil
}

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func setupQueue(t *testing.T) *jobs.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return jobs.NewQueue(rdb, "test")
}

func TestPollerTick(t *testing.T) {
	ctx := context.Background()
	due := base.Add(time.Hour)
	payload := jobs.Payload{TaskID: 1, OwnerEmail: "user@example.com", TaskTitle: "Call mom", DueDate: due}

	t.Run("Should_send_due_reminders_once", func(t *testing.T) {
		q := setupQueue(t)
		_, err := q.Schedule(ctx, base.Add(30*time.Minute), payload)
		require.NoError(t, err)

		s := &fakeSender{}
		clock := base
		p := NewPoller(q, s, DefaultConfig()).WithClock(func() time.Time { return clock })

		n, err := p.Tick(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		clock = base.Add(30 * time.Minute)
		n, err = p.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.Len(t, s.sent, 1)
		assert.Equal(t, "user@example.com", s.sent[0].email)
		assert.Equal(t, "Call mom", s.sent[0].title)
		assert.True(t, due.Equal(s.sent[0].due))

		clock = base.Add(2 * time.Hour)
		n, err = p.Tick(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		pending, err := q.Pending(ctx)
		require.NoError(t, err)
		assert.Zero(t, pending)
	})

	t.Run("Should_retry_failed_delivery", func(t *testing.T) {
		q := setupQueue(t)
		id, err := q.Schedule(ctx, base, payload)
		require.NoError(t, err)

		s := &fakeSender{err: errors.New("smtp down")}
		cfg := DefaultConfig()
		cfg.RetryDelay = 5 * time.Minute
		clock := base
		p := NewPoller(q, s, cfg).WithClock(func() time.Time { return clock })

		n, err := p.Tick(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		job, err := q.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, job.Attempts)

		s.err = nil
		clock = base.Add(5 * time.Minute)
		n, err = p.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Should_drop_job_after_max_attempts", func(t *testing.T) {
		q := setupQueue(t)
		_, err := q.Schedule(ctx, base, payload)
		require.NoError(t, err)

		cfg := DefaultConfig()
		cfg.MaxAttempts = 1
		p := NewPoller(q, &fakeSender{err: errors.New("bad address")}, cfg).WithClock(func() time.Time { return base })

		_, err = p.Tick(ctx)
		require.NoError(t, err)
		pending, err := q.Pending(ctx)
		require.NoError(t, err)
		assert.Zero(t, pending)
	})
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	q := setupQueue(t)
	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	p := NewPoller(q, &fakeSender{}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}
