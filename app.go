package main

import (
	"context"
	"os"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/harrisonrobin/clarity/pkg/auth"
	"github.com/harrisonrobin/clarity/pkg/config"
	"github.com/harrisonrobin/clarity/pkg/google"
	"github.com/harrisonrobin/clarity/pkg/jobs"
	"github.com/harrisonrobin/clarity/pkg/logger"
	"github.com/harrisonrobin/clarity/pkg/nlp"
	"github.com/harrisonrobin/clarity/pkg/notify"
	"github.com/harrisonrobin/clarity/pkg/reminder"
	"github.com/harrisonrobin/clarity/pkg/store"
	"github.com/harrisonrobin/clarity/pkg/tasks"
	"github.com/harrisonrobin/clarity/pkg/worker"
)

// app holds the long-lived resources shared by the subcommands.
type app struct {
	cfg    *config.Config
	log    logger.Logger
	db     *store.DB
	rdb    *redis.Client
	queue  *jobs.Queue
	tasks  *store.TaskStore
	owners *store.OwnerStore
}

// loadConfig reads configuration and applies the logging flags.
func loadConfig() (*config.Config, logger.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logJSON {
		cfg.Log.JSON = true
	}
	logger.Init(&logger.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Output: os.Stderr})
	return cfg, logger.FromContext(context.Background()), nil
}

func openStoreOnly(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, store.Config{Path: cfg.Database.Path, BusyTimeout: cfg.Database.BusyTimeout})
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:    cfg,
		log:    log,
		db:     db,
		tasks:  store.NewTaskStore(db),
		owners: store.NewOwnerStore(db),
	}, nil
}

func openApp(ctx context.Context) (*app, error) {
	a, err := openStoreOnly(ctx)
	if err != nil {
		return nil, err
	}
	rdb, err := jobs.NewRedisClient(ctx, jobs.RedisConfig{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.rdb = rdb
	a.queue = jobs.NewQueue(rdb, a.cfg.Redis.KeyPrefix)
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("Failed to close redis client", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}

func (a *app) issuer() (*auth.Issuer, error) {
	return auth.NewIssuer(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer, a.cfg.Auth.TokenTTL, a.cfg.Auth.StateTTL)
}

// oauthConfig is nil when Google client credentials are missing.
func (a *app) oauthConfig() *oauth2.Config {
	s := auth.GoogleSettings{
		ClientID:     a.cfg.Google.ClientID,
		ClientSecret: a.cfg.Google.ClientSecret,
		RedirectURL:  a.cfg.Google.RedirectURL,
	}
	if !s.Configured() {
		return nil
	}
	return auth.OAuthConfig(s)
}

func (a *app) orchestrator() (*tasks.Orchestrator, error) {
	opts := []tasks.Option{tasks.WithEventDuration(a.cfg.Calendar.EventDuration)}

	gen, err := nlp.NewAnthropicClient(nlp.AnthropicConfig{
		APIKey:    a.cfg.Anthropic.APIKey,
		Model:     a.cfg.Anthropic.Model,
		MaxTokens: a.cfg.Anthropic.MaxTokens,
	})
	if err != nil {
		a.log.Warn("Free-text task creation disabled", "error", err)
	} else {
		opts = append(opts, tasks.WithNormalizer(nlp.NewNormalizer(gen,
			nlp.WithLocation(a.cfg.Location()),
			nlp.WithTimeout(a.cfg.NLP.Timeout),
		)))
	}

	oauthCfg := a.oauthConfig()
	if oauthCfg == nil {
		a.log.Warn("Google client credentials missing, calendar sync will be skipped")
		oauthCfg = auth.OAuthConfig(auth.GoogleSettings{})
	}
	connector := google.NewConnector(
		a.owners,
		google.NewCalendarProvider(oauthCfg, a.cfg.Google.Endpoint),
		a.cfg.Google.CalendarID,
		a.cfg.Google.Timeout,
	)

	return tasks.NewOrchestrator(
		a.tasks,
		a.owners,
		reminder.NewScheduler(a.queue, a.cfg.Reminder.Lead),
		connector,
		opts...,
	), nil
}

func (a *app) poller() *worker.Poller {
	return worker.NewPoller(a.queue, notify.NewLogSender(os.Stdout, a.cfg.Location()), worker.Config{
		Interval:    a.cfg.Worker.Interval,
		Lease:       a.cfg.Worker.Lease,
		BatchSize:   a.cfg.Worker.BatchSize,
		RetryDelay:  a.cfg.Worker.RetryDelay,
		MaxAttempts: a.cfg.Worker.MaxAttempts,
	})
}
