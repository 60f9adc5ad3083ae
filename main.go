package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harrisonrobin/clarity/pkg/config"
	"github.com/harrisonrobin/clarity/pkg/logger"
	"github.com/harrisonrobin/clarity/pkg/server"
	"github.com/harrisonrobin/clarity/pkg/store"
)

var (
	configPath string
	logLevel   string
	logJSON    bool
	withWorker bool
	ownerEmail string
	ownerRef   string
)

var rootCmd = &cobra.Command{
	Use:   "clarity",
	Short: "Personal task service with reminders and calendar sync",
	Long: `Clarity stores short personal tasks, turns free text into tasks with a
language model, schedules reminders ahead of due dates and mirrors dated
tasks into Google Calendar.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		orch, err := a.orchestrator()
		if err != nil {
			return err
		}
		issuer, err := a.issuer()
		if err != nil {
			return err
		}
		srv := server.New(server.Deps{
			Orchestrator: orch,
			Tasks:        a.tasks,
			Owners:       a.owners,
			Issuer:       issuer,
			OAuth:        a.oauthConfig(),
			Logger:       a.log,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Start(a.cfg.Server.Addr) })
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		if withWorker {
			g.Go(func() error { return a.poller().Run(logger.ContextWithLogger(gctx, a.log)) })
		}
		return g.Wait()
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Deliver due reminders",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.poller().Run(logger.ContextWithLogger(ctx, a.log))
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := store.Open(cmd.Context(), store.Config{Path: cfg.Database.Path, BusyTimeout: cfg.Database.BusyTimeout})
		if err != nil {
			return err
		}
		defer db.Close()
		log.Info("Database is up to date", "path", db.Path())
		return nil
	},
}

var ownerCmd = &cobra.Command{
	Use:   "owner",
	Short: "Manage task owners",
}

var ownerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an owner and print a bearer token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openStoreOnly(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		owner, err := a.owners.Create(cmd.Context(), ownerEmail)
		if err != nil {
			return fmt.Errorf("create owner: %w", err)
		}
		issuer, err := a.issuer()
		if err != nil {
			return err
		}
		tok, err := issuer.IssueToken(owner.ID, owner.Email)
		if err != nil {
			return err
		}
		fmt.Printf("Owner:  %s\nEmail:  %s\nToken:  %s\n", owner.ID, owner.Email, tok)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for an existing owner",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openStoreOnly(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		owner, err := a.owners.FindOwnerByID(cmd.Context(), ownerRef)
		if errors.Is(err, store.ErrNotFound) {
			owner, err = a.owners.FindOwnerByEmail(cmd.Context(), ownerRef)
		}
		if err != nil {
			return fmt.Errorf("owner %q: %w", ownerRef, err)
		}
		issuer, err := a.issuer()
		if err != nil {
			return err
		}
		tok, err := issuer.IssueToken(owner.ID, owner.Email)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	RunE: func(_ *cobra.Command, _ []string) error {
		path := configPath
		if path == "" {
			p, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			path = p
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
		if err := config.SaveTo(config.Default(), path); err != nil {
			return err
		}
		fmt.Printf("Wrote default configuration to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/clarity/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")

	serveCmd.Flags().BoolVar(&withWorker, "with-worker", false, "also deliver reminders from this process")

	ownerAddCmd.Flags().StringVar(&ownerEmail, "email", "", "owner email address")
	_ = ownerAddCmd.MarkFlagRequired("email")
	tokenCmd.Flags().StringVar(&ownerRef, "owner", "", "owner id or email")
	_ = tokenCmd.MarkFlagRequired("owner")

	ownerCmd.AddCommand(ownerAddCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(ownerCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
