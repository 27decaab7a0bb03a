package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"journal-sync/internal/config"
	"journal-sync/internal/entrysync"
	"journal-sync/internal/retry"
	"journal-sync/internal/storage"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DBPath     string
	JournalDir string
	Actor      string
	JSON       bool

	cfg *config.Config
	// closeLog releases the rotating log file, if any.
	closeLog func() error
}

// NewRootCommand creates the root command for the journal CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:          "journal",
		Short:        "Mirror journal documents into a relational store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if opts.DBPath != "" {
				cfg.DBPath = opts.DBPath
				if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
					return fmt.Errorf("failed to create data directory: %w", err)
				}
			}
			if opts.JournalDir != "" {
				cfg.JournalDir = opts.JournalDir
			}
			opts.cfg = cfg

			logger, closeLog, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			opts.closeLog = closeLog
			slog.Debug("Logging configured", "level", cfg.LogLevel, "format", cfg.LogFormat, "file", cfg.LogFile)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.closeLog != nil {
				return opts.closeLog()
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database path (overrides DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.JournalDir, "journal", "", "journal directory (overrides JOURNAL_DIR)")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", defaultActor(), "name recorded on deletions and tombstones")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "print results as JSON")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewTombstonesCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func defaultActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "journal"
}

// newLogger builds the process logger. Records go to stderr and, when
// LOG_FILE is set, to a size-rotated file as well.
func newLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, func() error, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	out := stderr
	closeLog := func() error { return nil }
	if cfg.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		out = io.MultiWriter(stderr, file)
		closeLog = file.Close
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closeLog, nil
}

// env is an opened store with the orchestrator wired over it.
type env struct {
	cfg     *config.Config
	db      *sql.DB
	manager *entrysync.Manager
}

func (e *env) Close() error {
	return e.db.Close()
}

// openEnv opens and migrates the database and builds the Manager. The device
// id recorded in the store identifies this replica on tombstones.
func openEnv(ctx context.Context, opts *RootOptions) (*env, error) {
	cfg := opts.cfg
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := storage.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	source, err := storage.NewMetaRepo(db).DeviceID(ctx, cfg.DeviceID)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to resolve device id: %w", err)
	}
	slog.Debug("Database initialized", "path", cfg.DBPath, "device_id", source)

	manager := entrysync.NewManager(db, entrysync.Options{
		Actor:        opts.Actor,
		Source:       source,
		TombstoneTTL: cfg.TombstoneTTL,
		Retry: retry.Policy{
			MaxAttempts:     cfg.RetryMaxAttempts,
			InitialInterval: cfg.RetryInitialInterval,
			MaxInterval:     cfg.RetryMaxInterval,
		},
		WordsPerMinute: cfg.ReadingWPM,
	})
	return &env{cfg: cfg, db: db, manager: manager}, nil
}

// withEnv opens the store for the duration of fn.
func withEnv(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, e *env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := openEnv(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = e.Close()
	}()
	return fn(ctx, e)
}
