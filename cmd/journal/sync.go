package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"journal-sync/internal/entrysync"
	"journal-sync/internal/handlers"
	"journal-sync/internal/http"
	"journal-sync/internal/vault"
)

func newPipeline(e *env) (*entrysync.Pipeline, error) {
	if err := e.cfg.RequireJournalDir(); err != nil {
		return nil, err
	}
	journal, err := vault.Open(e.cfg.JournalDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return entrysync.NewPipeline(e.manager, journal, e.cfg.ParseWorkers), nil
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Mirror every document under the journal directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				pipeline, err := newPipeline(e)
				if err != nil {
					return err
				}
				stats, err := pipeline.SyncAll(ctx)
				if err != nil {
					return err
				}
				if err := output(cmd.OutOrStdout(), opts, stats, func(w io.Writer) {
					fmt.Fprintf(w, "processed %d: %d created, %d updated, %d unchanged, %d restored, %d deleted, %d failed, %d conflicts\n",
						stats.Processed, stats.Created, stats.Updated, stats.Unchanged,
						stats.Restored, stats.Deleted, stats.Failed, stats.Conflicts)
				}); err != nil {
					return err
				}
				return stats.Err()
			})
		},
	}
}

// NewTombstonesCommand creates the tombstones command group.
func NewTombstonesCommand(opts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "tombstones",
		Short: "List association tombstones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				list, err := e.manager.Tombstones(ctx, all)
				if err != nil {
					return err
				}
				return output(cmd.OutOrStdout(), opts, list, func(w io.Writer) {
					for _, t := range list {
						fmt.Fprintf(w, "%s %d->%d removed by %s on %s at %s\n",
							t.Table, t.LeftID, t.RightID, t.RemovedBy, t.SyncSource, t.RemovedAt.Format(time.RFC3339))
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include expired tombstones")

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired tombstones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				n, err := e.manager.PruneTombstones(ctx)
				if err != nil {
					return err
				}
				return output(cmd.OutOrStdout(), opts, handlers.PruneResponse{Pruned: n}, func(w io.Writer) {
					fmt.Fprintf(w, "pruned %d tombstones\n", n)
				})
			})
		},
	})
	return cmd
}

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var initialSync bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the entry API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withEnv(cmd, opts, func(_ context.Context, e *env) error {
				deps := &http.Deps{
					Journal:    e.manager,
					DB:         e.db,
					JournalDir: e.cfg.JournalDir,
				}
				if e.cfg.JournalDir != "" {
					pipeline, err := newPipeline(e)
					if err != nil {
						return err
					}
					deps.Syncer = pipeline
					if initialSync {
						// Start syncing in background after router is ready
						go func() {
							slog.Info("Starting background sync of journal", "dir", e.cfg.JournalDir)
							if _, err := pipeline.SyncAll(ctx); err != nil {
								slog.Error("Sync completed with errors", "error", err)
							}
						}()
					}
				}

				server := &nethttp.Server{
					Addr:              ":" + e.cfg.APIPort,
					Handler:           http.NewRouter(deps),
					ReadHeaderTimeout: 10 * time.Second,
				}

				errCh := make(chan error, 1)
				go func() {
					slog.Info("Starting API server", "addr", server.Addr)
					errCh <- server.ListenAndServe()
				}()

				select {
				case err := <-errCh:
					if errors.Is(err, nethttp.ErrServerClosed) {
						return nil
					}
					return fmt.Errorf("API server failed: %w", err)
				case <-ctx.Done():
				}

				slog.Info("Shutting down API server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
		},
	}

	cmd.Flags().BoolVar(&initialSync, "sync", true, "sync the journal directory on startup")
	return cmd
}
