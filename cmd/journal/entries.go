package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"journal-sync/internal/document"
	"journal-sync/internal/entrysync"
	"journal-sync/internal/errs"
	"journal-sync/internal/reconcile"
	"journal-sync/internal/storage"
)

// output prints v as JSON when --json is set and through text otherwise.
func output(w io.Writer, opts *RootOptions, v any, text func(io.Writer)) error {
	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

// readInput reads and parses the document at path. The stored path is
// absolute so the directory sync recognizes the same file.
func readInput(path string) (entrysync.Input, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return entrysync.Input{}, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return entrysync.Input{}, fmt.Errorf("failed to read document: %w", err)
	}
	doc, err := document.ParseNamed(abs, data)
	if err != nil {
		return entrysync.Input{}, err
	}
	return entrysync.Input{Document: doc, FilePath: abs, FileHash: entrysync.HashBytes(data)}, nil
}

func printResult(w io.Writer, verb string, res *entrysync.Result) {
	fmt.Fprintf(w, "%s entry %s (id %d)\n", verb, res.Entry.Date, res.Entry.ID)
	for _, c := range res.Conflicts {
		fmt.Fprintf(w, "  conflict: %s\n", c)
	}
}

// lookup finds the entry named by a YYYY-MM-DD argument.
func lookup(ctx context.Context, e *env, raw string, includeDeleted bool) (*storage.Entry, error) {
	date, err := document.ParseDay("date", raw)
	if err != nil {
		return nil, err
	}
	return e.manager.GetByDate(ctx, date, includeDeleted)
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>",
		Short: "Create an entry from a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				res, err := e.manager.Create(ctx, in)
				if err != nil {
					return err
				}
				return output(cmd.OutOrStdout(), opts, res, func(w io.Writer) {
					printResult(w, "created", res)
				})
			})
		},
	}
}

// removalFlags collects the explicit remove lists of an incremental update.
type removalFlags struct {
	people    []string
	cities    []string
	locations []string
	events    []string
	tags      []string
	arcs      []string
}

func (f *removalFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.people, "remove-person", nil, "person to unlink (name, \"Name Lastname\" or @alias)")
	cmd.Flags().StringSliceVar(&f.cities, "remove-city", nil, "city to unlink")
	cmd.Flags().StringArrayVar(&f.locations, "remove-location", nil, "location to unlink, as City:Location")
	cmd.Flags().StringSliceVar(&f.events, "remove-event", nil, "event to unlink")
	cmd.Flags().StringSliceVar(&f.tags, "remove-tag", nil, "tag to unlink")
	cmd.Flags().StringSliceVar(&f.arcs, "remove-arc", nil, "arc to unlink")
}

func (f *removalFlags) removals() (entrysync.Removals, error) {
	rm := entrysync.Removals{
		Cities: f.cities,
		Events: f.events,
		Tags:   f.tags,
		Arcs:   f.arcs,
	}
	for _, raw := range f.people {
		p, err := document.ParsePersonToken(raw)
		if err != nil {
			return entrysync.Removals{}, err
		}
		rm.People = append(rm.People, p)
	}
	for _, raw := range f.locations {
		city, name, ok := strings.Cut(raw, ":")
		city, name = strings.TrimSpace(city), strings.TrimSpace(name)
		if !ok || city == "" || name == "" {
			return entrysync.Removals{}, errs.Invalid("remove-location", "expected City:Location, got %q", raw)
		}
		if rm.Locations == nil {
			rm.Locations = map[string][]string{}
		}
		rm.Locations[city] = append(rm.Locations[city], name)
	}
	return rm, nil
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(opts *RootOptions) *cobra.Command {
	var mode string
	var rmFlags removalFlags

	cmd := &cobra.Command{
		Use:   "update <file>",
		Short: "Update the entry of a document's date",
		Long: `Update the stored entry dated like the document.

In incremental mode the document's lists are added and only the --remove-*
values are unlinked. In overwrite mode every collection is replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := reconcile.ParseMode(mode)
			if err != nil {
				return err
			}
			rm, err := rmFlags.removals()
			if err != nil {
				return err
			}
			in, err := readInput(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				existing, err := e.manager.GetByDate(ctx, in.Document.DateString(), false)
				if err != nil {
					return err
				}
				res, err := e.manager.Update(ctx, existing.ID, in, m, rm)
				if err != nil {
					return err
				}
				return output(cmd.OutOrStdout(), opts, res, func(w io.Writer) {
					printResult(w, "updated", res)
				})
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(reconcile.Incremental), "reconciliation mode (incremental|overwrite)")
	rmFlags.register(cmd)
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	var hard bool
	var reason string

	cmd := &cobra.Command{
		Use:   "delete <date>",
		Short: "Soft-delete (or with --hard, remove) an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				entry, err := lookup(ctx, e, args[0], hard)
				if err != nil {
					return err
				}
				if err := e.manager.Delete(ctx, entry.ID, opts.Actor, reason, hard); err != nil {
					return err
				}
				verb := "deleted"
				if hard {
					verb = "removed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s entry %s\n", verb, entry.Date)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&hard, "hard", false, "remove the row and its dependents")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the soft delete")
	return cmd
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <date>",
		Short: "Restore a soft-deleted entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				entry, err := lookup(ctx, e, args[0], true)
				if err != nil {
					return err
				}
				restored, err := e.manager.Restore(ctx, entry.ID)
				if err != nil {
					return err
				}
				return output(cmd.OutOrStdout(), opts, restored, func(w io.Writer) {
					fmt.Fprintf(w, "restored entry %s\n", restored.Date)
				})
			})
		},
	}
}

// NewExportCommand creates the export command.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <date>",
		Short: "Rebuild an entry's document from the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				entry, err := lookup(ctx, e, args[0], false)
				if err != nil {
					return err
				}
				doc, err := e.manager.Export(ctx, entry)
				if err != nil {
					return err
				}
				if opts.JSON {
					return output(cmd.OutOrStdout(), opts, doc, nil)
				}
				data, err := document.Serialize(doc)
				if err != nil {
					return err
				}
				if outPath != "" {
					return os.WriteFile(outPath, data, 0o644)
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the document to a file instead of stdout")
	return cmd
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				entries, err := e.manager.List(ctx, all)
				if err != nil {
					return err
				}
				return output(cmd.OutOrStdout(), opts, entries, func(w io.Writer) {
					for _, entry := range entries {
						marker := ""
						if entry.IsDeleted() {
							marker = " (deleted)"
						}
						fmt.Fprintf(w, "%s  %5d words  %s%s\n", entry.Date, entry.WordCount, entry.FilePath, marker)
					}
				})
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include soft-deleted entries")
	return cmd
}
