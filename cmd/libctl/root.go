package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"library-circulation/internal/circulation"
	"library-circulation/internal/models"
)

type availabilityReader interface {
	Availability(ctx context.Context, bookID, branchID string) (count int64, found bool, err error)
}

type availabilitySeeder interface {
	SeedAvailability(ctx context.Context) (*circulation.SeedResult, error)
}

type taskAdmin interface {
	List(ctx context.Context, status models.TaskStatus, limit int) ([]*models.OutboxTask, error)
	Requeue(ctx context.Context, id string) (bool, error)
	Cleanup(ctx context.Context, retention time.Duration) (int, error)
}

type backend struct {
	availability availabilityReader
	seeder       availabilitySeeder
	tasks        taskAdmin
	retention    time.Duration
	close        func() error
}

type opener func(ctx context.Context) (*backend, error)

func newRootCmd(out io.Writer, open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "libctl",
		Short:         "Operate the library circulation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.AddCommand(newAvailabilityCmd(open), newOutboxCmd(open))
	return root
}

// withBackend opens the stores for a single command and closes them afterwards.
func withBackend(cmd *cobra.Command, open opener, fn func(ctx context.Context, b *backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if b.close != nil {
			_ = b.close()
		}
	}()
	return fn(ctx, b)
}

func newAvailabilityCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Inspect and seed availability counters",
	}

	get := &cobra.Command{
		Use:   "get <book-id> <branch-id>",
		Short: "Show the available copies of a book at a branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				count, found, err := b.availability.Availability(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("book %s is not stocked by branch %s", args[0], args[1])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s@%s: %d available\n", args[0], args[1], count)
				return nil
			})
		},
	}

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Create missing counters from the catalog in Firestore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				res, err := b.seeder.SeedAvailability(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d counter(s), %d already present\n", res.Seeded, res.Skipped)
				return nil
			})
		},
	}

	cmd.AddCommand(get, seed)
	return cmd
}

func newOutboxCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and repair outbox tasks",
	}

	var (
		status string
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks in a status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := models.TaskStatus(strings.ToUpper(status))
			if !st.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			if limit < 1 {
				return fmt.Errorf("limit must be positive")
			}
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				tasks, err := b.tasks.List(ctx, st, limit)
				if err != nil {
					return err
				}
				printTasks(cmd.OutOrStdout(), tasks)
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", string(models.TaskFailed), "task status to list")
	list.Flags().IntVar(&limit, "limit", 50, "maximum number of tasks")

	requeue := &cobra.Command{
		Use:   "requeue <task-id>",
		Short: "Reschedule a FAILED task with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				ok, err := b.tasks.Requeue(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("task %s is not FAILED", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s\n", args[0])
				return nil
			})
		},
	}

	var retention time.Duration
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete COMPLETED tasks older than the retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				keep := retention
				if keep <= 0 {
					keep = b.retention
				}
				n, err := b.tasks.Cleanup(ctx, keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d completed task(s) older than %s\n", n, keep)
				return nil
			})
		},
	}
	cleanup.Flags().DurationVar(&retention, "retention", 0, "override OUTBOX_RETENTION")

	cmd.AddCommand(list, requeue, cleanup)
	return cmd
}

func printTasks(w io.Writer, tasks []*models.OutboxTask) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks.")
		return
	}

	fmt.Fprintf(w, "%-40s %-30s %-16s %-7s %s\n", "ID", "Type", "Status", "Retries", "Error")
	fmt.Fprintln(w, strings.Repeat("-", 120))
	for _, t := range tasks {
		fmt.Fprintf(w, "%-40s %-30s %-16s %-7d %s\n",
			truncate(t.ID, 40), t.Type, t.Status, t.RetryCount, truncate(t.ErrorMessage, 40))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
