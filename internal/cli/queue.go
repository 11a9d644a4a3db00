package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/scansync/internal/record"
)

// QueueOptions holds flags for the queue command.
type QueueOptions struct {
	*RootOptions
	Quarantined bool
}

// NewQueueCommand creates the queue command.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List queued or quarantined scans",
		Long: `List scans waiting for delivery, oldest first.

With --quarantined, list scans the server rejected while they were queued.
Quarantined scans are kept for review and never retried.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueue(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Quarantined, "quarantined", false, "list quarantined scans")

	return cmd
}

func runQueue(opts *QueueOptions, cmd *cobra.Command) error {
	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := commandContext(cmd)
	f := newFormatter(opts.RootOptions, cmd)

	if opts.Quarantined {
		recs, err := rt.store.ListQuarantined(ctx)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeStorage, fmt.Sprintf("list quarantined: %v", err), nil)
		}
		return f.Success(recs, formatQuarantined(recs))
	}

	recs, err := rt.store.LoadAll(ctx)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeStorage, fmt.Sprintf("list pending: %v", err), nil)
	}
	return f.Success(recs, formatPending(recs))
}

func formatPending(recs []record.PendingRecord) string {
	if len(recs) == 0 {
		return "No queued scans."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d queued scan(s):\n", len(recs))
	for _, r := range recs {
		fmt.Fprintf(&b, "  #%-4d %-16s %-20s %-12s %s\n",
			r.Seq, r.ContainerID, r.ShipmentID, r.Operator, r.EnqueuedAt.Local().Format(time.DateTime))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatQuarantined(recs []record.QuarantinedRecord) string {
	if len(recs) == 0 {
		return "No quarantined scans."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d quarantined scan(s):\n", len(recs))
	for _, r := range recs {
		fmt.Fprintf(&b, "  #%-4d %-16s %-20s %d %s\n", r.Seq, r.ContainerID, r.ShipmentID, r.StatusCode, r.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}
