package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/scansync/internal/intake"
	"github.com/roach88/scansync/internal/record"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Operator string
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <container-id> <shipment-id>",
		Short: "Submit one scan",
		Long: `Submit one container/shipment scan.

The scan is sent at once. If the tracking API cannot be reached the scan
is queued locally and delivered later; it is never lost.

Exit codes:
  0 - Accepted, duplicate, or queued
  1 - Rejected by the server, or the scan could not be saved
  2 - Invalid scan or command error

Examples:
  scansync submit BOX-0042 59000123456789
  scansync submit BOX-0042 59000123456789 --operator Ivanenko --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Operator, "operator", "", "operator name (defaults to the logged-in operator)")

	return cmd
}

func runSubmit(opts *SubmitOptions, container, shipment string, cmd *cobra.Command) error {
	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	// Close waits for the drain the submission triggers.
	defer rt.Close()

	ctx := commandContext(cmd)
	f := newFormatter(opts.RootOptions, cmd)

	operator := opts.Operator
	if operator == "" {
		sess, err := rt.store.LoadSession(ctx)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeStorage, fmt.Sprintf("read session: %v", err), nil)
		}
		operator = sess.Operator
	}

	in := intake.New(rt.client, rt.store, rt.coord, intake.WithMetrics(rt.metrics))
	res, err := in.Submit(ctx, record.Scan{
		Operator:    operator,
		ContainerID: container,
		ShipmentID:  shipment,
	})
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeStorage, fmt.Sprintf("scan not saved: %v", err), nil)
	}

	switch res.Kind {
	case intake.ResultRejected:
		return f.Fail(ExitFailure, ErrCodeRejected, res.Message(), res)
	case intake.ResultValidationRejected:
		return f.Fail(ExitCommandError, ErrCodeValidation, res.Message(), res)
	}
	return f.Success(res, res.Message())
}
