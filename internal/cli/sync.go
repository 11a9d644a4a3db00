package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/scansync/internal/syncer"
)

// SyncResult is the sync command output.
type SyncResult struct {
	Started bool           `json:"started"`
	Report  *syncer.Report `json:"report,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Deliver queued scans now",
		Long: `Drain the pending queue once, oldest scan first.

The drain stops at the first scan the server cannot be reached for; that
scan and everything behind it stay queued. If another process is already
draining, nothing is done.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	rt, err := openRuntime(opts, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	f := newFormatter(opts, cmd)

	report, started := rt.coord.DrainIfIdle(commandContext(cmd), syncer.TriggerManual)
	if !started {
		return f.Success(SyncResult{Started: false}, "A drain is already running; nothing to do.")
	}
	if report.Stopped == syncer.StopStorageError {
		return f.Fail(ExitFailure, ErrCodeStorage, fmt.Sprintf("drain stopped: %v", report.Err), report)
	}
	return f.Success(SyncResult{Started: true, Report: &report}, describeReport(report))
}
