package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/capture"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <snapshot-dir>",
	Short: "Recognize faces in camera snapshots as they arrive",
	Long: `Watch a directory a camera writes snapshots into and identify every new
JPEG or PNG once it has been fully written. The whole run is one session.
Stop with Ctrl+C; the frame in progress is finished first.

Example:
  face-attendance watch /var/spool/doorcam --remove`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Bool("remove", false, "Delete each snapshot after it has been processed")
	watchCmd.Flags().Duration("settle", constants.CaptureSettle, "How long a snapshot must stay unchanged before it is read")
	watchCmd.Flags().Bool("watch-faces", false, "Reload reference faces when their directory changes")
	watchCmd.Flags().AddFlagSet(storeFlags())
	watchCmd.Flags().AddFlagSet(matchFlags())
	watchCmd.Flags().AddFlagSet(ledgerFlags())
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := capture.NewDirectorySource(args[0], mustGetDuration(cmd, "settle"), mustGetBool(cmd, "remove"), a.log)
	if err != nil {
		return err
	}
	defer source.Close()

	if mustGetBool(cmd, "watch-faces") {
		go func() {
			if err := a.store.Watch(ctx); err != nil {
				a.log.WithError(err).Error("Reference directory watcher stopped")
			}
		}()
	}

	session := a.engine.DefaultSession()
	fmt.Printf("Watching %s (session %s), press Ctrl+C to stop\n", args[0], session.ID)

	err = a.engine.RunLive(ctx, source, session, func(res attendance.FrameResult) error {
		if res.Outcome == nil {
			return nil
		}
		for _, rec := range res.Outcome.Recordings {
			if rec.Recorded() {
				fmt.Printf("%s  %s\n", rec.Time.Format(constants.LedgerTimeFormat), rec.Name)
			}
		}
		return nil
	})
	fmt.Printf("Session %s recorded %d person(s)\n", session.ID, len(session.Names()))
	if errors.Is(err, attendance.ErrLedger) {
		return fmt.Errorf("attendance ledger unavailable: %w", err)
	}
	return err
}
