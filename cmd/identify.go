package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/capture"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image> [image...]",
	Short: "Identify faces in images and record attendance",
	Long: `Identify every face in the given images and record attendance for each
recognized person. All images form one session, so under the session dedupe
policy a person is recorded at most once per run.

Example:
  face-attendance identify ./snapshots/*.jpg
  face-attendance identify --dedupe ledger --ledger /var/lib/attendance.csv class.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
	identifyCmd.Flags().AddFlagSet(storeFlags())
	identifyCmd.Flags().AddFlagSet(matchFlags())
	identifyCmd.Flags().AddFlagSet(ledgerFlags())
}

// describeFaces formats the decisions of one image.
func describeFaces(outcome *attendance.Outcome) string {
	if outcome == nil || len(outcome.Decisions) == 0 {
		return "no face"
	}
	parts := make([]string, 0, len(outcome.Decisions))
	for _, d := range outcome.Decisions {
		if d.Matched {
			parts = append(parts, fmt.Sprintf("%s (%.3f)", d.Name, d.Distance))
		} else {
			parts = append(parts, d.Name)
		}
	}
	return strings.Join(parts, ", ")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.store.Len() == 0 {
		fmt.Printf("Warning: no reference faces in %s, every face will be Unknown\n", a.cfg.Store.Dir)
	}

	source := capture.NewFileSource(args...)
	session := a.engine.DefaultSession()

	bar := progressbar.NewOptions(source.Len(),
		progressbar.OptionSetDescription("Identifying"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var lines []string
	var failures int
	err = a.engine.RunLive(cmd.Context(), source, session, func(res attendance.FrameResult) error {
		file := filepath.Base(source.Current())
		switch {
		case res.Err != nil:
			failures++
			lines = append(lines, fmt.Sprintf("  %s: error: %v", file, res.Err))
		default:
			lines = append(lines, fmt.Sprintf("  %s: %s", file, describeFaces(res.Outcome)))
		}
		bar.Add(1)
		return nil
	})
	bar.Finish()
	fmt.Println()

	for _, line := range lines {
		fmt.Println(line)
	}

	recorded := session.Names()
	fmt.Printf("\nRecorded %d: %s\n", len(recorded), strings.Join(recorded, ", "))
	if failures > 0 {
		fmt.Printf("%d image(s) could not be compared\n", failures)
	}

	if errors.Is(err, attendance.ErrLedger) {
		return fmt.Errorf("attendance ledger unavailable, stopped after %d image(s): %w", len(lines), err)
	}
	return err
}
