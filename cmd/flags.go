package cmd

import (
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetFloat64 gets a float64 flag value or panics if the flag doesn't exist.
func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	val, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetDuration gets a duration flag value or panics if the flag doesn't exist.
func mustGetDuration(cmd *cobra.Command, name string) time.Duration {
	val, err := cmd.Flags().GetDuration(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// storeFlags select the reference directory and how it is matched.
func storeFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("store", pflag.ExitOnError)
	fs.String("faces", "", "Reference face directory (overrides STORE_DIR)")
	fs.String("mode", "", "Store mode: embedding or image (overrides STORE_MODE)")
	return fs
}

// matchFlags tune the identification of probe images.
func matchFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("match", pflag.ExitOnError)
	fs.String("strategy", "", "Matching strategy: distance or verify (overrides MATCH_STRATEGY)")
	fs.String("metric", "", "Distance metric: euclidean or cosine (overrides MATCH_METRIC)")
	fs.Float64("threshold", 0, "Accept a match when the distance is below this value (overrides MATCH_THRESHOLD)")
	return fs
}

// ledgerFlags select the ledger and its dedupe policy.
func ledgerFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("ledger", pflag.ExitOnError)
	fs.String("ledger", "", "CSV ledger file (overrides LEDGER_PATH)")
	fs.String("dedupe", "", "Dedupe policy: session or ledger (overrides LEDGER_DEDUPE)")
	return fs
}

// applyFlagOverrides copies explicitly set flags into cfg and revalidates it.
// Flags a command does not define are never reported as changed.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("faces") {
		cfg.Store.Dir = mustGetString(cmd, "faces")
	}
	if flags.Changed("mode") {
		cfg.Store.Mode = mustGetString(cmd, "mode")
	}
	if flags.Changed("strategy") {
		cfg.Match.Strategy = mustGetString(cmd, "strategy")
	}
	if flags.Changed("metric") {
		cfg.Match.Metric = mustGetString(cmd, "metric")
	}
	if flags.Changed("threshold") {
		cfg.Match.Threshold = mustGetFloat64(cmd, "threshold")
	}
	if flags.Changed("ledger") {
		cfg.Ledger.Backend = config.BackendCSV
		cfg.Ledger.Path = mustGetString(cmd, "ledger")
	}
	if flags.Changed("dedupe") {
		cfg.Ledger.Dedupe = mustGetString(cmd, "dedupe")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
