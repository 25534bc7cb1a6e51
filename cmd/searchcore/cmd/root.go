// Package cmd provides the CLI commands for searchcore.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/quickcart/searchcore/internal/logging"
	"github.com/quickcart/searchcore/internal/profiling"
	"github.com/quickcart/searchcore/pkg/version"
)

// Profiling flags
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// Output and logging flags shared by all subcommands.
var (
	plainOutput    bool
	noColor        bool
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the searchcore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searchcore",
		Short: "Hybrid product search over the QuickCart catalog",
		Long: `searchcore indexes the QuickCart grocery catalog and serves hybrid
search (keyword BM25 + semantic vector ranking) over it.

Run 'searchcore index' to fetch the catalog and build the indexes,
then 'searchcore search <query>' to search.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("searchcore version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&plainOutput, "plain", false, "Force plain text output (no TUI)")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.searchcore/logs/")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts CPU/trace profiling and logging if flags
// are set. Non-debug runs still log to the default file so failed index
// builds leave a trail.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	// Keep stderr clean for the TUI and for piped output; the log file
	// still captures everything.
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	if debugMode {
		slog.Info("Debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}

	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}

	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
	}

	return nil
}

// stopProfilingAndLogging stops profiling and logging, writes memory
// profile if requested.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}

	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}

	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}

	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
