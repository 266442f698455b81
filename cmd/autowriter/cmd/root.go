// Package cmd provides the CLI commands for autowriter.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/autowriter/internal/config"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/logging"
	"github.com/Aman-CERP/autowriter/internal/profiling"
	"github.com/Aman-CERP/autowriter/pkg/version"
)

// rootOptions holds the persistent flags and the state set up for every
// subcommand.
type rootOptions struct {
	debug      bool
	configFile string
	profile    profiling.Options

	profiler       *profiling.Session
	cfg            *config.Config
	loggingCleanup func()
	prevLogger     *slog.Logger
}

// NewRootCmd creates the root command for the autowriter CLI.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

// newRootCmd also returns the shared options so callers can release
// logging when a command fails; PersistentPostRunE only runs on success.
func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "autowriter",
		Short: "Vehicle listing copy grounded in brochure evidence",
		Long: `autowriter turns short seller highlights into a validated vehicle listing
(description, bullets, keywords, detected fields) using passages retrieved
from an index of manufacturer brochures.

Typical flow:
  autowriter ingest --source brochures/
  autowriter write --highlights "2022 Land Cruiser GXR, 45,000 km, full service history"
  autowriter serve --mcp`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("autowriter version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging (mirrored to stderr)")
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file (default ./autowriter.yaml)")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		return opts.setup(c)
	}
	cmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		opts.teardown()
		return nil
	}

	cmd.AddCommand(newIngestCmd(opts))
	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newRetrieveCmd(opts))
	cmd.AddCommand(newGenerateCmd(opts))
	cmd.AddCommand(newWriteCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newPullCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd, opts
}

// setup loads configuration and starts file logging. Commands that never
// touch the configuration skip it.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	if skipsSetup(cmd) {
		return nil
	}

	cfg, err := config.Load(".", o.configFile)
	if err != nil {
		return err
	}
	o.cfg = cfg

	logCfg := logging.Config{
		Level:     cfg.Logging.Level,
		FilePath:  cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	}
	if o.debug {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	// stdout belongs to JSON-RPC in MCP mode; stderr stays quiet too.
	if mcpFlag := cmd.Flags().Lookup("mcp"); mcpFlag != nil && mcpFlag.Value.String() == "true" {
		logCfg = logging.StdioSafe(logCfg)
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.loggingCleanup = cleanup
	o.prevLogger = slog.Default()
	slog.SetDefault(logger)
	slog.Debug("command_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("version", version.Version),
		slog.Any("config_sources", cfg.Sources))

	if o.profile.Enabled() {
		if o.profiler, err = profiling.Start(o.profile); err != nil {
			return err
		}
	}
	return nil
}

func (o *rootOptions) teardown() {
	if o.profiler != nil {
		if err := o.profiler.Stop(); err != nil {
			slog.Warn("profile_write_failed", slog.String("error", err.Error()))
		}
		o.profiler = nil
	}
	if o.loggingCleanup != nil {
		slog.SetDefault(o.prevLogger)
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
}

// skipsSetup reports commands that run without configuration or logging.
func skipsSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "version", "logs", "init", "path", "restore", "help", "completion":
			return true
		}
	}
	return false
}

// Execute runs the root command and prints errors the way the CLI formats
// them.
func Execute() error {
	cmd, opts := newRootCmd()
	err := cmd.Execute()
	opts.teardown()
	if err != nil {
		printError(os.Stderr, err)
	}
	return err
}

func printError(w io.Writer, err error) {
	if _, ok := awerrors.As(err); ok {
		_, _ = fmt.Fprint(w, awerrors.FormatForCLI(err))
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
}
