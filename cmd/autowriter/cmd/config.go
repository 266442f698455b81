package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/autowriter/configs"
	"github.com/Aman-CERP/autowriter/internal/config"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the autowriter configuration.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.config/autowriter/config.yaml)
  3. Project config (./autowriter.yaml, or --config FILE)
  4. .env in the working directory
  5. Environment variables (AUTOWRITER_*, OLLAMA_HOST, OLLAMA_MODEL)`,
		Example: `  # Create ./autowriter.yaml from the template
  autowriter config init

  # Show the effective configuration
  autowriter config show

  # Put back the previous project config
  autowriter config restore`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd(root))
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

// configTarget picks the project or the user config file.
func configTarget(user bool) string {
	if user {
		return config.GetUserConfigPath()
	}
	return config.ProjectFile
}

func newConfigInitCmd() *cobra.Command {
	var force, user bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Long: `Write the commented configuration template to ./autowriter.yaml, or to
the user config file with --user. An existing file is only replaced with
--force, and a timestamped backup of it is kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, configTarget(user), force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file (after a backup)")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of ./autowriter.yaml")

	return cmd
}

func runConfigInit(cmd *cobra.Command, path string, force bool) error {
	if _, err := os.Stat(path); err == nil {
		if !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Backed up %s to %s\n", path, backup)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
	return err
}

func newConfigShowCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), cfg)
			}
			for _, src := range cfg.Sources {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n", src)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	var user bool

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), configTarget(user))
			return err
		},
	}

	cmd.Flags().BoolVar(&user, "user", false, "Print the user config path")

	return cmd
}

func newConfigRestoreCmd() *cobra.Command {
	var list, user bool

	cmd := &cobra.Command{
		Use:   "restore [backup]",
		Short: "Restore a config file from a backup",
		Long: `Replace the config file with a backup made by 'config init --force'.
Without an argument the newest backup is used. The current file is itself
backed up first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configTarget(user)
			backups, err := config.ListBackups(path)
			if err != nil {
				return err
			}
			if list {
				for _, b := range backups {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), b)
				}
				return nil
			}

			var from string
			switch {
			case len(args) == 1:
				from = args[0]
			case len(backups) > 0:
				from = backups[0]
			default:
				return fmt.Errorf("no backups of %s found", path)
			}
			if err := config.RestoreBackup(path, from); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Restored %s from %s\n", path, from)
			return err
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List backups, newest first")
	cmd.Flags().BoolVar(&user, "user", false, "Use the user config")

	return cmd
}
