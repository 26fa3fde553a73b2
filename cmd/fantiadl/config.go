package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fantiadl/pkg/config"
	"fantiadl/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage Fantia downloader configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.fantiadl.yaml'
unless a different path is specified with the --config flag.`,
	RunE: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the configuration assembled from all sources, with the session
cookie masked.`,
	RunE: runConfigShow,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

const exampleConfig = `# Fantia downloader configuration file
#
# Environment variables prefixed with FANTIADL_ override these values,
# for example FANTIADL_SESSION_COOKIE or FANTIADL_OUTPUT_DIR.

session:
  # Raw _session_id cookie value, or a path to a Netscape cookies.txt file.
  # Prefer 'fantiadl auth login' over keeping the cookie in this file.
  cookie: ""
  user_agent: ""

download:
  # Stop each fanclub sweep after this many posts; 0 downloads everything
  limit: 0
  # Only download posts from this month (YYYY-MM); empty for all
  month: ""
  thumbnails: false
  external_links: false
  use_server_filenames: false
  dump_metadata: false
  mark_incomplete_posts: false
  ignore_errors: false
  # File listing filenames that must not be downloaded
  exclude_file: ""
  concurrent_downloads: 3

ledger:
  # SQLite database for incremental runs; empty disables persistence
  path: ""
  bypass_post_check: false

output:
  base_directory: "."

rate_limit:
  requests_per_minute: 60
  max_retries: 3

logging:
  level: "info"
  file: ""
  quiet: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	configPath := configFile
	if configPath == "" {
		configPath = ".fantiadl.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists: %s\n", configPath)
		return fmt.Errorf("refusing to overwrite %s", configPath)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	ui.PrintInfo("Configuration file created", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load(configFile, func(c *config.Config) {
		applyRootFlags(rootCmd, c)
	})
	if err != nil {
		return err
	}

	// Never print the cookie itself
	shown := *cfg
	if shown.Session.Cookie != "" {
		shown.Session.Cookie = "********"
	}

	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ui.PrintInfo("Configuration", "valid")
	return nil
}
