// Package cli defines the command-line surface of skyrelay.
package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/skyrelay/skyrelay/internal/buildinfo"
	"github.com/skyrelay/skyrelay/internal/config"
	"github.com/skyrelay/skyrelay/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "skyrelay",
	Short: "Usage analytics and tunnel manager for the skyrelay proxy",
	Long: `skyrelay records every proxied request into a durable usage history
and cumulative analytics aggregate, serves the merged view to dashboards,
and manages Cloudflare tunnels for remote access.`,
	PersistentPreRun: func(c *cobra.Command, args []string) {
		logging.SetupBaseLogger()
		_ = godotenv.Load()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the skyrelay version",
	Run: func(c *cobra.Command, args []string) {
		c.Printf("skyrelay %s\n", buildinfo.Version)
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the YAML config and applies any legacy desktop settings
// found in the data directory.
func loadConfig() (*config.Config, string, error) {
	path := cfgFile
	if path == "" {
		path = "$XDG_CONFIG_HOME/skyrelay/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	dir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := cfg.ApplyLegacySettings(dir); err != nil {
		return nil, "", err
	}
	logging.SetDebug(cfg.Debug)
	return cfg, dir, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.AddCommand(versionCmd)
}
