// helixd is the standalone OAuth 2.0 authorization server built on the helix
// library: the authorization and token endpoints over memory or Valkey
// storage, with optional Prometheus metrics.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	var (
		configPath string
		envFile    string
	)

	root := &cobra.Command{
		Use:     "helixd",
		Short:   "OAuth 2.0 authorization server",
		Version: version,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authorization server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err == nil {
					fmt.Fprintf(os.Stderr, "loaded environment from %s\n", envFile)
				}
			}
			return runServe(configPath)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (defaults apply when omitted)")
	serveCmd.Flags().StringVar(&envFile, "env-file", "", "path to a .env file to load before reading config")

	checkCmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate a config file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("config ok: addr=%s storage=%s clients=%d\n",
				cfg.Server.Addr, cfg.Storage.Backend, len(cfg.Clients))
			return nil
		},
	}
	checkCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")

	root.AddCommand(serveCmd, checkCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
