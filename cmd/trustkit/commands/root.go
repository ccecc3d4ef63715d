package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"trustkit/internal/app"
)

var (
	home       string
	gatewayURL string
	configPath string
	unattended bool

	wire *app.Wire
)

// Execute builds the root command and runs it.
func Execute() error {
	root := &cobra.Command{
		Use:   "trustkit",
		Short: "Device verification and trust management for E2EE messaging",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if home != "" {
				cfg.Home = home
			}
			if cfg.Home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				cfg.Home = filepath.Join(dir, ".trustkit")
			}
			if gatewayURL != "" {
				cfg.GatewayURL = gatewayURL
			}
			if unattended {
				cfg.Unattended = true
			}
			if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
				return err
			}

			wire, err = app.NewWire(cfg)
			return err
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "state dir (default ~/.trustkit)")
	root.PersistentFlags().StringVar(&gatewayURL, "gateway", "", "sync gateway base URL")
	root.PersistentFlags().StringVar(&configPath, "config", "trustkit.yaml", "config file path")
	root.PersistentFlags().BoolVar(&unattended, "unattended", false, "allow auto-accepting inbound requests")

	root.AddCommand(listenCmd(), startCmd(), verifiedCmd())
	return root.Execute()
}
