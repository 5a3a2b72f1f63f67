package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/radumarias/rencfs-desktop/internal/config"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	configPath string
	debug      bool
	listenAddr string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "rencfs-desktop",
	Short: "rencfs-desktop manages encrypted rencfs vaults",
	Long: `Keeps a set of rencfs vaults locked or unlocked. The daemon supervises one
rencfs process per unlocked vault; the other commands edit vault records and
ask the daemon to change their state.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath, nil)
		if err != nil {
			return err
		}
		if debug {
			loaded.Debug = true
		}
		if cmd.Flags().Changed("addr") {
			loaded.ListenAddr = listenAddr
		}
		if err := loaded.Resolve(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $"+config.EnvConfigPath+" or "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log to stderr and keep data under the temp dir")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "addr", "", "Daemon address (overrides listen_addr)")
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid vault id %q", arg)
	}
	return id, nil
}
