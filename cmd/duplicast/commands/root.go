package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "duplicast",
		Short: "Duplicast - low-latency desktop capture and VR stereo broadcast",
		Long: `Duplicast captures a monitor or a single window, optionally reshapes it
into a side-by-side stereo frame for VR headsets, compresses each frame to
JPEG, and broadcasts it to any number of websocket viewers.

Features:
  • X11 monitor and window capture with automatic recovery
  • Side-by-side stereo reshaping with configurable eye separation
  • Tiered JPEG compression (SIMD, generic fallback)
  • Websocket fan-out that never blocks on a slow viewer
  • Runtime quality presets and live stats`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/duplicast/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 9191)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path passed via --config.
func GetConfigFile() string {
	return cfgFile
}
