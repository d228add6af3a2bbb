// Package cli provides the command-line interface for r64u.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/svetzal/r64u-sub000/internal/config"
	"github.com/svetzal/r64u-sub000/internal/logging"
	"github.com/svetzal/r64u-sub000/internal/version"
)

var (
	// Global flags
	hostFlag      string
	ftpPortFlag   int
	controlPort   int
	userFlag      string
	passwordFlag  string
	askPassword   bool
	timeoutFlag   time.Duration
	assumeYes     bool
	includeHidden bool
	verbose       bool

	// Global logger
	logger *logging.Logger
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "r64u",
		Short: "Transfer files to and control an Ultimate 64 / Ultimate-II+ over the network",
		Long: `r64u ` + version.Version + ` - Built: ` + version.BuildTime + `
Remote control for Ultimate 64 and Ultimate-II+ cartridges.

File transfer runs over the device's FTP service; machine control
(reset, run, mount, SID playback) uses its HTTP API. The device is
located through the R64U_HOST environment variable or the --host flag.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultLogger()
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "", "Device hostname or IP (overrides R64U_HOST)")
	rootCmd.PersistentFlags().IntVar(&ftpPortFlag, "ftp-port", 0, "Device FTP port (default 21)")
	rootCmd.PersistentFlags().IntVar(&controlPort, "control-port", 0, "Device HTTP control port (default 80)")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "FTP user (default anonymous)")
	rootCmd.PersistentFlags().StringVar(&passwordFlag, "password", "", "FTP password")
	rootCmd.PersistentFlags().BoolVar(&askPassword, "ask-password", false, "Prompt for the FTP password")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 0, "Per-operation stall timeout (default 30s)")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Answer overwrite and merge questions with yes")
	rootCmd.PersistentFlags().BoolVar(&includeHidden, "hidden", false, "Include hidden files in folder uploads")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	rootCmd.AddCommand(
		newUploadCmd(),
		newDownloadCmd(),
		newRmCmd(),
		newLsCmd(),
		newLlsCmd(),
		newMvCmd(),
		newInfoCmd(),
		newResetCmd(),
		newRunCmd(),
		newMountCmd(),
		newSIDCmd(),
	)
	return rootCmd
}

// loadConfig reads the environment configuration and applies flag
// overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if hostFlag != "" {
		cfg.DeviceHost = hostFlag
	}
	if ftpPortFlag != 0 {
		cfg.FTPPort = ftpPortFlag
	}
	if controlPort != 0 {
		cfg.ControlPort = controlPort
	}
	if userFlag != "" {
		cfg.FTPUser = userFlag
	}
	if passwordFlag != "" {
		cfg.FTPPassword = passwordFlag
	}
	if timeoutFlag != 0 {
		cfg.OperationTimeout = timeoutFlag
	}
	if includeHidden {
		cfg.IncludeHidden = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if askPassword {
		pw, err := promptPassword()
		if err != nil {
			return nil, err
		}
		cfg.FTPPassword = pw
	}
	return cfg, nil
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
