package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/svetzal/r64u-sub000/internal/constants"
	"github.com/svetzal/r64u-sub000/internal/device"
	"github.com/svetzal/r64u-sub000/internal/pathutil"
)

// controlClient builds a device HTTP API client from config and flags.
func controlClient() (*device.Client, context.Context, context.CancelFunc, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := device.NewClient(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), constants.ControlRequestTimeout)
	return client, ctx, cancel, nil
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show device firmware and core versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, cancel, err := controlClient()
			if err != nil {
				return err
			}
			defer cancel()
			v, err := client.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Product:   %s\n", v.Product)
			fmt.Printf("Firmware:  %s\n", v.Firmware)
			fmt.Printf("Core:      %s\n", v.Core)
			fmt.Printf("Hostname:  %s\n", v.Hostname)
			fmt.Printf("Unique ID: %s\n", v.UniqueID)
			return nil
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the C64",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, cancel, err := controlClient()
			if err != nil {
				return err
			}
			defer cancel()
			if err := client.Reset(ctx); err != nil {
				return err
			}
			fmt.Println("Machine reset.")
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <remote-file>",
		Short: "Run a program file stored on the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, cancel, err := controlClient()
			if err != nil {
				return err
			}
			defer cancel()
			path := pathutil.NormalizeRemote(args[0])
			if err := client.RunPrg(ctx, path); err != nil {
				return err
			}
			fmt.Printf("Running %s\n", path)
			return nil
		},
	}
}

func newMountCmd() *cobra.Command {
	var drive string
	cmd := &cobra.Command{
		Use:   "mount <remote-image>",
		Short: "Mount a disk image stored on the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, cancel, err := controlClient()
			if err != nil {
				return err
			}
			defer cancel()
			path := pathutil.NormalizeRemote(args[0])
			if err := client.MountDisk(ctx, drive, path); err != nil {
				return err
			}
			fmt.Printf("Mounted %s on drive %s\n", path, drive)
			return nil
		},
	}
	cmd.Flags().StringVar(&drive, "drive", "a", "Drive to mount on (a or b)")
	return cmd
}

func newSIDCmd() *cobra.Command {
	var song int
	cmd := &cobra.Command{
		Use:   "sid <remote-file>",
		Short: "Play a SID tune stored on the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, cancel, err := controlClient()
			if err != nil {
				return err
			}
			defer cancel()
			path := pathutil.NormalizeRemote(args[0])
			if err := client.PlaySID(ctx, path, song); err != nil {
				return err
			}
			fmt.Printf("Playing %s\n", path)
			return nil
		},
	}
	cmd.Flags().IntVar(&song, "song", 0, "Song number to play (0 = default)")
	return cmd
}
