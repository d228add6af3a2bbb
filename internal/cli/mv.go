package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/svetzal/r64u-sub000/internal/constants"
	"github.com/svetzal/r64u-sub000/internal/pathutil"
	"github.com/svetzal/r64u-sub000/internal/transport"
)

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <remote-path> <new-remote-path>",
		Short: "Rename or move a file on the device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldPath := pathutil.NormalizeRemote(args[0])
			newPath := pathutil.NormalizeRemote(args[1])

			ftp, _, err := openTransport()
			if err != nil {
				return err
			}
			defer ftp.Close()

			results := make(chan transport.Event, 4)
			ftp.SetSink(func(ev transport.Event) { results <- ev })
			if err := ftp.Rename(oldPath, newPath); err != nil {
				return err
			}
			select {
			case ev := <-results:
				switch ev := ev.(type) {
				case transport.FileRenamed:
					fmt.Printf("Renamed %s -> %s\n", ev.OldPath, ev.NewPath)
					return nil
				case transport.OpError:
					return fmt.Errorf("renaming %s: %s", oldPath, ev.Message)
				default:
					return fmt.Errorf("unexpected response to rename of %s", oldPath)
				}
			case <-time.After(constants.ControlRequestTimeout):
				ftp.Abort()
				return fmt.Errorf("renaming %s timed out", oldPath)
			}
		},
	}
}
