package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/svetzal/r64u-sub000/internal/constants"
	"github.com/svetzal/r64u-sub000/internal/localfs"
	"github.com/svetzal/r64u-sub000/internal/pathutil"
	"github.com/svetzal/r64u-sub000/internal/transport"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [remote-path]",
		Short: "List a directory on the device",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) == 1 {
				path = pathutil.NormalizeRemote(args[0])
			}

			ftp, _, err := openTransport()
			if err != nil {
				return err
			}
			defer ftp.Close()

			entries, err := listOnce(ftp, path)
			if err != nil {
				return err
			}
			printEntries(entries)
			return nil
		},
	}
}

func newLlsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lls [local-path]",
		Short: "List a local directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			files, err := localfs.ListDirectory(path, includeHidden)
			if err != nil {
				return err
			}
			entries := make([]transport.Entry, len(files))
			for i, f := range files {
				entries[i] = transport.Entry{Name: f.Name, Size: f.Size, IsDir: f.IsDir}
			}
			printEntries(entries)
			return nil
		},
	}
}

// listOnce runs a single listing synchronously on an otherwise idle
// transport.
func listOnce(ftp *transport.FTP, path string) ([]transport.Entry, error) {
	results := make(chan transport.Event, 4)
	ftp.SetSink(func(ev transport.Event) { results <- ev })
	if err := ftp.List(path); err != nil {
		return nil, err
	}
	select {
	case ev := <-results:
		switch ev := ev.(type) {
		case transport.DirectoryListed:
			return ev.Entries, nil
		case transport.OpError:
			return nil, fmt.Errorf("listing %s: %s", path, ev.Message)
		default:
			return nil, fmt.Errorf("unexpected response to listing of %s", path)
		}
	case <-time.After(constants.ControlRequestTimeout):
		ftp.Abort()
		return nil, fmt.Errorf("listing %s timed out", path)
	}
}

func printEntries(entries []transport.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
	dirColor := color.New(color.FgBlue, color.Bold)
	for _, e := range entries {
		if e.IsDir {
			dirColor.Printf("%12s  %s/\n", "", e.Name)
		} else {
			fmt.Printf("%12d  %s\n", e.Size, e.Name)
		}
	}
}
