package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/svetzal/r64u-sub000/internal/events"
	"github.com/svetzal/r64u-sub000/internal/pathutil"
	"github.com/svetzal/r64u-sub000/internal/progress"
	"github.com/svetzal/r64u-sub000/internal/queue"
)

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <local-path> [remote-dir]",
		Short: "Upload a file or folder to the device",
		Long: `Upload a local file or folder to the device filesystem.

A folder is uploaded recursively. If the remote target folder already
exists you are asked whether to merge into it or replace it; --yes
merges without asking.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, err := pathutil.ResolveLocal(args[0])
			if err != nil {
				return err
			}
			remote := "/"
			if len(args) == 2 {
				remote = pathutil.NormalizeRemote(args[1])
			}
			info, err := os.Stat(local)
			if err != nil {
				return err
			}

			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.close()

			if info.IsDir() {
				s.engine.EnqueueRecursiveUpload(local, remote)
			} else {
				s.engine.EnqueueUpload(local, pathutil.JoinRemote(remote, filepath.Base(local)))
			}
			return runQueue(s)
		},
	}
	return cmd
}

func newDownloadCmd() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "download <remote-path> [local-dir]",
		Short: "Download a file or folder from the device",
		Long: `Download a remote file, or with -r a whole remote folder, into the
given local directory (default: current directory).`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote := pathutil.NormalizeRemote(args[0])
			localDir := "."
			if len(args) == 2 {
				localDir = args[1]
			}
			localDir, err := pathutil.ResolveLocal(localDir)
			if err != nil {
				return err
			}

			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.close()

			if recursive {
				s.engine.EnqueueRecursiveDownload(remote, filepath.Join(localDir, pathutil.RemoteBase(remote)))
			} else {
				s.engine.EnqueueDownload(remote, filepath.Join(localDir, pathutil.RemoteBase(remote)))
			}
			return runQueue(s)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Download a whole folder")
	return cmd
}

func newRmCmd() *cobra.Command {
	var recursive bool
	var dir bool
	cmd := &cobra.Command{
		Use:   "rm <remote-path>",
		Short: "Delete a file or folder on the device",
		Long: `Delete a remote file. With -d an empty folder is removed; with -r a
whole folder tree is removed, files first, then the emptied folders.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote := pathutil.NormalizeRemote(args[0])
			if remote == "/" {
				return errors.New("refusing to delete the filesystem root")
			}

			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.close()

			switch {
			case recursive:
				s.engine.EnqueueRecursiveDelete(remote)
			case dir:
				s.engine.EnqueueDelete(remote, true)
			default:
				s.engine.EnqueueDelete(remote, false)
			}
			return runQueue(s)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Delete a whole folder tree")
	cmd.Flags().BoolVarP(&dir, "dir", "d", false, "Delete an empty folder")
	return cmd
}

// runQueue consumes engine events until every queued operation reached a
// terminal state, rendering progress and answering confirmations on the
// way. Ctrl-C cancels the queue cleanly.
func runQueue(s *session) error {
	ch := s.bus.SubscribeAll()
	defer s.bus.UnsubscribeAll(ch)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		if _, ok := <-sig; ok {
			s.engine.CancelAll()
		}
	}()

	console := progress.NewConsole()
	red := color.New(color.FgRed)
	failed := 0

	for ev := range ch {
		switch ev := ev.(type) {
		case *events.OperationEvent:
			switch ev.Type() {
			case events.EventOperationStarted:
				if ev.Kind != "delete" {
					console.Start(ev.Total, describeOperation(ev))
				}
			case events.EventOperationProgress:
				console.Update(ev.Bytes)
			case events.EventOperationCompleted:
				switch {
				case ev.Kind == "delete":
					console.Message("Deleted " + ev.RemotePath)
				case ev.Message == "Skipped":
					console.Message("Skipped " + pathutil.RemoteBase(ev.RemotePath))
				default:
					console.Finish()
				}
			case events.EventOperationFailed:
				failed++
				console.Fail(fmt.Sprintf("%s: %s", displayPath(ev), ev.Message))
			}
		case *events.ScanEvent:
			if ev.Type() == events.EventScanningStarted {
				console.Message("Scanning " + ev.Path + " ...")
			}
		case *events.ConfirmationEvent:
			if ev.Type() == events.EventOverwriteConfirmation {
				resp, err := answerOverwrite(ev.Name)
				if err != nil {
					s.engine.CancelAll()
					continue
				}
				s.engine.RespondToOverwrite(resp)
			} else {
				resp, err := answerFolderExists(ev.Names)
				if err != nil {
					s.engine.CancelAll()
					continue
				}
				s.engine.RespondToFolderExists(resp)
			}
		case *events.StatusEvent:
			switch ev.Type() {
			case events.EventAllCompleted:
				if failed > 0 {
					return fmt.Errorf("%d operation(s) failed", failed)
				}
				return nil
			case events.EventCancelled:
				red.Fprintln(os.Stderr, ev.Message)
				return errors.New("cancelled")
			default:
				console.Message(ev.Message)
			}
		}
	}
	return nil
}

func answerOverwrite(name string) (queue.OverwriteResponse, error) {
	if assumeYes {
		return queue.OverwriteAll, nil
	}
	return promptOverwrite(name)
}

func answerFolderExists(names []string) (queue.FolderExistsResponse, error) {
	if assumeYes {
		return queue.MergeFolder, nil
	}
	return promptFolderExists(names)
}

func describeOperation(ev *events.OperationEvent) string {
	switch ev.Kind {
	case "upload":
		return "Uploading " + pathutil.RemoteBase(ev.RemotePath)
	case "download":
		return "Downloading " + pathutil.RemoteBase(ev.RemotePath)
	default:
		return "Deleting " + ev.RemotePath
	}
}

func displayPath(ev *events.OperationEvent) string {
	if ev.RemotePath != "" {
		return ev.RemotePath
	}
	return ev.LocalPath
}
