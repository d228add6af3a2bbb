package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/svetzal/r64u-sub000/internal/queue"
)

// promptOverwrite asks what to do about one colliding file.
func promptOverwrite(name string) (queue.OverwriteResponse, error) {
	fmt.Printf("\nFile '%s' already exists.\n", name)
	fmt.Println("What would you like to do?")
	fmt.Println("  1. Overwrite (once) - Replace this file, ask again for the next")
	fmt.Println("  2. Overwrite (do for all) - Replace every existing file")
	fmt.Println("  3. Skip - Keep the existing file")
	fmt.Println("  4. Cancel - Stop the transfer")
	fmt.Print("Choose [1-4]: ")

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return queue.CancelTransfer, err
	}

	switch strings.TrimSpace(input) {
	case "1":
		return queue.OverwriteThis, nil
	case "2":
		return queue.OverwriteAll, nil
	case "3":
		return queue.SkipFile, nil
	case "4":
		return queue.CancelTransfer, nil
	default:
		fmt.Println("Invalid choice, please try again.")
		return promptOverwrite(name)
	}
}

// promptFolderExists asks what to do about colliding remote folders.
func promptFolderExists(names []string) (queue.FolderExistsResponse, error) {
	fmt.Printf("\nFolder '%s' already exists on the device.\n", strings.Join(names, "', '"))
	fmt.Println("What would you like to do?")
	fmt.Println("  1. Merge - Upload into the existing folder")
	fmt.Println("  2. Replace - Delete the existing folder first")
	fmt.Println("  3. Cancel - Stop the upload")
	fmt.Print("Choose [1-3]: ")

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return queue.CancelFolder, err
	}

	switch strings.TrimSpace(input) {
	case "1":
		return queue.MergeFolder, nil
	case "2":
		return queue.ReplaceFolder, nil
	case "3":
		return queue.CancelFolder, nil
	default:
		fmt.Println("Invalid choice, please try again.")
		return promptFolderExists(names)
	}
}

// promptPassword reads the FTP password without echoing it.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "FTP password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
