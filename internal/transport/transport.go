// Package transport defines the single-connection file transfer channel to
// the device and its FTP implementation.
//
// The contract is deliberately narrow: a Transport accepts at most one
// operation at a time, returns immediately, and reports the outcome through
// an asynchronous event delivered to the registered sink. The transfer queue
// engine is the only component that drives a Transport and it never issues a
// second call before observing the previous call's completion event (or
// aborting it).
package transport

import "errors"

var (
	// ErrBusy is returned when an operation is issued while another is
	// still in flight.
	ErrBusy = errors.New("transport busy")

	// ErrNotConnected is returned when no control connection is open.
	ErrNotConnected = errors.New("transport not connected")
)

// Entry is one remote directory entry.
type Entry struct {
	Name  string
	Size  int64
	IsDir bool
}

// Event is the marker interface for asynchronous transport results.
// Exactly one result event (or an OpError in its place) follows every
// accepted operation; progress events may precede it.
type Event interface {
	transportEvent()
}

// DirectoryListed is the result of List.
type DirectoryListed struct {
	Path    string
	Entries []Entry
}

// DirectoryCreated is the result of MakeDirectory.
type DirectoryCreated struct {
	Path string
}

// FileRemoved is the result of Remove and RemoveDirectory.
type FileRemoved struct {
	Path string
}

// FileRenamed is the result of Rename.
type FileRenamed struct {
	OldPath string
	NewPath string
}

// UploadProgress reports bytes moved so far for an in-flight upload.
type UploadProgress struct {
	RemotePath string
	Bytes      int64
	Total      int64
}

// UploadFinished is the success result of Upload.
type UploadFinished struct {
	RemotePath string
}

// DownloadProgress reports bytes moved so far for an in-flight download.
type DownloadProgress struct {
	RemotePath string
	Bytes      int64
	Total      int64
}

// DownloadFinished is the success result of Download.
type DownloadFinished struct {
	RemotePath string
}

// OpError replaces the success event when an operation fails.
type OpError struct {
	Op      string // "list", "mkdir", "rmdir", "remove", "rename", "upload", "download"
	Path    string
	Message string
}

func (DirectoryListed) transportEvent()  {}
func (DirectoryCreated) transportEvent() {}
func (FileRemoved) transportEvent()      {}
func (FileRenamed) transportEvent()      {}
func (UploadProgress) transportEvent()   {}
func (UploadFinished) transportEvent()   {}
func (DownloadProgress) transportEvent() {}
func (DownloadFinished) transportEvent() {}
func (OpError) transportEvent()          {}

// Sink receives transport events. It is called from the transport's worker
// goroutine and must not block.
type Sink func(Event)

// Transport is the one-operation-at-a-time channel to the remote filesystem.
// All methods return once the operation is accepted; results arrive at the
// sink. An aborted operation produces no result event at all.
type Transport interface {
	SetSink(sink Sink)
	IsConnected() bool

	List(path string) error
	MakeDirectory(path string) error
	RemoveDirectory(path string) error
	Remove(path string) error
	Rename(oldPath, newPath string) error
	Upload(localPath, remotePath string) error
	Download(remotePath, localPath string) error

	// Abort cancels the in-flight operation, if any, and suppresses its
	// result event.
	Abort()
}
