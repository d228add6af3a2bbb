// Package constants holds application-wide defaults shared between the
// queue engine, transport, and CLI so they stay in one place.
package constants

import (
	"time"
)

// Transfer queue defaults
const (
	// DefaultOperationTimeout - how long a single transport operation may go
	// without completing or reporting progress before it is aborted.
	// Progress events re-arm the timer, so large files are fine as long as
	// bytes keep moving.
	DefaultOperationTimeout = 30 * time.Second

	// CallQueueDepth - buffer size of the engine's internal call channel.
	// External callers (CLI, transport callbacks, timers) post closures into
	// this channel; the engine loop drains it. 256 is far above anything a
	// single-connection transport can generate.
	CallQueueDepth = 256
)

// Event bus defaults
const (
	// EventBusDefaultBuffer - per-subscriber channel buffer.
	// Large enough that a UI repainting at 60 Hz never drops progress events.
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - upper cap for caller-supplied buffer sizes.
	EventBusMaxBuffer = 10000
)

// Device connection defaults
const (
	// DefaultFTPPort - the device's built-in FTP service.
	DefaultFTPPort = 21

	// DefaultControlPort - the device's HTTP control API.
	DefaultControlPort = 80

	// FTPDialTimeout - TCP connect timeout for the FTP control connection.
	FTPDialTimeout = 10 * time.Second

	// ControlRequestTimeout - per-request timeout for the HTTP control API.
	ControlRequestTimeout = 15 * time.Second
)

// TransferBufferSize - copy buffer for FTP data connections (64 KB).
// The device's Ethernet interface saturates well below this; larger
// buffers only add latency to progress reporting.
const TransferBufferSize = 64 * 1024
