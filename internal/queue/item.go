package queue

import (
	"github.com/google/uuid"
)

// Kind is the operation an item performs.
type Kind int

const (
	KindUpload Kind = iota
	KindDownload
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindUpload:
		return "upload"
	case KindDownload:
		return "download"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Status is an item's lifecycle position. Transitions are monotonic:
// Pending -> InProgress -> Completed or Failed. An item is never resurrected;
// a retry is a new item.
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Item is one file-level operation owned by the engine. External readers
// only ever see copies; all mutation happens on the engine loop.
type Item struct {
	ID          string
	Kind        Kind
	LocalPath   string
	RemotePath  string
	Status      Status
	Bytes       int64
	Total       int64
	Message     string // failure reason or completion note ("Skipped", "Cancelled")
	BatchID     int
	IsDirectory bool // delete items only

	// confirmed marks the overwrite check as already answered (or not
	// needed), so dispatch skips straight to the transfer.
	confirmed bool
}

func newItem(kind Kind, localPath, remotePath string, batchID int) *Item {
	return &Item{
		ID:         uuid.NewString(),
		Kind:       kind,
		LocalPath:  localPath,
		RemotePath: remotePath,
		Status:     StatusPending,
		BatchID:    batchID,
	}
}

// Terminal reports whether the item reached a final state.
func (i *Item) Terminal() bool {
	return i.Status == StatusCompleted || i.Status == StatusFailed
}
