package queue

import (
	"path/filepath"
	"time"

	"github.com/svetzal/r64u-sub000/internal/events"
	"github.com/svetzal/r64u-sub000/internal/pathutil"
	"github.com/svetzal/r64u-sub000/internal/transport"
)

// OverwriteResponse answers a file-overwrite confirmation.
type OverwriteResponse int

const (
	// OverwriteThis overwrites the one file asked about.
	OverwriteThis OverwriteResponse = iota
	// OverwriteAll overwrites this and every later collision until the
	// queue drains.
	OverwriteAll
	// SkipFile leaves the existing file alone and completes the item as
	// skipped.
	SkipFile
	// CancelTransfer cancels everything: the answer means "stop", not
	// "stop this one file".
	CancelTransfer
)

// FolderExistsResponse answers a folder-collision confirmation.
type FolderExistsResponse int

const (
	// MergeFolder uploads into the existing remote folder.
	MergeFolder FolderExistsResponse = iota
	// ReplaceFolder deletes the remote folder first, then uploads.
	ReplaceFolder
	// CancelFolder abandons the colliding folder uploads.
	CancelFolder
)

type confirmKind int

const (
	confirmFileOverwrite confirmKind = iota
	confirmFolderExists
)

// confirmation is the one outstanding question. While it is set the engine
// sits in StateAwaitingConfirmation and dispatches nothing.
type confirmation struct {
	kind    confirmKind
	item    *Item         // file overwrite
	folders []*folderTask // folder exists
}

func (e *Engine) raiseOverwriteConfirmation(item *Item) {
	e.confirm = &confirmation{kind: confirmFileOverwrite, item: item}
	e.state = StateAwaitingConfirmation
	e.bus.Publish(&events.ConfirmationEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventOverwriteConfirmation, Time: time.Now()},
		Operation: item.Kind.String(),
		Name:      pathutil.RemoteBase(item.RemotePath),
	})
}

func (e *Engine) raiseFolderExistsConfirmation(tasks []*folderTask) {
	e.confirm = &confirmation{kind: confirmFolderExists, folders: tasks}
	e.state = StateAwaitingConfirmation
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = filepath.Base(t.localDir)
	}
	e.bus.Publish(&events.ConfirmationEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventFolderExistsConfirmation, Time: time.Now()},
		Operation: "upload",
		Names:     names,
	})
}

// finishExistsCheck resolves an upload item's pre-transfer check against the
// listing of its remote parent.
func (e *Engine) finishExistsCheck(item *Item, entries []transport.Entry) {
	e.state = StateIdle
	name := pathutil.RemoteBase(item.RemotePath)
	for _, entry := range entries {
		if !entry.IsDir && entry.Name == name {
			e.raiseOverwriteConfirmation(item)
			e.scheduleDispatch()
			return
		}
	}
	item.confirmed = true
	e.scheduleDispatch()
}

// RespondToOverwrite answers the outstanding file-overwrite question. A
// response with no question outstanding is ignored.
func (e *Engine) RespondToOverwrite(resp OverwriteResponse) {
	e.postWait(func() {
		c := e.confirm
		if c == nil || c.kind != confirmFileOverwrite {
			return
		}
		e.confirm = nil
		e.state = StateIdle
		switch resp {
		case OverwriteThis:
			c.item.confirmed = true
		case OverwriteAll:
			c.item.confirmed = true
			e.overwriteAll = true
		case SkipFile:
			e.completeItem(c.item, "Skipped")
		case CancelTransfer:
			e.cancelAll()
			return
		}
		e.scheduleDispatch()
	})
}

// RespondToFolderExists answers the outstanding folder-collision question.
// The answer applies to every folder named in the confirmation event.
func (e *Engine) RespondToFolderExists(resp FolderExistsResponse) {
	e.postWait(func() {
		c := e.confirm
		if c == nil || c.kind != confirmFolderExists {
			return
		}
		e.confirm = nil
		e.state = StateIdle
		switch resp {
		case MergeFolder:
			e.readyFolders = append(e.readyFolders, c.folders...)
		case ReplaceFolder:
			for _, t := range c.folders {
				t.replace = true
			}
			e.readyFolders = append(e.readyFolders, c.folders...)
		case CancelFolder:
			e.publishCancelled("Folder upload cancelled")
		}
		e.scheduleDispatch()
	})
}

// AwaitingConfirmation reports whether a question is outstanding.
func (e *Engine) AwaitingConfirmation() bool {
	var waiting bool
	e.postWait(func() { waiting = e.confirm != nil })
	return waiting
}
