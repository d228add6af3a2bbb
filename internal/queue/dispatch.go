package queue

import (
	"time"

	"github.com/svetzal/r64u-sub000/internal/events"
	"github.com/svetzal/r64u-sub000/internal/pathutil"
	"github.com/svetzal/r64u-sub000/internal/transport"
)

// processNext is the single dispatch point. It runs only on the engine loop
// and picks at most one piece of transport work: expansion (scans, mkdirs,
// folder checks) takes priority over item transfers, so a recursive request
// is fully planned before its files start moving.
func (e *Engine) processNext() {
	if e.busy || !e.tr.IsConnected() {
		return
	}
	switch e.state {
	case StateIdle, StateTransferring:
	default:
		return
	}
	if len(e.scans) > 0 {
		e.startDownloadScan()
		return
	}
	if len(e.deleteScans) > 0 {
		e.startDeleteScan()
		return
	}
	if len(e.mkdirs) > 0 {
		e.startNextMkdir()
		return
	}
	if len(e.folderCheckOrder) > 0 {
		e.startFolderCheck()
		return
	}
	if e.activeFolder == nil && e.confirm == nil && len(e.readyFolders) > 0 {
		e.startNextFolderTask()
		return
	}
	b := e.activeBatch()
	if b == nil || b.Expanding {
		return
	}
	for _, it := range e.items {
		if it.BatchID == b.ID && it.Status == StatusPending {
			e.dispatchItem(it)
			return
		}
	}
}

// dispatchItem runs the pre-transfer check for one pending item, or starts
// the transfer directly when no check is needed.
func (e *Engine) dispatchItem(item *Item) {
	switch item.Kind {
	case KindUpload:
		if item.confirmed || e.overwriteAll {
			e.startTransfer(item)
			return
		}
		e.startExistsCheck(item)
	case KindDownload:
		if !item.confirmed && !e.overwriteAll && e.fs.Exists(item.LocalPath) {
			e.raiseOverwriteConfirmation(item)
			return
		}
		e.startTransfer(item)
	case KindDelete:
		e.startTransfer(item)
	}
}

// startExistsCheck lists the remote parent directory to find out whether the
// upload target already exists. The answer arrives as a DirectoryListed
// event routed back through handleDirectoryListed.
func (e *Engine) startExistsCheck(item *Item) {
	parent := pathutil.RemoteParent(item.RemotePath)
	e.currentListing = &listingRequest{path: parent, purpose: listExistsCheck, item: item}
	e.state = StateCheckingExists
	e.busy = true
	e.armTimeout()
	if err := e.tr.List(parent); err != nil {
		// Listing refused; assume no collision rather than blocking the queue.
		e.stopTimeout()
		e.busy = false
		e.currentListing = nil
		e.state = StateIdle
		e.log.Warnf("exists check for %s failed: %v", item.RemotePath, err)
		item.confirmed = true
		e.scheduleDispatch()
	}
}

// startTransfer hands one item to the transport.
func (e *Engine) startTransfer(item *Item) {
	item.Status = StatusInProgress
	e.currentItem = item
	e.busy = true
	if item.Kind == KindDelete {
		e.state = StateDeleting
	} else {
		e.state = StateTransferring
	}
	e.publishOperationEvent(events.EventOperationStarted, item)
	e.publishQueueChanged()
	e.armTimeout()

	var err error
	switch item.Kind {
	case KindUpload:
		err = e.tr.Upload(item.LocalPath, item.RemotePath)
	case KindDownload:
		err = e.tr.Download(item.RemotePath, item.LocalPath)
	case KindDelete:
		if item.IsDirectory {
			err = e.tr.RemoveDirectory(item.RemotePath)
		} else {
			err = e.tr.Remove(item.RemotePath)
		}
	}
	if err != nil {
		e.stopTimeout()
		e.busy = false
		e.currentItem = nil
		e.state = StateIdle
		e.failItem(item, err.Error())
		e.scheduleDispatch()
	}
}

// handleTransportEvent routes one transport event. It runs on the engine
// loop; the transport's worker goroutine never touches engine state.
func (e *Engine) handleTransportEvent(ev transport.Event) {
	switch tev := ev.(type) {
	case transport.DirectoryListed:
		e.handleDirectoryListed(tev)
	case transport.DirectoryCreated:
		e.handleDirectoryCreated(tev)
	case transport.UploadProgress:
		e.handleProgress(tev.RemotePath, tev.Bytes, tev.Total)
	case transport.UploadFinished:
		e.handleFinished(tev.RemotePath)
	case transport.DownloadProgress:
		e.handleProgress(tev.RemotePath, tev.Bytes, tev.Total)
	case transport.DownloadFinished:
		e.handleFinished(tev.RemotePath)
	case transport.FileRemoved:
		e.handleFileRemoved(tev)
	case transport.FileRenamed:
		// Renames are not queued operations; nothing to advance.
	case transport.OpError:
		e.handleOpError(tev)
	}
}

func (e *Engine) handleProgress(remotePath string, bytes, total int64) {
	item := e.currentItem
	if item == nil || item.RemotePath != remotePath {
		return
	}
	item.Bytes = bytes
	if total > 0 {
		item.Total = total
	}
	// Forward motion counts as liveness: the clock restarts on every
	// progress report, so only a genuinely stalled transfer times out.
	e.armTimeout()
	e.publishOperationEvent(events.EventOperationProgress, item)
}

func (e *Engine) handleFinished(remotePath string) {
	item := e.currentItem
	if item == nil || item.RemotePath != remotePath {
		return
	}
	e.stopTimeout()
	e.busy = false
	e.currentItem = nil
	e.state = StateIdle
	if item.Total > 0 {
		item.Bytes = item.Total
	}
	e.completeItem(item, "")
	e.scheduleDispatch()
}

func (e *Engine) handleFileRemoved(ev transport.FileRemoved) {
	item := e.currentItem
	if item == nil || item.Kind != KindDelete || item.RemotePath != ev.Path {
		return
	}
	e.stopTimeout()
	e.busy = false
	e.currentItem = nil
	e.state = StateIdle
	e.completeItem(item, "")
	if b := e.batchByID(item.BatchID); b != nil && b.Kind == KindDelete {
		e.publishDeleteProgress(ev.Path, b)
	}
	e.scheduleDispatch()
}

func (e *Engine) handleDirectoryListed(ev transport.DirectoryListed) {
	req := e.currentListing
	if req == nil || req.path != ev.Path {
		// A listing this engine never asked for. Another client of the
		// shared connection; ignore it.
		return
	}
	e.stopTimeout()
	e.busy = false
	e.currentListing = nil
	switch req.purpose {
	case listExistsCheck:
		e.finishExistsCheck(req.item, ev.Entries)
	case listDownloadScan:
		e.finishDownloadScan(req.scan, ev.Entries)
	case listDeleteScan:
		e.finishDeleteScan(req.dscan, ev.Entries)
	case listFolderCheck:
		e.finishFolderCheck(req.path, ev.Entries)
	}
}

func (e *Engine) handleOpError(ev transport.OpError) {
	if req := e.currentListing; req != nil && req.path == ev.Path {
		e.stopTimeout()
		e.busy = false
		e.currentListing = nil
		switch req.purpose {
		case listExistsCheck:
			// Same policy as a refused listing: proceed without the check.
			e.state = StateIdle
			req.item.confirmed = true
		case listDownloadScan:
			e.failDownloadScan(req.scan, ev.Message)
		case listDeleteScan:
			e.failDeleteScan(req.dscan, ev.Message)
		case listFolderCheck:
			e.failFolderCheck(req.path, ev.Message)
		}
		e.scheduleDispatch()
		return
	}
	if e.mkdirInFlight(ev.Path) {
		e.stopTimeout()
		e.busy = false
		e.mkdirFailed(ev.Path, ev.Message)
		e.scheduleDispatch()
		return
	}
	item := e.currentItem
	if item == nil || item.RemotePath != ev.Path {
		return
	}
	e.stopTimeout()
	e.busy = false
	e.currentItem = nil
	e.state = StateIdle
	e.failItem(item, ev.Message)
	e.scheduleDispatch()
}

// --- timeout ---

// armTimeout (re)starts the watchdog for the current transport operation.
// The sequence number keeps a stale timer fire from killing a later
// operation.
func (e *Engine) armTimeout() {
	e.timerSeq++
	seq := e.timerSeq
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.cfg.OperationTimeout, func() {
		e.post(func() { e.onTimeout(seq) })
	})
}

func (e *Engine) stopTimeout() {
	e.timerSeq++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) onTimeout(seq int) {
	if seq != e.timerSeq || !e.busy {
		return
	}
	e.tr.Abort()
	e.busy = false
	e.timer = nil
	if item := e.currentItem; item != nil {
		e.currentItem = nil
		e.state = StateIdle
		e.failItem(item, "timed out")
	} else if req := e.currentListing; req != nil {
		e.currentListing = nil
		switch req.purpose {
		case listExistsCheck:
			e.state = StateIdle
			req.item.confirmed = true
		case listDownloadScan:
			e.failDownloadScan(req.scan, "timed out")
		case listDeleteScan:
			e.failDeleteScan(req.dscan, "timed out")
		case listFolderCheck:
			e.failFolderCheck(req.path, "timed out")
		}
	} else if len(e.mkdirs) > 0 {
		e.mkdirFailed(e.mkdirs[0].remote, "timed out")
	} else {
		e.state = StateIdle
	}
	e.scheduleDispatch()
}

// --- cancellation ---

func (e *Engine) cancelAll() {
	if e.busy {
		e.tr.Abort()
	}
	e.stopTimeout()
	e.busy = false
	e.currentItem = nil
	e.currentListing = nil

	for _, it := range e.items {
		if !it.Terminal() {
			it.Status = StatusFailed
			it.Message = "Cancelled"
			if b := e.batchByID(it.BatchID); b != nil {
				b.Failed++
			}
		}
	}
	for _, b := range e.batches {
		b.Expanding = false
		b.Active = false
		b.Processed = true
	}
	e.scans = nil
	e.deleteScans = nil
	e.scanCounts = map[int]*scanCount{}
	e.deleteAccum = map[int][]deleteEntry{}
	e.mkdirs = nil
	e.mkdirTotal = 0
	e.mkdirDone = 0
	e.folderChecks = map[string][]*folderTask{}
	e.folderCheckOrder = nil
	e.readyFolders = nil
	e.activeFolder = nil
	e.compound = nil
	e.confirm = nil
	e.overwriteAll = false
	e.state = StateIdle

	e.publishQueueChanged()
	e.publishCancelled("All operations cancelled")
}

func (e *Engine) cancelBatch(id int) {
	b := e.batchByID(id)
	if b == nil || b.Processed {
		return
	}
	if e.currentItem != nil && e.currentItem.BatchID == id {
		e.tr.Abort()
		e.stopTimeout()
		e.busy = false
		e.currentItem = nil
		e.state = StateIdle
	}
	if req := e.currentListing; req != nil {
		owns := (req.purpose == listExistsCheck && req.item.BatchID == id) ||
			(req.purpose == listDownloadScan && req.scan.batchID == id) ||
			(req.purpose == listDeleteScan && req.dscan.batchID == id)
		if owns {
			e.tr.Abort()
			e.stopTimeout()
			e.busy = false
			e.currentListing = nil
			e.state = StateIdle
		}
	}
	if e.busy && e.state == StateCreatingDirectories &&
		e.activeFolder != nil && e.activeFolder.batchID == id {
		e.tr.Abort()
		e.stopTimeout()
		e.busy = false
		e.state = StateIdle
	}

	for _, it := range e.items {
		if it.BatchID == id && !it.Terminal() {
			it.Status = StatusFailed
			it.Message = "Cancelled"
			b.Failed++
		}
	}
	e.scans = dropScans(e.scans, id)
	e.deleteScans = dropDeleteScans(e.deleteScans, id)
	delete(e.scanCounts, id)
	delete(e.deleteAccum, id)
	if e.activeFolder != nil && e.activeFolder.batchID == id {
		e.activeFolder = nil
		e.mkdirs = nil
		e.mkdirTotal = 0
		e.mkdirDone = 0
	}
	if e.compound != nil && e.compound.deleteBatchID == id {
		// Cancelling the delete half of a replace cancels the whole replace;
		// the chained upload phase must not start.
		if e.activeFolder == e.compound.task {
			e.activeFolder = nil
		}
		e.compound = nil
	}
	if c := e.confirm; c != nil && c.kind == confirmFileOverwrite && c.item.BatchID == id {
		e.confirm = nil
		if e.state == StateAwaitingConfirmation {
			e.state = StateIdle
		}
	}

	b.Expanding = false
	wasActive := b.Active
	b.Active = false
	b.Processed = true
	e.publishQueueChanged()
	e.publishCancelled("Batch cancelled")
	if wasActive {
		e.activateNextBatch()
	}
	e.scheduleDispatch()
}

func dropScans(scans []pendingScan, batchID int) []pendingScan {
	out := scans[:0]
	for _, s := range scans {
		if s.batchID != batchID {
			out = append(out, s)
		}
	}
	return out
}

func dropDeleteScans(scans []pendingDeleteScan, batchID int) []pendingDeleteScan {
	out := scans[:0]
	for _, s := range scans {
		if s.batchID != batchID {
			out = append(out, s)
		}
	}
	return out
}
