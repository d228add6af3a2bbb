package queue

import (
	"fmt"
	"sort"

	"github.com/svetzal/r64u-sub000/internal/events"
	"github.com/svetzal/r64u-sub000/internal/pathutil"
	"github.com/svetzal/r64u-sub000/internal/transport"
)

// enqueueRecursiveDelete starts the tree walk for a folder delete. Nothing
// is removed until the whole subtree has been listed: the delete items are
// appended in one go, ordered so every directory is empty when its turn
// comes.
func (e *Engine) enqueueRecursiveDelete(remotePath string) {
	remote := pathutil.NormalizeRemote(remotePath)
	if e.isDuplicateSource(KindDelete, remote) {
		e.bus.PublishStatus(fmt.Sprintf("Delete of %s is already queued", remote))
		return
	}
	b := e.newBatch(KindDelete, "Delete "+pathutil.RemoteBase(remote), remote)
	e.beginDeleteScan(b, remote)
}

// beginDeleteScan seeds the walk of remote under batch b. Shared with the
// replace-folder compound, which runs the same walk under its own batch.
func (e *Engine) beginDeleteScan(b *Batch, remote string) {
	b.Expanding = true
	e.scanCounts[b.ID] = &scanCount{}
	e.deleteAccum[b.ID] = []deleteEntry{}
	e.deleteScans = append(e.deleteScans, pendingDeleteScan{remote: remote, batchID: b.ID})
	e.publishScanEvent(events.EventScanningStarted, remote, b.ID)
	e.scheduleDispatch()
}

func (e *Engine) startDeleteScan() {
	s := e.deleteScans[0]
	e.deleteScans = e.deleteScans[1:]
	e.currentListing = &listingRequest{path: s.remote, purpose: listDeleteScan, dscan: s}
	e.state = StateScanning
	e.busy = true
	e.armTimeout()
	if err := e.tr.List(s.remote); err != nil {
		e.stopTimeout()
		e.busy = false
		e.currentListing = nil
		e.failDeleteScan(s, err.Error())
		e.scheduleDispatch()
	}
}

// finishDeleteScan records the directory's contents: files are collected
// directly, subdirectories are queued for their own listing. The directory
// itself is collected too, so it gets removed once emptied.
func (e *Engine) finishDeleteScan(s pendingDeleteScan, entries []transport.Entry) {
	e.state = StateIdle
	b := e.batchByID(s.batchID)
	if b == nil || b.Processed {
		e.scheduleDispatch()
		return
	}
	cnt := e.scanCounts[s.batchID]
	acc := e.deleteAccum[s.batchID]
	for _, entry := range entries {
		child := pathutil.JoinRemote(s.remote, entry.Name)
		if entry.IsDir {
			e.deleteScans = append(e.deleteScans, pendingDeleteScan{remote: child, batchID: s.batchID})
			continue
		}
		acc = append(acc, deleteEntry{path: child, isDir: false})
		if cnt != nil {
			cnt.files++
		}
	}
	acc = append(acc, deleteEntry{path: s.remote, isDir: true})
	e.deleteAccum[s.batchID] = acc
	if cnt != nil {
		cnt.dirs++
	}
	e.publishScanEvent(events.EventScanningProgress, s.remote, s.batchID)
	e.settleDeleteScan(b)
	e.scheduleDispatch()
}

// failDeleteScan skips the unreadable subtree. Its parent directory will
// stay non-empty and that rmdir will fail on its own; the rest of the
// batch proceeds.
func (e *Engine) failDeleteScan(s pendingDeleteScan, message string) {
	e.state = StateIdle
	e.bus.PublishStatus(fmt.Sprintf("Skipping %s: %s", s.remote, message))
	e.log.Warnf("listing %s failed: %s", s.remote, message)
	b := e.batchByID(s.batchID)
	if b == nil || b.Processed {
		return
	}
	e.settleDeleteScan(b)
}

// settleDeleteScan turns the accumulated entries into delete items once the
// walk is done: files first, then directories deepest first, so no remove
// ever targets a non-empty directory.
func (e *Engine) settleDeleteScan(b *Batch) {
	for _, s := range e.deleteScans {
		if s.batchID == b.ID {
			return
		}
	}
	acc := e.deleteAccum[b.ID]
	delete(e.deleteAccum, b.ID)
	delete(e.scanCounts, b.ID)
	sort.SliceStable(acc, func(i, j int) bool {
		if acc[i].isDir != acc[j].isDir {
			return !acc[i].isDir
		}
		if acc[i].isDir {
			return pathutil.RemoteDepth(acc[i].path) > pathutil.RemoteDepth(acc[j].path)
		}
		return false
	})
	for _, entry := range acc {
		item := newItem(KindDelete, "", entry.path, b.ID)
		item.IsDirectory = entry.isDir
		item.confirmed = true
		e.appendScanItem(item, b)
	}
	b.Expanding = false
	e.publishQueueChanged()
	e.publishBatchProgress(b)
	e.maybeCompleteBatch(b)
}
