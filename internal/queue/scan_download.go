package queue

import (
	"fmt"
	"path/filepath"

	"github.com/svetzal/r64u-sub000/internal/events"
	"github.com/svetzal/r64u-sub000/internal/pathutil"
	"github.com/svetzal/r64u-sub000/internal/transport"
)

// enqueueRecursiveDownload starts the remote tree walk for a folder
// download. The walk runs one directory listing at a time through the same
// transport slot as everything else; discovered files join the batch as
// ordinary download items once their parent directory has been listed.
func (e *Engine) enqueueRecursiveDownload(remoteDir, localDir string) {
	remote := pathutil.NormalizeRemote(remoteDir)
	if e.isDuplicateSource(KindDownload, remote) {
		e.bus.PublishStatus(fmt.Sprintf("Download of %s is already queued", remote))
		return
	}
	if err := e.fs.CreateDirAll(localDir); err != nil {
		e.bus.PublishStatus(fmt.Sprintf("Cannot create %s: %v", localDir, err))
		e.log.Errorf("create local target %s: %v", localDir, err)
		return
	}
	b := e.newBatch(KindDownload, "Download "+pathutil.RemoteBase(remote), remote)
	b.Expanding = true
	e.scanCounts[b.ID] = &scanCount{}
	e.scans = append(e.scans, pendingScan{remote: remote, local: localDir, batchID: b.ID})
	e.publishScanEvent(events.EventScanningStarted, remote, b.ID)
	e.scheduleDispatch()
}

// startDownloadScan issues the listing for the next queued directory.
func (e *Engine) startDownloadScan() {
	s := e.scans[0]
	e.scans = e.scans[1:]
	e.currentListing = &listingRequest{path: s.remote, purpose: listDownloadScan, scan: s}
	e.state = StateScanning
	e.busy = true
	e.armTimeout()
	if err := e.tr.List(s.remote); err != nil {
		e.stopTimeout()
		e.busy = false
		e.currentListing = nil
		e.failDownloadScan(s, err.Error())
		e.scheduleDispatch()
	}
}

// finishDownloadScan folds one directory listing into the batch: files
// become download items, subdirectories are mirrored locally and queued for
// their own listing.
func (e *Engine) finishDownloadScan(s pendingScan, entries []transport.Entry) {
	e.state = StateIdle
	cnt := e.scanCounts[s.batchID]
	b := e.batchByID(s.batchID)
	if b == nil || b.Processed {
		e.scheduleDispatch()
		return
	}
	for _, entry := range entries {
		if entry.IsDir {
			sub := filepath.Join(s.local, entry.Name)
			if err := e.fs.CreateDirAll(sub); err != nil {
				e.bus.PublishStatus(fmt.Sprintf("Skipping %s: %v", entry.Name, err))
				continue
			}
			e.scans = append(e.scans, pendingScan{
				remote:  pathutil.JoinRemote(s.remote, entry.Name),
				local:   sub,
				batchID: s.batchID,
			})
			continue
		}
		item := newItem(KindDownload, filepath.Join(s.local, entry.Name),
			pathutil.JoinRemote(s.remote, entry.Name), s.batchID)
		item.Total = entry.Size
		e.appendScanItem(item, b)
		if cnt != nil {
			cnt.files++
		}
	}
	if cnt != nil {
		cnt.dirs++
	}
	e.publishScanEvent(events.EventScanningProgress, s.remote, s.batchID)
	e.settleDownloadScan(b)
	e.publishQueueChanged()
	e.publishBatchProgress(b)
	e.scheduleDispatch()
}

// failDownloadScan skips the unreadable subtree and keeps the rest of the
// walk going.
func (e *Engine) failDownloadScan(s pendingScan, message string) {
	e.state = StateIdle
	e.bus.PublishStatus(fmt.Sprintf("Skipping %s: %s", s.remote, message))
	e.log.Warnf("listing %s failed: %s", s.remote, message)
	b := e.batchByID(s.batchID)
	if b == nil || b.Processed {
		return
	}
	e.settleDownloadScan(b)
	e.publishBatchProgress(b)
}

// settleDownloadScan closes the batch's expansion once no listings remain
// for it. An empty folder yields a zero-item batch that completes right
// here.
func (e *Engine) settleDownloadScan(b *Batch) {
	for _, s := range e.scans {
		if s.batchID == b.ID {
			return
		}
	}
	b.Expanding = false
	delete(e.scanCounts, b.ID)
	e.maybeCompleteBatch(b)
}
