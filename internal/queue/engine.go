// Package queue implements the transfer queue engine: the single component
// allowed to drive the device transport. It accepts upload, download, and
// delete requests (including recursive folder variants), expands them into
// file-level items, and feeds the one-operation-at-a-time transport from a
// single-consumer run loop.
//
// Concurrency model: every field below the "loop-owned" marker is touched
// only by the run goroutine. Public methods post closures into the loop and
// either return immediately (enqueues) or wait for the closure to finish
// (cancellation, queries). There is no locking; the reentrancy hazard of a
// completion handler advancing the queue while an outer call is unwinding is
// handled by an internal deferred-call list drained to completion after each
// posted closure, guarded against recursive draining.
package queue

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/svetzal/r64u-sub000/internal/constants"
	"github.com/svetzal/r64u-sub000/internal/events"
	"github.com/svetzal/r64u-sub000/internal/localfs"
	"github.com/svetzal/r64u-sub000/internal/logging"
	"github.com/svetzal/r64u-sub000/internal/pathutil"
	"github.com/svetzal/r64u-sub000/internal/transport"
)

// LocalFS is the slice of local filesystem behavior the engine needs.
// Production code passes *localfs.FS; tests pass a fake.
type LocalFS interface {
	Exists(path string) bool
	FileSize(path string) int64
	CreateDirAll(path string) error
	Subdirectories(root string) ([]string, error)
	FilesUnder(root string) ([]localfs.LocalFile, error)
}

// Config tunes engine behavior.
type Config struct {
	// OperationTimeout is how long one transport operation may go without
	// completing or reporting progress before it is aborted and failed.
	OperationTimeout time.Duration

	// AutoMerge skips the folder-exists check on recursive uploads and
	// merges into existing remote folders without asking.
	AutoMerge bool
}

// listingPurpose identifies which consumer inside the engine asked for the
// in-flight directory listing. Listings the engine never requested (another
// user of the shared connection) are ignored entirely.
type listingPurpose int

const (
	listDownloadScan listingPurpose = iota
	listDeleteScan
	listExistsCheck
	listFolderCheck
)

type listingRequest struct {
	path    string
	purpose listingPurpose
	item    *Item             // listExistsCheck
	scan    pendingScan       // listDownloadScan
	dscan   pendingDeleteScan // listDeleteScan
}

// pendingScan is one queued directory listing of a recursive download.
type pendingScan struct {
	remote  string
	local   string
	batchID int
}

// pendingDeleteScan is one queued directory listing of a recursive delete.
type pendingDeleteScan struct {
	remote  string
	batchID int
}

// deleteEntry is one path collected by the delete scanner, ordered later so
// every entry is empty by the time its turn comes.
type deleteEntry struct {
	path  string
	isDir bool
}

// pendingMkdir is one remote directory to create during a folder upload.
type pendingMkdir struct {
	remote string
}

// folderTask is one requested folder upload moving through the planner:
// existence check, optional confirmation, optional replace-delete, then the
// mkdir/upload phase.
type folderTask struct {
	localDir     string
	remoteParent string
	remoteTarget string
	exists       bool // remote target folder already present
	replace      bool // user chose Replace: delete it first
	batchID      int  // upload batch, assigned when that phase starts
}

// compoundOp ties a replace-folder delete batch to the upload that must
// follow it.
type compoundOp struct {
	task          *folderTask
	deleteBatchID int
}

type scanCount struct {
	dirs  int
	files int
}

// Engine is the transfer queue orchestrator.
type Engine struct {
	cfg Config
	tr  transport.Transport
	fs  LocalFS
	bus *events.EventBus
	log *logging.Logger

	calls     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Everything below is owned by the run loop goroutine.

	state       State
	items       []*Item
	batches     []*Batch
	nextBatchID int

	busy           bool // one transport operation in flight
	currentItem    *Item
	currentListing *listingRequest

	deferred       []func()
	draining       bool
	dispatchQueued bool

	scans      []pendingScan
	scanCounts map[int]*scanCount

	deleteScans []pendingDeleteScan
	deleteAccum map[int][]deleteEntry

	mkdirs     []pendingMkdir
	mkdirTotal int
	mkdirDone  int

	folderChecks     map[string][]*folderTask
	folderCheckOrder []string
	readyFolders     []*folderTask
	activeFolder     *folderTask
	compound         *compoundOp

	confirm      *confirmation
	overwriteAll bool

	timer    *time.Timer
	timerSeq int
}

// New creates an engine and starts its run loop. The engine registers
// itself as the transport's event sink.
func New(cfg Config, tr transport.Transport, fs LocalFS, bus *events.EventBus, log *logging.Logger) *Engine {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = constants.DefaultOperationTimeout
	}
	e := &Engine{
		cfg:          cfg,
		tr:           tr,
		fs:           fs,
		bus:          bus,
		log:          log,
		calls:        make(chan func(), constants.CallQueueDepth),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		scanCounts:   make(map[int]*scanCount),
		deleteAccum:  make(map[int][]deleteEntry),
		folderChecks: make(map[string][]*folderTask),
	}
	tr.SetSink(func(ev transport.Event) {
		e.post(func() { e.handleTransportEvent(ev) })
	})
	go e.run()
	return e
}

// Close stops the run loop. Pending work is abandoned, not cancelled; call
// CancelAll first for a clean shutdown.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.quit) })
	<-e.done
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case fn := <-e.calls:
			fn()
			e.drain()
		case <-e.quit:
			return
		}
	}
}

// post hands a closure to the run loop.
func (e *Engine) post(fn func()) {
	select {
	case e.calls <- fn:
	case <-e.quit:
	}
}

// postWait hands a closure to the run loop and waits for it (and the drain
// that follows it) to finish.
func (e *Engine) postWait(fn func()) {
	ch := make(chan struct{})
	e.post(func() {
		fn()
		e.drain()
		close(ch)
	})
	select {
	case <-ch:
	case <-e.done:
	}
}

// deferCall queues a continuation to run after the current call unwinds.
func (e *Engine) deferCall(fn func()) {
	e.deferred = append(e.deferred, fn)
}

// drain runs deferred continuations to completion. The guard keeps a nested
// drain from recursing into itself; whatever a nested call queues is picked
// up by the outer invocation's loop.
func (e *Engine) drain() {
	if e.draining {
		return
	}
	e.draining = true
	for len(e.deferred) > 0 {
		fn := e.deferred[0]
		e.deferred = e.deferred[1:]
		fn()
	}
	e.draining = false
}

// scheduleDispatch queues one processNext call, coalescing repeated requests
// into a single deferred tick.
func (e *Engine) scheduleDispatch() {
	if e.dispatchQueued {
		return
	}
	e.dispatchQueued = true
	e.deferCall(func() {
		e.dispatchQueued = false
		e.processNext()
	})
}

// --- public enqueue API ---

// EnqueueUpload queues one file upload. Never blocks.
func (e *Engine) EnqueueUpload(localPath, remotePath string) {
	e.post(func() {
		e.enqueueItem(KindUpload, localPath, pathutil.NormalizeRemote(remotePath), -1, false)
	})
}

// EnqueueUploadToBatch queues one file upload into an existing batch.
func (e *Engine) EnqueueUploadToBatch(localPath, remotePath string, batchID int) {
	e.post(func() {
		e.enqueueItem(KindUpload, localPath, pathutil.NormalizeRemote(remotePath), batchID, false)
	})
}

// EnqueueDownload queues one file download. Never blocks.
func (e *Engine) EnqueueDownload(remotePath, localPath string) {
	e.post(func() {
		e.enqueueItem(KindDownload, localPath, pathutil.NormalizeRemote(remotePath), -1, false)
	})
}

// EnqueueDownloadToBatch queues one file download into an existing batch.
func (e *Engine) EnqueueDownloadToBatch(remotePath, localPath string, batchID int) {
	e.post(func() {
		e.enqueueItem(KindDownload, localPath, pathutil.NormalizeRemote(remotePath), batchID, false)
	})
}

// EnqueueDelete queues deletion of one remote file or (already empty)
// directory. Never blocks.
func (e *Engine) EnqueueDelete(remotePath string, isDirectory bool) {
	e.post(func() {
		item := e.enqueueItem(KindDelete, "", pathutil.NormalizeRemote(remotePath), -1, isDirectory)
		item.confirmed = true
	})
}

// EnqueueRecursiveUpload queues a whole local folder for upload under the
// given remote directory. Duplicate requests on the same local folder are
// suppressed with a status message while the first is still in flight.
func (e *Engine) EnqueueRecursiveUpload(localDir, remoteDir string) {
	e.post(func() { e.enqueueRecursiveUpload(localDir, remoteDir) })
}

// EnqueueRecursiveDownload queues a whole remote folder for download into
// the given local directory. Duplicates are suppressed as above.
func (e *Engine) EnqueueRecursiveDownload(remoteDir, localDir string) {
	e.post(func() { e.enqueueRecursiveDownload(remoteDir, localDir) })
}

// EnqueueRecursiveDelete queues deletion of a whole remote folder.
// Duplicates are suppressed as above.
func (e *Engine) EnqueueRecursiveDelete(remotePath string) {
	e.post(func() { e.enqueueRecursiveDelete(remotePath) })
}

// CancelAll aborts the in-flight operation, fails every pending item with
// "Cancelled", and clears all planner and confirmation state. The engine is
// back in Idle with a clean slate when this returns.
func (e *Engine) CancelAll() {
	e.postWait(func() { e.cancelAll() })
}

// CancelBatch cancels one batch. If it was active, the next queued batch
// takes over.
func (e *Engine) CancelBatch(id int) {
	e.postWait(func() { e.cancelBatch(id) })
}

// --- queries ---

// ActiveBatchProgress returns the progress of the currently active batch.
func (e *Engine) ActiveBatchProgress() (Progress, bool) {
	var p Progress
	var ok bool
	e.postWait(func() {
		if b := e.activeBatch(); b != nil {
			p, ok = b.progress(), true
		}
	})
	return p, ok
}

// BatchProgress returns the progress of one batch by id.
func (e *Engine) BatchProgress(id int) (Progress, bool) {
	var p Progress
	var ok bool
	e.postWait(func() {
		if b := e.batchByID(id); b != nil {
			p, ok = b.progress(), true
		}
	})
	return p, ok
}

// AllBatchIDs returns the ids of all known batches in creation order.
func (e *Engine) AllBatchIDs() []int {
	var ids []int
	e.postWait(func() {
		ids = lo.Map(e.batches, func(b *Batch, _ int) int { return b.ID })
	})
	return ids
}

// Items returns a snapshot of the visible item list.
func (e *Engine) Items() []Item {
	var out []Item
	e.postWait(func() {
		out = make([]Item, len(e.items))
		for i, it := range e.items {
			out[i] = *it
		}
	})
	return out
}

// CurrentState returns the engine's dispatch state.
func (e *Engine) CurrentState() State {
	var s State
	e.postWait(func() { s = e.state })
	return s
}

// --- item and batch bookkeeping (loop-owned) ---

func (e *Engine) enqueueItem(kind Kind, localPath, remotePath string, batchID int, isDir bool) *Item {
	b := e.targetBatch(kind, batchID)
	item := newItem(kind, localPath, remotePath, b.ID)
	item.IsDirectory = isDir
	if kind == KindUpload && localPath != "" {
		item.Total = e.fs.FileSize(localPath)
	}
	e.items = append(e.items, item)
	b.Total++
	e.publishQueueChanged()
	e.publishBatchProgress(b)
	e.scheduleDispatch()
	return item
}

// appendScanItem adds an item discovered by a recursive planner. No batch
// lookup, no dispatch: the planner finishes its expansion first.
func (e *Engine) appendScanItem(item *Item, b *Batch) {
	e.items = append(e.items, item)
	b.Total++
}

func (e *Engine) targetBatch(kind Kind, batchID int) *Batch {
	if batchID >= 0 {
		if b := e.batchByID(batchID); b != nil && !b.Processed {
			return b
		}
	}
	if b := e.activeBatch(); b != nil && b.Kind == kind && !b.Processed && !b.Expanding {
		return b
	}
	return e.newBatch(kind, kind.String()+" files", "")
}

func (e *Engine) newBatch(kind Kind, description, sourcePath string) *Batch {
	e.purgeProcessed()
	b := &Batch{
		ID:          e.nextBatchID,
		Kind:        kind,
		Description: description,
		SourcePath:  sourcePath,
	}
	e.nextBatchID++
	e.batches = append(e.batches, b)
	if e.activeBatch() == nil {
		e.activateBatch(b)
	}
	return b
}

func (e *Engine) activateBatch(b *Batch) {
	b.Active = true
	e.publishBatchEvent(events.EventBatchStarted, b)
}

func (e *Engine) activateNextBatch() {
	if e.activeBatch() != nil {
		return
	}
	for _, b := range e.batches {
		if !b.Processed {
			e.activateBatch(b)
			return
		}
	}
}

func (e *Engine) activeBatch() *Batch {
	for _, b := range e.batches {
		if b.Active {
			return b
		}
	}
	return nil
}

func (e *Engine) batchByID(id int) *Batch {
	for _, b := range e.batches {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// purgeProcessed drops finished batches and their items from the visible
// lists. Called lazily when new work is created, so a finished batch stays
// on screen until then.
func (e *Engine) purgeProcessed() {
	processed := make(map[int]bool)
	for _, b := range e.batches {
		if b.Processed {
			processed[b.ID] = true
		}
	}
	if len(processed) == 0 {
		return
	}
	e.items = lo.Reject(e.items, func(it *Item, _ int) bool { return processed[it.BatchID] })
	e.batches = lo.Reject(e.batches, func(b *Batch, _ int) bool { return b.Processed })
	e.publishQueueChanged()
}

func (e *Engine) completeItem(item *Item, message string) {
	item.Status = StatusCompleted
	item.Message = message
	b := e.batchByID(item.BatchID)
	if b != nil {
		b.Completed++
	}
	e.publishOperationEvent(events.EventOperationCompleted, item)
	e.publishQueueChanged()
	if b != nil {
		e.publishBatchProgress(b)
		e.maybeCompleteBatch(b)
	}
}

func (e *Engine) failItem(item *Item, message string) {
	item.Status = StatusFailed
	item.Message = message
	b := e.batchByID(item.BatchID)
	if b != nil {
		b.Failed++
	}
	e.publishOperationEvent(events.EventOperationFailed, item)
	e.publishQueueChanged()
	if b != nil {
		e.publishBatchProgress(b)
		e.maybeCompleteBatch(b)
	}
}

func (e *Engine) maybeCompleteBatch(b *Batch) {
	if b == nil || b.Processed || !b.Done() {
		return
	}
	b.Active = false
	b.Processed = true
	e.publishBatchEvent(events.EventBatchCompleted, b)
	e.onBatchFinished(b)
}

// onBatchFinished runs after a batch completes: second phase of a compound
// replace, folder-upload sequencing, activation of the next batch, and the
// all-work-done bookkeeping.
func (e *Engine) onBatchFinished(b *Batch) {
	if e.compound != nil && e.compound.deleteBatchID == b.ID {
		task := e.compound.task
		e.compound = nil
		e.beginUploadPhase(task)
	}
	if e.activeFolder != nil && e.activeFolder.batchID == b.ID {
		e.activeFolder = nil
	}
	e.activateNextBatch()
	if e.activeBatch() == nil && !e.hasPendingExpansion() {
		// The overwrite-all answer lives until the queue fully drains.
		e.overwriteAll = false
		e.publishAllCompleted()
	}
	e.scheduleDispatch()
}

func (e *Engine) hasPendingExpansion() bool {
	return len(e.scans) > 0 ||
		len(e.deleteScans) > 0 ||
		len(e.mkdirs) > 0 ||
		len(e.folderCheckOrder) > 0 ||
		len(e.readyFolders) > 0 ||
		e.activeFolder != nil ||
		e.compound != nil ||
		e.currentListing != nil
}

// isDuplicateSource reports whether a recursive operation of the same kind
// on this normalized source path is already in flight. A different kind on
// the same path is a new request, not a duplicate.
func (e *Engine) isDuplicateSource(kind Kind, source string) bool {
	for _, b := range e.batches {
		if !b.Processed && b.Kind == kind && b.SourcePath == source {
			return true
		}
	}
	switch kind {
	case KindDownload:
		for _, s := range e.scans {
			if s.remote == source {
				return true
			}
		}
		if req := e.currentListing; req != nil && req.purpose == listDownloadScan && req.path == source {
			return true
		}
	case KindDelete:
		for _, s := range e.deleteScans {
			if s.remote == source {
				return true
			}
		}
		if req := e.currentListing; req != nil && req.purpose == listDeleteScan && req.path == source {
			return true
		}
	case KindUpload:
		for _, tasks := range e.folderChecks {
			for _, t := range tasks {
				if t.localDir == source {
					return true
				}
			}
		}
		for _, t := range e.readyFolders {
			if t.localDir == source {
				return true
			}
		}
		if e.activeFolder != nil && e.activeFolder.localDir == source {
			return true
		}
	}
	return false
}

func localSource(localDir string) string {
	return filepath.Clean(localDir)
}

// --- event publishing ---

func (e *Engine) publishQueueChanged() {
	counts := lo.CountValuesBy(e.items, func(it *Item) Status { return it.Status })
	e.bus.Publish(&events.QueueEvent{
		BaseEvent:  events.BaseEvent{EventType: events.EventQueueChanged, Time: time.Now()},
		Pending:    counts[StatusPending],
		InProgress: counts[StatusInProgress],
		Completed:  counts[StatusCompleted],
		Failed:     counts[StatusFailed],
	})
}

func (e *Engine) publishBatchEvent(t events.EventType, b *Batch) {
	e.bus.Publish(&events.BatchEvent{
		BaseEvent:   events.BaseEvent{EventType: t, Time: time.Now()},
		BatchID:     b.ID,
		Kind:        b.Kind.String(),
		Description: b.Description,
		Completed:   b.Completed,
		Failed:      b.Failed,
		Total:       b.Total,
	})
}

func (e *Engine) publishBatchProgress(b *Batch) {
	e.publishBatchEvent(events.EventBatchProgress, b)
}

func (e *Engine) publishOperationEvent(t events.EventType, item *Item) {
	e.bus.Publish(&events.OperationEvent{
		BaseEvent:  events.BaseEvent{EventType: t, Time: time.Now()},
		ItemID:     item.ID,
		BatchID:    item.BatchID,
		Kind:       item.Kind.String(),
		LocalPath:  item.LocalPath,
		RemotePath: item.RemotePath,
		Bytes:      item.Bytes,
		Total:      item.Total,
		Message:    item.Message,
	})
}

func (e *Engine) publishScanEvent(t events.EventType, path string, batchID int) {
	cnt := e.scanCounts[batchID]
	if cnt == nil {
		cnt = &scanCount{}
	}
	pending := 0
	for _, s := range e.scans {
		if s.batchID == batchID {
			pending++
		}
	}
	for _, s := range e.deleteScans {
		if s.batchID == batchID {
			pending++
		}
	}
	e.bus.Publish(&events.ScanEvent{
		BaseEvent:   events.BaseEvent{EventType: t, Time: time.Now()},
		Path:        path,
		DirsScanned: cnt.dirs,
		FilesFound:  cnt.files,
		DirsPending: pending,
	})
}

func (e *Engine) publishDeleteProgress(path string, b *Batch) {
	e.bus.Publish(&events.DeleteProgressEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventDeleteProgress, Time: time.Now()},
		Path:      path,
		Removed:   b.Completed + b.Failed,
		Total:     b.Total,
	})
}

func (e *Engine) publishDirectoryCreation(path string) {
	e.bus.Publish(&events.DirectoryCreationEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventDirectoryCreation, Time: time.Now()},
		Path:      path,
		Created:   e.mkdirDone,
		Total:     e.mkdirTotal,
	})
}

func (e *Engine) publishAllCompleted() {
	e.bus.Publish(&events.StatusEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventAllCompleted, Time: time.Now()},
		Message:   "All operations completed",
	})
}

func (e *Engine) publishCancelled(message string) {
	e.bus.Publish(&events.StatusEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventCancelled, Time: time.Now()},
		Message:   message,
	})
}
