package queue

import (
	"fmt"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/svetzal/r64u-sub000/internal/pathutil"
	"github.com/svetzal/r64u-sub000/internal/transport"
)

// enqueueRecursiveUpload queues a whole local folder. The request first
// passes an existence check on the remote side (one listing of the remote
// parent, shared by every folder headed for the same parent), possibly a
// merge/replace confirmation, and only then expands into mkdirs and upload
// items.
func (e *Engine) enqueueRecursiveUpload(localDir, remoteDir string) {
	localDir = localSource(localDir)
	remote := pathutil.NormalizeRemote(remoteDir)
	if e.isDuplicateSource(KindUpload, localDir) {
		e.bus.PublishStatus(fmt.Sprintf("Upload of %s is already queued", localDir))
		return
	}
	if !e.fs.Exists(localDir) {
		e.bus.PublishStatus(fmt.Sprintf("Folder %s does not exist", localDir))
		return
	}
	task := &folderTask{
		localDir:     localDir,
		remoteParent: remote,
		remoteTarget: pathutil.JoinRemote(remote, filepath.Base(localDir)),
		batchID:      -1,
	}
	if e.cfg.AutoMerge {
		e.readyFolders = append(e.readyFolders, task)
		e.scheduleDispatch()
		return
	}
	if _, ok := e.folderChecks[remote]; !ok {
		e.folderCheckOrder = append(e.folderCheckOrder, remote)
	}
	e.folderChecks[remote] = append(e.folderChecks[remote], task)
	e.scheduleDispatch()
}

// startFolderCheck lists the next remote parent with folder uploads waiting
// on it. One listing answers the existence question for every folder headed
// there.
func (e *Engine) startFolderCheck() {
	parent := e.folderCheckOrder[0]
	e.folderCheckOrder = e.folderCheckOrder[1:]
	e.currentListing = &listingRequest{path: parent, purpose: listFolderCheck}
	e.state = StateCheckingExists
	e.busy = true
	e.armTimeout()
	if err := e.tr.List(parent); err != nil {
		e.stopTimeout()
		e.busy = false
		e.currentListing = nil
		e.failFolderCheck(parent, err.Error())
		e.scheduleDispatch()
	}
}

// finishFolderCheck splits the waiting folder tasks into ones with no
// remote collision (ready to upload) and colliding ones, which go to the
// user as a single merge/replace question.
func (e *Engine) finishFolderCheck(parent string, entries []transport.Entry) {
	e.state = StateIdle
	tasks := e.folderChecks[parent]
	delete(e.folderChecks, parent)

	existing := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir {
			existing[entry.Name] = true
		}
	}
	colliding, ready := lo.FilterReject(tasks, func(t *folderTask, _ int) bool {
		return existing[filepath.Base(t.localDir)]
	})
	e.readyFolders = append(e.readyFolders, ready...)
	if len(colliding) > 0 {
		for _, t := range colliding {
			t.exists = true
		}
		e.raiseFolderExistsConfirmation(colliding)
	}
	e.scheduleDispatch()
}

// failFolderCheck lets the tasks proceed unchecked. A target that does turn
// out to exist is merged into; the mkdirs just fail quietly.
func (e *Engine) failFolderCheck(parent string, message string) {
	e.state = StateIdle
	e.log.Warnf("listing %s failed: %s", parent, message)
	tasks := e.folderChecks[parent]
	delete(e.folderChecks, parent)
	e.readyFolders = append(e.readyFolders, tasks...)
}

// startNextFolderTask activates the next confirmed folder upload. A replace
// runs as a compound: a recursive delete batch of the remote target first,
// with the upload phase chained to that batch's completion.
func (e *Engine) startNextFolderTask() {
	task := e.readyFolders[0]
	e.readyFolders = e.readyFolders[1:]
	e.activeFolder = task
	if task.replace {
		b := e.newBatch(KindDelete, "Replace "+pathutil.RemoteBase(task.remoteTarget), task.remoteTarget)
		e.compound = &compoundOp{task: task, deleteBatchID: b.ID}
		e.beginDeleteScan(b, task.remoteTarget)
		return
	}
	e.beginUploadPhase(task)
}

// beginUploadPhase expands the folder task: one batch, the remote directory
// skeleton first, then every file under the local root as an upload item.
func (e *Engine) beginUploadPhase(task *folderTask) {
	b := e.newBatch(KindUpload, "Upload "+filepath.Base(task.localDir), task.localDir)
	b.Expanding = true
	task.batchID = b.ID
	e.activeFolder = task

	e.mkdirs = append(e.mkdirs, pendingMkdir{remote: task.remoteTarget})
	subdirs, err := e.fs.Subdirectories(task.localDir)
	if err != nil {
		e.log.Errorf("walking %s: %v", task.localDir, err)
	}
	for _, rel := range subdirs {
		e.mkdirs = append(e.mkdirs, pendingMkdir{
			remote: pathutil.JoinRemote(task.remoteTarget, pathutil.ToRemote(rel)),
		})
	}
	e.mkdirTotal = len(e.mkdirs)
	e.mkdirDone = 0
	e.scheduleDispatch()
}

// startNextMkdir issues the next remote directory creation. The entry stays
// at the head of the queue until its result comes back.
func (e *Engine) startNextMkdir() {
	m := e.mkdirs[0]
	e.state = StateCreatingDirectories
	e.busy = true
	e.armTimeout()
	if err := e.tr.MakeDirectory(m.remote); err != nil {
		e.stopTimeout()
		e.busy = false
		e.mkdirFailed(m.remote, err.Error())
		e.scheduleDispatch()
	}
}

func (e *Engine) handleDirectoryCreated(ev transport.DirectoryCreated) {
	if !e.mkdirInFlight(ev.Path) {
		return
	}
	e.stopTimeout()
	e.busy = false
	e.mkdirs = e.mkdirs[1:]
	e.mkdirDone++
	e.state = StateIdle
	e.publishDirectoryCreation(ev.Path)
	if len(e.mkdirs) == 0 {
		e.expandUploadFiles()
	}
	e.scheduleDispatch()
}

func (e *Engine) mkdirInFlight(path string) bool {
	return e.state == StateCreatingDirectories && len(e.mkdirs) > 0 && e.mkdirs[0].remote == path
}

// mkdirFailed advances past a directory that could not be created. When the
// target already exists (the merge case) this is the expected outcome, so
// the failure is not fatal to the batch.
func (e *Engine) mkdirFailed(path, message string) {
	if len(e.mkdirs) == 0 || e.mkdirs[0].remote != path {
		return
	}
	e.mkdirs = e.mkdirs[1:]
	e.mkdirDone++
	e.state = StateIdle
	e.log.Debugf("mkdir %s: %s", path, message)
	e.publishDirectoryCreation(path)
	if len(e.mkdirs) == 0 {
		e.expandUploadFiles()
	}
}

// expandUploadFiles appends the upload items once the directory skeleton is
// in place. Items are pre-confirmed: the folder-level answer already covered
// them, so no per-file overwrite questions.
func (e *Engine) expandUploadFiles() {
	task := e.activeFolder
	if task == nil || task.batchID < 0 {
		return
	}
	b := e.batchByID(task.batchID)
	if b == nil || b.Processed {
		return
	}
	e.mkdirTotal = 0
	e.mkdirDone = 0
	files, err := e.fs.FilesUnder(task.localDir)
	if err != nil {
		e.log.Errorf("walking %s: %v", task.localDir, err)
		e.bus.PublishStatus(fmt.Sprintf("Cannot read %s: %v", task.localDir, err))
	}
	for _, f := range files {
		item := newItem(KindUpload, filepath.Join(task.localDir, f.RelPath),
			pathutil.JoinRemote(task.remoteTarget, pathutil.ToRemote(f.RelPath)), b.ID)
		item.Total = f.Size
		item.confirmed = true
		e.appendScanItem(item, b)
	}
	b.Expanding = false
	e.publishQueueChanged()
	e.publishBatchProgress(b)
	e.maybeCompleteBatch(b)
}
