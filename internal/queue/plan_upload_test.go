package queue

import (
	"testing"

	"github.com/svetzal/r64u-sub000/internal/events"
	"github.com/svetzal/r64u-sub000/internal/localfs"
	"github.com/svetzal/r64u-sub000/internal/transport"
)

func setupProjectFolder(te *testEngine) string {
	root := local("work", "proj")
	te.fs.addDir(root)
	te.fs.mu.Lock()
	te.fs.subdirs[root] = []string{"sub"}
	te.fs.files[root] = []localfs.LocalFile{
		{RelPath: "a.prg", Size: 5},
		{RelPath: local("sub", "b.prg"), Size: 6},
	}
	te.fs.mu.Unlock()
	return root
}

func TestFolderUploadIntoNewTarget(t *testing.T) {
	te := newTestEngine(t, Config{})
	root := setupProjectFolder(te)

	te.engine.EnqueueRecursiveUpload(root, "/u")

	op := te.tr.next(t)
	if op.op != "list" || op.path != "/u" {
		t.Fatalf("expected existence check on /u, got %s %s", op.op, op.path)
	}
	te.tr.listed("/u", nil)

	// Directory skeleton first, parents before children.
	op = te.tr.next(t)
	if op.op != "mkdir" || op.path != "/u/proj" {
		t.Fatalf("expected mkdir /u/proj, got %s %s", op.op, op.path)
	}
	te.tr.created("/u/proj")
	op = te.tr.next(t)
	if op.op != "mkdir" || op.path != "/u/proj/sub" {
		t.Fatalf("expected mkdir /u/proj/sub, got %s %s", op.op, op.path)
	}
	te.tr.created("/u/proj/sub")

	op = te.tr.next(t)
	if op.op != "upload" || op.path != "/u/proj/a.prg" {
		t.Fatalf("expected upload of a.prg, got %s %s", op.op, op.path)
	}
	te.tr.uploaded("/u/proj/a.prg")
	op = te.tr.next(t)
	if op.op != "upload" || op.path != "/u/proj/sub/b.prg" {
		t.Fatalf("expected upload of sub/b.prg, got %s %s", op.op, op.path)
	}
	te.tr.uploaded("/u/proj/sub/b.prg")

	waitFor(t, "all completed", func() bool {
		return len(te.rec.ofType(events.EventAllCompleted)) > 0
	})
	if n := len(te.rec.ofType(events.EventOverwriteConfirmation)); n != 0 {
		t.Errorf("expected no per-file confirmations inside a folder upload, got %d", n)
	}
}

func TestFolderUploadMerge(t *testing.T) {
	te := newTestEngine(t, Config{})
	root := setupProjectFolder(te)

	te.engine.EnqueueRecursiveUpload(root, "/u")
	te.tr.next(t)
	te.tr.listed("/u", []transport.Entry{{Name: "proj", IsDir: true}})

	waitFor(t, "folder confirmation", func() bool {
		return len(te.rec.ofType(events.EventFolderExistsConfirmation)) > 0
	})
	ev := te.rec.ofType(events.EventFolderExistsConfirmation)[0].(*events.ConfirmationEvent)
	if len(ev.Names) != 1 || ev.Names[0] != "proj" {
		t.Errorf("unexpected colliding names: %v", ev.Names)
	}

	te.engine.RespondToFolderExists(MergeFolder)

	// Merging: the mkdir of the existing target fails, which is fine.
	op := te.tr.next(t)
	if op.op != "mkdir" || op.path != "/u/proj" {
		t.Fatalf("expected mkdir attempt, got %s %s", op.op, op.path)
	}
	te.tr.failed("mkdir", "/u/proj", "already exists")
	op = te.tr.next(t)
	if op.op != "mkdir" || op.path != "/u/proj/sub" {
		t.Fatalf("expected mkdir of subdirectory, got %s %s", op.op, op.path)
	}
	te.tr.created("/u/proj/sub")

	op = te.tr.next(t)
	if op.op != "upload" || op.path != "/u/proj/a.prg" {
		t.Fatalf("expected upload after merge, got %s %s", op.op, op.path)
	}
	te.tr.uploaded("/u/proj/a.prg")
	te.tr.next(t)
	te.tr.uploaded("/u/proj/sub/b.prg")
	waitFor(t, "completion", func() bool {
		return len(te.rec.ofType(events.EventAllCompleted)) > 0
	})
}

func TestFolderUploadReplace(t *testing.T) {
	te := newTestEngine(t, Config{})
	root := setupProjectFolder(te)

	te.engine.EnqueueRecursiveUpload(root, "/u")
	te.tr.next(t)
	te.tr.listed("/u", []transport.Entry{{Name: "proj", IsDir: true}})
	waitFor(t, "folder confirmation", func() bool {
		return len(te.rec.ofType(events.EventFolderExistsConfirmation)) > 0
	})

	te.engine.RespondToFolderExists(ReplaceFolder)

	// The old remote folder goes first: scan it, remove its contents,
	// remove it. Only then does the upload phase begin.
	op := te.tr.next(t)
	if op.op != "list" || op.path != "/u/proj" {
		t.Fatalf("expected delete scan of /u/proj, got %s %s", op.op, op.path)
	}
	te.tr.listed("/u/proj", []transport.Entry{{Name: "stale.prg", Size: 1}})

	op = te.tr.next(t)
	if op.op != "remove" || op.path != "/u/proj/stale.prg" {
		t.Fatalf("expected removal of stale.prg, got %s %s", op.op, op.path)
	}
	te.tr.removed("/u/proj/stale.prg")
	op = te.tr.next(t)
	if op.op != "rmdir" || op.path != "/u/proj" {
		t.Fatalf("expected rmdir of old folder, got %s %s", op.op, op.path)
	}
	te.tr.removed("/u/proj")

	op = te.tr.next(t)
	if op.op != "mkdir" || op.path != "/u/proj" {
		t.Fatalf("expected mkdir after the delete finished, got %s %s", op.op, op.path)
	}
	te.tr.created("/u/proj")
	op = te.tr.next(t)
	te.tr.created("/u/proj/sub")
	te.tr.next(t)
	te.tr.uploaded("/u/proj/a.prg")
	te.tr.next(t)
	te.tr.uploaded("/u/proj/sub/b.prg")

	waitFor(t, "completion", func() bool {
		return len(te.rec.ofType(events.EventAllCompleted)) > 0
	})
}

func TestFolderUploadCancel(t *testing.T) {
	te := newTestEngine(t, Config{})
	root := setupProjectFolder(te)

	te.engine.EnqueueRecursiveUpload(root, "/u")
	te.tr.next(t)
	te.tr.listed("/u", []transport.Entry{{Name: "proj", IsDir: true}})
	waitFor(t, "folder confirmation", func() bool {
		return len(te.rec.ofType(events.EventFolderExistsConfirmation)) > 0
	})

	te.engine.RespondToFolderExists(CancelFolder)
	te.settle()
	te.tr.expectNone(t)
	if s := te.engine.CurrentState(); s != StateIdle {
		t.Errorf("expected idle after cancel, got %v", s)
	}
}

func TestFolderUploadAutoMerge(t *testing.T) {
	te := newTestEngine(t, Config{AutoMerge: true})
	root := setupProjectFolder(te)

	te.engine.EnqueueRecursiveUpload(root, "/u")

	// No existence check: the first operation is already the mkdir.
	op := te.tr.next(t)
	if op.op != "mkdir" || op.path != "/u/proj" {
		t.Fatalf("expected immediate mkdir, got %s %s", op.op, op.path)
	}
}

func TestCancelBatchDuringDirectoryCreation(t *testing.T) {
	te := newTestEngine(t, Config{AutoMerge: true})
	root := setupProjectFolder(te)

	te.engine.EnqueueRecursiveUpload(root, "/u")
	op := te.tr.next(t)
	if op.op != "mkdir" || op.path != "/u/proj" {
		t.Fatalf("expected mkdir /u/proj, got %s %s", op.op, op.path)
	}

	ids := te.engine.AllBatchIDs()
	if len(ids) != 1 {
		t.Fatalf("expected one batch, got %v", ids)
	}
	te.engine.CancelBatch(ids[0])

	if te.tr.abortCount() != 1 {
		t.Errorf("expected in-flight mkdir aborted, got %d aborts", te.tr.abortCount())
	}
	if s := te.engine.CurrentState(); s != StateIdle {
		t.Errorf("expected idle after cancel, got %v", s)
	}

	// No leftover mkdirs, and new work dispatches right away.
	te.engine.EnqueueDelete("/old.prg", false)
	op = te.tr.next(t)
	if op.op != "remove" || op.path != "/old.prg" {
		t.Fatalf("expected remove /old.prg, got %s %s", op.op, op.path)
	}
	te.tr.removed("/old.prg")
}

func TestFolderUploadDuplicateSuppressed(t *testing.T) {
	te := newTestEngine(t, Config{})
	root := setupProjectFolder(te)

	te.engine.EnqueueRecursiveUpload(root, "/u")
	te.engine.EnqueueRecursiveUpload(root, "/elsewhere")
	te.settle()

	waitFor(t, "duplicate-request status message", func() bool {
		return te.rec.hasStatus("already queued")
	})
	op := te.tr.next(t)
	if op.path != "/u" {
		t.Fatalf("expected only the first request's check, got %s", op.path)
	}
}

func TestFolderUploadMissingLocalFolder(t *testing.T) {
	te := newTestEngine(t, Config{})

	te.engine.EnqueueRecursiveUpload(local("nope"), "/u")
	te.settle()

	waitFor(t, "missing-folder status message", func() bool {
		return te.rec.hasStatus("does not exist")
	})
	te.tr.expectNone(t)
}
