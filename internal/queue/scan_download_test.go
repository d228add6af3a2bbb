package queue

import (
	"testing"

	"github.com/svetzal/r64u-sub000/internal/events"
	"github.com/svetzal/r64u-sub000/internal/transport"
)

func TestRecursiveDownloadExpandsTree(t *testing.T) {
	te := newTestEngine(t, Config{})

	te.engine.EnqueueRecursiveDownload("/demos", local("dl"))

	op := te.tr.next(t)
	if op.op != "list" || op.path != "/demos" {
		t.Fatalf("expected listing of /demos, got %s %s", op.op, op.path)
	}
	te.tr.listed("/demos", []transport.Entry{
		{Name: "intro.prg", Size: 100},
		{Name: "music", IsDir: true},
	})

	op = te.tr.next(t)
	if op.op != "list" || op.path != "/demos/music" {
		t.Fatalf("expected listing of /demos/music, got %s %s", op.op, op.path)
	}
	te.tr.listed("/demos/music", []transport.Entry{
		{Name: "tune.sid", Size: 50},
	})

	op = te.tr.next(t)
	if op.op != "download" || op.path != "/demos/intro.prg" || op.dest != local("dl", "intro.prg") {
		t.Fatalf("expected download of intro.prg, got %s %s -> %s", op.op, op.path, op.dest)
	}
	te.tr.downloaded("/demos/intro.prg")

	op = te.tr.next(t)
	if op.op != "download" || op.path != "/demos/music/tune.sid" || op.dest != local("dl", "music", "tune.sid") {
		t.Fatalf("expected download of tune.sid, got %s %s -> %s", op.op, op.path, op.dest)
	}
	te.tr.downloaded("/demos/music/tune.sid")

	waitFor(t, "all completed", func() bool {
		return len(te.rec.ofType(events.EventAllCompleted)) > 0
	})
	if !te.fs.Exists(local("dl", "music")) {
		t.Error("expected local subdirectory to be created")
	}
}

func TestRecursiveDownloadEmptyFolder(t *testing.T) {
	te := newTestEngine(t, Config{})

	te.engine.EnqueueRecursiveDownload("/empty", local("dl"))
	te.tr.next(t)
	te.tr.listed("/empty", nil)

	waitFor(t, "immediate completion", func() bool {
		return len(te.rec.ofType(events.EventAllCompleted)) > 0
	})
	te.tr.expectNone(t)
}

func TestRecursiveDownloadDuplicateSuppressed(t *testing.T) {
	te := newTestEngine(t, Config{})

	te.engine.EnqueueRecursiveDownload("/pics", local("dl"))
	te.engine.EnqueueRecursiveDownload("/pics/", local("elsewhere"))
	te.settle()

	waitFor(t, "duplicate-request status message", func() bool {
		return te.rec.hasStatus("already queued")
	})

	op := te.tr.next(t)
	if op.path != "/pics" {
		t.Fatalf("expected one listing of /pics, got %s", op.path)
	}
	te.tr.listed("/pics", nil)
	waitFor(t, "completion", func() bool {
		return len(te.rec.ofType(events.EventAllCompleted)) > 0
	})
	te.tr.expectNone(t)
}

func TestDifferentKindOnSamePathIsNotADuplicate(t *testing.T) {
	te := newTestEngine(t, Config{})

	te.engine.EnqueueRecursiveDelete("/x")
	op := te.tr.next(t)
	if op.op != "list" || op.path != "/x" {
		t.Fatalf("expected delete scan of /x, got %s %s", op.op, op.path)
	}

	// A download of the same remote path is a new request.
	te.engine.EnqueueRecursiveDownload("/x", local("dl"))
	waitFor(t, "second batch", func() bool {
		return len(te.engine.AllBatchIDs()) == 2
	})
	if te.rec.hasStatus("already queued") {
		t.Error("download of /x should not be suppressed by the delete of /x")
	}

	// The same kind on the same path still is.
	te.engine.EnqueueRecursiveDelete("/x")
	waitFor(t, "duplicate-request status message", func() bool {
		return te.rec.hasStatus("already queued")
	})
	if got := len(te.engine.AllBatchIDs()); got != 2 {
		t.Errorf("expected no third batch, got %d", got)
	}
}

func TestRecursiveDownloadSkipsUnreadableSubtree(t *testing.T) {
	te := newTestEngine(t, Config{})

	te.engine.EnqueueRecursiveDownload("/demos", local("dl"))
	te.tr.next(t)
	te.tr.listed("/demos", []transport.Entry{
		{Name: "bad", IsDir: true},
		{Name: "good", IsDir: true},
		{Name: "root.prg", Size: 10},
	})

	op := te.tr.next(t)
	if op.path != "/demos/bad" {
		t.Fatalf("expected listing of /demos/bad, got %s", op.path)
	}
	te.tr.failed("list", "/demos/bad", "permission denied")

	op = te.tr.next(t)
	if op.path != "/demos/good" {
		t.Fatalf("expected walk to continue with /demos/good, got %s", op.path)
	}
	te.tr.listed("/demos/good", []transport.Entry{{Name: "x.prg", Size: 1}})

	var remotes []string
	for {
		op = te.tr.next(t)
		if op.op != "download" {
			t.Fatalf("expected download, got %s %s", op.op, op.path)
		}
		remotes = append(remotes, op.path)
		te.tr.downloaded(op.path)
		if len(remotes) == 2 {
			break
		}
	}
	if remotes[0] != "/demos/root.prg" || remotes[1] != "/demos/good/x.prg" {
		t.Errorf("unexpected download set: %v", remotes)
	}
	waitFor(t, "skip status message", func() bool {
		return te.rec.hasStatus("Skipping /demos/bad")
	})
	waitFor(t, "completion", func() bool {
		return len(te.rec.ofType(events.EventAllCompleted)) > 0
	})
}

func TestScanningEventsCarryCounts(t *testing.T) {
	te := newTestEngine(t, Config{})

	te.engine.EnqueueRecursiveDownload("/demos", local("dl"))
	te.tr.next(t)
	te.tr.listed("/demos", []transport.Entry{
		{Name: "a.prg", Size: 1},
		{Name: "b.prg", Size: 2},
	})
	waitFor(t, "scan progress event", func() bool {
		return len(te.rec.ofType(events.EventScanningProgress)) > 0
	})

	evs := te.rec.ofType(events.EventScanningProgress)
	sp := evs[len(evs)-1].(*events.ScanEvent)
	if sp.FilesFound != 2 || sp.DirsScanned != 1 {
		t.Errorf("unexpected scan counters: %+v", sp)
	}
}
