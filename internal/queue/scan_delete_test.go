package queue

import (
	"testing"

	"github.com/svetzal/r64u-sub000/internal/events"
	"github.com/svetzal/r64u-sub000/internal/transport"
)

func TestRecursiveDeleteOrdering(t *testing.T) {
	te := newTestEngine(t, Config{})

	te.engine.EnqueueRecursiveDelete("/old")

	op := te.tr.next(t)
	if op.op != "list" || op.path != "/old" {
		t.Fatalf("expected listing of /old, got %s %s", op.op, op.path)
	}
	te.tr.listed("/old", []transport.Entry{
		{Name: "keepsake.prg", Size: 10},
		{Name: "nested", IsDir: true},
	})

	op = te.tr.next(t)
	if op.path != "/old/nested" {
		t.Fatalf("expected listing of /old/nested, got %s", op.path)
	}
	te.tr.listed("/old/nested", []transport.Entry{{Name: "deep.prg", Size: 1}})

	// Files first, then directories deepest first: no remove ever hits a
	// non-empty directory.
	want := []mockOp{
		{op: "remove", path: "/old/keepsake.prg"},
		{op: "remove", path: "/old/nested/deep.prg"},
		{op: "rmdir", path: "/old/nested"},
		{op: "rmdir", path: "/old"},
	}
	for _, w := range want {
		op = te.tr.next(t)
		if op.op != w.op || op.path != w.path {
			t.Fatalf("expected %s %s, got %s %s", w.op, w.path, op.op, op.path)
		}
		te.tr.removed(op.path)
	}

	waitFor(t, "all completed", func() bool {
		return len(te.rec.ofType(events.EventAllCompleted)) > 0
	})
}

func TestRecursiveDeleteContinuesPastFailure(t *testing.T) {
	te := newTestEngine(t, Config{})

	te.engine.EnqueueRecursiveDelete("/old")
	te.tr.next(t)
	te.tr.listed("/old", []transport.Entry{
		{Name: "a.prg", Size: 1},
		{Name: "b.prg", Size: 1},
	})

	op := te.tr.next(t)
	if op.path != "/old/a.prg" {
		t.Fatalf("expected remove of a.prg, got %s", op.path)
	}
	te.tr.failed("remove", "/old/a.prg", "locked")

	op = te.tr.next(t)
	if op.path != "/old/b.prg" {
		t.Fatalf("expected remove of b.prg after failure, got %s", op.path)
	}
	te.tr.removed("/old/b.prg")

	op = te.tr.next(t)
	if op.op != "rmdir" || op.path != "/old" {
		t.Fatalf("expected rmdir /old, got %s %s", op.op, op.path)
	}
	// The directory is still non-empty; its removal fails too, but the
	// batch reaches a terminal state.
	te.tr.failed("rmdir", "/old", "directory not empty")

	waitFor(t, "terminal batch", func() bool {
		ids := te.engine.AllBatchIDs()
		if len(ids) != 1 {
			return false
		}
		p, ok := te.engine.BatchProgress(ids[0])
		return ok && p.Done
	})
	a, _ := te.itemByRemote("/old/a.prg")
	if a.Status != StatusFailed {
		t.Errorf("expected a.prg failed, got %v", a.Status)
	}
	b, _ := te.itemByRemote("/old/b.prg")
	if b.Status != StatusCompleted {
		t.Errorf("expected b.prg completed, got %v", b.Status)
	}
}

func TestRecursiveDeleteEmptyFolderRemovesIt(t *testing.T) {
	te := newTestEngine(t, Config{})

	te.engine.EnqueueRecursiveDelete("/empty")
	te.tr.next(t)
	te.tr.listed("/empty", nil)

	op := te.tr.next(t)
	if op.op != "rmdir" || op.path != "/empty" {
		t.Fatalf("expected rmdir of the folder itself, got %s %s", op.op, op.path)
	}
	te.tr.removed("/empty")
	waitFor(t, "completion", func() bool {
		return len(te.rec.ofType(events.EventAllCompleted)) > 0
	})
}

func TestDeleteProgressEvents(t *testing.T) {
	te := newTestEngine(t, Config{})

	te.engine.EnqueueRecursiveDelete("/old")
	te.tr.next(t)
	te.tr.listed("/old", []transport.Entry{{Name: "a.prg", Size: 1}})

	te.tr.next(t)
	te.tr.removed("/old/a.prg")
	te.tr.next(t)
	te.tr.removed("/old")

	waitFor(t, "delete progress events", func() bool {
		return len(te.rec.ofType(events.EventDeleteProgress)) == 2
	})
	evs := te.rec.ofType(events.EventDeleteProgress)
	last := evs[len(evs)-1].(*events.DeleteProgressEvent)
	if last.Removed != 2 || last.Total != 2 {
		t.Errorf("unexpected final delete progress: %+v", last)
	}
}
