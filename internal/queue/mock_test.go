package queue

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/svetzal/r64u-sub000/internal/events"
	"github.com/svetzal/r64u-sub000/internal/localfs"
	"github.com/svetzal/r64u-sub000/internal/logging"
	"github.com/svetzal/r64u-sub000/internal/transport"
)

// mockOp records one operation the engine handed to the transport.
type mockOp struct {
	op   string
	path string
	dest string
}

// mockTransport implements transport.Transport for engine tests. Accepted
// operations land on the ops channel; the test decides when and how each
// one completes by emitting the matching result event.
type mockTransport struct {
	mu        sync.Mutex
	sink      transport.Sink
	connected bool
	busy      bool
	aborted   int
	ops       chan mockOp
}

func newMockTransport() *mockTransport {
	return &mockTransport{connected: true, ops: make(chan mockOp, 64)}
}

func (m *mockTransport) SetSink(sink transport.Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

func (m *mockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) accept(op mockOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return transport.ErrNotConnected
	}
	if m.busy {
		return transport.ErrBusy
	}
	m.busy = true
	m.ops <- op
	return nil
}

func (m *mockTransport) List(path string) error { return m.accept(mockOp{op: "list", path: path}) }

func (m *mockTransport) MakeDirectory(p string) error {
	return m.accept(mockOp{op: "mkdir", path: p})
}

func (m *mockTransport) RemoveDirectory(p string) error {
	return m.accept(mockOp{op: "rmdir", path: p})
}

func (m *mockTransport) Remove(path string) error { return m.accept(mockOp{op: "remove", path: path}) }
func (m *mockTransport) Rename(oldPath, newPath string) error {
	return m.accept(mockOp{op: "rename", path: oldPath, dest: newPath})
}
func (m *mockTransport) Upload(localPath, remotePath string) error {
	return m.accept(mockOp{op: "upload", path: remotePath, dest: localPath})
}
func (m *mockTransport) Download(remotePath, localPath string) error {
	return m.accept(mockOp{op: "download", path: remotePath, dest: localPath})
}

func (m *mockTransport) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted++
	m.busy = false
}

func (m *mockTransport) abortCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborted
}

// emit completes the in-flight operation with the given result event.
func (m *mockTransport) emit(ev transport.Event) {
	m.mu.Lock()
	m.busy = false
	sink := m.sink
	m.mu.Unlock()
	if sink != nil {
		sink(ev)
	}
}

func (m *mockTransport) listed(path string, entries []transport.Entry) {
	m.emit(transport.DirectoryListed{Path: path, Entries: entries})
}

func (m *mockTransport) created(path string) {
	m.emit(transport.DirectoryCreated{Path: path})
}

func (m *mockTransport) removed(path string) {
	m.emit(transport.FileRemoved{Path: path})
}

func (m *mockTransport) uploaded(path string) {
	m.emit(transport.UploadFinished{RemotePath: path})
}

func (m *mockTransport) downloaded(path string) {
	m.emit(transport.DownloadFinished{RemotePath: path})
}

func (m *mockTransport) progressed(path string, bytes, total int64) {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	if sink != nil {
		sink(transport.UploadProgress{RemotePath: path, Bytes: bytes, Total: total})
	}
}

func (m *mockTransport) failed(op, path, message string) {
	m.emit(transport.OpError{Op: op, Path: path, Message: message})
}

// next returns the next operation the engine issued, failing the test if
// none arrives in time.
func (m *mockTransport) next(t *testing.T) mockOp {
	t.Helper()
	select {
	case op := <-m.ops:
		return op
	case <-time.After(2 * time.Second):
		t.Fatal("no transport operation issued")
		return mockOp{}
	}
}

// expectNone fails the test if the engine issues an operation within the
// grace window.
func (m *mockTransport) expectNone(t *testing.T) {
	t.Helper()
	select {
	case op := <-m.ops:
		t.Fatalf("unexpected transport operation %s %s", op.op, op.path)
	case <-time.After(50 * time.Millisecond):
	}
}

// fakeFS implements LocalFS on in-memory maps.
type fakeFS struct {
	mu      sync.Mutex
	present map[string]bool
	sizes   map[string]int64
	subdirs map[string][]string
	files   map[string][]localfs.LocalFile
	created []string
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		present: make(map[string]bool),
		sizes:   make(map[string]int64),
		subdirs: make(map[string][]string),
		files:   make(map[string][]localfs.LocalFile),
	}
}

func (f *fakeFS) addFile(path string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.present[path] = true
	f.sizes[path] = size
}

func (f *fakeFS) addDir(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.present[path] = true
}

func (f *fakeFS) Exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[path]
}

func (f *fakeFS) FileSize(path string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sizes[path]
}

func (f *fakeFS) CreateDirAll(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.present[path] = true
	f.created = append(f.created, path)
	return nil
}

func (f *fakeFS) Subdirectories(root string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subdirs[root], nil
}

func (f *fakeFS) FilesUnder(root string) ([]localfs.LocalFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[root], nil
}

// eventRecorder captures bus traffic for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func recordEvents(bus *events.EventBus) *eventRecorder {
	r := &eventRecorder{}
	ch := bus.SubscribeAll()
	go func() {
		for ev := range ch {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *eventRecorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type() == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) hasStatus(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if sev, ok := ev.(*events.StatusEvent); ok && strings.Contains(sev.Message, substr) {
			return true
		}
	}
	return false
}

type testEngine struct {
	engine *Engine
	tr     *mockTransport
	fs     *fakeFS
	bus    *events.EventBus
	rec    *eventRecorder
}

func newTestEngine(t *testing.T, cfg Config) *testEngine {
	t.Helper()
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = time.Minute
	}
	bus := events.NewEventBus(0)
	rec := recordEvents(bus)
	tr := newMockTransport()
	fs := newFakeFS()
	e := New(cfg, tr, fs, bus, logging.NewLogger(nullWriter{}, nil))
	t.Cleanup(func() {
		e.Close()
		bus.Close()
	})
	return &testEngine{engine: e, tr: tr, fs: fs, bus: bus, rec: rec}
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

// settle round-trips the engine loop so every previously posted call and
// its deferred continuations have run.
func (te *testEngine) settle() {
	te.engine.CurrentState()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (te *testEngine) itemByRemote(remote string) (Item, bool) {
	for _, it := range te.engine.Items() {
		if it.RemotePath == remote {
			return it, true
		}
	}
	return Item{}, false
}

func local(parts ...string) string {
	return filepath.Join(parts...)
}
