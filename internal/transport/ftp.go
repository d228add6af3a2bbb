package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/svetzal/r64u-sub000/internal/constants"
)

// ftpConn is the slice of *ftp.ServerConn the transport uses, extracted so
// tests can substitute a fake connection.
type ftpConn interface {
	List(path string) ([]*ftp.Entry, error)
	MakeDir(path string) error
	RemoveDir(path string) error
	Delete(path string) error
	Rename(from, to string) error
	Retr(path string) (io.ReadCloser, error)
	Stor(path string, r io.Reader) error
	FileSize(path string) (int64, error)
	Quit() error
}

// serverConnAdapter narrows *ftp.ServerConn to ftpConn. Retr needs the
// wrapper because the concrete method returns *ftp.Response.
type serverConnAdapter struct {
	conn *ftp.ServerConn
}

func (a serverConnAdapter) List(path string) ([]*ftp.Entry, error) { return a.conn.List(path) }
func (a serverConnAdapter) MakeDir(path string) error              { return a.conn.MakeDir(path) }
func (a serverConnAdapter) RemoveDir(path string) error            { return a.conn.RemoveDir(path) }
func (a serverConnAdapter) Delete(path string) error               { return a.conn.Delete(path) }
func (a serverConnAdapter) Rename(from, to string) error           { return a.conn.Rename(from, to) }
func (a serverConnAdapter) Stor(path string, r io.Reader) error    { return a.conn.Stor(path, r) }
func (a serverConnAdapter) FileSize(path string) (int64, error)    { return a.conn.FileSize(path) }
func (a serverConnAdapter) Quit() error                            { return a.conn.Quit() }

func (a serverConnAdapter) Retr(path string) (io.ReadCloser, error) {
	return a.conn.Retr(path)
}

// FTP drives the device's FTP service. One worker goroutine executes
// operations strictly sequentially; a second operation issued while one is
// in flight is rejected with ErrBusy rather than queued, because queueing
// belongs to the engine, not the transport.
type FTP struct {
	conn ftpConn

	mu     sync.Mutex
	sink   Sink
	busy   bool
	cancel context.CancelFunc
	closed bool

	jobs chan func()
}

// Dial connects and authenticates to the device's FTP service.
func Dial(addr, user, password string) (*FTP, error) {
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(constants.FTPDialTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if err := conn.Login(user, password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return newFTP(serverConnAdapter{conn: conn}), nil
}

func newFTP(conn ftpConn) *FTP {
	f := &FTP{
		conn: conn,
		jobs: make(chan func(), 1),
	}
	go f.worker()
	return f
}

func (f *FTP) worker() {
	for job := range f.jobs {
		job()
	}
}

// SetSink registers the event sink. Must be called before the first
// operation is issued.
func (f *FTP) SetSink(sink Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
}

// IsConnected reports whether the control connection is open.
func (f *FTP) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn != nil && !f.closed
}

// Abort cancels the in-flight operation, if any. The cancelled operation
// emits no result event; the caller is expected to have moved on already.
func (f *FTP) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
}

// Close aborts any in-flight operation and shuts the connection down.
func (f *FTP) Close() error {
	f.Abort()
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()
	close(f.jobs)
	return f.conn.Quit()
}

func (f *FTP) emit(ev Event) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	if sink != nil {
		sink(ev)
	}
}

// start accepts one operation and hands it to the worker. fn emits its own
// success event; errors and aborts are handled here.
func (f *FTP) start(op, path string, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	if f.closed || f.conn == nil {
		f.mu.Unlock()
		return ErrNotConnected
	}
	if f.busy {
		f.mu.Unlock()
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.busy = true
	f.cancel = cancel
	f.mu.Unlock()

	f.jobs <- func() {
		err := fn(ctx)
		aborted := ctx.Err() != nil

		f.mu.Lock()
		f.busy = false
		f.cancel = nil
		f.mu.Unlock()
		cancel()

		if aborted {
			return // abort suppresses the result event
		}
		if err != nil {
			f.emit(OpError{Op: op, Path: path, Message: err.Error()})
		}
	}
	return nil
}

// List requests a directory listing.
func (f *FTP) List(path string) error {
	return f.start("list", path, func(ctx context.Context) error {
		raw, err := f.conn.List(path)
		if err != nil {
			return err
		}
		entries := make([]Entry, 0, len(raw))
		for _, e := range raw {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			entries = append(entries, Entry{
				Name:  e.Name,
				Size:  int64(e.Size),
				IsDir: e.Type == ftp.EntryTypeFolder,
			})
		}
		f.emit(DirectoryListed{Path: path, Entries: entries})
		return nil
	})
}

// MakeDirectory creates a remote directory.
func (f *FTP) MakeDirectory(path string) error {
	return f.start("mkdir", path, func(ctx context.Context) error {
		if err := f.conn.MakeDir(path); err != nil {
			return err
		}
		f.emit(DirectoryCreated{Path: path})
		return nil
	})
}

// RemoveDirectory removes an empty remote directory.
func (f *FTP) RemoveDirectory(path string) error {
	return f.start("rmdir", path, func(ctx context.Context) error {
		if err := f.conn.RemoveDir(path); err != nil {
			return err
		}
		f.emit(FileRemoved{Path: path})
		return nil
	})
}

// Remove deletes a remote file.
func (f *FTP) Remove(path string) error {
	return f.start("remove", path, func(ctx context.Context) error {
		if err := f.conn.Delete(path); err != nil {
			return err
		}
		f.emit(FileRemoved{Path: path})
		return nil
	})
}

// Rename renames a remote file or directory.
func (f *FTP) Rename(oldPath, newPath string) error {
	return f.start("rename", oldPath, func(ctx context.Context) error {
		if err := f.conn.Rename(oldPath, newPath); err != nil {
			return err
		}
		f.emit(FileRenamed{OldPath: oldPath, NewPath: newPath})
		return nil
	})
}

// Upload stores a local file at the remote path, reporting progress.
func (f *FTP) Upload(localPath, remotePath string) error {
	return f.start("upload", remotePath, func(ctx context.Context) error {
		file, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			return err
		}

		pr := &progressReader{
			ctx:   ctx,
			r:     file,
			total: info.Size(),
			report: func(bytes, total int64) {
				f.emit(UploadProgress{RemotePath: remotePath, Bytes: bytes, Total: total})
			},
		}
		if err := f.conn.Stor(remotePath, pr); err != nil {
			return err
		}
		f.emit(UploadFinished{RemotePath: remotePath})
		return nil
	})
}

// Download retrieves a remote file into a local path, reporting progress.
func (f *FTP) Download(remotePath, localPath string) error {
	return f.start("download", remotePath, func(ctx context.Context) error {
		total, err := f.conn.FileSize(remotePath)
		if err != nil {
			total = 0 // size unknown, progress events carry bytes only
		}

		resp, err := f.conn.Retr(remotePath)
		if err != nil {
			return err
		}
		defer resp.Close()

		out, err := os.Create(localPath)
		if err != nil {
			return err
		}
		defer out.Close()

		buf := make([]byte, constants.TransferBufferSize)
		var done int64
		lastReport := time.Now()
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n, rerr := resp.Read(buf)
			if n > 0 {
				if _, werr := out.Write(buf[:n]); werr != nil {
					return werr
				}
				done += int64(n)
				if time.Since(lastReport) >= 100*time.Millisecond {
					f.emit(DownloadProgress{RemotePath: remotePath, Bytes: done, Total: total})
					lastReport = time.Now()
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return rerr
			}
		}
		f.emit(DownloadProgress{RemotePath: remotePath, Bytes: done, Total: total})
		f.emit(DownloadFinished{RemotePath: remotePath})
		return nil
	})
}

// progressReader wraps the upload source, reporting bytes read and failing
// fast once the operation's context is cancelled.
type progressReader struct {
	ctx        context.Context
	r          io.Reader
	read       int64
	total      int64
	lastReport time.Time
	report     func(bytes, total int64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	if p.ctx.Err() != nil {
		return 0, p.ctx.Err()
	}
	n, err := p.r.Read(buf)
	if n > 0 {
		p.read += int64(n)
		if time.Since(p.lastReport) >= 100*time.Millisecond || p.read == p.total {
			p.report(p.read, p.total)
			p.lastReport = time.Now()
		}
	}
	return n, err
}
