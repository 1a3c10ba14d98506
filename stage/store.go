// Package stage implements the staging store: local-disk or
// multipart-streamed byte accumulation per open file, durable across a
// single task lifetime, reclaimable after a successful commit.
package stage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"s3sink/s3store"
	"s3sink/sinkerr"
)

// Mode selects how bytes are accumulated before upload.
type Mode int

const (
	// Streamed is the default: writes go directly into a multipart upload;
	// Commit completes the upload. No local disk is used.
	Streamed Mode = iota
	// BuildLocal backs each open file with a disk file in TmpDir; Commit
	// uploads the whole file as a single Put and removes it.
	BuildLocal
)

// Store creates Handles in the configured mode.
type Store struct {
	Mode   Mode
	TmpDir string
	Client *s3store.Client
}

// New builds a Store. TmpDir is only consulted in BuildLocal mode.
func New(mode Mode, tmpDir string, client *s3store.Client) *Store {
	return &Store{Mode: mode, TmpDir: tmpDir, Client: client}
}

// Handle is one open file's staging area: an io.Writer that accumulates
// bytes, reports its size, and on Commit uploads to objectName, or on
// Abort discards whatever was written without making anything visible
// remotely (no partial object becomes visible at the final key).
type Handle interface {
	io.Writer
	Size() int64
	Commit(ctx context.Context, objectName string) error
	Abort(ctx context.Context) error
	// Corrupted reports whether the local backing storage has disappeared
	// out from under this handle (BuildLocal only; Streamed handles are
	// never corrupted this way since they hold no local file).
	Corrupted() bool
}

// Open creates a new Handle in the store's configured mode.
func (s *Store) Open(ctx context.Context) (Handle, error) {
	switch s.Mode {
	case BuildLocal:
		return newLocalHandle(s.TmpDir, s.Client)
	case Streamed:
		return newStreamedHandle(ctx, s.Client), nil
	default:
		return nil, fmt.Errorf("unknown staging mode %v", s.Mode)
	}
}

// Sweep removes orphaned staging files left behind under TmpDir by a
// previous, crashed task instance (BuildLocal mode only). They can never
// be resumed — no durable manifest records which offset range they held —
// so they are logged and deleted on Start().
func (s *Store) Sweep(logf func(format string, args ...any)) error {
	if s.Mode != BuildLocal || s.TmpDir == "" {
		return nil
	}
	entries, err := os.ReadDir(s.TmpDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("sweeping staging directory %q: %w", s.TmpDir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != stagingSuffix {
			continue
		}
		path := filepath.Join(s.TmpDir, e.Name())
		if logf != nil {
			logf("removing orphaned staging file %s", path)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing orphaned staging file %q: %w", path, err)
		}
	}
	return nil
}

const stagingSuffix = ".stage"

// localHandle backs a single open file with a disk file under a
// configurable temp directory.
type localHandle struct {
	path   string
	file   *os.File
	size   int64
	client *s3store.Client
}

func newLocalHandle(tmpDir string, client *s3store.Client) (*localHandle, error) {
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory %q: %w", tmpDir, err)
	}
	path := filepath.Join(tmpDir, uuid.NewString()+stagingSuffix)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating staging file %q: %w", path, err)
	}
	return &localHandle{path: path, file: f, client: client}, nil
}

func (h *localHandle) Write(p []byte) (int, error) {
	if h.Corrupted() {
		return 0, fmt.Errorf("staging file %q missing: %w", h.path, sinkerr.ErrStageCorruption)
	}
	n, err := h.file.Write(p)
	h.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing staging file %q: %w", h.path, err)
	}
	return n, nil
}

func (h *localHandle) Size() int64 { return h.size }

func (h *localHandle) Corrupted() bool {
	_, err := os.Stat(h.path)
	return os.IsNotExist(err)
}

func (h *localHandle) Commit(ctx context.Context, objectName string) error {
	if err := h.file.Sync(); err != nil {
		return fmt.Errorf("syncing staging file %q: %w", h.path, err)
	}
	if _, err := h.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding staging file %q: %w", h.path, err)
	}
	if err := h.client.Put(ctx, objectName, h.file); err != nil {
		return err
	}
	return h.cleanup()
}

func (h *localHandle) Abort(ctx context.Context) error {
	return h.cleanup()
}

func (h *localHandle) cleanup() error {
	_ = h.file.Close()
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing staging file %q: %w", h.path, err)
	}
	return nil
}

// streamedHandle pipes writes directly into a multipart upload via
// s3store.Client.UploadStream, run in a background goroutine started at
// Open time. Commit closes the write side and waits for the upload to
// finish; Abort closes the pipe with an error, which fails the upload and
// (per the AWS SDK v2 manager's behavior) aborts the multipart upload so no
// partial object ever becomes visible at the final key.
type streamedHandle struct {
	client *s3store.Client
	pr     *io.PipeReader
	pw     *io.PipeWriter
	size   int64
	done   chan error
	key    chan string
}

func newStreamedHandle(ctx context.Context, client *s3store.Client) *streamedHandle {
	pr, pw := io.Pipe()
	h := &streamedHandle{
		client: client,
		pr:     pr,
		pw:     pw,
		done:   make(chan error, 1),
		key:    make(chan string, 1),
	}
	go h.run(ctx)
	return h
}

func (h *streamedHandle) run(ctx context.Context) {
	objectName := <-h.key
	err := h.client.UploadStream(ctx, objectName, h.pr)
	h.done <- err
}

func (h *streamedHandle) Write(p []byte) (int, error) {
	n, err := h.pw.Write(p)
	h.size += int64(n)
	return n, err
}

func (h *streamedHandle) Size() int64 { return h.size }

func (h *streamedHandle) Corrupted() bool { return false }

func (h *streamedHandle) Commit(ctx context.Context, objectName string) error {
	h.key <- objectName
	if err := h.pw.Close(); err != nil {
		return fmt.Errorf("closing multipart stream: %w", err)
	}
	return <-h.done
}

func (h *streamedHandle) Abort(ctx context.Context) error {
	select {
	case h.key <- "__aborted__":
	default:
	}
	_ = h.pw.CloseWithError(fmt.Errorf("staging handle aborted"))
	<-h.done
	return nil
}
