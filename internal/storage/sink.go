// Package storage persists uploads under a single upload root.
//
// Every upload is written to a hidden staging file next to its final
// location and published with a hard link once it is complete and synced,
// so a file under its public name is always whole.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dropzone/internal/logging"
)

const (
	stagingPrefix = ".dropzone-"
	stagingSuffix = ".part"

	maxPublishAttempts = 64
)

// StoredFile describes an upload that has been published.
type StoredFile struct {
	Name      string
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Sink owns the upload root. It is safe for concurrent use.
type Sink struct {
	root   string
	logger logging.Logger

	mu       sync.Mutex
	reserved map[string]struct{} // lower-cased public names held by open sessions
	active   map[string]struct{} // staging paths of open sessions
}

// New creates root if needed and returns a Sink writing into it.
func New(root string, logger logging.Logger) (*Sink, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrIO, root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %w", ErrIO, abs, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrIO, abs, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrIO, abs)
	}
	return &Sink{
		root:     abs,
		logger:   logger,
		reserved: make(map[string]struct{}),
		active:   make(map[string]struct{}),
	}, nil
}

// Root is the absolute upload root.
func (s *Sink) Root() string {
	return s.root
}

// Session is one in-flight upload. It is owned by a single goroutine.
type Session struct {
	sink *Sink

	ID        string
	Remote    string
	Requested string

	base    string // sanitized name, the seed for collision suffixes
	name    string
	staging string
	f       *os.File
	written int64
	started time.Time
	closed  bool
}

// Begin sanitizes rawName, reserves a collision-free public name and opens
// a staging file for the upload.
func (s *Sink) Begin(ctx context.Context, rawName, remote string) (*Session, error) {
	id := uuid.NewString()
	staging := filepath.Join(s.root, stagingPrefix+id+stagingSuffix)

	f, err := os.OpenFile(staging, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create staging file: %w", ErrIO, err)
	}

	base := SanitizeName(rawName)

	s.mu.Lock()
	name := s.reserveLocked(base)
	s.active[staging] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug(ctx, "upload started", "session", id, "remote", remote, "requested", rawName, "name", name)

	return &Session{
		sink:      s,
		ID:        id,
		Remote:    remote,
		Requested: rawName,
		base:      base,
		name:      name,
		staging:   staging,
		f:         f,
		started:   time.Now(),
	}, nil
}

func reservationKey(name string) string {
	return strings.ToLower(name)
}

func (s *Sink) reserveLocked(name string) string {
	name = ResolveName(name, s.takenLocked)
	s.reserved[reservationKey(name)] = struct{}{}
	return name
}

func (s *Sink) takenLocked(name string) bool {
	if _, ok := s.reserved[reservationKey(name)]; ok {
		return true
	}
	_, err := os.Lstat(filepath.Join(s.root, name))
	return err == nil
}

func (s *Sink) release(name, staging string) {
	s.mu.Lock()
	delete(s.reserved, reservationKey(name))
	delete(s.active, staging)
	s.mu.Unlock()
}

// Name is the public name reserved for this upload.
func (u *Session) Name() string {
	return u.name
}

// Written is the number of bytes staged so far.
func (u *Session) Written() int64 {
	return u.written
}

// Write appends p to the staging file.
func (u *Session) Write(p []byte) (int, error) {
	if u.closed {
		return 0, ErrSessionClosed
	}
	n, err := u.f.Write(p)
	u.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("%w: write %s: %w", ErrIO, u.name, err)
	}
	return n, nil
}

// Finalize syncs the staged bytes and publishes them under the reserved
// name. If that name was taken behind the sink's back the next free one
// is used. On failure the staging file is removed.
func (u *Session) Finalize() (StoredFile, error) {
	if u.closed {
		return StoredFile{}, ErrSessionClosed
	}
	u.closed = true
	defer func() { u.sink.release(u.name, u.staging) }()

	if err := u.f.Sync(); err != nil {
		u.discard()
		return StoredFile{}, fmt.Errorf("%w: sync %s: %w", ErrIO, u.name, err)
	}
	if err := u.f.Close(); err != nil {
		_ = os.Remove(u.staging)
		return StoredFile{}, fmt.Errorf("%w: close %s: %w", ErrIO, u.name, err)
	}

	if err := u.publish(); err != nil {
		_ = os.Remove(u.staging)
		return StoredFile{}, err
	}

	return StoredFile{
		Name:      u.name,
		Path:      filepath.Join(u.sink.root, u.name),
		Size:      u.written,
		CreatedAt: time.Now(),
	}, nil
}

func (u *Session) publish() error {
	s := u.sink
	for i := 0; i < maxPublishAttempts; i++ {
		final := filepath.Join(s.root, u.name)

		err := os.Link(u.staging, final)
		if err == nil {
			_ = os.Remove(u.staging)
			return nil
		}

		if errors.Is(err, fs.ErrExist) {
			s.mu.Lock()
			delete(s.reserved, reservationKey(u.name))
			u.name = s.reserveLocked(u.base)
			s.mu.Unlock()
			continue
		}

		// Filesystems without hard links: rename while holding the lock so
		// no other session of this sink can slip in between check and move.
		s.mu.Lock()
		_, statErr := os.Lstat(final)
		if errors.Is(statErr, fs.ErrNotExist) {
			err = os.Rename(u.staging, final)
			s.mu.Unlock()
			if err != nil {
				return fmt.Errorf("%w: publish %s: %w", ErrIO, u.name, err)
			}
			return nil
		}
		delete(s.reserved, reservationKey(u.name))
		u.name = s.reserveLocked(u.base)
		s.mu.Unlock()
	}
	return fmt.Errorf("%w: publish %s: no free name after %d attempts", ErrIO, u.name, maxPublishAttempts)
}

// Abort drops the upload and removes its staging file. It is a no-op on a
// session that is already closed.
func (u *Session) Abort() error {
	if u.closed {
		return nil
	}
	u.closed = true
	defer u.sink.release(u.name, u.staging)
	return u.discard()
}

func (u *Session) discard() error {
	_ = u.f.Close()
	if err := os.Remove(u.staging); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove staging file: %w", ErrIO, err)
	}
	return nil
}

// Elapsed is the time since Begin.
func (u *Session) Elapsed() time.Duration {
	return time.Since(u.started)
}
