package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"dropzone/internal/logging"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "dropzone-uploads"), logging.Nop())
	require.NoError(t, err)
	return s
}

func store(t *testing.T, s *Sink, name string, data []byte) StoredFile {
	t.Helper()
	sess, err := s.Begin(context.Background(), name, "10.0.0.2:5000")
	require.NoError(t, err)
	_, err = sess.Write(data)
	require.NoError(t, err)
	sf, err := sess.Finalize()
	require.NoError(t, err)
	return sf
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNew(t *testing.T) {
	t.Run("creates the root", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "a", "b")
		s, err := New(root, logging.Nop())
		require.NoError(t, err)

		fi, err := os.Stat(s.Root())
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
		assert.True(t, filepath.IsAbs(s.Root()))
	})

	t.Run("fails on a regular file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

		_, err := New(path, logging.Nop())
		require.ErrorIs(t, err, ErrIO)
	})
}

func TestSession_FinalizePublishes(t *testing.T) {
	s := newTestSink(t)
	data := []byte("hello dropzone")

	sf := store(t, s, "greeting.txt", data)

	assert.Equal(t, "greeting.txt", sf.Name)
	assert.Equal(t, filepath.Join(s.Root(), "greeting.txt"), sf.Path)
	assert.Equal(t, int64(len(data)), sf.Size)
	assert.False(t, sf.CreatedAt.IsZero())

	got, err := os.ReadFile(sf.Path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	assert.Equal(t, []string{"greeting.txt"}, listNames(t, s.Root()), "staging file must be gone")
}

func TestSession_WritesInChunks(t *testing.T) {
	s := newTestSink(t)
	sess, err := s.Begin(context.Background(), "chunks.bin", "")
	require.NoError(t, err)

	var want bytes.Buffer
	for i := 0; i < 100; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, 1000+i)
		want.Write(chunk)
		_, err := sess.Write(chunk)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(want.Len()), sess.Written())

	sf, err := sess.Finalize()
	require.NoError(t, err)

	got, err := os.ReadFile(sf.Path)
	require.NoError(t, err)
	assert.Equal(t, want.Bytes(), got)
}

func TestSession_TraversalStaysInRoot(t *testing.T) {
	s := newTestSink(t)

	for _, raw := range []string{"../../evil.txt", "/etc/passwd", `..\..\boot.ini`, "..", ""} {
		sf := store(t, s, raw, []byte(raw))
		assert.Equal(t, s.Root(), filepath.Dir(sf.Path), "raw name %q", raw)
	}

	_, err := os.Stat(filepath.Join(filepath.Dir(s.Root()), "evil.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestSession_CollisionWithExistingFile(t *testing.T) {
	s := newTestSink(t)
	existing := filepath.Join(s.Root(), "a.txt")
	require.NoError(t, os.WriteFile(existing, []byte("original"), 0o644))

	sf := store(t, s, "a.txt", []byte("second"))
	assert.Equal(t, "a (1).txt", sf.Name)

	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got), "existing file must not be overwritten")

	sf = store(t, s, "a.txt", []byte("third"))
	assert.Equal(t, "a (2).txt", sf.Name)
}

func TestSession_OpenSessionsReserveNames(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	first, err := s.Begin(ctx, "A.txt", "")
	require.NoError(t, err)
	second, err := s.Begin(ctx, "a.txt", "")
	require.NoError(t, err)

	assert.Equal(t, "A.txt", first.Name())
	assert.Equal(t, "a (1).txt", second.Name())

	require.NoError(t, first.Abort())
	third, err := s.Begin(ctx, "a.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", third.Name(), "aborting releases the reservation")

	require.NoError(t, second.Abort())
	require.NoError(t, third.Abort())
}

func TestSession_ConcurrentSameName(t *testing.T) {
	s := newTestSink(t)
	const n = 16

	var g errgroup.Group
	results := make([]StoredFile, n)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			sess, err := s.Begin(context.Background(), "same.txt", fmt.Sprintf("10.0.0.%d:1", i))
			if err != nil {
				return err
			}
			if _, err := sess.Write([]byte(fmt.Sprintf("payload-%02d", i))); err != nil {
				return err
			}
			results[i], err = sess.Finalize()
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]bool, n)
	for i, sf := range results {
		require.False(t, seen[sf.Name], "name %q used twice", sf.Name)
		seen[sf.Name] = true

		got, err := os.ReadFile(sf.Path)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("payload-%02d", i), string(got))
	}
	assert.Len(t, listNames(t, s.Root()), n)
}

func TestSession_NameTakenBeforeFinalize(t *testing.T) {
	s := newTestSink(t)
	sess, err := s.Begin(context.Background(), "race.txt", "")
	require.NoError(t, err)
	_, err = sess.Write([]byte("ours"))
	require.NoError(t, err)

	// Another process creates the file while the upload is in flight.
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "race.txt"), []byte("theirs"), 0o644))

	sf, err := sess.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "race (1).txt", sf.Name)

	theirs, err := os.ReadFile(filepath.Join(s.Root(), "race.txt"))
	require.NoError(t, err)
	assert.Equal(t, "theirs", string(theirs))

	ours, err := os.ReadFile(sf.Path)
	require.NoError(t, err)
	assert.Equal(t, "ours", string(ours))
}

func TestSession_AbortLeavesNothing(t *testing.T) {
	s := newTestSink(t)
	sess, err := s.Begin(context.Background(), "partial.bin", "")
	require.NoError(t, err)
	_, err = sess.Write(bytes.Repeat([]byte("x"), 64<<10))
	require.NoError(t, err)

	require.NoError(t, sess.Abort())
	assert.Empty(t, listNames(t, s.Root()))

	require.NoError(t, sess.Abort(), "abort is idempotent")

	_, err = sess.Write([]byte("more"))
	require.ErrorIs(t, err, ErrSessionClosed)

	_, err = sess.Finalize()
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_FinalizeTwice(t *testing.T) {
	s := newTestSink(t)
	sess, err := s.Begin(context.Background(), "once.txt", "")
	require.NoError(t, err)

	_, err = sess.Finalize()
	require.NoError(t, err)
	_, err = sess.Finalize()
	require.ErrorIs(t, err, ErrSessionClosed)
	require.NoError(t, sess.Abort(), "abort after finalize is a no-op")

	_, err = os.Stat(filepath.Join(s.Root(), "once.txt"))
	require.NoError(t, err, "abort after finalize must not remove the published file")
}

func TestSession_WriteErrorIsIOError(t *testing.T) {
	s := newTestSink(t)
	sess, err := s.Begin(context.Background(), "broken.bin", "")
	require.NoError(t, err)

	require.NoError(t, sess.f.Close())
	_, err = sess.Write([]byte("data"))
	require.ErrorIs(t, err, ErrIO)

	require.NoError(t, sess.Abort())
	assert.Empty(t, listNames(t, s.Root()))
}

// A reader polling the directory must never see a public file smaller than
// its final size.
func TestSession_NoPartialVisibility(t *testing.T) {
	s := newTestSink(t)
	const (
		files     = 4
		chunk     = 32 << 10
		chunks    = 32
		finalSize = chunk * chunks
	)

	var done atomic.Bool
	var violations atomic.Int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for !done.Load() {
			entries, err := os.ReadDir(s.Root())
			if err != nil {
				continue
			}
			for _, e := range entries {
				if IsStagingName(e.Name()) {
					continue
				}
				fi, err := os.Lstat(filepath.Join(s.Root(), e.Name()))
				if err == nil && fi.Size() != finalSize {
					violations.Add(1)
				}
			}
		}
	}()

	var g errgroup.Group
	for i := 0; i < files; i++ {
		i := i
		g.Go(func() error {
			sess, err := s.Begin(context.Background(), "big.bin", "")
			if err != nil {
				return err
			}
			buf := bytes.Repeat([]byte{byte(i)}, chunk)
			for j := 0; j < chunks; j++ {
				if _, err := sess.Write(buf); err != nil {
					return err
				}
				time.Sleep(time.Millisecond)
			}
			_, err = sess.Finalize()
			return err
		})
	}
	require.NoError(t, g.Wait())
	done.Store(true)
	wg.Wait()

	assert.Zero(t, violations.Load())
	assert.Len(t, listNames(t, s.Root()), files)
}
