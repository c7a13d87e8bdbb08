package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EldroidTech/eldroid-ssg/internal/logging"
	"github.com/EldroidTech/eldroid-ssg/internal/scanner"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

func quietLogger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelError,
		Format: "text",
		Output: io.Discard,
	})
}

func waitBatch(t *testing.T, batches <-chan []types.SourceChange) []types.SourceChange {
	t.Helper()
	select {
	case batch := <-batches:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change batch")
		return nil
	}
}

func newTestWatcher(t *testing.T, components, content string) (*Watcher, chan []types.SourceChange) {
	t.Helper()
	src := scanner.New(components, content, nil)
	w, err := New(src, 30*time.Millisecond, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	batches := make(chan []types.SourceChange, 16)
	w.AddHandler(func(ctx context.Context, changes []types.SourceChange) error {
		batches <- changes
		return nil
	})

	require.NoError(t, w.WatchRoot(components))
	require.NoError(t, w.WatchRoot(content))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	w.Start(ctx)
	return w, batches
}

func TestWatcherEmitsClassifiedBatches(t *testing.T) {
	dir := t.TempDir()
	components := filepath.Join(dir, "components")
	content := filepath.Join(dir, "content")
	require.NoError(t, os.MkdirAll(components, 0o755))
	require.NoError(t, os.MkdirAll(content, 0o755))

	_, batches := newTestWatcher(t, components, content)

	require.NoError(t, os.WriteFile(filepath.Join(components, "badge.html"), []byte(`<span/>`), 0o644))

	batch := waitBatch(t, batches)
	require.Len(t, batch, 1)
	assert.Equal(t, "badge.html", batch[0].Path)
	assert.Equal(t, types.KindComponent, batch[0].Kind)
	assert.Equal(t, `<span/>`, batch[0].Text)
	assert.NotEqual(t, types.ChangeRemoved, batch[0].Change)

	require.NoError(t, os.Remove(filepath.Join(components, "badge.html")))

	batch = waitBatch(t, batches)
	require.Len(t, batch, 1)
	assert.Equal(t, types.ChangeRemoved, batch[0].Change)
	assert.Empty(t, batch[0].Text)
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	components := filepath.Join(dir, "components")
	content := filepath.Join(dir, "content")
	require.NoError(t, os.MkdirAll(components, 0o755))
	require.NoError(t, os.MkdirAll(content, 0o755))

	_, batches := newTestWatcher(t, components, content)

	require.NoError(t, os.WriteFile(filepath.Join(content, "style.css"), []byte(`body{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(content, ".draft.html"), []byte(`hidden`), 0o644))

	select {
	case batch := <-batches:
		t.Fatalf("unexpected batch for unrelated files: %+v", batch)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()
	components := filepath.Join(dir, "components")
	content := filepath.Join(dir, "content")
	require.NoError(t, os.MkdirAll(components, 0o755))
	require.NoError(t, os.MkdirAll(content, 0o755))

	_, batches := newTestWatcher(t, components, content)

	blog := filepath.Join(content, "blog")
	require.NoError(t, os.MkdirAll(blog, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(blog, "post.md"), []byte("# hi\n"), 0o644))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case batch := <-batches:
			for _, change := range batch {
				if change.Path == "blog/post.md" {
					assert.Equal(t, types.KindContent, change.Kind)
					assert.Equal(t, "# hi\n", change.Text)
					return
				}
			}
		case <-deadline:
			t.Fatal("never saw the file created inside the new directory")
		}
	}
}

func TestDebouncerCollapsesBursts(t *testing.T) {
	d := &debouncer{
		delay:  20 * time.Millisecond,
		events: make(chan fsEvent, 100),
		output: make(chan []fsEvent, 10),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.start(ctx)

	// Create-then-delete inside one window nets out as a removal; order of
	// first appearance is preserved.
	d.add(fsEvent{path: "a.html", kind: types.ChangeAdded})
	d.add(fsEvent{path: "a.html", kind: types.ChangeRemoved})
	d.add(fsEvent{path: "b.html", kind: types.ChangeModified})

	select {
	case events := <-d.output:
		require.Len(t, events, 2)
		assert.Equal(t, "a.html", events[0].path)
		assert.Equal(t, types.ChangeRemoved, events[0].kind)
		assert.Equal(t, "b.html", events[1].path)
		assert.Equal(t, types.ChangeModified, events[1].kind)
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never flushed")
	}
}
