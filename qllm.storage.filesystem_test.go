package qllm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplateDoc(t *testing.T, dir, filename, doc string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestFilesystemStore_LoadsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeTemplateDoc(t, dir, "greeting.yaml", "name: greeting\ncontent: Hello {{name}}")
	writeTemplateDoc(t, dir, "farewell.json", `{"name":"farewell","content":"Bye {{name}}"}`)
	writeTemplateDoc(t, dir, "notes.txt", "not a template")
	writeTemplateDoc(t, dir, "broken.yaml", "content: [unclosed")

	store, err := NewFilesystemStore(dir, nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	names, err := store.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"farewell", "greeting"}, names)

	tmpl, err := store.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "Hello {{name}}", tmpl.Content)
	assert.Contains(t, tmpl.InputVariables, "name")
}

func TestFilesystemStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "templates")

	store, err := NewFilesystemStore(dir, nil)
	require.NoError(t, err)
	defer store.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFilesystemStore_SaveWritesFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilesystemStore(dir, nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, storedTemplate(t, "persisted")))

	// File lands on disk and a fresh store sees it.
	_, err = os.Stat(filepath.Join(dir, "persisted"+TemplateExtYAML))
	require.NoError(t, err)

	reopened, err := NewFilesystemStore(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	tmpl, err := reopened.Get(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "Hello {{name}}", tmpl.Content)
}

func TestFilesystemStore_Delete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilesystemStore(dir, nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, storedTemplate(t, "doomed")))
	require.NoError(t, store.Delete(ctx, "doomed"))

	_, err = os.Stat(filepath.Join(dir, "doomed"+TemplateExtYAML))
	assert.True(t, os.IsNotExist(err))

	err = store.Delete(ctx, "doomed")
	require.Error(t, err)
	assert.True(t, IsTemplateNotFoundError(err))
}

func TestFilesystemStore_Watch(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilesystemStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store.Watch())
	defer store.Close()

	ctx := context.Background()

	t.Run("picks up created file", func(t *testing.T) {
		writeTemplateDoc(t, dir, "hot.yaml", "name: hot\ncontent: fresh {{x}}")

		require.Eventually(t, func() bool {
			ok, err := store.Exists(ctx, "hot")
			return err == nil && ok
		}, 3*time.Second, 20*time.Millisecond)
	})

	t.Run("picks up modified file", func(t *testing.T) {
		writeTemplateDoc(t, dir, "hot.yaml", "name: hot\ncontent: updated {{x}}")

		require.Eventually(t, func() bool {
			tmpl, err := store.Get(ctx, "hot")
			return err == nil && tmpl.Content == "updated {{x}}"
		}, 3*time.Second, 20*time.Millisecond)
	})

	t.Run("drops removed file", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(dir, "hot.yaml")))

		require.Eventually(t, func() bool {
			ok, err := store.Exists(ctx, "hot")
			return err == nil && !ok
		}, 3*time.Second, 20*time.Millisecond)
	})
}

func TestFilesystemStore_RejectsEscapingNames(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "store")
	store, err := NewFilesystemStore(dir, nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for _, name := range []string{"../escape", "sub/child", `back\slash`, "..", "."} {
		tmpl := storedTemplate(t, "placeholder")
		tmpl.Name = name
		err := store.Save(ctx, tmpl)
		require.Error(t, err, "name %q must be rejected", name)
	}

	// Nothing escaped the store directory.
	_, err = os.Stat(filepath.Join(parent, "escape"+TemplateExtYAML))
	assert.True(t, os.IsNotExist(err))
}

func TestFilesystemStore_Closed(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	ctx := context.Background()
	_, err = store.Get(ctx, "x")
	require.Error(t, err)

	err = store.Save(ctx, storedTemplate(t, "x"))
	require.Error(t, err)

	_, err = store.List(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestFilesystemStore_LoadAfterCloseIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplateDoc(t, dir, "late.yaml", "name: late\ncontent: straggler {{x}}")

	store, err := NewFilesystemStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// The watcher goroutine can still deliver a buffered event after Close;
	// applying it must not panic.
	assert.NotPanics(t, func() {
		store.loadFile(path)
	})
}
